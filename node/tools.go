package node

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	gateway "github.com/iotaevm/gateway"
	"github.com/iotaevm/gateway/chains"
	"github.com/iotaevm/gateway/gasprice"
	"github.com/iotaevm/gateway/history"
	"github.com/iotaevm/gateway/mcp"
	"github.com/iotaevm/gateway/signer"
	"github.com/iotaevm/gateway/token"
)

// Head freshness thresholds for verify_iota_network_status.
const (
	statusHealthyWithin = 60 * time.Second
	statusDelayedWithin = 300 * time.Second
	finalityHighWithin  = 30 * time.Second
	finalityMedWithin   = 120 * time.Second
)

// registerTools registers the closed tool set on the MCP server.
func (n *Node) registerTools() error {
	networkProp := n.siblingProp()

	tools := []mcp.Tool{
		{
			Name:        "get_iota_network_info",
			Description: "Get chain metadata for an IOTA EVM network: chain id, latest block and native token details.",
			InputSchema: mcp.ObjectSchema(map[string]mcp.Property{
				"network": networkProp,
			}),
			Handler: n.toolNetworkInfo,
		},
		{
			Name:        "get_iota_balance",
			Description: "Get the native token balance of an address on an IOTA EVM network, in base units and display units.",
			InputSchema: mcp.ObjectSchema(map[string]mcp.Property{
				"address": {Type: "string", Description: "Account address, 0x-prefixed hex"},
				"network": networkProp,
			}, "address"),
			Handler: n.toolBalance,
		},
		{
			Name:        "transfer_iota",
			Description: "Send native tokens from the configured wallet to a recipient. Requires a signer mnemonic for the network.",
			InputSchema: mcp.ObjectSchema(map[string]mcp.Property{
				"toAddress": {Type: "string", Description: "Recipient address, 0x-prefixed hex"},
				"amount":    {Type: "string", Description: "Amount in display units, for example \"1.5\""},
				"network":   networkProp,
			}, "toAddress", "amount"),
			Handler: n.toolTransfer,
		},
		{
			Name:        "get_iota_staking_info",
			Description: "List staking options on an IOTA EVM network with indicative APY, lockup and minimum stake.",
			InputSchema: mcp.ObjectSchema(map[string]mcp.Property{
				"network": networkProp,
			}),
			Handler: n.toolStaking,
		},
		{
			Name:        "verify_iota_network_status",
			Description: "Check whether an IOTA EVM network is producing blocks: head freshness, finality estimate and overall status.",
			InputSchema: mcp.ObjectSchema(map[string]mcp.Property{
				"network": networkProp,
			}),
			Handler: n.toolVerifyStatus,
		},
		{
			Name:        "get_iota_gas_prices",
			Description: "Get tiered gas price recommendations (slow to instant) with the network's congestion level.",
			InputSchema: mcp.ObjectSchema(map[string]mcp.Property{
				"network": networkProp,
			}),
			Handler: n.toolGasPrices,
		},
		{
			Name:        "estimate_iota_transaction_cost",
			Description: "Estimate the total native-token cost of a transaction from its gas limit, at a chosen speed tier or explicit gas price.",
			InputSchema: mcp.ObjectSchema(map[string]mcp.Property{
				"gasLimit": {Type: "string", Description: "Gas limit as a decimal string, for example \"21000\""},
				"gasPrice": {Type: "string", Description: "Optional gas price in wei as a decimal string; overrides the speed tier"},
				"speed": {
					Type:        "string",
					Description: "Speed tier used when no gas price is given",
					Enum:        []string{"slow", "standard", "fast", "instant"},
				},
				"network": networkProp,
			}, "gasLimit"),
			Handler: n.toolEstimateCost,
		},
		{
			Name:        "deploy_iota_smart_contract",
			Description: "Deploy a compiled smart contract from the configured wallet. Requires a signer mnemonic for the network.",
			InputSchema: mcp.ObjectSchema(map[string]mcp.Property{
				"bytecode": {Type: "string", Description: "Compiled contract bytecode, hex with or without 0x prefix"},
				"network":  networkProp,
			}, "bytecode"),
			Handler: n.toolDeploy,
		},
		{
			Name:        "analyze_iota_smart_contract",
			Description: "Analyze a deployed contract: standards implemented, declared functions and events, and bytecode security flags.",
			InputSchema: mcp.ObjectSchema(map[string]mcp.Property{
				"contractAddress": {Type: "string", Description: "Contract address, 0x-prefixed hex"},
				"abi":             {Type: "array", Description: "Contract ABI as a JSON array of fragments"},
				"network":         networkProp,
			}, "contractAddress", "abi"),
			Handler: n.toolAnalyze,
		},
		{
			Name:        "get_cross_chain_token_price",
			Description: "Get a token's DEX spot price against its base pair on one network.",
			InputSchema: mcp.ObjectSchema(map[string]mcp.Property{
				"token":   {Type: "string", Description: "Token symbol, for example \"WETH\""},
				"network": {Type: "string", Description: "Network to quote on", Enum: n.registry.Names()},
			}, "token", "network"),
			Handler: n.toolTokenPrice,
		},
		{
			Name:        "find_arbitrage_opportunities",
			Description: "Compare a token's DEX price across networks and report spreads above the profit threshold.",
			InputSchema: mcp.ObjectSchema(map[string]mcp.Property{
				"token": {Type: "string", Description: "Token symbol, for example \"WETH\""},
				"networks": {
					Type:        "array",
					Description: "Networks to compare; defaults to every network with a pool for the token",
					Items:       &mcp.Property{Type: "string"},
				},
				"minProfitPercent": {Type: "number", Description: "Minimum spread to report, percent; defaults to 1"},
			}, "token"),
			Handler: n.toolFindArbitrage,
		},
		{
			Name:        "list_arbitrage_tokens",
			Description: "List the tokens the arbitrage scanner can quote and the networks each trades on.",
			InputSchema: mcp.ObjectSchema(nil),
			Handler:     n.toolListArbTokens,
		},
	}

	for _, t := range tools {
		if err := n.srv.RegisterTool(t); err != nil {
			return err
		}
	}
	return nil
}

// siblingProp is the schema property for the optional "network" argument
// of the sibling-scoped tools. The enum confines it to the family, so an
// outside network fails schema validation before the handler runs.
func (n *Node) siblingProp() mcp.Property {
	siblings := n.registry.Siblings()
	names := make([]string, len(siblings))
	for i, d := range siblings {
		names[i] = d.ShortName
	}
	return mcp.Property{
		Type:        "string",
		Description: "IOTA EVM network to target; defaults to " + n.defaultSibling().ShortName,
		Enum:        names,
	}
}

// siblingArg resolves the optional "network" argument against the sibling
// family, falling back to the node default.
func (n *Node) siblingArg(args map[string]any) (chains.NetworkDescriptor, error) {
	ref := mcp.StringArg(args, "network", "")
	if ref == "" {
		return n.defaultSibling(), nil
	}
	return n.registry.ResolveSibling(ref)
}

func parseAddress(raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, gateway.Validationf("malformed address %q", raw)
	}
	return common.HexToAddress(raw), nil
}

func decodeBytecode(raw string) ([]byte, error) {
	s := strings.TrimPrefix(raw, "0x")
	if s == "" {
		return nil, gateway.Validationf("bytecode is empty")
	}
	code, err := hex.DecodeString(s)
	if err != nil {
		return nil, gateway.Validationf("bytecode is not valid hex")
	}
	return code, nil
}

// signerFor returns the wallet for a network, or an unsupported-operation
// error naming the environment variable that enables it.
func (n *Node) signerFor(d chains.NetworkDescriptor) (*signer.Signer, error) {
	s, ok := n.signers[d.ShortName]
	if !ok {
		env := strings.ToUpper(strings.ReplaceAll(d.ShortName, "-", "_")) + "_MNEMONIC"
		return nil, gateway.Unsupportedf("no signer configured for %s: set %s to enable transactions", d.ShortName, env)
	}
	return s, nil
}

// ---------------------------------------------------------------------------
// Observation tools
// ---------------------------------------------------------------------------

func (n *Node) toolNetworkInfo(ctx context.Context, args map[string]any) (any, error) {
	d, err := n.siblingArg(args)
	if err != nil {
		return nil, err
	}
	return n.networkInfoView(ctx, d)
}

// networkInfoView renders the registry entry, the chain head and the
// native token snapshot. The RPC URL stays out: overrides may carry
// credentials.
func (n *Node) networkInfoView(ctx context.Context, d chains.NetworkDescriptor) (any, error) {
	client, err := n.src.Client(ctx, d.ShortName)
	if err != nil {
		return nil, err
	}
	head, err := client.BlockNumber(ctx)
	if err != nil {
		return nil, err
	}
	native := token.NativeTokenInfo(ctx, client, d)

	return map[string]any{
		"network":     d.ShortName,
		"displayName": d.DisplayName,
		"chainId":     d.ChainID,
		"variant":     d.SiblingVariant,
		"explorerUrl": d.ExplorerURL,
		"latestBlock": strconv.FormatUint(head, 10),
		"nativeToken": native,
	}, nil
}

func (n *Node) toolBalance(ctx context.Context, args map[string]any) (any, error) {
	d, err := n.siblingArg(args)
	if err != nil {
		return nil, err
	}
	addr, err := parseAddress(mcp.StringArg(args, "address", ""))
	if err != nil {
		return nil, err
	}
	return n.balanceView(ctx, d, addr)
}

func (n *Node) balanceView(ctx context.Context, d chains.NetworkDescriptor, addr common.Address) (any, error) {
	client, err := n.src.Client(ctx, d.ShortName)
	if err != nil {
		return nil, err
	}
	wei, err := client.BalanceAt(ctx, addr)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"network":   d.ShortName,
		"address":   addr.Hex(),
		"raw":       wei.String(),
		"formatted": chains.FormatUnits(wei, d.NativeToken.Decimals),
		"symbol":    d.NativeToken.Symbol,
		"decimals":  d.NativeToken.Decimals,
	}, nil
}

func (n *Node) toolVerifyStatus(ctx context.Context, args map[string]any) (any, error) {
	d, err := n.siblingArg(args)
	if err != nil {
		return nil, err
	}
	return n.statusView(ctx, d)
}

// statusView grades head freshness: a head under a minute old is healthy
// and under five delayed, anything older stale. The finality estimate
// tightens the same delay into high (half a minute), medium (two
// minutes) or low.
func (n *Node) statusView(ctx context.Context, d chains.NetworkDescriptor) (any, error) {
	client, err := n.src.Client(ctx, d.ShortName)
	if err != nil {
		return nil, err
	}
	head, err := client.BlockByNumber(ctx, nil, false)
	if err != nil {
		return nil, err
	}

	minedAt := time.Unix(int64(head.Timestamp), 0).UTC()
	delay := time.Since(minedAt)

	status := "stale"
	switch {
	case delay < statusHealthyWithin:
		status = "healthy"
	case delay < statusDelayedWithin:
		status = "delayed"
	}

	finality := "low"
	switch {
	case delay <= finalityHighWithin:
		finality = "high"
	case delay <= finalityMedWithin:
		finality = "medium"
	}

	return map[string]any{
		"network":        d.ShortName,
		"status":         status,
		"latestBlock":    strconv.FormatUint(head.Number, 10),
		"blockTimestamp": minedAt.Format(time.RFC3339),
		"blockDelay":     history.FormatAge(delay),
		"finality":       finality,
	}, nil
}

func (n *Node) toolGasPrices(ctx context.Context, args map[string]any) (any, error) {
	d, err := n.siblingArg(args)
	if err != nil {
		return nil, err
	}
	client, err := n.src.Client(ctx, d.ShortName)
	if err != nil {
		return nil, err
	}
	q, err := n.oracle.Quote(ctx, client)
	if err != nil {
		return nil, err
	}
	n.bus.PublishAsync(EventGasQuote, GasQuoteEvent{Network: d.ShortName, StandardWei: q.Standard})

	return map[string]any{
		"network":    d.ShortName,
		"baseFee":    chains.FormatGwei(q.Base),
		"congestion": q.Congestion,
		"gasPrice": map[string]string{
			"slow":     chains.FormatGwei(q.Slow),
			"standard": chains.FormatGwei(q.Standard),
			"fast":     chains.FormatGwei(q.Fast),
			"instant":  chains.FormatGwei(q.Instant),
		},
		"recommendation": q.Recommendation(),
		"timestamp":      q.TakenAt.UTC().Format(time.RFC3339),
	}, nil
}

func (n *Node) toolEstimateCost(ctx context.Context, args map[string]any) (any, error) {
	d, err := n.siblingArg(args)
	if err != nil {
		return nil, err
	}

	rawLimit := mcp.StringArg(args, "gasLimit", "")
	gasLimit, err := strconv.ParseUint(rawLimit, 10, 64)
	if err != nil {
		return nil, gateway.Validationf("gasLimit must be a decimal integer, got %q", rawLimit)
	}

	var price *big.Int
	if raw := mcp.StringArg(args, "gasPrice", ""); raw != "" {
		p, ok := new(big.Int).SetString(raw, 10)
		if !ok || p.Sign() < 0 {
			return nil, gateway.Validationf("gasPrice must be a decimal wei amount, got %q", raw)
		}
		price = p
	}
	speed := gasprice.Speed(mcp.StringArg(args, "speed", ""))

	client, err := n.src.Client(ctx, d.ShortName)
	if err != nil {
		return nil, err
	}
	cost, err := n.oracle.EstimateCost(ctx, client, gasLimit, price, speed)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"network":       d.ShortName,
		"gasLimit":      cost.GasLimit,
		"gasPrice":      chains.FormatGwei(cost.GasPrice),
		"totalCostWei":  cost.TotalWei.String(),
		"totalCost":     cost.TotalFormatted + " " + d.NativeToken.Symbol,
		"usdEquivalent": cost.USDEquivalent,
	}, nil
}

func (n *Node) toolStaking(ctx context.Context, args map[string]any) (any, error) {
	d, err := n.siblingArg(args)
	if err != nil {
		return nil, err
	}
	pools, err := n.defi.StakingPools(ctx, d.ShortName)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"network":    d.ShortName,
		"pools":      pools,
		"count":      len(pools),
		"disclaimer": "Indicative protocol listings, not live market rates.",
	}, nil
}

func (n *Node) toolAnalyze(ctx context.Context, args map[string]any) (any, error) {
	d, err := n.siblingArg(args)
	if err != nil {
		return nil, err
	}
	addr, err := parseAddress(mcp.StringArg(args, "contractAddress", ""))
	if err != nil {
		return nil, err
	}
	abiJSON, err := json.Marshal(mcp.SliceArg(args, "abi"))
	if err != nil {
		return nil, gateway.Validationf("abi is not serializable: %v", err)
	}

	client, err := n.src.Client(ctx, d.ShortName)
	if err != nil {
		return nil, err
	}
	analysis, err := token.Analyze(ctx, client, addr, string(abiJSON))
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"network":  d.ShortName,
		"analysis": analysis,
	}, nil
}

// ---------------------------------------------------------------------------
// Transaction tools
// ---------------------------------------------------------------------------

func (n *Node) toolTransfer(ctx context.Context, args map[string]any) (any, error) {
	d, err := n.siblingArg(args)
	if err != nil {
		return nil, err
	}
	to, err := parseAddress(mcp.StringArg(args, "toAddress", ""))
	if err != nil {
		return nil, err
	}
	amount := mcp.StringArg(args, "amount", "")
	wei, err := chains.ParseUnits(amount, d.NativeToken.Decimals)
	if err != nil {
		return nil, err
	}
	s, err := n.signerFor(d)
	if err != nil {
		return nil, err
	}
	backend, err := n.sendBackend(ctx, d.ShortName)
	if err != nil {
		return nil, err
	}

	hash, err := s.Transfer(ctx, backend, d.ChainID, to, wei)
	if err != nil {
		return nil, err
	}
	n.log.Info("transfer sent", "network", d.ShortName, "to", to.Hex(), "txHash", hash.Hex())

	return map[string]any{
		"network":   d.ShortName,
		"from":      s.Address().Hex(),
		"to":        to.Hex(),
		"amount":    amount + " " + d.NativeToken.Symbol,
		"amountRaw": wei.String(),
		"txHash":    hash.Hex(),
		"explorer":  d.ExplorerURL + "/tx/" + hash.Hex(),
	}, nil
}

func (n *Node) toolDeploy(ctx context.Context, args map[string]any) (any, error) {
	d, err := n.siblingArg(args)
	if err != nil {
		return nil, err
	}
	code, err := decodeBytecode(mcp.StringArg(args, "bytecode", ""))
	if err != nil {
		return nil, err
	}
	s, err := n.signerFor(d)
	if err != nil {
		return nil, err
	}
	backend, err := n.sendBackend(ctx, d.ShortName)
	if err != nil {
		return nil, err
	}

	res, err := s.Deploy(ctx, backend, d.ChainID, code)
	if err != nil {
		return nil, err
	}
	n.log.Info("contract deployed", "network", d.ShortName,
		"address", res.ContractAddress.Hex(), "txHash", res.TxHash.Hex())

	return map[string]any{
		"network":         d.ShortName,
		"txHash":          res.TxHash.Hex(),
		"contractAddress": res.ContractAddress.Hex(),
		"from":            res.From.Hex(),
		"nonce":           res.Nonce,
		"gasLimit":        res.GasLimit,
		"explorer":        d.ExplorerURL + "/tx/" + res.TxHash.Hex(),
		"note":            "Contract address is derived from sender and nonce; it is final once the transaction is mined.",
	}, nil
}

// ---------------------------------------------------------------------------
// Cross-chain tools
// ---------------------------------------------------------------------------

func (n *Node) toolTokenPrice(ctx context.Context, args map[string]any) (any, error) {
	symbol := mcp.StringArg(args, "token", "")
	network := mcp.StringArg(args, "network", "")
	return n.arb.QuoteToken(ctx, n.src, symbol, network)
}

func (n *Node) toolFindArbitrage(ctx context.Context, args map[string]any) (any, error) {
	symbol := mcp.StringArg(args, "token", "")
	networks := mcp.StringSliceArg(args, "networks")
	minProfit := mcp.NumberArg(args, "minProfitPercent", 0)

	res, err := n.arb.FindOpportunities(ctx, n.src, symbol, networks, minProfit)
	if err != nil {
		return nil, err
	}

	top := res.Opportunities
	if len(top) > 3 {
		top = top[:3]
	}
	return map[string]any{
		"token":              res.Token,
		"minProfitPercent":   res.MinProfitPct,
		"networksChecked":    res.NetworksChecked,
		"quotes":             res.Quotes,
		"opportunitiesFound": res.OpportunitiesFound,
		"opportunities":      res.Opportunities,
		"topOpportunities":   top,
	}, nil
}

func (n *Node) toolListArbTokens(_ context.Context, _ map[string]any) (any, error) {
	pools := n.arb.Pools()

	type tokenEntry struct {
		Symbol   string    `json:"symbol"`
		Networks []string  `json:"networks"`
		Pools    []arbPool `json:"pools"`
	}
	symbols := pools.Symbols()
	entries := make([]tokenEntry, 0, len(symbols))
	for _, sym := range symbols {
		nets := pools.Networks(sym)
		ps := make([]arbPool, 0, len(nets))
		for _, net := range nets {
			p, err := pools.Lookup(sym, net)
			if err != nil {
				continue
			}
			ps = append(ps, arbPool{Network: p.Network, DEX: p.DEX, Pair: p.Pair.Hex()})
		}
		entries = append(entries, tokenEntry{Symbol: sym, Networks: nets, Pools: ps})
	}

	return map[string]any{
		"tokens": entries,
		"count":  len(entries),
	}, nil
}

// arbPool is the pool view rendered by list_arbitrage_tokens: the symbol
// lives on the parent entry, so it is dropped here.
type arbPool struct {
	Network string `json:"network"`
	DEX     string `json:"dex"`
	Pair    string `json:"pair"`
}
