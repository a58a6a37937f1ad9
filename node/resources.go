package node

import (
	"context"
	"encoding/hex"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	gateway "github.com/iotaevm/gateway"
	"github.com/iotaevm/gateway/chains"
	"github.com/iotaevm/gateway/history"
	"github.com/iotaevm/gateway/mcp"
	"github.com/iotaevm/gateway/metrics"
)

// registerResources registers the read-only resource surface. Tools are
// scoped to the sibling family; resources resolve any registry network,
// so a client can read ethereum state for comparison without it ever
// being a transaction target.
//
// Alias templates register before the {network} ones: template matching
// runs in registration order, and iota://tx/<hash> must bind as a
// transaction on the primary sibling, not as network "tx".
func (n *Node) registerResources() error {
	resources := []mcp.Resource{
		{
			Name:        "network-info",
			URI:         "iota://info",
			Description: "Chain metadata, head block and native token of the primary network",
			Handler:     n.resource(n.resInfo),
		},
		{
			Name:        "latest-block",
			URI:         "iota://block/latest",
			Description: "Latest block of the primary network",
			Handler:     n.resource(n.resBlock),
		},
		{
			Name:        "network-status",
			URI:         "iota://status",
			Description: "Head freshness and finality grade of the primary network",
			Handler:     n.resource(n.resStatus),
		},
		{
			Name:        "network-comparison",
			URI:         "iota://compare",
			Description: "Activity metrics of the primary network ranked against every other configured network",
			Handler:     n.resource(n.resCompare),
		},
		{
			Name:        "address-balance",
			URI:         "iota://address/{address}/balance",
			Description: "Native token balance of an address on the primary network",
			Handler:     n.resource(n.resBalance),
		},
		{
			Name:        "address-metrics",
			URI:         "iota://address/{address}/metrics",
			Description: "Recent-window activity of an address on the primary network",
			Handler:     n.resource(n.resAddressMetrics),
		},
		{
			Name:        "transaction",
			URI:         "iota://tx/{txHash}",
			Description: "Transaction, receipt and confirmation depth on the primary network",
			Handler:     n.resource(n.resTx),
		},
		{
			Name:        "network-info",
			URI:         "iota://{network}/info",
			Description: "Chain metadata, head block and native token of a network",
			Handler:     n.resource(n.resInfo),
		},
		{
			Name:        "latest-block",
			URI:         "iota://{network}/block/latest",
			Description: "Latest block of a network",
			Handler:     n.resource(n.resBlock),
		},
		{
			Name:        "address-balance",
			URI:         "iota://{network}/address/{address}/balance",
			Description: "Native token balance of an address",
			Handler:     n.resource(n.resBalance),
		},
		{
			Name:        "address-metrics",
			URI:         "iota://{network}/address/{address}/metrics",
			Description: "Recent-window activity of an address: counts, volumes, first and last seen",
			Handler:     n.resource(n.resAddressMetrics),
		},
		{
			Name:        "transaction",
			URI:         "iota://{network}/tx/{txHash}",
			Description: "Transaction, receipt and confirmation depth",
			Handler:     n.resource(n.resTx),
		},
		{
			Name:        "network-status",
			URI:         "iota://{network}/status",
			Description: "Head freshness and finality grade of a network",
			Handler:     n.resource(n.resStatus),
		},
		{
			Name:        "recent-history",
			URI:         "iota://{network}/history/recent",
			Description: "Classified transactions from the recent block window",
			Handler:     n.resource(n.resHistory),
		},
		{
			Name:        "network-metrics",
			URI:         "iota://{network}/metrics",
			Description: "Block time, TPS and gas utilization sampled from recent blocks",
			Handler:     n.resource(n.resNetworkMetrics),
		},
		{
			Name:        "network-growth",
			URI:         "iota://{network}/growth",
			Description: "Daily block and transaction rates over the trailing period",
			Handler:     n.resource(n.resGrowth),
		},
		{
			Name:        "defi-inventory",
			URI:         "iota://{network}/defi",
			Description: "Staking pools, liquidity pools and lending markets of a network",
			Handler:     n.resource(n.resDefi),
		},
	}

	for _, r := range resources {
		r.MIMEType = "application/json"
		if err := n.srv.RegisterResource(r); err != nil {
			return err
		}
	}
	return nil
}

// resource wraps a handler with read and error counters.
func (n *Node) resource(h mcp.ResourceHandler) mcp.ResourceHandler {
	return func(ctx context.Context, uri string, params map[string]string) (any, error) {
		metrics.ResourceReads.Inc()
		v, err := h(ctx, uri, params)
		if err != nil {
			metrics.ResourceErrors.Inc()
		}
		return v, err
	}
}

// resourceNetwork resolves the {network} binding. The unparameterized
// aliases carry no binding and fall back to the primary sibling.
func (n *Node) resourceNetwork(params map[string]string) (chains.NetworkDescriptor, error) {
	ref, ok := params["network"]
	if !ok || ref == "" {
		return n.registry.Primary(), nil
	}
	return n.registry.Resolve(ref)
}

func parseTxHash(raw string) (common.Hash, error) {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "0x") || len(s) != 66 {
		return common.Hash{}, gateway.Validationf("malformed transaction hash %q", raw)
	}
	b, err := hex.DecodeString(s[2:])
	if err != nil {
		return common.Hash{}, gateway.Validationf("malformed transaction hash %q", raw)
	}
	return common.BytesToHash(b), nil
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (n *Node) resInfo(ctx context.Context, _ string, params map[string]string) (any, error) {
	d, err := n.resourceNetwork(params)
	if err != nil {
		return nil, err
	}
	return n.networkInfoView(ctx, d)
}

func (n *Node) resBalance(ctx context.Context, _ string, params map[string]string) (any, error) {
	d, err := n.resourceNetwork(params)
	if err != nil {
		return nil, err
	}
	addr, err := parseAddress(params["address"])
	if err != nil {
		return nil, err
	}
	return n.balanceView(ctx, d, addr)
}

func (n *Node) resStatus(ctx context.Context, _ string, params map[string]string) (any, error) {
	d, err := n.resourceNetwork(params)
	if err != nil {
		return nil, err
	}
	return n.statusView(ctx, d)
}

func (n *Node) resBlock(ctx context.Context, _ string, params map[string]string) (any, error) {
	d, err := n.resourceNetwork(params)
	if err != nil {
		return nil, err
	}
	client, err := n.src.Client(ctx, d.ShortName)
	if err != nil {
		return nil, err
	}
	head, err := client.BlockByNumber(ctx, nil, false)
	if err != nil {
		return nil, err
	}

	view := map[string]any{
		"network":     d.ShortName,
		"number":      head.Number,
		"hash":        head.Hash.Hex(),
		"parentHash":  head.ParentHash.Hex(),
		"timestamp":   time.Unix(int64(head.Timestamp), 0).UTC().Format(time.RFC3339),
		"txCount":     head.TxCount(),
		"gasUsed":     head.GasUsed,
		"gasLimit":    head.GasLimit,
		"utilization": history.GasEfficiency(head.GasUsed, head.GasLimit),
	}
	if head.BaseFee != nil {
		view["baseFee"] = chains.FormatGwei(head.BaseFee)
	}
	return view, nil
}

// resTx reads a transaction and, once it is mined, its receipt. Pending
// transactions report status "pending" with no receipt fields.
func (n *Node) resTx(ctx context.Context, _ string, params map[string]string) (any, error) {
	d, err := n.resourceNetwork(params)
	if err != nil {
		return nil, err
	}
	hash, err := parseTxHash(params["txHash"])
	if err != nil {
		return nil, err
	}
	client, err := n.src.Client(ctx, d.ShortName)
	if err != nil {
		return nil, err
	}
	tx, err := client.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, err
	}

	var to any
	if tx.To != nil {
		to = tx.To.Hex()
	}
	view := map[string]any{
		"network":   d.ShortName,
		"hash":      tx.Hash.Hex(),
		"from":      tx.From.Hex(),
		"to":        to,
		"nonce":     tx.Nonce,
		"value_wei": tx.Value.String(),
		"value":     chains.FormatUnits(tx.Value, d.NativeToken.Decimals) + " " + d.NativeToken.Symbol,
		"gasLimit":  tx.Gas,
		"label":     history.Classify(tx.Input, tx.To),
	}
	if tx.BlockNumber == nil {
		view["status"] = "pending"
		return view, nil
	}

	receipt, err := client.TransactionReceipt(ctx, hash)
	if err != nil {
		return nil, err
	}
	head, err := client.BlockNumber(ctx)
	if err != nil {
		return nil, err
	}

	status := "success"
	if receipt.Status == gateway.ReceiptStatusReverted {
		status = "reverted"
	}
	view["status"] = status
	view["blockNumber"] = receipt.BlockNumber
	view["gasUsed"] = receipt.GasUsed
	view["gasEfficiency"] = history.GasEfficiency(receipt.GasUsed, tx.Gas)
	view["confirmations"] = history.Confirmations(head, receipt.BlockNumber)
	if receipt.ContractAddress != nil {
		view["contractAddress"] = receipt.ContractAddress.Hex()
	}
	return view, nil
}

func (n *Node) resAddressMetrics(ctx context.Context, _ string, params map[string]string) (any, error) {
	d, err := n.resourceNetwork(params)
	if err != nil {
		return nil, err
	}
	addr, err := parseAddress(params["address"])
	if err != nil {
		return nil, err
	}
	client, err := n.src.Client(ctx, d.ShortName)
	if err != nil {
		return nil, err
	}
	return n.scanner.AddressMetrics(ctx, client, d, addr)
}

func (n *Node) resHistory(ctx context.Context, _ string, params map[string]string) (any, error) {
	d, err := n.resourceNetwork(params)
	if err != nil {
		return nil, err
	}
	client, err := n.src.Client(ctx, d.ShortName)
	if err != nil {
		return nil, err
	}
	return n.scanner.ScanRecent(ctx, client, d)
}

func (n *Node) resNetworkMetrics(ctx context.Context, _ string, params map[string]string) (any, error) {
	d, err := n.resourceNetwork(params)
	if err != nil {
		return nil, err
	}
	client, err := n.src.Client(ctx, d.ShortName)
	if err != nil {
		return nil, err
	}
	return n.analytics.Collect(ctx, client, d, 0)
}

func (n *Node) resGrowth(ctx context.Context, _ string, params map[string]string) (any, error) {
	d, err := n.resourceNetwork(params)
	if err != nil {
		return nil, err
	}
	client, err := n.src.Client(ctx, d.ShortName)
	if err != nil {
		return nil, err
	}
	return n.analytics.Growth(ctx, client, d, 0)
}

// resCompare ranks the primary sibling against every other registry
// network.
func (n *Node) resCompare(ctx context.Context, _ string, _ map[string]string) (any, error) {
	primary := n.registry.Primary()
	others := make([]string, 0, len(n.registry.List()))
	for _, d := range n.registry.List() {
		if d.ShortName != primary.ShortName {
			others = append(others, d.ShortName)
		}
	}
	return n.analytics.Compare(ctx, n.src, n.registry, primary.ShortName, others)
}

func (n *Node) resDefi(ctx context.Context, _ string, params map[string]string) (any, error) {
	d, err := n.resourceNetwork(params)
	if err != nil {
		return nil, err
	}
	staking, err := n.defi.StakingPools(ctx, d.ShortName)
	if err != nil {
		return nil, err
	}
	liquidity, err := n.defi.LiquidityPools(ctx, d.ShortName)
	if err != nil {
		return nil, err
	}
	lending, err := n.defi.LendingMarkets(ctx, d.ShortName)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"network":        d.ShortName,
		"stakingPools":   staking,
		"liquidityPools": liquidity,
		"lendingMarkets": lending,
		"disclaimer":     "Indicative protocol listings, not live market rates.",
	}, nil
}
