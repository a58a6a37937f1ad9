package node

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	gateway "github.com/iotaevm/gateway"
	"github.com/iotaevm/gateway/arb"
	"github.com/iotaevm/gateway/chains"
	"github.com/iotaevm/gateway/defi"
	"github.com/iotaevm/gateway/gasprice"
	"github.com/iotaevm/gateway/mcp"
	"github.com/iotaevm/gateway/signer"
	"github.com/iotaevm/gateway/token"
)

// testMnemonic is the well-known development phrase; the derived account
// holds nothing anywhere.
const testMnemonic = "test test test test test test test test test test test junk"

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

// fakeClient is a canned-value chain client. Zero fields fall back to an
// empty chain with a 1 gwei suggested price and failing contract calls.
type fakeClient struct {
	head     uint64
	headErr  error
	block    *gateway.Block
	blockErr error
	balance  *big.Int
	balErr   error
	code     []byte
	codeErr  error
	nonce    uint64
	gasPrice *big.Int
	gasEst   uint64
	tx       *gateway.Transaction
	receipt  *gateway.Receipt
	call     func(msg gateway.CallMsg) ([]byte, error)
}

func (c *fakeClient) BlockNumber(context.Context) (uint64, error) {
	if c.headErr != nil {
		return 0, c.headErr
	}
	return c.head, nil
}

func (c *fakeClient) BlockByNumber(context.Context, *big.Int, bool) (*gateway.Block, error) {
	if c.blockErr != nil {
		return nil, c.blockErr
	}
	if c.block == nil {
		return nil, gateway.NotFoundf("no blocks")
	}
	return c.block, nil
}

func (c *fakeClient) TransactionByHash(_ context.Context, hash common.Hash) (*gateway.Transaction, error) {
	if c.tx == nil || c.tx.Hash != hash {
		return nil, gateway.NotFoundf("transaction %s not found", hash.Hex())
	}
	return c.tx, nil
}

func (c *fakeClient) TransactionReceipt(_ context.Context, hash common.Hash) (*gateway.Receipt, error) {
	if c.receipt == nil || c.receipt.TxHash != hash {
		return nil, gateway.NotFoundf("receipt %s not found", hash.Hex())
	}
	return c.receipt, nil
}

func (c *fakeClient) BalanceAt(context.Context, common.Address) (*big.Int, error) {
	if c.balErr != nil {
		return nil, c.balErr
	}
	if c.balance == nil {
		return new(big.Int), nil
	}
	return new(big.Int).Set(c.balance), nil
}

func (c *fakeClient) CodeAt(context.Context, common.Address) ([]byte, error) {
	if c.codeErr != nil {
		return nil, c.codeErr
	}
	return c.code, nil
}

func (c *fakeClient) NonceAt(context.Context, common.Address) (uint64, error) {
	return c.nonce, nil
}

func (c *fakeClient) CallContract(_ context.Context, msg gateway.CallMsg) ([]byte, error) {
	if c.call != nil {
		return c.call(msg)
	}
	return nil, gateway.Upstreamf(errors.New("execution reverted"), "contract call")
}

func (c *fakeClient) SuggestGasPrice(context.Context) (*big.Int, error) {
	if c.gasPrice == nil {
		return big.NewInt(1_000_000_000), nil
	}
	return new(big.Int).Set(c.gasPrice), nil
}

func (c *fakeClient) EstimateGas(context.Context, gateway.CallMsg) (uint64, error) {
	if c.gasEst == 0 {
		return 21000, nil
	}
	return c.gasEst, nil
}

type fakeSource struct {
	clients map[string]gateway.Client
}

func (s *fakeSource) Client(_ context.Context, network string) (gateway.Client, error) {
	c, ok := s.clients[network]
	if !ok {
		return nil, gateway.Upstreamf(errors.New("connection refused"), "dial %s", network)
	}
	return c, nil
}

// fakeBackend records broadcast transactions and hashes them the way the
// chain would.
type fakeBackend struct {
	nonce    uint64
	gasPrice *big.Int
	gasEst   uint64
	sent     [][]byte
	sendErr  error
}

func (b *fakeBackend) NonceAt(context.Context, common.Address) (uint64, error) {
	return b.nonce, nil
}

func (b *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	if b.gasPrice == nil {
		return big.NewInt(1_000_000_000), nil
	}
	return new(big.Int).Set(b.gasPrice), nil
}

func (b *fakeBackend) EstimateGas(context.Context, gateway.CallMsg) (uint64, error) {
	if b.gasEst == 0 {
		return 90_000, nil
	}
	return b.gasEst, nil
}

func (b *fakeBackend) SendRawTransaction(_ context.Context, encoded []byte) (common.Hash, error) {
	if b.sendErr != nil {
		return common.Hash{}, b.sendErr
	}
	b.sent = append(b.sent, encoded)
	return crypto.Keccak256Hash(encoded), nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// testNode builds a node on the default configuration with every upstream
// replaced by the fake source. Tests add per-network clients as needed.
func testNode(t *testing.T) *Node {
	t.Helper()
	n, err := New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	n.src = &fakeSource{clients: make(map[string]gateway.Client)}
	return n
}

func setClient(n *Node, network string, c gateway.Client) {
	n.src.(*fakeSource).clients[network] = c
}

// withSigner installs the development wallet for a network and routes
// broadcasts into the given backend.
func withSigner(t *testing.T, n *Node, network string, backend *fakeBackend) *signer.Signer {
	t.Helper()
	s, err := signer.FromMnemonic(testMnemonic)
	if err != nil {
		t.Fatalf("FromMnemonic: %v", err)
	}
	n.signers[network] = s
	n.sendBackend = func(context.Context, string) (signer.Backend, error) {
		return backend, nil
	}
	return s
}

func asMap(t *testing.T, v any) map[string]any {
	t.Helper()
	m, ok := v.(map[string]any)
	if !ok {
		t.Fatalf("result is %T, want map", v)
	}
	return m
}

// headBlock builds a block mined age ago with a low-congestion gas profile
// and a 9.5 gwei base fee.
func headBlock(number uint64, age time.Duration) *gateway.Block {
	return &gateway.Block{
		Number:    number,
		Timestamp: uint64(time.Now().Add(-age).Unix()),
		GasUsed:   3_000_000,
		GasLimit:  10_000_000,
		BaseFee:   big.NewInt(9_500_000_000),
	}
}

// ---------------------------------------------------------------------------
// get_iota_network_info
// ---------------------------------------------------------------------------

func TestToolNetworkInfo(t *testing.T) {
	n := testNode(t)
	setClient(n, "iota", &fakeClient{head: 7_352_416})

	out, err := n.toolNetworkInfo(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("toolNetworkInfo: %v", err)
	}
	view := asMap(t, out)

	if view["network"] != "iota" {
		t.Errorf("network = %v, want iota", view["network"])
	}
	if view["displayName"] != "IOTA EVM" {
		t.Errorf("displayName = %v, want IOTA EVM", view["displayName"])
	}
	if view["chainId"] != chains.ChainIDIOTA {
		t.Errorf("chainId = %v, want %d", view["chainId"], chains.ChainIDIOTA)
	}
	if view["variant"] != chains.VariantMainnet {
		t.Errorf("variant = %v, want mainnet", view["variant"])
	}
	if view["latestBlock"] != "7352416" {
		t.Errorf("latestBlock = %v, want 7352416", view["latestBlock"])
	}
	if view["explorerUrl"] != "https://explorer.evm.iota.org" {
		t.Errorf("explorerUrl = %v", view["explorerUrl"])
	}
	if _, leaked := view["rpcUrl"]; leaked {
		t.Error("rpc url must not appear in tool output")
	}

	// The wrapper read fails on the fake client, so the descriptor
	// fallback serves the token metadata.
	native, ok := view["nativeToken"].(*token.TokenInfo)
	if !ok {
		t.Fatalf("nativeToken is %T", view["nativeToken"])
	}
	if native.Symbol != "IOTA" || native.Decimals != 6 {
		t.Errorf("nativeToken = %s/%d, want IOTA/6", native.Symbol, native.Decimals)
	}
	if native.TotalSupply != "0" {
		t.Errorf("TotalSupply = %q, want 0 when unknown", native.TotalSupply)
	}
}

func TestToolNetworkInfoShimmer(t *testing.T) {
	n := testNode(t)
	setClient(n, "shimmer", &fakeClient{head: 42})

	out, err := n.toolNetworkInfo(context.Background(), map[string]any{"network": "shimmer"})
	if err != nil {
		t.Fatalf("toolNetworkInfo: %v", err)
	}
	view := asMap(t, out)
	if view["network"] != "shimmer" {
		t.Errorf("network = %v, want shimmer", view["network"])
	}
	if view["chainId"] != chains.ChainIDShimmer {
		t.Errorf("chainId = %v, want %d", view["chainId"], chains.ChainIDShimmer)
	}
}

func TestToolsRejectNonSiblingNetwork(t *testing.T) {
	n := testNode(t)
	setClient(n, "ethereum", &fakeClient{head: 1})

	_, err := n.toolNetworkInfo(context.Background(), map[string]any{"network": "ethereum"})
	if !errors.Is(err, gateway.ErrValidation) {
		t.Fatalf("err = %v, want validation error outside the sibling family", err)
	}
}

// ---------------------------------------------------------------------------
// get_iota_balance
// ---------------------------------------------------------------------------

func TestToolBalance(t *testing.T) {
	n := testNode(t)
	setClient(n, "iota", &fakeClient{balance: big.NewInt(2_500_000)})

	out, err := n.toolBalance(context.Background(), map[string]any{
		"address": "0x1111111111111111111111111111111111111111",
	})
	if err != nil {
		t.Fatalf("toolBalance: %v", err)
	}
	view := asMap(t, out)

	if view["raw"] != "2500000" {
		t.Errorf("raw = %v, want 2500000", view["raw"])
	}
	if view["formatted"] != "2.5" {
		t.Errorf("formatted = %v, want 2.5 at 6 decimals", view["formatted"])
	}
	if view["symbol"] != "IOTA" {
		t.Errorf("symbol = %v, want IOTA", view["symbol"])
	}
	if view["decimals"] != uint8(6) {
		t.Errorf("decimals = %v, want 6", view["decimals"])
	}
}

func TestToolBalanceMalformedAddress(t *testing.T) {
	n := testNode(t)
	setClient(n, "iota", &fakeClient{})

	_, err := n.toolBalance(context.Background(), map[string]any{"address": "0x123"})
	if !errors.Is(err, gateway.ErrValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if !strings.Contains(err.Error(), "malformed address") {
		t.Errorf("err = %q, want the address named", err)
	}
}

func TestToolBalanceUpstreamDown(t *testing.T) {
	n := testNode(t) // no clients registered, every dial refused

	_, err := n.toolBalance(context.Background(), map[string]any{
		"address": "0x1111111111111111111111111111111111111111",
	})
	if !errors.Is(err, gateway.ErrUpstream) {
		t.Fatalf("err = %v, want upstream error", err)
	}
}

// ---------------------------------------------------------------------------
// verify_iota_network_status
// ---------------------------------------------------------------------------

func TestToolVerifyStatus(t *testing.T) {
	n := testNode(t)
	setClient(n, "iota", &fakeClient{block: headBlock(7_352_416, 10*time.Second)})

	out, err := n.toolVerifyStatus(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("toolVerifyStatus: %v", err)
	}
	view := asMap(t, out)

	if view["status"] != "healthy" {
		t.Errorf("status = %v, want healthy for a 10s-old head", view["status"])
	}
	if view["finality"] != "high" {
		t.Errorf("finality = %v, want high", view["finality"])
	}
	if view["latestBlock"] != "7352416" {
		t.Errorf("latestBlock = %v, want 7352416", view["latestBlock"])
	}
	if view["blockDelay"] != "10 seconds ago" {
		t.Errorf("blockDelay = %v, want 10 seconds ago", view["blockDelay"])
	}
	if _, err := time.Parse(time.RFC3339, view["blockTimestamp"].(string)); err != nil {
		t.Errorf("blockTimestamp not RFC3339: %v", err)
	}
}

func TestToolVerifyStatusGrades(t *testing.T) {
	tests := []struct {
		age      time.Duration
		status   string
		finality string
	}{
		{10 * time.Second, "healthy", "high"},
		{90 * time.Second, "delayed", "medium"},
		{10 * time.Minute, "stale", "low"},
	}
	for _, tt := range tests {
		n := testNode(t)
		setClient(n, "iota", &fakeClient{block: headBlock(100, tt.age)})

		out, err := n.toolVerifyStatus(context.Background(), map[string]any{})
		if err != nil {
			t.Fatalf("toolVerifyStatus(%s): %v", tt.age, err)
		}
		view := asMap(t, out)
		if view["status"] != tt.status {
			t.Errorf("age %s: status = %v, want %s", tt.age, view["status"], tt.status)
		}
		if view["finality"] != tt.finality {
			t.Errorf("age %s: finality = %v, want %s", tt.age, view["finality"], tt.finality)
		}
	}
}

// ---------------------------------------------------------------------------
// get_iota_gas_prices
// ---------------------------------------------------------------------------

func TestToolGasPrices(t *testing.T) {
	n := testNode(t)
	setClient(n, "iota", &fakeClient{
		gasPrice: big.NewInt(10_000_000_000),
		block:    headBlock(100, time.Second),
	})

	out, err := n.toolGasPrices(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("toolGasPrices: %v", err)
	}
	view := asMap(t, out)

	tiers, ok := view["gasPrice"].(map[string]string)
	if !ok {
		t.Fatalf("gasPrice is %T", view["gasPrice"])
	}
	want := map[string]string{
		"slow":     "8 gwei",
		"standard": "10 gwei",
		"fast":     "12 gwei",
		"instant":  "15 gwei",
	}
	for tier, price := range want {
		if tiers[tier] != price {
			t.Errorf("%s = %q, want %q", tier, tiers[tier], price)
		}
	}
	if view["baseFee"] != "9.5 gwei" {
		t.Errorf("baseFee = %v, want 9.5 gwei", view["baseFee"])
	}
	if view["congestion"] != gasprice.CongestionLow {
		t.Errorf("congestion = %v, want low at 30%% utilization", view["congestion"])
	}
	if view["recommendation"] != "Network congestion is low. The slow tier should confirm promptly." {
		t.Errorf("recommendation = %v", view["recommendation"])
	}
	if _, err := time.Parse(time.RFC3339, view["timestamp"].(string)); err != nil {
		t.Errorf("timestamp not RFC3339: %v", err)
	}
}

func TestToolGasPricesPublishesQuote(t *testing.T) {
	n := testNode(t)
	setClient(n, "iota", &fakeClient{
		gasPrice: big.NewInt(10_000_000_000),
		block:    headBlock(100, time.Second),
	})

	sub := n.bus.Subscribe(EventGasQuote)
	defer sub.Unsubscribe()

	if _, err := n.toolGasPrices(context.Background(), map[string]any{}); err != nil {
		t.Fatalf("toolGasPrices: %v", err)
	}

	select {
	case ev := <-sub.Chan():
		q, ok := ev.Data.(GasQuoteEvent)
		if !ok {
			t.Fatalf("event data is %T", ev.Data)
		}
		if q.Network != "iota" {
			t.Errorf("network = %s, want iota", q.Network)
		}
		if q.StandardWei.Cmp(big.NewInt(10_000_000_000)) != 0 {
			t.Errorf("standard = %s wei, want the suggested price", q.StandardWei)
		}
	default:
		t.Fatal("no gas quote event published")
	}
}

// ---------------------------------------------------------------------------
// estimate_iota_transaction_cost
// ---------------------------------------------------------------------------

func TestToolEstimateCostFastTier(t *testing.T) {
	n := testNode(t)
	setClient(n, "iota", &fakeClient{
		gasPrice: big.NewInt(10_000_000_000),
		block:    headBlock(100, time.Second),
	})

	out, err := n.toolEstimateCost(context.Background(), map[string]any{
		"gasLimit": "21000",
		"speed":    "fast",
	})
	if err != nil {
		t.Fatalf("toolEstimateCost: %v", err)
	}
	view := asMap(t, out)

	if view["gasLimit"] != uint64(21000) {
		t.Errorf("gasLimit = %v, want 21000", view["gasLimit"])
	}
	if view["gasPrice"] != "12 gwei" {
		t.Errorf("gasPrice = %v, want 12 gwei at the fast tier", view["gasPrice"])
	}
	if view["totalCostWei"] != "252000000000000" {
		t.Errorf("totalCostWei = %v, want 252000000000000", view["totalCostWei"])
	}
	if view["totalCost"] != "0.000252 IOTA" {
		t.Errorf("totalCost = %v, want 0.000252 IOTA", view["totalCost"])
	}
	if usd, ok := view["usdEquivalent"].(*float64); !ok || usd != nil {
		t.Errorf("usdEquivalent = %v, want null without a price oracle", view["usdEquivalent"])
	}
}

func TestToolEstimateCostExplicitPrice(t *testing.T) {
	n := testNode(t)
	setClient(n, "iota", &fakeClient{block: headBlock(100, time.Second)})

	out, err := n.toolEstimateCost(context.Background(), map[string]any{
		"gasLimit": "21000",
		"gasPrice": "2000000000",
	})
	if err != nil {
		t.Fatalf("toolEstimateCost: %v", err)
	}
	view := asMap(t, out)

	if view["gasPrice"] != "2 gwei" {
		t.Errorf("gasPrice = %v, want the explicit 2 gwei", view["gasPrice"])
	}
	if view["totalCost"] != "0.000042 IOTA" {
		t.Errorf("totalCost = %v, want 0.000042 IOTA", view["totalCost"])
	}
}

func TestToolEstimateCostRejects(t *testing.T) {
	n := testNode(t)
	setClient(n, "iota", &fakeClient{block: headBlock(100, time.Second)})

	tests := []struct {
		name string
		args map[string]any
	}{
		{"garbled gas limit", map[string]any{"gasLimit": "21k"}},
		{"negative gas limit", map[string]any{"gasLimit": "-5"}},
		{"zero gas limit", map[string]any{"gasLimit": "0"}},
		{"garbled gas price", map[string]any{"gasLimit": "21000", "gasPrice": "cheap"}},
		{"negative gas price", map[string]any{"gasLimit": "21000", "gasPrice": "-1"}},
	}
	for _, tt := range tests {
		if _, err := n.toolEstimateCost(context.Background(), tt.args); !errors.Is(err, gateway.ErrValidation) {
			t.Errorf("%s: err = %v, want validation error", tt.name, err)
		}
	}
}

// ---------------------------------------------------------------------------
// get_iota_staking_info
// ---------------------------------------------------------------------------

func TestToolStaking(t *testing.T) {
	n := testNode(t)

	out, err := n.toolStaking(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("toolStaking: %v", err)
	}
	view := asMap(t, out)

	pools, ok := view["pools"].([]defi.StakingPool)
	if !ok {
		t.Fatalf("pools is %T", view["pools"])
	}
	if len(pools) == 0 {
		t.Fatal("no staking pools listed for iota")
	}
	if view["count"] != len(pools) {
		t.Errorf("count = %v, want %d", view["count"], len(pools))
	}
	if view["disclaimer"] != "Indicative protocol listings, not live market rates." {
		t.Errorf("disclaimer = %v", view["disclaimer"])
	}
	for i := 1; i < len(pools); i++ {
		if pools[i-1].APYPct < pools[i].APYPct {
			t.Error("pools not sorted by APY descending")
			break
		}
	}
}

// ---------------------------------------------------------------------------
// analyze_iota_smart_contract
// ---------------------------------------------------------------------------

func TestToolAnalyze(t *testing.T) {
	n := testNode(t)
	setClient(n, "iota", &fakeClient{code: []byte{0x60, 0x01}})

	abiArg := []any{
		map[string]any{
			"type":            "function",
			"name":            "transfer",
			"stateMutability": "nonpayable",
			"inputs": []any{
				map[string]any{"name": "to", "type": "address"},
				map[string]any{"name": "value", "type": "uint256"},
			},
			"outputs": []any{map[string]any{"name": "", "type": "bool"}},
		},
	}
	out, err := n.toolAnalyze(context.Background(), map[string]any{
		"contractAddress": "0x2222222222222222222222222222222222222222",
		"abi":             abiArg,
	})
	if err != nil {
		t.Fatalf("toolAnalyze: %v", err)
	}
	view := asMap(t, out)

	analysis, ok := view["analysis"].(*token.Analysis)
	if !ok {
		t.Fatalf("analysis is %T", view["analysis"])
	}
	if !analysis.IsContract {
		t.Error("IsContract = false with bytecode deployed")
	}
	found := false
	for _, fn := range analysis.Functions {
		if fn == "transfer" {
			found = true
		}
	}
	if !found {
		t.Errorf("Functions = %v, want transfer listed", analysis.Functions)
	}
}

func TestToolAnalyzeMalformedABI(t *testing.T) {
	n := testNode(t)
	setClient(n, "iota", &fakeClient{code: []byte{0x01}})

	_, err := n.toolAnalyze(context.Background(), map[string]any{
		"contractAddress": "0x2222222222222222222222222222222222222222",
		"abi":             []any{"not a fragment"},
	})
	if !errors.Is(err, gateway.ErrValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}
}

// ---------------------------------------------------------------------------
// transfer_iota
// ---------------------------------------------------------------------------

func TestToolTransfer(t *testing.T) {
	n := testNode(t)
	backend := &fakeBackend{nonce: 7}
	s := withSigner(t, n, "iota", backend)

	out, err := n.toolTransfer(context.Background(), map[string]any{
		"toAddress": "0x3333333333333333333333333333333333333333",
		"amount":    "1.5",
	})
	if err != nil {
		t.Fatalf("toolTransfer: %v", err)
	}
	view := asMap(t, out)

	if len(backend.sent) != 1 {
		t.Fatalf("sent %d transactions, want 1", len(backend.sent))
	}
	if view["from"] != s.Address().Hex() {
		t.Errorf("from = %v, want %s", view["from"], s.Address().Hex())
	}
	if view["amount"] != "1.5 IOTA" {
		t.Errorf("amount = %v, want 1.5 IOTA", view["amount"])
	}
	if view["amountRaw"] != "1500000" {
		t.Errorf("amountRaw = %v, want 1500000 base units", view["amountRaw"])
	}
	hash, _ := view["txHash"].(string)
	if !strings.HasPrefix(hash, "0x") || len(hash) != 66 {
		t.Errorf("txHash = %q, want a 32-byte hex hash", hash)
	}
	if view["explorer"] != "https://explorer.evm.iota.org/tx/"+hash {
		t.Errorf("explorer = %v", view["explorer"])
	}
}

func TestToolTransferNoSigner(t *testing.T) {
	n := testNode(t)

	_, err := n.toolTransfer(context.Background(), map[string]any{
		"toAddress": "0x3333333333333333333333333333333333333333",
		"amount":    "1",
	})
	if !errors.Is(err, gateway.ErrUnsupported) {
		t.Fatalf("err = %v, want unsupported without a signer", err)
	}
	if !strings.Contains(err.Error(), "IOTA_MNEMONIC") {
		t.Errorf("err = %q, want the enabling variable named", err)
	}
}

func TestToolTransferRejectsAmounts(t *testing.T) {
	n := testNode(t)
	backend := &fakeBackend{}
	withSigner(t, n, "iota", backend)

	for _, amount := range []string{"0", "-1", "0.0000001", "lots"} {
		_, err := n.toolTransfer(context.Background(), map[string]any{
			"toAddress": "0x3333333333333333333333333333333333333333",
			"amount":    amount,
		})
		if !errors.Is(err, gateway.ErrValidation) {
			t.Errorf("amount %q: err = %v, want validation error", amount, err)
		}
	}
	if len(backend.sent) != 0 {
		t.Errorf("sent %d transactions, want none", len(backend.sent))
	}
}

// ---------------------------------------------------------------------------
// deploy_iota_smart_contract
// ---------------------------------------------------------------------------

func TestToolDeploy(t *testing.T) {
	n := testNode(t)
	backend := &fakeBackend{nonce: 3, gasEst: 120_000}
	s := withSigner(t, n, "iota", backend)

	out, err := n.toolDeploy(context.Background(), map[string]any{
		"bytecode": "0x6001600101",
	})
	if err != nil {
		t.Fatalf("toolDeploy: %v", err)
	}
	view := asMap(t, out)

	wantAddr := crypto.CreateAddress(s.Address(), 3)
	if view["contractAddress"] != wantAddr.Hex() {
		t.Errorf("contractAddress = %v, want %s", view["contractAddress"], wantAddr.Hex())
	}
	if view["nonce"] != uint64(3) {
		t.Errorf("nonce = %v, want 3", view["nonce"])
	}
	if view["gasLimit"] != uint64(120_000) {
		t.Errorf("gasLimit = %v, want the node estimate", view["gasLimit"])
	}
	if len(backend.sent) != 1 {
		t.Errorf("sent %d transactions, want 1", len(backend.sent))
	}
}

func TestToolDeployRejectsBadBytecode(t *testing.T) {
	n := testNode(t)
	withSigner(t, n, "iota", &fakeBackend{})

	for _, code := range []string{"", "0x", "zz"} {
		if _, err := n.toolDeploy(context.Background(), map[string]any{"bytecode": code}); !errors.Is(err, gateway.ErrValidation) {
			t.Errorf("bytecode %q: err = %v, want validation error", code, err)
		}
	}
}

// ---------------------------------------------------------------------------
// DEX fixtures
// ---------------------------------------------------------------------------

var (
	testWETH = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	testUSDC = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

var testPairABI = mustABI(`[
	{"constant":true,"inputs":[],"name":"getReserves","outputs":[{"name":"_reserve0","type":"uint112"},{"name":"_reserve1","type":"uint112"},{"name":"_blockTimestampLast","type":"uint32"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"token0","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"token1","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`)

var testERC20ABI = mustABI(`[
	{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`)

func mustABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("bad test abi: " + err.Error())
	}
	return parsed
}

// dexClient answers pair and ERC-20 metadata calls for one WETH/USDC
// market; the rest of the client surface is the fakeClient default.
type dexClient struct {
	fakeClient
	pair     common.Address
	reserve0 *big.Int // WETH, 18 decimals
	reserve1 *big.Int // USDC, 6 decimals
}

func (c *dexClient) CallContract(_ context.Context, msg gateway.CallMsg) ([]byte, error) {
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, errors.New("malformed call")
	}
	if *msg.To == c.pair {
		m, err := testPairABI.MethodById(msg.Data[:4])
		if err != nil {
			return nil, err
		}
		switch m.Name {
		case "getReserves":
			return m.Outputs.Pack(c.reserve0, c.reserve1, uint32(0))
		case "token0":
			return m.Outputs.Pack(testWETH)
		case "token1":
			return m.Outputs.Pack(testUSDC)
		}
		return nil, errors.New("unexpected pair method")
	}

	m, err := testERC20ABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	var name, symbol string
	var decimals uint8
	switch *msg.To {
	case testWETH:
		name, symbol, decimals = "Wrapped Ether", "WETH", 18
	case testUSDC:
		name, symbol, decimals = "USD Coin", "USDC", 6
	default:
		return nil, errors.New("unknown contract")
	}
	switch m.Name {
	case "name":
		return m.Outputs.Pack(name)
	case "symbol":
		return m.Outputs.Pack(symbol)
	case "decimals":
		return m.Outputs.Pack(decimals)
	case "totalSupply":
		return m.Outputs.Pack(new(big.Int))
	}
	return nil, errors.New("unexpected token method")
}

// wethMarket builds a client whose registered WETH pool on the network
// prices one WETH at priceUSDC whole USDC.
func wethMarket(t *testing.T, n *Node, network string, priceUSDC int64) *dexClient {
	t.Helper()
	pool, err := n.arb.Pools().Lookup("WETH", network)
	if err != nil {
		t.Fatalf("Lookup(WETH, %s): %v", network, err)
	}
	const depth = 1000 // whole WETH in the pool
	return &dexClient{
		pair:     pool.Pair,
		reserve0: new(big.Int).Mul(big.NewInt(depth), exp10(18)),
		reserve1: new(big.Int).Mul(big.NewInt(priceUSDC*depth), exp10(6)),
	}
}

func exp10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}

// ---------------------------------------------------------------------------
// get_cross_chain_token_price
// ---------------------------------------------------------------------------

func TestToolTokenPrice(t *testing.T) {
	n := testNode(t)
	setClient(n, "iota", wethMarket(t, n, "iota", 2500))

	out, err := n.toolTokenPrice(context.Background(), map[string]any{
		"token":   "WETH",
		"network": "iota",
	})
	if err != nil {
		t.Fatalf("toolTokenPrice: %v", err)
	}
	quote, ok := out.(*arb.Quote)
	if !ok {
		t.Fatalf("result is %T", out)
	}
	if quote.Price != "2500" {
		t.Errorf("Price = %q, want 2500", quote.Price)
	}
	if quote.BaseToken != "USDC" {
		t.Errorf("BaseToken = %q, want USDC", quote.BaseToken)
	}
	if quote.DEX != "MagicSea" {
		t.Errorf("DEX = %q, want MagicSea", quote.DEX)
	}
	if !quote.Sibling {
		t.Error("Sibling = false for iota")
	}
}

// ---------------------------------------------------------------------------
// find_arbitrage_opportunities
// ---------------------------------------------------------------------------

func TestToolFindArbitrage(t *testing.T) {
	n := testNode(t)
	setClient(n, "iota", wethMarket(t, n, "iota", 2500))
	setClient(n, "shimmer", wethMarket(t, n, "shimmer", 2550))
	setClient(n, "ethereum", wethMarket(t, n, "ethereum", 2600))
	setClient(n, "polygon", wethMarket(t, n, "polygon", 2650))

	out, err := n.toolFindArbitrage(context.Background(), map[string]any{
		"token":            "WETH",
		"networks":         []any{"iota", "shimmer", "ethereum", "polygon"},
		"minProfitPercent": float64(1),
	})
	if err != nil {
		t.Fatalf("toolFindArbitrage: %v", err)
	}
	view := asMap(t, out)

	// Four distinct prices, every spread above 1%: six ordered pairs.
	if view["opportunitiesFound"] != 6 {
		t.Errorf("opportunitiesFound = %v, want 6", view["opportunitiesFound"])
	}
	all, ok := view["opportunities"].([]arb.Opportunity)
	if !ok {
		t.Fatalf("opportunities is %T", view["opportunities"])
	}
	if len(all) != 6 {
		t.Errorf("opportunities has %d entries, want 6", len(all))
	}

	top, ok := view["topOpportunities"].([]arb.Opportunity)
	if !ok {
		t.Fatalf("topOpportunities is %T", view["topOpportunities"])
	}
	if len(top) != 3 {
		t.Fatalf("top list has %d entries, want the cap of 3", len(top))
	}
	if top[0].Buy.Network != "iota" || top[0].Sell.Network != "polygon" {
		t.Errorf("best = buy %s sell %s, want iota to polygon", top[0].Buy.Network, top[0].Sell.Network)
	}
	if top[0].ProfitPct < top[1].ProfitPct || top[1].ProfitPct < top[2].ProfitPct {
		t.Error("top opportunities not sorted by profit descending")
	}
}

// ---------------------------------------------------------------------------
// list_arbitrage_tokens
// ---------------------------------------------------------------------------

func TestToolListArbTokens(t *testing.T) {
	n := testNode(t)

	out, err := n.toolListArbTokens(context.Background(), nil)
	if err != nil {
		t.Fatalf("toolListArbTokens: %v", err)
	}
	raw, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var view struct {
		Tokens []struct {
			Symbol   string   `json:"symbol"`
			Networks []string `json:"networks"`
			Pools    []struct {
				Network string `json:"network"`
				DEX     string `json:"dex"`
				Pair    string `json:"pair"`
			} `json:"pools"`
		} `json:"tokens"`
		Count int `json:"count"`
	}
	if err := json.Unmarshal(raw, &view); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if view.Count != 4 {
		t.Fatalf("count = %d, want 4 symbols", view.Count)
	}
	if view.Tokens[0].Symbol != "USDC" {
		t.Errorf("first symbol = %s, want USDC in sorted order", view.Tokens[0].Symbol)
	}
	for _, tok := range view.Tokens {
		if len(tok.Pools) != 5 {
			t.Errorf("%s has %d pools, want 5", tok.Symbol, len(tok.Pools))
		}
		for _, p := range tok.Pools {
			if p.Network == "iota" && p.DEX != "MagicSea" {
				t.Errorf("%s iota venue = %s, want MagicSea", tok.Symbol, p.DEX)
			}
			if !strings.HasPrefix(p.Pair, "0x") {
				t.Errorf("pair = %q, want a hex address", p.Pair)
			}
		}
	}
}

// ---------------------------------------------------------------------------
// Envelope behavior through the server
// ---------------------------------------------------------------------------

type toolEnvelope struct {
	Result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	} `json:"result"`
	Error *mcp.RPCError `json:"error"`
}

func callTool(t *testing.T, n *Node, name string, args map[string]any) toolEnvelope {
	t.Helper()
	params, err := json.Marshal(mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	req := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":` + string(params) + `}`)
	raw := n.srv.HandleMessage(context.Background(), req)
	var env toolEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	return env
}

func TestToolCallEnvelope(t *testing.T) {
	n := testNode(t)
	setClient(n, "iota", &fakeClient{head: 7_352_416})

	env := callTool(t, n, "get_iota_network_info", map[string]any{})
	if env.Error != nil {
		t.Fatalf("rpc error: %v", env.Error)
	}
	if env.Result.IsError {
		t.Fatalf("isError set: %+v", env.Result.Content)
	}
	if len(env.Result.Content) != 1 || env.Result.Content[0].Type != "text" {
		t.Fatalf("content = %+v, want one text block", env.Result.Content)
	}
	var body map[string]any
	if err := json.Unmarshal([]byte(env.Result.Content[0].Text), &body); err != nil {
		t.Fatalf("content text is not JSON: %v", err)
	}
	if body["latestBlock"] != "7352416" {
		t.Errorf("latestBlock = %v, want 7352416", body["latestBlock"])
	}
}

func TestToolCallValidationLandsInResult(t *testing.T) {
	n := testNode(t)

	env := callTool(t, n, "get_iota_balance", map[string]any{})
	if env.Error != nil {
		t.Fatalf("schema failures must use the result envelope, got rpc error %v", env.Error)
	}
	if !env.Result.IsError {
		t.Fatal("isError not set for a missing required argument")
	}
	if !strings.Contains(env.Result.Content[0].Text, `missing required argument "address"`) {
		t.Errorf("text = %q", env.Result.Content[0].Text)
	}

	env = callTool(t, n, "get_iota_balance", map[string]any{
		"address": "0x1111111111111111111111111111111111111111",
		"network": "ethereum",
	})
	if !env.Result.IsError {
		t.Fatal("isError not set for a network outside the sibling enum")
	}
}

func TestToolCallHandlerErrorsLandInResult(t *testing.T) {
	n := testNode(t) // upstream down for every network

	env := callTool(t, n, "get_iota_balance", map[string]any{
		"address": "0x1111111111111111111111111111111111111111",
	})
	if env.Error != nil {
		t.Fatalf("handler failures must use the result envelope, got rpc error %v", env.Error)
	}
	if !env.Result.IsError {
		t.Fatal("isError not set for an upstream failure")
	}
	if !strings.Contains(env.Result.Content[0].Text, "upstream") {
		t.Errorf("text = %q, want the upstream class visible", env.Result.Content[0].Text)
	}
}

func TestToolCallUnknownTool(t *testing.T) {
	n := testNode(t)

	env := callTool(t, n, "get_bitcoin_balance", nil)
	if env.Error == nil || env.Error.Code != mcp.ErrCodeInvalidParams {
		t.Fatalf("error = %+v, want invalid-params code", env.Error)
	}
}
