package gasprice

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	gateway "github.com/iotaevm/gateway"
	"github.com/iotaevm/gateway/chains"
)

// mockBackend serves a fixed head block and gas price.
type mockBackend struct {
	head     *gateway.Block
	gasPrice *big.Int
	headErr  error
	priceErr error
}

func (m *mockBackend) BlockByNumber(context.Context, *big.Int, bool) (*gateway.Block, error) {
	if m.headErr != nil {
		return nil, m.headErr
	}
	return m.head, nil
}

func (m *mockBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	if m.priceErr != nil {
		return nil, m.priceErr
	}
	return new(big.Int).Set(m.gasPrice), nil
}

func gwei(x float64) *big.Int {
	return big.NewInt(int64(x * 1e9))
}

// seedBackend reproduces the reference scenario: 22.5 gwei suggested price,
// 30% block utilization, 22.1 gwei base fee.
func seedBackend() *mockBackend {
	return &mockBackend{
		gasPrice: big.NewInt(22_500_000_000),
		head: &gateway.Block{
			Number:    7_352_416,
			Hash:      common.HexToHash("0xaa"),
			Timestamp: 1_700_000_000,
			GasUsed:   3_000_000,
			GasLimit:  10_000_000,
			BaseFee:   big.NewInt(22_100_000_000),
		},
	}
}

// ---------------------------------------------------------------------------
// Quote
// ---------------------------------------------------------------------------

func TestQuoteTiers(t *testing.T) {
	o := NewOracle()
	q, err := o.Quote(context.Background(), seedBackend())
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}

	tests := []struct {
		name string
		got  *big.Int
		want string // gwei rendering
	}{
		{"slow", q.Slow, "18 gwei"},
		{"standard", q.Standard, "22.5 gwei"},
		{"fast", q.Fast, "27 gwei"},
		{"instant", q.Instant, "33.75 gwei"},
		{"base", q.Base, "22.1 gwei"},
	}
	for _, tt := range tests {
		if got := chains.FormatGwei(tt.got); got != tt.want {
			t.Errorf("%s = %s, want %s", tt.name, got, tt.want)
		}
	}

	if q.Congestion != CongestionLow {
		t.Errorf("Congestion = %q, want low at 30%% utilization", q.Congestion)
	}
	if q.UsedRatio != 0.3 {
		t.Errorf("UsedRatio = %v, want 0.3", q.UsedRatio)
	}
	if q.TakenAt.IsZero() {
		t.Error("TakenAt not set")
	}
}

func TestQuoteCongestionTiers(t *testing.T) {
	tests := []struct {
		used, limit uint64
		want        Congestion
	}{
		{0, 10_000_000, CongestionLow},
		{4_000_000, 10_000_000, CongestionLow},    // exactly 0.40
		{4_000_001, 10_000_000, CongestionMedium}, // just above
		{7_000_000, 10_000_000, CongestionMedium}, // exactly 0.70
		{7_000_001, 10_000_000, CongestionHigh},
		{10_000_000, 10_000_000, CongestionHigh},
		{5_000_000, 0, CongestionLow}, // zero gas limit guards to ratio 0
	}
	for _, tt := range tests {
		m := seedBackend()
		m.head.GasUsed = tt.used
		m.head.GasLimit = tt.limit

		q, err := NewOracle().Quote(context.Background(), m)
		if err != nil {
			t.Fatalf("Quote: %v", err)
		}
		if q.Congestion != tt.want {
			t.Errorf("used/limit %d/%d: Congestion = %q, want %q",
				tt.used, tt.limit, q.Congestion, tt.want)
		}
	}
}

func TestQuoteNoBaseFee(t *testing.T) {
	m := seedBackend()
	m.head.BaseFee = nil

	q, err := NewOracle().Quote(context.Background(), m)
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if q.Base.Sign() != 0 {
		t.Errorf("Base = %s, want 0 when the chain has no base fee", q.Base)
	}
}

func TestQuoteUpstreamErrors(t *testing.T) {
	m := seedBackend()
	m.priceErr = gateway.Upstreamf(errors.New("boom"), "eth_gasPrice")
	if _, err := NewOracle().Quote(context.Background(), m); !errors.Is(err, gateway.ErrUpstream) {
		t.Errorf("price error = %v, want ErrUpstream", err)
	}

	m = seedBackend()
	m.headErr = gateway.Upstreamf(errors.New("boom"), "eth_getBlockByNumber")
	if _, err := NewOracle().Quote(context.Background(), m); !errors.Is(err, gateway.ErrUpstream) {
		t.Errorf("head error = %v, want ErrUpstream", err)
	}
}

func TestQuoteRecommendation(t *testing.T) {
	for _, c := range []Congestion{CongestionLow, CongestionMedium, CongestionHigh} {
		q := &Quote{Congestion: c}
		if q.Recommendation() == "" {
			t.Errorf("empty recommendation for %q", c)
		}
	}
}

func TestQuoteTierLookup(t *testing.T) {
	q := &Quote{
		Slow: gwei(1), Standard: gwei(2), Fast: gwei(3), Instant: gwei(4),
	}
	if q.Tier(SpeedFast).Cmp(gwei(3)) != 0 {
		t.Errorf("Tier(fast) = %s", q.Tier(SpeedFast))
	}
	if q.Tier(Speed("warp")) != nil {
		t.Error("Tier(unknown) != nil")
	}
}

// ---------------------------------------------------------------------------
// Cost estimation
// ---------------------------------------------------------------------------

func TestEstimateCostFastTier(t *testing.T) {
	// 21000 gas at the fast tier (27 gwei) is 5.67e14 wei, "0.000567"
	// in 18-decimal display units.
	o := NewOracle()
	c, err := o.EstimateCost(context.Background(), seedBackend(), 21000, nil, SpeedFast)
	if err != nil {
		t.Fatalf("EstimateCost: %v", err)
	}

	wantTotal := new(big.Int).Mul(big.NewInt(21000), big.NewInt(27_000_000_000))
	if c.TotalWei.Cmp(wantTotal) != 0 {
		t.Errorf("TotalWei = %s, want %s", c.TotalWei, wantTotal)
	}
	if c.TotalFormatted != "0.000567" {
		t.Errorf("TotalFormatted = %q, want 0.000567", c.TotalFormatted)
	}
	if chains.FormatGwei(c.GasPrice) != "27 gwei" {
		t.Errorf("GasPrice = %s, want 27 gwei", chains.FormatGwei(c.GasPrice))
	}
	if c.USDEquivalent != nil {
		t.Error("USDEquivalent must stay nil: no price oracle is wired")
	}
}

func TestEstimateCostDefaultsToStandard(t *testing.T) {
	c, err := NewOracle().EstimateCost(context.Background(), seedBackend(), 21000, nil, "")
	if err != nil {
		t.Fatalf("EstimateCost: %v", err)
	}
	if chains.FormatGwei(c.GasPrice) != "22.5 gwei" {
		t.Errorf("GasPrice = %s, want standard 22.5 gwei", chains.FormatGwei(c.GasPrice))
	}
}

func TestEstimateCostExplicitPrice(t *testing.T) {
	// An explicit price wins over the quote; no head fetch is needed but
	// harmless if it happens.
	c, err := NewOracle().EstimateCost(context.Background(), seedBackend(), 100_000, gwei(50), SpeedSlow)
	if err != nil {
		t.Fatalf("EstimateCost: %v", err)
	}
	want := new(big.Int).Mul(big.NewInt(100_000), gwei(50))
	if c.TotalWei.Cmp(want) != 0 {
		t.Errorf("TotalWei = %s, want %s", c.TotalWei, want)
	}
}

func TestEstimateCostValidation(t *testing.T) {
	o := NewOracle()

	if _, err := o.EstimateCost(context.Background(), seedBackend(), 0, nil, SpeedStandard); !errors.Is(err, gateway.ErrValidation) {
		t.Errorf("zero gas limit error = %v, want ErrValidation", err)
	}
	if _, err := o.EstimateCost(context.Background(), seedBackend(), 21000, nil, Speed("warp")); !errors.Is(err, gateway.ErrValidation) {
		t.Errorf("unknown speed error = %v, want ErrValidation", err)
	}
	if _, err := o.EstimateCost(context.Background(), seedBackend(), 21000, big.NewInt(0), SpeedStandard); !errors.Is(err, gateway.ErrValidation) {
		t.Errorf("zero price error = %v, want ErrValidation", err)
	}
}

// ---------------------------------------------------------------------------
// Tier math
// ---------------------------------------------------------------------------

func TestMulDivExact(t *testing.T) {
	// Tier multipliers are exact integer math, not float rounding.
	p := big.NewInt(22_500_000_000)
	if got := mulDiv(p, 4, 5); got.Int64() != 18_000_000_000 {
		t.Errorf("0.8x = %s", got)
	}
	if got := mulDiv(p, 6, 5); got.Int64() != 27_000_000_000 {
		t.Errorf("1.2x = %s", got)
	}
	if got := mulDiv(p, 3, 2); got.Int64() != 33_750_000_000 {
		t.Errorf("1.5x = %s", got)
	}
}
