// Package gasprice derives tiered gas quotes and transaction-cost estimates
// from a network's suggested gas price and the newest block's congestion
// signal. Quotes are computed fresh on every call; nothing is cached.
package gasprice

import (
	"context"
	"math/big"
	"time"

	gateway "github.com/iotaevm/gateway"
	"github.com/iotaevm/gateway/chains"
	"github.com/iotaevm/gateway/log"
)

// Backend is the read surface the oracle needs from a network client.
type Backend interface {
	BlockByNumber(ctx context.Context, number *big.Int, fullTxs bool) (*gateway.Block, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// Congestion classifies the newest block's gas-used ratio.
type Congestion string

const (
	CongestionLow    Congestion = "low"    // used/limit <= 0.40
	CongestionMedium Congestion = "medium" // used/limit <= 0.70
	CongestionHigh   Congestion = "high"
)

// Speed selects a quote tier for cost estimation.
type Speed string

const (
	SpeedSlow     Speed = "slow"
	SpeedStandard Speed = "standard"
	SpeedFast     Speed = "fast"
	SpeedInstant  Speed = "instant"
)

// Quote is a tiered gas price snapshot. All prices are wei.
type Quote struct {
	// Base is the newest block's base fee; zero on pre-EIP-1559 chains.
	Base *big.Int

	// The four tiers, fixed multiples of the node's suggested price:
	// 0.8x, 1.0x, 1.2x, 1.5x.
	Slow     *big.Int
	Standard *big.Int
	Fast     *big.Int
	Instant  *big.Int

	Congestion Congestion
	UsedRatio  float64
	TakenAt    time.Time
}

// Tier returns the price for a speed; nil for an unknown speed.
func (q *Quote) Tier(s Speed) *big.Int {
	switch s {
	case SpeedSlow:
		return q.Slow
	case SpeedStandard:
		return q.Standard
	case SpeedFast:
		return q.Fast
	case SpeedInstant:
		return q.Instant
	}
	return nil
}

// Recommendation renders the congestion tier as advice for callers choosing
// a speed.
func (q *Quote) Recommendation() string {
	switch q.Congestion {
	case CongestionLow:
		return "Network congestion is low. The slow tier should confirm promptly."
	case CongestionMedium:
		return "Network congestion is moderate. Use the standard tier for timely confirmation."
	default:
		return "Network congestion is high. Use the fast or instant tier to avoid delays."
	}
}

// Cost is a transaction-cost estimate.
type Cost struct {
	GasLimit uint64
	GasPrice *big.Int // wei
	TotalWei *big.Int

	// TotalFormatted renders TotalWei in 18-decimal display units at six
	// decimal places.
	TotalFormatted string

	// USDEquivalent is always nil: no price oracle is wired.
	USDEquivalent *float64
}

// Oracle computes quotes and cost estimates.
type Oracle struct {
	log *log.Logger
}

// NewOracle returns an Oracle.
func NewOracle() *Oracle {
	return &Oracle{log: log.Default().Module("gasprice")}
}

// Quote fetches the suggested gas price and the newest block, then derives
// the tier table and congestion class.
func (o *Oracle) Quote(ctx context.Context, backend Backend) (*Quote, error) {
	price, err := backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}
	head, err := backend.BlockByNumber(ctx, nil, false)
	if err != nil {
		return nil, err
	}

	q := &Quote{
		Base:     new(big.Int),
		Slow:     mulDiv(price, 4, 5),
		Standard: new(big.Int).Set(price),
		Fast:     mulDiv(price, 6, 5),
		Instant:  mulDiv(price, 3, 2),
		TakenAt:  time.Now(),
	}
	if head.BaseFee != nil {
		q.Base.Set(head.BaseFee)
	}
	if head.GasLimit > 0 {
		q.UsedRatio = float64(head.GasUsed) / float64(head.GasLimit)
	}
	q.Congestion = classify(q.UsedRatio)
	return q, nil
}

// EstimateCost computes gasLimit * price. An explicit price wins; otherwise
// the requested tier of a fresh quote is used, defaulting to standard.
func (o *Oracle) EstimateCost(ctx context.Context, backend Backend, gasLimit uint64, gasPrice *big.Int, speed Speed) (*Cost, error) {
	if gasLimit == 0 {
		return nil, gateway.Validationf("gas limit must be greater than zero")
	}
	if speed == "" {
		speed = SpeedStandard
	}

	price := gasPrice
	if price == nil {
		q, err := o.Quote(ctx, backend)
		if err != nil {
			return nil, err
		}
		price = q.Tier(speed)
		if price == nil {
			return nil, gateway.Validationf("unknown speed %q", speed)
		}
	}
	if price.Sign() <= 0 {
		return nil, gateway.Validationf("gas price must be greater than zero")
	}

	total := new(big.Int).Mul(new(big.Int).SetUint64(gasLimit), price)
	return &Cost{
		GasLimit:       gasLimit,
		GasPrice:       price,
		TotalWei:       total,
		TotalFormatted: chains.FormatEtherWei(total, 6),
	}, nil
}

// classify maps a gas-used ratio onto the congestion tiers.
func classify(ratio float64) Congestion {
	switch {
	case ratio <= 0.40:
		return CongestionLow
	case ratio <= 0.70:
		return CongestionMedium
	default:
		return CongestionHigh
	}
}

// mulDiv computes x*num/den in exact integer arithmetic.
func mulDiv(x *big.Int, num, den int64) *big.Int {
	out := new(big.Int).Mul(x, big.NewInt(num))
	return out.Div(out, big.NewInt(den))
}
