package arb

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"golang.org/x/sync/errgroup"

	gateway "github.com/iotaevm/gateway"
	"github.com/iotaevm/gateway/chains"
	"github.com/iotaevm/gateway/log"
	"github.com/iotaevm/gateway/token"
)

// DefaultMinProfitPct is the opportunity threshold when the caller gives
// none.
const DefaultMinProfitPct = 1.0

// pairReadABI is the minimal constant-product pair surface the engine
// reads: reserves and the two token addresses.
const pairReadABI = `[
	{"constant":true,"inputs":[],"name":"getReserves","outputs":[{"name":"_reserve0","type":"uint112"},{"name":"_reserve1","type":"uint112"},{"name":"_blockTimestampLast","type":"uint32"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"token0","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"token1","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`

var pairABI = mustParseABI(pairReadABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("arb: bad built-in abi: " + err.Error())
	}
	return parsed
}

// Quote prices one symbol on one network in units of the pair's other
// token. Price and Liquidity are decimal strings rendered with the
// respective token decimals.
type Quote struct {
	Network   string         `json:"network"`
	Symbol    string         `json:"symbol"`
	BaseToken string         `json:"baseToken"`
	DEX       string         `json:"dex"`
	Price     string         `json:"price"`
	Liquidity string         `json:"liquidity"`
	Pair      common.Address `json:"pair"`
	Sibling   bool           `json:"isSibling"`

	price *big.Rat // exact price for the profit math
}

// Leg is one side of a directed opportunity.
type Leg struct {
	Network   string `json:"network"`
	Price     string `json:"price"`
	DEX       string `json:"dex"`
	Liquidity string `json:"liquidity"`
}

// Opportunity is one profitable ordered (buy, sell) network pair.
type Opportunity struct {
	Token            string    `json:"token"`
	BaseToken        string    `json:"baseToken"`
	Buy              Leg       `json:"buy"`
	Sell             Leg       `json:"sell"`
	ProfitPct        float64   `json:"profitPct"`
	BridgingRequired bool      `json:"bridgingRequired"`
	TakenAt          time.Time `json:"takenAt"`

	profit *big.Rat
}

// Result is a full opportunity scan. Quotes lists every network that
// produced a usable quote, in candidate order; Opportunities is sorted
// by profit descending.
type Result struct {
	Token              string        `json:"token"`
	MinProfitPct       float64       `json:"minProfitPct"`
	NetworksChecked    []string      `json:"networksChecked"`
	Quotes             []Quote       `json:"quotes"`
	OpportunitiesFound int           `json:"opportunitiesFound"`
	Opportunities      []Opportunity `json:"opportunities"`
}

// Engine quotes tokens via the pool registry and enumerates arbitrage
// opportunities across networks.
type Engine struct {
	pools  *PoolRegistry
	chains *chains.Registry
	log    *log.Logger
}

// NewEngine returns an engine over the given pool and chain registries.
func NewEngine(pools *PoolRegistry, registry *chains.Registry) *Engine {
	return &Engine{
		pools:  pools,
		chains: registry,
		log:    log.Default().Module("arb"),
	}
}

// Pools exposes the registry backing this engine.
func (e *Engine) Pools() *PoolRegistry {
	return e.pools
}

// QuoteToken reads the registered pair on one network and prices symbol
// in the pair's base token. The pair reads and the two token metadata
// reads each run concurrently.
func (e *Engine) QuoteToken(ctx context.Context, src gateway.ClientSource, symbol, network string) (*Quote, error) {
	pool, err := e.pools.Lookup(symbol, network)
	if err != nil {
		return nil, err
	}
	client, err := src.Client(ctx, pool.Network)
	if err != nil {
		return nil, err
	}

	var (
		reserve0, reserve1 *big.Int
		token0, token1     common.Address
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		reserve0, reserve1, err = readReserves(gctx, client, pool.Pair)
		return err
	})
	g.Go(func() error {
		var err error
		token0, err = readPairToken(gctx, client, pool.Pair, "token0")
		return err
	})
	g.Go(func() error {
		var err error
		token1, err = readPairToken(gctx, client, pool.Pair, "token1")
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var info0, info1 *token.TokenInfo
	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		info0, err = token.ReadTokenInfo(gctx, client, token0)
		return err
	})
	g.Go(func() error {
		var err error
		info1, err = token.ReadTokenInfo(gctx, client, token1)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var target, base *token.TokenInfo
	var reserveT, reserveB *big.Int
	switch {
	case strings.EqualFold(info0.Symbol, symbol):
		target, base, reserveT, reserveB = info0, info1, reserve0, reserve1
	case strings.EqualFold(info1.Symbol, symbol):
		target, base, reserveT, reserveB = info1, info0, reserve1, reserve0
	default:
		return nil, gateway.NotFoundf("token %s absent from pool %s on %s (holds %s/%s)",
			symbol, pool.Pair.Hex(), pool.Network, info0.Symbol, info1.Symbol)
	}
	if reserveT.Sign() == 0 {
		return nil, gateway.Logicf("pool %s on %s has no %s reserve", pool.Pair.Hex(), pool.Network, symbol)
	}

	price, err := pairPrice(reserveB, reserveT, target.Decimals)
	if err != nil {
		return nil, err
	}

	return &Quote{
		Network:   pool.Network,
		Symbol:    target.Symbol,
		BaseToken: base.Symbol,
		DEX:       pool.DEX,
		Price:     chains.FormatUnits(price, base.Decimals),
		Liquidity: chains.FormatUnits(reserveT, target.Decimals),
		Pair:      pool.Pair,
		Sibling:   e.chains.IsSibling(pool.Network),
		price:     new(big.Rat).SetFrac(price, pow10(int(base.Decimals))),
	}, nil
}

// FindOpportunities quotes symbol on every candidate network and emits
// the ordered network pairs whose price gap clears minProfitPct (<=0
// selects the default). Individual quote failures are logged and
// dropped; fewer than two usable quotes yields an empty result and no
// error.
func (e *Engine) FindOpportunities(ctx context.Context, src gateway.ClientSource, symbol string, networks []string, minProfitPct float64) (*Result, error) {
	if minProfitPct <= 0 {
		minProfitPct = DefaultMinProfitPct
	}
	threshold := new(big.Rat).SetFloat64(minProfitPct)
	if threshold == nil {
		return nil, gateway.Validationf("minProfitPct %v is not a finite number", minProfitPct)
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if len(networks) == 0 {
		networks = e.pools.Networks(symbol)
	}

	candidates := make([]string, 0, len(networks))
	seen := make(map[string]bool, len(networks))
	for _, ref := range networks {
		name := strings.ToLower(strings.TrimSpace(ref))
		if d, err := e.chains.Resolve(ref); err == nil {
			name = d.ShortName
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		if !e.pools.Has(symbol, name) {
			e.log.Debug("network skipped, no pool", "symbol", symbol, "network", name)
			continue
		}
		candidates = append(candidates, name)
	}

	result := &Result{
		Token:           symbol,
		MinProfitPct:    minProfitPct,
		NetworksChecked: candidates,
		Quotes:          []Quote{},
		Opportunities:   []Opportunity{},
	}
	if len(candidates) < 2 {
		return result, nil
	}

	quotes := make([]*Quote, len(candidates))
	var g errgroup.Group
	for i, network := range candidates {
		i, network := i, network
		g.Go(func() error {
			q, err := e.QuoteToken(ctx, src, symbol, network)
			if err != nil {
				e.log.Warn("quote dropped", "symbol", symbol, "network", network, "err", err)
				return nil
			}
			quotes[i] = q
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	usable := make([]*Quote, 0, len(quotes))
	for _, q := range quotes {
		if q != nil {
			usable = append(usable, q)
			result.Quotes = append(result.Quotes, *q)
		}
	}
	if len(usable) < 2 {
		return result, nil
	}

	hundred := new(big.Rat).SetInt64(100)
	takenAt := time.Now().UTC()
	for i, buy := range usable {
		for j, sell := range usable {
			if i == j {
				continue
			}
			if !strings.EqualFold(buy.BaseToken, sell.BaseToken) {
				e.log.Warn("base token mismatch, pair skipped",
					"symbol", symbol,
					"buy", buy.Network, "buyBase", buy.BaseToken,
					"sell", sell.Network, "sellBase", sell.BaseToken)
				continue
			}
			if buy.price.Sign() <= 0 {
				continue
			}
			profit := new(big.Rat).Sub(sell.price, buy.price)
			profit.Quo(profit, buy.price)
			profit.Mul(profit, hundred)
			if profit.Cmp(threshold) < 0 {
				continue
			}
			pct, _ := profit.Float64()
			result.Opportunities = append(result.Opportunities, Opportunity{
				Token:            symbol,
				BaseToken:        buy.BaseToken,
				Buy:              Leg{Network: buy.Network, Price: buy.Price, DEX: buy.DEX, Liquidity: buy.Liquidity},
				Sell:             Leg{Network: sell.Network, Price: sell.Price, DEX: sell.DEX, Liquidity: sell.Liquidity},
				ProfitPct:        pct,
				BridgingRequired: !(buy.Sibling && sell.Sibling),
				TakenAt:          takenAt,
				profit:           profit,
			})
		}
	}
	sort.SliceStable(result.Opportunities, func(i, j int) bool {
		return result.Opportunities[i].profit.Cmp(result.Opportunities[j].profit) > 0
	})
	result.OpportunitiesFound = len(result.Opportunities)
	return result, nil
}

// ---------------------------------------------------------------------------
// Pair reads
// ---------------------------------------------------------------------------

func readReserves(ctx context.Context, caller gateway.ContractCaller, pair common.Address) (*big.Int, *big.Int, error) {
	data, err := pairABI.Pack("getReserves")
	if err != nil {
		return nil, nil, gateway.Upstreamf(err, "encode getReserves")
	}
	out, err := caller.CallContract(ctx, gateway.CallMsg{To: &pair, Data: data})
	if err != nil {
		return nil, nil, err
	}
	vals, err := pairABI.Unpack("getReserves", out)
	if err != nil {
		return nil, nil, gateway.Upstreamf(err, "decode reserves of pair %s", pair.Hex())
	}
	r0, ok0 := vals[0].(*big.Int)
	r1, ok1 := vals[1].(*big.Int)
	if !ok0 || !ok1 {
		return nil, nil, gateway.Upstreamf(errors.New("unexpected output types"), "decode reserves of pair %s", pair.Hex())
	}
	return r0, r1, nil
}

func readPairToken(ctx context.Context, caller gateway.ContractCaller, pair common.Address, method string) (common.Address, error) {
	data, err := pairABI.Pack(method)
	if err != nil {
		return common.Address{}, gateway.Upstreamf(err, "encode %s", method)
	}
	out, err := caller.CallContract(ctx, gateway.CallMsg{To: &pair, Data: data})
	if err != nil {
		return common.Address{}, err
	}
	vals, err := pairABI.Unpack(method, out)
	if err != nil {
		return common.Address{}, gateway.Upstreamf(err, "decode %s of pair %s", method, pair.Hex())
	}
	addr, ok := vals[0].(common.Address)
	if !ok {
		return common.Address{}, gateway.Upstreamf(errors.New("unexpected output type"), "decode %s of pair %s", method, pair.Hex())
	}
	return addr, nil
}

// pairPrice computes reserveBase * 10^targetDecimals / reserveTarget in
// 256-bit integer arithmetic, the same rounding the EVM itself would
// apply.
func pairPrice(reserveBase, reserveTarget *big.Int, targetDecimals uint8) (*big.Int, error) {
	rb, overflow := uint256.FromBig(reserveBase)
	if overflow {
		return nil, gateway.Logicf("base reserve exceeds uint256")
	}
	rt, overflow := uint256.FromBig(reserveTarget)
	if overflow {
		return nil, gateway.Logicf("target reserve exceeds uint256")
	}
	if rt.IsZero() {
		return nil, gateway.Logicf("target reserve is zero")
	}
	scale := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(targetDecimals)))
	num, overflow := new(uint256.Int).MulOverflow(rb, scale)
	if overflow {
		return nil, gateway.Logicf("price numerator exceeds uint256")
	}
	return new(uint256.Int).Div(num, rt).ToBig(), nil
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
