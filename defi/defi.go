// Package defi lists protocol inventories (staking pools, liquidity
// pools, lending markets) for the sibling networks. The bundled
// StaticProvider serves curated placeholder tables so the tool surface
// stays functional without an indexer; swap in a real Provider to feed
// live data.
package defi

import (
	"context"
	"sort"
	"strings"
)

// StakingPool describes one place to stake the native or wrapped token.
type StakingPool struct {
	Name       string  `json:"name"`
	Protocol   string  `json:"protocol"`
	Token      string  `json:"token"`
	APYPct     float64 `json:"apy_pct"`
	MinStake   string  `json:"minStake"`
	LockupDays int     `json:"lockupDays"`
	TVL        string  `json:"tvl"`
}

// LiquidityPool describes one AMM pool accepting deposits.
type LiquidityPool struct {
	Name     string  `json:"name"`
	Protocol string  `json:"protocol"`
	Pair     string  `json:"pair"`
	APYPct   float64 `json:"apy_pct"`
	FeePct   float64 `json:"fee_pct"`
	TVL      string  `json:"tvl"`
}

// LendingMarket describes one supply/borrow market.
type LendingMarket struct {
	Protocol     string  `json:"protocol"`
	Asset        string  `json:"asset"`
	SupplyAPYPct float64 `json:"supplyApy_pct"`
	BorrowAPYPct float64 `json:"borrowApy_pct"`
	TVL          string  `json:"tvl"`
}

// Provider yields the DeFi inventories of a network. Implementations
// are total over network names: a network without inventory returns
// empty slices, not an error.
type Provider interface {
	StakingPools(ctx context.Context, network string) ([]StakingPool, error)
	LiquidityPools(ctx context.Context, network string) ([]LiquidityPool, error)
	LendingMarkets(ctx context.Context, network string) ([]LendingMarket, error)
}

// StaticProvider serves the built-in tables. The figures are indicative
// placeholders, not market data; callers surfacing them should say so.
type StaticProvider struct {
	staking   map[string][]StakingPool
	liquidity map[string][]LiquidityPool
	lending   map[string][]LendingMarket
}

var _ Provider = (*StaticProvider)(nil)

// NewStaticProvider builds the provider with the built-in inventories.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{
		staking:   builtinStaking(),
		liquidity: builtinLiquidity(),
		lending:   builtinLending(),
	}
}

// StakingPools lists the staking pools of a network, sorted by APY
// descending.
func (p *StaticProvider) StakingPools(_ context.Context, network string) ([]StakingPool, error) {
	pools := append([]StakingPool(nil), p.staking[normalize(network)]...)
	sort.SliceStable(pools, func(i, j int) bool { return pools[i].APYPct > pools[j].APYPct })
	return pools, nil
}

// LiquidityPools lists the AMM pools of a network, sorted by APY
// descending.
func (p *StaticProvider) LiquidityPools(_ context.Context, network string) ([]LiquidityPool, error) {
	pools := append([]LiquidityPool(nil), p.liquidity[normalize(network)]...)
	sort.SliceStable(pools, func(i, j int) bool { return pools[i].APYPct > pools[j].APYPct })
	return pools, nil
}

// LendingMarkets lists the lending markets of a network, sorted by
// supply APY descending.
func (p *StaticProvider) LendingMarkets(_ context.Context, network string) ([]LendingMarket, error) {
	markets := append([]LendingMarket(nil), p.lending[normalize(network)]...)
	sort.SliceStable(markets, func(i, j int) bool { return markets[i].SupplyAPYPct > markets[j].SupplyAPYPct })
	return markets, nil
}

func normalize(network string) string {
	return strings.ToLower(strings.TrimSpace(network))
}

// ---------------------------------------------------------------------------
// Built-in tables
// ---------------------------------------------------------------------------

func builtinStaking() map[string][]StakingPool {
	return map[string][]StakingPool{
		"iota": {
			{Name: "wIOTA Single Stake", Protocol: "MagicSea", Token: "wIOTA", APYPct: 5.8, MinStake: "10", LockupDays: 0, TVL: "2400000"},
			{Name: "wIOTA Locked 90d", Protocol: "MagicSea", Token: "wIOTA", APYPct: 11.2, MinStake: "100", LockupDays: 90, TVL: "1150000"},
			{Name: "Governance Vault", Protocol: "TangleSwap", Token: "wIOTA", APYPct: 7.4, MinStake: "50", LockupDays: 30, TVL: "860000"},
		},
		"shimmer": {
			{Name: "wSMR Single Stake", Protocol: "ShimmerSea", Token: "wSMR", APYPct: 9.6, MinStake: "100", LockupDays: 0, TVL: "780000"},
			{Name: "wSMR Locked 180d", Protocol: "ShimmerSea", Token: "wSMR", APYPct: 16.3, MinStake: "500", LockupDays: 180, TVL: "420000"},
		},
		"iota-testnet": {
			{Name: "Testnet Faucet Stake", Protocol: "MagicSea", Token: "wIOTA", APYPct: 99.0, MinStake: "1", LockupDays: 0, TVL: "12000"},
		},
	}
}

func builtinLiquidity() map[string][]LiquidityPool {
	return map[string][]LiquidityPool{
		"iota": {
			{Name: "wIOTA/USDC", Protocol: "MagicSea", Pair: "wIOTA-USDC", APYPct: 14.7, FeePct: 0.3, TVL: "1900000"},
			{Name: "wIOTA/WETH", Protocol: "MagicSea", Pair: "wIOTA-WETH", APYPct: 10.1, FeePct: 0.3, TVL: "640000"},
		},
		"shimmer": {
			{Name: "wSMR/USDT", Protocol: "ShimmerSea", Pair: "wSMR-USDT", APYPct: 21.5, FeePct: 0.3, TVL: "510000"},
		},
	}
}

func builtinLending() map[string][]LendingMarket {
	return map[string][]LendingMarket{
		"iota": {
			{Protocol: "Deepr Finance", Asset: "wIOTA", SupplyAPYPct: 3.1, BorrowAPYPct: 6.8, TVL: "950000"},
			{Protocol: "Deepr Finance", Asset: "USDC", SupplyAPYPct: 4.9, BorrowAPYPct: 8.2, TVL: "1300000"},
		},
		"shimmer": {
			{Protocol: "Deepr Finance", Asset: "wSMR", SupplyAPYPct: 4.4, BorrowAPYPct: 9.1, TVL: "310000"},
		},
	}
}
