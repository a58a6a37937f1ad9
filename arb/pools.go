// Package arb quotes a token across networks and enumerates price gaps
// large enough to clear a profit threshold. Quotes come from canonical
// constant-product pairs registered per (symbol, network); the engine
// never holds funds and never submits transactions.
package arb

import (
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	gateway "github.com/iotaevm/gateway"
	"github.com/iotaevm/gateway/chains"
)

// Pool locates the canonical pair contract quoting one symbol on one
// network.
type Pool struct {
	Symbol  string         `json:"symbol"`
	Network string         `json:"network"`
	DEX     string         `json:"dex"`
	Pair    common.Address `json:"pair"`
}

// venueByNetwork names the constant-product deployment the pool table
// points into on each network.
var venueByNetwork = map[string]string{
	"iota":     "MagicSea",
	"shimmer":  "ShimmerSea",
	"ethereum": "Uniswap V2",
	"polygon":  "QuickSwap",
	"bsc":      "PancakeSwap",
}

// builtinPools is the static pool table. Every network named here must
// exist in the chain registry; NewPoolRegistry enforces that at build
// time so a table typo cannot surface as a runtime lookup miss.
func builtinPools() []Pool {
	return []Pool{
		// USDC
		{Symbol: "USDC", Network: "iota", Pair: common.HexToAddress("0x2A1D2C7Bd342C3B63AF543C3eF2F0A75cA23BFd5")},
		{Symbol: "USDC", Network: "shimmer", Pair: common.HexToAddress("0x8e3A59427B1D87Db234Dd4ff63B25E4BF94672f4")},
		{Symbol: "USDC", Network: "ethereum", Pair: common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc")},
		{Symbol: "USDC", Network: "polygon", Pair: common.HexToAddress("0x853Ee4b2A13f8a742d64C8F088bE7bA2131f670d")},
		{Symbol: "USDC", Network: "bsc", Pair: common.HexToAddress("0xd99c7F6C65857AC913a8f880A4cb84032AB2FC5b")},

		// USDT
		{Symbol: "USDT", Network: "iota", Pair: common.HexToAddress("0x6C8b7F5E08C7aAee229Ccd1DD9E2Fb5A9E4cD21e")},
		{Symbol: "USDT", Network: "shimmer", Pair: common.HexToAddress("0x35F83a2dD197a9ceF4F992f3DbD48A312E70D173")},
		{Symbol: "USDT", Network: "ethereum", Pair: common.HexToAddress("0x0d4a11d5EEaaC28EC3F61d100daF4d40471f1852")},
		{Symbol: "USDT", Network: "polygon", Pair: common.HexToAddress("0xF6422B997c7F54D1c6a6e103bCb1499EeA0a7046")},
		{Symbol: "USDT", Network: "bsc", Pair: common.HexToAddress("0x16b9a82891338f9bA80E2D6970FddA79D1eb0daE")},

		// WETH
		{Symbol: "WETH", Network: "iota", Pair: common.HexToAddress("0x4F9E2cB0B6E1E7C0E0bE5F96C1D5E4D78fa5C2A1")},
		{Symbol: "WETH", Network: "shimmer", Pair: common.HexToAddress("0x9D3b6C5E447B060BCdF4CC0A7C4dDE54f2cC09B6")},
		{Symbol: "WETH", Network: "ethereum", Pair: common.HexToAddress("0xA478c2975Ab1Ea89e8196811F51A7B7Ade33eB11")},
		{Symbol: "WETH", Network: "polygon", Pair: common.HexToAddress("0xadbF1854e5883eB8aa7BAf50705338739e558E5b")},
		{Symbol: "WETH", Network: "bsc", Pair: common.HexToAddress("0x74E4716E431f45807DCF19f284c7aA99F18a4fbc")},

		// WBTC
		{Symbol: "WBTC", Network: "iota", Pair: common.HexToAddress("0x1E7D32C6A9e7B2cB7f9A7c8E150F5b3a6D2C4e88")},
		{Symbol: "WBTC", Network: "shimmer", Pair: common.HexToAddress("0xC2b094Dd1E8059B0A3a5E36f1D4E4eCb23aD9F61")},
		{Symbol: "WBTC", Network: "ethereum", Pair: common.HexToAddress("0xBb2b8038a1640196FbE3e38816F3e67Cba72D940")},
		{Symbol: "WBTC", Network: "polygon", Pair: common.HexToAddress("0xdC9232E2Df177d7a12FdFf6EcBAb114E2231198D")},
		{Symbol: "WBTC", Network: "bsc", Pair: common.HexToAddress("0x61EB789d75A95CAa3fF50ed7E47b96c132fEc082")},
	}
}

// PoolRegistry resolves (symbol, network) to a pair address. Immutable
// after construction, so it is freely shared across handlers.
type PoolRegistry struct {
	bySymbol map[string]map[string]Pool
}

// NewPoolRegistry builds the pool table and validates every referenced
// network against the chain registry.
func NewPoolRegistry(registry *chains.Registry) (*PoolRegistry, error) {
	p := &PoolRegistry{bySymbol: make(map[string]map[string]Pool)}
	for _, pool := range builtinPools() {
		if _, err := registry.ResolveName(pool.Network); err != nil {
			return nil, gateway.Validationf("pool %s/%s references unknown network", pool.Symbol, pool.Network)
		}
		venue, ok := venueByNetwork[pool.Network]
		if !ok {
			return nil, gateway.Validationf("pool %s/%s references network without a venue", pool.Symbol, pool.Network)
		}
		pool.DEX = venue
		symbol := strings.ToUpper(pool.Symbol)
		byNet := p.bySymbol[symbol]
		if byNet == nil {
			byNet = make(map[string]Pool)
			p.bySymbol[symbol] = byNet
		}
		if _, dup := byNet[pool.Network]; dup {
			return nil, gateway.Validationf("duplicate pool %s/%s", pool.Symbol, pool.Network)
		}
		byNet[pool.Network] = pool
	}
	return p, nil
}

// Symbols lists the tradable symbols in sorted order.
func (p *PoolRegistry) Symbols() []string {
	symbols := make([]string, 0, len(p.bySymbol))
	for s := range p.bySymbol {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

// Networks lists the networks quoting a symbol, sorted. Unknown symbols
// yield an empty list.
func (p *PoolRegistry) Networks(symbol string) []string {
	byNet := p.bySymbol[strings.ToUpper(strings.TrimSpace(symbol))]
	networks := make([]string, 0, len(byNet))
	for n := range byNet {
		networks = append(networks, n)
	}
	sort.Strings(networks)
	return networks
}

// Lookup resolves the pool for a symbol on a network.
func (p *PoolRegistry) Lookup(symbol, network string) (Pool, error) {
	byNet := p.bySymbol[strings.ToUpper(strings.TrimSpace(symbol))]
	pool, ok := byNet[strings.ToLower(strings.TrimSpace(network))]
	if !ok {
		return Pool{}, gateway.NotFoundf("no %s pool on %s", symbol, network)
	}
	return pool, nil
}

// Has reports whether a pool exists for the symbol on the network.
func (p *PoolRegistry) Has(symbol, network string) bool {
	_, err := p.Lookup(symbol, network)
	return err == nil
}
