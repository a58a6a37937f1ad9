// Package token reads fungible-token metadata and classifies contracts
// against the standard interface sets. It issues read-only calls through
// the gateway interfaces; it never signs or sends anything.
package token

import (
	"context"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	gateway "github.com/iotaevm/gateway"
	"github.com/iotaevm/gateway/chains"
)

// erc20MetadataABI is the minimal ABI for the four standard view getters.
const erc20MetadataABI = `[
	{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

var erc20ABI = mustParseABI(erc20MetadataABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("token: bad built-in abi: " + err.Error())
	}
	return parsed
}

// Defaults applied when a metadata getter fails. Tokens that return bytes32
// names, revert on optional getters, or predate the metadata extension all
// land here.
const (
	DefaultName     = "Unknown"
	DefaultSymbol   = "Unknown"
	DefaultDecimals = uint8(18)
)

// TokenInfo is the decoded metadata of a fungible token.
type TokenInfo struct {
	Address     common.Address `json:"address"`
	Name        string         `json:"name"`
	Symbol      string         `json:"symbol"`
	Decimals    uint8          `json:"decimals"`
	TotalSupply string         `json:"totalSupply"` // decimal string, "0" when unknown

	// Partial reports that at least one getter failed and its default was
	// applied.
	Partial bool `json:"partial,omitempty"`
}

// ReadTokenInfo fetches name, symbol, decimals and totalSupply from the
// contract concurrently. A getter that fails contributes its default value
// and flips Partial; only context cancellation aborts the whole read.
func ReadTokenInfo(ctx context.Context, caller gateway.ContractCaller, addr common.Address) (*TokenInfo, error) {
	info := &TokenInfo{
		Address:     addr,
		Name:        DefaultName,
		Symbol:      DefaultSymbol,
		Decimals:    DefaultDecimals,
		TotalSupply: "0",
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		partial bool
	)
	get := func(method string, assign func(vals []interface{}) bool) {
		defer wg.Done()
		data, err := erc20ABI.Pack(method)
		if err != nil {
			mu.Lock()
			partial = true
			mu.Unlock()
			return
		}
		out, err := caller.CallContract(ctx, gateway.CallMsg{To: &addr, Data: data})
		if err != nil || len(out) == 0 {
			mu.Lock()
			partial = true
			mu.Unlock()
			return
		}
		vals, err := erc20ABI.Unpack(method, out)
		mu.Lock()
		if err != nil || !assign(vals) {
			partial = true
		}
		mu.Unlock()
	}

	wg.Add(4)
	go get("name", func(vals []interface{}) bool {
		s, ok := vals[0].(string)
		if ok && s != "" {
			info.Name = s
		}
		return ok
	})
	go get("symbol", func(vals []interface{}) bool {
		s, ok := vals[0].(string)
		if ok && s != "" {
			info.Symbol = s
		}
		return ok
	})
	go get("decimals", func(vals []interface{}) bool {
		d, ok := vals[0].(uint8)
		if ok {
			info.Decimals = d
		}
		return ok
	})
	go get("totalSupply", func(vals []interface{}) bool {
		ts, ok := vals[0].(*big.Int)
		if ok && ts != nil {
			info.TotalSupply = ts.String()
		}
		return ok
	})
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, gateway.Upstreamf(err, "read token metadata %s", addr.Hex())
	}
	info.Partial = partial
	return info, nil
}

// wrapperAddresses holds the canonical wrapped-native-token deployments on
// the sibling networks. Extending the table is a code change.
var wrapperAddresses = map[string]common.Address{
	chains.NetworkIOTA:        common.HexToAddress("0x6e47f8d48a01b44DF3fFF35d258A10A3AEdC114c"),
	chains.NetworkShimmer:     common.HexToAddress("0xBEb654A116aeEf764988DF0C6B4bf67CC869D01b"),
	chains.NetworkIOTATestnet: common.HexToAddress("0xB2E0DfC4820cc55829C71529598530E177968613"),
}

// WrapperAddress returns the wrapped-native-token contract for a sibling
// network, if one is registered.
func WrapperAddress(network string) (common.Address, bool) {
	addr, ok := wrapperAddresses[network]
	return addr, ok
}

// NativeTokenInfo describes the native token of a network. On the sibling
// family it reads the wrapped-native contract; when that reverts or is not
// deployed, the registry-declared descriptor stands in, so balance queries
// stay meaningful even with the wrapper unreachable.
func NativeTokenInfo(ctx context.Context, caller gateway.ContractCaller, d chains.NetworkDescriptor) *TokenInfo {
	if d.IsSiblingFamily {
		if addr, ok := WrapperAddress(d.ShortName); ok {
			info, err := ReadTokenInfo(ctx, caller, addr)
			if err == nil && !info.Partial {
				return info
			}
		}
	}
	return &TokenInfo{
		Name:        d.NativeToken.Name,
		Symbol:      d.NativeToken.Symbol,
		Decimals:    d.NativeToken.Decimals,
		TotalSupply: "0",
	}
}
