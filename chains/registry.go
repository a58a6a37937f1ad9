// Package chains holds the network registry for the gateway: the static
// table of supported EVM networks, the closed sibling family the IOTA EVM
// deployment belongs to, and helpers for formatting native-token amounts.
package chains

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	gateway "github.com/iotaevm/gateway"
)

// SiblingVariant classifies a network's place in the sibling family.
type SiblingVariant string

const (
	// VariantMainnet is the primary sibling mainnet.
	VariantMainnet SiblingVariant = "mainnet"
	// VariantAltMainnet is the alternative sibling mainnet.
	VariantAltMainnet SiblingVariant = "alt-mainnet"
	// VariantTestnet is the sibling test network.
	VariantTestnet SiblingVariant = "testnet"
	// VariantNone marks networks outside the sibling family.
	VariantNone SiblingVariant = "none"
)

// NativeToken describes a chain's native currency.
type NativeToken struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// NetworkDescriptor is the immutable record for one supported network.
type NetworkDescriptor struct {
	ShortName       string         `json:"shortName"`
	ChainID         uint64         `json:"chainId"`
	DisplayName     string         `json:"displayName"`
	NativeToken     NativeToken    `json:"nativeToken"`
	DefaultRPCURL   string         `json:"defaultRpcUrl"`
	ExplorerURL     string         `json:"explorerUrl"`
	IsSiblingFamily bool           `json:"isSiblingFamily"`
	SiblingVariant  SiblingVariant `json:"siblingVariant"`
}

// String implements fmt.Stringer.
func (d NetworkDescriptor) String() string {
	return fmt.Sprintf("%s (chain %d)", d.ShortName, d.ChainID)
}

// Registry resolves network short names and chain ids to descriptors. It is
// built once at startup from the built-in table and is immutable afterwards,
// so it may be read concurrently without locking.
type Registry struct {
	byName  map[string]NetworkDescriptor
	byID    map[uint64]NetworkDescriptor
	ordered []NetworkDescriptor // sorted by chain id
	primary NetworkDescriptor
}

// NewRegistry builds the registry from the built-in network table.
// rpcOverrides replaces a network's RPC URL, keyed by short name; naming a
// network that is not in the table is a configuration error.
func NewRegistry(rpcOverrides map[string]string) (*Registry, error) {
	networks := builtinNetworks()

	for name, url := range rpcOverrides {
		if url == "" {
			continue
		}
		idx := -1
		for i := range networks {
			if networks[i].ShortName == strings.ToLower(name) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, gateway.Validationf("rpc override for unknown network %q", name)
		}
		networks[idx].DefaultRPCURL = url
	}

	r := &Registry{
		byName: make(map[string]NetworkDescriptor, len(networks)),
		byID:   make(map[uint64]NetworkDescriptor, len(networks)),
	}
	for _, d := range networks {
		if err := validateDescriptor(d); err != nil {
			return nil, err
		}
		if _, dup := r.byName[d.ShortName]; dup {
			return nil, fmt.Errorf("chains: duplicate network name %q", d.ShortName)
		}
		if _, dup := r.byID[d.ChainID]; dup {
			return nil, fmt.Errorf("chains: duplicate chain id %d", d.ChainID)
		}
		r.byName[d.ShortName] = d
		r.byID[d.ChainID] = d
	}

	r.ordered = append(r.ordered, networks...)
	sort.Slice(r.ordered, func(i, j int) bool {
		return r.ordered[i].ChainID < r.ordered[j].ChainID
	})

	primary, ok := r.byName[NetworkIOTA]
	if !ok {
		return nil, fmt.Errorf("chains: primary network %q missing from table", NetworkIOTA)
	}
	r.primary = primary
	return r, nil
}

// validateDescriptor checks the table entry against the sibling invariants.
func validateDescriptor(d NetworkDescriptor) error {
	if d.ShortName == "" || d.ChainID == 0 {
		return fmt.Errorf("chains: incomplete descriptor %+v", d)
	}
	if d.ShortName != strings.ToLower(d.ShortName) {
		return fmt.Errorf("chains: network name %q must be lowercase", d.ShortName)
	}
	inSet := isSiblingName(d.ShortName) || isSiblingChainID(d.ChainID)
	if d.IsSiblingFamily != inSet {
		return fmt.Errorf("chains: network %q sibling flag disagrees with the closed set", d.ShortName)
	}
	if d.IsSiblingFamily {
		if d.NativeToken.Decimals != SiblingDecimals {
			return fmt.Errorf("chains: sibling network %q must use %d decimals, has %d",
				d.ShortName, SiblingDecimals, d.NativeToken.Decimals)
		}
		if d.SiblingVariant == VariantNone {
			return fmt.Errorf("chains: sibling network %q missing variant", d.ShortName)
		}
	} else if d.SiblingVariant != VariantNone {
		return fmt.Errorf("chains: non-sibling network %q carries variant %q", d.ShortName, d.SiblingVariant)
	}
	return nil
}

// ResolveName looks up a network by short name, case-insensitively.
func (r *Registry) ResolveName(name string) (NetworkDescriptor, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	d, ok := r.byName[key]
	if !ok {
		return NetworkDescriptor{}, gateway.NotFoundf("network %q", name)
	}
	return d, nil
}

// ResolveChainID looks up a network by numeric chain id.
func (r *Registry) ResolveChainID(id uint64) (NetworkDescriptor, error) {
	d, ok := r.byID[id]
	if !ok {
		return NetworkDescriptor{}, gateway.NotFoundf("chain id %d", id)
	}
	return d, nil
}

// Resolve accepts either a short name or a decimal chain id.
func (r *Registry) Resolve(ref string) (NetworkDescriptor, error) {
	if d, err := r.ResolveName(ref); err == nil {
		return d, nil
	}
	if id, err := strconv.ParseUint(strings.TrimSpace(ref), 10, 64); err == nil {
		return r.ResolveChainID(id)
	}
	return NetworkDescriptor{}, gateway.NotFoundf("network %q", ref)
}

// ResolveSibling resolves ref and additionally requires it to belong to the
// sibling family. A known non-sibling network is a validation error, not a
// lookup failure.
func (r *Registry) ResolveSibling(ref string) (NetworkDescriptor, error) {
	d, err := r.Resolve(ref)
	if err != nil {
		return NetworkDescriptor{}, err
	}
	if !d.IsSiblingFamily {
		return NetworkDescriptor{}, gateway.Validationf("network %q is outside the sibling family", d.ShortName)
	}
	return d, nil
}

// List returns every descriptor sorted by chain id.
func (r *Registry) List() []NetworkDescriptor {
	out := make([]NetworkDescriptor, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Siblings returns the sibling-family descriptors sorted by chain id.
func (r *Registry) Siblings() []NetworkDescriptor {
	out := make([]NetworkDescriptor, 0, 3)
	for _, d := range r.ordered {
		if d.IsSiblingFamily {
			out = append(out, d)
		}
	}
	return out
}

// Names returns all short names in sorted order. The tool layer uses this
// for enum schemas and error messages.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsSibling reports whether ref (name or decimal chain id) belongs to the
// closed sibling set. It is total: unknown refs are simply not siblings.
func (r *Registry) IsSibling(ref string) bool {
	key := strings.ToLower(strings.TrimSpace(ref))
	if isSiblingName(key) {
		return true
	}
	if id, err := strconv.ParseUint(key, 10, 64); err == nil {
		return isSiblingChainID(id)
	}
	return false
}

// IsSiblingID reports whether the chain id belongs to the closed sibling set.
func (r *Registry) IsSiblingID(id uint64) bool {
	return isSiblingChainID(id)
}

// Primary returns the descriptor resource aliases default to.
func (r *Registry) Primary() NetworkDescriptor {
	return r.primary
}
