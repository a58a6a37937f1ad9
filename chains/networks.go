package chains

// Short names of the sibling family. The set is closed: extending it is a
// code change, never a runtime condition.
const (
	NetworkIOTA        = "iota"
	NetworkShimmer     = "shimmer"
	NetworkIOTATestnet = "iota-testnet"
)

// Chain ids of the sibling family.
const (
	ChainIDIOTA        uint64 = 8822
	ChainIDShimmer     uint64 = 148
	ChainIDIOTATestnet uint64 = 1075
)

// SiblingDecimals is the native-token precision shared by the whole family.
// The base layer accounts in 6 decimals and the EVM deployment keeps that
// unit rather than adopting the 18-decimal EVM convention.
const SiblingDecimals uint8 = 6

func isSiblingName(name string) bool {
	switch name {
	case NetworkIOTA, NetworkShimmer, NetworkIOTATestnet:
		return true
	}
	return false
}

func isSiblingChainID(id uint64) bool {
	switch id {
	case ChainIDIOTA, ChainIDShimmer, ChainIDIOTATestnet:
		return true
	}
	return false
}

// builtinNetworks returns a fresh copy of the static network table. Callers
// may patch RPC URLs before handing the slice to the registry.
func builtinNetworks() []NetworkDescriptor {
	return []NetworkDescriptor{
		{
			ShortName:   NetworkIOTA,
			ChainID:     ChainIDIOTA,
			DisplayName: "IOTA EVM",
			NativeToken: NativeToken{
				Name:     "IOTA",
				Symbol:   "IOTA",
				Decimals: SiblingDecimals,
			},
			DefaultRPCURL:   "https://json-rpc.evm.iotaledger.net",
			ExplorerURL:     "https://explorer.evm.iota.org",
			IsSiblingFamily: true,
			SiblingVariant:  VariantMainnet,
		},
		{
			ShortName:   NetworkShimmer,
			ChainID:     ChainIDShimmer,
			DisplayName: "Shimmer EVM",
			NativeToken: NativeToken{
				Name:     "Shimmer",
				Symbol:   "SMR",
				Decimals: SiblingDecimals,
			},
			DefaultRPCURL:   "https://json-rpc.evm.shimmer.network",
			ExplorerURL:     "https://explorer.evm.shimmer.network",
			IsSiblingFamily: true,
			SiblingVariant:  VariantAltMainnet,
		},
		{
			ShortName:   NetworkIOTATestnet,
			ChainID:     ChainIDIOTATestnet,
			DisplayName: "IOTA EVM Testnet",
			NativeToken: NativeToken{
				Name:     "IOTA",
				Symbol:   "IOTA",
				Decimals: SiblingDecimals,
			},
			DefaultRPCURL:   "https://json-rpc.evm.testnet.iotaledger.net",
			ExplorerURL:     "https://explorer.evm.testnet.iotaledger.net",
			IsSiblingFamily: true,
			SiblingVariant:  VariantTestnet,
		},
		{
			ShortName:   "ethereum",
			ChainID:     1,
			DisplayName: "Ethereum Mainnet",
			NativeToken: NativeToken{
				Name:     "Ether",
				Symbol:   "ETH",
				Decimals: 18,
			},
			DefaultRPCURL:  "https://ethereum-rpc.publicnode.com",
			ExplorerURL:    "https://etherscan.io",
			SiblingVariant: VariantNone,
		},
		{
			ShortName:   "bsc",
			ChainID:     56,
			DisplayName: "BNB Smart Chain",
			NativeToken: NativeToken{
				Name:     "BNB",
				Symbol:   "BNB",
				Decimals: 18,
			},
			DefaultRPCURL:  "https://bsc-dataseed.binance.org",
			ExplorerURL:    "https://bscscan.com",
			SiblingVariant: VariantNone,
		},
		{
			ShortName:   "polygon",
			ChainID:     137,
			DisplayName: "Polygon",
			NativeToken: NativeToken{
				Name:     "POL",
				Symbol:   "POL",
				Decimals: 18,
			},
			DefaultRPCURL:  "https://polygon-rpc.com",
			ExplorerURL:    "https://polygonscan.com",
			SiblingVariant: VariantNone,
		},
		{
			ShortName:   "base",
			ChainID:     8453,
			DisplayName: "Base",
			NativeToken: NativeToken{
				Name:     "Ether",
				Symbol:   "ETH",
				Decimals: 18,
			},
			DefaultRPCURL:  "https://mainnet.base.org",
			ExplorerURL:    "https://basescan.org",
			SiblingVariant: VariantNone,
		},
		{
			ShortName:   "arbitrum",
			ChainID:     42161,
			DisplayName: "Arbitrum One",
			NativeToken: NativeToken{
				Name:     "Ether",
				Symbol:   "ETH",
				Decimals: 18,
			},
			DefaultRPCURL:  "https://arb1.arbitrum.io/rpc",
			ExplorerURL:    "https://arbiscan.io",
			SiblingVariant: VariantNone,
		},
		{
			ShortName:   "avalanche",
			ChainID:     43114,
			DisplayName: "Avalanche C-Chain",
			NativeToken: NativeToken{
				Name:     "Avalanche",
				Symbol:   "AVAX",
				Decimals: 18,
			},
			DefaultRPCURL:  "https://api.avax.network/ext/bc/C/rpc",
			ExplorerURL:    "https://snowtrace.io",
			SiblingVariant: VariantNone,
		},
	}
}
