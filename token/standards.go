package token

import (
	"sort"

	"golang.org/x/crypto/sha3"
)

// Standard identifies a recognized contract interface standard.
type Standard string

// The closed set of standards the analyzer recognizes. A contract
// implements a standard iff its declared ABI covers every selector in the
// standard's signature set.
const (
	StandardERC20   Standard = "ERC20"
	StandardERC721  Standard = "ERC721"
	StandardERC1155 Standard = "ERC1155"
	StandardERC4626 Standard = "ERC4626"
	StandardEIP2612 Standard = "EIP2612"
	StandardOwnable Standard = "Ownable"
	StandardPausable Standard = "Pausable"
)

// standardSignatures maps each standard to the canonical function
// signatures a conforming contract must expose.
var standardSignatures = map[Standard][]string{
	StandardERC20: {
		"totalSupply()",
		"balanceOf(address)",
		"transfer(address,uint256)",
		"transferFrom(address,address,uint256)",
		"approve(address,uint256)",
		"allowance(address,address)",
	},
	StandardERC721: {
		"balanceOf(address)",
		"ownerOf(uint256)",
		"safeTransferFrom(address,address,uint256)",
		"transferFrom(address,address,uint256)",
		"approve(address,uint256)",
		"getApproved(uint256)",
		"setApprovalForAll(address,bool)",
		"isApprovedForAll(address,address)",
	},
	StandardERC1155: {
		"balanceOf(address,uint256)",
		"balanceOfBatch(address[],uint256[])",
		"setApprovalForAll(address,bool)",
		"isApprovedForAll(address,address)",
		"safeTransferFrom(address,address,uint256,uint256,bytes)",
		"safeBatchTransferFrom(address,address,uint256[],uint256[],bytes)",
	},
	StandardERC4626: {
		"asset()",
		"totalAssets()",
		"convertToShares(uint256)",
		"convertToAssets(uint256)",
		"deposit(uint256,address)",
		"mint(uint256,address)",
		"withdraw(uint256,address,address)",
		"redeem(uint256,address,address)",
	},
	StandardEIP2612: {
		"permit(address,address,uint256,uint256,uint8,bytes32,bytes32)",
		"nonces(address)",
		"DOMAIN_SEPARATOR()",
	},
	StandardOwnable: {
		"owner()",
		"transferOwnership(address)",
	},
	StandardPausable: {
		"paused()",
	},
}

// Selector returns the 4-byte function selector for a canonical signature
// such as "transfer(address,uint256)".
func Selector(signature string) [4]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signature))
	var sel [4]byte
	copy(sel[:], h.Sum(nil))
	return sel
}

// Standards returns the recognized standards in a stable order.
func Standards() []Standard {
	out := make([]Standard, 0, len(standardSignatures))
	for s := range standardSignatures {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RequiredSignatures returns the signature set of a standard; nil for an
// unrecognized one.
func RequiredSignatures(s Standard) []string {
	sigs, ok := standardSignatures[s]
	if !ok {
		return nil
	}
	out := make([]string, len(sigs))
	copy(out, sigs)
	return out
}
