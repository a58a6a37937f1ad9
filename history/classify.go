package history

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/iotaevm/gateway/token"
)

// Transaction labels, ordered from most to least specific. Classify
// returns the first matching row.
const (
	LabelNativeTransfer      = "Native Token Transfer"
	LabelERC20Transfer       = "ERC20 Transfer"
	LabelTokenApproval       = "Token Approval"
	LabelERC721Transfer      = "ERC721 Transfer"
	LabelERC1155Transfer     = "ERC1155 Transfer"
	LabelContractDeployment  = "Contract Deployment"
	LabelContractInteraction = "Contract Interaction"
)

var (
	selERC20Transfer   = token.Selector("transfer(address,uint256)")
	selERC20Approve    = token.Selector("approve(address,uint256)")
	selERC721Transfer  = token.Selector("transferFrom(address,address,uint256)")
	selERC1155Transfer = token.Selector("safeTransferFrom(address,address,uint256,uint256,bytes)")
)

// Classify labels a transaction from its input data and destination.
// Selector rows win over the deployment row, so deployment bytecode that
// happens to start with a known selector keeps the selector label.
func Classify(input []byte, to *common.Address) string {
	if len(input) == 0 || (len(input) == 1 && input[0] == 0) {
		return LabelNativeTransfer
	}
	if len(input) >= 4 {
		var sel [4]byte
		copy(sel[:], input[:4])
		switch sel {
		case selERC20Transfer:
			return LabelERC20Transfer
		case selERC20Approve:
			return LabelTokenApproval
		case selERC721Transfer:
			return LabelERC721Transfer
		case selERC1155Transfer:
			return LabelERC1155Transfer
		}
	}
	if to == nil {
		return LabelContractDeployment
	}
	return LabelContractInteraction
}

// GasEfficiency buckets a gas used/limit ratio. A zero limit has no
// meaningful ratio and reports "Unknown".
func GasEfficiency(used, limit uint64) string {
	if limit == 0 {
		return "Unknown"
	}
	pct := float64(used) / float64(limit) * 100
	switch {
	case pct < 60:
		return "Excellent"
	case pct < 80:
		return "Good"
	case pct < 95:
		return "Fair"
	default:
		return "Poor"
	}
}

// FormatAge renders an age in the largest whole unit: seconds, minutes,
// hours or days. Negative ages (clock skew) clamp to zero.
func FormatAge(age time.Duration) string {
	secs := int64(age.Seconds())
	if secs < 0 {
		secs = 0
	}
	n, unit := secs, "second"
	switch {
	case secs >= 86400:
		n, unit = secs/86400, "day"
	case secs >= 3600:
		n, unit = secs/3600, "hour"
	case secs >= 60:
		n, unit = secs/60, "minute"
	}
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

// Confirmations counts blocks mined on top of the receipt's block. A
// receipt ahead of the observed head (race between calls) reports zero.
func Confirmations(latest, receiptBlock uint64) uint64 {
	if latest < receiptBlock {
		return 0
	}
	return latest - receiptBlock
}
