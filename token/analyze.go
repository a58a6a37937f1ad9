package token

import (
	"bytes"
	"context"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	gateway "github.com/iotaevm/gateway"
)

// SecurityFlags are heuristic indicators derived from a substring scan of
// the deployed bytecode. They flag the presence of opcode or selector
// families, not exploitable behavior; absence of a flag proves nothing.
type SecurityFlags struct {
	// ExternalCalls reports CALL or STATICCALL opcodes in the bytecode.
	ExternalCalls bool `json:"externalCalls"`

	// SelfDestruct reports the SELFDESTRUCT opcode.
	SelfDestruct bool `json:"selfDestruct"`

	// RawSendTransfer reports the 2300-gas-stipend pattern that Solidity
	// emits for address.send and address.transfer.
	RawSendTransfer bool `json:"rawSendTransfer"`

	// DelegateCall reports the DELEGATECALL opcode.
	DelegateCall bool `json:"delegatecall"`
}

// Analysis is the result of classifying a contract against the recognized
// standards.
type Analysis struct {
	Address    common.Address `json:"address"`
	IsContract bool           `json:"isContract"`
	Implements []Standard     `json:"implements"`
	Functions  []string       `json:"functions"`
	Events     []string       `json:"events"`
	Security   SecurityFlags  `json:"security"`
}

// EVM opcode bytes the security scan looks for.
const (
	opCall         = 0xf1
	opDelegateCall = 0xf4
	opStaticCall   = 0xfa
	opSelfDestruct = 0xff
)

// sendStipendPattern is PUSH2 0x08fc, the 2300 gas stipend Solidity
// hardcodes for send/transfer.
var sendStipendPattern = []byte{0x61, 0x08, 0xfc}

// Analyze fetches the bytecode at addr and classifies the contract against
// the declared ABI. An address without bytecode yields IsContract=false and
// empty sets rather than an error. A malformed ABI is a validation error.
func Analyze(ctx context.Context, reader gateway.StateReader, addr common.Address, abiJSON string) (*Analysis, error) {
	code, err := reader.CodeAt(ctx, addr)
	if err != nil {
		return nil, err
	}

	a := &Analysis{
		Address:    addr,
		Implements: []Standard{},
		Functions:  []string{},
		Events:     []string{},
	}
	if len(code) == 0 {
		return a, nil
	}
	a.IsContract = true
	a.Security = scanBytecode(code)

	if strings.TrimSpace(abiJSON) == "" {
		return a, nil
	}
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, gateway.Validationf("malformed abi: %v", err)
	}

	declared := make(map[[4]byte]struct{}, len(parsed.Methods))
	for _, m := range parsed.Methods {
		a.Functions = append(a.Functions, m.Name)
		var sel [4]byte
		copy(sel[:], m.ID)
		declared[sel] = struct{}{}
	}
	for _, e := range parsed.Events {
		a.Events = append(a.Events, e.Name)
	}
	sort.Strings(a.Functions)
	sort.Strings(a.Events)

	for _, std := range Standards() {
		if implementsStandard(declared, std) {
			a.Implements = append(a.Implements, std)
		}
	}
	return a, nil
}

// implementsStandard reports whether every required selector of the
// standard appears in the declared set.
func implementsStandard(declared map[[4]byte]struct{}, std Standard) bool {
	for _, sig := range standardSignatures[std] {
		if _, ok := declared[Selector(sig)]; !ok {
			return false
		}
	}
	return true
}

// scanBytecode derives the security flags from raw bytecode. The scan is a
// plain byte search, so opcode bytes embedded in constants can produce
// false positives.
func scanBytecode(code []byte) SecurityFlags {
	return SecurityFlags{
		ExternalCalls:   bytes.IndexByte(code, opCall) >= 0 || bytes.IndexByte(code, opStaticCall) >= 0,
		SelfDestruct:    bytes.IndexByte(code, opSelfDestruct) >= 0,
		RawSendTransfer: bytes.Contains(code, sendStipendPattern),
		DelegateCall:    bytes.IndexByte(code, opDelegateCall) >= 0,
	}
}
