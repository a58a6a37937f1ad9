// Package signer holds the one key the gateway may spend from and the
// two write paths that use it: native transfers and contract
// deployments. Everything else in the gateway is read-only.
//
// Key material stays inside this package. Nothing here logs, formats,
// or returns a private key; errors carry at most the derived address.
package signer

import (
	"context"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha512"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"

	gateway "github.com/iotaevm/gateway"
	"github.com/iotaevm/gateway/log"
)

// TransferGasLimit is the fixed gas of a native-value transfer.
const TransferGasLimit = uint64(21000)

// Backend is the node surface a signing flow needs: nonce and gas
// discovery plus broadcast.
type Backend interface {
	NonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg gateway.CallMsg) (uint64, error)
	SendRawTransaction(ctx context.Context, encoded []byte) (common.Hash, error)
}

// Signer signs transactions with a single secp256k1 key.
type Signer struct {
	key  *ecdsa.PrivateKey
	addr common.Address
	log  *log.Logger
}

// FromMnemonic derives the signer key from a BIP-39 phrase at the
// conventional first external account, m/44'/60'/0'/0/0.
func FromMnemonic(mnemonic string) (*Signer, error) {
	mnemonic = strings.TrimSpace(mnemonic)
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, gateway.Validationf("mnemonic is not a valid BIP-39 phrase")
	}
	seed := bip39.NewSeed(mnemonic, "")
	key, err := deriveDefaultAccount(seed)
	if err != nil {
		return nil, err
	}
	return newSigner(key), nil
}

// FromHex builds the signer from a raw hex-encoded private key.
func FromHex(hexkey string) (*Signer, error) {
	hexkey = strings.TrimPrefix(strings.TrimSpace(hexkey), "0x")
	key, err := crypto.HexToECDSA(hexkey)
	if err != nil {
		return nil, gateway.Validationf("private key: %v", err)
	}
	return newSigner(key), nil
}

func newSigner(key *ecdsa.PrivateKey) *Signer {
	return &Signer{
		key:  key,
		addr: crypto.PubkeyToAddress(key.PublicKey),
		log:  log.Default().Module("signer"),
	}
}

// Address returns the account the signer spends from.
func (s *Signer) Address() common.Address {
	return s.addr
}

// Transfer signs and broadcasts a native-value transfer as an EIP-155
// legacy transaction, with the nonce and gas price taken from the node.
func (s *Signer) Transfer(ctx context.Context, backend Backend, chainID uint64, to common.Address, amountWei *big.Int) (common.Hash, error) {
	if amountWei == nil || amountWei.Sign() <= 0 {
		return common.Hash{}, gateway.Validationf("transfer amount must be positive")
	}
	nonce, err := backend.NonceAt(ctx, s.addr)
	if err != nil {
		return common.Hash{}, err
	}
	gasPrice, err := backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    amountWei,
		Gas:      TransferGasLimit,
		GasPrice: gasPrice,
	})
	hash, err := s.signAndSend(ctx, backend, chainID, tx)
	if err != nil {
		return common.Hash{}, err
	}
	s.log.Info("transfer submitted",
		"network_chain_id", chainID,
		"to", to.Hex(),
		"nonce", nonce,
		"tx", hash.Hex())
	return hash, nil
}

// DeployResult reports a broadcast contract-creation transaction. The
// contract address is the deterministic CREATE prediction from the
// sender and nonce; it is final once the transaction is mined.
type DeployResult struct {
	TxHash          common.Hash    `json:"txHash"`
	ContractAddress common.Address `json:"contractAddress"`
	From            common.Address `json:"from"`
	Nonce           uint64         `json:"nonce"`
	GasLimit        uint64         `json:"gasLimit"`
}

// Deploy signs and broadcasts a contract-creation transaction, sizing
// gas with the node's estimate.
func (s *Signer) Deploy(ctx context.Context, backend Backend, chainID uint64, bytecode []byte) (*DeployResult, error) {
	if len(bytecode) == 0 {
		return nil, gateway.Validationf("deployment bytecode is empty")
	}
	nonce, err := backend.NonceAt(ctx, s.addr)
	if err != nil {
		return nil, err
	}
	gasPrice, err := backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}
	gasLimit, err := backend.EstimateGas(ctx, gateway.CallMsg{From: s.addr, Data: bytecode})
	if err != nil {
		return nil, err
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		Value:    new(big.Int),
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     bytecode,
	})
	hash, err := s.signAndSend(ctx, backend, chainID, tx)
	if err != nil {
		return nil, err
	}
	res := &DeployResult{
		TxHash:          hash,
		ContractAddress: crypto.CreateAddress(s.addr, nonce),
		From:            s.addr,
		Nonce:           nonce,
		GasLimit:        gasLimit,
	}
	s.log.Info("deployment submitted",
		"network_chain_id", chainID,
		"contract", res.ContractAddress.Hex(),
		"nonce", nonce,
		"tx", hash.Hex())
	return res, nil
}

func (s *Signer) signAndSend(ctx context.Context, backend Backend, chainID uint64, tx *types.Transaction) (common.Hash, error) {
	signed, err := types.SignTx(tx, types.NewEIP155Signer(new(big.Int).SetUint64(chainID)), s.key)
	if err != nil {
		return common.Hash{}, gateway.Logicf("sign transaction: %v", err)
	}
	encoded, err := signed.MarshalBinary()
	if err != nil {
		return common.Hash{}, gateway.Logicf("encode transaction: %v", err)
	}
	return backend.SendRawTransaction(ctx, encoded)
}

// ---------------------------------------------------------------------------
// BIP-32 derivation
// ---------------------------------------------------------------------------

const hardenedOffset = uint32(0x80000000)

// defaultAccountPath is m/44'/60'/0'/0/0.
var defaultAccountPath = [5]uint32{
	hardenedOffset + 44,
	hardenedOffset + 60,
	hardenedOffset + 0,
	0,
	0,
}

func deriveDefaultAccount(seed []byte) (*ecdsa.PrivateKey, error) {
	key, chain := masterKey(seed)
	for _, index := range defaultAccountPath {
		var err error
		key, chain, err = childKey(key, chain, index)
		if err != nil {
			return nil, err
		}
	}
	priv, err := crypto.ToECDSA(key)
	if err != nil {
		return nil, gateway.Logicf("derived key rejected by curve: %v", err)
	}
	return priv, nil
}

func masterKey(seed []byte) (key, chain []byte) {
	mac := hmac.New(sha512.New, []byte("Bitcoin seed"))
	mac.Write(seed)
	sum := mac.Sum(nil)
	return sum[:32], sum[32:]
}

// childKey applies one CKDpriv step. The out-of-range cases BIP-32 tells
// wallets to skip have probability ~2^-127; with a fixed path they are
// reported as errors instead.
func childKey(key, chain []byte, index uint32) ([]byte, []byte, error) {
	var data []byte
	if index >= hardenedOffset {
		data = append([]byte{0x00}, key...)
	} else {
		priv, err := crypto.ToECDSA(key)
		if err != nil {
			return nil, nil, gateway.Logicf("derive child %d: %v", index, err)
		}
		data = crypto.CompressPubkey(&priv.PublicKey)
	}
	data = append(data, byte(index>>24), byte(index>>16), byte(index>>8), byte(index))

	mac := hmac.New(sha512.New, chain)
	mac.Write(data)
	sum := mac.Sum(nil)

	n := crypto.S256().Params().N
	il := new(big.Int).SetBytes(sum[:32])
	if il.Cmp(n) >= 0 {
		return nil, nil, gateway.Logicf("derive child %d: factor out of range", index)
	}
	child := new(big.Int).Add(il, new(big.Int).SetBytes(key))
	child.Mod(child, n)
	if child.Sign() == 0 {
		return nil, nil, gateway.Logicf("derive child %d: zero key", index)
	}

	out := make([]byte, 32)
	child.FillBytes(out)
	return out, sum[32:], nil
}
