// Package gateway defines the interfaces between the multi-chain tool
// surface and the per-network RPC clients. The concrete implementation
// lives in the evmrpc package; analytics, history, gas and arbitrage
// engines consume these interfaces so they can be exercised against
// mock chains in tests.
package gateway

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// CallMsg contains parameters for contract calls and gas estimation.
type CallMsg struct {
	From  common.Address  // the sender of the 'transaction'
	To    *common.Address // the destination contract (nil for creation)
	Gas   uint64          // if 0, the call executes with near-infinite gas
	Value *big.Int        // amount of wei sent along with the call
	Data  []byte          // input data, usually ABI-encoded
}

// Block is a read-side view of a block, carrying only the fields the
// gateway's analytics consume. Transactions is populated only when the
// block was fetched with full transaction bodies.
type Block struct {
	Number       uint64
	Hash         common.Hash
	ParentHash   common.Hash
	Timestamp    uint64
	GasUsed      uint64
	GasLimit     uint64
	BaseFee      *big.Int // nil on pre-EIP-1559 chains
	TxHashes     []common.Hash
	Transactions []*Transaction
}

// TxCount reports the number of transactions in the block regardless of
// whether bodies were requested.
func (b *Block) TxCount() int {
	if len(b.Transactions) > 0 {
		return len(b.Transactions)
	}
	return len(b.TxHashes)
}

// Transaction is a read-side view of a transaction. To is nil for
// contract deployments. BlockNumber is nil while the transaction is
// pending.
type Transaction struct {
	Hash        common.Hash
	From        common.Address
	To          *common.Address
	Value       *big.Int
	Gas         uint64
	GasPrice    *big.Int // effective price for legacy txs, nil for typed
	GasFeeCap   *big.Int // EIP-1559 max fee, nil for legacy
	GasTipCap   *big.Int // EIP-1559 priority fee, nil for legacy
	Input       []byte
	Nonce       uint64
	BlockNumber *uint64
	BlockHash   *common.Hash
}

// Receipt status values.
const (
	ReceiptStatusReverted = uint64(0)
	ReceiptStatusSuccess  = uint64(1)
)

// Receipt is a read-side view of a transaction receipt.
type Receipt struct {
	TxHash            common.Hash
	Status            uint64
	GasUsed           uint64
	CumulativeGasUsed uint64
	BlockNumber       uint64
	TxIndex           uint64
	ContractAddress   *common.Address // set for deployments
	Logs              []Log
	EffectiveGasPrice *big.Int
}

// Log is a read-side view of a contract event log.
type Log struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
	Index   uint64
}

// ChainReader provides access to blocks, transactions and receipts of a
// single chain. A nil block number selects the latest block. Reading
// header-level data should be preferred over full blocks whenever the
// transaction bodies are not needed.
type ChainReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number *big.Int, fullTxs bool) (*Block, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*Transaction, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*Receipt, error)
}

// StateReader wraps access to account state at the latest block.
type StateReader interface {
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	CodeAt(ctx context.Context, account common.Address) ([]byte, error)
	NonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// ContractCaller executes read-only contract calls against the latest
// block.
type ContractCaller interface {
	CallContract(ctx context.Context, msg CallMsg) ([]byte, error)
}

// GasEstimator provides node-side gas accounting.
type GasEstimator interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg CallMsg) (uint64, error)
}

// TxSender broadcasts signed, RLP-encoded transactions. Only the signer
// path uses it; every other component is read-only.
type TxSender interface {
	SendRawTransaction(ctx context.Context, encoded []byte) (common.Hash, error)
}

// Client is the full read surface of one network, the contract every
// per-network RPC client satisfies.
type Client interface {
	ChainReader
	StateReader
	ContractCaller
	GasEstimator
}

// ClientSource yields the client for a network short name. The node's
// client pool implements it; multi-network engines (comparison, arbitrage)
// consume it so tests can substitute per-network mocks.
type ClientSource interface {
	Client(ctx context.Context, network string) (Client, error)
}
