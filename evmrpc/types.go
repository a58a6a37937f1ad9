package evmrpc

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	gateway "github.com/iotaevm/gateway"
)

// Raw wire shapes. Every field arrives hex-encoded; the converters below
// translate them into the gateway's read-side types.

type rpcBlock struct {
	Number       *hexutil.Big      `json:"number"`
	Hash         common.Hash       `json:"hash"`
	ParentHash   common.Hash       `json:"parentHash"`
	Timestamp    hexutil.Uint64    `json:"timestamp"`
	GasUsed      hexutil.Uint64    `json:"gasUsed"`
	GasLimit     hexutil.Uint64    `json:"gasLimit"`
	BaseFee      *hexutil.Big      `json:"baseFeePerGas"`
	Transactions []json.RawMessage `json:"transactions"`
}

type rpcTransaction struct {
	Hash        common.Hash     `json:"hash"`
	From        common.Address  `json:"from"`
	To          *common.Address `json:"to"`
	Value       *hexutil.Big    `json:"value"`
	Gas         hexutil.Uint64  `json:"gas"`
	GasPrice    *hexutil.Big    `json:"gasPrice"`
	GasFeeCap   *hexutil.Big    `json:"maxFeePerGas"`
	GasTipCap   *hexutil.Big    `json:"maxPriorityFeePerGas"`
	Input       hexutil.Bytes   `json:"input"`
	Nonce       hexutil.Uint64  `json:"nonce"`
	BlockNumber *hexutil.Big    `json:"blockNumber"` // null while pending
	BlockHash   *common.Hash    `json:"blockHash"`
}

type rpcReceipt struct {
	TxHash            common.Hash     `json:"transactionHash"`
	Status            hexutil.Uint64  `json:"status"`
	GasUsed           hexutil.Uint64  `json:"gasUsed"`
	CumulativeGasUsed hexutil.Uint64  `json:"cumulativeGasUsed"`
	BlockNumber       *hexutil.Big    `json:"blockNumber"`
	TxIndex           hexutil.Uint64  `json:"transactionIndex"`
	ContractAddress   *common.Address `json:"contractAddress"`
	Logs              []rpcLog        `json:"logs"`
	EffectiveGasPrice *hexutil.Big    `json:"effectiveGasPrice"`
}

type rpcLog struct {
	Address common.Address `json:"address"`
	Topics  []common.Hash  `json:"topics"`
	Data    hexutil.Bytes  `json:"data"`
	Index   hexutil.Uint64 `json:"logIndex"`
}

// bigFromHex converts an optional hex quantity, nil staying nil.
func bigFromHex(value *hexutil.Big) *big.Int {
	if value == nil {
		return nil
	}
	return (*big.Int)(value)
}

func (rb *rpcBlock) toBlock(fullTxs bool) (*gateway.Block, error) {
	b := &gateway.Block{
		Hash:       rb.Hash,
		ParentHash: rb.ParentHash,
		Timestamp:  uint64(rb.Timestamp),
		GasUsed:    uint64(rb.GasUsed),
		GasLimit:   uint64(rb.GasLimit),
		BaseFee:    bigFromHex(rb.BaseFee),
	}
	if rb.Number != nil {
		b.Number = (*big.Int)(rb.Number).Uint64()
	}

	// The transactions array holds plain hash strings or full objects
	// depending on how the block was requested.
	for _, raw := range rb.Transactions {
		if fullTxs {
			var rt rpcTransaction
			if err := json.Unmarshal(raw, &rt); err != nil {
				return nil, gateway.Upstreamf(err, "decode block transaction")
			}
			b.Transactions = append(b.Transactions, rt.toTransaction())
			b.TxHashes = append(b.TxHashes, rt.Hash)
			continue
		}
		var h common.Hash
		if err := json.Unmarshal(raw, &h); err != nil {
			return nil, gateway.Upstreamf(err, "decode block transaction hash")
		}
		b.TxHashes = append(b.TxHashes, h)
	}
	return b, nil
}

func (rt *rpcTransaction) toTransaction() *gateway.Transaction {
	tx := &gateway.Transaction{
		Hash:      rt.Hash,
		From:      rt.From,
		To:        rt.To,
		Value:     bigFromHex(rt.Value),
		Gas:       uint64(rt.Gas),
		GasPrice:  bigFromHex(rt.GasPrice),
		GasFeeCap: bigFromHex(rt.GasFeeCap),
		GasTipCap: bigFromHex(rt.GasTipCap),
		Input:     rt.Input,
		Nonce:     uint64(rt.Nonce),
		BlockHash: rt.BlockHash,
	}
	if rt.BlockNumber != nil {
		n := (*big.Int)(rt.BlockNumber).Uint64()
		tx.BlockNumber = &n
	}
	return tx
}

func (rr *rpcReceipt) toReceipt() *gateway.Receipt {
	r := &gateway.Receipt{
		TxHash:            rr.TxHash,
		Status:            uint64(rr.Status),
		GasUsed:           uint64(rr.GasUsed),
		CumulativeGasUsed: uint64(rr.CumulativeGasUsed),
		TxIndex:           uint64(rr.TxIndex),
		ContractAddress:   rr.ContractAddress,
		EffectiveGasPrice: bigFromHex(rr.EffectiveGasPrice),
	}
	if rr.BlockNumber != nil {
		r.BlockNumber = (*big.Int)(rr.BlockNumber).Uint64()
	}
	for _, l := range rr.Logs {
		r.Logs = append(r.Logs, gateway.Log{
			Address: l.Address,
			Topics:  l.Topics,
			Data:    l.Data,
			Index:   uint64(l.Index),
		})
	}
	return r
}
