// Package evmrpc wraps go-ethereum's rpc.Client with the typed read surface
// the gateway needs. It is the only package that speaks raw JSON-RPC; every
// other component consumes the gateway interfaces this client implements.
//
// The facade performs no retries. Transient transport failures surface as
// upstream errors and retry policy stays with the caller.
package evmrpc

import (
	"context"
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	gateway "github.com/iotaevm/gateway"
)

// Client is a typed JSON-RPC client for one EVM network.
type Client struct {
	c *rpc.Client
}

// Compile-time interface checks against the gateway surfaces.
var (
	_ gateway.ChainReader    = (*Client)(nil)
	_ gateway.StateReader    = (*Client)(nil)
	_ gateway.ContractCaller = (*Client)(nil)
	_ gateway.GasEstimator   = (*Client)(nil)
	_ gateway.TxSender       = (*Client)(nil)
	_ gateway.Client         = (*Client)(nil)
)

// Dial connects to an RPC endpoint with the given options.
func Dial(ctx context.Context, rawurl string, opts ...Option) (*Client, error) {
	dc := dialConfig{}
	for _, o := range opts {
		o(&dc)
	}
	rpcOpts, err := dc.clientOptions()
	if err != nil {
		return nil, err
	}
	c, err := rpc.DialOptions(ctx, rawurl, rpcOpts...)
	if err != nil {
		return nil, gateway.Upstreamf(err, "dial rpc endpoint")
	}
	return NewClient(c), nil
}

// NewClient creates a client that uses the given RPC client.
func NewClient(c *rpc.Client) *Client {
	return &Client{c}
}

// Close tears down the underlying connection.
func (ec *Client) Close() {
	ec.c.Close()
}

// ---------------------------------------------------------------------------
// Chain reads
// ---------------------------------------------------------------------------

// ChainID retrieves the chain id the endpoint reports.
func (ec *Client) ChainID(ctx context.Context) (*big.Int, error) {
	var result hexutil.Big
	if err := ec.c.CallContext(ctx, &result, "eth_chainId"); err != nil {
		return nil, gateway.Upstreamf(err, "eth_chainId")
	}
	return (*big.Int)(&result), nil
}

// BlockNumber returns the most recent block number.
func (ec *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var result hexutil.Uint64
	if err := ec.c.CallContext(ctx, &result, "eth_blockNumber"); err != nil {
		return 0, gateway.Upstreamf(err, "eth_blockNumber")
	}
	return uint64(result), nil
}

// BlockByNumber fetches a block; nil means latest. With fullTxs the block
// carries inlined transactions, otherwise only their hashes.
func (ec *Client) BlockByNumber(ctx context.Context, number *big.Int, fullTxs bool) (*gateway.Block, error) {
	return ec.getBlock(ctx, "eth_getBlockByNumber", toBlockNumArg(number), fullTxs)
}

// LatestBlock fetches the chain head.
func (ec *Client) LatestBlock(ctx context.Context, fullTxs bool) (*gateway.Block, error) {
	return ec.BlockByNumber(ctx, nil, fullTxs)
}

// BlockByHash fetches a block by its hash.
func (ec *Client) BlockByHash(ctx context.Context, hash common.Hash, fullTxs bool) (*gateway.Block, error) {
	return ec.getBlock(ctx, "eth_getBlockByHash", hash, fullTxs)
}

func (ec *Client) getBlock(ctx context.Context, method string, arg interface{}, fullTxs bool) (*gateway.Block, error) {
	var raw json.RawMessage
	if err := ec.c.CallContext(ctx, &raw, method, arg, fullTxs); err != nil {
		return nil, gateway.Upstreamf(err, "%s", method)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, gateway.NotFoundf("block %v", arg)
	}
	var rb rpcBlock
	if err := json.Unmarshal(raw, &rb); err != nil {
		return nil, gateway.Upstreamf(err, "decode %s response", method)
	}
	return rb.toBlock(fullTxs)
}

// TransactionByHash returns the transaction, if known to the node.
func (ec *Client) TransactionByHash(ctx context.Context, hash common.Hash) (*gateway.Transaction, error) {
	var raw json.RawMessage
	if err := ec.c.CallContext(ctx, &raw, "eth_getTransactionByHash", hash); err != nil {
		return nil, gateway.Upstreamf(err, "eth_getTransactionByHash")
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, gateway.NotFoundf("transaction %s", hash.Hex())
	}
	var rt rpcTransaction
	if err := json.Unmarshal(raw, &rt); err != nil {
		return nil, gateway.Upstreamf(err, "decode transaction response")
	}
	return rt.toTransaction(), nil
}

// TransactionReceipt returns the receipt of a mined transaction.
func (ec *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*gateway.Receipt, error) {
	var raw json.RawMessage
	if err := ec.c.CallContext(ctx, &raw, "eth_getTransactionReceipt", hash); err != nil {
		return nil, gateway.Upstreamf(err, "eth_getTransactionReceipt")
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, gateway.NotFoundf("receipt for transaction %s", hash.Hex())
	}
	var rr rpcReceipt
	if err := json.Unmarshal(raw, &rr); err != nil {
		return nil, gateway.Upstreamf(err, "decode receipt response")
	}
	return rr.toReceipt(), nil
}

// ---------------------------------------------------------------------------
// State reads
// ---------------------------------------------------------------------------

// BalanceAt returns the latest native-token balance of the account in wei.
func (ec *Client) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	var result hexutil.Big
	if err := ec.c.CallContext(ctx, &result, "eth_getBalance", account, "latest"); err != nil {
		return nil, gateway.Upstreamf(err, "eth_getBalance")
	}
	return (*big.Int)(&result), nil
}

// CodeAt returns the contract bytecode at the account, empty for EOAs.
func (ec *Client) CodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	var result hexutil.Bytes
	if err := ec.c.CallContext(ctx, &result, "eth_getCode", account, "latest"); err != nil {
		return nil, gateway.Upstreamf(err, "eth_getCode")
	}
	return result, nil
}

// NonceAt returns the latest account nonce.
func (ec *Client) NonceAt(ctx context.Context, account common.Address) (uint64, error) {
	var result hexutil.Uint64
	if err := ec.c.CallContext(ctx, &result, "eth_getTransactionCount", account, "latest"); err != nil {
		return 0, gateway.Upstreamf(err, "eth_getTransactionCount")
	}
	return uint64(result), nil
}

// ---------------------------------------------------------------------------
// Calls and gas
// ---------------------------------------------------------------------------

// CallContract executes a read-only call against the latest state.
func (ec *Client) CallContract(ctx context.Context, msg gateway.CallMsg) ([]byte, error) {
	var result hexutil.Bytes
	if err := ec.c.CallContext(ctx, &result, "eth_call", toCallArg(msg), "latest"); err != nil {
		return nil, gateway.Upstreamf(err, "eth_call")
	}
	return result, nil
}

// SuggestGasPrice returns the node's gas price suggestion in wei.
func (ec *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	var result hexutil.Big
	if err := ec.c.CallContext(ctx, &result, "eth_gasPrice"); err != nil {
		return nil, gateway.Upstreamf(err, "eth_gasPrice")
	}
	return (*big.Int)(&result), nil
}

// EstimateGas asks the node for a gas estimate of the call.
func (ec *Client) EstimateGas(ctx context.Context, msg gateway.CallMsg) (uint64, error) {
	var result hexutil.Uint64
	if err := ec.c.CallContext(ctx, &result, "eth_estimateGas", toCallArg(msg)); err != nil {
		return 0, gateway.Upstreamf(err, "eth_estimateGas")
	}
	return uint64(result), nil
}

// ---------------------------------------------------------------------------
// Writes (signer submodule only)
// ---------------------------------------------------------------------------

// SendRawTransaction submits a signed, RLP-encoded transaction and returns
// its hash. Only the signer submodule calls this.
func (ec *Client) SendRawTransaction(ctx context.Context, encoded []byte) (common.Hash, error) {
	var result common.Hash
	if err := ec.c.CallContext(ctx, &result, "eth_sendRawTransaction", hexutil.Encode(encoded)); err != nil {
		return common.Hash{}, gateway.Upstreamf(err, "eth_sendRawTransaction")
	}
	return result, nil
}

// toBlockNumArg renders a block number the way the wire protocol expects.
func toBlockNumArg(number *big.Int) string {
	if number == nil {
		return "latest"
	}
	if number.Sign() < 0 {
		return "pending"
	}
	return hexutil.EncodeBig(number)
}

// toCallArg converts a CallMsg into the JSON object eth_call expects,
// omitting unset fields.
func toCallArg(msg gateway.CallMsg) interface{} {
	arg := map[string]interface{}{}
	if msg.From != (common.Address{}) {
		arg["from"] = msg.From
	}
	if msg.To != nil {
		arg["to"] = *msg.To
	}
	if len(msg.Data) > 0 {
		arg["input"] = hexutil.Bytes(msg.Data)
	}
	if msg.Value != nil {
		arg["value"] = (*hexutil.Big)(msg.Value)
	}
	if msg.Gas != 0 {
		arg["gas"] = hexutil.Uint64(msg.Gas)
	}
	return arg
}
