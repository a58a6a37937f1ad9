// Package history reconstructs recent activity without an indexer. The
// scanner walks a bounded window of recent blocks, so every figure it
// produces is a lower bound over that window, never a lifetime total.
// Results carry the window metadata to keep that explicit.
package history

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	gateway "github.com/iotaevm/gateway"
	"github.com/iotaevm/gateway/chains"
	"github.com/iotaevm/gateway/log"
)

// Scanner defaults. A full scan touches at most DefaultMaxBlocks blocks
// and inspects at most DefaultTxPerBlock transactions in each.
const (
	DefaultMaxBlocks  = 50
	DefaultBatchSize  = 5
	DefaultTxPerBlock = 10
)

// Scanner performs bounded backward scans over recent blocks. The zero
// value is not usable; construct with NewScanner and tune the exported
// knobs before first use if needed.
type Scanner struct {
	MaxBlocks  int // blocks walked per scan
	BatchSize  int // concurrent block fetches per batch
	TxPerBlock int // transactions inspected per block

	log *log.Logger
}

// NewScanner returns a scanner with the default window bounds.
func NewScanner() *Scanner {
	return &Scanner{
		MaxBlocks:  DefaultMaxBlocks,
		BatchSize:  DefaultBatchSize,
		TxPerBlock: DefaultTxPerBlock,
		log:        log.Default().Module("history"),
	}
}

// Window describes the block range a scan covered and how much of it was
// actually inspected. Truncated is set when any block carried more
// transactions than the per-block cap.
type Window struct {
	FromBlock       uint64 `json:"fromBlock"`
	ToBlock         uint64 `json:"toBlock"`
	BlocksRequested int    `json:"blocksRequested"`
	BlocksScanned   int    `json:"blocksScanned"`
	TxInspected     int    `json:"txInspected"`
	TxCap           int    `json:"txPerBlockCap"`
	Truncated       bool   `json:"truncated"`
}

// ScannedTx is one inspected transaction. To is nil for deployments.
type ScannedTx struct {
	Hash        common.Hash     `json:"hash"`
	From        common.Address  `json:"from"`
	To          *common.Address `json:"to,omitempty"`
	ValueWei    string          `json:"value_wei"`
	Value       string          `json:"value"`
	Label       string          `json:"label"`
	BlockNumber uint64          `json:"blockNumber"`
	Timestamp   uint64          `json:"timestamp"`
	Age         string          `json:"age"`

	rawValue *big.Int
}

// ScanResult is a window of classified transactions, newest block first.
type ScanResult struct {
	Network string      `json:"network"`
	Window  Window      `json:"window"`
	Txs     []ScannedTx `json:"transactions"`
}

// ScanRecent walks the scanner's window backwards from the chain head,
// fetching blocks with full bodies in bounded batches. Failed block
// fetches shrink the window; only head lookup failure or cancellation
// aborts the scan.
func (s *Scanner) ScanRecent(ctx context.Context, reader gateway.ChainReader, d chains.NetworkDescriptor) (*ScanResult, error) {
	maxBlocks, batchSize, txCap := s.bounds()

	latest, err := reader.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", d.ShortName, err)
	}

	from := uint64(0)
	requested := maxBlocks
	if latest >= uint64(maxBlocks) {
		from = latest - uint64(maxBlocks) + 1
	} else {
		requested = int(latest) + 1
	}

	blocks, err := s.fetchRange(ctx, reader, from, latest, batchSize)
	if err != nil {
		return nil, err
	}
	sort.Slice(blocks, func(i, j int) bool {
		return blocks[i].Number > blocks[j].Number
	})

	now := time.Now()
	result := &ScanResult{
		Network: d.ShortName,
		Window: Window{
			FromBlock:       from,
			ToBlock:         latest,
			BlocksRequested: requested,
			BlocksScanned:   len(blocks),
			TxCap:           txCap,
		},
	}
	for _, b := range blocks {
		txs := b.Transactions
		if len(txs) > txCap {
			txs = txs[:txCap]
			result.Window.Truncated = true
		}
		for _, tx := range txs {
			result.Txs = append(result.Txs, scannedTx(tx, b, d, now))
		}
		result.Window.TxInspected += len(txs)
	}
	return result, nil
}

func (s *Scanner) bounds() (maxBlocks, batchSize, txCap int) {
	maxBlocks, batchSize, txCap = s.MaxBlocks, s.BatchSize, s.TxPerBlock
	if maxBlocks <= 0 {
		maxBlocks = DefaultMaxBlocks
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if txCap <= 0 {
		txCap = DefaultTxPerBlock
	}
	return maxBlocks, batchSize, txCap
}

// fetchRange fetches [from, to] with full bodies in batches, dropping
// failed blocks.
func (s *Scanner) fetchRange(ctx context.Context, reader gateway.ChainReader, from, to uint64, batchSize int) ([]*gateway.Block, error) {
	numbers := make([]uint64, 0, to-from+1)
	for n := to; ; n-- {
		numbers = append(numbers, n)
		if n == from {
			break
		}
	}

	blocks := make([]*gateway.Block, 0, len(numbers))
	for start := 0; start < len(numbers); start += batchSize {
		end := start + batchSize
		if end > len(numbers) {
			end = len(numbers)
		}
		batch := numbers[start:end]
		got := make([]*gateway.Block, len(batch))

		var wg sync.WaitGroup
		for i, n := range batch {
			wg.Add(1)
			go func(i int, n uint64) {
				defer wg.Done()
				b, err := reader.BlockByNumber(ctx, new(big.Int).SetUint64(n), true)
				if err != nil {
					s.log.Debug("scan block dropped", "number", n, "err", err)
					return
				}
				got[i] = b
			}(i, n)
		}
		wg.Wait()

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, b := range got {
			if b != nil {
				blocks = append(blocks, b)
			}
		}
	}
	return blocks, nil
}

func scannedTx(tx *gateway.Transaction, b *gateway.Block, d chains.NetworkDescriptor, now time.Time) ScannedTx {
	value := tx.Value
	if value == nil {
		value = new(big.Int)
	}
	age := now.Sub(time.Unix(int64(b.Timestamp), 0))
	return ScannedTx{
		Hash:        tx.Hash,
		From:        tx.From,
		To:          tx.To,
		ValueWei:    value.String(),
		Value:       chains.FormatUnits(value, d.NativeToken.Decimals),
		Label:       Classify(tx.Input, tx.To),
		BlockNumber: b.Number,
		Timestamp:   b.Timestamp,
		Age:         FormatAge(age),
		rawValue:    new(big.Int).Set(value),
	}
}

// AddressMetrics aggregates one address's activity inside a scan window.
// Totals are window sums, not lifetime figures; the embedded Window says
// exactly what was inspected. TxCount counts distinct transactions, so a
// self-transfer adds one to it but increments both directions.
type AddressMetrics struct {
	Address          common.Address `json:"address"`
	Network          string         `json:"network"`
	TxCount          int            `json:"txCount"`
	SentCount        int            `json:"sent"`
	ReceivedCount    int            `json:"received"`
	TotalSentWei     string         `json:"totalSent_wei"`
	TotalReceivedWei string         `json:"totalReceived_wei"`
	TotalSent        string         `json:"totalSent"`
	TotalReceived    string         `json:"totalReceived"`
	FirstSeen        *time.Time     `json:"firstSeen"`
	LastSeen         *time.Time     `json:"lastSeen"`
	AccountAge       *string        `json:"accountAge"`
	Window           Window         `json:"window"`
}

// AddressMetrics scans the recent window and folds transactions touching
// addr. An address with no hits reports zero counts and nil timestamps.
func (s *Scanner) AddressMetrics(ctx context.Context, reader gateway.ChainReader, d chains.NetworkDescriptor, addr common.Address) (*AddressMetrics, error) {
	scan, err := s.ScanRecent(ctx, reader, d)
	if err != nil {
		return nil, err
	}

	m := &AddressMetrics{
		Address: addr,
		Network: d.ShortName,
		Window:  scan.Window,
	}
	totalSent, totalReceived := new(big.Int), new(big.Int)
	var firstTS, lastTS uint64

	for i := range scan.Txs {
		tx := &scan.Txs[i]
		sent := tx.From == addr
		received := tx.To != nil && *tx.To == addr
		if !sent && !received {
			continue
		}
		m.TxCount++
		if sent {
			m.SentCount++
			totalSent.Add(totalSent, tx.rawValue)
		}
		if received {
			m.ReceivedCount++
			totalReceived.Add(totalReceived, tx.rawValue)
		}
		if firstTS == 0 || tx.Timestamp < firstTS {
			firstTS = tx.Timestamp
		}
		if tx.Timestamp > lastTS {
			lastTS = tx.Timestamp
		}
	}

	m.TotalSentWei = totalSent.String()
	m.TotalReceivedWei = totalReceived.String()
	m.TotalSent = chains.FormatUnits(totalSent, d.NativeToken.Decimals)
	m.TotalReceived = chains.FormatUnits(totalReceived, d.NativeToken.Decimals)
	if firstTS > 0 {
		first := time.Unix(int64(firstTS), 0).UTC()
		last := time.Unix(int64(lastTS), 0).UTC()
		age := FormatAge(time.Since(first))
		m.FirstSeen = &first
		m.LastSeen = &last
		m.AccountAge = &age
	}
	return m, nil
}
