// Package analytics derives network health metrics from sampled block
// windows. Every figure is a deterministic function of the blocks the
// sampler managed to fetch; partial RPC failures shrink the sample
// instead of failing the gather, and a sample below the usable minimum
// degrades to zero values with Healthy=false.
package analytics

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	gateway "github.com/iotaevm/gateway"
	"github.com/iotaevm/gateway/chains"
	"github.com/iotaevm/gateway/log"
)

const (
	// DefaultSampleSize is the block window for a single-network gather.
	DefaultSampleSize = 20

	// compareSampleSize is the reduced window used for comparison
	// networks so a multi-chain gather stays within tool latency.
	compareSampleSize = 10

	// sampleBatch bounds concurrent block fetches per batch.
	sampleBatch = 5

	// minUsableBlocks is the smallest sample the rate math accepts.
	minUsableBlocks = 2

	// healthySeconds is the freshness bound on the newest sampled block.
	healthySeconds = 60
)

// Backend is the read surface the analytics engine needs from a network
// client. gateway.Client satisfies it.
type Backend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number *big.Int, fullTxs bool) (*gateway.Block, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// NetworkMetrics is the derived view of one network's recent activity.
// SampleSize reports the blocks actually used, which may be fewer than
// requested when batches fail.
type NetworkMetrics struct {
	Network       string             `json:"network"`
	BlockHeight   uint64             `json:"blockHeight"`
	SampleSize    int                `json:"sampleSize"`
	AvgBlockTime  float64            `json:"avgBlockTime_s"`
	AvgTxPerBlock float64            `json:"avgTxPerBlock"`
	RecentTPS     float64            `json:"recentTPS"`
	AvgGasUsed    float64            `json:"avgGasUsed"`
	Utilization   float64            `json:"utilization_pct"`
	GasPriceWei   string             `json:"gasPrice_wei"`
	Healthy       bool               `json:"healthy"`
	TokenInfo     chains.NativeToken `json:"tokenInfo"`

	gasPrice *big.Int // numeric form kept for rankings
}

// Engine computes network metrics, comparisons and growth estimates.
type Engine struct {
	log *log.Logger
}

// NewEngine returns an engine logging under the analytics module.
func NewEngine() *Engine {
	return &Engine{log: log.Default().Module("analytics")}
}

// Collect samples the most recent sampleSize blocks of one network and
// derives its metrics. sampleSize <= 0 selects the default window. The
// head lookup must succeed; block fetches inside the window tolerate
// partial failure.
func (e *Engine) Collect(ctx context.Context, backend Backend, d chains.NetworkDescriptor, sampleSize int) (*NetworkMetrics, error) {
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}

	head, err := backend.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("sample %s: %w", d.ShortName, err)
	}

	gasPrice, err := backend.SuggestGasPrice(ctx)
	if err != nil {
		e.log.Debug("gas price unavailable", "network", d.ShortName, "err", err)
		gasPrice = new(big.Int)
	}

	blocks, err := e.sampleBlocks(ctx, backend, recentNumbers(head, sampleSize), false)
	if err != nil {
		return nil, err
	}
	if len(blocks) < minUsableBlocks {
		e.log.Warn("sample too small, reporting zeros",
			"network", d.ShortName, "usable", len(blocks), "requested", sampleSize)
	}
	return computeMetrics(d, head, blocks, gasPrice, time.Now()), nil
}

// sampleBlocks fetches the given block numbers in batches of sampleBatch.
// Failed fetches are dropped from the result; context cancellation aborts
// the remaining batches.
func (e *Engine) sampleBlocks(ctx context.Context, backend Backend, numbers []uint64, fullTxs bool) ([]*gateway.Block, error) {
	blocks := make([]*gateway.Block, 0, len(numbers))
	for start := 0; start < len(numbers); start += sampleBatch {
		end := start + sampleBatch
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
				b, err := backend.BlockByNumber(ctx, new(big.Int).SetUint64(n), fullTxs)
				if err != nil {
					e.log.Debug("block fetch dropped", "number", n, "err", err)
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

// recentNumbers returns count block numbers descending from head,
// stopping at genesis when the chain is shorter than the window.
func recentNumbers(head uint64, count int) []uint64 {
	if count <= 0 {
		return nil
	}
	numbers := make([]uint64, 0, count)
	n := head
	for len(numbers) < count {
		numbers = append(numbers, n)
		if n == 0 {
			break
		}
		n--
	}
	return numbers
}

// computeMetrics derives the metric set from a usable block sample. It
// owns every division guard: short samples, zero block time and a zero
// gas limit on the reference block all yield zeros rather than errors.
func computeMetrics(d chains.NetworkDescriptor, head uint64, blocks []*gateway.Block, gasPrice *big.Int, now time.Time) *NetworkMetrics {
	m := &NetworkMetrics{
		Network:     d.ShortName,
		BlockHeight: head,
		SampleSize:  len(blocks),
		GasPriceWei: "0",
		TokenInfo:   d.NativeToken,
		gasPrice:    new(big.Int),
	}
	if gasPrice != nil {
		m.gasPrice.Set(gasPrice)
		m.GasPriceWei = gasPrice.String()
	}
	if len(blocks) < minUsableBlocks {
		return m
	}

	sort.Slice(blocks, func(i, j int) bool {
		return blocks[i].Timestamp < blocks[j].Timestamp
	})
	oldest, newest := blocks[0], blocks[len(blocks)-1]
	k := len(blocks)

	var totalTx, totalGas uint64
	for _, b := range blocks {
		totalTx += uint64(b.TxCount())
		totalGas += b.GasUsed
	}

	// The timestamp deltas telescope, so the window span over K-1 gaps
	// is the average block time.
	m.AvgBlockTime = float64(newest.Timestamp-oldest.Timestamp) / float64(k-1)
	m.AvgTxPerBlock = float64(totalTx) / float64(k)
	if m.AvgBlockTime > 0 {
		m.RecentTPS = m.AvgTxPerBlock / m.AvgBlockTime
	}
	m.AvgGasUsed = float64(totalGas) / float64(k)
	if newest.GasLimit > 0 {
		m.Utilization = float64(totalGas) / (float64(k) * float64(newest.GasLimit)) * 100
	}
	m.Healthy = now.Unix()-int64(newest.Timestamp) < healthySeconds
	return m
}

// zeroMetrics is the entry a failed network contributes to a comparison.
func zeroMetrics(d chains.NetworkDescriptor) *NetworkMetrics {
	return &NetworkMetrics{
		Network:     d.ShortName,
		GasPriceWei: "0",
		TokenInfo:   d.NativeToken,
		gasPrice:    new(big.Int),
	}
}
