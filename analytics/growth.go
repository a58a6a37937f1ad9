package analytics

import (
	"context"
	"fmt"
	"sort"

	gateway "github.com/iotaevm/gateway"
	"github.com/iotaevm/gateway/chains"
)

const (
	// DefaultGrowthDays is the comparison period when the caller gives none.
	DefaultGrowthDays = 7

	// maxGrowthSamples caps the blocks fetched across the growth window.
	maxGrowthSamples = 50

	// blockTimeProbe is the recent-block count used to estimate the chain's
	// block time before locating the window origin.
	blockTimeProbe = 10
)

// Growth reports activity deltas over roughly PeriodDays of chain
// history. The improvement percentages compare the earlier half of the
// sampled window against the later half; positive values mean faster
// blocks and more transactions now. A window too thin to measure
// reports zeros.
type Growth struct {
	Network                 string  `json:"network"`
	PeriodDays              int     `json:"periodDays"`
	SampledBlocks           int     `json:"sampledBlocks"`
	BlocksPerDay            float64 `json:"blocksPerDay"`
	TxPerDay                float64 `json:"txPerDay"`
	AvgDailyTPS             float64 `json:"avgDailyTPS"`
	BlockTimeImprovementPct float64 `json:"blockTimeImprovement_pct"`
	TxGrowthRatePct         float64 `json:"txGrowthRate_pct"`
}

// Growth estimates network growth over the given period. It probes the
// recent block time to locate a block circa periodDays ago, then samples
// at most maxGrowthSamples evenly spaced blocks across the window.
// Chains younger than the period report over whatever history exists.
func (e *Engine) Growth(ctx context.Context, backend Backend, d chains.NetworkDescriptor, periodDays int) (*Growth, error) {
	if periodDays <= 0 {
		periodDays = DefaultGrowthDays
	}
	out := &Growth{Network: d.ShortName, PeriodDays: periodDays}

	head, err := backend.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("growth %s: %w", d.ShortName, err)
	}
	if head == 0 {
		return out, nil
	}

	probe, err := e.sampleBlocks(ctx, backend, recentNumbers(head, blockTimeProbe), false)
	if err != nil {
		return nil, err
	}
	blockTime := windowBlockTime(sortByNumber(probe))
	if blockTime <= 0 {
		e.log.Warn("growth degraded, block time unknown", "network", d.ShortName)
		return out, nil
	}

	span := uint64(float64(periodDays) * 86400 / blockTime)
	origin := uint64(1)
	if span < head {
		origin = head - span
	}
	if origin >= head {
		return out, nil
	}

	blocks, err := e.sampleBlocks(ctx, backend, spacedNumbers(origin, head, maxGrowthSamples), false)
	if err != nil {
		return nil, err
	}
	if len(blocks) < minUsableBlocks {
		e.log.Warn("growth degraded, sample too small",
			"network", d.ShortName, "usable", len(blocks))
		return out, nil
	}
	sortByNumber(blocks)
	out.SampledBlocks = len(blocks)

	first, last := blocks[0], blocks[len(blocks)-1]
	if last.Timestamp <= first.Timestamp || last.Number <= first.Number {
		return out, nil
	}
	spanDays := float64(last.Timestamp-first.Timestamp) / 86400
	out.BlocksPerDay = float64(last.Number-first.Number) / spanDays

	var totalTx int
	for _, b := range blocks {
		totalTx += b.TxCount()
	}
	avgTx := float64(totalTx) / float64(len(blocks))
	out.TxPerDay = avgTx * out.BlocksPerDay
	out.AvgDailyTPS = out.TxPerDay / 86400

	half := len(blocks) / 2
	earlier, later := blocks[:half], blocks[half:]
	earlierBT, laterBT := windowBlockTime(earlier), windowBlockTime(later)
	if earlierBT > 0 && laterBT > 0 {
		out.BlockTimeImprovementPct = (earlierBT - laterBT) / earlierBT * 100
	}
	earlierTx, laterTx := windowAvgTx(earlier), windowAvgTx(later)
	if earlierTx > 0 {
		out.TxGrowthRatePct = (laterTx - earlierTx) / earlierTx * 100
	}
	return out, nil
}

// windowBlockTime is the per-block time across a window of blocks sorted
// by number. It divides the timestamp span by the block-number span, so
// it holds for sparse samples as well as adjacent ones.
func windowBlockTime(blocks []*gateway.Block) float64 {
	if len(blocks) < minUsableBlocks {
		return 0
	}
	first, last := blocks[0], blocks[len(blocks)-1]
	if last.Number <= first.Number || last.Timestamp <= first.Timestamp {
		return 0
	}
	return float64(last.Timestamp-first.Timestamp) / float64(last.Number-first.Number)
}

func windowAvgTx(blocks []*gateway.Block) float64 {
	if len(blocks) == 0 {
		return 0
	}
	var total int
	for _, b := range blocks {
		total += b.TxCount()
	}
	return float64(total) / float64(len(blocks))
}

func sortByNumber(blocks []*gateway.Block) []*gateway.Block {
	sort.Slice(blocks, func(i, j int) bool {
		return blocks[i].Number < blocks[j].Number
	})
	return blocks
}

// spacedNumbers returns at most maxCount block numbers evenly spaced
// across [from, to], always including both bounds.
func spacedNumbers(from, to uint64, maxCount int) []uint64 {
	if to <= from {
		return []uint64{to}
	}
	total := to - from + 1
	if total <= uint64(maxCount) {
		numbers := make([]uint64, 0, total)
		for n := from; n <= to; n++ {
			numbers = append(numbers, n)
		}
		return numbers
	}
	step := (to - from) / uint64(maxCount-1)
	numbers := make([]uint64, 0, maxCount)
	for i := 0; i < maxCount-1; i++ {
		numbers = append(numbers, from+uint64(i)*step)
	}
	return append(numbers, to)
}
