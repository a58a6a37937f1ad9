package analytics

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	gateway "github.com/iotaevm/gateway"
	"github.com/iotaevm/gateway/chains"
)

// Rankings orders network short names by each comparison axis. Networks
// without data (zeroed entries) rank last on the ascending axes.
type Rankings struct {
	TPS         []string `json:"tps"`
	BlockTime   []string `json:"blockTime"`
	GasPrice    []string `json:"gasPrice"`
	Utilization []string `json:"utilization"`
}

// Comparison is the multi-network gather result. Metrics holds one entry
// per requested network, the primary first, failed networks zeroed.
type Comparison struct {
	Primary  string           `json:"primary"`
	Metrics  []NetworkMetrics `json:"metrics"`
	Rankings Rankings         `json:"rankings"`
}

// Compare gathers metrics for the primary network and the others in
// parallel. The primary samples the full default window; comparison
// networks sample a reduced one. A network whose client or gather fails
// contributes a zeroed entry and still appears in every ranking.
func (e *Engine) Compare(ctx context.Context, src gateway.ClientSource, registry *chains.Registry, primary string, others []string) (*Comparison, error) {
	pd, err := registry.Resolve(primary)
	if err != nil {
		return nil, err
	}
	descs := []chains.NetworkDescriptor{pd}
	seen := map[string]bool{pd.ShortName: true}
	for _, ref := range others {
		d, err := registry.Resolve(ref)
		if err != nil {
			return nil, err
		}
		if seen[d.ShortName] {
			continue
		}
		seen[d.ShortName] = true
		descs = append(descs, d)
	}

	metrics := make([]NetworkMetrics, len(descs))
	var g errgroup.Group
	g.SetLimit(sampleBatch)
	for i, d := range descs {
		size := compareSampleSize
		if i == 0 {
			size = DefaultSampleSize
		}
		i, d, size := i, d, size
		g.Go(func() error {
			m, err := e.collectVia(ctx, src, d, size)
			if err != nil {
				e.log.Warn("comparison network degraded to zeros",
					"network", d.ShortName, "err", err)
				m = zeroMetrics(d)
			}
			metrics[i] = *m
			return nil
		})
	}
	// Failures degrade per network, so the group never carries an error.
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &Comparison{
		Primary:  pd.ShortName,
		Metrics:  metrics,
		Rankings: rankAll(metrics),
	}, nil
}

func (e *Engine) collectVia(ctx context.Context, src gateway.ClientSource, d chains.NetworkDescriptor, size int) (*NetworkMetrics, error) {
	client, err := src.Client(ctx, d.ShortName)
	if err != nil {
		return nil, err
	}
	return e.Collect(ctx, client, d, size)
}

// ---------------------------------------------------------------------------
// Rankings
// ---------------------------------------------------------------------------

func rankAll(ms []NetworkMetrics) Rankings {
	return Rankings{
		TPS:         rankBy(ms, tpsDesc),
		BlockTime:   rankBy(ms, blockTimeAsc),
		GasPrice:    rankBy(ms, gasPriceAsc),
		Utilization: rankBy(ms, utilizationDesc),
	}
}

// rankBy returns network names ordered by less. The sort is stable so
// ties keep the caller's network order, with the primary first.
func rankBy(ms []NetworkMetrics, less func(a, b *NetworkMetrics) bool) []string {
	order := make([]int, len(ms))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return less(&ms[order[i]], &ms[order[j]])
	})
	names := make([]string, len(ms))
	for i, idx := range order {
		names[i] = ms[idx].Network
	}
	return names
}

func tpsDesc(a, b *NetworkMetrics) bool {
	return a.RecentTPS > b.RecentTPS
}

func utilizationDesc(a, b *NetworkMetrics) bool {
	return a.Utilization > b.Utilization
}

// blockTimeAsc sorts by average block time ascending. A zero block time
// means the gather produced no data, so those networks sort last rather
// than winning the ranking.
func blockTimeAsc(a, b *NetworkMetrics) bool {
	if (a.AvgBlockTime > 0) != (b.AvgBlockTime > 0) {
		return a.AvgBlockTime > 0
	}
	return a.AvgBlockTime < b.AvgBlockTime
}

// gasPriceAsc sorts by suggested gas price ascending, zero prices last.
func gasPriceAsc(a, b *NetworkMetrics) bool {
	ap, bp := a.gasPrice, b.gasPrice
	if ap == nil || bp == nil {
		return bp == nil && ap != nil
	}
	if (ap.Sign() > 0) != (bp.Sign() > 0) {
		return ap.Sign() > 0
	}
	return ap.Cmp(bp) < 0
}
