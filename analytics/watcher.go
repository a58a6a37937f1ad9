package analytics

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultWatchInterval is the poll cadence when the caller gives none.
const DefaultWatchInterval = 5 * time.Second

// BlockEvent announces a newly observed chain head.
type BlockEvent struct {
	Network   string      `json:"network"`
	Number    uint64      `json:"number"`
	Hash      common.Hash `json:"hash"`
	Timestamp uint64      `json:"timestamp"`
	TxCount   int         `json:"txCount"`
}

// Watch polls the network head at the given interval and emits an event
// whenever the height changes. The channel holds one event; if the
// consumer lags, newer events are dropped rather than blocking the
// poller. The channel closes when ctx is cancelled. Poll errors are
// logged and skipped.
func (e *Engine) Watch(ctx context.Context, backend Backend, network string, interval time.Duration) <-chan BlockEvent {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	events := make(chan BlockEvent, 1)
	go e.watchLoop(ctx, backend, network, interval, events)
	return events
}

func (e *Engine) watchLoop(ctx context.Context, backend Backend, network string, interval time.Duration, events chan<- BlockEvent) {
	defer close(events)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastSeen uint64
	var seeded bool
	poll := func() {
		b, err := backend.BlockByNumber(ctx, nil, false)
		if err != nil {
			e.log.Debug("head poll failed", "network", network, "err", err)
			return
		}
		if seeded && b.Number == lastSeen {
			return
		}
		seeded, lastSeen = true, b.Number
		ev := BlockEvent{
			Network:   network,
			Number:    b.Number,
			Hash:      b.Hash,
			Timestamp: b.Timestamp,
			TxCount:   b.TxCount(),
		}
		select {
		case events <- ev:
		default:
			e.log.Debug("head event dropped", "network", network, "number", b.Number)
		}
	}

	poll()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			poll()
		}
	}
}
