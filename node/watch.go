package node

import (
	"context"
	"sync"
	"time"

	"github.com/iotaevm/gateway/chains"
)

// defaultWatchInterval is the head polling cadence for the sibling
// networks. Their block times sit near one second, but the gauges only
// need coarse freshness.
const defaultWatchInterval = 15 * time.Second

// watcherService runs one block watcher per sibling network and publishes
// every new head on the node bus. It implements Service so the lifecycle
// manager owns its goroutines.
type watcherService struct {
	node     *Node
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newWatcherService(n *Node, interval time.Duration) *watcherService {
	if interval <= 0 {
		interval = defaultWatchInterval
	}
	return &watcherService{node: n, interval: interval}
}

// Name implements Service.
func (w *watcherService) Name() string { return "block-watchers" }

// Start launches one watcher goroutine per sibling network.
func (w *watcherService) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	for _, d := range w.node.registry.Siblings() {
		w.wg.Add(1)
		go w.run(ctx, d)
	}
	return nil
}

// Stop cancels the watchers and waits for them to drain.
func (w *watcherService) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	return nil
}

func (w *watcherService) run(ctx context.Context, d chains.NetworkDescriptor) {
	defer w.wg.Done()

	client, err := w.node.src.Client(ctx, d.ShortName)
	if err != nil {
		w.node.log.Warn("watcher disabled, upstream unreachable",
			"network", d.ShortName, "err", err)
		return
	}

	for ev := range w.node.analytics.Watch(ctx, client, d.ShortName, w.interval) {
		w.node.bus.PublishAsync(EventChainHead, ev)
	}
}
