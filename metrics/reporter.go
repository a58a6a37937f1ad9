package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/iotaevm/gateway/log"
)

// ReportBackend is the interface that export backends must implement.
// Report is called periodically with a flattened snapshot of all current
// metric values.
type ReportBackend interface {
	Report(metrics map[string]float64) error
}

// MetricsReporter periodically flattens a Registry and pushes the values to
// one or more registered backends. Ad-hoc values recorded with RecordMetric
// are overlaid on top of the registry snapshot.
type MetricsReporter struct {
	mu       sync.RWMutex
	registry *Registry
	interval time.Duration
	backends map[string]ReportBackend
	metrics  map[string]float64
	log      *log.Logger

	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// NewMetricsReporter creates a reporter that exports the registry's metrics
// every interval. A nil registry falls back to DefaultRegistry.
func NewMetricsReporter(registry *Registry, interval time.Duration) *MetricsReporter {
	if registry == nil {
		registry = DefaultRegistry
	}
	return &MetricsReporter{
		registry: registry,
		interval: interval,
		backends: make(map[string]ReportBackend),
		metrics:  make(map[string]float64),
		log:      log.Default().Module("metrics"),
	}
}

// RegisterBackend adds a named export backend. If a backend with the same
// name already exists it is replaced.
func (r *MetricsReporter) RegisterBackend(name string, backend ReportBackend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[name] = backend
}

// UnregisterBackend removes a previously registered backend by name.
func (r *MetricsReporter) UnregisterBackend(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.backends, name)
}

// RecordMetric stores an ad-hoc metric value that will be included in
// subsequent reports alongside the registry snapshot. Concurrent-safe.
func (r *MetricsReporter) RecordMetric(name string, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics[name] = value
}

// RecordTimer records a duration metric in milliseconds.
func (r *MetricsReporter) RecordTimer(name string, duration time.Duration) {
	r.RecordMetric(name, float64(duration.Milliseconds()))
}

// Snapshot returns a point-in-time copy of the registry's flattened values
// merged with all ad-hoc recorded values.
func (r *MetricsReporter) Snapshot() map[string]float64 {
	snap := r.registry.Flatten()

	r.mu.RLock()
	defer r.mu.RUnlock()
	for k, v := range r.metrics {
		snap[k] = v
	}
	return snap
}

// Start begins periodic reporting. It is safe to call Start on an already
// running reporter (it is a no-op).
func (r *MetricsReporter) Start() {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	go r.loop()
}

// Stop halts periodic reporting and blocks until the reporting goroutine
// exits. Safe to call on a stopped reporter (no-op).
func (r *MetricsReporter) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stopCh)
	r.mu.Unlock()

	<-r.doneCh
}

// Running returns true if the reporter is actively exporting.
func (r *MetricsReporter) Running() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// loop is the main export goroutine. It ticks at the configured interval
// and calls every registered backend with the current snapshot.
func (r *MetricsReporter) loop() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.reportOnce()
		}
	}
}

// reportOnce takes a snapshot and sends it to all backends.
func (r *MetricsReporter) reportOnce() {
	snap := r.Snapshot()

	r.mu.RLock()
	backends := make(map[string]ReportBackend, len(r.backends))
	for name, b := range r.backends {
		backends[name] = b
	}
	r.mu.RUnlock()

	for name, b := range backends {
		if err := b.Report(snap); err != nil {
			r.log.Warn("metrics backend report failed", "backend", name, "err", err)
		}
	}
}

// ---------------------------------------------------------------------------
// Log backend
// ---------------------------------------------------------------------------

// LogBackend writes metric snapshots through the gateway logger at debug
// level, one compact line per report. Used when the gateway runs with DEBUG
// enabled and no external scrape target is configured.
type LogBackend struct {
	log *log.Logger
}

// NewLogBackend creates a LogBackend that writes through l, or the default
// logger when l is nil.
func NewLogBackend(l *log.Logger) *LogBackend {
	if l == nil {
		l = log.Default()
	}
	return &LogBackend{log: l.Module("metrics")}
}

// Report logs the snapshot with keys in sorted order so successive reports
// diff cleanly.
func (b *LogBackend) Report(metrics map[string]float64) error {
	keys := make([]string, 0, len(metrics))
	for k := range metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]any, 0, 2*len(keys))
	for _, k := range keys {
		args = append(args, k, metrics[k])
	}
	b.log.Debug("metrics snapshot", args...)
	return nil
}
