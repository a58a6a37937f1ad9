// Package node assembles the gateway: it builds the chain registry and the
// upstream client pool from configuration, wires the analysis engines into
// MCP tools and resources, and manages the transport, watcher and metrics
// services through a common lifecycle.
package node

import (
	"context"
	"errors"
	"sync"
	"time"

	gateway "github.com/iotaevm/gateway"
	"github.com/iotaevm/gateway/analytics"
	"github.com/iotaevm/gateway/arb"
	"github.com/iotaevm/gateway/chains"
	"github.com/iotaevm/gateway/config"
	"github.com/iotaevm/gateway/defi"
	"github.com/iotaevm/gateway/gasprice"
	"github.com/iotaevm/gateway/history"
	"github.com/iotaevm/gateway/log"
	"github.com/iotaevm/gateway/mcp"
	"github.com/iotaevm/gateway/metrics"
	"github.com/iotaevm/gateway/signer"
)

// Server identity announced in the MCP initialize handshake.
const (
	Name    = "iota-evm-gateway"
	Version = "0.4.0"
)

// reportInterval is the cadence of the debug metrics log.
const reportInterval = time.Minute

// Node is the top-level gateway process. It owns every subsystem: the
// network registry, the upstream client pool, the analysis engines, the
// MCP server and its transports.
type Node struct {
	cfg        *config.Config
	registry   *chains.Registry
	defaultNet chains.NetworkDescriptor
	pool       *Pool
	bus        *EventBus
	log        *log.Logger

	// src is the client source the engines read through. Production wires
	// the pool; tests substitute a fake.
	src gateway.ClientSource

	// sendBackend resolves the signing backend for a network. Production
	// wires the pool's raw client, which carries SendRawTransaction.
	sendBackend func(ctx context.Context, network string) (signer.Backend, error)

	// Engines.
	analytics *analytics.Engine
	oracle    *gasprice.Oracle
	scanner   *history.Scanner
	arb       *arb.Engine
	defi      defi.Provider
	signers   map[string]*signer.Signer

	// Serving side.
	srv       *mcp.Server
	http      *mcp.HTTPTransport
	lifecycle *LifecycleManager
	health    *HealthChecker
	reporter  *metrics.MetricsReporter

	mu      sync.Mutex
	running bool
	stop    chan struct{}

	eventSub *Subscription
	eventWG  sync.WaitGroup
}

// New builds a node from the given configuration. It constructs every
// subsystem and registers all tools and resources, but opens no sockets;
// network activity begins with Start or ServeStdio.
func New(cfg *config.Config) (*Node, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	registry, err := chains.NewRegistry(cfg.RPCOverrides())
	if err != nil {
		return nil, err
	}
	defaultNet, err := registry.ResolveChainID(cfg.DefaultChainID)
	if err != nil {
		return nil, gateway.Validationf("default chain id %d is not a supported network", cfg.DefaultChainID)
	}

	pool, err := NewPool(registry, cfg)
	if err != nil {
		return nil, err
	}
	pools, err := arb.NewPoolRegistry(registry)
	if err != nil {
		return nil, err
	}

	n := &Node{
		cfg:        cfg,
		registry:   registry,
		defaultNet: defaultNet,
		pool:       pool,
		src:        pool,
		bus:        NewEventBus(64),
		log:        log.Default().Module("node"),
		analytics:  analytics.NewEngine(),
		oracle:     gasprice.NewOracle(),
		scanner:    history.NewScanner(),
		arb:        arb.NewEngine(pools, registry),
		defi:       defi.NewStaticProvider(),
		signers:    make(map[string]*signer.Signer),
		lifecycle:  NewLifecycleManager(DefaultLifecycleConfig()),
		health:     NewHealthChecker(),
		stop:       make(chan struct{}),
	}
	n.sendBackend = func(ctx context.Context, network string) (signer.Backend, error) {
		return pool.Raw(ctx, network)
	}

	for _, d := range registry.Siblings() {
		sc := cfg.Sibling(d.ShortName)
		if sc.Mnemonic == "" {
			continue
		}
		s, err := signer.FromMnemonic(sc.Mnemonic)
		if err != nil {
			return nil, gateway.Validationf("signer for %s: %v", d.ShortName, err)
		}
		n.signers[d.ShortName] = s
		n.log.Info("signer configured", "network", d.ShortName, "address", s.Address().Hex())
	}

	n.srv = mcp.NewServer(Name, Version,
		mcp.WithLogger(log.Default().Module("mcp")),
		mcp.WithToolObserver(observeTool),
	)
	if err := n.registerTools(); err != nil {
		return nil, err
	}
	if err := n.registerResources(); err != nil {
		return nil, err
	}

	primary := registry.Primary().ShortName
	n.health.RegisterSubsystem("registry", n.registryChecker())
	n.health.RegisterSubsystem("rpc:"+primary, n.rpcChecker(primary))
	n.health.RegisterSubsystem("mcp", n.mcpChecker())

	return n, nil
}

// observeTool feeds the MCP invocation metrics. The server invokes it
// after every tool call, successful or not.
func observeTool(_ string, elapsed time.Duration, isError bool) {
	metrics.ToolCalls.Inc()
	metrics.ToolRate.Mark(1)
	metrics.ToolLatency.Observe(float64(elapsed) / float64(time.Millisecond))
	if isError {
		metrics.ToolErrors.Inc()
	}
}

// Start brings up the HTTP transport, the block watchers and, in debug
// mode, the periodic metrics log. A failed Start rolls back whatever came
// up and leaves the node stopped; build a fresh node to retry.
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.running {
		return errors.New("node already running")
	}

	literals, templates := n.srv.ResourceCount()
	n.log.Info("starting gateway",
		"version", Version,
		"defaultNetwork", n.defaultNet.ShortName,
		"tools", len(n.srv.ToolNames()),
		"resources", literals+templates,
		"addr", n.cfg.ListenAddr(),
	)

	exporter := metrics.NewPrometheusExporter(metrics.DefaultRegistry, metrics.DefaultPrometheusConfig())
	n.http = mcp.NewHTTPTransport(n.srv, n.cfg.ListenAddr(),
		mcp.WithHealthHandler(n.healthHandler()),
		mcp.WithMetricsHandler(exporter.Handler()),
	)

	if err := n.lifecycle.Register(newWatcherService(n, defaultWatchInterval), 10); err != nil {
		return err
	}
	if err := n.lifecycle.Register(n.http, 20); err != nil {
		return err
	}

	n.startEventLoop()

	if errs := n.lifecycle.StartAll(); len(errs) > 0 {
		_ = n.lifecycle.StopAll()
		n.stopEventLoop()
		return errors.Join(errs...)
	}

	if n.cfg.Debug {
		n.reporter = metrics.NewMetricsReporter(metrics.DefaultRegistry, reportInterval)
		n.reporter.RegisterBackend("log", metrics.NewLogBackend(nil))
		n.reporter.Start()
	}

	n.health.SetStartTime(time.Now().Unix())
	n.running = true
	n.log.Info("gateway started", "addr", n.http.Addr())
	return nil
}

// Stop shuts down all services in reverse start order, closes the event
// bus and disconnects every upstream client. Safe to call when not
// running.
func (n *Node) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.running {
		return nil
	}
	n.log.Info("stopping gateway")

	errs := n.lifecycle.StopAll()
	n.stopEventLoop()
	n.bus.Close()
	if n.reporter != nil {
		n.reporter.Stop()
	}
	n.pool.Close()

	n.running = false
	close(n.stop)
	n.log.Info("gateway stopped")
	return errors.Join(errs...)
}

// ServeStdio runs the MCP server over stdin and stdout, the transport MCP
// clients use for locally spawned servers. No HTTP services or watchers
// are started; the call returns when ctx is cancelled or stdin closes.
func (n *Node) ServeStdio(ctx context.Context) error {
	n.log.Info("serving MCP on stdio", "version", Version, "tools", len(n.srv.ToolNames()))
	return mcp.NewStdioTransport(n.srv).Run(ctx)
}

// Wait blocks until the node is stopped.
func (n *Node) Wait() {
	<-n.stop
}

// Running reports whether the node is currently running.
func (n *Node) Running() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.running
}

// Server returns the MCP server.
func (n *Node) Server() *mcp.Server {
	return n.srv
}

// Registry returns the network registry.
func (n *Node) Registry() *chains.Registry {
	return n.registry
}

// Health returns the subsystem health checker.
func (n *Node) Health() *HealthChecker {
	return n.health
}

// Events returns the node event bus.
func (n *Node) Events() *EventBus {
	return n.bus
}

// startEventLoop subscribes the metrics sink to the bus: chain heads feed
// the per-network height gauges, gas quotes the price gauges.
func (n *Node) startEventLoop() {
	n.eventSub = n.bus.Subscribe(EventChainHead, EventGasQuote)
	n.eventWG.Add(1)
	go func() {
		defer n.eventWG.Done()
		for ev := range n.eventSub.Chan() {
			switch ev.Type {
			case EventChainHead:
				head, ok := ev.Data.(analytics.BlockEvent)
				if !ok {
					continue
				}
				metrics.ChainHeight(head.Network).Set(int64(head.Number))
				n.log.Debug("new head", "network", head.Network, "number", head.Number, "txs", head.TxCount)
			case EventGasQuote:
				q, ok := ev.Data.(GasQuoteEvent)
				if !ok || q.StandardWei == nil || !q.StandardWei.IsInt64() {
					continue
				}
				metrics.ChainGasPrice(q.Network).Set(q.StandardWei.Int64())
			}
		}
	}()
}

func (n *Node) stopEventLoop() {
	if n.eventSub == nil {
		return
	}
	n.eventSub.Unsubscribe()
	n.eventWG.Wait()
	n.eventSub = nil
}

// defaultSibling is the network the sibling-scoped tools operate on when
// the caller names none: the configured default when it belongs to the
// family, the primary sibling otherwise.
func (n *Node) defaultSibling() chains.NetworkDescriptor {
	if n.defaultNet.IsSiblingFamily {
		return n.defaultNet
	}
	return n.registry.Primary()
}
