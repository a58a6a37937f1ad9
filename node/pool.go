package node

import (
	"context"
	"crypto/tls"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	gateway "github.com/iotaevm/gateway"
	"github.com/iotaevm/gateway/chains"
	"github.com/iotaevm/gateway/config"
	"github.com/iotaevm/gateway/evmrpc"
	"github.com/iotaevm/gateway/log"
	"github.com/iotaevm/gateway/metrics"
)

// Pool owns one RPC client per network, dialed on first use and shared by
// all callers afterwards. Concurrent first requests for the same network
// collapse into a single dial. Pool implements gateway.ClientSource.
type Pool struct {
	registry *chains.Registry
	cfg      *config.Config
	tlsCfg   *tls.Config
	log      *log.Logger

	group singleflight.Group

	mu      sync.RWMutex
	clients map[string]*evmrpc.Client
	closed  bool
}

var _ gateway.ClientSource = (*Pool)(nil)

// NewPool creates a client pool over the given registry. TLS material is
// loaded eagerly so that a bad certificate path fails at startup rather
// than on the first dial.
func NewPool(registry *chains.Registry, cfg *config.Config) (*Pool, error) {
	tlsCfg, err := cfg.TLS.Load()
	if err != nil {
		return nil, err
	}
	return &Pool{
		registry: registry,
		cfg:      cfg,
		tlsCfg:   tlsCfg,
		log:      log.Default().Module("pool"),
		clients:  make(map[string]*evmrpc.Client),
	}, nil
}

// Client returns the shared client for a network reference (short name or
// decimal chain id), dialing it on first use.
func (p *Pool) Client(ctx context.Context, network string) (gateway.Client, error) {
	c, err := p.Raw(ctx, network)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Raw is Client without the interface wrapper. Callers that need the full
// method set, such as the transaction signer, use it to reach
// SendRawTransaction.
func (p *Pool) Raw(ctx context.Context, network string) (*evmrpc.Client, error) {
	d, err := p.registry.Resolve(network)
	if err != nil {
		return nil, err
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, gateway.Logicf("client pool is closed")
	}
	if c, ok := p.clients[d.ShortName]; ok {
		p.mu.RUnlock()
		return c, nil
	}
	p.mu.RUnlock()

	// The winning caller's context governs the dial; losers share its
	// result. A per-network key keeps distinct networks independent.
	v, err, _ := p.group.Do(d.ShortName, func() (any, error) {
		p.mu.RLock()
		c, ok := p.clients[d.ShortName]
		closed := p.closed
		p.mu.RUnlock()
		if closed {
			return nil, gateway.Logicf("client pool is closed")
		}
		if ok {
			return c, nil
		}
		return p.dial(ctx, d)
	})
	if err != nil {
		return nil, err
	}
	return v.(*evmrpc.Client), nil
}

func (p *Pool) dial(ctx context.Context, d chains.NetworkDescriptor) (*evmrpc.Client, error) {
	var opts []evmrpc.Option
	if p.tlsCfg != nil {
		opts = append(opts, evmrpc.WithTLS(p.tlsCfg))
	}
	if sc := p.cfg.Sibling(d.ShortName); sc.JWTToken != "" {
		opts = append(opts, evmrpc.WithJWT(sc.JWTToken))
	}

	metrics.UpstreamDials.Inc()
	c, err := evmrpc.Dial(ctx, d.DefaultRPCURL, opts...)
	if err != nil {
		metrics.UpstreamDialErrors.Inc()
		p.log.Warn("upstream dial failed", "network", d.ShortName, "err", err)
		return nil, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		c.Close()
		return nil, gateway.Logicf("client pool is closed")
	}
	p.clients[d.ShortName] = c
	p.mu.Unlock()

	p.log.Info("upstream connected", "network", d.ShortName, "chainId", d.ChainID)
	return c, nil
}

// ClientCount returns the number of connected networks.
func (p *Pool) ClientCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.clients)
}

// Connected returns the short names of the networks with a live client,
// sorted for stable output.
func (p *Pool) Connected() []string {
	p.mu.RLock()
	names := make([]string, 0, len(p.clients))
	for name := range p.clients {
		names = append(names, name)
	}
	p.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Close closes every client and rejects further use. Safe to call more
// than once.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	clients := p.clients
	p.clients = make(map[string]*evmrpc.Client)
	p.mu.Unlock()

	for name, c := range clients {
		c.Close()
		p.log.Debug("upstream closed", "network", name)
	}
}
