package node

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/iotaevm/gateway/metrics"
)

const (
	// rpcCheckTimeout bounds the upstream round trip of one health probe.
	rpcCheckTimeout = 5 * time.Second

	// rpcDegradedAfter is the probe latency above which the upstream is
	// reported degraded rather than healthy.
	rpcDegradedAfter = 2 * time.Second
)

// registryChecker reports on the chain registry. The registry is immutable
// after construction, so this is a liveness statement plus inventory.
func (n *Node) registryChecker() SubsystemChecker {
	return CheckerFunc(func() *SubsystemHealth {
		return &SubsystemHealth{
			Status: StatusHealthy,
			Message: fmt.Sprintf("%d networks, %d siblings",
				len(n.registry.List()), len(n.registry.Siblings())),
		}
	})
}

// rpcChecker probes the upstream node of a network with a head lookup.
// Slow answers degrade the subsystem; failures mark it unhealthy.
func (n *Node) rpcChecker(network string) SubsystemChecker {
	return CheckerFunc(func() *SubsystemHealth {
		ctx, cancel := context.WithTimeout(context.Background(), rpcCheckTimeout)
		defer cancel()

		client, err := n.src.Client(ctx, network)
		if err != nil {
			return &SubsystemHealth{
				Status:  StatusUnhealthy,
				Message: "dial: " + err.Error(),
			}
		}

		start := time.Now()
		head, err := client.BlockNumber(ctx)
		elapsed := time.Since(start)
		metrics.UpstreamLatency.Observe(float64(elapsed) / float64(time.Millisecond))

		if err != nil {
			return &SubsystemHealth{
				Status:  StatusUnhealthy,
				Message: "head lookup: " + err.Error(),
			}
		}
		if elapsed > rpcDegradedAfter {
			return &SubsystemHealth{
				Status:  StatusDegraded,
				Message: fmt.Sprintf("head %d in %s", head, elapsed.Round(time.Millisecond)),
			}
		}
		return &SubsystemHealth{
			Status:  StatusHealthy,
			Message: fmt.Sprintf("head %d", head),
		}
	})
}

// mcpChecker reports on the MCP transport. In stdio mode the transport has
// no listener and is considered healthy as long as the process runs.
func (n *Node) mcpChecker() SubsystemChecker {
	return CheckerFunc(func() *SubsystemHealth {
		if n.http == nil {
			return &SubsystemHealth{Status: StatusHealthy, Message: "stdio transport"}
		}
		addr := n.http.Addr()
		if addr == "" {
			return &SubsystemHealth{Status: StatusUnhealthy, Message: "listener not bound"}
		}
		return &SubsystemHealth{Status: StatusHealthy, Message: "listening on " + addr}
	})
}

// healthHandler serves the consolidated health report. Unhealthy reports
// answer 503 so load balancers can eject the instance.
func (n *Node) healthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		report := n.health.CheckAll()

		code := http.StatusOK
		if report.OverallStatus == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(report)
	})
}
