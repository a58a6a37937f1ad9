package metrics

// Pre-defined metrics for the IOTA EVM gateway. All metrics live in
// DefaultRegistry so they are globally accessible without passing a
// registry around.

var (
	// ---- Tool dispatch metrics ----

	// ToolCalls counts tool invocations across all transports.
	ToolCalls = DefaultRegistry.Counter("mcp.tool_calls")
	// ToolErrors counts tool invocations that returned an error envelope.
	ToolErrors = DefaultRegistry.Counter("mcp.tool_errors")
	// ToolLatency records tool handler latency in milliseconds.
	ToolLatency = DefaultRegistry.Histogram("mcp.tool_latency_ms")
	// ToolRate tracks the tool call rate per second.
	ToolRate = DefaultRegistry.Meter("mcp.tool_rate")

	// ---- Resource metrics ----

	// ResourceReads counts resource reads across all transports.
	ResourceReads = DefaultRegistry.Counter("mcp.resource_reads")
	// ResourceErrors counts resource reads that failed.
	ResourceErrors = DefaultRegistry.Counter("mcp.resource_errors")

	// ---- Upstream RPC metrics ----

	// UpstreamDials counts lazy client dials to sibling networks.
	UpstreamDials = DefaultRegistry.Counter("upstream.dials")
	// UpstreamDialErrors counts sibling dials that failed.
	UpstreamDialErrors = DefaultRegistry.Counter("upstream.dial_errors")
	// UpstreamLatency records upstream JSON-RPC round-trip latency in
	// milliseconds, fed by the health checker's head lookups.
	UpstreamLatency = DefaultRegistry.Histogram("upstream.latency_ms")
)

// ChainHeight returns the latest-height gauge for a sibling network,
// creating it on first use. Gauge names follow "chain.height.<network>"
// ("chain.height.iota", "chain.height.shimmer").
func ChainHeight(network string) *Gauge {
	return DefaultRegistry.Gauge("chain.height." + network)
}

// ChainGasPrice returns the suggested-gas-price gauge (in wei) for a sibling
// network, creating it on first use.
func ChainGasPrice(network string) *Gauge {
	return DefaultRegistry.Gauge("chain.gas_price_wei." + network)
}
