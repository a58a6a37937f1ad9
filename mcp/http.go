package mcp

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iotaevm/gateway/log"
)

// maxBodySize bounds a single HTTP request body, matching the stdio frame
// limit.
const maxBodySize = maxFrameSize

// HTTPTransport serves MCP over HTTP POST /mcp on a chi router that also
// exposes /healthz and /metrics. It implements the node Service contract:
// Start binds the listener and serves in the background, Stop drains
// in-flight requests.
type HTTPTransport struct {
	srv  *Server
	addr string
	log  *log.Logger

	limiter *RateLimiter
	cors    CORSConfig
	health  http.Handler
	metrics http.Handler

	hs *http.Server
	ln net.Listener
}

// HTTPOption configures an HTTPTransport.
type HTTPOption func(*HTTPTransport)

// WithHealthHandler wires the /healthz endpoint.
func WithHealthHandler(h http.Handler) HTTPOption {
	return func(t *HTTPTransport) { t.health = h }
}

// WithMetricsHandler wires the /metrics endpoint.
func WithMetricsHandler(h http.Handler) HTTPOption {
	return func(t *HTTPTransport) { t.metrics = h }
}

// WithRateLimit caps per-client request rates on every route. rps <= 0
// leaves the transport unlimited.
func WithRateLimit(rps float64, burst int) HTTPOption {
	return func(t *HTTPTransport) { t.limiter = NewRateLimiter(rps, burst) }
}

// WithCORSConfig overrides the default CORS policy.
func WithCORSConfig(cfg CORSConfig) HTTPOption {
	return func(t *HTTPTransport) { t.cors = cfg }
}

// NewHTTPTransport creates a transport for the given bind address.
func NewHTTPTransport(srv *Server, addr string, opts ...HTTPOption) *HTTPTransport {
	t := &HTTPTransport{
		srv:  srv,
		addr: addr,
		cors: DefaultCORSConfig(),
		log:  log.Default().Module("mcp.http"),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.hs = &http.Server{
		Handler:           t.router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return t
}

func (t *HTTPTransport) router() http.Handler {
	r := chi.NewRouter()
	r.Use(Recoverer(t.log))
	r.Use(RequestLogger(t.log))
	r.Use(CORS(t.cors))
	if t.limiter != nil {
		r.Use(t.limiter.Middleware)
	}

	r.Post("/mcp", t.handleMCP)
	r.Get("/healthz", t.handleHealth)
	if t.metrics != nil {
		r.Method(http.MethodGet, "/metrics", t.metrics)
	}
	return r
}

func (t *HTTPTransport) handleMCP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeJSONRPCError(w, ErrCodeInvalidRequest, "request body too large or unreadable")
		return
	}
	if isBatch(body) {
		writeJSONRPCError(w, ErrCodeInvalidRequest, "batch requests not supported")
		return
	}

	resp := t.srv.HandleMessage(r.Context(), body)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(resp)
}

func (t *HTTPTransport) handleHealth(w http.ResponseWriter, r *http.Request) {
	if t.health != nil {
		t.health.ServeHTTP(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// Start binds the listener and serves in the background. Bind failures
// surface synchronously.
func (t *HTTPTransport) Start() error {
	ln, err := net.Listen("tcp", t.addr)
	if err != nil {
		return err
	}
	t.ln = ln

	go func() {
		if err := t.hs.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.log.Error("http serve failed", "err", err)
		}
	}()

	t.log.Info("http transport listening", "addr", ln.Addr().String())
	return nil
}

// Stop drains in-flight requests and closes the listener.
func (t *HTTPTransport) Stop() error {
	if t.ln == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return t.hs.Shutdown(ctx)
}

// Name identifies the transport to the lifecycle manager.
func (t *HTTPTransport) Name() string { return "mcp-http" }

// Addr returns the bound listener address, or the configured address before
// Start.
func (t *HTTPTransport) Addr() string {
	if t.ln != nil {
		return t.ln.Addr().String()
	}
	return t.addr
}

func isBatch(body []byte) bool {
	for _, c := range body {
		switch c {
		case ' ', '\t', '\r', '\n':
			continue
		case '[':
			return true
		default:
			return false
		}
	}
	return false
}

func writeJSONRPCError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	data := marshalResponse(errorResponse(nil, code, message))
	w.Write(data)
}
