package mcp

import (
	"net/http"
	"sync"
	"time"
)

// tokenBucket implements a refilling token bucket for one client.
type tokenBucket struct {
	tokens   float64
	capacity float64
	rate     float64 // tokens per second
	last     time.Time
}

func (b *tokenBucket) allow(now time.Time) bool {
	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.rate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.last = now
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// RateLimiter enforces a per-client request rate keyed by client IP.
// A rate of zero disables limiting.
type RateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*tokenBucket
	lastSeen map[string]time.Time
	rate     float64
	capacity float64
}

// NewRateLimiter creates a limiter allowing rps sustained requests per
// second per client with bursts up to rps*burst.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		buckets:  make(map[string]*tokenBucket),
		lastSeen: make(map[string]time.Time),
		rate:     rps,
		capacity: rps * float64(burst),
	}
}

// Allow reports whether the client may proceed now.
func (rl *RateLimiter) Allow(client string) bool {
	return rl.allowAt(client, time.Now())
}

func (rl *RateLimiter) allowAt(client string, now time.Time) bool {
	if rl.rate <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[client]
	if !ok {
		b = &tokenBucket{
			tokens:   rl.capacity,
			capacity: rl.capacity,
			rate:     rl.rate,
			last:     now,
		}
		rl.buckets[client] = b
	}
	rl.lastSeen[client] = now
	return b.allow(now)
}

// PruneInactive drops buckets idle longer than maxIdle and returns how many
// were removed. Callers run this periodically to bound memory.
func (rl *RateLimiter) PruneInactive(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for client, seen := range rl.lastSeen {
		if seen.Before(cutoff) {
			delete(rl.buckets, client)
			delete(rl.lastSeen, client)
			removed++
		}
	}
	return removed
}

// ClientCount returns the number of tracked clients.
func (rl *RateLimiter) ClientCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// Middleware rejects over-limit requests with 429 before they reach the
// MCP dispatcher.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientIP(r)) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
