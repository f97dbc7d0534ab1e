package server

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter enforces per-client token-bucket limits keyed by remote
// address (middleware.RealIP runs first, so that is the original client).
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*rate.Limiter
	limit   rate.Limit
	burst   int
}

// NewRateLimiter creates a limiter allowing rps requests per second with the
// given burst per client.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		clients: make(map[string]*rate.Limiter),
		limit:   rate.Limit(rps),
		burst:   burst,
	}
}

// Allow reports whether a request from the client may proceed.
func (rl *RateLimiter) Allow(client string) bool {
	rl.mu.Lock()
	limiter, ok := rl.clients[client]
	if !ok {
		limiter = rate.NewLimiter(rl.limit, rl.burst)
		rl.clients[client] = limiter
	}
	rl.mu.Unlock()
	return limiter.Allow()
}

// RateLimitMiddleware rejects over-limit requests with 429.
func RateLimitMiddleware(rl *RateLimiter) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(r.RemoteAddr) {
				writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
