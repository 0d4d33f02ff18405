package httpapi

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// rateLimiter applies a token bucket per client IP. Buckets are created on
// first sight and never expire; the portal serves one municipality, so the
// client population is small and bounded.
type rateLimiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	clients map[string]*rate.Limiter
}

func newRateLimiter(perSecond float64, burst int) *rateLimiter {
	return &rateLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		clients: make(map[string]*rate.Limiter),
	}
}

func (rl *rateLimiter) limiterFor(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.clients[ip]
	if !ok {
		l = rate.NewLimiter(rl.limit, rl.burst)
		rl.clients[ip] = l
	}
	return l
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// RemoteAddr is already the client IP here; the RealIP middleware
		// runs earlier in the chain.
		if !rl.limiterFor(r.RemoteAddr).Allow() {
			writeJSON(w, http.StatusTooManyRequests, map[string]string{
				"error": "too many requests",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
