package middleware

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// Tracked clients are reset wholesale past this count rather than aged
// out individually; a node fronting a handful of agent runtimes never
// gets near it in normal operation.
const maxTrackedClients = 10000

// limiterPool holds one token bucket per client IP. Query, broadcast
// and verify endpoints all fan out to paid model backends, so the cap
// is per client rather than global: one noisy runtime must not drain
// the provider quota for everyone.
type limiterPool struct {
	mu      sync.Mutex
	clients map[string]*rate.Limiter
	rate    rate.Limit
	burst   int
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if l, ok := p.clients[key]; ok {
		return l
	}
	if len(p.clients) >= maxTrackedClients {
		p.clients = make(map[string]*rate.Limiter)
	}
	l := rate.NewLimiter(p.rate, p.burst)
	p.clients[key] = l
	return l
}

// RateLimit returns middleware that throttles requests per client IP.
// The IP comes from X-Real-IP when the RealIP middleware has resolved
// it, falling back to the raw remote address.
func RateLimit(rps float64, burst int) func(http.Handler) http.Handler {
	pool := &limiterPool{
		clients: make(map[string]*rate.Limiter),
		rate:    rate.Limit(rps),
		burst:   burst,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := r.Header.Get("X-Real-IP")
			if ip == "" {
				ip = r.RemoteAddr
			}

			if !pool.get(ip).Allow() {
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
