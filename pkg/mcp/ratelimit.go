package mcp

import (
	"sync"

	"golang.org/x/time/rate"
)

// sessionLimiter applies a token bucket per session (or per remote
// address before a session exists). Limiters are dropped when their
// session is evicted.
type sessionLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// newSessionLimiter creates a limiter pool. Defaults: 100 rps with a
// burst of 200.
func newSessionLimiter(rps float64, burst int) *sessionLimiter {
	if rps <= 0 {
		rps = 100
	}
	if burst <= 0 {
		burst = 200
	}
	return &sessionLimiter{
		limiters: map[string]*rate.Limiter{},
		limit:    rate.Limit(rps),
		burst:    burst,
	}
}

// allow reports whether the key may proceed.
func (l *sessionLimiter) allow(key string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}

// forget releases the key's bucket.
func (l *sessionLimiter) forget(key string) {
	l.mu.Lock()
	delete(l.limiters, key)
	l.mu.Unlock()
}
