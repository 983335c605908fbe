package internal

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/samber/lo"
)

const pruneThreshold = 1024

// RateLimiter is a per-key sliding window limiter.
type RateLimiter struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRateLimiter allows limit hits per key within window. A non-positive
// limit disables limiting.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		hits:   make(map[string][]time.Time),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

func (r *RateLimiter) Allow(key string) bool {
	if r == nil || r.limit <= 0 {
		return true
	}
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	windowStart := now.Add(-r.window)
	recent := lo.DropWhile(r.hits[key], func(ts time.Time) bool {
		return !ts.After(windowStart)
	})
	if len(recent) >= r.limit {
		r.hits[key] = recent
		return false
	}
	r.hits[key] = append(recent, now)
	if len(r.hits) > pruneThreshold {
		r.prune(windowStart)
	}
	return true
}

// prune forgets keys whose newest hit has left the window.
func (r *RateLimiter) prune(windowStart time.Time) {
	for key, hits := range r.hits {
		if len(hits) == 0 || !hits[len(hits)-1].After(windowStart) {
			delete(r.hits, key)
		}
	}
}

// Middleware rejects requests over the limit with 429, keyed by client IP.
func (r *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !r.Allow(clientIP(req)) {
			writeError(w, http.StatusTooManyRequests, errTooManyRequests)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
