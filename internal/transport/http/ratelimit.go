package http

import (
	"sync"
	"time"
)

// rateLimiter counts inbound commands of one connection in fixed windows.
// A zero limit disables it.
type rateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	started time.Time
	count   int
	now     func() time.Time
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	if window <= 0 {
		limit = 0
	}
	return &rateLimiter{limit: limit, window: window, now: time.Now}
}

// allow records one command and reports whether it fits the current window.
func (r *rateLimiter) allow() bool {
	if r == nil || r.limit <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if now.Sub(r.started) >= r.window {
		r.started = now
		r.count = 0
	}
	r.count++
	return r.count <= r.limit
}
