package signal

import (
	"sync"
	"time"

	"github.com/micmove/micmove/internal/domain"
)

// MessageRateLimiter bounds inbound frames per identity over a sliding
// window. Over-limit frames are dropped silently, like any other
// unprocessable input.
type MessageRateLimiter struct {
	mu       sync.Mutex
	history  map[domain.Identity][]time.Time
	limit    int
	interval time.Duration
}

func NewMessageRateLimiter(limit int, interval time.Duration) *MessageRateLimiter {
	return &MessageRateLimiter{
		history:  make(map[domain.Identity][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (rl *MessageRateLimiter) Allow(id domain.Identity) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[id]
	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[id] = fresh
		return false
	}

	fresh = append(fresh, now)
	rl.history[id] = fresh
	return true
}

// Forget drops bookkeeping for an evicted identity.
func (rl *MessageRateLimiter) Forget(id domain.Identity) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.history, id)
}
