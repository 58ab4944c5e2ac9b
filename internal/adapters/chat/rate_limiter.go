package chat

import (
	"sync"
	"time"
)

// MessageRateLimiter caps content messages per username with a sliding
// window. Over-limit messages are dropped by the caller, never queued.
type MessageRateLimiter struct {
	mu       sync.Mutex
	history  map[string][]time.Time
	limit    int
	interval time.Duration
}

func NewMessageRateLimiter(limit int, interval time.Duration) *MessageRateLimiter {
	return &MessageRateLimiter{
		history:  make(map[string][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (rl *MessageRateLimiter) Allow(username string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[username]

	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[username] = fresh
		return false
	}

	fresh = append(fresh, now)
	rl.history[username] = fresh

	return true
}

// Forget drops the history for username, e.g. after its session expired.
func (rl *MessageRateLimiter) Forget(username string) {
	rl.mu.Lock()
	delete(rl.history, username)
	rl.mu.Unlock()
}
