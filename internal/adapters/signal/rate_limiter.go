package signal

import (
	"sync"
	"time"

	"github.com/dkeye/Conclave/internal/domain"
)

// RateLimiter is a sliding window limiter keyed by peer.
type RateLimiter struct {
	mu       sync.Mutex
	history  map[domain.PeerID][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

func NewRateLimiter(limit int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		history:  make(map[domain.PeerID][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *RateLimiter) Allow(peer domain.PeerID) bool {
	if rl.limit <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[peer]
	fresh := attempts[:0]
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}
	if len(fresh) >= rl.limit {
		rl.history[peer] = fresh
		return false
	}
	rl.history[peer] = append(fresh, now)
	return true
}

// Forget drops the history of a disconnected peer.
func (rl *RateLimiter) Forget(peer domain.PeerID) {
	rl.mu.Lock()
	delete(rl.history, peer)
	rl.mu.Unlock()
}
