package signal

import (
	"math"
	"sync"
	"time"

	"github.com/dkeye/Campus/internal/domain"
)

// PositionLimiter is a sliding-window limit on position updates per connection.
type PositionLimiter struct {
	mu       sync.Mutex
	history  map[domain.ConnID][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

// NewPositionLimiter allows rate events per interval. A rate of zero disables limiting.
func NewPositionLimiter(rate float64, interval time.Duration) *PositionLimiter {
	return &PositionLimiter{
		history:  make(map[domain.ConnID][]time.Time),
		limit:    int(math.Ceil(rate)),
		interval: interval,
		now:      time.Now,
	}
}

func (rl *PositionLimiter) Allow(id domain.ConnID) bool {
	if rl.limit <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[id]
	fresh := attempts[:0]
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}
	if len(fresh) >= rl.limit {
		rl.history[id] = fresh
		return false
	}
	rl.history[id] = append(fresh, now)
	return true
}

// Forget drops the history of a closed connection.
func (rl *PositionLimiter) Forget(id domain.ConnID) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.history, id)
}
