package progress

import (
	"sync"
	"time"
)

// Throttle limits how often a transport emits progress samples.
// It allows one sample per interval and is safe for concurrent use.
type Throttle struct {
	mu          sync.Mutex
	interval    time.Duration
	lastAllowed time.Time
}

// NewThrottle creates a throttle with the specified interval.
// A zero interval lets every sample through.
func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{
		interval: interval,
	}
}

// Allow checks if a sample may be emitted now.
// Returns true if allowed (and records this as the last allowed time),
// or false with the remaining wait duration if throttled.
func (t *Throttle) Allow() (bool, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	sinceLast := now.Sub(t.lastAllowed)

	if sinceLast >= t.interval {
		t.lastAllowed = now
		return true, 0
	}

	return false, t.interval - sinceLast
}

// AllowFinal always lets the final sample of a transfer through
func (t *Throttle) AllowFinal(observed, expected int64) bool {
	if expected > 0 && observed >= expected {
		t.mu.Lock()
		t.lastAllowed = time.Now()
		t.mu.Unlock()
		return true
	}
	ok, _ := t.Allow()
	return ok
}
