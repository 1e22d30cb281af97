package testutil

import (
	"sync"
	"time"
)

// DefaultEpoch is the first timestamp a FixedClock returns by default.
var DefaultEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// FixedClock is a deterministic wall clock for tests.
//
// Each call to Now returns the previous value plus Step, starting at the
// epoch. The same scenario run twice sees identical timestamps, which keeps
// golden traces byte-identical.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FixedClock struct {
	mu    sync.Mutex
	epoch time.Time
	step  time.Duration
	calls int64
}

// NewFixedClock creates a clock starting at epoch and advancing by step.
// A zero epoch uses DefaultEpoch; a zero step freezes time.
func NewFixedClock(epoch time.Time, step time.Duration) *FixedClock {
	if epoch.IsZero() {
		epoch = DefaultEpoch
	}
	return &FixedClock{epoch: epoch, step: step}
}

// Now returns the next timestamp.
//
// Implements engine.Clock.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.epoch.Add(time.Duration(c.calls) * c.step)
	c.calls++
	return t
}

// Calls returns how many timestamps have been handed out.
func (c *FixedClock) Calls() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Reset rewinds the clock to its epoch.
func (c *FixedClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = 0
}
