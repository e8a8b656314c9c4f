package testutil

import (
	"sync"
	"time"
)

// DefaultStart is the instant FixedClock starts at when none is given.
var DefaultStart = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// FixedClock is a manually advanced wall clock for tests.
//
// Now always returns the same instant until Advance or Set is called, so
// stores and sync sessions stamp byte-identical timestamps across runs.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixedClock creates a clock reading start (DefaultStart when zero).
func NewFixedClock(start time.Time) *FixedClock {
	if start.IsZero() {
		start = DefaultStart
	}
	return &FixedClock{now: start.UTC().Truncate(time.Millisecond)}
}

// Now returns the current instant without advancing.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new instant.
func (c *FixedClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d).Truncate(time.Millisecond)
	return c.now
}

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC().Truncate(time.Millisecond)
}
