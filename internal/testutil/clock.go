// Package testutil provides small deterministic helpers — a steppable
// clock and a timestamp builder — shared by other packages' tests.
package testutil

import "sync"

// FixedClock implements txn.Clock with a value the test controls
// directly, so TTL/liveness comparisons are deterministic instead of
// racing against time.Now.
type FixedClock struct {
	mu  sync.Mutex
	now uint64
}

// NewFixedClock creates a clock starting at now.
func NewFixedClock(now uint64) *FixedClock {
	return &FixedClock{now: now}
}

// NowTS returns the current fixed ts.
func (c *FixedClock) NowTS() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to ts.
func (c *FixedClock) Set(ts uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = ts
}

// Advance moves the clock forward by delta and returns the new value.
func (c *FixedClock) Advance(delta uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += delta
	return c.now
}
