// Package sched provides the engine's single deadline scheduler: a priority
// queue of timestamped callbacks drained by one sweeper goroutine. Expiry
// timers and idle sweeps all run through it so cancellation is explicit and
// tests can drive time with a manual clock.
package sched

import (
	"sync"
	"time"
)

// Clock abstracts time for the scheduler so tests can advance it manually.
type Clock interface {
	// Now returns the current instant.
	Now() time.Time
}

// realClock reads the wall clock.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RealClock returns a Clock backed by the wall clock.
func RealClock() Clock { return realClock{} }

// ManualClock is a Clock that only moves when told to. It is safe for
// concurrent use.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a manual clock starting at the given instant.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the clock's current instant.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to the given instant.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
