// Package timeutil provides a testable abstraction over the blocking holds
// used by the approach sequence.
package timeutil

import (
	"context"
	"sync"
	"time"
)

// Clock provides an abstraction over time operations for testability.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Since returns the duration since t.
	Since(t time.Time) time.Duration

	// After waits for the duration to elapse and then sends the current time.
	After(d time.Duration) <-chan time.Time
}

// Wait blocks for d or until ctx is done. It reports ctx.Err() whenever the
// context finished, even if the timer fired in the same instant.
func Wait(ctx context.Context, c Clock, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-c.After(d):
	}
	return ctx.Err()
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// Since returns the time elapsed since t.
func (RealClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

// After waits for the duration to elapse and then sends the current time.
func (RealClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// MockClock is a manually controlled clock for testing. After never blocks:
// it advances the mock time by d, records d, and returns a fired channel.
type MockClock struct {
	mu    sync.Mutex
	now   time.Time
	waits []time.Duration

	// OnAfter, when set, runs before After returns. Tests use it to inject
	// events in the middle of a hold.
	OnAfter func(n int, d time.Duration)
}

// NewMockClock creates a new MockClock set to the given time.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

// Now returns the mocked current time.
func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Since returns the duration since t.
func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// After records d, advances the clock and returns an already fired channel.
func (c *MockClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.waits = append(c.waits, d)
	n := len(c.waits)
	now := c.now
	hook := c.OnAfter
	c.mu.Unlock()

	if hook != nil {
		hook(n, d)
	}

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

// Waits returns all recorded hold durations in order.
func (c *MockClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]time.Duration, len(c.waits))
	copy(result, c.waits)
	return result
}
