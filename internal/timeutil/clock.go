// Package timeutil provides a testable abstraction over time operations.
package timeutil

import (
	"math"
	"sync"
	"time"
)

// Clock provides an abstraction over time operations for testability.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Since returns the duration since t.
	Since(t time.Time) time.Duration
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// Since returns the duration since t.
func (RealClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

// MockClock is a manually controlled clock for testing.
type MockClock struct {
	mu  sync.Mutex
	now time.Time
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

// Set sets the mock clock to a specific time.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the mock clock forward by the given duration.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Since returns the duration since t.
func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// SecondsPerDay converts the day-valued PRM clocks to seconds.
const SecondsPerDay = 86400.0

// SCClock formats t as a spacecraft clock, yyyyddd.fraction with a 1-based
// day of year.
func SCClock(t time.Time) float64 {
	t = t.UTC()
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	frac := t.Sub(midnight).Seconds() / SecondsPerDay
	return float64(t.Year()*1000+t.YearDay()) + frac
}

// ParseSCClock converts a yyyyddd.fraction spacecraft clock to UTC,
// rounded to the millisecond.
func ParseSCClock(v float64) time.Time {
	whole := math.Floor(v)
	year := int(whole) / 1000
	day := int(whole) % 1000
	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, day-1)
	offset := time.Duration((v - whole) * SecondsPerDay * float64(time.Second))
	return start.Add(offset).Round(time.Millisecond)
}
