package application_test

import (
	"sync"
	"time"
)

// fakeClock returns a fixed base time, advancing one millisecond per call
// so records created in sequence stay ordered.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	calls int
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now.Add(time.Duration(c.calls) * time.Millisecond)
	c.calls++
	return t
}

func ptr(v float64) *float64 { return &v }
