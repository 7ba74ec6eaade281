// Package clock abstracts the wall clock so backup folder names can be
// produced deterministically in tests.
package clock

import (
	"sync"
	"time"
)

// Clock reports the time used to stamp backups.
type Clock interface {
	Now() time.Time
}

// RealClock reads the local system time. Backup names use local time so the
// operator recognizes them.
type RealClock struct{}

func (c *RealClock) Now() time.Time {
	return time.Now()
}

// FakeClock is a manually driven Clock, safe to share between the hosts of a
// test.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
}

// NewFakeClock returns a FakeClock stopped at t.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{current: t}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	c.mu.Unlock()
}
