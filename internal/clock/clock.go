// Package clock isolates wall-clock reads so lifecycle logic stays
// deterministic under test.
//
// Core packages never call time.Now() directly. The binary wires Real at the
// entry point; tests use Fixed or Manual.
package clock

import (
	"sync"
	"time"
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

// Real returns the system time in UTC.
type Real struct{}

// Now returns the current system time.
func (Real) Now() time.Time { return time.Now().UTC() }

// Fixed always returns the same instant.
type Fixed struct {
	T time.Time
}

// Now returns the fixed time.
func (c Fixed) Now() time.Time { return c.T }

// Func adapts a function to Clock.
type Func func() time.Time

// Now calls the wrapped function.
func (f Func) Now() time.Time { return f() }

// Manual is a settable clock for tests that need time to move.
// Safe for concurrent use.
type Manual struct {
	mu sync.Mutex
	t  time.Time
}

// NewManual returns a Manual clock starting at t.
func NewManual(t time.Time) *Manual {
	return &Manual{t: t}
}

// Now returns the current manual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t
}

// Set moves the clock to t.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.t = t
	m.mu.Unlock()
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.t = m.t.Add(d)
	m.mu.Unlock()
}
