package clock

import (
	"sync"
	"time"
)

// Clock abstracts wall-clock access so time-dependent logic can be tested
// deterministically without sleeps.
type Clock interface {
	// Now returns the current time. Implementations should return UTC.
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// System returns a Clock backed by the real wall clock.
func System() Clock {
	return systemClock{}
}

// Fixed is a manually controlled Clock for tests. The zero value is not
// usable; construct it with NewFixed.
type Fixed struct {
	mu  sync.RWMutex
	now time.Time
}

// NewFixed returns a Fixed clock frozen at the given time.
func NewFixed(t time.Time) *Fixed {
	return &Fixed{now: t.UTC()}
}

// Now returns the frozen time.
func (f *Fixed) Now() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.now
}

// Advance moves the frozen time forward by d.
func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// AdvanceDays moves the frozen time forward by whole days.
func (f *Fixed) AdvanceDays(days int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.AddDate(0, 0, days)
}

// Set replaces the frozen time.
func (f *Fixed) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t.UTC()
}
