// Package meter accumulates received byte counts into millisecond-tick
// windows. It is the only shared mutable state touched by every receive-path
// handler, and the one place in the interception layer that takes a lock.
package meter

import "sync"

// Meter counts bytes in a rolling window plus a cumulative total. Safe for
// concurrent use.
type Meter struct {
	mu sync.Mutex

	now func() int64 // millisecond clock

	windowAt int64 // start of the current window
	current  int64 // bytes in the current window
	lastAt   int64 // start of the last completed window
	lastRate int64 // bytes in the last completed window
	total    int64
}

// New returns a meter driven by the platform millisecond clock.
func New() *Meter {
	return newMeter(tickNow)
}

func newMeter(now func() int64) *Meter {
	return &Meter{now: now, windowAt: now()}
}

// Add records n received bytes. A negative n is the sockets "operation
// failed" sentinel and counts as zero.
func (m *Meter) Add(n int) {
	if n < 0 {
		n = 0
	}

	m.mu.Lock()
	m.tick(m.now())
	m.current += int64(n)
	m.mu.Unlock()
}

// tick rolls the window forward when at least one time unit has elapsed,
// folding the current window into the total. Caller holds the lock.
func (m *Meter) tick(now int64) {
	if now-m.windowAt < 1 {
		return
	}

	m.total += m.current
	m.lastRate = m.current
	m.current = 0

	m.lastAt = m.windowAt
	m.windowAt = now
}

// Total returns all bytes recorded so far, including the open window.
func (m *Meter) Total() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total + m.current
}

// LastWindow returns the byte count of the most recently completed window
// and its start time.
func (m *Meter) LastWindow() (bytes int64, startedAt int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRate, m.lastAt
}
