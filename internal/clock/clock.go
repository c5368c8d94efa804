// Package clock implements the service-day time arithmetic used to resolve
// GTFS clock times against a calendar date, plus a time abstraction so
// time-dependent logic stays deterministic under test.
package clock

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// Clock provides an abstraction for reading the current time.
// Use RealClock in production and MockClock in tests.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using actual system time.
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

// MockClock implements Clock and provides a controllable, thread-safe time
// for tests. Use NewMockClock to create instances.
type MockClock struct {
	currentTime time.Time
	mu          sync.Mutex
}

// NewMockClock creates a new MockClock set to the specified time.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{currentTime: t}
}

func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentTime
}

// Set changes the mock clock's current time.
func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTime = t
}

// Advance moves the mock clock by the specified duration.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTime = m.currentTime.Add(d)
}

// ServiceDayStart returns the instant a service day begins in loc: local
// midday of the calendar date minus twelve hours. Anchoring at midday rather
// than midnight sidesteps the daylight-saving ambiguity at the day boundary,
// so adding a schedule offset to the anchor always lands on the operator's
// intended wall-clock time.
func ServiceDayStart(date time.Time, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, 12, 0, 0, 0, loc).Add(-12 * time.Hour)
}

// ParseClockTime parses a GTFS "HH:MM:SS" clock time as an offset past the
// start of the service day. Hours are unbounded: "25:10:00" means 01:10 on
// the following calendar day of the same service day. An empty or malformed
// string reports ok=false; missing schedule times pass through as missing
// rather than failing the caller.
func ParseClockTime(s string) (time.Duration, bool) {
	if s == "" {
		return 0, false
	}
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return 0, false
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || h < 0 {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	sec, err := strconv.Atoi(parts[2])
	if err != nil || sec < 0 || sec > 59 {
		return 0, false
	}
	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(sec)*time.Second, true
}

// ResolveClockTime binds a schedule offset to a service-day anchor, yielding
// an absolute instant expressed in loc. The anchor is an absolute instant,
// so the addition is exact across DST transitions; only the presentation
// zone is renormalized.
func ResolveClockTime(anchor time.Time, offset time.Duration, loc *time.Location) time.Time {
	return anchor.Add(offset).In(loc)
}
