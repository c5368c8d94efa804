package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eastern(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

func TestMockClock_Now(t *testing.T) {
	fixedTime := time.Date(2024, 6, 15, 8, 30, 0, 0, time.UTC)
	c := NewMockClock(fixedTime)

	assert.Equal(t, fixedTime, c.Now())
	// Should return the same time on repeated calls
	assert.Equal(t, fixedTime, c.Now())
}

func TestMockClock_SetAndAdvance(t *testing.T) {
	initialTime := time.Date(2024, 6, 15, 8, 0, 0, 0, time.UTC)
	c := NewMockClock(initialTime)

	newTime := time.Date(2024, 12, 25, 12, 0, 0, 0, time.UTC)
	c.Set(newTime)
	assert.Equal(t, newTime, c.Now())

	c.Advance(90 * time.Minute)
	assert.Equal(t, time.Date(2024, 12, 25, 13, 30, 0, 0, time.UTC), c.Now())
}

func TestServiceDayStart(t *testing.T) {
	loc := eastern(t)

	start := ServiceDayStart(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), loc)
	assert.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, loc), start)
}

func TestServiceDayStart_SpringForward(t *testing.T) {
	loc := eastern(t)

	// On the spring-forward date the service day is 23 hours long, so midday
	// minus 12h falls on 23:00 the previous evening. What matters is that
	// schedule offsets resolved from this anchor land on the operator's
	// intended wall-clock times outside the skipped hour.
	start := ServiceDayStart(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), loc)
	assert.Equal(t, "2024-03-09 23:00:00 -0500 EST", start.String())

	d, ok := ParseClockTime("08:00:00")
	require.True(t, ok)
	assert.Equal(t, "2024-03-10 08:00:00 -0400 EDT", ResolveClockTime(start, d, loc).String())
}

func TestParseClockTime(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected time.Duration
		ok       bool
	}{
		{name: "MorningTime", input: "08:00:00", expected: 8 * time.Hour, ok: true},
		{name: "AfterMidnightRollover", input: "25:10:00", expected: 25*time.Hour + 10*time.Minute, ok: true},
		{name: "WithSeconds", input: "07:45:30", expected: 7*time.Hour + 45*time.Minute + 30*time.Second, ok: true},
		{name: "Empty", input: "", ok: false},
		{name: "TwoFields", input: "08:00", ok: false},
		{name: "NonNumericHour", input: "ab:00:00", ok: false},
		{name: "MinuteOutOfRange", input: "08:61:00", ok: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d, ok := ParseClockTime(tc.input)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.expected, d)
			}
		})
	}
}

func TestResolveClockTime_Rollover(t *testing.T) {
	loc := eastern(t)
	anchor := ServiceDayStart(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), loc)

	d, ok := ParseClockTime("25:10:00")
	require.True(t, ok)

	resolved := ResolveClockTime(anchor, d, loc)
	assert.Equal(t, time.Date(2024, 1, 6, 1, 10, 0, 0, loc), resolved)
}

func TestResolveClockTime_SameDay(t *testing.T) {
	loc := eastern(t)
	anchor := ServiceDayStart(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), loc)

	d, ok := ParseClockTime("08:00:00")
	require.True(t, ok)

	resolved := ResolveClockTime(anchor, d, loc)
	assert.Equal(t, time.Date(2024, 1, 5, 8, 0, 0, 0, loc), resolved)
}

func TestResolveClockTime_AcrossSpringForward(t *testing.T) {
	loc := eastern(t)
	// Service day 2024-03-09; a 26:30 trip crosses the 2024-03-10 02:00
	// spring-forward boundary.
	anchor := ServiceDayStart(time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), loc)

	d, ok := ParseClockTime("26:30:00")
	require.True(t, ok)

	resolved := ResolveClockTime(anchor, d, loc)
	// 26h30m of elapsed time past midnight EST lands at 03:30 EDT.
	assert.Equal(t, "2024-03-10 03:30:00 -0400 EDT", resolved.String())
}
