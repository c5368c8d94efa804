// Package align joins one service day of vehicle observations against the
// schedule active on that day and reduces them to one summary row per trip.
package align

import (
	"sort"
	"time"

	"ontime.transitperf.org/internal/clock"
	"ontime.transitperf.org/internal/obs"
	"ontime.transitperf.org/internal/sched"
)

// TripSummary is one trip's on-time performance for one service day.
// Pointer fields are nullable: a nil delay means it could not be computed
// for this trip (no schedule match, or too few usable observations).
// Delays are in seconds, positive when the vehicle ran late.
type TripSummary struct {
	TripID string

	MinMarginalDelayStopID *string
	MinMarginalDelay       *float64
	MaxMarginalDelayStopID *string
	MaxMarginalDelay       *float64

	RecordedStops  int
	ScheduledStops int

	ScheduledStart       *time.Time
	FirstTime            *time.Time
	FirstDelay           *float64
	FirstStopID          *string
	FirstScheduledStopID *string

	ScheduledEnd        *time.Time
	LastTime            *time.Time
	LastDelay           *float64
	LastStopID          *string
	LastScheduledStopID *string

	Delay50 *float64

	RouteID     *string
	DirectionID *string
}

// joinedRow is one observation with its schedule match, if any.
type joinedRow struct {
	rec        obs.Record
	arrival    time.Duration
	hasArrival bool
}

// Summarize reduces one day's deduplicated observations to per-trip summary
// rows. anchor is the service day start in the operator's zone; scheduled
// times past 24:00:00 resolve into the following calendar day. The result
// is ordered by trip ID so reprocessing a file yields identical output.
func Summarize(records []obs.Record, idx *sched.Index, anchor time.Time, loc *time.Location) []TripSummary {
	byTrip := make(map[string][]joinedRow)
	var tripIDs []string
	for _, rec := range records {
		row := joinedRow{rec: rec}
		if rec.HasSequence {
			if stop, ok := idx.StopAt(rec.TripID, rec.StopSequence); ok {
				row.arrival = stop.Arrival
				row.hasArrival = true
			}
		}
		if _, seen := byTrip[rec.TripID]; !seen {
			tripIDs = append(tripIDs, rec.TripID)
		}
		byTrip[rec.TripID] = append(byTrip[rec.TripID], row)
	}
	sort.Strings(tripIDs)

	summaries := make([]TripSummary, 0, len(tripIDs))
	for _, tripID := range tripIDs {
		s := summarizeTrip(tripID, byTrip[tripID], anchor, loc)
		if route, ok := idx.TripRoute(tripID); ok {
			s.RouteID = ptr(route.RouteID)
			s.DirectionID = ptr(route.DirectionID)
		}
		summaries = append(summaries, s)
	}
	return summaries
}

func summarizeTrip(tripID string, rows []joinedRow, anchor time.Time, loc *time.Location) TripSummary {
	s := TripSummary{TripID: tripID}

	// Scheduled stops are counted as distinct matched arrival values, so a
	// trip never seen in the static feed counts zero.
	distinctArrivals := make(map[time.Duration]struct{})
	for _, row := range rows {
		if row.hasArrival {
			distinctArrivals[row.arrival] = struct{}{}
		}
	}
	s.ScheduledStops = len(distinctArrivals)

	// Order all rows by stop sequence, sequence-less rows last, ties kept
	// in input order. The endpoints of this ordering define the trip's
	// scheduled start and end.
	ordered := make([]joinedRow, len(rows))
	copy(ordered, rows)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.rec.HasSequence != b.rec.HasSequence {
			return a.rec.HasSequence
		}
		return a.rec.StopSequence < b.rec.StopSequence
	})
	firstScheduled := ordered[0]
	lastScheduled := ordered[len(ordered)-1]
	if firstScheduled.hasArrival {
		s.ScheduledStart = ptr(clock.ResolveClockTime(anchor, firstScheduled.arrival, loc))
	}
	if lastScheduled.hasArrival {
		s.ScheduledEnd = ptr(clock.ResolveClockTime(anchor, lastScheduled.arrival, loc))
	}

	// Within each stop sequence keep only the latest-timestamped
	// observation, earliest row winning ties. Rows with no timestamp or no
	// sequence drop out here.
	best := make(map[int]joinedRow)
	for _, row := range ordered {
		if !row.rec.HasSequence || row.rec.Timestamp.IsZero() {
			continue
		}
		cur, ok := best[row.rec.StopSequence]
		if !ok || row.rec.Timestamp.After(cur.rec.Timestamp) {
			best[row.rec.StopSequence] = row
		}
	}
	survivors := make([]joinedRow, 0, len(best))
	for _, row := range best {
		survivors = append(survivors, row)
	}
	sort.Slice(survivors, func(i, j int) bool {
		return survivors[i].rec.StopSequence < survivors[j].rec.StopSequence
	})
	s.RecordedStops = len(survivors)

	if len(survivors) == 0 {
		return s
	}
	s.FirstTime = ptr(survivors[0].rec.Timestamp)
	s.FirstStopID = ptr(survivors[0].rec.StopID)
	s.LastTime = ptr(survivors[len(survivors)-1].rec.Timestamp)
	s.LastStopID = ptr(survivors[len(survivors)-1].rec.StopID)

	if s.ScheduledStops == 0 {
		// Observed but absent from the static feed: counts only.
		return s
	}

	// Per-stop delay in seconds, null where the stop has no schedule match.
	delays := make([]*float64, len(survivors))
	for i, row := range survivors {
		if !row.hasArrival {
			continue
		}
		scheduled := clock.ResolveClockTime(anchor, row.arrival, loc)
		delays[i] = ptr(row.rec.Timestamp.Sub(scheduled).Seconds())
	}

	// Marginal delay is the delay change between consecutive recorded
	// stops, defined only where both neighbors have a delay.
	marginals := make([]*float64, len(survivors))
	for i := 1; i < len(survivors); i++ {
		if delays[i] != nil && delays[i-1] != nil {
			marginals[i] = ptr(*delays[i] - *delays[i-1])
		}
	}
	minIdx, maxIdx := -1, -1
	for i, m := range marginals {
		if m == nil {
			continue
		}
		if minIdx < 0 || *m < *marginals[minIdx] {
			minIdx = i
		}
		if maxIdx < 0 || *m > *marginals[maxIdx] {
			maxIdx = i
		}
	}
	if minIdx < 0 {
		// Fewer than two consecutive schedule-matched stops; no delay
		// fields can be established.
		return s
	}

	s.FirstDelay = delays[0]
	s.LastDelay = delays[len(delays)-1]
	s.MinMarginalDelay = marginals[minIdx]
	s.MinMarginalDelayStopID = ptr(survivors[minIdx].rec.StopID)
	s.MaxMarginalDelay = marginals[maxIdx]
	s.MaxMarginalDelayStopID = ptr(survivors[maxIdx].rec.StopID)
	s.FirstScheduledStopID = ptr(firstScheduled.rec.StopID)
	s.LastScheduledStopID = ptr(lastScheduled.rec.StopID)
	s.Delay50 = median(delays)
	return s
}

// median returns the middle of the defined delays, averaging the two
// central values for an even count. Nil when no delay is defined.
func median(delays []*float64) *float64 {
	vals := make([]float64, 0, len(delays))
	for _, d := range delays {
		if d != nil {
			vals = append(vals, *d)
		}
	}
	if len(vals) == 0 {
		return nil
	}
	sort.Float64s(vals)
	mid := len(vals) / 2
	if len(vals)%2 == 1 {
		return ptr(vals[mid])
	}
	return ptr((vals[mid-1] + vals[mid]) / 2)
}

func ptr[T any](v T) *T { return &v }
