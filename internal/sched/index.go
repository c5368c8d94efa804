// Package sched exposes lookup views over one parsed schedule archive: the
// trip→route/direction mapping and the trip→ordered-stop mapping used by the
// aligner. Views are rebuilt for every archive opened; nothing here caches
// across archives.
package sched

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/OneBusAway/go-gtfs"
)

// ScheduledStop is one scheduled stop along a trip. Arrival and Departure
// are offsets past the start of the service day, as parsed from the feed's
// clock-time strings (hours may exceed 23 for after-midnight stops); binding
// them to a calendar date is clock.ResolveClockTime's job.
type ScheduledStop struct {
	StopID       string
	StopSequence int
	Arrival      time.Duration
	Departure    time.Duration
}

// RouteInfo is the route assignment of a trip.
type RouteInfo struct {
	RouteID     string
	DirectionID string
}

// Index holds the per-archive lookup tables.
type Index struct {
	routes map[string]RouteInfo
	stops  map[string][]ScheduledStop
}

// NewIndex builds the lookup views from parsed static data.
func NewIndex(data *gtfs.Static) *Index {
	idx := &Index{
		routes: make(map[string]RouteInfo, len(data.Trips)),
		stops:  make(map[string][]ScheduledStop, len(data.Trips)),
	}
	for i := range data.Trips {
		trip := &data.Trips[i]
		info := RouteInfo{DirectionID: strconv.Itoa(int(trip.DirectionId))}
		if trip.Route != nil {
			info.RouteID = trip.Route.Id
		}
		idx.routes[trip.ID] = info

		if len(trip.StopTimes) == 0 {
			continue
		}
		stops := make([]ScheduledStop, 0, len(trip.StopTimes))
		for _, st := range trip.StopTimes {
			stop := ScheduledStop{
				StopSequence: st.StopSequence,
				Arrival:      st.ArrivalTime,
				Departure:    st.DepartureTime,
			}
			if st.Stop != nil {
				stop.StopID = st.Stop.Id
			}
			stops = append(stops, stop)
		}
		// The parser sorts stop times by sequence already; keep the
		// invariant local so callers can rely on it.
		sort.SliceStable(stops, func(i, j int) bool {
			return stops[i].StopSequence < stops[j].StopSequence
		})
		idx.stops[trip.ID] = stops
	}
	return idx
}

// FromArchive parses raw zip bytes into an Index.
func FromArchive(b []byte) (*Index, error) {
	staticData, err := gtfs.ParseStatic(b, gtfs.ParseStaticOptions{})
	if err != nil {
		return nil, fmt.Errorf("error parsing schedule archive: %w", err)
	}
	return NewIndex(staticData), nil
}

// FromArchiveFile parses a schedule archive on disk into an Index.
func FromArchiveFile(path string) (*Index, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading schedule archive: %w", err)
	}
	return FromArchive(b)
}

// TripRoute returns the route assignment for a trip.
func (idx *Index) TripRoute(tripID string) (RouteInfo, bool) {
	info, ok := idx.routes[tripID]
	return info, ok
}

// StopsForTrip returns the trip's scheduled stops in ascending
// stop-sequence order, or nil when the trip is absent from the archive.
func (idx *Index) StopsForTrip(tripID string) []ScheduledStop {
	return idx.stops[tripID]
}

// StopAt returns the scheduled stop with the given sequence number on the
// trip, if any.
func (idx *Index) StopAt(tripID string, stopSequence int) (ScheduledStop, bool) {
	for _, st := range idx.stops[tripID] {
		if st.StopSequence == stopSequence {
			return st, true
		}
	}
	return ScheduledStop{}, false
}

// TripCount reports how many trips the archive defines.
func (idx *Index) TripCount() int {
	return len(idx.routes)
}
