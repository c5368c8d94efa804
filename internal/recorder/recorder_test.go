package recorder

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/OneBusAway/go-gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"ontime.transitperf.org/internal/obs"
)

func eastern(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

func testVehicle(tripID, vehicleID, stopID string, seq uint32, ts time.Time) gtfs.Vehicle {
	lat, lon := float32(42.35), float32(-71.06)
	status := gtfs.CurrentStatus(1)
	return gtfs.Vehicle{
		ID:                  &gtfs.VehicleID{ID: vehicleID},
		Trip:                &gtfs.Trip{ID: gtfs.TripID{ID: tripID}},
		Position:            &gtfs.Position{Latitude: &lat, Longitude: &lon},
		CurrentStopSequence: &seq,
		StopID:              &stopID,
		CurrentStatus:       &status,
		Timestamp:           &ts,
	}
}

func TestUpdatesFromVehicles(t *testing.T) {
	loc := eastern(t)
	ts := time.Date(2024, 4, 10, 12, 0, 30, 0, time.UTC)
	vehicles := []gtfs.Vehicle{
		testVehicle("t1", "v1", "s1", 5, ts),
		{ID: &gtfs.VehicleID{ID: "no-trip"}},
	}

	updates := updatesFromVehicles(vehicles, loc)
	require.Len(t, updates, 1)
	u := updates[0]
	// Without a feed start date, the service day comes from the
	// observation's local calendar date.
	assert.Equal(t, "2024-04-10", u.tripStart)
	assert.Equal(t, []string{
		"t1", "2024-04-10", "s1", "5", "v1", "STOPPED_AT",
		"2024-04-10 12:00:30", "42.35", "-71.06",
	}, u.row)
}

func TestUpdatesUseFeedStartDate(t *testing.T) {
	loc := eastern(t)
	// A vehicle observed at 01:30 local belongs to the previous service
	// day when the feed says so.
	ts := time.Date(2024, 4, 11, 5, 30, 0, 0, time.UTC)
	v := testVehicle("t2", "v1", "s3", 1, ts)
	v.Trip.ID.HasStartDate = true
	v.Trip.ID.StartDate = time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)

	updates := updatesFromVehicles([]gtfs.Vehicle{v}, loc)
	require.Len(t, updates, 1)
	assert.Equal(t, "2024-04-10", updates[0].tripStart)
}

func TestStatusName(t *testing.T) {
	incoming := gtfs.CurrentStatus(0)
	stopped := gtfs.CurrentStatus(1)
	transit := gtfs.CurrentStatus(2)
	assert.Equal(t, "INCOMING_AT", statusName(&incoming))
	assert.Equal(t, "STOPPED_AT", statusName(&stopped))
	assert.Equal(t, "IN_TRANSIT_TO", statusName(&transit))
	assert.Equal(t, "IN_TRANSIT_TO", statusName(nil))
}

func TestAppendUpdatesWritesHeaderOnce(t *testing.T) {
	dir := t.TempDir()
	r := New(Config{OutputDir: dir, Location: eastern(t)})

	ts := time.Date(2024, 4, 10, 12, 0, 30, 0, time.UTC)
	updates := updatesFromVehicles([]gtfs.Vehicle{testVehicle("t1", "v1", "s1", 1, ts)}, eastern(t))
	require.Len(t, updates, 1)

	require.NoError(t, r.appendUpdates("2024-04-10", updates))
	require.NoError(t, r.appendUpdates("2024-04-10", updates))

	content, err := os.ReadFile(filepath.Join(dir, "2024-04-10.csv"))
	require.NoError(t, err)
	lines := 0
	for _, b := range content {
		if b == '\n' {
			lines++
		}
	}
	// One header plus two data rows.
	assert.Equal(t, 3, lines)
}

func TestRecordedFileRoundTripsThroughLoader(t *testing.T) {
	dir := t.TempDir()
	loc := eastern(t)
	r := New(Config{OutputDir: dir, Location: loc})

	ts := time.Date(2024, 4, 10, 12, 0, 30, 0, time.UTC)
	updates := updatesFromVehicles([]gtfs.Vehicle{testVehicle("t1", "v1", "s1", 1, ts)}, loc)
	require.NoError(t, r.appendUpdates("2024-04-10", updates))

	records, err := obs.Load(filepath.Join(dir, "2024-04-10.csv"),
		time.Date(2024, 4, 10, 0, 0, 0, 0, loc), loc)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "t1", records[0].TripID)
	assert.Equal(t, 1, records[0].StopSequence)
	assert.Equal(t, ts.In(loc), records[0].Timestamp)
	assert.Equal(t, "STOPPED_AT", records[0].Status)
}