package obs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eastern(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func writeGzFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

const headerFile = `trip_id,trip_start,stop_id,stop_sequence,vehicle_id,status,timestamp,lat,lon
t1,2024-03-10,s1,1,v9,STOPPED_AT,2024-03-10 12:00:30,42.35,-71.06
t1,2024-03-10,s2,2,v9,IN_TRANSIT_TO,2024-03-10 12:05:12,42.36,-71.07
`

func TestLoadHeaderFile(t *testing.T) {
	loc := eastern(t)
	path := writeFile(t, "2024-03-10.csv", headerFile)

	records, err := Load(path, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), loc)
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, "t1", first.TripID)
	assert.Equal(t, "s1", first.StopID)
	assert.Equal(t, 1, first.StopSequence)
	assert.True(t, first.HasSequence)
	assert.Equal(t, "v9", first.VehicleID)
	assert.Equal(t, "STOPPED_AT", first.Status)
	assert.InDelta(t, 42.35, first.Lat, 1e-9)
	assert.InDelta(t, -71.06, first.Lon, 1e-9)

	// Timestamps are serialized UTC; loaded values are local wall time.
	assert.Equal(t, "2024-03-10 08:00:30 -0400 EDT", first.Timestamp.String())
}

func TestLoadGzip(t *testing.T) {
	path := writeGzFile(t, "2024-03-10.csv.gz", headerFile)
	records, err := Load(path, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), eastern(t))
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestLoadDeduplicates(t *testing.T) {
	// Same (trip_id, timestamp), different positions: the polls overlap and
	// only the first occurrence survives.
	content := `trip_id,trip_start,stop_id,stop_sequence,vehicle_id,status,timestamp,lat,lon
t1,2024-03-10,s1,1,v9,STOPPED_AT,2024-03-10 12:00:30,42.35,-71.06
t1,2024-03-10,s1,1,v9,STOPPED_AT,2024-03-10 12:00:30,42.99,-71.99
`
	path := writeFile(t, "2024-03-10.csv", content)
	records, err := Load(path, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), eastern(t))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.InDelta(t, 42.35, records[0].Lat, 1e-9)
}

func TestLoadLegacyHeaderless(t *testing.T) {
	// Files dated on or before the cutover carry no header row.
	content := `t1,2017-07-01,s1,1,v9,STOPPED_AT,2017-07-01 12:00:30,42.35,-71.06
`
	path := writeFile(t, "2017-07-01.csv", content)
	records, err := Load(path, time.Date(2017, 7, 1, 0, 0, 0, 0, time.UTC), eastern(t))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "t1", records[0].TripID)
	assert.Equal(t, 1, records[0].StopSequence)
}

func TestLoadHeaderAfterCutover(t *testing.T) {
	// The day after the cutover the first row is a header, not data.
	path := writeFile(t, "2017-08-02.csv", headerFile)
	records, err := Load(path, time.Date(2017, 8, 2, 0, 0, 0, 0, time.UTC), eastern(t))
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestLoadEmptyOptionalFields(t *testing.T) {
	content := `trip_id,trip_start,stop_id,stop_sequence,vehicle_id,status,timestamp,lat,lon
t1,2024-03-10,s1,,v9,IN_TRANSIT_TO,,,
`
	path := writeFile(t, "2024-03-10.csv", content)
	records, err := Load(path, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), eastern(t))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.False(t, records[0].HasSequence)
	assert.True(t, records[0].Timestamp.IsZero())
}

func TestLoadMalformedFields(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			"bad stop_sequence",
			"trip_id,trip_start,stop_id,stop_sequence,vehicle_id,status,timestamp,lat,lon\nt1,2024-03-10,s1,abc,v9,STOPPED_AT,2024-03-10 12:00:30,1,1\n",
		},
		{
			"bad timestamp",
			"trip_id,trip_start,stop_id,stop_sequence,vehicle_id,status,timestamp,lat,lon\nt1,2024-03-10,s1,1,v9,STOPPED_AT,not-a-time,1,1\n",
		},
		{
			"missing required column",
			"trip_id,stop_id\nt1,s1\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "2024-03-10.csv", tt.content)
			_, err := Load(path, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), eastern(t))
			assert.Error(t, err)
		})
	}
}
