// Package gtfstest builds small in-memory schedule archives for tests.
package gtfstest

import (
	"archive/zip"
	"bytes"
	"testing"
)

// ArchiveBytes zips the given file name → content map into archive bytes.
func ArchiveBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("creating %s in zip fixture: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("writing %s in zip fixture: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing zip fixture: %v", err)
	}
	return buf.Bytes()
}

// ScheduleFiles returns a minimal but complete schedule: one route ("57"),
// one inbound trip ("t1") serving three stops, and one trip ("t2") on the
// same route with an after-midnight arrival. Callers may override or add
// entries before zipping.
func ScheduleFiles() map[string]string {
	return map[string]string{
		"agency.txt": "agency_id,agency_name,agency_url,agency_timezone\n" +
			"1,Example Transit,https://transit.example,America/New_York\n",
		"routes.txt": "route_id,agency_id,route_short_name,route_long_name,route_type\n" +
			"57,1,57,Watertown Yard - Kenmore,3\n",
		"stops.txt": "stop_id,stop_name,stop_lat,stop_lon\n" +
			"s1,First St,42.35,-71.06\n" +
			"s2,Second St,42.36,-71.07\n" +
			"s3,Third St,42.37,-71.08\n",
		"calendar.txt": "service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date\n" +
			"daily,1,1,1,1,1,1,1,20230101,20261231\n",
		"trips.txt": "route_id,service_id,trip_id,direction_id\n" +
			"57,daily,t1,1\n" +
			"57,daily,t2,0\n",
		"stop_times.txt": "trip_id,arrival_time,departure_time,stop_id,stop_sequence\n" +
			"t1,08:00:00,08:00:00,s1,1\n" +
			"t1,08:05:00,08:05:00,s2,2\n" +
			"t1,08:10:00,08:10:00,s3,3\n" +
			"t2,24:50:00,24:50:00,s3,1\n" +
			"t2,25:10:00,25:10:00,s1,2\n",
	}
}
