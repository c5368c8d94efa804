// Package obs loads raw vehicle position observation files. One file holds
// one service day of per-poll observations for every active vehicle.
package obs

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"ontime.transitperf.org/internal/logging"
)

// Record is one deduplicated vehicle position observation, timestamps
// already normalized to the operator's local zone. HasSequence is false for
// polls where the vehicle reported no current stop sequence; such rows
// survive loading but can never be matched to a scheduled stop.
type Record struct {
	TripID       string
	TripStart    string
	StopID       string
	StopSequence int
	HasSequence  bool
	VehicleID    string
	Status       string
	Timestamp    time.Time
	Lat          float64
	Lon          float64
}

// legacyCutover is the last service date whose observation files were
// written without a header row. Files on or before it are parsed with the
// fixed historical column order.
var legacyCutover = time.Date(2017, time.August, 1, 0, 0, 0, 0, time.UTC)

var legacyColumns = []string{
	"trip_id", "trip_start", "stop_id", "stop_sequence",
	"vehicle_id", "status", "timestamp", "lat", "lon",
}

// Load reads one observation file (plain or gzip CSV), deduplicates rows by
// (trip_id, timestamp) keeping the first occurrence, and converts
// timestamps from serialized UTC to loc. fileDate is the file's service
// date and selects header vs legacy headerless parsing. The source file is
// never modified.
func Load(path string, fileDate time.Time, loc *time.Location) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening observation file: %w", err)
	}
	defer logging.SafeCloseWithLogging(f, slog.Default(), "observation_file")

	var rd io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("opening gzip stream %s: %w", path, err)
		}
		defer logging.SafeCloseWithLogging(gz, slog.Default(), "observation_gzip")
		rd = gz
	}

	legacy := !fileDate.IsZero() && !fileDate.After(legacyCutover)
	records, err := parse(rd, legacy, loc)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return records, nil
}

func parse(rd io.Reader, legacy bool, loc *time.Location) ([]Record, error) {
	cr := csv.NewReader(rd)
	cr.FieldsPerRecord = -1

	columns := legacyColumns
	if !legacy {
		head, err := cr.Read()
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading header: %w", err)
		}
		columns = make([]string, len(head))
		for i, h := range head {
			columns[i] = strings.TrimSpace(h)
		}
	}
	col := make(map[string]int, len(columns))
	for i, name := range columns {
		col[name] = i
	}
	for _, required := range []string{"trip_id", "stop_sequence", "timestamp"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}

	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var records []Record
	seen := make(map[string]struct{})
	line := 0
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}

		tripID := field(row, "trip_id")
		rawTS := field(row, "timestamp")

		// Overlapping poll windows duplicate observations across file
		// boundaries; the first occurrence wins.
		key := tripID + "\x00" + rawTS
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		rec := Record{
			TripID:    tripID,
			TripStart: field(row, "trip_start"),
			StopID:    field(row, "stop_id"),
			VehicleID: field(row, "vehicle_id"),
			Status:    field(row, "status"),
		}
		if raw := field(row, "stop_sequence"); raw != "" {
			seq, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("row %d: bad stop_sequence %q: %w", line, raw, err)
			}
			rec.StopSequence = seq
			rec.HasSequence = true
		}
		if rawTS != "" {
			ts, err := parseUTCTimestamp(rawTS)
			if err != nil {
				return nil, fmt.Errorf("row %d: bad timestamp %q: %w", line, rawTS, err)
			}
			rec.Timestamp = ts.In(loc)
		}
		if raw := field(row, "lat"); raw != "" {
			if rec.Lat, err = strconv.ParseFloat(raw, 64); err != nil {
				return nil, fmt.Errorf("row %d: bad lat %q: %w", line, raw, err)
			}
		}
		if raw := field(row, "lon"); raw != "" {
			if rec.Lon, err = strconv.ParseFloat(raw, 64); err != nil {
				return nil, fmt.Errorf("row %d: bad lon %q: %w", line, raw, err)
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// parseUTCTimestamp accepts the recorder's "2006-01-02 15:04:05" layout and
// RFC 3339 as found in some historical files. Both are UTC on the wire.
func parseUTCTimestamp(raw string) (time.Time, error) {
	if ts, err := time.ParseInLocation("2006-01-02 15:04:05", raw, time.UTC); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, raw)
}
