package align

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

// summaryColumns is the output header. Consumers of the historical summary
// files key on these names, so the order is part of the format.
var summaryColumns = []string{
	"trip_id",
	"min_marginal_delay_stop_id",
	"min_marginal_delay",
	"max_marginal_delay_stop_id",
	"max_marginal_delay",
	"recorded_stops",
	"scheduled_stops",
	"scheduled_start",
	"first_time",
	"first_delay",
	"first_stop_id",
	"first_scheduled_stop_id",
	"scheduled_end",
	"last_time",
	"last_delay",
	"last_stop_id",
	"last_scheduled_stop_id",
	"delay_50",
	"route_id",
	"direction_id",
}

const timestampLayout = "2006-01-02 15:04:05-07:00"

// WriteCSV writes summary rows in the historical summary file format.
// Nullable fields serialize as empty cells.
func WriteCSV(w io.Writer, summaries []TripSummary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(summaryColumns); err != nil {
		return fmt.Errorf("writing summary header: %w", err)
	}
	for _, s := range summaries {
		row := []string{
			s.TripID,
			strText(s.MinMarginalDelayStopID),
			floatText(s.MinMarginalDelay),
			strText(s.MaxMarginalDelayStopID),
			floatText(s.MaxMarginalDelay),
			strconv.Itoa(s.RecordedStops),
			strconv.Itoa(s.ScheduledStops),
			timeText(s.ScheduledStart),
			timeText(s.FirstTime),
			floatText(s.FirstDelay),
			strText(s.FirstStopID),
			strText(s.FirstScheduledStopID),
			timeText(s.ScheduledEnd),
			timeText(s.LastTime),
			floatText(s.LastDelay),
			strText(s.LastStopID),
			strText(s.LastScheduledStopID),
			floatText(s.Delay50),
			strText(s.RouteID),
			strText(s.DirectionID),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing summary row for trip %s: %w", s.TripID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func strText(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func floatText(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'g', -1, 64)
}

func timeText(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(timestampLayout)
}
