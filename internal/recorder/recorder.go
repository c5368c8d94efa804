// Package recorder polls a GTFS-realtime vehicle positions feed and appends
// one observation row per active vehicle to per-service-day CSV files. The
// files it writes are the input files the summarization batch consumes.
package recorder

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/OneBusAway/go-gtfs"
	"golang.org/x/time/rate"
	"ontime.transitperf.org/internal/logging"
	"ontime.transitperf.org/internal/metrics"
)

// maxFeedBodySize caps a single vehicle positions response.
const maxFeedBodySize = 25 * 1024 * 1024

var updateColumns = []string{
	"trip_id", "trip_start", "stop_id", "stop_sequence",
	"vehicle_id", "status", "timestamp", "lat", "lon",
}

// update is one vehicle observation ready to be appended to its service
// day's file.
type update struct {
	tripStart string
	row       []string
}

// Config wires a Recorder.
type Config struct {
	// VehiclePositionsURL is the GTFS-RT feed to poll.
	VehiclePositionsURL string
	// OutputDir receives one appended CSV per service day.
	OutputDir string
	// Interval is the polling period.
	Interval time.Duration
	Location *time.Location
	Metrics  *metrics.Metrics
}

type Recorder struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

func New(cfg Config) *Recorder {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	var transport *http.Transport
	if t, ok := http.DefaultTransport.(*http.Transport); ok {
		transport = t.Clone()
	} else {
		transport = &http.Transport{}
	}
	transport.MaxIdleConnsPerHost = 2
	transport.IdleConnTimeout = 90 * time.Second
	transport.TLSHandshakeTimeout = 10 * time.Second
	return &Recorder{
		cfg: cfg,
		client: &http.Client{
			Timeout:   10 * time.Second,
			Transport: transport,
		},
		limiter: rate.NewLimiter(rate.Every(cfg.Interval), 1),
		logger:  slog.Default().With(slog.String("component", "recorder")),
	}
}

// Run polls until ctx is canceled. A failed poll is logged and counted; the
// loop keeps going.
func (r *Recorder) Run(ctx context.Context) error {
	logging.LogOperation(r.logger, "recorder_start",
		slog.String("url", r.cfg.VehiclePositionsURL),
		slog.Duration("interval", r.cfg.Interval))
	for {
		if err := r.limiter.Wait(ctx); err != nil {
			logging.LogOperation(r.logger, "recorder_stop")
			return nil
		}
		if m := r.cfg.Metrics; m != nil {
			m.RecorderPolls.Inc()
		}
		if err := r.PollOnce(ctx); err != nil {
			if m := r.cfg.Metrics; m != nil {
				m.RecorderPollFailures.Inc()
			}
			logging.LogError(r.logger, "vehicle positions poll failed", err)
		}
	}
}

// PollOnce fetches the feed once and appends every vehicle observation to
// its service day's file.
func (r *Recorder) PollOnce(ctx context.Context) error {
	realtime, err := r.fetchFeed(ctx)
	if err != nil {
		return err
	}
	updates := updatesFromVehicles(realtime.Vehicles, r.cfg.Location)
	grouped := make(map[string][]update)
	for _, u := range updates {
		grouped[u.tripStart] = append(grouped[u.tripStart], u)
	}
	for tripStart, batch := range grouped {
		if err := r.appendUpdates(tripStart, batch); err != nil {
			return err
		}
	}
	if m := r.cfg.Metrics; m != nil {
		m.ObservationsRecorded.Add(float64(len(updates)))
	}
	return nil
}

func (r *Recorder) fetchFeed(ctx context.Context) (*gtfs.Realtime, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.VehiclePositionsURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching vehicle positions: %w", err)
	}
	defer logging.SafeCloseWithLogging(resp.Body, r.logger, "vehicle_positions_body")
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vehicle positions fetch failed: %s returned %s",
			r.cfg.VehiclePositionsURL, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("reading vehicle positions body: %w", err)
	}
	if int64(len(body)) > maxFeedBodySize {
		return nil, fmt.Errorf("vehicle positions response exceeds size limit of %d bytes", maxFeedBodySize)
	}
	return gtfs.ParseRealtime(body, &gtfs.ParseRealtimeOptions{})
}

// updatesFromVehicles converts feed vehicles to observation rows. Vehicles
// without a trip are skipped; everything else is recorded as-is, missing
// fields as empty cells. Timestamps are serialized in UTC.
func updatesFromVehicles(vehicles []gtfs.Vehicle, loc *time.Location) []update {
	updates := make([]update, 0, len(vehicles))
	for i := range vehicles {
		v := &vehicles[i]
		if v.Trip == nil || v.Trip.ID.ID == "" {
			continue
		}
		var ts time.Time
		if v.Timestamp != nil {
			ts = *v.Timestamp
		}
		tripStart := serviceDate(v, ts, loc)

		var stopID, vehicleID, tsText, latText, lonText, seqText string
		if v.StopID != nil {
			stopID = *v.StopID
		}
		if v.ID != nil {
			vehicleID = v.ID.ID
		}
		if v.CurrentStopSequence != nil {
			seqText = strconv.FormatUint(uint64(*v.CurrentStopSequence), 10)
		}
		if !ts.IsZero() {
			tsText = ts.UTC().Format("2006-01-02 15:04:05")
		}
		if v.Position != nil {
			if v.Position.Latitude != nil {
				latText = strconv.FormatFloat(float64(*v.Position.Latitude), 'g', -1, 32)
			}
			if v.Position.Longitude != nil {
				lonText = strconv.FormatFloat(float64(*v.Position.Longitude), 'g', -1, 32)
			}
		}
		updates = append(updates, update{
			tripStart: tripStart,
			row: []string{
				v.Trip.ID.ID, tripStart, stopID, seqText,
				vehicleID, statusName(v.CurrentStatus), tsText, latText, lonText,
			},
		})
	}
	return updates
}

// serviceDate prefers the trip's feed-reported start date, which correctly
// attributes after-midnight vehicles to the previous service day, and falls
// back to the observation's local calendar date.
func serviceDate(v *gtfs.Vehicle, ts time.Time, loc *time.Location) string {
	if v.Trip.ID.HasStartDate {
		return v.Trip.ID.StartDate.Format("2006-01-02")
	}
	if ts.IsZero() {
		return time.Now().In(loc).Format("2006-01-02")
	}
	return ts.In(loc).Format("2006-01-02")
}

func statusName(s *gtfs.CurrentStatus) string {
	if s == nil {
		return "IN_TRANSIT_TO"
	}
	switch int32(*s) {
	case 0:
		return "INCOMING_AT"
	case 1:
		return "STOPPED_AT"
	default:
		return "IN_TRANSIT_TO"
	}
}

// appendUpdates appends a poll's rows for one service day, writing the
// header only when the file is empty.
func (r *Recorder) appendUpdates(tripStart string, batch []update) error {
	if err := os.MkdirAll(r.cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("creating record dir: %w", err)
	}
	path := filepath.Join(r.cfg.OutputDir, tripStart+".csv")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening record file: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("statting record file: %w", err)
	}

	cw := csv.NewWriter(f)
	if st.Size() == 0 {
		if err := cw.Write(updateColumns); err != nil {
			_ = f.Close()
			return fmt.Errorf("writing record header: %w", err)
		}
	}
	for _, u := range batch {
		if err := cw.Write(u.row); err != nil {
			_ = f.Close()
			return fmt.Errorf("writing record row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
