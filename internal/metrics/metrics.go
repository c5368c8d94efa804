// Package metrics provides Prometheus metrics for the summarizer and
// recorder processes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Registry is the Prometheus registry for this metrics instance
	Registry *prometheus.Registry

	// Batch driver metrics
	FilesProcessed  prometheus.Counter
	FilesFailed     prometheus.Counter
	FileDuration    prometheus.Histogram
	TripsSummarized prometheus.Counter

	// Feed cache metrics
	ArchiveDownloads    prometheus.Counter
	ArchiveCacheHits    prometheus.Counter
	ScheduleParseHits   prometheus.Counter
	ScheduleParseMisses prometheus.Counter

	// Recorder metrics
	RecorderPolls        prometheus.Counter
	RecorderPollFailures prometheus.Counter
	ObservationsRecorded prometheus.Counter
}

// New creates and registers all application metrics with a new registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		FilesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ontime_files_processed_total",
			Help: "Input files summarized successfully",
		}),
		FilesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ontime_files_failed_total",
			Help: "Input files that failed and were skipped",
		}),
		FileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ontime_file_duration_seconds",
			Help:    "Per-file processing latency distribution",
			Buckets: prometheus.DefBuckets,
		}),
		TripsSummarized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ontime_trips_summarized_total",
			Help: "Trip summary rows produced",
		}),
		ArchiveDownloads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ontime_archive_downloads_total",
			Help: "Schedule archives downloaded over the network",
		}),
		ArchiveCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ontime_archive_cache_hits_total",
			Help: "Schedule archive requests served from the disk cache",
		}),
		ScheduleParseHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ontime_schedule_parse_hits_total",
			Help: "Parsed schedule lookups served from the in-process cache",
		}),
		ScheduleParseMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ontime_schedule_parse_misses_total",
			Help: "Parsed schedule lookups that required a fresh parse",
		}),
		RecorderPolls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ontime_recorder_polls_total",
			Help: "Vehicle-position feed polls attempted",
		}),
		RecorderPollFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ontime_recorder_poll_failures_total",
			Help: "Vehicle-position feed polls that failed",
		}),
		ObservationsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ontime_observations_recorded_total",
			Help: "Observation rows appended to daily files",
		}),
	}

	registry.MustRegister(
		m.FilesProcessed,
		m.FilesFailed,
		m.FileDuration,
		m.TripsSummarized,
		m.ArchiveDownloads,
		m.ArchiveCacheHits,
		m.ScheduleParseHits,
		m.ScheduleParseMisses,
		m.RecorderPolls,
		m.RecorderPollFailures,
		m.ObservationsRecorded,
	)

	return m
}

// Serve exposes the registry on addr at /metrics. The returned server is
// already listening; the caller owns shutdown.
func (m *Metrics) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		_ = srv.ListenAndServe()
	}()
	return srv
}
