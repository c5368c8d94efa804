// Package feed resolves which archived schedule version was active on a
// given service date, downloads archives into a local disk cache, and hands
// out parsed schedule indexes.
//
// A Resolver owns all of the shared state involved: the memoized archive
// index, the disk cache, and a small LRU of parsed schedules. Workers share
// one Resolver handle; its internal lock serializes the check-then-fetch
// step so a single download happens no matter how many workers need the
// same archive.
package feed

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bluele/gcache"
	"ontime.transitperf.org/internal/clock"
	"ontime.transitperf.org/internal/logging"
	"ontime.transitperf.org/internal/metrics"
	"ontime.transitperf.org/internal/sched"
)

// Window is one published archive window. Windows are non-overlapping and
// contiguous per the operator's archive index; End is exclusive.
type Window struct {
	Start time.Time
	End   time.Time
	URL   string
}

// Covers reports whether date falls inside the window's [Start, End) range.
func (w Window) Covers(date time.Time) bool {
	return !date.Before(w.Start) && date.Before(w.End)
}

// Config carries the Resolver's dependencies and endpoints.
type Config struct {
	// IndexURL is the operator's published archive index (CSV with
	// feed_start_date, feed_end_date, archive_url columns).
	IndexURL string
	// CurrentURL is the live schedule used when no archived window covers
	// a date.
	CurrentURL string
	// CacheDir is where downloaded archives live. Archives are immutable
	// historical artifacts and are never invalidated.
	CacheDir string
	Location *time.Location
	Clock    clock.Clock
	Metrics  *metrics.Metrics
	// MaxParsedSchedules bounds the in-process LRU of parsed indexes.
	MaxParsedSchedules int
}

// currentCacheBase names the cached copy of the live schedule when the
// archive index is empty and no better name can be derived.
const currentCacheBase = "current.zip"

const defaultMaxParsedSchedules = 8

// Resolver implements schedule-version resolution and caching.
type Resolver struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger

	// indexMu guards the one-shot fetch of the archive index. The index is
	// memoized on the Resolver, not in package state, and only on success
	// so a transient failure can be retried by the next caller.
	indexMu     sync.Mutex
	indexLoaded bool
	windows     []Window

	// downloadMu serializes the cache check-then-fetch so concurrent
	// workers never download the same archive twice.
	downloadMu sync.Mutex

	parsed gcache.Cache
}

// NewResolver creates a Resolver. The zero values of Clock and Metrics are
// tolerated (system clock, no metrics).
func NewResolver(cfg Config) *Resolver {
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.MaxParsedSchedules <= 0 {
		cfg.MaxParsedSchedules = defaultMaxParsedSchedules
	}
	return &Resolver{
		cfg:    cfg,
		logger: slog.Default().With(slog.String("component", "feed_resolver")),
		client: &http.Client{
			Timeout: 5 * time.Minute,
			Transport: &http.Transport{
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
				IdleConnTimeout:       90 * time.Second,
			}},
		parsed: gcache.New(cfg.MaxParsedSchedules).LRU().Build(),
	}
}

// Windows returns a lazy, restartable sequence of archive windows in index
// order. The underlying index is fetched at most once per Resolver; callers
// stop iterating as soon as a covering window is found.
func (r *Resolver) Windows(ctx context.Context) (iter.Seq[Window], error) {
	windows, err := r.loadIndex(ctx)
	if err != nil {
		return nil, err
	}
	return func(yield func(Window) bool) {
		for _, w := range windows {
			if !yield(w) {
				return
			}
		}
	}, nil
}

// ResolveArchiveURL returns the archive URL whose window covers date.
// ok=false means no archived window covers the date: it falls inside the
// still-current schedule period. Dates before the earliest window and after
// the latest window both resolve to the current feed, never an error.
func (r *Resolver) ResolveArchiveURL(ctx context.Context, date time.Time) (string, bool, error) {
	windows, err := r.Windows(ctx)
	if err != nil {
		return "", false, err
	}
	day := dateOnly(date, r.cfg.Location)
	for w := range windows {
		if w.Covers(day) {
			return w.URL, true, nil
		}
	}
	return "", false, nil
}

// ArchiveFor ensures the archive covering date is present in the disk cache
// and returns its local path. The check-then-fetch runs under the
// Resolver's download lock; the write itself goes to a temporary file that
// is renamed into place, so a concurrent process observing the cache path
// only ever sees a complete archive.
func (r *Resolver) ArchiveFor(ctx context.Context, date time.Time) (string, error) {
	archiveURL, ok, err := r.ResolveArchiveURL(ctx, date)
	if err != nil {
		return "", err
	}
	localBase := ""
	if !ok {
		archiveURL = r.cfg.CurrentURL
		localBase = r.currentCacheName()
	}
	return r.fetch(ctx, archiveURL, localBase)
}

// ScheduleFor resolves, fetches and parses the schedule active on date.
// Parsed indexes are shared through a small LRU so processing many files
// against the same feed parses it once. A zero date means "today".
func (r *Resolver) ScheduleFor(ctx context.Context, date time.Time) (*sched.Index, error) {
	if date.IsZero() {
		date = r.cfg.Clock.Now().In(r.cfg.Location)
	}
	archivePath, err := r.ArchiveFor(ctx, date)
	if err != nil {
		return nil, err
	}
	if v, err := r.parsed.Get(archivePath); err == nil {
		if m := r.cfg.Metrics; m != nil {
			m.ScheduleParseHits.Inc()
		}
		return v.(*sched.Index), nil
	}
	if m := r.cfg.Metrics; m != nil {
		m.ScheduleParseMisses.Inc()
	}
	idx, err := sched.FromArchiveFile(archivePath)
	if err != nil {
		return nil, fmt.Errorf("opening cached archive %s: %w", archivePath, err)
	}
	_ = r.parsed.Set(archivePath, idx)
	return idx, nil
}

// loadIndex fetches and memoizes the archive index.
func (r *Resolver) loadIndex(ctx context.Context) ([]Window, error) {
	r.indexMu.Lock()
	defer r.indexMu.Unlock()
	if r.indexLoaded {
		return r.windows, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.IndexURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating archive index request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching archive index: %w", err)
	}
	defer logging.SafeCloseWithLogging(resp.Body, r.logger, "archive_index_body")
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("archive index fetch failed: %s returned %s", r.cfg.IndexURL, resp.Status)
	}

	windows, err := parseIndex(resp.Body, r.cfg.Location)
	if err != nil {
		return nil, fmt.Errorf("parsing archive index: %w", err)
	}

	r.windows = windows
	r.indexLoaded = true
	logging.LogOperation(r.logger, "archive_index_loaded",
		slog.Int("windows", len(windows)))
	return windows, nil
}

// parseIndex reads the published index CSV into windows, preserving the
// operator's ordering.
func parseIndex(rd io.Reader, loc *time.Location) ([]Window, error) {
	cr := csv.NewReader(rd)
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	head := rows[0]
	col := func(name string) int {
		for i, h := range head {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				return i
			}
		}
		return -1
	}
	startCol := col("feed_start_date")
	endCol := col("feed_end_date")
	urlCol := col("archive_url")
	if startCol < 0 || endCol < 0 || urlCol < 0 {
		return nil, fmt.Errorf("archive index missing required columns, header was %v", head)
	}

	windows := make([]Window, 0, len(rows)-1)
	for _, row := range rows[1:] {
		start, err := time.ParseInLocation("20060102", row[startCol], loc)
		if err != nil {
			return nil, fmt.Errorf("bad feed_start_date %q: %w", row[startCol], err)
		}
		end, err := time.ParseInLocation("20060102", row[endCol], loc)
		if err != nil {
			return nil, fmt.Errorf("bad feed_end_date %q: %w", row[endCol], err)
		}
		windows = append(windows, Window{Start: start, End: end, URL: row[urlCol]})
	}
	return windows, nil
}

// currentCacheName derives a cache file name for the live schedule from the
// newest archived window's end date, so the cached copy naturally rolls
// over once the current period is archived.
func (r *Resolver) currentCacheName() string {
	r.indexMu.Lock()
	defer r.indexMu.Unlock()
	var newest time.Time
	for _, w := range r.windows {
		if w.End.After(newest) {
			newest = w.End
		}
	}
	if newest.IsZero() {
		return currentCacheBase
	}
	return newest.Format("20060102") + ".zip"
}

// fetch downloads archiveURL into the cache unless it is already present,
// returning the local path. localBase overrides the name derived from the
// URL. Network failures are transient I/O failures for the caller; there is
// no internal retry.
func (r *Resolver) fetch(ctx context.Context, archiveURL, localBase string) (string, error) {
	if localBase == "" {
		localBase = urlBasename(archiveURL)
	}
	localPath := filepath.Join(r.cfg.CacheDir, localBase)

	r.downloadMu.Lock()
	defer r.downloadMu.Unlock()

	if _, err := os.Stat(localPath); err == nil {
		if m := r.cfg.Metrics; m != nil {
			m.ArchiveCacheHits.Inc()
		}
		return localPath, nil
	}

	if err := os.MkdirAll(r.cfg.CacheDir, 0o755); err != nil {
		return "", fmt.Errorf("creating feed cache dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, archiveURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating archive request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading schedule archive: %w", err)
	}
	defer logging.SafeCloseWithLogging(resp.Body, r.logger, "archive_body")
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("archive download failed: %s returned %s", archiveURL, resp.Status)
	}

	// Write to a temp file in the same directory, then rename into place.
	// Rename is atomic on the same filesystem, so another process that
	// loses the download race opens this completed file instead of a
	// partial one.
	tmp, err := os.CreateTemp(r.cfg.CacheDir, localBase+".download-*")
	if err != nil {
		return "", fmt.Errorf("creating archive temp file: %w", err)
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("writing schedule archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("closing schedule archive: %w", err)
	}
	if err := os.Rename(tmp.Name(), localPath); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("moving schedule archive into cache: %w", err)
	}

	if m := r.cfg.Metrics; m != nil {
		m.ArchiveDownloads.Inc()
	}
	logging.LogOperation(r.logger, "schedule_archive_cached",
		slog.String("url", archiveURL),
		slog.String("path", localPath))
	return localPath, nil
}

func urlBasename(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}
	return path.Base(rawURL)
}

func dateOnly(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
