// Package appconf holds environment-derived configuration shared by the
// summarizer and recorder entrypoints.
package appconf

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Environment int

const (
	Test Environment = iota
	Development
	Production
)

// EnvFlagToEnvironment translates the APP_ENV flag value to an Environment.
// Unknown values map to Development.
func EnvFlagToEnvironment(flag string) Environment {
	switch strings.ToLower(strings.TrimSpace(flag)) {
	case "test":
		return Test
	case "production", "prod":
		return Production
	default:
		return Development
	}
}

// Config is the process-wide configuration. Base directories for input,
// output and the feed cache are overridable via environment variables; no
// other network or auth configuration belongs here.
type Config struct {
	Env     Environment
	Verbose bool

	// Summarizer paths and feed endpoints.
	InputDir       string
	OutputDir      string
	FeedCacheDir   string
	FeedIndexURL   string
	CurrentFeedURL string

	// Operator-local time zone. All schedule and observation times are
	// interpreted in this zone.
	Location *time.Location

	// Worker pool size for the batch driver.
	Workers int

	// Metrics listen address (e.g. ":9102"). Empty disables the server.
	MetricsAddr string

	// Recorder settings.
	RTVehiclesURL  string
	RecordDir      string
	RecordInterval time.Duration
}

const (
	defaultFeedIndexURL   = "https://cdn.mbta.com/archive/archived_feeds.txt"
	defaultCurrentFeedURL = "https://cdn.mbta.com/MBTA_GTFS.zip"
	defaultRTVehiclesURL  = "https://cdn.mbta.com/realtime/VehiclePositions.pb"
	defaultTimezone       = "America/New_York"
)

// Load reads configuration from a .env file (if present) and the
// environment.
func Load() (Config, error) {
	// Load .env into the environment (ignore if missing)
	_ = godotenv.Load()

	cfg := Config{
		Env:            EnvFlagToEnvironment(os.Getenv("APP_ENV")),
		InputDir:       getenvDefault("OTP_INPUT_DIR", "."),
		OutputDir:      getenvDefault("OTP_OUTPUT_DIR", "."),
		FeedCacheDir:   getenvDefault("OTP_FEED_CACHE_DIR", "feeds"),
		FeedIndexURL:   getenvDefault("OTP_FEED_INDEX_URL", defaultFeedIndexURL),
		CurrentFeedURL: getenvDefault("OTP_CURRENT_FEED_URL", defaultCurrentFeedURL),
		MetricsAddr:    os.Getenv("METRICS_ADDR"),
		RTVehiclesURL:  getenvDefault("OTP_RT_VEHICLES_URL", defaultRTVehiclesURL),
		RecordDir:      getenvDefault("OTP_RECORD_DIR", "updates"),
		Verbose:        boolFlag(os.Getenv("OTP_VERBOSE")),
	}

	loc, err := time.LoadLocation(getenvDefault("TZ", defaultTimezone))
	if err != nil {
		return Config{}, fmt.Errorf("invalid TZ: %w", err)
	}
	cfg.Location = loc

	cfg.Workers = runtime.NumCPU()
	if v := os.Getenv("OTP_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid OTP_WORKERS: %q", v)
		}
		cfg.Workers = n
	}

	cfg.RecordInterval = 15 * time.Second
	if v := os.Getenv("OTP_RECORD_INTERVAL_SEC"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil || sec <= 0 {
			return Config{}, fmt.Errorf("invalid OTP_RECORD_INTERVAL_SEC: %q", v)
		}
		cfg.RecordInterval = time.Duration(sec) * time.Second
	}

	return cfg, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func boolFlag(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	}
	return false
}
