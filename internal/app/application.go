package app

import (
	"log/slog"
	"os"

	"ontime.transitperf.org/internal/appconf"
	"ontime.transitperf.org/internal/clock"
	"ontime.transitperf.org/internal/feed"
	"ontime.transitperf.org/internal/metrics"
)

// Application holds the dependencies shared by the command entrypoints: the
// resolved configuration, a logger, the feed resolver and the metrics
// registry. Both the batch summarizer and the recorder build one of these.
type Application struct {
	Config   appconf.Config
	Logger   *slog.Logger
	Clock    clock.Clock
	Metrics  *metrics.Metrics
	Resolver *feed.Resolver
}

// BuildApplication wires an Application from configuration. The logger it
// installs becomes the process default so component loggers derived from
// slog.Default pick up the right level.
func BuildApplication(cfg appconf.Config) *Application {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	m := metrics.New()
	return &Application{
		Config:  cfg,
		Logger:  logger,
		Clock:   clock.RealClock{},
		Metrics: m,
		Resolver: feed.NewResolver(feed.Config{
			IndexURL:   cfg.FeedIndexURL,
			CurrentURL: cfg.CurrentFeedURL,
			CacheDir:   cfg.FeedCacheDir,
			Location:   cfg.Location,
			Clock:      clock.RealClock{},
			Metrics:    m,
		}),
	}
}
