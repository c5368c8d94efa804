// Command summarize processes every daily observation file under the input
// directory into per-trip on-time performance summaries.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"ontime.transitperf.org/internal/app"
	"ontime.transitperf.org/internal/appconf"
	"ontime.transitperf.org/internal/driver"
	"ontime.transitperf.org/internal/logging"
)

func main() {
	cfg, err := appconf.Load()
	if err != nil {
		slog.Error("configuration error", slog.Any("error", err))
		os.Exit(1)
	}

	application := app.BuildApplication(cfg)
	logger := application.Logger.With(slog.String("component", "summarize"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		srv := application.Metrics.Serve(cfg.MetricsAddr)
		defer func() { _ = srv.Close() }()
	}

	d := driver.New(driver.Config{
		InputDir:  cfg.InputDir,
		OutputDir: cfg.OutputDir,
		Workers:   cfg.Workers,
		Location:  cfg.Location,
		Verbose:   cfg.Verbose,
		Resolver:  application.Resolver,
		Metrics:   application.Metrics,
	})
	if err := d.Run(ctx); err != nil {
		logging.LogError(logger, "batch failed", err)
		os.Exit(1)
	}
}
