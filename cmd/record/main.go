// Command record polls the operator's GTFS-realtime vehicle positions feed
// and appends observations to per-service-day CSV files, producing the raw
// input the summarize command consumes.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"ontime.transitperf.org/internal/app"
	"ontime.transitperf.org/internal/appconf"
	"ontime.transitperf.org/internal/logging"
	"ontime.transitperf.org/internal/recorder"
)

func main() {
	cfg, err := appconf.Load()
	if err != nil {
		slog.Error("configuration error", slog.Any("error", err))
		os.Exit(1)
	}

	application := app.BuildApplication(cfg)
	logger := application.Logger.With(slog.String("component", "record"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		srv := application.Metrics.Serve(cfg.MetricsAddr)
		defer func() { _ = srv.Close() }()
	}

	r := recorder.New(recorder.Config{
		VehiclePositionsURL: cfg.RTVehiclesURL,
		OutputDir:           cfg.RecordDir,
		Interval:            cfg.RecordInterval,
		Location:            cfg.Location,
		Metrics:             application.Metrics,
	})
	if err := r.Run(ctx); err != nil {
		logging.LogError(logger, "recorder failed", err)
		os.Exit(1)
	}
}
