// Package logging provides small helpers around log/slog so operational
// events and errors are reported with a consistent shape.
package logging

import (
	"context"
	"io"
	"log/slog"
)

// LogOperation records a structured operational event at info level.
func LogOperation(logger *slog.Logger, operation string, attrs ...slog.Attr) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.LogAttrs(context.Background(), slog.LevelInfo, operation, attrs...)
}

// LogError records an error with its message and any extra attributes.
func LogError(logger *slog.Logger, message string, err error, attrs ...slog.Attr) {
	if logger == nil {
		logger = slog.Default()
	}
	attrs = append(attrs, slog.Any("error", err))
	logger.LogAttrs(context.Background(), slog.LevelError, message, attrs...)
}

// SafeCloseWithLogging closes c and logs a failure instead of dropping it.
// Intended for defer sites where the close error cannot change the outcome.
func SafeCloseWithLogging(c io.Closer, logger *slog.Logger, resourceName string) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		LogError(logger, "failed to close resource", err,
			slog.String("resource", resourceName))
	}
}
