// Package log defines the public logging interface used across enclave packages.
package log

import (
	"context"
	"log/slog"
)

// Logger defines the public interface for logging operations within the
// enclave runtime. It allows library consumers and internal components to
// plug in different implementations consistently, mirroring common patterns
// found in libraries like slog.
type Logger interface {
	// Debugf logs a formatted message at the DEBUG level.
	// Arguments are handled in the manner of fmt.Sprintf.
	Debugf(format string, args ...interface{})
	// Infof logs a formatted message at the INFO level.
	Infof(format string, args ...interface{})
	// Warnf logs a formatted message at the WARN level.
	Warnf(format string, args ...interface{})
	// Errorf logs a formatted message at the ERROR level. Implementations
	// should check whether the last arg is an error and log it structurally.
	Errorf(format string, args ...interface{})

	// Log logs a message at the specified slog.Level with additional
	// key-value attributes. This is the primary structured logging method.
	Log(level slog.Level, msg string, args ...interface{})
	// LogCtx logs a message at the specified slog.Level, including context
	// information like trace IDs if supported by the implementation.
	LogCtx(ctx context.Context, level slog.Level, msg string, args ...interface{})

	// With returns a new Logger with the given attributes added to all
	// subsequent entries.
	With(args ...interface{}) Logger
	// IsEnabled reports whether the logger outputs entries at the given
	// level, letting callers skip expensive message construction.
	IsEnabled(level slog.Level) bool
}
