// Package logger configures the process-wide slog logger.
package logger

import (
	"io"
	"log/slog"
	"os"
)

var defaultLogger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

// SetLogger sets the global logger and makes it the slog default.
func SetLogger(l *slog.Logger) {
	defaultLogger = l
	slog.SetDefault(l)
}

// New builds a logger writing to w. Debug mode switches to the text handler
// at debug level; otherwise JSON at info level.
func New(w io.Writer, debug bool) *slog.Logger {
	if debug {
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// WithDebug configures and installs the global logger on stdout.
func WithDebug(debug bool) *slog.Logger {
	l := New(os.Stdout, debug)
	SetLogger(l)
	return l
}

// Default returns the global logger.
func Default() *slog.Logger { return defaultLogger }

// With returns a logger with additional attributes.
func With(args ...any) *slog.Logger {
	return defaultLogger.With(args...)
}

// Component returns a logger tagged with a component name.
func Component(name string) *slog.Logger {
	return defaultLogger.With("component", name)
}

// Discard returns a logger that drops everything. Used in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
