// Package logging configures the process-wide structured logger.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// New builds the default logger: human-readable text on stderr, Info level
// unless verbose.
func New(verbose bool) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level(verbose),
	}))
}

// NewFile builds a JSON logger writing to path, for runs whose logs feed
// machine pipelines. The returned closer must be called when the run ends.
func NewFile(verbose bool, path string) (*slog.Logger, io.Closer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{
		Level: level(verbose),
	}))
	return logger, f, nil
}

// Discard is for tests and for callers that want the engine quiet.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func level(verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
