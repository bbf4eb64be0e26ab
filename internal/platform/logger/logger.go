package logger

import (
	"log/slog"
	"os"
)

// New returns the process-wide structured logger. Services log through slog
// with request_id attributes so rejected mutations are always observable.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}
