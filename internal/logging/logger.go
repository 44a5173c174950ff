package logging

import (
	"io"
	"log/slog"
	"os"
)

// Setup initializes the global slog logger.  Production writes JSON to
// stdout; any other environment gets the human readable text handler.
func Setup(env string) *slog.Logger {
	logger := New(os.Stdout, env)
	slog.SetDefault(logger)
	return logger
}

// New builds a logger for env writing to w.
func New(w io.Writer, env string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if env == "dev" {
		opts.Level = slog.LevelDebug
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
