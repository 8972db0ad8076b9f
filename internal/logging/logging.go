package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Init installs the default logger. LOG_LEVEL overrides fallback; LOG_FORMAT=json
// switches to the JSON handler.
func Init(fallback slog.Level) *slog.Logger {
	logger := New(os.Stderr, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"), fallback)
	slog.SetDefault(logger)
	return logger
}

// New builds a logger writing to w.
func New(w io.Writer, level, format string, fallback slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level, fallback)}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

func ParseLevel(s string, fallback slog.Level) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dev", "development", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "production", "prod":
		return slog.LevelError
	}
	return fallback
}
