package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Init installs a text slog handler on stderr as the default logger. The
// level comes from LOG_LEVEL and falls back to def when unset or unknown.
func Init(def slog.Level) {
	InitWriter(os.Stderr, def)
}

// InitWriter is Init with an explicit destination.
func InitWriter(w io.Writer, def slog.Level) *slog.Logger {
	level := def

	if l, ok := os.LookupEnv("LOG_LEVEL"); ok {
		if parsed, ok := ParseLevel(l); ok {
			level = parsed
		}
	}

	logger := slog.New(
		slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: level,
		}),
	)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps LOG_LEVEL spellings to slog levels.
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dev", "development", "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error", "production", "prod":
		return slog.LevelError, true
	}
	return 0, false
}
