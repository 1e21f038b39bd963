package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger returns a logger writing to stderr. Query output of the command
// line tool goes to stdout and must not be mixed with log lines.
//   - env=prod: JSON handler without source locations
//   - anything else: text handler with source locations
//
// LOG_LEVEL selects the level (debug/info/warn/error), default info.
func NewLogger(env string) *slog.Logger {
	return newLogger(os.Stderr, env, os.Getenv("LOG_LEVEL"))
}

func newLogger(w io.Writer, env, level string) *slog.Logger {
	if strings.EqualFold(strings.TrimSpace(env), "prod") {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: parseLevel(level),
		}))
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     parseLevel(level),
		AddSource: true,
	}))
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
