package main

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

const (
	LOG_LEVEL_ERROR   = "ERROR"
	LOG_LEVEL_WARNING = "WARNING"
	LOG_LEVEL_INFO    = "INFO"
	LOG_LEVEL_DEBUG   = "DEBUG"

	LOG_FORMAT_TEXT = "text"
	LOG_FORMAT_JSON = "json"
)

type LogConfig struct {
	Level string `mapstructure:"level"`
	// Format is text or json. Anything else falls back to text.
	Format string `mapstructure:"format"`
}

func parseLevel(logLevel string) slog.Level {
	switch strings.ToUpper(logLevel) {
	case LOG_LEVEL_ERROR:
		return slog.LevelError
	case LOG_LEVEL_WARNING, "WARN":
		return slog.LevelWarn
	case LOG_LEVEL_DEBUG:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

func newLogHandler(w io.Writer, cfg LogConfig) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:     parseLevel(cfg.Level),
		AddSource: parseLevel(cfg.Level) == slog.LevelDebug,
	}
	if strings.EqualFold(cfg.Format, LOG_FORMAT_JSON) {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func initLogger(cfg LogConfig) {
	logger := slog.New(newLogHandler(os.Stdout, cfg)).With("service", "silo-runners")
	slog.SetDefault(logger)
}
