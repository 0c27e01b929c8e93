package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Init installs a default logger from LOG_LEVEL and LOG_FORMAT so that
// anything logged before the configuration is read still goes somewhere
// sensible.
func Init() {
	level, _ := ParseLevel(os.Getenv("LOG_LEVEL"))
	format := os.Getenv("LOG_FORMAT")
	if format == "" {
		format = "text"
	}

	logger, err := New(os.Stderr, level, format)
	if err != nil {
		logger, _ = New(os.Stderr, level, "text")
	}
	slog.SetDefault(logger)
}

// Setup replaces the default logger once the configuration is known.
func Setup(levelName, format string) (*slog.Logger, error) {
	level, err := ParseLevel(levelName)
	if err != nil {
		return nil, err
	}
	logger, err := New(os.Stderr, level, format)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}

// ParseLevel maps a level name to a slog level. Empty means error, the
// production default.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "dev", "development", "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "", "error", "production", "prod":
		return slog.LevelError, nil
	default:
		return slog.LevelError, fmt.Errorf("unsupported log level %q", name)
	}
}

func New(w io.Writer, level slog.Level, format string) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	switch format {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", format)
	}

	return slog.New(handler), nil
}
