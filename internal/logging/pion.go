package logging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pion/logging"
)

// levelTrace sits below debug; pion is very chatty at trace.
const levelTrace = slog.LevelDebug - 4

// PionFactory routes pion's internal logging into slog. Each pion scope
// becomes a "scope" attribute.
type PionFactory struct {
	Logger *slog.Logger
}

func NewPionFactory(logger *slog.Logger) *PionFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &PionFactory{Logger: logger}
}

func (f *PionFactory) NewLogger(scope string) logging.LeveledLogger {
	return &pionLogger{logger: f.Logger.With("component", "pion", "scope", scope)}
}

type pionLogger struct {
	logger *slog.Logger
}

func (l *pionLogger) log(level slog.Level, msg string) {
	l.logger.Log(context.Background(), level, msg)
}

func (l *pionLogger) Trace(msg string) { l.log(levelTrace, msg) }
func (l *pionLogger) Tracef(format string, args ...any) {
	l.log(levelTrace, fmt.Sprintf(format, args...))
}

func (l *pionLogger) Debug(msg string) { l.log(slog.LevelDebug, msg) }
func (l *pionLogger) Debugf(format string, args ...any) {
	l.log(slog.LevelDebug, fmt.Sprintf(format, args...))
}

func (l *pionLogger) Info(msg string) { l.log(slog.LevelInfo, msg) }
func (l *pionLogger) Infof(format string, args ...any) {
	l.log(slog.LevelInfo, fmt.Sprintf(format, args...))
}

func (l *pionLogger) Warn(msg string) { l.log(slog.LevelWarn, msg) }
func (l *pionLogger) Warnf(format string, args ...any) {
	l.log(slog.LevelWarn, fmt.Sprintf(format, args...))
}

func (l *pionLogger) Error(msg string) { l.log(slog.LevelError, msg) }
func (l *pionLogger) Errorf(format string, args ...any) {
	l.log(slog.LevelError, fmt.Sprintf(format, args...))
}
