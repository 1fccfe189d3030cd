// Package logger is a thin leveled wrapper over log/slog: one
// constructor that parses a level string, and Info/Warn/Error/Debug
// methods that take a message plus structured fields.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Logger wraps *slog.Logger with the level-by-name constructor the
// rest of the service expects.
type Logger struct {
	*slog.Logger
	level slog.Level
}

// New builds a Logger writing JSON lines to w at the given level
// ("debug", "info", "warn" or "warning", "error"; an empty string
// means "info", anything else is an error).
func New(w io.Writer, level string) (*Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	return &Logger{Logger: slog.New(h), level: lvl}, nil
}

func parseLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %q", level)
	}
}

// Debug logs msg at debug level with the given structured fields.
func (l *Logger) Debug(msg string, args ...any) { l.Logger.Debug(msg, args...) }

// Info logs msg at info level with the given structured fields.
func (l *Logger) Info(msg string, args ...any) { l.Logger.Info(msg, args...) }

// Warn logs msg at warn level with the given structured fields.
func (l *Logger) Warn(msg string, args ...any) { l.Logger.Warn(msg, args...) }

// Error logs msg at error level with the given structured fields.
func (l *Logger) Error(msg string, args ...any) { l.Logger.Error(msg, args...) }

// ExitWithError calls os.Exit with *exitCode if it is non-zero. Call
// it via defer in main so deferred cleanup still runs before the
// process exits with a failure code.
func ExitWithError(exitCode *int) {
	if *exitCode != 0 {
		os.Exit(*exitCode)
	}
}
