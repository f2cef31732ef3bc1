package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// DefaultName is the logger name attached to every record when none is configured.
const DefaultName = "main_logger"

// logger starts at info on stderr so packages may log before Init
var logger atomic.Pointer[slog.Logger]

func init() {
	logger.Store(New("info", "json", DefaultName, os.Stderr))
}

// ParseLevel maps a configured level name to a slog level. The second return
// value is false when the name is not recognised.
func ParseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// New builds a logger writing to w. Unknown levels fall back to info and any
// format other than "text" produces JSON.
func New(level, format, name string, w io.Writer) *slog.Logger {
	slogLevel, _ := ParseLevel(level)

	opts := &slog.HandlerOptions{
		Level: slogLevel,
	}

	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	if name == "" {
		name = DefaultName
	}
	return slog.New(handler).With("logger", name)
}

// Init initializes the package logger on stderr and installs it as the slog default
func Init(level, format, name string) {
	l := New(level, format, name, os.Stderr)
	logger.Store(l)
	slog.SetDefault(l)
}

// Get returns the logger instance
func Get() *slog.Logger {
	return logger.Load()
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	Get().Debug(msg, args...)
}

// Info logs an info message
func Info(msg string, args ...any) {
	Get().Info(msg, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	Get().Warn(msg, args...)
}

// Error logs an error message
func Error(msg string, args ...any) {
	Get().Error(msg, args...)
}
