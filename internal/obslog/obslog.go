// Package obslog provides structured JSON logging for the metrics library,
// following the teacher's event-logger shape: a small typed wrapper over
// slog with stable attached fields and a package-level default instance.
package obslog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Logger wraps slog with a fixed "component" attribute.
type Logger struct {
	logger *slog.Logger
}

// New creates a Logger with JSON output to w, tagged with component.
func New(component string, w io.Writer) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	return &Logger{logger: slog.New(handler).With("component", component)}
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }

// Warn logs at warn level — used for recoverable conditions the spec
// requires to be surfaced without failing the caller (MAC probe failure,
// queue corruption recovery, etc).
func (l *Logger) Warn(msg string, args ...any) { l.logger.Warn(msg, args...) }

// Error logs at error level.
func (l *Logger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

// Critical logs at slog.LevelError+4, above the highest level slog
// names (Error); used for
// failures the caller must still tolerate (e.g. fingerprint write failure
// per spec.md §4.1: "log critically but still return the value").
func (l *Logger) Critical(msg string, args ...any) {
	l.logger.Log(context.Background(), slog.LevelError+4, msg, args...)
}

var (
	defaultMu  sync.RWMutex
	defaultLog = New("eosmetrics", os.Stderr)
)

// SetDefault replaces the package default logger.
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLog = l
}

// Default returns the package default logger.
func Default() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLog
}

// Noop returns a Logger that discards everything, for tests.
func Noop() *Logger {
	return New("noop", io.Discard)
}
