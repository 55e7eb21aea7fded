// Package logger provides structured logging backed by log/slog.
package logger

import (
	"context"
	"io"
	"log/slog"
)

// Level is the minimum level a logger emits.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// LoggerInterface is the logging surface passed through the application.
type LoggerInterface interface {
	Debug(ctx context.Context, msg string, kv ...any)
	Info(ctx context.Context, msg string, kv ...any)
	Warn(ctx context.Context, msg string, kv ...any)
	Error(ctx context.Context, msg string, kv ...any)
	With(kv ...any) LoggerInterface
}

// Logger implements LoggerInterface on top of slog.
type Logger struct {
	sl *slog.Logger
}

var _ LoggerInterface = (*Logger)(nil)

// New creates a Logger writing JSON records to w at the given level.
// service is attached to every record; extra key/value pairs may be nil.
func New(w io.Writer, level Level, service string, kv []any) *Logger {
	var sllevel slog.Level
	switch level {
	case LevelDebug:
		sllevel = slog.LevelDebug
	case LevelWarn:
		sllevel = slog.LevelWarn
	case LevelError:
		sllevel = slog.LevelError
	default:
		sllevel = slog.LevelInfo
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: sllevel})
	sl := slog.New(h).With("service", service)
	if len(kv) > 0 {
		sl = sl.With(kv...)
	}
	return &Logger{sl: sl}
}

func (l *Logger) Debug(ctx context.Context, msg string, kv ...any) {
	l.sl.DebugContext(ctx, msg, kv...)
}

func (l *Logger) Info(ctx context.Context, msg string, kv ...any) {
	l.sl.InfoContext(ctx, msg, kv...)
}

func (l *Logger) Warn(ctx context.Context, msg string, kv ...any) {
	l.sl.WarnContext(ctx, msg, kv...)
}

func (l *Logger) Error(ctx context.Context, msg string, kv ...any) {
	l.sl.ErrorContext(ctx, msg, kv...)
}

// With returns a child logger carrying the extra key/value pairs.
func (l *Logger) With(kv ...any) LoggerInterface {
	return &Logger{sl: l.sl.With(kv...)}
}
