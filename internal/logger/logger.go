// Package logger provides structured logging for the ingestion core, backed
// by zerolog. The teacher repo's own internal/logger implementation never
// made it into the retrieved pack; this one is grounded on the shape of
// LoggerInterface its other packages already call (Debug/Info/Warn/Error
// with a context and key-value pairs) and adopts zerolog from the wider
// example corpus rather than hand-rolling on log/slog.
package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Level is a logging verbosity threshold.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// LoggerInterface is the logging contract every internal package depends on,
// so call sites never import zerolog directly.
type LoggerInterface interface {
	Debug(ctx context.Context, msg string, kv ...any)
	Info(ctx context.Context, msg string, kv ...any)
	Warn(ctx context.Context, msg string, kv ...any)
	Error(ctx context.Context, msg string, kv ...any)
	With(kv ...any) LoggerInterface
}

// Logger is the zerolog-backed LoggerInterface implementation.
type Logger struct {
	zl zerolog.Logger
}

// New creates a Logger writing to w at the given level, tagging every event
// with service and, when non-nil, a set of base key-value pairs.
func New(w io.Writer, level Level, service string, base map[string]any) *Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	ctx := zerolog.New(w).With().Timestamp().Str("service", service)
	for k, v := range base {
		ctx = ctx.Interface(k, v)
	}
	zl := ctx.Logger().Level(level.zerolog())
	return &Logger{zl: zl}
}

// NewConsole is a convenience constructor for a human-readable stderr logger.
func NewConsole(level Level, service string) *Logger {
	return New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}, level, service, nil)
}

func (l *Logger) event(lvl zerolog.Level, msg string, kv []any) {
	e := l.zl.WithLevel(lvl)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, kv[i+1])
	}
	e.Msg(msg)
}

func (l *Logger) Debug(_ context.Context, msg string, kv ...any) { l.event(zerolog.DebugLevel, msg, kv) }
func (l *Logger) Info(_ context.Context, msg string, kv ...any)  { l.event(zerolog.InfoLevel, msg, kv) }
func (l *Logger) Warn(_ context.Context, msg string, kv ...any)  { l.event(zerolog.WarnLevel, msg, kv) }
func (l *Logger) Error(_ context.Context, msg string, kv ...any) { l.event(zerolog.ErrorLevel, msg, kv) }

// With returns a child logger carrying additional fixed key-value pairs.
func (l *Logger) With(kv ...any) LoggerInterface {
	ctx := l.zl.With()
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		ctx = ctx.Interface(key, kv[i+1])
	}
	return &Logger{zl: ctx.Logger()}
}
