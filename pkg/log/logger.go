// Package log provides structured logging for edgeboost, backed by zerolog.
//
// The Logger interface is deliberately small: leveled methods with key-value
// field pairs and With for contextual loggers. Training code obtains a
// component-named logger via GetLoggerWithName and emits per-round progress
// as structured fields, so output stays machine-parseable.
package log

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Logger is a minimal structured logging interface. Fields are alternating
// key-value pairs; an error value may be passed directly and is attached
// under the "error" key.
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)

	// With returns a new Logger with the given fields pre-populated.
	With(fields ...any) Logger
}

var (
	mu            sync.RWMutex
	defaultLogger = newZerologLogger(os.Stderr, zerolog.InfoLevel)
)

// GetLogger returns the process-wide default logger.
func GetLogger() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

// GetLoggerWithName returns the default logger tagged with a component name.
func GetLoggerWithName(name string) Logger {
	return GetLogger().With(ComponentKey, name)
}

// SetOutput redirects the default logger to w at the given level. Intended
// for application setup and tests.
func SetOutput(w io.Writer, level zerolog.Level) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = newZerologLogger(w, level)
}

// zerologLogger adapts a zerolog.Logger to the Logger interface.
type zerologLogger struct {
	zl zerolog.Logger
}

func newZerologLogger(w io.Writer, level zerolog.Level) *zerologLogger {
	zl := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return &zerologLogger{zl: zl}
}

func (l *zerologLogger) Debug(msg string, fields ...any) { l.emit(l.zl.Debug(), msg, fields) }
func (l *zerologLogger) Info(msg string, fields ...any)  { l.emit(l.zl.Info(), msg, fields) }
func (l *zerologLogger) Warn(msg string, fields ...any)  { l.emit(l.zl.Warn(), msg, fields) }
func (l *zerologLogger) Error(msg string, fields ...any) { l.emit(l.zl.Error(), msg, fields) }

func (l *zerologLogger) With(fields ...any) Logger {
	ctx := l.zl.With()
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		ctx = ctx.Interface(key, fields[i+1])
	}
	return &zerologLogger{zl: ctx.Logger()}
}

func (l *zerologLogger) emit(ev *zerolog.Event, msg string, fields []any) {
	i := 0
	// A leading bare error is attached under the "error" key, including its
	// stack trace when one is present.
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			ev = ev.Err(err)
			i = 1
		}
	}
	for ; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		switch v := fields[i+1].(type) {
		case error:
			ev = ev.AnErr(key, v)
		case int:
			ev = ev.Int(key, v)
		case float64:
			ev = ev.Float64(key, v)
		case string:
			ev = ev.Str(key, v)
		case bool:
			ev = ev.Bool(key, v)
		default:
			ev = ev.Interface(key, v)
		}
	}
	ev.Msg(msg)
}
