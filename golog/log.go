// Package golog provides the minimal structured logging shim the rest of
// chanrpc logs through. It mirrors the shape of golang.org/x/tools'
// internal/telemetry/event package (a Message plus a handful of tagged
// key/value pairs) trimmed down to what a library needs: nothing is wired to
// a global exporter, and the zero Logger silently drops everything, so
// importing chanrpc never forces a logging dependency on callers.
package golog

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Level orders log severity, low to high.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Tag is one key/value pair attached to a log entry.
type Tag struct {
	Key   string
	Value any
}

// Sink receives log entries. Implementations must be safe for concurrent use.
type Sink interface {
	Log(ctx context.Context, level Level, msg string, tags ...Tag)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, level Level, msg string, tags ...Tag)

func (f SinkFunc) Log(ctx context.Context, level Level, msg string, tags ...Tag) { f(ctx, level, msg, tags...) }

// Logger is a named handle onto a Sink. The zero Logger discards everything,
// so a Channel/Sink/LocalHandler constructed without one is always safe.
type Logger struct {
	module string
	sink   atomic.Pointer[Sink]
}

// New returns a Logger that tags every entry with module.
func New(module string) *Logger {
	return &Logger{module: module}
}

// SetSink installs (or clears, with nil) the destination for this logger's
// entries. Safe to call concurrently with logging.
func (l *Logger) SetSink(s Sink) {
	if l == nil {
		return
	}
	if s == nil {
		l.sink.Store(nil)
		return
	}
	l.sink.Store(&s)
}

func (l *Logger) emit(ctx context.Context, level Level, msg string, tags ...Tag) {
	if l == nil {
		return
	}
	p := l.sink.Load()
	if p == nil {
		return
	}
	tags = append(tags, Tag{Key: "module", Value: l.module})
	(*p).Log(ctx, level, msg, tags...)
}

func (l *Logger) Trace(ctx context.Context, format string, args ...any) {
	l.emit(ctx, LevelTrace, fmt.Sprintf(format, args...))
}

func (l *Logger) Debug(ctx context.Context, format string, args ...any) {
	l.emit(ctx, LevelDebug, fmt.Sprintf(format, args...))
}

func (l *Logger) Warning(ctx context.Context, format string, args ...any) {
	l.emit(ctx, LevelWarning, fmt.Sprintf(format, args...))
}

func (l *Logger) Error(ctx context.Context, format string, args ...any) {
	l.emit(ctx, LevelError, fmt.Sprintf(format, args...))
}
