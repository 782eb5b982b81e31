// Package logging is a thin leveled facade over log/slog.
//
// Loggers are named with dot-separated hierarchies ("trellis.handler").
// Thresholds are process-wide and can be changed at runtime: a threshold set
// for "trellis" applies to "trellis.handler" unless that name has its own.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Levels understood by the facade. Trace sits below slog's Debug.
const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

var registry = struct {
	sync.RWMutex
	root    slog.Level
	levels  map[string]slog.Level
	handler slog.Handler
}{
	root:   LevelInfo,
	levels: map[string]slog.Level{},
}

// SetLevel sets the threshold for loggers without a more specific one.
func SetLevel(level slog.Level) {
	registry.Lock()
	defer registry.Unlock()
	registry.root = level
}

// SetLoggerLevel sets the threshold for name and every logger below it.
func SetLoggerLevel(name string, level slog.Level) {
	registry.Lock()
	defer registry.Unlock()
	registry.levels[name] = level
}

// ResetLevels drops all per-name thresholds and restores the Info default.
func ResetLevels() {
	registry.Lock()
	defer registry.Unlock()
	registry.root = LevelInfo
	registry.levels = map[string]slog.Level{}
}

// SetHandler routes all facade output to h. A nil handler falls back to
// slog.Default at each call.
func SetHandler(h slog.Handler) {
	registry.Lock()
	defer registry.Unlock()
	registry.handler = h
}

// ParseLevel parses trace, debug, info, warn (or warning) and error.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

func threshold(name string) slog.Level {
	registry.RLock()
	defer registry.RUnlock()
	for n := name; n != ""; {
		if level, ok := registry.levels[n]; ok {
			return level
		}
		i := strings.LastIndexByte(n, '.')
		if i < 0 {
			break
		}
		n = n[:i]
	}
	return registry.root
}

func handler() slog.Handler {
	registry.RLock()
	h := registry.handler
	registry.RUnlock()
	if h == nil {
		return slog.Default().Handler()
	}
	return h
}

// Logger is a named logger. The zero value logs under the root threshold.
type Logger struct {
	name string
}

// New returns the logger for name.
func New(name string) *Logger {
	return &Logger{name: name}
}

// Name returns the logger name.
func (l *Logger) Name() string { return l.name }

// Enabled reports whether messages at level pass the current threshold.
func (l *Logger) Enabled(level slog.Level) bool {
	return level >= threshold(l.name)
}

func (l *Logger) IsTraceEnabled() bool { return l.Enabled(LevelTrace) }
func (l *Logger) IsDebugEnabled() bool { return l.Enabled(LevelDebug) }
func (l *Logger) IsInfoEnabled() bool  { return l.Enabled(LevelInfo) }
func (l *Logger) IsWarnEnabled() bool  { return l.Enabled(LevelWarn) }
func (l *Logger) IsErrorEnabled() bool { return l.Enabled(LevelError) }

// Tracef logs at trace level. Arguments are only formatted when enabled.
func (l *Logger) Tracef(format string, args ...any) { l.logf(LevelTrace, nil, format, args) }

// Debugf logs at debug level.
func (l *Logger) Debugf(format string, args ...any) { l.logf(LevelDebug, nil, format, args) }

// Infof logs at info level.
func (l *Logger) Infof(format string, args ...any) { l.logf(LevelInfo, nil, format, args) }

// Warnf logs at warn level.
func (l *Logger) Warnf(format string, args ...any) { l.logf(LevelWarn, nil, format, args) }

// Errorf logs at error level.
func (l *Logger) Errorf(format string, args ...any) { l.logf(LevelError, nil, format, args) }

// WarnErr logs at warn level with err attached as the cause.
func (l *Logger) WarnErr(err error, format string, args ...any) { l.logf(LevelWarn, err, format, args) }

// ErrorErr logs at error level with err attached as the cause.
func (l *Logger) ErrorErr(err error, format string, args ...any) {
	l.logf(LevelError, err, format, args)
}

// Lazy logs the result of msg at level, calling msg only when enabled.
func (l *Logger) Lazy(level slog.Level, msg func() string) {
	if !l.Enabled(level) {
		return
	}
	l.LogAttrs(context.Background(), level, msg())
}

// TraceAttrs returns the trace_id and span_id of the span in ctx, or nil
// when ctx carries no valid span.
func TraceAttrs(ctx context.Context) []slog.Attr {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	return []slog.Attr{
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	}
}

// LogAttrs logs a structured record. The logger name is added as the
// "logger" attribute, followed by the trace attributes of ctx.
func (l *Logger) LogAttrs(ctx context.Context, level slog.Level, msg string, attrs ...slog.Attr) {
	if !l.Enabled(level) {
		return
	}
	h := handler()
	if !h.Enabled(ctx, level) {
		return
	}
	r := slog.NewRecord(time.Now(), level, msg, 0)
	if l.name != "" {
		r.AddAttrs(slog.String("logger", l.name))
	}
	r.AddAttrs(TraceAttrs(ctx)...)
	r.AddAttrs(attrs...)
	_ = h.Handle(ctx, r)
}

func (l *Logger) logf(level slog.Level, err error, format string, args []any) {
	if !l.Enabled(level) {
		return
	}
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	if err != nil {
		l.LogAttrs(context.Background(), level, msg, slog.String("error", err.Error()))
		return
	}
	l.LogAttrs(context.Background(), level, msg)
}
