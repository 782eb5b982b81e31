package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetHandler(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: LevelTrace}))
	t.Cleanup(func() {
		SetHandler(nil)
		ResetLevels()
	})
	return &buf
}

func TestLevelGates(t *testing.T) {
	t.Cleanup(ResetLevels)
	log := New("gates")

	tests := []struct {
		level                             slog.Level
		trace, debug, info, warn, errored bool
	}{
		{LevelTrace, true, true, true, true, true},
		{LevelDebug, false, true, true, true, true},
		{LevelInfo, false, false, true, true, true},
		{LevelWarn, false, false, false, true, true},
		{LevelError, false, false, false, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			SetLevel(tt.level)
			assert.Equal(t, tt.trace, log.IsTraceEnabled(), "trace")
			assert.Equal(t, tt.debug, log.IsDebugEnabled(), "debug")
			assert.Equal(t, tt.info, log.IsInfoEnabled(), "info")
			assert.Equal(t, tt.warn, log.IsWarnEnabled(), "warn")
			assert.Equal(t, tt.errored, log.IsErrorEnabled(), "error")
		})
	}
}

func TestWarnThresholdDisablesInfo(t *testing.T) {
	t.Cleanup(ResetLevels)
	SetLevel(LevelWarn)

	log := New("any")
	assert.False(t, log.IsInfoEnabled())
	assert.True(t, log.IsErrorEnabled())
}

func TestHierarchicalThresholds(t *testing.T) {
	t.Cleanup(ResetLevels)
	SetLevel(LevelError)
	SetLoggerLevel("trellis", LevelInfo)
	SetLoggerLevel("trellis.handler", LevelTrace)

	assert.True(t, New("trellis.handler.chain").IsTraceEnabled())
	assert.False(t, New("trellis.sse").IsDebugEnabled())
	assert.True(t, New("trellis.sse").IsInfoEnabled())
	assert.False(t, New("trellisx").IsInfoEnabled())
	assert.False(t, New("other").IsWarnEnabled())
}

func TestFormattingIsLazy(t *testing.T) {
	buf := capture(t)
	SetLevel(LevelInfo)

	called := false
	log := New("lazy")
	log.Debugf("value %v", stringer(func() string { called = true; return "x" }))
	log.Lazy(LevelDebug, func() string { called = true; return "x" })

	assert.False(t, called)
	assert.Empty(t, buf.String())
}

func TestOutputCarriesNameAndCause(t *testing.T) {
	buf := capture(t)

	New("trellis.test").ErrorErr(errors.New("disk full"), "write %s", "index")

	out := buf.String()
	assert.Contains(t, out, `msg="write index"`)
	assert.Contains(t, out, "logger=trellis.test")
	assert.Contains(t, out, `error="disk full"`)
	assert.Contains(t, out, "level=ERROR")
}

func TestLogAttrsCarriesSpan(t *testing.T) {
	buf := capture(t)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10, 0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17, 0x18, 0x19},
		SpanID:     trace.SpanID{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	log := New("trellis.test")
	log.LogAttrs(ctx, LevelInfo, "traced")
	log.LogAttrs(context.Background(), LevelInfo, "untraced")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "trace_id=0a0b0c0d0e0f10111213141516171819")
	assert.Contains(t, lines[0], "span_id=0102030405060708")
	assert.NotContains(t, lines[1], "trace_id")
}

func TestTraceUsesItsOwnLevel(t *testing.T) {
	buf := capture(t)
	SetLevel(LevelTrace)

	New("t").Tracef("deep")
	assert.True(t, strings.Contains(buf.String(), "deep"))
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"trace":   LevelTrace,
		"DEBUG":   LevelDebug,
		"info":    LevelInfo,
		"warning": LevelWarn,
		" warn ":  LevelWarn,
		"error":   LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

type stringer func() string

func (s stringer) String() string { return s() }
