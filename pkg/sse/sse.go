// Package sse implements the text/event-stream side of trellis: framing
// headers, the event wire format, event sources and the pump that moves
// events from a source to a transport one flush at a time.
package sse

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/rhuss/trellis/pkg/api"
)

// EventWriter receives framed events from Pump. transport.ResponseWriter
// satisfies it.
type EventWriter interface {
	WriteEvent(ctx context.Context, ev api.ServerEvent) error
	Flush() error
}

// Prepare marks resp as an event stream: event-stream media type, caching
// disabled and the connection kept open.
func Prepare(resp api.Response) api.Response {
	resp = resp.WithContentType(api.NewContentType(api.TextEventStream))
	resp.Headers = resp.Headers.
		Set("Cache-Control", "no-cache").
		Set("Connection", "keep-alive")
	return resp
}

// ErrorEvent is the final frame written when a source fails mid-stream.
func ErrorEvent() api.ServerEvent {
	return api.ServerEvent{Event: "error", Data: "stream production failed"}
}

// Encode writes ev in the text/event-stream format in a single write. Data is
// split into one data line per line; an empty payload still produces a data
// line so the event is dispatched by the receiver.
func Encode(w io.Writer, ev api.ServerEvent) error {
	var b bytes.Buffer
	if ev.ID != "" {
		b.WriteString("id: ")
		b.WriteString(singleLine(ev.ID))
		b.WriteByte('\n')
	}
	if ev.Event != "" {
		b.WriteString("event: ")
		b.WriteString(singleLine(ev.Event))
		b.WriteByte('\n')
	}
	if ev.Retry > 0 {
		b.WriteString("retry: ")
		b.WriteString(strconv.FormatInt(ev.Retry.Milliseconds(), 10))
		b.WriteByte('\n')
	}
	for _, line := range strings.Split(normalizeNewlines(ev.Data), "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')

	_, err := w.Write(b.Bytes())
	return err
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

func singleLine(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}
