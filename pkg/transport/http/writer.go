package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/rhuss/trellis/pkg/api"
	"github.com/rhuss/trellis/pkg/observability"
	"github.com/rhuss/trellis/pkg/sse"
	"github.com/rhuss/trellis/pkg/transport"
)

// writerState tracks the state of a responseWriter.
type writerState int

const (
	writerIdle      writerState = iota // Initial state, nothing written
	writerStreaming                    // StartStream called, body open for events
	writerCompleted                    // WriteResponse called
)

var (
	errWriterCompleted = errors.New("writer is completed")
	errStreamStarted   = errors.New("streaming has already started")
	errNotStreaming    = errors.New("stream has not been started")
)

// responseWriter implements transport.ResponseWriter on top of an
// http.ResponseWriter. It handles both fixed bodies and event streams.
type responseWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController

	mu     sync.Mutex
	state  writerState
	events int
}

var _ transport.ResponseWriter = (*responseWriter)(nil)

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		w:  w,
		rc: http.NewResponseController(w),
	}
}

// WriteResponse sends status, headers, cookies and the fixed body of resp.
// It is mutually exclusive with StartStream.
func (s *responseWriter) WriteResponse(ctx context.Context, resp api.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case writerStreaming:
		return fmt.Errorf("cannot write response: %w", errStreamStarted)
	case writerCompleted:
		return fmt.Errorf("cannot write response: %w", errWriterCompleted)
	}

	s.writeHead(resp)
	s.state = writerCompleted

	if body := api.BodyBytes(resp.Body); len(body) > 0 {
		if _, err := s.w.Write(body); err != nil {
			return fmt.Errorf("failed to write body: %w", err)
		}
	}
	return nil
}

// StartStream sends status and headers and leaves the body open for events.
func (s *responseWriter) StartStream(ctx context.Context, resp api.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case writerStreaming:
		return fmt.Errorf("cannot start stream: %w", errStreamStarted)
	case writerCompleted:
		return fmt.Errorf("cannot start stream: %w", errWriterCompleted)
	}

	s.writeHead(resp)
	s.state = writerStreaming
	return nil
}

// WriteEvent sends a single event frame. Flushing is left to the caller.
func (s *responseWriter) WriteEvent(ctx context.Context, ev api.ServerEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != writerStreaming {
		return fmt.Errorf("cannot write event: %w", errNotStreaming)
	}
	if err := sse.Encode(s.w, ev); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	s.events++
	observability.StreamEventsTotal.Inc()
	return nil
}

// Flush ensures buffered data is sent to the client.
func (s *responseWriter) Flush() error {
	return s.rc.Flush()
}

// started reports whether the status line has been written.
func (s *responseWriter) started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != writerIdle
}

// writeHead copies headers, content type and cookies of resp and writes the
// status line. Must be called with s.mu held.
func (s *responseWriter) writeHead(resp api.Response) {
	h := s.w.Header()
	for _, f := range resp.Headers.Fields() {
		for _, v := range f.Values {
			h.Add(f.Name, v)
		}
	}
	if resp.ContentType != nil {
		h.Set("Content-Type", resp.ContentType.String())
	}
	for _, c := range resp.Cookies {
		http.SetCookie(s.w, c.HTTP())
	}

	code := resp.Status.Code
	if code == 0 {
		code = http.StatusOK
	}
	s.w.WriteHeader(code)
}
