package sse

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rhuss/trellis/pkg/api"
)

const maxLineSize = 1 << 20

// Decoder reads events in the text/event-stream format.
//
// Lines may end in LF, CRLF or CR. Comment lines are skipped, a field
// without a colon has an empty value and a single space after the colon is
// dropped. ID is taken from the event's own id field only; the last event ID
// is not carried over to later events.
type Decoder struct {
	scanner *bufio.Scanner
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 4096), maxLineSize)
	s.Split(scanLines)
	return &Decoder{scanner: s}
}

// Decode returns the next dispatched event, or io.EOF once the input ends.
// A trailing event without its blank-line terminator is discarded.
func (d *Decoder) Decode() (api.ServerEvent, error) {
	var (
		ev      api.ServerEvent
		data    strings.Builder
		hasData bool
	)
	for d.scanner.Scan() {
		line := d.scanner.Text()
		if line == "" {
			if !hasData {
				ev = api.ServerEvent{}
				continue
			}
			ev.Data = strings.TrimSuffix(data.String(), "\n")
			return ev, nil
		}
		if line[0] == ':' {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			ev.Event = value
		case "data":
			data.WriteString(value)
			data.WriteByte('\n')
			hasData = true
		case "id":
			if !strings.ContainsRune(value, 0) {
				ev.ID = value
			}
		case "retry":
			if ms, err := strconv.ParseUint(value, 10, 63); err == nil {
				ev.Retry = time.Duration(ms) * time.Millisecond
			}
		}
	}
	if err := d.scanner.Err(); err != nil {
		return api.ServerEvent{}, err
	}
	return api.ServerEvent{}, io.EOF
}

func scanLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[:i], nil
		}
		if i+1 < len(data) {
			if data[i+1] == '\n' {
				return i + 2, data[:i], nil
			}
			return i + 1, data[:i], nil
		}
		if atEOF {
			return i + 1, data[:i], nil
		}
		// A CR at the end of the buffer may be the first half of CRLF.
		return 0, nil, nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// NewSource exposes an event-stream body as an EventSource. Cancelling the
// context passed to Next closes rc to unblock a pending read.
func NewSource(rc io.ReadCloser) api.EventSource {
	return &decodedSource{rc: rc, dec: NewDecoder(rc)}
}

type decodedSource struct {
	rc   io.ReadCloser
	dec  *Decoder
	once sync.Once
	err  error
}

func (s *decodedSource) Next(ctx context.Context) (api.ServerEvent, error) {
	if err := ctx.Err(); err != nil {
		return api.ServerEvent{}, err
	}
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	ev, err := s.dec.Decode()
	stop()
	if ctxErr := ctx.Err(); ctxErr != nil && err != nil {
		return api.ServerEvent{}, ctxErr
	}
	return ev, err
}

func (s *decodedSource) Close() error {
	s.once.Do(func() { s.err = s.rc.Close() })
	return s.err
}
