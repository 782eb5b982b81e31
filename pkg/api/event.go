package api

import (
	"context"
	"time"
)

// ServerEvent is one unit of a server-sent event stream. Empty fields are
// omitted on the wire.
type ServerEvent struct {
	ID    string
	Event string
	Data  string
	Retry time.Duration
}

// EventSource is a lazy, one-directional sequence of server events.
//
// Next blocks until the next event is produced, the context is cancelled,
// or the sequence ends; the end of a finite sequence is reported as io.EOF.
// Close releases whatever the source holds upstream and must be safe to
// call after Next has returned an error. A source cannot be rewound.
type EventSource interface {
	Next(ctx context.Context) (ServerEvent, error)
	Close() error
}
