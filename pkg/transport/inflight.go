package transport

import (
	"context"
	"sync"
)

// InFlightRegistry tracks open event streams by request ID. Streams do not
// end on their own, so server shutdown relies on CancelAll. Request IDs may
// come from clients and are not unique: several streams can share one.
type InFlightRegistry struct {
	mu      sync.Mutex
	seq     uint64
	entries map[string]map[uint64]context.CancelFunc
}

// NewInFlightRegistry returns an empty registry.
func NewInFlightRegistry() *InFlightRegistry {
	return &InFlightRegistry{entries: map[string]map[uint64]context.CancelFunc{}}
}

// Register records a stream under id. The returned release function
// removes exactly this stream without cancelling it and may be called more
// than once.
func (r *InFlightRegistry) Register(id string, cancel context.CancelFunc) (release func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	token := r.seq
	streams := r.entries[id]
	if streams == nil {
		streams = map[uint64]context.CancelFunc{}
		r.entries[id] = streams
	}
	streams[token] = cancel

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if streams, ok := r.entries[id]; ok {
			delete(streams, token)
			if len(streams) == 0 {
				delete(r.entries, id)
			}
		}
	}
}

// Cancel cancels every stream registered under id and reports how many
// there were.
func (r *InFlightRegistry) Cancel(id string) int {
	r.mu.Lock()
	streams := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()

	for _, cancel := range streams {
		cancel()
	}
	return len(streams)
}

// CancelAll cancels every registered stream, empties the registry and
// returns the number of streams cancelled.
func (r *InFlightRegistry) CancelAll() int {
	r.mu.Lock()
	all := r.entries
	r.entries = map[string]map[uint64]context.CancelFunc{}
	r.mu.Unlock()

	n := 0
	for _, streams := range all {
		for _, cancel := range streams {
			cancel()
			n++
		}
	}
	return n
}

// Len returns the number of registered streams.
func (r *InFlightRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, streams := range r.entries {
		n += len(streams)
	}
	return n
}
