package sse

import (
	"context"
	"io"
	"iter"
	"sync"

	"github.com/rhuss/trellis/pkg/api"
)

// closer runs a release function at most once.
type closer struct {
	once    sync.Once
	release func() error
	err     error
}

func (c *closer) Close() error {
	c.once.Do(func() {
		if c.release != nil {
			c.err = c.release()
		}
	})
	return c.err
}

// FromEvents returns a finite source yielding events in order.
func FromEvents(events ...api.ServerEvent) api.EventSource {
	return &sliceSource{events: events}
}

type sliceSource struct {
	closer
	events []api.ServerEvent
	pos    int
}

func (s *sliceSource) Next(ctx context.Context) (api.ServerEvent, error) {
	if err := ctx.Err(); err != nil {
		return api.ServerEvent{}, err
	}
	if s.pos >= len(s.events) {
		return api.ServerEvent{}, io.EOF
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, nil
}

// FromChannel returns a source reading from ch until it is closed. Waiting
// for the next event stops when the context is cancelled. release, if not
// nil, is called once when the source is closed and is where the producer
// behind ch should be stopped.
func FromChannel(ch <-chan api.ServerEvent, release func()) api.EventSource {
	s := &chanSource{ch: ch}
	s.release = func() error {
		if release != nil {
			release()
		}
		return nil
	}
	return s
}

type chanSource struct {
	closer
	ch <-chan api.ServerEvent
}

func (s *chanSource) Next(ctx context.Context) (api.ServerEvent, error) {
	select {
	case <-ctx.Done():
		return api.ServerEvent{}, ctx.Err()
	case ev, ok := <-s.ch:
		if !ok {
			return api.ServerEvent{}, io.EOF
		}
		return ev, nil
	}
}

// FromSeq returns a source pulling from seq. Closing the source stops the
// iterator, running its deferred cleanup. Cancellation is observed between
// events; a sequence that blocks should be exposed through FromChannel or
// Func instead.
func FromSeq(seq iter.Seq[api.ServerEvent]) api.EventSource {
	next, stop := iter.Pull(seq)
	s := &seqSource{next: next}
	s.release = func() error {
		stop()
		return nil
	}
	return s
}

type seqSource struct {
	closer
	next func() (api.ServerEvent, bool)
}

func (s *seqSource) Next(ctx context.Context) (api.ServerEvent, error) {
	if err := ctx.Err(); err != nil {
		return api.ServerEvent{}, err
	}
	ev, ok := s.next()
	if !ok {
		return api.ServerEvent{}, io.EOF
	}
	return ev, nil
}

// Func adapts a pair of functions into a source. release may be nil.
func Func(next func(context.Context) (api.ServerEvent, error), release func() error) api.EventSource {
	s := &funcSource{next: next}
	s.release = release
	return s
}

type funcSource struct {
	closer
	next func(context.Context) (api.ServerEvent, error)
}

func (s *funcSource) Next(ctx context.Context) (api.ServerEvent, error) {
	return s.next(ctx)
}

// Collect drains src, closes it and returns the events read. It stops at
// io.EOF or at the first error.
func Collect(ctx context.Context, src api.EventSource) ([]api.ServerEvent, error) {
	defer src.Close()

	var out []api.ServerEvent
	for {
		ev, err := src.Next(ctx)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, ev)
	}
}
