package transport

import (
	"context"

	"github.com/rhuss/trellis/pkg/api"
	"github.com/rhuss/trellis/pkg/sse"
)

// Dispatch writes a finished call to w. A fixed body is written in one go.
// An event-stream body gets the framing headers, an immediate flush of the
// status line, and then one flush per event until the source is exhausted
// or ctx is cancelled. The event source is always closed.
func Dispatch(ctx context.Context, call api.Call, w ResponseWriter) error {
	stream, ok := call.Response.Body.(*api.EventStream)
	if !ok {
		return w.WriteResponse(ctx, call.Response)
	}

	src := stream.Source
	if src == nil {
		src = sse.FromEvents()
	}

	if err := w.StartStream(ctx, sse.Prepare(call.Response)); err != nil {
		src.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		src.Close()
		return err
	}
	return sse.Pump(ctx, src, w)
}
