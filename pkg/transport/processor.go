package transport

import (
	"context"

	"github.com/rhuss/trellis/pkg/api"
)

// Processor runs one exchange through the handler core. It always returns a
// well-formed call: failures are rendered into the response, never returned.
type Processor interface {
	Process(ctx context.Context, req api.Request) api.Call
}

// ProcessorFunc is an adapter that allows using an ordinary function as a
// Processor.
type ProcessorFunc func(ctx context.Context, req api.Request) api.Call

// Process calls f(ctx, req).
func (f ProcessorFunc) Process(ctx context.Context, req api.Request) api.Call {
	return f(ctx, req)
}

// ResponseWriter abstracts buffered and streaming output. The transport
// creates one per exchange.
//
// WriteResponse and StartStream are mutually exclusive on a single writer
// instance, and each may be called once. WriteEvent is only valid after
// StartStream.
type ResponseWriter interface {
	// WriteResponse sends status, headers and the fixed body of resp.
	WriteResponse(ctx context.Context, resp api.Response) error

	// StartStream sends status and headers of resp and leaves the body open
	// for events.
	StartStream(ctx context.Context, resp api.Response) error

	// WriteEvent sends one framed event.
	WriteEvent(ctx context.Context, ev api.ServerEvent) error

	// Flush pushes buffered data to the client. Returns an error if the
	// client has disconnected.
	Flush() error
}
