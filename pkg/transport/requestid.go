package transport

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"github.com/rhuss/trellis/pkg/api"
)

// RequestIDHeader carries the request ID on requests and responses.
const RequestIDHeader = "X-Request-ID"

// RequestID returns middleware that assigns a unique request ID to each
// request. The ID is taken from the context if the adapter already stored
// one, then from the X-Request-ID request header, and is generated
// otherwise. It is stored in the context and echoed on the response.
func RequestID() Middleware {
	return func(next Processor) Processor {
		return ProcessorFunc(func(ctx context.Context, req api.Request) api.Call {
			id := RequestIDFromContext(ctx)
			if id == "" {
				id = req.Headers.Get(RequestIDHeader)
			}
			if id == "" {
				id = generateRequestID()
			}
			ctx = ContextWithRequestID(ctx, id)

			call := next.Process(ctx, req)
			if !call.Response.Headers.Has(RequestIDHeader) {
				call.Response = call.Response.WithHeader(RequestIDHeader, id)
			}
			return call
		})
	}
}

type requestIDKey struct{}

// RequestIDFromContext returns the request ID stored in ctx, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// ContextWithRequestID returns a copy of ctx carrying id.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// generateRequestID creates a new unique request ID as a hex string.
func generateRequestID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
