package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/rhuss/trellis/pkg/api"
	"github.com/rhuss/trellis/pkg/logging"
)

// Logging returns middleware that emits one structured log entry per
// processed request with method, path, status, duration and request ID,
// plus the trace and span IDs when the context carries a span.
// Responses with a server error status are logged at error level.
//
// For streaming responses the duration covers processing only; the stream
// itself is written after this middleware returns.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Processor) Processor {
		return ProcessorFunc(func(ctx context.Context, req api.Request) api.Call {
			start := time.Now()

			call := next.Process(ctx, req)

			attrs := []slog.Attr{
				slog.String("request_id", RequestIDFromContext(ctx)),
				slog.String("method", string(req.Method)),
				slog.String("path", req.Path),
				slog.Int("status", call.Response.Status.Code),
				slog.Bool("stream", call.Response.IsStream()),
				slog.Duration("duration", time.Since(start)),
			}
			attrs = append(attrs, logging.TraceAttrs(ctx)...)

			if call.Response.Status.IsServerError() {
				logger.LogAttrs(ctx, slog.LevelError, "request failed", attrs...)
			} else {
				logger.LogAttrs(ctx, slog.LevelInfo, "request completed", attrs...)
			}

			return call
		})
	}
}
