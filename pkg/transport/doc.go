// Package transport defines the boundary between trellis's handler core and
// the concrete transports that carry requests and responses.
//
// The core is reached through a Processor, which turns an api.Request into a
// finished api.Call. The transport writes that call back through a
// ResponseWriter: once for a fixed body, or progressively for an event
// stream via Dispatch.
//
// # Middleware
//
// Middleware wraps a Processor with cross-cutting behavior. Built-in
// middleware provides panic recovery, request ID assignment (X-Request-ID)
// and structured logging via log/slog.
//
// # Cancellation
//
// Cancellation reaches the core through the context passed to Process and
// Dispatch. InFlightRegistry tracks the cancel functions of open streams so
// a server can end them all on shutdown.
package transport
