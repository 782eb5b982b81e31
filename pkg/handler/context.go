package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rhuss/trellis/pkg/api"
	"github.com/rhuss/trellis/pkg/logging"
	"github.com/rhuss/trellis/pkg/sse"
)

// ErrCommitted is returned by Context mutators once the exchange is DONE and
// its response has been handed to the transport.
var ErrCommitted = errors.New("handler: response already committed")

// Context is the mutable state of one exchange. It is owned by the chain
// for the duration of Process; handlers receive it sequentially, never
// concurrently.
type Context struct {
	ctx     context.Context
	log     *logging.Logger
	pattern string

	mu    sync.Mutex
	call  api.Call
	state State
	err   error
	attrs map[string]any
}

func newContext(ctx context.Context, req api.Request, log *logging.Logger) *Context {
	return &Context{ctx: ctx, log: log, call: api.NewCall(req)}
}

// Context returns the exchange's context. It is cancelled when the client
// goes away or the server shuts down.
func (c *Context) Context() context.Context { return c.ctx }

// Logger returns the chain's logger.
func (c *Context) Logger() *logging.Logger { return c.log }

// Pattern returns the full pattern of the matched action, or "" before
// matching.
func (c *Context) Pattern() string { return c.pattern }

// Request returns the current request.
func (c *Context) Request() api.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.call.Request
}

// Response returns the response built so far.
func (c *Context) Response() api.Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.call.Response
}

// Call returns a snapshot of the exchange.
func (c *Context) Call() api.Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.call
}

// State returns the current lifecycle state.
func (c *Context) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the error being handled while in HANDLING_ERROR.
func (c *Context) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// PathParam returns the value bound to a path parameter, or "".
func (c *Context) PathParam(name string) string {
	return c.Request().PathParameter(name)
}

// Query returns the first value of a query parameter, or "".
func (c *Context) Query(name string) string {
	return c.Request().QueryParameters.Get(name)
}

// Set stores an attribute for later handlers of the same exchange.
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attrs == nil {
		c.attrs = map[string]any{}
	}
	c.attrs[key] = value
}

// Get returns an attribute stored with Set.
func (c *Context) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.attrs[key]
	return v, ok
}

// update applies fn to the call unless the exchange is DONE. An event stream
// that fn replaces is closed, since no transport will ever pump it.
func (c *Context) update(fn func(*api.Call)) error {
	c.mu.Lock()
	if c.state == StateDone {
		c.mu.Unlock()
		return ErrCommitted
	}
	prev := c.call.Response.Body
	fn(&c.call)
	next := c.call.Response.Body
	c.mu.Unlock()

	if stream, ok := prev.(*api.EventStream); ok && stream != next && stream.Source != nil {
		if err := stream.Source.Close(); err != nil {
			c.log.WarnErr(err, "closing replaced event stream")
		}
	}
	return nil
}

// SetRequest replaces the request seen by later handlers.
func (c *Context) SetRequest(req api.Request) error {
	return c.update(func(call *api.Call) { call.Request = req })
}

// SetResponse replaces the response.
func (c *Context) SetResponse(resp api.Response) error {
	return c.update(func(call *api.Call) { call.Response = resp })
}

// Status sets the response status.
func (c *Context) Status(s api.Status) error {
	return c.update(func(call *api.Call) { call.Response = call.Response.WithStatus(s) })
}

// Header appends values to a response header.
func (c *Context) Header(name string, values ...string) error {
	return c.update(func(call *api.Call) { call.Response = call.Response.WithHeader(name, values...) })
}

// Cookie adds a cookie to the response.
func (c *Context) Cookie(cookie api.Cookie) error {
	return c.update(func(call *api.Call) { call.Response = call.Response.WithCookie(cookie) })
}

// Send sets status, content type and body in one step.
func (c *Context) Send(status api.Status, ct api.ContentType, body api.Body) error {
	return c.update(func(call *api.Call) {
		call.Response = call.Response.WithStatus(status).WithContentType(ct).WithBody(body)
	})
}

// Ok answers 200 with a text/plain body.
func (c *Context) Ok(body string) error {
	return c.Text(api.StatusOK, body)
}

// Text answers with a text/plain body.
func (c *Context) Text(status api.Status, body string) error {
	return c.Send(status, api.NewContentType(api.TextPlain, "utf-8"), api.Text(body))
}

// HTML answers with a text/html body.
func (c *Context) HTML(status api.Status, body string) error {
	return c.Send(status, api.NewContentType(api.TextHTML, "utf-8"), api.Text(body))
}

// JSON answers with v encoded as application/json.
func (c *Context) JSON(status api.Status, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding JSON response: %w", err)
	}
	return c.Send(status, api.NewContentType(api.ApplicationJSON), api.Bytes(data))
}

// SSE answers 200 with src as an event stream. The transport flushes each
// event as src produces it and closes src when the stream ends.
func (c *Context) SSE(src api.EventSource) error {
	return c.update(func(call *api.Call) {
		call.Response = sse.Prepare(call.Response.WithStatus(api.StatusOK)).WithBody(api.Stream(src))
	})
}

func (c *Context) transition(to State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ValidateTransition(c.state, to); err != nil {
		return err
	}
	c.state = to
	return nil
}
