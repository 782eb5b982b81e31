package handler

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"strings"

	"github.com/rhuss/trellis/pkg/api"
	"github.com/rhuss/trellis/pkg/logging"
	"github.com/rhuss/trellis/pkg/router"
	"github.com/rhuss/trellis/pkg/transport"
)

type unit struct {
	kind    kind
	action  Action
	matches func(error) bool
	onError ErrorHandler
	scoped  bool // registered without a pattern, applies to its whole group
}

type match = router.Match[*unit]

// Chain is a compiled handler tree. It is immutable and safe for concurrent
// use by any number of exchanges.
type Chain struct {
	tree     *router.Tree[*unit]
	log      *logging.Logger
	observer func(error)
}

var _ transport.Processor = (*Chain)(nil)

// Option configures a Chain.
type Option func(*Chain)

// WithLogger sets the logger used for chain diagnostics.
func WithLogger(l *logging.Logger) Option {
	return func(ch *Chain) { ch.log = l }
}

// WithErrorObserver registers fn to be called with every error that reaches
// error handling, including 404 and 405.
func WithErrorObserver(fn func(error)) Option {
	return func(ch *Chain) { ch.observer = fn }
}

// Compile validates handlers and builds a Chain. Malformed patterns fail
// with an api.Error of kind malformed_route_pattern naming the pattern.
func Compile(handlers []Handler, opts ...Option) (*Chain, error) {
	nodes, err := toNodes(handlers)
	if err != nil {
		return nil, err
	}
	tree, err := router.New(nodes...)
	if err != nil {
		return nil, err
	}

	ch := &Chain{tree: tree, log: logging.New("trellis.handler")}
	for _, opt := range opts {
		opt(ch)
	}
	return ch, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(handlers []Handler, opts ...Option) *Chain {
	ch, err := Compile(handlers, opts...)
	if err != nil {
		panic(err)
	}
	return ch
}

func toNodes(handlers []Handler) ([]router.Node[*unit], error) {
	nodes := make([]router.Node[*unit], 0, len(handlers))
	for _, h := range handlers {
		u := &unit{kind: h.kind, action: h.action, matches: h.matches, onError: h.onError}
		switch h.kind {
		case kindGroup:
			children, err := toNodes(h.children)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, router.Node[*unit]{Pattern: h.pattern, Group: true, Value: u, Children: children})
		case kindAction:
			if h.action == nil {
				return nil, fmt.Errorf("handler: action for %q is nil", h.pattern)
			}
			nodes = append(nodes, router.Node[*unit]{Pattern: h.pattern, Methods: h.methods, Value: u, Terminal: true})
		case kindBefore, kindAfter:
			if h.action == nil {
				return nil, fmt.Errorf("handler: %s hook for %q is nil", h.kind, h.pattern)
			}
			pattern := h.pattern
			if pattern == "" {
				pattern = "*"
				u.scoped = true
			}
			nodes = append(nodes, router.Node[*unit]{Pattern: pattern, Methods: h.methods, Value: u})
		case kindCatch:
			if h.onError == nil {
				return nil, errors.New("handler: error handler is nil")
			}
			nodes = append(nodes, router.Node[*unit]{Pattern: "*", Value: u})
		}
	}
	return nodes, nil
}

// Routes lists the actions of the chain.
func (ch *Chain) Routes() []router.Route {
	return ch.tree.Routes()
}

// Process runs req through the chain and returns the finished call. It never
// panics and never returns an incomplete response: failures without an
// error handler become a default text/plain error response.
func (ch *Chain) Process(ctx context.Context, req api.Request) api.Call {
	c := newContext(ctx, req, ch.log)
	ch.run(c, req)
	return c.Call()
}

func (ch *Chain) run(c *Context, req api.Request) {
	var (
		action                    *match
		befores, afters, catchers []match
	)
	matches := ch.tree.Resolve(req.Method, req.Path)
	for i := range matches {
		m := &matches[i]
		switch m.Value.kind {
		case kindAction:
			action = m
		case kindBefore:
			befores = append(befores, *m)
		case kindAfter:
			afters = append(afters, *m)
		case kindCatch:
			catchers = append(catchers, *m)
		}
	}
	// Outer hooks wrap inner ones; the innermost error handler is nearest.
	slices.SortStableFunc(befores, func(a, b match) int { return cmp.Compare(a.Depth, b.Depth) })
	slices.SortStableFunc(afters, func(a, b match) int { return cmp.Compare(b.Depth, a.Depth) })
	slices.SortStableFunc(catchers, func(a, b match) int { return cmp.Compare(b.Depth, a.Depth) })

	if action == nil {
		ch.fail(c, catchers, ch.unmatched(req))
		return
	}

	c.pattern = action.Pattern
	_ = c.SetRequest(req.WithPathParameters(action.Params))
	if ch.log.IsDebugEnabled() {
		ch.log.Debugf("%s %s matched %s (%d before, %d after)", req.Method, req.Path, action.Pattern, len(befores), len(afters))
	}

	ch.enter(c, StateRunningBefore)
	for _, m := range befores {
		if err := invoke(c, m); err != nil {
			if errors.Is(err, ErrHalt) {
				ch.enter(c, StateDone)
				return
			}
			ch.fail(c, catchers, attribute(patternOf(m), err))
			return
		}
	}

	ch.enter(c, StateRunningAction)
	if err := invoke(c, *action); err != nil && !errors.Is(err, ErrHalt) {
		ch.fail(c, catchers, attribute(action.Pattern, err))
		return
	}

	ch.enter(c, StateRunningAfter)
	for _, m := range afters {
		if err := invoke(c, m); err != nil {
			if errors.Is(err, ErrHalt) {
				break
			}
			ch.fail(c, catchers, attribute(patternOf(m), err))
			return
		}
	}
	ch.enter(c, StateDone)
}

func (ch *Chain) unmatched(req api.Request) error {
	if allowed := ch.tree.AllowedMethods(req.Path); len(allowed) > 0 {
		return api.NewMethodNotAllowedError(req.Method, req.Path, allowed)
	}
	return api.NewRouteNotFoundError(req.Method, req.Path)
}

// fail moves c into HANDLING_ERROR and lets the nearest matching error
// handler render err. Without one, or if it fails too, the response is
// replaced by the default error response.
func (ch *Chain) fail(c *Context, catchers []match, err error) {
	ch.enter(c, StateHandlingError)
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()

	if ch.observer != nil {
		ch.observer(err)
	}

	for _, m := range catchers {
		if !m.Value.matches(err) {
			continue
		}
		herr := handleError(c, m, err)
		if herr == nil || errors.Is(herr, ErrHalt) {
			ch.enter(c, StateDone)
			return
		}
		ch.log.ErrorErr(herr, "error handler at %s failed while handling: %v", patternOf(m), err)
		break
	}

	resp := transport.ErrorResponse(err)
	if resp.Status.IsServerError() {
		ch.log.ErrorErr(err, "%s %s failed", c.Request().Method, c.Request().Path)
	}
	_ = c.SetResponse(resp)
	ch.enter(c, StateDone)
}

func (ch *Chain) enter(c *Context, to State) {
	from := c.State()
	if err := c.transition(to); err != nil {
		panic(err)
	}
	if ch.log.IsTraceEnabled() {
		req := c.Request()
		ch.log.Tracef("%s %s: %s -> %s", req.Method, req.Path, from, to)
	}
}

// patternOf names the pattern a handler was registered under. Scoped hooks
// and error handlers report their group's pattern.
func patternOf(m match) string {
	if !m.Value.scoped {
		return m.Pattern
	}
	if p := strings.TrimSuffix(m.Pattern, "/*"); p != "" {
		return p
	}
	return "/"
}

// attribute wraps failures that are not already categorized as handler
// failures of pattern. Categorized errors keep their kind so their status
// survives.
func attribute(pattern string, err error) error {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return err
	}
	return api.NewHandlerFailure(pattern, err)
}

func invoke(c *Context, m match) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	return m.Value.action(c)
}

func handleError(c *Context, m match, cause error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	return m.Value.onError(c, cause)
}

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w\n%s", err, debug.Stack())
	}
	return fmt.Errorf("panic: %v\n%s", r, debug.Stack())
}
