package handler

import (
	"errors"

	"github.com/rhuss/trellis/pkg/api"
)

// ErrHalt stops the chain. Returned from an action or an after-hook it keeps
// the current response as final; returned from a before-hook it also skips
// the action and the after-hooks.
var ErrHalt = errors.New("handler: halt")

// Action processes the exchange held by c. Returning nil continues with the
// next handler, ErrHalt stops the chain, and any other error is delegated to
// the nearest error handler.
type Action func(c *Context) error

// ErrorHandler renders err into the response held by c. Returning nil or
// ErrHalt accepts the response as final; any other error falls back to the
// default 500 response.
type ErrorHandler func(c *Context, err error) error

type kind int

const (
	kindGroup kind = iota
	kindAction
	kindBefore
	kindAfter
	kindCatch
)

func (k kind) String() string {
	switch k {
	case kindGroup:
		return "group"
	case kindAction:
		return "action"
	case kindBefore:
		return "before"
	case kindAfter:
		return "after"
	default:
		return "catch"
	}
}

// Handler is one node of a handler tree: a path group owning children, a
// leaf action, a before/after hook, or an error handler. Build handlers with
// the functions in this package and compile them with Compile.
type Handler struct {
	kind     kind
	pattern  string
	methods  []api.Method
	action   Action
	matches  func(error) bool
	onError  ErrorHandler
	children []Handler
}

// Path groups children under a path prefix. Groups have no method filter;
// their pattern may contain parameters but no wildcard.
func Path(pattern string, children ...Handler) Handler {
	return Handler{kind: kindGroup, pattern: pattern, children: children}
}

// On registers action for pattern and the given methods. No methods means
// any method.
func On(methods []api.Method, pattern string, action Action) Handler {
	return Handler{kind: kindAction, pattern: pattern, methods: methods, action: action}
}

// Any registers action for pattern regardless of method.
func Any(pattern string, action Action) Handler { return On(nil, pattern, action) }

func Get(pattern string, action Action) Handler    { return on(api.MethodGet, pattern, action) }
func Post(pattern string, action Action) Handler   { return on(api.MethodPost, pattern, action) }
func Put(pattern string, action Action) Handler    { return on(api.MethodPut, pattern, action) }
func Delete(pattern string, action Action) Handler { return on(api.MethodDelete, pattern, action) }
func Patch(pattern string, action Action) Handler  { return on(api.MethodPatch, pattern, action) }
func Head(pattern string, action Action) Handler   { return on(api.MethodHead, pattern, action) }
func Trace(pattern string, action Action) Handler  { return on(api.MethodTrace, pattern, action) }

func Options(pattern string, action Action) Handler {
	return on(api.MethodOptions, pattern, action)
}

func on(m api.Method, pattern string, action Action) Handler {
	return On([]api.Method{m}, pattern, action)
}

// Before registers a hook run ahead of the matched action. An empty pattern
// covers every path of the enclosing group.
func Before(pattern string, action Action) Handler {
	return Handler{kind: kindBefore, pattern: pattern, action: action}
}

// BeforeOn is Before restricted to methods.
func BeforeOn(methods []api.Method, pattern string, action Action) Handler {
	return Handler{kind: kindBefore, pattern: pattern, methods: methods, action: action}
}

// After registers a hook run once the matched action has finished, even if
// it halted. An empty pattern covers every path of the enclosing group.
func After(pattern string, action Action) Handler {
	return Handler{kind: kindAfter, pattern: pattern, action: action}
}

// AfterOn is After restricted to methods.
func AfterOn(methods []api.Method, pattern string, action Action) Handler {
	return Handler{kind: kindAfter, pattern: pattern, methods: methods, action: action}
}

// Catch registers an error handler for errors matching target with
// errors.Is, or for any error when target is nil. It applies to every path of
// the enclosing group.
func Catch(target error, fn ErrorHandler) Handler {
	matches := func(error) bool { return true }
	if target != nil {
		matches = func(err error) bool { return errors.Is(err, target) }
	}
	return Handler{kind: kindCatch, matches: matches, onError: fn}
}

// CatchAs registers an error handler for errors whose chain contains an E.
func CatchAs[E error](fn func(c *Context, err E) error) Handler {
	return Handler{
		kind: kindCatch,
		matches: func(err error) bool {
			var target E
			return errors.As(err, &target)
		},
		onError: func(c *Context, err error) error {
			var target E
			errors.As(err, &target)
			return fn(c, target)
		},
	}
}
