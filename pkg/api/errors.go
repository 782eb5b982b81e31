package api

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the category of an Error.
type ErrorKind string

const (
	KindRouteNotFound         ErrorKind = "route_not_found"
	KindMethodNotAllowed      ErrorKind = "method_not_allowed"
	KindHandlerFailure        ErrorKind = "handler_failure"
	KindMalformedRoutePattern ErrorKind = "malformed_route_pattern"
	KindStreamProduction      ErrorKind = "stream_production_failure"
	KindUnauthorized          ErrorKind = "unauthorized"
	KindTooManyRequests       ErrorKind = "too_many_requests"
)

// Error is a categorized failure raised while building or running a handler
// tree. Pattern, Method and Path attribute the failure to a route.
type Error struct {
	Kind    ErrorKind
	Message string
	Pattern string
	Method  Method
	Path    string
	Allowed []Method
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Pattern != "" {
		fmt.Fprintf(&b, " (pattern: %s)", e.Pattern)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the sentinels below work with
// errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Pattern == "" && t.Path == ""
}

// Sentinels for errors.Is checks against a kind.
var (
	ErrRouteNotFound         = &Error{Kind: KindRouteNotFound}
	ErrMethodNotAllowed      = &Error{Kind: KindMethodNotAllowed}
	ErrHandlerFailure        = &Error{Kind: KindHandlerFailure}
	ErrMalformedRoutePattern = &Error{Kind: KindMalformedRoutePattern}
	ErrStreamProduction      = &Error{Kind: KindStreamProduction}
	ErrUnauthorized          = &Error{Kind: KindUnauthorized}
	ErrTooManyRequests       = &Error{Kind: KindTooManyRequests}
)

// NewRouteNotFoundError reports that no handler matched method and path.
func NewRouteNotFoundError(method Method, path string) *Error {
	return &Error{
		Kind:    KindRouteNotFound,
		Message: fmt.Sprintf("no handler for %s %s", method, path),
		Method:  method,
		Path:    path,
	}
}

// NewMethodNotAllowedError reports that path matched but only for allowed.
func NewMethodNotAllowedError(method Method, path string, allowed []Method) *Error {
	return &Error{
		Kind:    KindMethodNotAllowed,
		Message: fmt.Sprintf("method %s not allowed for %s", method, path),
		Method:  method,
		Path:    path,
		Allowed: allowed,
	}
}

// NewHandlerFailure wraps an unexpected failure raised by a handler.
func NewHandlerFailure(pattern string, err error) *Error {
	return &Error{
		Kind:    KindHandlerFailure,
		Message: "handler failed",
		Pattern: pattern,
		Err:     err,
	}
}

// NewMalformedPatternError reports a route pattern rejected at construction.
func NewMalformedPatternError(pattern, reason string) *Error {
	return &Error{
		Kind:    KindMalformedRoutePattern,
		Message: reason,
		Pattern: pattern,
	}
}

// NewStreamError reports that an event source failed mid-stream.
func NewStreamError(err error) *Error {
	return &Error{
		Kind:    KindStreamProduction,
		Message: "event stream production failed",
		Err:     err,
	}
}

// NewUnauthorizedError reports missing or invalid credentials.
func NewUnauthorizedError(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

// NewTooManyRequestsError reports a rate limit rejection.
func NewTooManyRequestsError(message string) *Error {
	return &Error{Kind: KindTooManyRequests, Message: message}
}
