package api

import "slices"

// Response is an outbound HTTP response. Values are treated as immutable:
// the With methods return modified copies.
type Response struct {
	Body        Body
	Headers     Headers
	ContentType *ContentType
	Cookies     []Cookie
	Status      Status
}

// NewResponse returns an empty response with the given status.
func NewResponse(status Status) Response {
	return Response{Status: status}
}

// WithStatus returns a copy with a new status.
func (r Response) WithStatus(s Status) Response {
	r.Status = s
	return r
}

// WithBody returns a copy with a new body.
func (r Response) WithBody(b Body) Response {
	r.Body = b
	return r
}

// WithHeader returns a copy with values appended to header name.
func (r Response) WithHeader(name string, values ...string) Response {
	r.Headers = r.Headers.With(name, values...)
	return r
}

// WithHeaders returns a copy with the given headers.
func (r Response) WithHeaders(h Headers) Response {
	r.Headers = h
	return r
}

// WithContentType returns a copy with a new content type.
func (r Response) WithContentType(ct ContentType) Response {
	r.ContentType = &ct
	return r
}

// WithCookie returns a copy with c appended.
func (r Response) WithCookie(c Cookie) Response {
	r.Cookies = append(slices.Clone(r.Cookies), c)
	return r
}

// IsStream reports whether the body is an event stream.
func (r Response) IsStream() bool {
	_, ok := r.Body.(*EventStream)
	return ok
}

// Equal reports whether every field of both responses compares equal.
func (r Response) Equal(o Response) bool {
	return bodiesEqual(r.Body, o.Body) &&
		r.Headers.Equal(o.Headers) &&
		contentTypeEqual(r.ContentType, o.ContentType) &&
		cookiesEqual(r.Cookies, o.Cookies) &&
		r.Status == o.Status
}
