package api

import (
	"bytes"
	"crypto/x509"
	"fmt"
	"maps"
	"net"
	"net/url"
	"slices"
	"strconv"
)

// Request is an inbound HTTP request. Values are treated as immutable:
// the With methods return modified copies.
type Request struct {
	Method           Method
	Protocol         Protocol
	Host             string
	Port             int
	Path             string
	PathParameters   map[string]string
	QueryParameters  Multimap
	Headers          Headers
	Body             []byte
	Parts            []Part
	FormParameters   Multimap
	Cookies          []Cookie
	ContentType      *ContentType
	Accept           []ContentType
	CertificateChain []*x509.Certificate
}

// NewRequest returns a request for method and path on http://localhost:80.
func NewRequest(method Method, path string) Request {
	return Request{
		Method:          method,
		Protocol:        ProtocolHTTP,
		Host:            "localhost",
		Port:            80,
		Path:            path,
		QueryParameters: NewQueryParameters(),
		FormParameters:  NewFormParameters(),
	}
}

// Validate rejects combinations that are cheap to detect. Anything else is
// accepted as given.
func (r Request) Validate() error {
	if r.Port < 0 || r.Port > 65535 {
		return fmt.Errorf("invalid port %d", r.Port)
	}
	return nil
}

// URL renders the request target as an absolute URL.
func (r Request) URL() *url.URL {
	host := r.Host
	if r.Port > 0 && !(r.Protocol == ProtocolHTTP && r.Port == 80) && !(r.Protocol == ProtocolHTTPS && r.Port == 443) {
		host = net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
	}
	u := &url.URL{
		Scheme: r.Protocol.Scheme(),
		Host:   host,
		Path:   r.Path,
	}
	if r.QueryParameters.Len() > 0 {
		q := url.Values{}
		for _, f := range r.QueryParameters.Fields() {
			q[f.Name] = f.Values
		}
		u.RawQuery = q.Encode()
	}
	return u
}

// PathParameter returns the value bound to a path parameter, or "".
func (r Request) PathParameter(name string) string {
	return r.PathParameters[name]
}

// Cookie returns the first cookie named name.
func (r Request) Cookie(name string) (Cookie, bool) {
	for _, c := range r.Cookies {
		if c.Name == name {
			return c, true
		}
	}
	return Cookie{}, false
}

// Authorization returns the Authorization header value.
func (r Request) Authorization() string {
	return r.Headers.Get("Authorization")
}

// WithPath returns a copy with a new path.
func (r Request) WithPath(path string) Request {
	r.Path = path
	return r
}

// WithPathParameters returns a copy bound to the given path parameters.
func (r Request) WithPathParameters(params map[string]string) Request {
	r.PathParameters = maps.Clone(params)
	return r
}

// WithHeader returns a copy with values appended to header name.
func (r Request) WithHeader(name string, values ...string) Request {
	r.Headers = r.Headers.With(name, values...)
	return r
}

// WithHeaders returns a copy with the given headers.
func (r Request) WithHeaders(h Headers) Request {
	r.Headers = h
	return r
}

// WithBody returns a copy with a new body.
func (r Request) WithBody(body []byte) Request {
	r.Body = slices.Clone(body)
	return r
}

// WithContentType returns a copy with a new content type.
func (r Request) WithContentType(ct ContentType) Request {
	r.ContentType = &ct
	return r
}

// WithCookie returns a copy with c appended.
func (r Request) WithCookie(c Cookie) Request {
	r.Cookies = append(slices.Clone(r.Cookies), c)
	return r
}

// WithQuery returns a copy with values appended to query parameter name.
func (r Request) WithQuery(name string, values ...string) Request {
	r.QueryParameters = r.QueryParameters.With(name, values...)
	return r
}

// Equal reports whether every field of both requests compares equal.
func (r Request) Equal(o Request) bool {
	return r.Method == o.Method &&
		r.Protocol == o.Protocol &&
		r.Host == o.Host &&
		r.Port == o.Port &&
		r.Path == o.Path &&
		paramsEqual(r.PathParameters, o.PathParameters) &&
		r.QueryParameters.Equal(o.QueryParameters) &&
		r.Headers.Equal(o.Headers) &&
		bytes.Equal(r.Body, o.Body) &&
		partsEqual(r.Parts, o.Parts) &&
		r.FormParameters.Equal(o.FormParameters) &&
		cookiesEqual(r.Cookies, o.Cookies) &&
		contentTypeEqual(r.ContentType, o.ContentType) &&
		slices.Equal(r.Accept, o.Accept) &&
		certificatesEqual(r.CertificateChain, o.CertificateChain)
}

func paramsEqual(a, b map[string]string) bool {
	return maps.Equal(a, b)
}

func certificatesEqual(a, b []*x509.Certificate) bool {
	return slices.EqualFunc(a, b, func(x, y *x509.Certificate) bool {
		if x == nil || y == nil {
			return x == y
		}
		return x.Equal(y)
	})
}
