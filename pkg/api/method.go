package api

import (
	"fmt"
	"strings"
)

// Method is an HTTP request method.
type Method string

const (
	MethodGet     Method = "GET"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodDelete  Method = "DELETE"
	MethodPatch   Method = "PATCH"
	MethodHead    Method = "HEAD"
	MethodOptions Method = "OPTIONS"
	MethodTrace   Method = "TRACE"
)

// Methods lists every supported method in declaration order.
var Methods = []Method{
	MethodGet,
	MethodPost,
	MethodPut,
	MethodDelete,
	MethodPatch,
	MethodHead,
	MethodOptions,
	MethodTrace,
}

// ParseMethod converts a method token into a Method. Matching is case-insensitive.
func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToUpper(s))
	for _, known := range Methods {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("unsupported HTTP method %q", s)
}

// Protocol is the scheme a request arrived on.
type Protocol string

const (
	ProtocolHTTP  Protocol = "HTTP"
	ProtocolHTTPS Protocol = "HTTPS"
)

// ProtocolFromScheme maps a URL scheme ("http", "https") to a Protocol.
// Unknown schemes map to ProtocolHTTP.
func ProtocolFromScheme(scheme string) Protocol {
	if strings.EqualFold(scheme, "https") {
		return ProtocolHTTPS
	}
	return ProtocolHTTP
}

// Scheme returns the lower-case URL scheme for the protocol.
func (p Protocol) Scheme() string {
	return strings.ToLower(string(p))
}
