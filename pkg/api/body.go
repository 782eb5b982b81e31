package api

import "bytes"

// Body is the payload of a response: either a fixed Payload or an
// EventStream. A nil Body is an empty response.
type Body interface {
	isBody()
}

// Payload is a fixed body written once.
type Payload []byte

func (Payload) isBody() {}

// EventStream is a body produced progressively from an EventSource.
type EventStream struct {
	Source EventSource
}

func (*EventStream) isBody() {}

// Text returns a fixed text body.
func Text(s string) Body { return Payload(s) }

// Bytes returns a fixed binary body.
func Bytes(b []byte) Body { return Payload(b) }

// Stream returns an event stream body reading from src.
func Stream(src EventSource) Body { return &EventStream{Source: src} }

// BodyBytes returns the bytes of a fixed body, or nil for empty and
// streaming bodies.
func BodyBytes(b Body) []byte {
	if p, ok := b.(Payload); ok {
		return p
	}
	return nil
}

// BodyString is BodyBytes as a string.
func BodyString(b Body) string {
	return string(BodyBytes(b))
}

// bodiesEqual compares fixed bodies by content and stream bodies by
// identity; an empty Payload equals a nil Body.
func bodiesEqual(a, b Body) bool {
	as, aStream := a.(*EventStream)
	bs, bStream := b.(*EventStream)
	if aStream || bStream {
		if !aStream || !bStream {
			return false
		}
		return as == bs
	}
	return bytes.Equal(BodyBytes(a), BodyBytes(b))
}
