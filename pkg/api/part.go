package api

import "bytes"

// Part is one entry of a multipart request body.
type Part struct {
	Name        string
	Body        []byte
	Headers     Headers
	ContentType *ContentType
	Filename    string
}

// NewPart returns a part with a name and a text body.
func NewPart(name, body string) Part {
	return Part{Name: name, Body: []byte(body)}
}

// Equal reports whether two parts are structurally equal.
func (p Part) Equal(o Part) bool {
	return p.Name == o.Name &&
		bytes.Equal(p.Body, o.Body) &&
		p.Headers.Equal(o.Headers) &&
		contentTypeEqual(p.ContentType, o.ContentType) &&
		p.Filename == o.Filename
}

func partsEqual(a, b []Part) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func contentTypeEqual(a, b *ContentType) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
