package api

import (
	"encoding/binary"
	"slices"

	"github.com/cespare/xxhash/v2"
)

// Call pairs the request of one exchange with the response being built for
// it. Two calls are equal when every field of both members is equal.
type Call struct {
	Request  Request
	Response Response
}

// NewCall returns a call for req with an empty 200 response.
func NewCall(req Request) Call {
	return Call{Request: req, Response: NewResponse(StatusOK)}
}

// Equal reports whether v is a Call (or *Call) structurally equal to c.
func (c Call) Equal(v any) bool {
	switch o := v.(type) {
	case Call:
		return c.Request.Equal(o.Request) && c.Response.Equal(o.Response)
	case *Call:
		return o != nil && c.Equal(*o)
	default:
		return false
	}
}

// Hash returns a hash consistent with Equal: equal calls hash equally.
func (c Call) Hash() uint64 {
	h := hasher{d: xxhash.New()}
	h.request(c.Request)
	h.response(c.Response)
	return h.d.Sum64()
}

type hasher struct {
	d *xxhash.Digest
}

func (h hasher) str(s string) {
	h.d.WriteString(s)
	h.d.Write([]byte{0})
}

func (h hasher) num(n int64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(n))
	h.d.Write(b[:])
}

func (h hasher) bytes(b []byte) {
	h.num(int64(len(b)))
	h.d.Write(b)
}

func (h hasher) bool(b bool) {
	if b {
		h.d.Write([]byte{1})
		return
	}
	h.d.Write([]byte{0})
}

func (h hasher) multimap(m Multimap) {
	h.bool(m.exact)
	h.num(int64(len(m.fields)))
	for _, f := range m.fields {
		name := f.Name
		if !m.exact {
			name = foldName(name)
		}
		h.str(name)
		h.num(int64(len(f.Values)))
		for _, v := range f.Values {
			h.str(v)
		}
	}
}

func (h hasher) contentType(ct *ContentType) {
	if ct == nil {
		h.bool(false)
		return
	}
	h.bool(true)
	h.str(ct.MediaType)
	h.str(ct.Charset)
	h.str(ct.Boundary)
}

func (h hasher) cookies(cs []Cookie) {
	h.num(int64(len(cs)))
	for _, c := range cs {
		h.str(c.Name)
		h.str(c.Value)
		h.str(c.Path)
		h.str(c.Domain)
		h.num(int64(c.MaxAge))
		if c.Expires.IsZero() {
			h.num(0)
		} else {
			h.num(c.Expires.UnixNano())
		}
		h.bool(c.Secure)
		h.bool(c.HTTPOnly)
		h.str(string(c.SameSite))
	}
}

func (h hasher) request(r Request) {
	h.str(string(r.Method))
	h.str(string(r.Protocol))
	h.str(r.Host)
	h.num(int64(r.Port))
	h.str(r.Path)

	keys := make([]string, 0, len(r.PathParameters))
	for k := range r.PathParameters {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	h.num(int64(len(keys)))
	for _, k := range keys {
		h.str(k)
		h.str(r.PathParameters[k])
	}

	h.multimap(r.QueryParameters)
	h.multimap(r.Headers)
	h.bytes(r.Body)
	h.num(int64(len(r.Parts)))
	for _, p := range r.Parts {
		h.str(p.Name)
		h.bytes(p.Body)
		h.multimap(p.Headers)
		h.contentType(p.ContentType)
		h.str(p.Filename)
	}
	h.multimap(r.FormParameters)
	h.cookies(r.Cookies)
	h.contentType(r.ContentType)
	h.num(int64(len(r.Accept)))
	for i := range r.Accept {
		h.contentType(&r.Accept[i])
	}
	h.num(int64(len(r.CertificateChain)))
	for _, cert := range r.CertificateChain {
		if cert != nil {
			h.bytes(cert.Raw)
		}
	}
}

func (h hasher) response(r Response) {
	if _, ok := r.Body.(*EventStream); ok {
		h.str("stream")
	} else {
		h.str("payload")
		h.bytes(BodyBytes(r.Body))
	}
	h.multimap(r.Headers)
	h.contentType(r.ContentType)
	h.cookies(r.Cookies)
	h.num(int64(r.Status.Code))
	h.str(r.Status.Reason)
}
