package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/rhuss/trellis/pkg/api"
	"github.com/rhuss/trellis/pkg/logging"
	"github.com/rhuss/trellis/pkg/observability"
	"github.com/rhuss/trellis/pkg/transport"
)

var log = logging.New("trellis.transport.http")

// Adapter serves a transport.Processor over HTTP. It converts each
// net/http request into an api.Request, runs it through the processor and
// writes the resulting call back, streaming event bodies as they are produced.
type Adapter struct {
	processor transport.Processor
	inflight  *transport.InFlightRegistry
	config    Config
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	Addr            string
	MaxBodySize     int64
	ShutdownTimeout int // seconds
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		MaxBodySize:     10 << 20, // 10 MB
		ShutdownTimeout: 30,
	}
}

// NewAdapter creates an HTTP adapter for the given processor.
// Middleware is applied to the processor in the given order.
func NewAdapter(processor transport.Processor, cfg Config, middlewares ...transport.Middleware) *Adapter {
	if len(middlewares) > 0 {
		processor = transport.Chain(middlewares...)(processor)
	}
	return &Adapter{
		processor: processor,
		inflight:  transport.NewInFlightRegistry(),
		config:    cfg,
	}
}

// Handler returns the http.Handler for this adapter. Use this to integrate
// with an http.Server or test with httptest. The returned handler includes
// HTTP-level middleware for request ID propagation.
func (a *Adapter) Handler() http.Handler {
	return httpRequestIDMiddleware(http.HandlerFunc(a.serve))
}

// InFlight returns the registry of open event streams.
func (a *Adapter) InFlight() *transport.InFlightRegistry {
	return a.inflight
}

// httpRequestIDMiddleware is HTTP-level middleware that propagates the
// X-Request-ID header. If present in the request, it is stored in the
// context, which makes the transport-level RequestID middleware reuse it,
// and it is set on the response before the first write.
func httpRequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get(transport.RequestIDHeader); id != "" {
			ctx := transport.ContextWithRequestID(r.Context(), id)
			r = r.WithContext(ctx)
		}
		rw := &requestIDResponseWriter{ResponseWriter: w, r: r}
		next.ServeHTTP(rw, r)
	})
}

// requestIDResponseWriter wraps http.ResponseWriter to inject the
// X-Request-ID header before the first write.
type requestIDResponseWriter struct {
	http.ResponseWriter
	r           *http.Request
	headersSent bool
}

func (w *requestIDResponseWriter) WriteHeader(statusCode int) {
	w.ensureRequestIDHeader()
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *requestIDResponseWriter) Write(b []byte) (int, error) {
	w.ensureRequestIDHeader()
	return w.ResponseWriter.Write(b)
}

func (w *requestIDResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap returns the underlying ResponseWriter for http.NewResponseController.
func (w *requestIDResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *requestIDResponseWriter) ensureRequestIDHeader() {
	if w.headersSent {
		return
	}
	w.headersSent = true
	if id := transport.RequestIDFromContext(w.r.Context()); id != "" {
		w.ResponseWriter.Header().Set(transport.RequestIDHeader, id)
	}
}

// serve handles one exchange.
func (a *Adapter) serve(w http.ResponseWriter, r *http.Request) {
	rw := newResponseWriter(w)

	req, err := RequestFromHTTP(r, a.config.MaxBodySize)
	if err != nil {
		log.Debugf("rejecting %s %s: %v", r.Method, r.URL.Path, err)
		_ = rw.WriteResponse(r.Context(), conversionErrorResponse(err))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	call := a.processor.Process(ctx, req)

	stream := call.Response.IsStream()
	if stream {
		// Without the RequestID middleware streams share the empty ID and
		// are still reachable through CancelAll.
		defer a.inflight.Register(call.Response.Headers.Get(transport.RequestIDHeader), cancel)()

		observability.StreamingConnections.Inc()
		defer observability.StreamingConnections.Dec()
	}

	err = transport.Dispatch(ctx, call, rw)
	if stream {
		observability.ObserveStreamEnd(err)
	}
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		log.Debugf("stream for %s %s cancelled", req.Method, req.Path)
	case errors.Is(err, api.ErrStreamProduction):
		log.WarnErr(err, "event stream for %s %s failed", req.Method, req.Path)
	default:
		log.WarnErr(err, "writing response for %s %s", req.Method, req.Path)
	}

	if !rw.started() {
		_ = rw.WriteResponse(ctx, transport.ErrorResponse(err))
	}
}

// conversionError is a request that could not be turned into an api.Request.
type conversionError struct {
	status api.Status
	msg    string
}

func (e *conversionError) Error() string { return e.msg }

func conversionErrorResponse(err error) api.Response {
	status := api.StatusBadRequest
	var ce *conversionError
	if errors.As(err, &ce) {
		status = ce.status
	}
	return api.NewResponse(status).
		WithContentType(api.NewContentType(api.TextPlain, "utf-8")).
		WithBody(api.Text(status.String() + "\n" + err.Error() + "\n"))
}

// RequestFromHTTP converts r into an api.Request. The body is read up to
// maxBody bytes (unlimited when maxBody <= 0). Url-encoded form fields and
// non-file multipart fields become form parameters; every multipart entry
// is also kept as a part.
func RequestFromHTTP(r *http.Request, maxBody int64) (api.Request, error) {
	method, err := api.ParseMethod(r.Method)
	if err != nil {
		return api.Request{}, &conversionError{status: api.StatusOf(http.StatusNotImplemented), msg: err.Error()}
	}

	req := api.NewRequest(method, r.URL.Path)
	if req.Path == "" {
		req.Path = "/"
	}

	req.Protocol = api.ProtocolHTTP
	if r.TLS != nil {
		req.Protocol = api.ProtocolHTTPS
		req.CertificateChain = slices.Clone(r.TLS.PeerCertificates)
	}
	req.Host, req.Port = splitHost(r.Host, req.Protocol)

	req.QueryParameters = api.NewQueryParameters(parseURLEncoded(r.URL.RawQuery)...)

	headers := api.NewHeaders()
	for _, name := range slices.Sorted(maps.Keys(r.Header)) {
		headers = headers.With(name, r.Header[name]...)
	}
	req.Headers = headers

	for _, c := range r.Cookies() {
		req.Cookies = append(req.Cookies, api.CookieFromHTTP(c))
	}

	if v := r.Header.Get("Content-Type"); v != "" {
		if ct, err := api.ParseContentType(v); err == nil {
			req.ContentType = &ct
		}
	}
	if v := r.Header.Get("Accept"); v != "" {
		req.Accept = api.ParseAccept(v)
	}

	if r.Body != nil && r.Body != http.NoBody {
		body := io.Reader(r.Body)
		if maxBody > 0 {
			body = http.MaxBytesReader(nil, r.Body, maxBody)
		}
		data, err := io.ReadAll(body)
		if err != nil {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				return api.Request{}, &conversionError{
					status: api.StatusOf(http.StatusRequestEntityTooLarge),
					msg:    fmt.Sprintf("request body too large (max %d bytes)", maxBody),
				}
			}
			return api.Request{}, &conversionError{status: api.StatusBadRequest, msg: "reading body: " + err.Error()}
		}
		req.Body = data
	}

	if req.ContentType != nil && len(req.Body) > 0 {
		switch {
		case req.ContentType.Is(api.ApplicationFormURLEncoded):
			req.FormParameters = api.NewFormParameters(parseURLEncoded(string(req.Body))...)
		case req.ContentType.Is(api.MultipartFormData):
			parts, form, err := parseMultipart(req.Body, req.ContentType.Boundary)
			if err != nil {
				return api.Request{}, &conversionError{status: api.StatusBadRequest, msg: "invalid multipart body: " + err.Error()}
			}
			req.Parts = parts
			req.FormParameters = form
		}
	}

	return req, nil
}

// splitHost separates host and port, defaulting the port from the protocol.
func splitHost(hostport string, proto api.Protocol) (string, int) {
	defaultPort := 80
	if proto == api.ProtocolHTTPS {
		defaultPort = 443
	}
	if hostport == "" {
		return "localhost", defaultPort
	}
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return strings.Trim(hostport, "[]"), defaultPort
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, defaultPort
	}
	return host, port
}

// parseURLEncoded decodes key=value pairs keeping their order. Pairs that
// fail to unescape are skipped.
func parseURLEncoded(raw string) []api.Field {
	var fields []api.Field
	index := map[string]int{}
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(k)
		if err != nil {
			continue
		}
		value, err := url.QueryUnescape(v)
		if err != nil {
			continue
		}
		if i, ok := index[key]; ok {
			fields[i].Values = append(fields[i].Values, value)
			continue
		}
		index[key] = len(fields)
		fields = append(fields, api.F(key, value))
	}
	return fields
}

func parseMultipart(body []byte, boundary string) ([]api.Part, api.Multimap, error) {
	form := api.NewFormParameters()
	if boundary == "" {
		return nil, form, errors.New("missing boundary")
	}

	mr := multipart.NewReader(bytes.NewReader(body), boundary)
	var parts []api.Part
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, form, err
		}
		data, err := io.ReadAll(p)
		p.Close()
		if err != nil {
			return nil, form, err
		}

		part := api.Part{
			Name:     p.FormName(),
			Body:     data,
			Filename: p.FileName(),
		}
		headers := api.NewHeaders()
		for _, name := range slices.Sorted(maps.Keys(p.Header)) {
			headers = headers.With(name, p.Header[name]...)
		}
		part.Headers = headers
		if v := p.Header.Get("Content-Type"); v != "" {
			if ct, err := api.ParseContentType(v); err == nil {
				part.ContentType = &ct
			}
		}
		parts = append(parts, part)

		if part.Filename == "" && part.Name != "" {
			form = form.With(part.Name, string(data))
		}
	}
	return parts, form, nil
}
