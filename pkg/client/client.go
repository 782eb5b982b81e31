// Package client sends api.Request values over HTTP and converts the
// answers back into api.Response values. Event-stream answers are exposed
// as lazy event sources that read the connection as events arrive.
//
// The transport stack is, from the outside in: optional retries
// (go-retryablehttp), an optional circuit breaker (gobreaker), a logging
// round tripper that also feeds the client metrics, and otelhttp
// instrumentation propagating the caller's trace context.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/rhuss/trellis/pkg/api"
	"github.com/rhuss/trellis/pkg/logging"
	"github.com/rhuss/trellis/pkg/sse"
)

type circuitOptions struct {
	maxRequests uint32
	interval    time.Duration
	timeout     time.Duration
	tripCount   uint32
	isFailure   func(code int) bool
}

type retryOptions struct {
	maxRetries int
	waitMin    time.Duration
	waitMax    time.Duration
}

type options struct {
	name    string
	timeout time.Duration
	rt      http.RoundTripper

	co *circuitOptions
	ro *retryOptions
}

// Option configures a Client.
type Option func(*options)

// Name names the client in logs and metrics.
func Name(s string) Option {
	return func(o *options) { o.name = s }
}

// Timeout bounds each attempt, including reading a fixed body. Leave it
// zero for clients that consume long-lived event streams.
func Timeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// RoundTripper replaces the base transport.
func RoundTripper(rt http.RoundTripper) Option {
	return func(o *options) { o.rt = rt }
}

// Retry retries failed attempts up to maxRetries times with exponential
// backoff between waitMin and waitMax.
func Retry(maxRetries int, waitMin, waitMax time.Duration) Option {
	return func(o *options) {
		o.ro = &retryOptions{maxRetries: maxRetries, waitMin: waitMin, waitMax: waitMax}
	}
}

// CircuitBreaker opens the circuit after tripAfter consecutive failures
// and probes again after openTimeout. Transport errors and 5xx answers
// count as failures.
func CircuitBreaker(tripAfter uint32, openTimeout time.Duration) Option {
	return func(o *options) {
		o.co = &circuitOptions{
			maxRequests: 1,
			timeout:     openTimeout,
			tripCount:   tripAfter,
			isFailure:   func(code int) bool { return code >= 500 },
		}
	}
}

// Client is an HTTP client speaking api values.
type Client struct {
	base *url.URL
	http *http.Client
	log  *logging.Logger
}

// New creates a client. When baseURL is non-empty it overrides scheme, host
// and port of every request sent; otherwise they are taken from the request.
func New(baseURL string, opts ...Option) (*Client, error) {
	o := &options{
		name: "trellis",
		rt:   http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(o)
	}

	c := &Client{log: logging.New("trellis.client." + o.name)}
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("parsing base URL: %w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("base URL %q must be absolute", baseURL)
		}
		c.base = u
	}

	// Outgoing requests get a client span and carry the trace context.
	var rt http.RoundTripper = otelhttp.NewTransport(o.rt)
	rt = &logRoundTripper{base: rt, log: c.log}
	if o.co != nil {
		rt = newCircuitRoundTripper(rt, o.name, *o.co, c.log)
	}

	hc := &http.Client{Timeout: o.timeout, Transport: rt}
	if o.ro != nil {
		rc := &retryablehttp.Client{
			HTTPClient:   hc,
			RetryWaitMin: o.ro.waitMin,
			RetryWaitMax: o.ro.waitMax,
			RetryMax:     o.ro.maxRetries,
			CheckRetry:   retryablehttp.DefaultRetryPolicy,
			Backoff:      retryablehttp.DefaultBackoff,
			ErrorHandler: retryablehttp.PassthroughErrorHandler,
			RequestLogHook: func(_ retryablehttp.Logger, req *http.Request, attempt int) {
				if attempt > 0 {
					c.log.Debugf("retrying %s %s (attempt %d)", req.Method, req.URL, attempt)
				}
			},
		}
		hc = rc.StandardClient()
	}
	c.http = hc

	return c, nil
}

// NewRequest builds a request for an absolute URL, for use with a client
// created without a base URL.
func NewRequest(method api.Method, rawURL string) (api.Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return api.Request{}, err
	}
	if u.Scheme == "" || u.Host == "" {
		return api.Request{}, fmt.Errorf("URL %q must be absolute", rawURL)
	}

	req := api.NewRequest(method, u.Path)
	if req.Path == "" {
		req.Path = "/"
	}
	req.Protocol = api.ProtocolFromScheme(u.Scheme)
	req.Host = u.Hostname()
	req.Port = 80
	if req.Protocol == api.ProtocolHTTPS {
		req.Port = 443
	}
	if p := u.Port(); p != "" {
		if req.Port, err = strconv.Atoi(p); err != nil {
			return api.Request{}, fmt.Errorf("invalid port in %q: %w", rawURL, err)
		}
	}

	query := u.Query()
	for _, name := range slices.Sorted(maps.Keys(query)) {
		req = req.WithQuery(name, query[name]...)
	}
	return req, nil
}

// Get sends a GET request for path.
func (c *Client) Get(ctx context.Context, path string) (api.Response, error) {
	return c.Send(ctx, api.NewRequest(api.MethodGet, path))
}

// Post sends a POST request for path with the given body.
func (c *Client) Post(ctx context.Context, path string, ct api.ContentType, body []byte) (api.Response, error) {
	return c.Send(ctx, api.NewRequest(api.MethodPost, path).WithContentType(ct).WithBody(body))
}

// Send sends req and converts the answer. A text/event-stream answer has
// an api.EventStream body reading from the open connection; the caller
// must close its source. Any other body is read fully.
func (c *Client) Send(ctx context.Context, req api.Request) (api.Response, error) {
	if err := req.Validate(); err != nil {
		return api.Response{}, err
	}

	hreq, err := c.toHTTP(ctx, req)
	if err != nil {
		return api.Response{}, err
	}

	hresp, err := c.http.Do(hreq)
	if err != nil {
		return api.Response{}, fmt.Errorf("%s %s: %w", req.Method, hreq.URL, err)
	}
	return fromHTTP(hresp)
}

func (c *Client) toHTTP(ctx context.Context, req api.Request) (*http.Request, error) {
	u := req.URL()
	if c.base != nil {
		u.Scheme = c.base.Scheme
		u.Host = c.base.Host
		u.Path = c.base.JoinPath(req.Path).Path
	}

	body, contentType, err := encodeBody(req)
	if err != nil {
		return nil, err
	}

	hreq, err := http.NewRequestWithContext(ctx, string(req.Method), u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	for _, f := range req.Headers.Fields() {
		for _, v := range f.Values {
			hreq.Header.Add(f.Name, v)
		}
	}
	if contentType != "" {
		hreq.Header.Set("Content-Type", contentType)
	}
	if len(req.Accept) > 0 && hreq.Header.Get("Accept") == "" {
		for _, ct := range req.Accept {
			hreq.Header.Add("Accept", ct.String())
		}
	}
	for _, ck := range req.Cookies {
		hreq.AddCookie(ck.HTTP())
	}
	return hreq, nil
}

// encodeBody picks the wire body: the raw body if set, otherwise parts as
// multipart/form-data, otherwise form parameters url-encoded.
func encodeBody(req api.Request) ([]byte, string, error) {
	var contentType string
	if req.ContentType != nil {
		contentType = req.ContentType.String()
	}

	switch {
	case len(req.Body) > 0:
		return req.Body, contentType, nil

	case len(req.Parts) > 0:
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		for _, p := range req.Parts {
			h := textproto.MIMEHeader{}
			for _, f := range p.Headers.Fields() {
				h[textproto.CanonicalMIMEHeaderKey(f.Name)] = f.Values
			}
			disposition := fmt.Sprintf(`form-data; name=%q`, p.Name)
			if p.Filename != "" {
				disposition += fmt.Sprintf(`; filename=%q`, p.Filename)
			}
			h.Set("Content-Disposition", disposition)
			if p.ContentType != nil {
				h.Set("Content-Type", p.ContentType.String())
			}
			w, err := mw.CreatePart(h)
			if err != nil {
				return nil, "", err
			}
			if _, err := w.Write(p.Body); err != nil {
				return nil, "", err
			}
		}
		if err := mw.Close(); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), mw.FormDataContentType(), nil

	case req.FormParameters.Len() > 0:
		form := url.Values{}
		for _, f := range req.FormParameters.Fields() {
			form[f.Name] = f.Values
		}
		return []byte(form.Encode()), api.ApplicationFormURLEncoded, nil
	}
	return nil, contentType, nil
}

func fromHTTP(hresp *http.Response) (api.Response, error) {
	resp := api.NewResponse(api.StatusOf(hresp.StatusCode))

	headers := api.NewHeaders()
	for _, name := range slices.Sorted(maps.Keys(hresp.Header)) {
		headers = headers.With(name, hresp.Header[name]...)
	}
	resp = resp.WithHeaders(headers)

	for _, hc := range hresp.Cookies() {
		resp = resp.WithCookie(api.CookieFromHTTP(hc))
	}

	if v := hresp.Header.Get("Content-Type"); v != "" {
		if ct, err := api.ParseContentType(v); err == nil {
			resp = resp.WithContentType(ct)
			if ct.Is(api.TextEventStream) {
				return resp.WithBody(api.Stream(sse.NewSource(hresp.Body))), nil
			}
		}
	}

	defer hresp.Body.Close()
	data, err := io.ReadAll(hresp.Body)
	if err != nil {
		return api.Response{}, fmt.Errorf("reading response body: %w", err)
	}
	return resp.WithBody(api.Bytes(data)), nil
}
