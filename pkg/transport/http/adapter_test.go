package http

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhuss/trellis/pkg/api"
	"github.com/rhuss/trellis/pkg/handler"
	"github.com/rhuss/trellis/pkg/sse"
	"github.com/rhuss/trellis/pkg/transport"
)

func newTestAdapter(t *testing.T, cfg Config, handlers ...handler.Handler) (*Adapter, *httptest.Server) {
	t.Helper()
	chain, err := handler.Compile(handlers)
	require.NoError(t, err)

	a := NewAdapter(chain, cfg, transport.Recovery(), transport.RequestID())
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)
	return a, srv
}

// ticker emits an event every few milliseconds until ctx is cancelled.
func ticker() api.EventSource {
	return sse.Func(func(ctx context.Context) (api.ServerEvent, error) {
		select {
		case <-ctx.Done():
			return api.ServerEvent{}, ctx.Err()
		case <-time.After(5 * time.Millisecond):
			return api.ServerEvent{Event: "tick", Data: "."}, nil
		}
	}, nil)
}

func readEvents(t *testing.T, body io.Reader) []api.ServerEvent {
	t.Helper()
	var events []api.ServerEvent
	dec := sse.NewDecoder(body)
	for {
		ev, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			return events
		}
		require.NoError(t, err)
		events = append(events, ev)
	}
}

func TestServerSentEventsEndToEnd(t *testing.T) {
	_, srv := newTestAdapter(t, DefaultConfig(),
		handler.Get("/sse", func(c *handler.Context) error {
			return c.SSE(sse.FromEvents(
				api.ServerEvent{Event: "EventA", Data: "a"},
				api.ServerEvent{Event: "EventB", Data: "b"},
			))
		}),
	)

	resp, err := http.Get(srv.URL + "/sse")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	events := readEvents(t, resp.Body)
	require.Len(t, events, 2)
	assert.Equal(t, "EventA", events[0].Event)
	assert.Equal(t, "a", events[0].Data)
	assert.Equal(t, "EventB", events[1].Event)
	assert.Equal(t, "b", events[1].Data)
}

func TestFixedBodyResponse(t *testing.T) {
	_, srv := newTestAdapter(t, DefaultConfig(),
		handler.Get("/hello/{name}", func(c *handler.Context) error {
			if err := c.Header("X-Greeting", "yes"); err != nil {
				return err
			}
			if err := c.Cookie(api.NewCookie("seen", "1")); err != nil {
				return err
			}
			return c.Ok("hello " + c.PathParam("name"))
		}),
	)

	resp, err := http.Get(srv.URL + "/hello/world")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello world", string(body))
	assert.Equal(t, "yes", resp.Header.Get("X-Greeting"))
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain"))
	require.Len(t, resp.Cookies(), 1)
	assert.Equal(t, "seen", resp.Cookies()[0].Name)
	assert.NotEmpty(t, resp.Header.Get(transport.RequestIDHeader))
}

func TestUnknownPathReturns404(t *testing.T) {
	_, srv := newTestAdapter(t, DefaultConfig(),
		handler.Get("/sse", func(c *handler.Context) error { return c.Ok("") }),
	)

	resp, err := http.Get(srv.URL + "/missing")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.True(t, strings.HasPrefix(string(body), "404 Not Found"))
}

func TestMethodNotAllowedListsAllowedMethods(t *testing.T) {
	_, srv := newTestAdapter(t, DefaultConfig(),
		handler.Get("/items", func(c *handler.Context) error { return c.Ok("list") }),
		handler.Post("/items", func(c *handler.Context) error { return c.Ok("created") }),
	)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/items", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, "GET, POST", resp.Header.Get("Allow"))
}

func TestUnknownMethodReturns501(t *testing.T) {
	_, srv := newTestAdapter(t, DefaultConfig())

	req, err := http.NewRequest("BREW", srv.URL+"/pot", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestOversizedBodyReturns413(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxBodySize = 16
	_, srv := newTestAdapter(t, cfg,
		handler.Post("/upload", func(c *handler.Context) error { return c.Ok("ok") }),
	)

	resp, err := http.Post(srv.URL+"/upload", "text/plain", strings.NewReader(strings.Repeat("x", 64)))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestRequestIDIsEchoed(t *testing.T) {
	_, srv := newTestAdapter(t, DefaultConfig(),
		handler.Get("/", func(c *handler.Context) error { return c.Ok("") }),
	)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/", nil)
	require.NoError(t, err)
	req.Header.Set(transport.RequestIDHeader, "req-abc")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "req-abc", resp.Header.Get(transport.RequestIDHeader))
}

func TestSourceFailureEndsWithErrorFrame(t *testing.T) {
	sent := false
	_, srv := newTestAdapter(t, DefaultConfig(),
		handler.Get("/flaky", func(c *handler.Context) error {
			return c.SSE(sse.Func(func(ctx context.Context) (api.ServerEvent, error) {
				if !sent {
					sent = true
					return api.ServerEvent{Data: "first"}, nil
				}
				return api.ServerEvent{}, errors.New("upstream gone")
			}, nil))
		}),
	)

	resp, err := http.Get(srv.URL + "/flaky")
	require.NoError(t, err)
	defer resp.Body.Close()

	events := readEvents(t, resp.Body)
	require.Len(t, events, 2)
	assert.Equal(t, "first", events[0].Data)
	assert.Equal(t, sse.ErrorEvent(), events[1])
}

func TestStreamingInFlightCancellation(t *testing.T) {
	a, srv := newTestAdapter(t, DefaultConfig(),
		handler.Get("/ticks", func(c *handler.Context) error { return c.SSE(ticker()) }),
	)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/ticks", nil)
	require.NoError(t, err)
	req.Header.Set(transport.RequestIDHeader, "stream-under-test")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	// Reading the first frame proves the stream is live.
	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: tick\n", line)

	require.Eventually(t, func() bool { return a.InFlight().Len() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, a.InFlight().Cancel("stream-under-test"))

	done := make(chan struct{})
	go func() {
		io.Copy(io.Discard, resp.Body)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end after cancellation")
	}
	assert.Eventually(t, func() bool { return a.InFlight().Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestRequestFromHTTP(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "https://example.com:8443/p/q?b=2&a=1&b=3", strings.NewReader("x=1&y=a+b"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.Header.Set("Accept", "text/html;q=0.5, application/json")
	r.Header.Add("X-Multi", "one")
	r.Header.Add("X-Multi", "two")
	r.AddCookie(&http.Cookie{Name: "session", Value: "s1"})

	req, err := RequestFromHTTP(r, 1024)
	require.NoError(t, err)

	assert.Equal(t, api.MethodPost, req.Method)
	assert.Equal(t, api.ProtocolHTTPS, req.Protocol)
	assert.Equal(t, "example.com", req.Host)
	assert.Equal(t, 8443, req.Port)
	assert.Equal(t, "/p/q", req.Path)

	assert.Equal(t, []string{"b", "a"}, req.QueryParameters.Names())
	assert.Equal(t, []string{"2", "3"}, req.QueryParameters.Values("b"))

	assert.Equal(t, []string{"one", "two"}, req.Headers.Values("x-multi"))
	assert.Equal(t, "1", req.FormParameters.Get("x"))
	assert.Equal(t, "a b", req.FormParameters.Get("y"))
	assert.Equal(t, []byte("x=1&y=a+b"), req.Body)

	require.NotNil(t, req.ContentType)
	assert.True(t, req.ContentType.Is(api.ApplicationFormURLEncoded))
	require.Len(t, req.Accept, 2)
	assert.Equal(t, api.ApplicationJSON, req.Accept[0].MediaType)

	c, ok := req.Cookie("session")
	require.True(t, ok)
	assert.Equal(t, "s1", c.Value)
}

func TestRequestFromHTTPDefaultPorts(t *testing.T) {
	tests := []struct {
		target string
		host   string
		port   int
	}{
		{"http://example.com/", "example.com", 80},
		{"https://example.com/", "example.com", 443},
		{"http://127.0.0.1:9999/", "127.0.0.1", 9999},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			req, err := RequestFromHTTP(httptest.NewRequest(http.MethodGet, tt.target, nil), 0)
			require.NoError(t, err)
			assert.Equal(t, tt.host, req.Host)
			assert.Equal(t, tt.port, req.Port)
		})
	}
}

func TestRequestFromHTTPMultipart(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("name", "trellis"))
	fw, err := mw.CreateFormFile("upload", "a.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("file content"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	r := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())

	req, err := RequestFromHTTP(r, 0)
	require.NoError(t, err)

	require.Len(t, req.Parts, 2)
	assert.Equal(t, "name", req.Parts[0].Name)
	assert.Equal(t, "trellis", string(req.Parts[0].Body))
	assert.Equal(t, "upload", req.Parts[1].Name)
	assert.Equal(t, "a.txt", req.Parts[1].Filename)
	assert.Equal(t, "file content", string(req.Parts[1].Body))

	assert.Equal(t, "trellis", req.FormParameters.Get("name"))
	assert.False(t, req.FormParameters.Has("upload"), "file parts are not form parameters")
}

func TestRequestFromHTTPRejectsUnknownMethod(t *testing.T) {
	_, err := RequestFromHTTP(httptest.NewRequest("BREW", "/", nil), 0)
	require.Error(t, err)

	resp := conversionErrorResponse(err)
	assert.Equal(t, http.StatusNotImplemented, resp.Status.Code)
}
