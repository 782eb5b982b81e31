package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/rhuss/trellis/pkg/api"
)

// TestMetricsRegistered verifies that all metrics are registered in the
// default registry without panicking.
func TestMetricsRegistered(t *testing.T) {
	expected := map[string]bool{
		"trellis_requests_total":               false,
		"trellis_request_duration_seconds":     false,
		"trellis_response_bytes_total":         false,
		"trellis_streaming_connections_active": false,
		"trellis_stream_events_total":          false,
		"trellis_streams_total":                false,
		"trellis_handler_errors_total":         false,
		"trellis_ratelimit_rejected_total":     false,
		"trellis_client_requests_total":        false,
		"trellis_client_circuit_breaker_state": false,
	}

	// Vectors only appear after their first observation.
	RequestsTotal.WithLabelValues("GET", "2xx").Inc()
	RequestDuration.WithLabelValues("GET").Observe(0.1)
	ResponseBytesTotal.WithLabelValues("GET").Add(1)
	StreamsTotal.WithLabelValues("completed").Inc()
	HandlerErrorsTotal.WithLabelValues("unknown").Inc()
	RateLimitRejectedTotal.WithLabelValues("default").Inc()
	ClientRequestsTotal.WithLabelValues("GET", "2xx").Inc()
	ClientBreakerState.WithLabelValues("test").Set(0)

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("unexpected gather error: %v", err)
	}

	for _, mf := range families {
		if _, ok := expected[mf.GetName()]; ok {
			expected[mf.GetName()] = true
		}
	}

	for name, found := range expected {
		if !found {
			t.Errorf("metric %q not found in default registry", name)
		}
	}
}

// TestMiddlewareRecordsRequestCount verifies that the middleware increments
// the request counter for each served request.
func TestMiddlewareRecordsRequestCount(t *testing.T) {
	before := counterValue(t, RequestsTotal, "GET", "2xx")

	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/hello/world", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	after := counterValue(t, RequestsTotal, "GET", "2xx")
	if after-before != 1 {
		t.Errorf("expected request count to increase by 1, got delta=%f", after-before)
	}
}

// TestMiddlewareRecordsDuration verifies that the middleware records
// a request duration observation.
func TestMiddlewareRecordsDuration(t *testing.T) {
	before := histogramCount(t, RequestDuration, "POST")

	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("POST", "/items", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	after := histogramCount(t, RequestDuration, "POST")
	if after-before != 1 {
		t.Errorf("expected histogram sample count to increase by 1, got delta=%d", after-before)
	}
}

// TestMiddlewareCapturesStatusCode verifies that non-200 status codes are
// captured correctly in the status label.
func TestMiddlewareCapturesStatusCode(t *testing.T) {
	before := counterValue(t, RequestsTotal, "DELETE", "4xx")

	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))

	req := httptest.NewRequest("DELETE", "/items", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	after := counterValue(t, RequestsTotal, "DELETE", "4xx")
	if after-before != 1 {
		t.Errorf("expected 4xx count to increase by 1, got delta=%f", after-before)
	}
}

func TestMiddlewareKeepsFlusher(t *testing.T) {
	flushed := false
	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: x\n\n")
		if err := http.NewResponseController(w).Flush(); err == nil {
			flushed = true
		}
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/events", nil))

	if !flushed || !rec.Flushed {
		t.Error("expected the wrapped writer to flush the recorder")
	}
}

func TestMiddlewareCountsResponseBytes(t *testing.T) {
	before := counterValue(t, ResponseBytesTotal, "PUT")

	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "12345")
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("PUT", "/items/1", nil))

	if delta := counterValue(t, ResponseBytesTotal, "PUT") - before; delta != 5 {
		t.Errorf("response bytes delta = %f, want 5", delta)
	}
}

func TestObserveHandlerError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind string
	}{
		{"route not found", api.NewRouteNotFoundError(api.MethodGet, "/x"), "route_not_found"},
		{"wrapped failure", fmt.Errorf("ctx: %w", api.NewHandlerFailure("/x", errors.New("boom"))), "handler_failure"},
		{"plain error", errors.New("boom"), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := counterValue(t, HandlerErrorsTotal, tt.kind)
			ObserveHandlerError(tt.err)
			if got := counterValue(t, HandlerErrorsTotal, tt.kind) - before; got != 1 {
				t.Errorf("expected %s count to increase by 1, got delta=%f", tt.kind, got)
			}
		})
	}
}

func TestObserveStreamEnd(t *testing.T) {
	tests := []struct {
		err    error
		result string
	}{
		{nil, "completed"},
		{context.Canceled, "cancelled"},
		{fmt.Errorf("writing event: %w", context.DeadlineExceeded), "cancelled"},
		{api.NewStreamError(errors.New("eof")), "failed"},
	}
	for _, tt := range tests {
		t.Run(tt.result, func(t *testing.T) {
			before := counterValue(t, StreamsTotal, tt.result)
			ObserveStreamEnd(tt.err)
			if got := counterValue(t, StreamsTotal, tt.result) - before; got != 1 {
				t.Errorf("expected %s count to increase by 1, got delta=%f", tt.result, got)
			}
		})
	}
}

// counterValue reads the current value of a CounterVec for the given labels.
func counterValue(t *testing.T, cv *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	c, err := cv.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("getting counter metric: %v", err)
	}
	if err := c.(prometheus.Metric).Write(m); err != nil {
		t.Fatalf("writing counter metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

// histogramCount reads the observation count from a HistogramVec.
func histogramCount(t *testing.T, hv *prometheus.HistogramVec, labels ...string) uint64 {
	t.Helper()
	m := &dto.Metric{}
	obs, err := hv.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("getting histogram metric: %v", err)
	}
	if err := obs.(prometheus.Metric).Write(m); err != nil {
		t.Fatalf("writing histogram metric: %v", err)
	}
	return m.GetHistogram().GetSampleCount()
}
