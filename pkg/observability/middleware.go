package observability

import (
	"net/http"

	"github.com/felixge/httpsnoop"
)

// MetricsMiddleware records trellis_requests_total,
// trellis_request_duration_seconds and trellis_response_bytes_total for
// every request served by next.
//
// The writer passed to next keeps the optional interfaces of w, so event
// streams can still flush. Open streams are counted by the HTTP adapter,
// which knows when a response turns into one.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)

		RequestsTotal.WithLabelValues(r.Method, StatusClass(m.Code)).Inc()
		RequestDuration.WithLabelValues(r.Method).Observe(m.Duration.Seconds())
		ResponseBytesTotal.WithLabelValues(r.Method).Add(float64(m.Written))
	})
}
