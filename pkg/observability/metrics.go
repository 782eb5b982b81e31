// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring a trellis server.
package observability

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rhuss/trellis/pkg/api"
)

// LatencyBuckets defines histogram buckets for request handling latencies,
// ranging from 5ms to 10s.
var LatencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

var (
	// RequestsTotal counts all HTTP requests by method and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trellis_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status"},
	)

	// RequestDuration records HTTP request duration in seconds by method.
	// For event streams it covers the whole stream.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trellis_request_duration_seconds",
			Help:    "Request duration",
			Buckets: LatencyBuckets,
		},
		[]string{"method"},
	)

	// ResponseBytesTotal counts response body bytes written by method.
	ResponseBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trellis_response_bytes_total",
			Help: "Response body bytes written",
		},
		[]string{"method"},
	)

	// StreamingConnections tracks the number of open event streams.
	StreamingConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trellis_streaming_connections_active",
			Help: "Active streaming connections",
		},
	)

	// StreamEventsTotal counts events written to event streams.
	StreamEventsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trellis_stream_events_total",
			Help: "Server-sent events written",
		},
	)

	// StreamsTotal counts finished event streams by how they ended.
	StreamsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trellis_streams_total",
			Help: "Finished event streams",
		},
		[]string{"result"},
	)

	// HandlerErrorsTotal counts errors that reached error handling, by kind.
	HandlerErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trellis_handler_errors_total",
			Help: "Errors raised by the handler chain",
		},
		[]string{"kind"},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trellis_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"tier"},
	)

	// ClientRequestsTotal counts requests sent by the trellis client.
	ClientRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trellis_client_requests_total",
			Help: "Client requests",
		},
		[]string{"method", "status"},
	)

	// ClientBreakerState reports the client circuit breaker state
	// (0 closed, 1 half-open, 2 open).
	ClientBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trellis_client_circuit_breaker_state",
			Help: "Client circuit breaker state",
		},
		[]string{"name"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		ResponseBytesTotal,
		StreamingConnections,
		StreamEventsTotal,
		StreamsTotal,
		HandlerErrorsTotal,
		RateLimitRejectedTotal,
		ClientRequestsTotal,
		ClientBreakerState,
	)
}

// ObserveHandlerError records err under its api.Error kind, or "unknown".
func ObserveHandlerError(err error) {
	kind := "unknown"
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		kind = string(apiErr.Kind)
	}
	HandlerErrorsTotal.WithLabelValues(kind).Inc()
}

// ObserveStreamEnd records how an event stream ended given the error
// returned by the pump.
func ObserveStreamEnd(err error) {
	result := "completed"
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		result = "cancelled"
	default:
		result = "failed"
	}
	StreamsTotal.WithLabelValues(result).Inc()
}

// StatusClass builds a status class label like "2xx".
func StatusClass(code int) string {
	return api.StatusOf(code).Class()
}
