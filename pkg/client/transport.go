package client

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/rhuss/trellis/pkg/logging"
	"github.com/rhuss/trellis/pkg/observability"
)

// logRoundTripper logs every attempt and counts it in the client metrics.
type logRoundTripper struct {
	base http.RoundTripper
	log  *logging.Logger
}

func (rt *logRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	start := time.Now()
	rt.log.LogAttrs(ctx, logging.LevelDebug, "request sent",
		slog.String("method", req.Method),
		slog.String("url", req.URL.String()),
	)
	resp, err := rt.base.RoundTrip(req)
	if err != nil {
		observability.ClientRequestsTotal.WithLabelValues(req.Method, "error").Inc()
		return nil, err
	}
	observability.ClientRequestsTotal.WithLabelValues(req.Method, observability.StatusClass(resp.StatusCode)).Inc()
	rt.log.LogAttrs(ctx, logging.LevelDebug, "response received",
		slog.String("url", req.URL.String()),
		slog.Int("status", resp.StatusCode),
		slog.Duration("latency", time.Since(start)),
	)
	return resp, nil
}

// statusCodeError marks a response whose status counts as a breaker failure.
type statusCodeError struct {
	code int
}

func (e statusCodeError) Error() string {
	return "failure status " + http.StatusText(e.code)
}

// circuitRoundTripper fails fast while the breaker is open. Responses with a
// failure status are still returned to the caller.
type circuitRoundTripper struct {
	base      http.RoundTripper
	cb        *gobreaker.CircuitBreaker
	isFailure func(code int) bool
}

func newCircuitRoundTripper(base http.RoundTripper, name string, co circuitOptions, log *logging.Logger) *circuitRoundTripper {
	state := observability.ClientBreakerState.WithLabelValues(name)
	state.Set(0)

	return &circuitRoundTripper{
		base: base,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: co.maxRequests,
			Interval:    co.interval,
			Timeout:     co.timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= co.tripCount
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				state.Set(float64(to))
				switch to {
				case gobreaker.StateOpen:
					log.Errorf("circuit %q has been opened", name)
				case gobreaker.StateHalfOpen:
					log.Warnf("circuit %q is half open, letting %d requests through", name, co.maxRequests)
				case gobreaker.StateClosed:
					log.Infof("circuit %q has been closed", name)
				}
			},
		}),
		isFailure: co.isFailure,
	}
}

func (rt *circuitRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	v, err := rt.cb.Execute(func() (interface{}, error) {
		resp, err := rt.base.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if rt.isFailure(resp.StatusCode) {
			return resp, statusCodeError{code: resp.StatusCode}
		}
		return resp, nil
	})
	var sce statusCodeError
	if errors.As(err, &sce) {
		return v.(*http.Response), nil
	}
	if err != nil {
		return nil, err
	}
	return v.(*http.Response), nil
}
