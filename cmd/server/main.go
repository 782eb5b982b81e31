// Command server runs a trellis demo server.
//
// Configuration is read from a YAML file (see pkg/config) with TRELLIS_*
// environment overrides:
//
//	TRELLIS_CONFIG    - Config file path (default: ./config.yaml, /etc/trellis/config.yaml)
//	TRELLIS_PORT      - Listen port (default: 8080)
//	TRELLIS_LOG_LEVEL - trace, debug, info, warn or error (default: info)
//	TRELLIS_AUTH_TYPE - none, apikey or jwt (default: none)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/rhuss/trellis/pkg/api"
	"github.com/rhuss/trellis/pkg/auth"
	"github.com/rhuss/trellis/pkg/auth/apikey"
	"github.com/rhuss/trellis/pkg/auth/jwt"
	"github.com/rhuss/trellis/pkg/auth/noop"
	"github.com/rhuss/trellis/pkg/client"
	"github.com/rhuss/trellis/pkg/config"
	"github.com/rhuss/trellis/pkg/handler"
	"github.com/rhuss/trellis/pkg/observability"
	"github.com/rhuss/trellis/pkg/sse"
	transporthttp "github.com/rhuss/trellis/pkg/transport/http"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to the config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger, err := cfg.Logging.Apply(os.Stderr)
	if err != nil {
		return fmt.Errorf("configuring logging: %w", err)
	}

	// Accept and forward W3C trace context; spans go to whatever tracer
	// provider is installed globally.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	handlers, err := authHandlers(cfg)
	if err != nil {
		return fmt.Errorf("configuring auth: %w", err)
	}
	handlers = append(handlers, routes()...)

	chain, err := handler.Compile(handlers, handler.WithErrorObserver(observability.ObserveHandlerError))
	if err != nil {
		return fmt.Errorf("compiling routes: %w", err)
	}
	for _, r := range chain.Routes() {
		logger.Debug("route", slog.String("pattern", r.Pattern), slog.Any("methods", r.Methods))
	}

	opts := []transporthttp.ServerOption{
		transporthttp.WithAddr(":" + strconv.Itoa(cfg.Server.Port)),
		transporthttp.WithMaxBodySize(cfg.Server.MaxBodySize),
		transporthttp.WithReadTimeout(cfg.Server.ReadTimeout),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithLogger(logger),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, transporthttp.WithHandler(cfg.Metrics.Path, promhttp.Handler()))
	}

	return transporthttp.NewServer(chain, opts...).ListenAndServe()
}

// routes are the demo endpoints.
func routes() []handler.Handler {
	return []handler.Handler{
		handler.Get("/healthz", func(c *handler.Context) error {
			return c.Ok("ok")
		}),
		handler.Get("/readyz", func(c *handler.Context) error {
			return c.Ok("ok")
		}),
		handler.Get("/hello/{name}", func(c *handler.Context) error {
			name := c.PathParam("name")
			if id := auth.IdentityOf(c); id != nil && name == "me" {
				name = id.Subject
			}
			return c.Ok("Hello, " + name + "!")
		}),
		handler.Get("/sse", func(c *handler.Context) error {
			return c.SSE(sse.FromEvents(
				api.ServerEvent{Event: "greeting", Data: "hello"},
				api.ServerEvent{Event: "greeting", Data: "world"},
			))
		}),
		handler.Get("/clock", func(c *handler.Context) error {
			interval := time.Second
			if v := c.Query("interval"); v != "" {
				d, err := time.ParseDuration(v)
				if err != nil || d < 10*time.Millisecond {
					return c.Text(api.StatusBadRequest, "invalid interval "+strconv.Quote(v))
				}
				interval = d
			}
			return c.SSE(clock(interval))
		}),
		handler.Catch(api.ErrTooManyRequests, func(c *handler.Context, err error) error {
			retry := time.Minute
			var limitErr *auth.LimitError
			if errors.As(err, &limitErr) {
				retry = limitErr.RetryAfter
			}
			secs := int(math.Ceil(retry.Seconds()))
			if herr := c.Header("Retry-After", strconv.Itoa(max(secs, 1))); herr != nil {
				return herr
			}
			return c.Text(api.StatusTooManyRequests, "rate limit exceeded")
		}),
	}
}

// clock streams the current time until the client goes away.
func clock(interval time.Duration) api.EventSource {
	ticker := time.NewTicker(interval)
	var seq int
	return sse.Func(func(ctx context.Context) (api.ServerEvent, error) {
		if err := ctx.Err(); err != nil {
			return api.ServerEvent{}, err
		}
		select {
		case <-ctx.Done():
			return api.ServerEvent{}, ctx.Err()
		case now := <-ticker.C:
			seq++
			return api.ServerEvent{
				ID:    strconv.Itoa(seq),
				Event: "tick",
				Data:  now.UTC().Format(time.RFC3339),
			}, nil
		}
	}, func() error {
		ticker.Stop()
		return nil
	})
}

// authHandlers returns the before-hook enforcing the configured
// authentication, or nothing when auth is disabled.
func authHandlers(cfg *config.Config) ([]handler.Handler, error) {
	var authn auth.Authenticator
	defaultDecision := auth.No

	switch cfg.Auth.Type {
	case "none":
		authn = &noop.Authenticator{}
		defaultDecision = auth.Yes
	case "apikey":
		entries := make([]apikey.RawKeyEntry, 0, len(cfg.Auth.APIKeys))
		for _, k := range cfg.Auth.APIKeys {
			entries = append(entries, apikey.RawKeyEntry{
				Key: k.Key,
				Identity: auth.Identity{
					Subject:     k.Subject,
					ServiceTier: k.ServiceTier,
					Metadata:    map[string]string{"tenant_id": k.TenantID},
				},
			})
		}
		authn = apikey.New(entries)
	case "jwt":
		opts := []client.Option{
			client.Name("jwks"),
			client.Timeout(cfg.Client.Timeout),
		}
		if cfg.Client.RetryMax > 0 {
			opts = append(opts, client.Retry(cfg.Client.RetryMax, cfg.Client.RetryWaitMin, cfg.Client.RetryWaitMax))
		}
		if cfg.Client.BreakerTripAfter > 0 {
			opts = append(opts, client.CircuitBreaker(cfg.Client.BreakerTripAfter, cfg.Client.BreakerOpenTimeout))
		}
		c, err := client.New(cfg.Auth.JWT.JWKSURL, opts...)
		if err != nil {
			return nil, err
		}
		a, err := jwt.New(jwt.Config{
			Issuer:      cfg.Auth.JWT.Issuer,
			Audience:    cfg.Auth.JWT.Audience,
			JWKSURL:     cfg.Auth.JWT.JWKSURL,
			UserClaim:   cfg.Auth.JWT.UserClaim,
			TenantClaim: cfg.Auth.JWT.TenantClaim,
			ScopesClaim: cfg.Auth.JWT.ScopesClaim,
			CacheTTL:    cfg.Auth.JWT.CacheTTL,
			Client:      c,
		})
		if err != nil {
			return nil, err
		}
		authn = a
	default:
		return nil, fmt.Errorf("unknown auth type %q", cfg.Auth.Type)
	}

	var limiter auth.RateLimiter
	if rl := cfg.Auth.RateLimit; rl.DefaultRPM > 0 || len(rl.Tiers) > 0 {
		tiers := make(map[string]auth.TierConfig, len(rl.Tiers))
		for name, rpm := range rl.Tiers {
			tiers[name] = auth.TierConfig{RequestsPerMinute: rpm}
		}
		limiter = auth.NewInProcessLimiter(tiers, rl.DefaultRPM)
	}

	chain := &auth.AuthChain{
		Authenticators:  []auth.Authenticator{authn},
		DefaultDecision: defaultDecision,
	}
	return []handler.Handler{
		handler.Before("", auth.Filter(chain, limiter, cfg.Auth.BypassPaths)),
	}, nil
}
