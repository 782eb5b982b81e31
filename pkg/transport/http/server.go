package http

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/rhuss/trellis/pkg/observability"
	"github.com/rhuss/trellis/pkg/transport"
)

// Server wraps an http.Server with the transport adapter and manages
// the full lifecycle including startup and graceful shutdown.
type Server struct {
	httpServer *http.Server
	adapter    *Adapter
	config     ServerConfig
	logger     *slog.Logger
}

// ServerConfig holds configuration for the transport server.
type ServerConfig struct {
	Addr            string
	MaxBodySize     int64
	ReadTimeout     time.Duration
	ShutdownTimeout time.Duration
	Logger          *slog.Logger
	Middleware      []transport.Middleware
	Routes          map[string]http.Handler
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":8080",
		MaxBodySize:     10 << 20, // 10 MB
		ReadTimeout:     30 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		Logger:          slog.Default(),
	}
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) ServerOption {
	return func(s *Server) { s.config.Addr = addr }
}

// WithMaxBodySize sets the maximum request body size.
func WithMaxBodySize(n int64) ServerOption {
	return func(s *Server) { s.config.MaxBodySize = n }
}

// WithReadTimeout bounds reading a request including its body. There is
// no write timeout: event streams stay open until cancelled.
func WithReadTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.config.ReadTimeout = d }
}

// WithShutdownTimeout sets the graceful shutdown deadline.
func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.config.ShutdownTimeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.config.Logger = l; s.logger = l }
}

// WithMiddleware appends processor middleware after the defaults
// (recovery, request ID, logging).
func WithMiddleware(mws ...transport.Middleware) ServerOption {
	return func(s *Server) { s.config.Middleware = append(s.config.Middleware, mws...) }
}

// WithHandler mounts a plain http.Handler at an exact path, bypassing the
// processor. Used for /metrics.
func WithHandler(path string, h http.Handler) ServerOption {
	return func(s *Server) {
		if s.config.Routes == nil {
			s.config.Routes = map[string]http.Handler{}
		}
		s.config.Routes[path] = h
	}
}

// NewServer creates a new transport server for the given processor.
// Default middleware (recovery, request ID, logging) is applied automatically.
func NewServer(processor transport.Processor, opts ...ServerOption) *Server {
	s := &Server{
		config: DefaultServerConfig(),
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	adapterCfg := Config{
		Addr:            s.config.Addr,
		MaxBodySize:     s.config.MaxBodySize,
		ShutdownTimeout: int(s.config.ShutdownTimeout.Seconds()),
	}

	mws := []transport.Middleware{
		transport.Recovery(),
		transport.RequestID(),
		transport.Logging(s.logger),
	}
	mws = append(mws, s.config.Middleware...)

	s.adapter = NewAdapter(processor, adapterCfg, mws...)

	var handler http.Handler = observability.MetricsMiddleware(s.adapter.Handler())
	if len(s.config.Routes) > 0 {
		mux := http.NewServeMux()
		for path, h := range s.config.Routes {
			mux.Handle(path, h)
		}
		mux.Handle("/", handler)
		handler = mux
	}

	s.httpServer = &http.Server{
		Addr:        s.config.Addr,
		Handler:     otelhttp.NewHandler(handler, "trellis"),
		ReadTimeout: s.config.ReadTimeout,
	}

	return s
}

// Adapter returns the HTTP adapter serving the processor.
func (s *Server) Adapter() *Adapter {
	return s.adapter
}

// ListenAndServe starts the server and blocks until a shutdown signal
// (SIGINT or SIGTERM) is received. It then gracefully shuts down,
// cancelling open event streams and waiting for in-flight requests to
// complete within the configured timeout.
func (s *Server) ListenAndServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// ServeOn starts the server on the given listener and stops on SIGINT or
// SIGTERM. Used for testing.
func (s *Server) ServeOn(ln net.Listener) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)
	served := make(chan struct{})

	g.Go(func() error {
		defer close(served)
		s.logger.Info("server starting", slog.String("addr", ln.Addr().String()))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		select {
		case <-served:
			// Shut down from elsewhere.
			return nil
		case <-gctx.Done():
		}
		if ctx.Err() != nil {
			s.logger.Info("shutdown signal received")
		}
		return s.shutdown()
	})

	return g.Wait()
}

func (s *Server) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down gracefully", slog.Duration("timeout", s.config.ShutdownTimeout))
	if err := s.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("shutdown error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// Shutdown cancels every open event stream and gracefully shuts down the
// server with the given context. Streams never finish on their own, so
// they are cancelled before waiting for connections to drain.
func (s *Server) Shutdown(ctx context.Context) error {
	if n := s.adapter.InFlight().CancelAll(); n > 0 {
		s.logger.Info("cancelled open event streams", slog.Int("count", n))
	}
	return s.httpServer.Shutdown(ctx)
}
