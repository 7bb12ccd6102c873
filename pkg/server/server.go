package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"mercator-hq/sentinel/pkg/config"
	"mercator-hq/sentinel/pkg/limits"
	"mercator-hq/sentinel/pkg/telemetry/health"
	"mercator-hq/sentinel/pkg/telemetry/metrics"
	"mercator-hq/sentinel/pkg/telemetry/tracing"
)

// Server is the admin HTTP server. It exposes metrics, health checks and
// read-mostly views of the governor's state.
type Server struct {
	config     config.AdminConfig
	governor   *limits.Governor
	checker    *health.Checker
	registry   *prometheus.Registry
	httpMetric *metrics.HTTPMetrics
	tracer     trace.Tracer
	logger     *slog.Logger
	version    health.VersionInfo

	metricsPath   string
	livenessPath  string
	readinessPath string

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
}

// Options carries the optional collaborators of a Server.
type Options struct {
	// Registry is scraped at MetricsPath. Nil disables the endpoint.
	Registry *prometheus.Registry

	// Checker backs the health endpoints. Nil disables them.
	Checker *health.Checker

	// Tracer starts a span per request. Default: noop.
	Tracer trace.Tracer

	// Logger receives request logs. Default: slog.Default().
	Logger *slog.Logger

	// Version is served at /version.
	Version health.VersionInfo

	MetricsPath   string
	LivenessPath  string
	ReadinessPath string
}

// New creates an admin server for g.
func New(cfg config.AdminConfig, g *limits.Governor, opts Options) *Server {
	if opts.Tracer == nil {
		opts.Tracer = noop.NewTracerProvider().Tracer("sentinel")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = config.DefaultPrometheusPath
	}
	if opts.LivenessPath == "" {
		opts.LivenessPath = config.DefaultLivenessPath
	}
	if opts.ReadinessPath == "" {
		opts.ReadinessPath = config.DefaultReadinessPath
	}

	s := &Server{
		config:        cfg,
		governor:      g,
		checker:       opts.Checker,
		registry:      opts.Registry,
		tracer:        opts.Tracer,
		logger:        opts.Logger.With("component", "admin"),
		version:       opts.Version,
		metricsPath:   opts.MetricsPath,
		livenessPath:  opts.LivenessPath,
		readinessPath: opts.ReadinessPath,
	}
	if opts.Registry != nil {
		s.httpMetric = metrics.NewHTTPMetrics(opts.Registry)
	}
	return s
}

// Handler returns the fully wrapped admin handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	s.handle(mux, "GET /v1/budget", "budget", s.handleBudget)
	s.handle(mux, "GET /v1/ratelimit", "ratelimit", s.handleRateLimit)
	s.handle(mux, "GET /v1/circuits", "circuits", s.handleCircuits)
	s.handle(mux, "POST /v1/circuits/reset", "circuits_reset", s.handleCircuitReset)
	s.handle(mux, "GET /v1/jobs", "jobs", s.handleJobs)
	s.handle(mux, "GET /v1/jobs/{id}", "job", s.handleJob)
	s.handle(mux, "DELETE /v1/jobs/{id}", "job_cancel", s.handleJobCancel)
	mux.HandleFunc("/version", health.VersionHandler(s.version.Version, s.version.Commit, s.version.BuildTime))

	if s.registry != nil {
		mux.Handle(s.metricsPath, metrics.Handler(s.registry))
	}
	if s.checker != nil {
		s.checker.Register(mux, s.livenessPath, s.readinessPath)
	}

	var handler http.Handler = mux
	handler = s.loggingMiddleware(handler)
	handler = tracing.HTTPMiddleware(s.tracer, handler)
	handler = requestIDMiddleware(handler)
	handler = s.recoveryMiddleware(handler)
	return handler
}

func (s *Server) handle(mux *http.ServeMux, pattern, name string, fn http.HandlerFunc) {
	var h http.Handler = fn
	if s.httpMetric != nil {
		h = s.httpMetric.Instrument(name, h)
	}
	mux.Handle(pattern, h)
}

// Start listens on the configured address and serves until ctx is done,
// then shuts down gracefully within ShutdownTimeout.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.httpServer != nil {
		s.mu.Unlock()
		return errors.New("admin server is already running")
	}
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	s.listener = ln
	srv := s.httpServer
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting admin server", "address", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("admin server error: %w", err)
		}
		close(errChan)
	}()

	select {
	case err, ok := <-errChan:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Addr returns the bound address, or "" before Serve.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = config.DefaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.logger.Info("shutting down admin server", "timeout", timeout.String())
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("admin server shutdown: %w", err)
	}
	s.logger.Info("admin server stopped")
	return nil
}
