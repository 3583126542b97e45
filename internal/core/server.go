// Package core provides the HTTP chassis for the billing webhook service.
// It builds a chi router that serves both a standalone HTTP listener and
// AWS Lambda (through the API Gateway adapter in cmd/api), and applies the
// cross-cutting middleware before requests reach the webhook handler.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"petcare/internal/config"
)

// MetricsCollector records per-request API telemetry.
type MetricsCollector interface {
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// RouteRegistrar mounts a group of handlers on the router. Handler packages
// expose one so core does not import them.
type RouteRegistrar func(r chi.Router)

// Server bundles the router with the dependencies the middleware needs.
type Server struct {
	Config       *config.Config
	Logger       *slog.Logger
	Metrics      MetricsCollector
	HealthProbes []HealthProbe

	// MetricsHandler is served at /metrics when set (Prometheus scrape).
	MetricsHandler http.Handler

	// RouteRegistrars are applied by MountRoutes after the middleware chain.
	RouteRegistrars []RouteRegistrar

	// Closers are released in order by Shutdown.
	Closers []func() error

	router *chi.Mux
}

// NewServer validates the critical dependencies and returns a server with an
// empty router. Call MountRoutes once all registrars and probes are attached.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	return &Server{
		Config: cfg,
		Logger: logger,
		router: chi.NewRouter(),
	}, nil
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown releases pooled resources. Every closer runs even if an earlier
// one fails; the first error is returned.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.InfoContext(ctx, "server shutdown initiated")

	var firstErr error
	for _, closeFn := range s.Closers {
		if err := closeFn(); err != nil {
			s.Logger.ErrorContext(ctx, "error closing resource", "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("closing resources: %w", err)
			}
		}
	}

	s.Logger.InfoContext(ctx, "server shutdown complete")
	return firstErr
}
