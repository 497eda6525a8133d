// Package server implements the HTTP transport layer for the feed cache.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	feed "github.com/eugener/feedcache/internal"
	"github.com/eugener/feedcache/internal/app"
	"github.com/eugener/feedcache/internal/cache"
	"github.com/eugener/feedcache/internal/ratelimit"
	"github.com/eugener/feedcache/internal/telemetry"
)

// ReadyChecker reports whether the system is ready to serve traffic.
type ReadyChecker func(ctx context.Context) error

// FeedService is the application surface the handlers drive.
type FeedService interface {
	Load(ctx context.Context) ([]feed.Image, error)
	Refresh(ctx context.Context) (app.RefreshResult, error)
	Validate(ctx context.Context) (cache.ValidationResult, error)
	Clear(ctx context.Context) error
}

// Authenticator guards the operator endpoints.
type Authenticator interface {
	Authenticate(r *http.Request) error
}

// Deps holds all dependencies for the HTTP server.
type Deps struct {
	Feed           FeedService
	Admin          Authenticator      // nil = operator endpoints unauthenticated
	ReadyCheck     ReadyChecker       // nil = always ready (for tests)
	Metrics        *telemetry.Metrics // nil = no request metrics
	MetricsHandler http.Handler       // nil = no /metrics route
	RefreshLimit   *ratelimit.Limiter // nil = refresh unthrottled
}

// New creates an http.Handler with all routes and middleware wired.
func New(deps Deps) http.Handler {
	s := &server{deps: deps}

	r := chi.NewRouter()

	r.Use(s.recovery)
	r.Use(s.requestID)
	r.Use(s.logging)
	if deps.Metrics != nil {
		r.Use(metricsMiddleware(deps.Metrics))
	}

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Route("/v1/feed", func(r chi.Router) {
		r.Get("/", s.handleLoad)
		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)
			r.With(s.throttleRefresh).Post("/refresh", s.handleRefresh)
			r.Post("/validate", s.handleValidate)
			r.Delete("/", s.handleClear)
		})
	})

	return r
}

type server struct {
	deps Deps
}
