// Package server exposes the turn orchestrator over HTTP.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	openworkotel "github.com/moshesimon/OpenWork-sub000/internal/otel"
	"github.com/moshesimon/OpenWork-sub000/internal/store"
	"github.com/moshesimon/OpenWork-sub000/internal/turn"
)

const defaultTimeout = 60 * time.Second

// Server holds the HTTP API dependencies.
type Server struct {
	router    *chi.Mux
	runner    *turn.Runner
	store     *store.Store
	limiter   *RateLimiter
	startTime time.Time
}

// NewServer builds the API server over the shared runner and store.
func NewServer(runner *turn.Runner, s *store.Store, limiter *RateLimiter) *Server {
	return &Server{
		router:    chi.NewRouter(),
		runner:    runner,
		store:     s,
		limiter:   limiter,
		startTime: time.Now(),
	}
}

// Routes returns the configured http.Handler. Turn routes run without the
// short request timeout; the turn budget is the deadline that matters there.
func (s *Server) Routes() http.Handler {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(openworkotel.Middleware())

	r.Get("/healthz", s.handleHealth)

	r.Group(func(r chi.Router) {
		if s.limiter != nil {
			r.Use(RateLimitMiddleware(s.limiter))
		}

		r.Post("/api/turns", s.handleRunTurn)
		r.Post("/api/events", s.handleIngestEvent)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(defaultTimeout))
			r.Get("/api/tasks/{taskID}", s.handleTaskView)
			r.Get("/api/briefings", s.handleBriefings)
		})
	})

	return r
}
