// Package server exposes the HTTP API: submission, polling, and governance
// endpoints, with the admission pipeline enforced in middleware order ahead
// of any handler work.
package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sponsorscope/scope/internal/config"
	"github.com/sponsorscope/scope/internal/governance"
	"github.com/sponsorscope/scope/internal/job"
	"github.com/sponsorscope/scope/internal/monitoring"
)

// Server wires the HTTP API over the governance pipeline and orchestrator.
type Server struct {
	cfg      *config.Config
	pipeline *governance.Pipeline
	orch     *job.Orchestrator
	monitor  *monitoring.Collector
}

// New creates a Server.
func New(cfg *config.Config, pipeline *governance.Pipeline, orch *job.Orchestrator, monitor *monitoring.Collector) *Server {
	return &Server{cfg: cfg, pipeline: pipeline, orch: orch, monitor: monitor}
}

// Router builds the chi router with the full middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(requestLogger)
	r.Use(governanceStamp)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/analyze", s.handleAnalyze)
		r.Get("/status/{jobID}", s.handleStatus)
		r.Get("/report/{jobID}", s.handleReport)

		r.Route("/governance", func(r chi.Router) {
			r.Get("/status", s.handleGovernanceStatus)
			r.Get("/token-usage", s.handleTokenUsage)

			r.Group(func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Post("/reset-token-usage", s.handleResetTokenUsage)
				r.Get("/rate-limit/{ip}", s.handleRateLimitInfo)
				r.Post("/killswitch/{component}/{action}", s.handleKillSwitch)
			})
		})
	})

	return r
}

// HTTPServer returns a configured http.Server for the router.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
