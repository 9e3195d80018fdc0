package api

import (
	"github.com/cuemby/warden/pkg/metrics"
	"github.com/go-chi/chi/v5"
)

// registerProbes mounts the health, readiness, liveness and metrics endpoints
func (s *Server) registerProbes(r chi.Router) {
	r.Get("/health", metrics.HealthHandler())
	r.Get("/ready", metrics.ReadyHandler())
	r.Get("/live", metrics.LivenessHandler())
	r.Method("GET", "/metrics", metrics.Handler())
}
