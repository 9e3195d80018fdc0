package api

import (
	"net/http"
	"strconv"

	"github.com/cuemby/warden/pkg/manager"
	"github.com/cuemby/warden/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/raft"
)

// metricsMiddleware records request counts and latency per route pattern
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		method := r.Method + " " + route

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.APIRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
		timer.ObserveDurationVec(metrics.APIRequestDuration, method)

		s.logger.Debug().
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Dur("duration", timer.Duration()).
			Msg("API request")
	})
}

// leaderOnly rejects cluster administration requests on followers. Callers
// look the leader up in GET /v1/cluster and retry there.
func (s *Server) leaderOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cluster.IsLeader() {
			next.ServeHTTP(w, r)
			return
		}
		if s.cluster.LeaderAddr() == "" {
			s.respondError(w, manager.ErrNoLeader)
			return
		}
		s.respondError(w, raft.ErrNotLeader)
	})
}
