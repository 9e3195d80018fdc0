package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cuemby/warden/pkg/client"
	"github.com/cuemby/warden/pkg/ha"
	"github.com/cuemby/warden/pkg/log"
	"github.com/cuemby/warden/pkg/manager"
	"github.com/cuemby/warden/pkg/metrics"
	"github.com/cuemby/warden/pkg/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

const defaultTokenTTL = 24 * time.Hour

// Cluster is the part of the management node the API serves directly:
// membership, join tokens, raft forwarding and resource registration
type Cluster interface {
	NodeID() int64
	IsLeader() bool
	LeaderAddr() string
	ListManagers() ([]*types.ManagerNode, error)
	AddVoter(node *types.ManagerNode) error
	GenerateJoinToken(ttl time.Duration) (*manager.JoinToken, error)
	ValidateJoinToken(token string) error
	ApplyLocal(cmd manager.Command) (uint64, error)
	PutResource(resource *types.Resource) error
	GetResource(resourceType types.ResourceType, id string) (*types.Resource, error)
}

// Server is the HTTP API of a management node
type Server struct {
	cluster Cluster
	ha      *ha.Manager
	router  chi.Router
	logger  zerolog.Logger

	mu   sync.Mutex
	http *http.Server
}

// NewServer creates the API server and registers its routes
func NewServer(cluster Cluster, haMgr *ha.Manager) *Server {
	s := &Server{
		cluster: cluster,
		ha:      haMgr,
		router:  chi.NewRouter(),
		logger:  log.WithComponent("api"),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.metricsMiddleware)

	s.registerProbes(s.router)

	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/cluster", s.handleClusterInfo)
		r.Group(func(r chi.Router) {
			r.Use(s.leaderOnly)
			r.Post("/cluster/join", s.handleJoin)
			r.Post("/cluster/tokens", s.handleCreateToken)
			r.Post("/raft/apply", s.handleApply)
		})

		r.Put("/resources/{type}/{id}", s.handlePutResource)
		r.Get("/resources/{type}/{id}/status", s.handleResourceStatus)

		r.Route("/ha", func(r chi.Router) {
			r.Get("/configs", s.handleListConfigs)
			r.Get("/providers", s.handleListProviders)

			r.Route("/resources/{type}/{id}", func(r chi.Router) {
				r.Post("/provider", s.handleConfigureProvider)
				r.Post("/enable", s.handleSetEnabled(true))
				r.Post("/disable", s.handleSetEnabled(false))
				r.Post("/health", s.handleReportHealth)
			})

			r.Post("/zones/{id}/enable", s.handleScope(types.HAScopeZone, true))
			r.Post("/zones/{id}/disable", s.handleScope(types.HAScopeZone, false))
			r.Post("/clusters/{id}/enable", s.handleScope(types.HAScopeCluster, true))
			r.Post("/clusters/{id}/disable", s.handleScope(types.HAScopeCluster, false))
		})
	})
}

// Handler returns the HTTP handler for embedding in other servers
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves the API on addr until Shutdown is called
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.mu.Lock()
	s.http = srv
	s.mu.Unlock()

	s.logger.Info().Str("addr", addr).Msg("HTTP API listening")
	metrics.UpdateComponent(metrics.ComponentAPI, true, "listening on "+addr)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		metrics.UpdateComponent(metrics.ComponentAPI, false, err.Error())
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Cluster handlers

func (s *Server) handleClusterInfo(w http.ResponseWriter, r *http.Request) {
	managers, err := s.cluster.ListManagers()
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, client.ClusterInfo{
		NodeID:   s.cluster.NodeID(),
		Leader:   s.cluster.LeaderAddr(),
		IsLeader: s.cluster.IsLeader(),
		Managers: managers,
	})
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req client.JoinRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.NodeID <= 0 || req.RaftAddr == "" {
		s.respondError(w, fmt.Errorf("%w: node id and raft address are required", ha.ErrInvalidParameter))
		return
	}
	if err := s.cluster.ValidateJoinToken(req.Token); err != nil {
		s.respondError(w, err)
		return
	}

	err := s.cluster.AddVoter(&types.ManagerNode{
		ID:       req.NodeID,
		RaftAddr: req.RaftAddr,
		APIAddr:  req.APIAddr,
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TTL string `json:"ttl"`
	}
	if r.ContentLength != 0 && !s.decode(w, r, &req) {
		return
	}

	ttl := defaultTokenTTL
	if req.TTL != "" {
		parsed, err := time.ParseDuration(req.TTL)
		if err != nil || parsed <= 0 {
			s.respondError(w, fmt.Errorf("%w: invalid ttl %q", ha.ErrInvalidParameter, req.TTL))
			return
		}
		ttl = parsed
	}

	token, err := s.cluster.GenerateJoinToken(ttl)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, client.TokenResponse{
		Token:     token.Token,
		ExpiresAt: token.ExpiresAt,
	})
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	var cmd manager.Command
	if !s.decode(w, r, &cmd) {
		return
	}
	index, err := s.cluster.ApplyLocal(cmd)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, client.ApplyResponse{Index: index})
}

// Resource handlers

func (s *Server) handlePutResource(w http.ResponseWriter, r *http.Request) {
	resourceType, id, ok := s.resourceKey(w, r)
	if !ok {
		return
	}

	var resource types.Resource
	if !s.decode(w, r, &resource) {
		return
	}
	if (resource.ID != "" && resource.ID != id) || (resource.Type != "" && resource.Type != resourceType) {
		s.respondError(w, fmt.Errorf("%w: body does not match %s", ha.ErrInvalidParameter, types.Key(resourceType, id)))
		return
	}
	resource.ID = id
	resource.Type = resourceType

	if err := s.cluster.PutResource(&resource); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResourceStatus(w http.ResponseWriter, r *http.Request) {
	resourceType, id, ok := s.resourceKey(w, r)
	if !ok {
		return
	}

	resource, err := s.cluster.GetResource(resourceType, id)
	if err != nil {
		s.respondError(w, err)
		return
	}

	status := client.ResourceStatus{
		Resource:   resource,
		HostStatus: s.ha.HostStatus(resource),
		Eligible:   s.ha.IsEligible(resource),
	}

	configs, err := s.ha.ListHAConfigs(id, resourceType)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if len(configs) > 0 {
		status.HAConfig = configs[0]
	}
	if snap, ok := s.ha.CounterSnapshot(resourceType, id); ok {
		status.Counter = &snap
	}
	s.respondJSON(w, http.StatusOK, status)
}

// HA handlers

func (s *Server) handleListConfigs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	resourceType := types.ResourceType(query.Get("resourceType"))
	if resourceType != "" && !validResourceType(resourceType) {
		s.respondError(w, fmt.Errorf("%w: unknown resource type %q", ha.ErrInvalidParameter, resourceType))
		return
	}

	configs, err := s.ha.ListHAConfigs(query.Get("resourceId"), resourceType)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if configs == nil {
		configs = []*types.HAConfig{}
	}
	s.respondJSON(w, http.StatusOK, configs)
}

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	providers := s.ha.ListProviders(types.ResourceType(r.URL.Query().Get("resourceType")))

	infos := make([]client.ProviderInfo, 0, len(providers))
	for _, p := range providers {
		infos = append(infos, client.ProviderInfo{
			Name:            p.Name(),
			ResourceType:    p.ResourceType(),
			ResourceSubType: p.ResourceSubType(),
			Params:          p.Params(nil),
		})
	}
	s.respondJSON(w, http.StatusOK, infos)
}

func (s *Server) handleConfigureProvider(w http.ResponseWriter, r *http.Request) {
	resourceType, id, ok := s.resourceKey(w, r)
	if !ok {
		return
	}

	var req struct {
		Provider string `json:"provider"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	cfg, err := s.ha.ConfigureProvider(id, resourceType, req.Provider)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleSetEnabled(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resourceType, id, ok := s.resourceKey(w, r)
		if !ok {
			return
		}

		var (
			cfg *types.HAConfig
			err error
		)
		if enabled {
			cfg, err = s.ha.EnableHA(id, resourceType)
		} else {
			cfg, err = s.ha.DisableHA(id, resourceType)
		}
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, cfg)
	}
}

func (s *Server) handleReportHealth(w http.ResponseWriter, r *http.Request) {
	resourceType, id, ok := s.resourceKey(w, r)
	if !ok {
		return
	}

	var req struct {
		Healthy *bool `json:"healthy"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.Healthy == nil {
		s.respondError(w, fmt.Errorf("%w: healthy is required", ha.ErrInvalidParameter))
		return
	}

	if err := s.ha.ReportHealth(id, resourceType, *req.Healthy); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleScope(scope types.HAScope, enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var err error
		switch {
		case scope == types.HAScopeZone && enabled:
			err = s.ha.EnableZone(id)
		case scope == types.HAScopeZone:
			err = s.ha.DisableZone(id)
		case enabled:
			err = s.ha.EnableCluster(id)
		default:
			err = s.ha.DisableCluster(id)
		}
		if err != nil {
			s.respondError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// Helpers

func validResourceType(resourceType types.ResourceType) bool {
	return resourceType == types.ResourceTypeHost
}

// resourceKey reads {type} and {id} from the route, writing a 400 when the
// type is unknown
func (s *Server) resourceKey(w http.ResponseWriter, r *http.Request) (types.ResourceType, string, bool) {
	resourceType := types.ResourceType(chi.URLParam(r, "type"))
	if !validResourceType(resourceType) {
		s.respondError(w, fmt.Errorf("%w: unknown resource type %q", ha.ErrInvalidParameter, resourceType))
		return "", "", false
	}
	return resourceType, chi.URLParam(r, "id"), true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.respondError(w, fmt.Errorf("%w: malformed request body: %v", ha.ErrInvalidParameter, err))
		return false
	}
	return true
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Int("status", status).Msg("API error")
	} else {
		s.logger.Debug().Err(err).Int("status", status).Msg("API request rejected")
	}
	s.respondJSON(w, status, client.ErrorBody{Error: err.Error(), Code: code})
}

// errorStatus maps an error onto an HTTP status and API error code
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, manager.ErrInvalidToken), errors.Is(err, manager.ErrTokenExpired):
		return http.StatusUnauthorized, client.CodeUnauthorized
	case errors.Is(err, manager.ErrNoLeader):
		return http.StatusServiceUnavailable, client.CodeNotLeader
	}

	code := client.ErrorCode(err)
	switch code {
	case client.CodeInvalidParameter:
		return http.StatusBadRequest, code
	case client.CodeNotFound:
		return http.StatusNotFound, code
	case client.CodeConflict, client.CodeAlreadyExists:
		return http.StatusConflict, code
	case client.CodeNotOwner:
		return http.StatusForbidden, code
	case client.CodeNotLeader:
		return http.StatusMisdirectedRequest, code
	default:
		return http.StatusInternalServerError, code
	}
}

var _ Cluster = (*manager.Manager)(nil)
