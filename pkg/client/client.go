package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cuemby/warden/pkg/counter"
	"github.com/cuemby/warden/pkg/ha"
	"github.com/cuemby/warden/pkg/provider"
	"github.com/cuemby/warden/pkg/storage"
	"github.com/cuemby/warden/pkg/types"
	"github.com/hashicorp/raft"
)

// Error codes carried in API error bodies
const (
	CodeInvalidParameter = "invalid_parameter"
	CodeNotFound         = "not_found"
	CodeConflict         = "conflict"
	CodeAlreadyExists    = "already_exists"
	CodeNotOwner         = "not_owner"
	CodeNotLeader        = "not_leader"
	CodeUnauthorized     = "unauthorized"
	CodeInternal         = "internal"
)

var codeErrors = map[string]error{
	CodeInvalidParameter: ha.ErrInvalidParameter,
	CodeNotFound:         storage.ErrNotFound,
	CodeConflict:         storage.ErrConflict,
	CodeAlreadyExists:    storage.ErrAlreadyExists,
	CodeNotOwner:         ha.ErrNotOwner,
	CodeNotLeader:        raft.ErrNotLeader,
}

// ErrorCode returns the API error code for err
func ErrorCode(err error) string {
	for code, sentinel := range codeErrors {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return CodeInternal
}

// ErrorBody is the JSON body of a failed request
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// APIError is returned for non-2xx responses. It unwraps to the sentinel
// error matching its code, so callers can use errors.Is across the wire.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("warden api: %s (%d %s)", e.Message, e.StatusCode, e.Code)
}

func (e *APIError) Unwrap() error {
	return codeErrors[e.Code]
}

// JoinRequest asks the leader to add a management node
type JoinRequest struct {
	NodeID   int64  `json:"nodeId"`
	RaftAddr string `json:"raftAddr"`
	APIAddr  string `json:"apiAddr"`
	Token    string `json:"token"`
}

// ApplyResponse reports the raft index of an applied command
type ApplyResponse struct {
	Index uint64 `json:"index"`
}

// TokenResponse carries a freshly issued join token
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ClusterInfo describes the management cluster as seen by one node
type ClusterInfo struct {
	NodeID   int64                `json:"nodeId"`
	Leader   string               `json:"leader"`
	IsLeader bool                 `json:"isLeader"`
	Managers []*types.ManagerNode `json:"managers"`
}

// ProviderInfo describes a registered HA provider
type ProviderInfo struct {
	Name            string             `json:"name"`
	ResourceType    types.ResourceType `json:"resourceType"`
	ResourceSubType string             `json:"resourceSubType"`
	Params          provider.Params    `json:"params"`
}

// ResourceStatus is the HA view of one resource
type ResourceStatus struct {
	Resource   *types.Resource   `json:"resource"`
	HAConfig   *types.HAConfig   `json:"haConfig,omitempty"`
	HostStatus types.HostStatus  `json:"hostStatus"`
	Eligible   bool              `json:"eligible"`
	Counter    *counter.Snapshot `json:"counter,omitempty"`
}

// Client talks to the HTTP API of a management node
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the API at addr, given as host:port or URL
func NewClient(addr string) (*Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("api address is required")
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid api address %q: %w", addr, err)
	}

	return &Client{
		baseURL:    strings.TrimRight(u.String(), "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Cluster operations

// JoinCluster asks the leader to add this node as a raft voter
func (c *Client) JoinCluster(ctx context.Context, req JoinRequest) error {
	return c.do(ctx, http.MethodPost, "/v1/cluster/join", req, nil)
}

// CreateJoinToken asks the leader for a join token valid for ttl
func (c *Client) CreateJoinToken(ctx context.Context, ttl time.Duration) (*TokenResponse, error) {
	var resp TokenResponse
	body := map[string]string{"ttl": ttl.String()}
	if err := c.do(ctx, http.MethodPost, "/v1/cluster/tokens", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ClusterInfo returns the leader and the registered management nodes
func (c *Client) ClusterInfo(ctx context.Context) (*ClusterInfo, error) {
	var info ClusterInfo
	if err := c.do(ctx, http.MethodGet, "/v1/cluster", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ApplyCommand submits a raft command to the leader and returns its log index
func (c *Client) ApplyCommand(ctx context.Context, cmd interface{}) (uint64, error) {
	var resp ApplyResponse
	if err := c.do(ctx, http.MethodPost, "/v1/raft/apply", cmd, &resp); err != nil {
		return 0, err
	}
	return resp.Index, nil
}

// Resources

// PutResource registers or updates a managed resource
func (c *Client) PutResource(ctx context.Context, resource *types.Resource) error {
	return c.do(ctx, http.MethodPut, resourcePath(resource.Type, resource.ID), resource, nil)
}

// ResourceStatus returns the HA view of a resource
func (c *Client) ResourceStatus(ctx context.Context, resourceType types.ResourceType, id string) (*ResourceStatus, error) {
	var status ResourceStatus
	if err := c.do(ctx, http.MethodGet, resourcePath(resourceType, id)+"/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// HA operations

// ListHAConfigs lists HA configs, optionally narrowed to one resource or type
func (c *Client) ListHAConfigs(ctx context.Context, resourceID string, resourceType types.ResourceType) ([]*types.HAConfig, error) {
	q := url.Values{}
	if resourceID != "" {
		q.Set("resourceId", resourceID)
	}
	if resourceType != "" {
		q.Set("resourceType", string(resourceType))
	}

	path := "/v1/ha/configs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var configs []*types.HAConfig
	if err := c.do(ctx, http.MethodGet, path, nil, &configs); err != nil {
		return nil, err
	}
	return configs, nil
}

// ListProviders lists the registered HA providers
func (c *Client) ListProviders(ctx context.Context, resourceType types.ResourceType) ([]ProviderInfo, error) {
	path := "/v1/ha/providers"
	if resourceType != "" {
		path += "?resourceType=" + url.QueryEscape(string(resourceType))
	}

	var providers []ProviderInfo
	if err := c.do(ctx, http.MethodGet, path, nil, &providers); err != nil {
		return nil, err
	}
	return providers, nil
}

// ConfigureProvider assigns an HA provider to a resource
func (c *Client) ConfigureProvider(ctx context.Context, resourceType types.ResourceType, id, providerName string) (*types.HAConfig, error) {
	var cfg types.HAConfig
	body := map[string]string{"provider": providerName}
	if err := c.do(ctx, http.MethodPost, haResourcePath(resourceType, id)+"/provider", body, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// EnableHA switches HA on for a resource
func (c *Client) EnableHA(ctx context.Context, resourceType types.ResourceType, id string) (*types.HAConfig, error) {
	return c.toggleHA(ctx, resourceType, id, "enable")
}

// DisableHA switches HA off for a resource
func (c *Client) DisableHA(ctx context.Context, resourceType types.ResourceType, id string) (*types.HAConfig, error) {
	return c.toggleHA(ctx, resourceType, id, "disable")
}

func (c *Client) toggleHA(ctx context.Context, resourceType types.ResourceType, id, action string) (*types.HAConfig, error) {
	var cfg types.HAConfig
	if err := c.do(ctx, http.MethodPost, haResourcePath(resourceType, id)+"/"+action, nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ReportHealth injects a liveness verdict for a resource
func (c *Client) ReportHealth(ctx context.Context, resourceType types.ResourceType, id string, healthy bool) error {
	body := map[string]bool{"healthy": healthy}
	return c.do(ctx, http.MethodPost, haResourcePath(resourceType, id)+"/health", body, nil)
}

// SetScopeHA switches HA on or off for a zone or cluster
func (c *Client) SetScopeHA(ctx context.Context, scope types.HAScope, id string, enabled bool) error {
	action := "disable"
	if enabled {
		action = "enable"
	}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/ha/%ss/%s/%s", scope, url.PathEscape(id), action), nil, nil)
}

func resourcePath(resourceType types.ResourceType, id string) string {
	return fmt.Sprintf("/v1/resources/%s/%s", url.PathEscape(string(resourceType)), url.PathEscape(id))
}

func haResourcePath(resourceType types.ResourceType, id string) string {
	return fmt.Sprintf("/v1/ha/resources/%s/%s", url.PathEscape(string(resourceType)), url.PathEscape(id))
}

// do sends a JSON request and decodes a JSON response into out when set
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Code: CodeInternal, Message: resp.Status}
		var eb ErrorBody
		if err := json.NewDecoder(resp.Body).Decode(&eb); err == nil {
			if eb.Code != "" {
				apiErr.Code = eb.Code
			}
			if eb.Error != "" {
				apiErr.Message = eb.Error
			}
		}
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
