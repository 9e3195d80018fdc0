package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/warden/pkg/client"
	"github.com/cuemby/warden/pkg/dispatch"
	"github.com/cuemby/warden/pkg/ha"
	"github.com/cuemby/warden/pkg/manager"
	"github.com/cuemby/warden/pkg/provider"
	"github.com/cuemby/warden/pkg/storage"
	"github.com/cuemby/warden/pkg/types"
	"github.com/hashicorp/raft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/clock"
)

const stubProviderName = "stubkvm"

// stubProvider accepts every KVM host and reports it healthy
type stubProvider struct{}

func (stubProvider) Name() string                     { return stubProviderName }
func (stubProvider) ResourceType() types.ResourceType { return types.ResourceTypeHost }
func (stubProvider) ResourceSubType() string          { return "KVM" }
func (stubProvider) IsEligible(*types.Resource) bool  { return true }

func (stubProvider) IsHealthy(context.Context, *types.Resource) (bool, error) { return true, nil }

func (stubProvider) HasActivity(context.Context, *types.Resource, time.Time) (bool, error) {
	return true, nil
}

func (stubProvider) Recover(context.Context, *types.Resource) (bool, error) { return true, nil }
func (stubProvider) Fence(context.Context, *types.Resource) (bool, error)   { return true, nil }

func (stubProvider) FenceSubResources(context.Context, *types.Resource) error { return nil }

func (stubProvider) Params(*types.Resource) provider.Params { return provider.DefaultParams() }

// fakeCluster serves cluster calls from a local bolt store
type fakeCluster struct {
	store  *storage.BoltStore
	tokens *manager.TokenManager

	mu      sync.Mutex
	leader  string
	voters  []*types.ManagerNode
	applied []manager.Command
}

func (c *fakeCluster) NodeID() int64 { return 1 }

func (c *fakeCluster) IsLeader() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.leader == "self"
}

func (c *fakeCluster) LeaderAddr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.leader
}

func (c *fakeCluster) setLeader(addr string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.leader = addr
}

func (c *fakeCluster) ListManagers() ([]*types.ManagerNode, error) { return c.store.ListManagers() }

func (c *fakeCluster) AddVoter(node *types.ManagerNode) error {
	c.mu.Lock()
	c.voters = append(c.voters, node)
	c.mu.Unlock()
	return c.store.PutManager(node)
}

func (c *fakeCluster) GenerateJoinToken(ttl time.Duration) (*manager.JoinToken, error) {
	return c.tokens.GenerateToken(ttl)
}

func (c *fakeCluster) ValidateJoinToken(token string) error { return c.tokens.ValidateToken(token) }

func (c *fakeCluster) ApplyLocal(cmd manager.Command) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applied = append(c.applied, cmd)
	return uint64(len(c.applied)), nil
}

func (c *fakeCluster) PutResource(resource *types.Resource) error { return c.store.PutResource(resource) }

func (c *fakeCluster) GetResource(resourceType types.ResourceType, id string) (*types.Resource, error) {
	return c.store.GetResource(resourceType, id)
}

type testEnv struct {
	cluster *fakeCluster
	store   *storage.BoltStore
	client  *client.Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	registry, err := provider.NewRegistry(stubProvider{})
	require.NoError(t, err)

	haMgr, err := ha.NewManager(ha.Config{
		NodeID:     1,
		Store:      store,
		Providers:  registry,
		Dispatcher: dispatch.Inline{},
	})
	require.NoError(t, err)

	cluster := &fakeCluster{
		store:  store,
		tokens: manager.NewTokenManager(clock.RealClock{}),
		leader: "self",
	}

	ts := httptest.NewServer(NewServer(cluster, haMgr).Handler())
	t.Cleanup(ts.Close)

	c, err := client.NewClient(ts.URL)
	require.NoError(t, err)
	return &testEnv{cluster: cluster, store: store, client: c}
}

func (e *testEnv) addHost(t *testing.T, id string) {
	t.Helper()
	err := e.client.PutResource(context.Background(), &types.Resource{
		ID:         id,
		Type:       types.ResourceTypeHost,
		SubType:    "KVM",
		ZoneID:     "zone-1",
		ClusterID:  "cluster-1",
		OOBAddress: "10.0.0.10",
	})
	require.NoError(t, err)
}

func TestHAResourceLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addHost(t, "host-1")

	cfg, err := env.client.ConfigureProvider(ctx, types.ResourceTypeHost, "host-1", stubProviderName)
	require.NoError(t, err)
	assert.Equal(t, types.HAStateDisabled, cfg.State)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, stubProviderName, cfg.ProviderKey)

	_, err = env.client.EnableHA(ctx, types.ResourceTypeHost, "host-1")
	require.NoError(t, err)

	configs, err := env.client.ListHAConfigs(ctx, "host-1", types.ResourceTypeHost)
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.True(t, configs[0].Enabled)
	assert.Equal(t, types.HAStateAvailable, configs[0].State)

	status, err := env.client.ResourceStatus(ctx, types.ResourceTypeHost, "host-1")
	require.NoError(t, err)
	assert.Equal(t, types.HostStatusUp, status.HostStatus)
	assert.True(t, status.Eligible)
	require.NotNil(t, status.HAConfig)
	assert.Equal(t, "zone-1", status.Resource.ZoneID)

	require.NoError(t, env.client.ReportHealth(ctx, types.ResourceTypeHost, "host-1", false))
	stored, err := env.store.GetHAConfig(types.ResourceTypeHost, "host-1")
	require.NoError(t, err)
	assert.Equal(t, types.HAStateSuspect, stored.State)

	status, err = env.client.ResourceStatus(ctx, types.ResourceTypeHost, "host-1")
	require.NoError(t, err)
	require.NotNil(t, status.Counter)

	cfg, err = env.client.DisableHA(ctx, types.ResourceTypeHost, "host-1")
	require.NoError(t, err)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, types.HAStateDisabled, cfg.State)
}

func TestScopeSwitches(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addHost(t, "host-1")

	_, err := env.client.ConfigureProvider(ctx, types.ResourceTypeHost, "host-1", stubProviderName)
	require.NoError(t, err)
	_, err = env.client.EnableHA(ctx, types.ResourceTypeHost, "host-1")
	require.NoError(t, err)

	require.NoError(t, env.client.SetScopeHA(ctx, types.HAScopeZone, "zone-1", false))
	enabled, err := env.store.IsHAEnabled(types.HAScopeZone, "zone-1")
	require.NoError(t, err)
	assert.False(t, enabled)

	stored, err := env.store.GetHAConfig(types.ResourceTypeHost, "host-1")
	require.NoError(t, err)
	assert.Equal(t, types.HAStateDisabled, stored.State)

	require.NoError(t, env.client.SetScopeHA(ctx, types.HAScopeZone, "zone-1", true))
	stored, err = env.store.GetHAConfig(types.ResourceTypeHost, "host-1")
	require.NoError(t, err)
	assert.Equal(t, types.HAStateAvailable, stored.State)

	require.NoError(t, env.client.SetScopeHA(ctx, types.HAScopeCluster, "cluster-1", false))
	enabled, err = env.store.IsHAEnabled(types.HAScopeCluster, "cluster-1")
	require.NoError(t, err)
	assert.False(t, enabled)
}

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addHost(t, "host-1")

	tests := []struct {
		name     string
		call     func() error
		status   int
		sentinel error
	}{
		{
			name: "unknown provider",
			call: func() error {
				_, err := env.client.ConfigureProvider(ctx, types.ResourceTypeHost, "host-1", "nope")
				return err
			},
			status:   http.StatusBadRequest,
			sentinel: ha.ErrInvalidParameter,
		},
		{
			name: "enable without provider",
			call: func() error {
				_, err := env.client.EnableHA(ctx, types.ResourceTypeHost, "host-1")
				return err
			},
			status:   http.StatusBadRequest,
			sentinel: ha.ErrInvalidParameter,
		},
		{
			name: "unknown resource status",
			call: func() error {
				_, err := env.client.ResourceStatus(ctx, types.ResourceTypeHost, "ghost")
				return err
			},
			status:   http.StatusNotFound,
			sentinel: storage.ErrNotFound,
		},
		{
			name: "unknown resource type",
			call: func() error {
				_, err := env.client.ListHAConfigs(ctx, "", types.ResourceType("VM"))
				return err
			},
			status:   http.StatusBadRequest,
			sentinel: ha.ErrInvalidParameter,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)

			var apiErr *client.APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.ErrorIs(t, err, tt.sentinel)
		})
	}
}

func TestReportHealth_RequiresVerdict(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(NewServer(env.cluster, nil).Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/ha/resources/Host/host-1/health", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body client.ErrorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, client.CodeInvalidParameter, body.Code)
}

func TestListProviders(t *testing.T) {
	env := newTestEnv(t)

	providers, err := env.client.ListProviders(context.Background(), types.ResourceTypeHost)
	require.NoError(t, err)
	require.Len(t, providers, 1)
	assert.Equal(t, stubProviderName, providers[0].Name)
	assert.Equal(t, "KVM", providers[0].ResourceSubType)
	assert.Equal(t, provider.DefaultParams().MaxRecoveryAttempts, providers[0].Params.MaxRecoveryAttempts)
}

func TestClusterJoin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	token, err := env.client.CreateJoinToken(ctx, time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, token.Token)

	err = env.client.JoinCluster(ctx, client.JoinRequest{NodeID: 2, RaftAddr: "10.0.0.2:7946", APIAddr: "10.0.0.2:8080", Token: "bogus"})
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, client.CodeUnauthorized, apiErr.Code)

	require.NoError(t, env.client.JoinCluster(ctx, client.JoinRequest{NodeID: 2, RaftAddr: "10.0.0.2:7946", APIAddr: "10.0.0.2:8080", Token: token.Token}))

	info, err := env.client.ClusterInfo(ctx)
	require.NoError(t, err)
	assert.True(t, info.IsLeader)
	require.Len(t, info.Managers, 1)
	assert.Equal(t, int64(2), info.Managers[0].ID)
}

func TestRaftApply(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cmd, err := manager.NewCommand(manager.OpSetHAFlag, types.HAFlag{Scope: types.HAScopeZone, ID: "z1"})
	require.NoError(t, err)

	index, err := env.client.ApplyCommand(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), index)
	require.Len(t, env.cluster.applied, 1)
	assert.Equal(t, manager.OpSetHAFlag, env.cluster.applied[0].Op)
}

func TestLeaderOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.cluster.setLeader("10.0.0.1:7946")
	_, err := env.client.ApplyCommand(ctx, manager.Command{Op: manager.OpSetHAFlag})
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusMisdirectedRequest, apiErr.StatusCode)
	assert.ErrorIs(t, err, raft.ErrNotLeader)

	env.cluster.setLeader("")
	_, err = env.client.CreateJoinToken(ctx, time.Hour)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
}

func TestProbeRoutes(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(NewServer(env.cluster, nil).Handler())
	defer ts.Close()

	for _, path := range []string{"/live", "/metrics"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}
