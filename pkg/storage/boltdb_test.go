package storage

import (
	"errors"
	"testing"

	"github.com/cuemby/warden/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testConfig(id string) *types.HAConfig {
	return &types.HAConfig{
		ID:           "cfg-" + id,
		ResourceID:   id,
		ResourceType: types.ResourceTypeHost,
		State:        types.HAStateAvailable,
		Enabled:      true,
		ProviderKey:  "kvmhaprovider",
	}
}

func TestHAConfigCreateAndGet(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.CreateHAConfig(testConfig("host-1")))

	cfg, err := store.GetHAConfig(types.ResourceTypeHost, "host-1")
	require.NoError(t, err)
	assert.Equal(t, types.HAStateAvailable, cfg.State)
	assert.Equal(t, "kvmhaprovider", cfg.ProviderKey)

	err = store.CreateHAConfig(testConfig("host-1"))
	assert.True(t, errors.Is(err, ErrAlreadyExists))

	_, err = store.GetHAConfig(types.ResourceTypeHost, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestUpdateHAConfigCompareAndSet(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreateHAConfig(testConfig("host-1")))

	first, err := store.GetHAConfig(types.ResourceTypeHost, "host-1")
	require.NoError(t, err)
	second, err := store.GetHAConfig(types.ResourceTypeHost, "host-1")
	require.NoError(t, err)

	first.State = types.HAStateSuspect
	require.NoError(t, store.UpdateHAConfig(first, 0))
	assert.Equal(t, int64(1), first.UpdateCount)

	// A writer holding the old version loses
	second.State = types.HAStateDisabled
	err = store.UpdateHAConfig(second, 0)
	assert.True(t, errors.Is(err, ErrConflict))
	assert.Equal(t, int64(0), second.UpdateCount)

	stored, err := store.GetHAConfig(types.ResourceTypeHost, "host-1")
	require.NoError(t, err)
	assert.Equal(t, types.HAStateSuspect, stored.State)
	assert.Equal(t, int64(1), stored.UpdateCount)
}

func TestUpdateHAConfigMissing(t *testing.T) {
	store := newTestStore(t)
	err := store.UpdateHAConfig(testConfig("ghost"), 0)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListHAConfigsByResource(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreateHAConfig(testConfig("host-1")))
	require.NoError(t, store.CreateHAConfig(testConfig("host-2")))

	configs, err := store.ListHAConfigsByResource("host-1", types.ResourceTypeHost)
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, "host-1", configs[0].ResourceID)

	configs, err = store.ListHAConfigsByResource("host-2", "")
	require.NoError(t, err)
	assert.Len(t, configs, 1)

	all, err := store.ListHAConfigs()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestResourcesByClusterAndZone(t *testing.T) {
	store := newTestStore(t)

	resources := []*types.Resource{
		{ID: "h1", Type: types.ResourceTypeHost, ClusterID: "c1", ZoneID: "z1"},
		{ID: "h2", Type: types.ResourceTypeHost, ClusterID: "c1", ZoneID: "z1"},
		{ID: "h3", Type: types.ResourceTypeHost, ClusterID: "c2", ZoneID: "z2"},
	}
	for _, r := range resources {
		require.NoError(t, store.PutResource(r))
	}

	byCluster, err := store.ListResourcesByCluster("c1")
	require.NoError(t, err)
	assert.Len(t, byCluster, 2)

	byZone, err := store.ListResourcesByZone("z2")
	require.NoError(t, err)
	require.Len(t, byZone, 1)
	assert.Equal(t, "h3", byZone[0].ID)

	r, err := store.GetResource(types.ResourceTypeHost, "h2")
	require.NoError(t, err)
	assert.Equal(t, "c1", r.ClusterID)
}

func TestHAFlagsDefaultEnabled(t *testing.T) {
	store := newTestStore(t)

	enabled, err := store.IsHAEnabled(types.HAScopeZone, "z1")
	require.NoError(t, err)
	assert.True(t, enabled)

	require.NoError(t, store.SetHAEnabled(types.HAScopeZone, "z1", false))
	enabled, err = store.IsHAEnabled(types.HAScopeZone, "z1")
	require.NoError(t, err)
	assert.False(t, enabled)

	// Same id under another scope is independent
	enabled, err = store.IsHAEnabled(types.HAScopeCluster, "z1")
	require.NoError(t, err)
	assert.True(t, enabled)

	flags, err := store.ListHAFlags()
	require.NoError(t, err)
	assert.Len(t, flags, 1)
}

func TestManagers(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.PutManager(&types.ManagerNode{ID: 1, RaftAddr: "10.0.0.1:7946", APIAddr: "10.0.0.1:8080"}))

	node, err := store.GetManager(1)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:8080", node.APIAddr)

	_, err = store.GetManager(2)
	assert.True(t, errors.Is(err, ErrNotFound))

	nodes, err := store.ListManagers()
	require.NoError(t, err)
	assert.Len(t, nodes, 1)
}
