package ha

import (
	"testing"

	"github.com/cuemby/warden/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostStatusAndIsAlive(t *testing.T) {
	tests := []struct {
		state  types.HAState
		status types.HostStatus
		alive  bool
	}{
		{types.HAStateAvailable, types.HostStatusUp, true},
		{types.HAStateSuspect, types.HostStatusUp, true},
		{types.HAStateChecking, types.HostStatusUp, true},
		{types.HAStateDegraded, types.HostStatusDisconnected, true},
		{types.HAStateRecovering, types.HostStatusDisconnected, true},
		{types.HAStateRecovered, types.HostStatusUp, true},
		{types.HAStateFencing, types.HostStatusDisconnected, true},
		{types.HAStateFenced, types.HostStatusDown, false},
		{types.HAStateDisabled, types.HostStatusUp, true},
		{types.HAStateIneligible, types.HostStatusUp, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			env := newTestEnv(t)
			m := env.newManager(t, 1, dispatchInline)
			host := env.addHost(t, "host-1", "c1", "z1")
			env.seedConfig(t, "host-1", tt.state, 1)

			assert.Equal(t, tt.status, m.HostStatus(host))
			alive, err := m.IsAlive(host)
			require.NoError(t, err)
			assert.Equal(t, tt.alive, alive)
		})
	}
}

func TestHostStatus_NoConfig(t *testing.T) {
	env := newTestEnv(t)
	m := env.newManager(t, 1, dispatchInline)
	host := env.addHost(t, "host-1", "c1", "z1")

	assert.Equal(t, types.HostStatusUnknown, m.HostStatus(host))
	_, err := m.IsAlive(host)
	assert.ErrorIs(t, err, ErrInvalidParameter)
	assert.False(t, m.IsEligible(host))
}

func TestIsEligible(t *testing.T) {
	env := newTestEnv(t)
	m := env.newManager(t, 1, dispatchInline)
	host := env.addHost(t, "host-1", "c1", "z1")
	cfg := env.seedConfig(t, "host-1", types.HAStateAvailable, 1)
	assert.True(t, m.IsEligible(host))

	cfg.State = types.HAStateIneligible
	require.NoError(t, env.store.PutHAConfig(cfg))
	assert.False(t, m.IsEligible(host))

	cfg.State = types.HAStateAvailable
	cfg.Enabled = false
	require.NoError(t, env.store.PutHAConfig(cfg))
	assert.False(t, m.IsEligible(host))

	cfg.Enabled = true
	require.NoError(t, env.store.PutHAConfig(cfg))
	require.NoError(t, env.store.SetHAEnabled(types.HAScopeCluster, "c1", false))
	assert.False(t, m.IsEligible(host))
}
