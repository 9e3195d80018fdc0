package ha

import (
	"testing"
	"time"

	"github.com/cuemby/warden/pkg/dispatch"
	"github.com/cuemby/warden/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweep_EndToEndRecovery(t *testing.T) {
	env := newTestEnv(t)
	m := env.newManager(t, 1, dispatchInline)
	env.addHost(t, "host-1", "c1", "z1")

	_, err := m.ConfigureProvider("host-1", types.ResourceTypeHost, testProvider)
	require.NoError(t, err)
	_, err = m.EnableHA("host-1", types.ResourceTypeHost)
	require.NoError(t, err)
	require.Equal(t, types.HAStateAvailable, env.state(t, "host-1"))

	suspectAt := env.clock.Now()
	require.NoError(t, m.ReportHealth("host-1", types.ResourceTypeHost, false))
	require.Equal(t, types.HAStateSuspect, env.state(t, "host-1"))
	env.provider.set(func(f *fakeProvider) { f.healthy = false })

	// One passing activity sample is not enough for a verdict
	require.NoError(t, m.Sweep())
	assert.Equal(t, types.HAStateSuspect, env.state(t, "host-1"))

	// Activity check interval has not elapsed
	require.NoError(t, m.Sweep())
	assert.Equal(t, types.HAStateSuspect, env.state(t, "host-1"))

	// Second passing sample: the host still shows activity
	env.clock.Step(31 * time.Second)
	require.NoError(t, m.Sweep())
	assert.Equal(t, types.HAStateDegraded, env.state(t, "host-1"))

	require.NoError(t, m.Sweep())
	assert.Equal(t, types.HAStateDegraded, env.state(t, "host-1"))

	// Degraded long enough to look again
	env.clock.Step(61 * time.Second)
	require.NoError(t, m.Sweep())
	assert.Equal(t, types.HAStateSuspect, env.state(t, "host-1"))

	// The host went quiet
	env.provider.set(func(f *fakeProvider) { f.active = false })
	require.NoError(t, m.Sweep())
	assert.Equal(t, types.HAStateSuspect, env.state(t, "host-1"))

	env.clock.Step(31 * time.Second)
	require.NoError(t, m.Sweep())
	assert.Equal(t, types.HAStateRecovered, env.state(t, "host-1"))
	assert.Equal(t, int32(1), env.provider.recoverCalls.Load())
	env.provider.set(func(f *fakeProvider) { f.healthy = true })

	// Recovery wait period
	require.NoError(t, m.Sweep())
	assert.Equal(t, types.HAStateRecovered, env.state(t, "host-1"))

	env.clock.Step(121 * time.Second)
	require.NoError(t, m.Sweep())
	assert.Equal(t, types.HAStateAvailable, env.state(t, "host-1"))

	snap, ok := m.CounterSnapshot(types.ResourceTypeHost, "host-1")
	require.True(t, ok)
	assert.Zero(t, snap.RecoveryAttemptCount)
	assert.True(t, snap.RecoveringSince.IsZero())
	assert.True(t, snap.FirstFailure.IsZero())
	assert.False(t, snap.RecoveryInFlight)

	env.provider.mu.Lock()
	assert.Equal(t, suspectAt, env.provider.activitySince)
	assert.Equal(t, 4, env.provider.activityQueries)
	env.provider.mu.Unlock()

	assert.Equal(t, []types.HAState{
		types.HAStateAvailable,
		types.HAStateSuspect,
		types.HAStateChecking,
		types.HAStateSuspect,
		types.HAStateChecking,
		types.HAStateDegraded,
		types.HAStateSuspect,
		types.HAStateChecking,
		types.HAStateSuspect,
		types.HAStateChecking,
		types.HAStateRecovering,
		types.HAStateRecovered,
		types.HAStateAvailable,
	}, env.events.states())
}

func TestSweep_RecoveryCeilingFencesResource(t *testing.T) {
	env := newTestEnv(t)
	m := env.newManager(t, 1, dispatchInline)
	env.addHost(t, "host-1", "c1", "z1")
	env.seedConfig(t, "host-1", types.HAStateRecovering, 1)
	env.provider.set(func(f *fakeProvider) {
		f.recoverOK = false
		f.healthy = false
	})

	// Two failed attempts
	require.NoError(t, m.Sweep())
	require.NoError(t, m.Sweep())
	assert.Equal(t, types.HAStateRecovering, env.state(t, "host-1"))
	assert.Equal(t, int32(2), env.provider.recoverCalls.Load())

	// Ceiling reached: fence instead of retrying
	require.NoError(t, m.Sweep())
	assert.Equal(t, types.HAStateFenced, env.state(t, "host-1"))
	assert.Equal(t, int32(2), env.provider.recoverCalls.Load())
	assert.Equal(t, int32(1), env.provider.fenceCalls.Load())
	assert.Equal(t, int32(1), env.provider.subFenceCalls.Load())

	require.NoError(t, m.Sweep())
	assert.Equal(t, types.HAStateFenced, env.state(t, "host-1"))
	assert.Equal(t, int32(2), env.provider.recoverCalls.Load())

	env.events.mu.Lock()
	var got []string
	for _, e := range env.events.events {
		got = append(got, string(e.Type))
	}
	env.events.mu.Unlock()
	assert.Equal(t, []string{"ha.fencing", "ha.fenced"}, got)
}

func TestSweep_FenceRetriedAfterFailure(t *testing.T) {
	env := newTestEnv(t)
	m := env.newManager(t, 1, dispatchInline)
	env.addHost(t, "host-1", "c1", "z1")
	env.seedConfig(t, "host-1", types.HAStateFencing, 1)
	env.provider.set(func(f *fakeProvider) { f.fenceOK = false })

	require.NoError(t, m.Sweep())
	assert.Equal(t, types.HAStateFencing, env.state(t, "host-1"))
	assert.Equal(t, int32(1), env.provider.fenceCalls.Load())
	assert.Zero(t, env.provider.subFenceCalls.Load())

	env.provider.set(func(f *fakeProvider) { f.fenceOK = true })
	require.NoError(t, m.Sweep())
	assert.Equal(t, types.HAStateFenced, env.state(t, "host-1"))
	assert.Equal(t, int32(1), env.provider.subFenceCalls.Load())

	// A fenced host that answers again passes through Ineligible and, with
	// an eligible provider, returns to Available on the next sweep
	require.NoError(t, m.Sweep())
	assert.Equal(t, types.HAStateIneligible, env.state(t, "host-1"))
	_, ok := m.CounterSnapshot(types.ResourceTypeHost, "host-1")
	assert.False(t, ok)

	require.NoError(t, m.Sweep())
	assert.Equal(t, types.HAStateAvailable, env.state(t, "host-1"))
}

func TestSweep_ResumesStrandedActivityCheck(t *testing.T) {
	env := newTestEnv(t)
	m := env.newManager(t, 1, dispatchInline)
	env.addHost(t, "host-1", "c1", "z1")

	// Left in Checking with no task behind it, as after a restart
	env.seedConfig(t, "host-1", types.HAStateChecking, 1)
	env.provider.set(func(f *fakeProvider) {
		f.healthy = false
		f.active = false
	})

	require.NoError(t, m.Sweep())
	assert.Equal(t, 1, env.provider.queries())
	assert.Equal(t, types.HAStateSuspect, env.state(t, "host-1"))

	env.clock.Step(10 * time.Minute)
	require.NoError(t, m.Sweep())
	assert.Equal(t, 2, env.provider.queries())
	assert.Equal(t, types.HAStateRecovered, env.state(t, "host-1"))
	assert.Equal(t, int32(1), env.provider.recoverCalls.Load())
}

func TestSweep_ActivityCheckNotDuplicated(t *testing.T) {
	env := newTestEnv(t)
	d := dispatch.NewDispatcher(dispatch.DefaultConfig())
	t.Cleanup(func() { _ = d.Stop(time.Second) })

	m := env.newManager(t, 1, d)
	env.addHost(t, "host-1", "c1", "z1")
	env.seedConfig(t, "host-1", types.HAStateChecking, 1)

	gate := make(chan struct{})
	env.provider.set(func(f *fakeProvider) { f.activityGate = gate })

	require.NoError(t, m.Sweep())
	require.Eventually(t, func() bool {
		return env.provider.queries() == 1
	}, time.Second, 5*time.Millisecond)

	// Running check is left alone
	require.NoError(t, m.Sweep())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, env.provider.queries())

	snap, ok := m.CounterSnapshot(types.ResourceTypeHost, "host-1")
	require.True(t, ok)
	assert.True(t, snap.ActivityInFlight)

	// Past its timeout the check is presumed lost and replaced
	env.clock.Step(2 * time.Second)
	require.NoError(t, m.Sweep())
	require.Eventually(t, func() bool {
		return env.provider.queries() == 2
	}, time.Second, 5*time.Millisecond)

	close(gate)
	assert.Eventually(t, func() bool {
		cfg, err := env.store.GetHAConfig(types.ResourceTypeHost, "host-1")
		return err == nil && cfg.State == types.HAStateSuspect
	}, time.Second, 5*time.Millisecond)
}

func TestSweep_HealthFailureStartsActivityCheckSameSweep(t *testing.T) {
	env := newTestEnv(t)
	m := env.newManager(t, 1, dispatchInline)
	env.addHost(t, "host-1", "c1", "z1")
	env.seedConfig(t, "host-1", types.HAStateAvailable, 1)
	env.provider.set(func(f *fakeProvider) { f.healthy = false })

	// The failed health check moves the host to Suspect before the interval
	// checks run, so they act on Suspect rather than the Available snapshot
	require.NoError(t, m.Sweep())
	assert.Equal(t, 1, env.provider.queries())
	assert.Equal(t, types.HAStateSuspect, env.state(t, "host-1"))

	assert.Equal(t, []types.HAState{
		types.HAStateSuspect,
		types.HAStateChecking,
		types.HAStateSuspect,
	}, env.events.states())
}

func TestSweep_RecoveryMutualExclusion(t *testing.T) {
	env := newTestEnv(t)
	d := dispatch.NewDispatcher(dispatch.DefaultConfig())
	t.Cleanup(func() { _ = d.Stop(time.Second) })

	m := env.newManager(t, 1, d)
	env.addHost(t, "host-1", "c1", "z1")
	cfg := env.seedConfig(t, "host-1", types.HAStateRecovering, 1)

	gate := make(chan struct{})
	env.provider.set(func(f *fakeProvider) { f.recoverGate = gate })

	require.NoError(t, m.Sweep())
	require.Eventually(t, func() bool {
		return env.provider.recoverCalls.Load() == 1
	}, time.Second, 5*time.Millisecond)

	// Neither the sweep nor a direct retry starts a second recovery
	require.NoError(t, m.Sweep())
	assert.True(t, m.TransitionHAState(types.HAEventRetryRecovery, cfg))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), env.provider.recoverCalls.Load())

	snap, ok := m.CounterSnapshot(types.ResourceTypeHost, "host-1")
	require.True(t, ok)
	assert.True(t, snap.RecoveryInFlight)
	assert.Equal(t, 1, snap.RecoveryAttemptCount)

	close(gate)
	assert.Eventually(t, func() bool {
		cfg, err := env.store.GetHAConfig(types.ResourceTypeHost, "host-1")
		return err == nil && cfg.State == types.HAStateRecovered
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), env.provider.recoverCalls.Load())
}

func TestSweep_OwnershipExclusivity(t *testing.T) {
	env := newTestEnv(t)
	owner := env.newManager(t, 1, dispatchInline)
	other := env.newManager(t, 2, dispatchInline)
	env.addHost(t, "host-1", "c1", "z1")
	env.seedConfig(t, "host-1", types.HAStateSuspect, 1)
	env.provider.set(func(f *fakeProvider) { f.healthy = false })

	before, err := env.store.GetHAConfig(types.ResourceTypeHost, "host-1")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, other.Sweep())
		env.clock.Step(time.Minute)
	}
	after, err := env.store.GetHAConfig(types.ResourceTypeHost, "host-1")
	require.NoError(t, err)
	assert.Equal(t, before.State, after.State)
	assert.Equal(t, before.UpdateCount, after.UpdateCount)
	_, ok := other.CounterSnapshot(types.ResourceTypeHost, "host-1")
	assert.False(t, ok)

	assert.ErrorIs(t, other.ReportHealth("host-1", types.ResourceTypeHost, true), ErrNotOwner)

	require.NoError(t, owner.Sweep())
	assert.Equal(t, int32(0), env.provider.recoverCalls.Load())
	assert.NotEqual(t, before.UpdateCount, env.mustConfig(t, "host-1").UpdateCount)
}

func TestSweep_Gates(t *testing.T) {
	env := newTestEnv(t)
	m := env.newManager(t, 1, dispatchInline)
	host := env.addHost(t, "host-1", "c1", "z1")
	env.seedConfig(t, "host-1", types.HAStateAvailable, 1)

	env.provider.set(func(f *fakeProvider) { f.eligible = false })
	require.NoError(t, m.Sweep())
	assert.Equal(t, types.HAStateIneligible, env.state(t, "host-1"))

	env.provider.set(func(f *fakeProvider) { f.eligible = true })
	require.NoError(t, m.Sweep())
	assert.Equal(t, types.HAStateAvailable, env.state(t, "host-1"))

	host.Removed = true
	require.NoError(t, env.store.PutResource(host))
	require.NoError(t, m.Sweep())

	cfg := env.mustConfig(t, "host-1")
	assert.Equal(t, types.HAStateDisabled, cfg.State)
	assert.False(t, cfg.Enabled)
}

func TestSweep_ContinuesPastIneligibleConfig(t *testing.T) {
	env := newTestEnv(t)
	m := env.newManager(t, 1, dispatchInline)
	env.addHost(t, "host-1", "c1", "z1")
	env.seedConfig(t, "host-1", types.HAStateAvailable, 1)

	// Unknown provider key: the config is marked Ineligible, others continue
	env.addHost(t, "host-2", "c1", "z1")
	broken := env.seedConfig(t, "host-2", types.HAStateAvailable, 1)
	broken.ProviderKey = "missing"
	require.NoError(t, env.store.PutHAConfig(broken))

	env.provider.set(func(f *fakeProvider) { f.healthy = false })
	require.NoError(t, m.Sweep())

	assert.Equal(t, types.HAStateSuspect, env.state(t, "host-1"))
	assert.Equal(t, types.HAStateIneligible, env.state(t, "host-2"))
}

func (e *testEnv) mustConfig(t *testing.T, resourceID string) *types.HAConfig {
	t.Helper()
	cfg, err := e.store.GetHAConfig(types.ResourceTypeHost, resourceID)
	require.NoError(t, err)
	return cfg
}
