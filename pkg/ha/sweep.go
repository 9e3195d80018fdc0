package ha

import (
	"fmt"

	"github.com/cuemby/warden/pkg/log"
	"github.com/cuemby/warden/pkg/metrics"
	"github.com/cuemby/warden/pkg/types"
)

// Sweep evaluates every HA config owned by this node once. A failure on one
// config is logged and the sweep moves on to the next.
func (m *Manager) Sweep() error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.HASweepDuration)

	configs, err := m.store.ListHAConfigs()
	if err != nil {
		metrics.HASweepErrorsTotal.Inc()
		return fmt.Errorf("failed to list HA configs: %w", err)
	}

	for _, cfg := range configs {
		if err := m.sweepOne(cfg); err != nil {
			metrics.HASweepErrorsTotal.Inc()
			logger := log.WithResource(m.logger, string(cfg.ResourceType), cfg.ResourceID)
			logger.Error().Err(err).Msg("Failed to evaluate HA config")
		}
	}
	return nil
}

func (m *Manager) sweepOne(cfg *types.HAConfig) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	m.sweepConfig(cfg)
	return nil
}

func (m *Manager) sweepConfig(cfg *types.HAConfig) {
	if !cfg.OwnedBy(m.nodeID) {
		return
	}

	resource := m.validateAndFindResource(cfg)
	if resource == nil {
		return
	}
	p := m.validateAndFindProvider(cfg, resource)
	if p == nil {
		return
	}

	switch cfg.State {
	case types.HAStateAvailable, types.HAStateSuspect, types.HAStateDegraded, types.HAStateFenced:
		m.submitHealthCheck(cfg, resource, p)

		// A synchronous health result may already have moved the config
		current, ok := m.reload(cfg.ResourceType, cfg.ResourceID)
		if !ok || current.State == types.HAStateIneligible {
			return
		}
		cfg = current
	}

	params := p.Params(resource)
	c := m.counters.Get(cfg.ResourceType, cfg.ResourceID)

	switch cfg.State {
	case types.HAStateChecking:
		// Entry into Checking dispatches the first sample; this picks up a
		// dispatch that failed or was lost with a restart
		m.submitActivityCheck(cfg, resource, p)

	case types.HAStateSuspect:
		if c.CanPerformActivityCheck(params.MaxActivityCheckInterval) {
			m.TransitionHAState(types.HAEventPerformActivityCheck, cfg)
		}

	case types.HAStateDegraded:
		if c.CanRecheckActivity(params.MaxDegradedWait) {
			m.TransitionHAState(types.HAEventPeriodicRecheckResourceActivity, cfg)
		}

	case types.HAStateRecovering:
		if c.RecoveryInProgress() {
			return
		}
		if c.RecoveryAttempts() >= params.MaxRecoveryAttempts {
			m.TransitionHAState(types.HAEventRecoveryOperationThresholdExceeded, cfg)
		} else {
			m.TransitionHAState(types.HAEventRetryRecovery, cfg)
		}

	case types.HAStateRecovered:
		c.MarkRecoveryStarted()
		if c.CanExitRecovery(params.RecoveryWaitTimeout) &&
			m.TransitionHAState(types.HAEventRecoveryWaitPeriodTimeout, cfg) {
			c.MarkRecoveryCompleted()
		}

	case types.HAStateFencing:
		if c.CanAttemptFencing() {
			m.TransitionHAState(types.HAEventRetryFencing, cfg)
		}
	}
}
