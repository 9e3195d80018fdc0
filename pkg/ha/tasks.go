package ha

import (
	"context"
	"errors"
	"fmt"

	"github.com/cuemby/warden/pkg/counter"
	"github.com/cuemby/warden/pkg/dispatch"
	"github.com/cuemby/warden/pkg/provider"
	"github.com/cuemby/warden/pkg/types"
)

var (
	errUnhealthy      = errors.New("health check failed")
	errNoActivity     = errors.New("no activity observed")
	errRecoveryFailed = errors.New("recovery failed")
	errFenceFailed    = errors.New("fence failed")
)

func taskID(kind dispatch.Kind, cfg *types.HAConfig) string {
	return fmt.Sprintf("%s/%s", kind, cfg.Key())
}

func (m *Manager) submit(kind dispatch.Kind, task dispatch.Task) {
	if _, err := m.dispatcher.Submit(kind, task); err != nil {
		m.logger.Warn().Err(err).Str("task_id", task.ID).Msg("Failed to submit HA task")
	}
}

func (m *Manager) submitHealthCheck(cfg *types.HAConfig, resource *types.Resource, p provider.HAProvider) {
	resourceType, resourceID := cfg.ResourceType, cfg.ResourceID
	m.submit(dispatch.KindHealthCheck, dispatch.Task{
		ID:      taskID(dispatch.KindHealthCheck, cfg),
		Timeout: p.Params(resource).HealthCheckTimeout,
		Fn: func(ctx context.Context) error {
			healthy, err := p.IsHealthy(ctx, resource)
			if err != nil {
				return err
			}
			if !healthy {
				return errUnhealthy
			}
			return nil
		},
		OnComplete: func(err error) {
			m.onHealthResult(resourceType, resourceID, err == nil)
		},
	})
}

// onHealthResult feeds a liveness verdict into the state machine
func (m *Manager) onHealthResult(resourceType types.ResourceType, resourceID string, healthy bool) {
	cfg, ok := m.reload(resourceType, resourceID)
	if !ok {
		return
	}

	c := m.counters.Get(resourceType, resourceID)
	if healthy {
		c.ClearFirstFailure()
		m.TransitionHAState(types.HAEventHealthCheckPassed, cfg)
		return
	}
	c.MarkFirstFailure()
	m.TransitionHAState(types.HAEventHealthCheckFailed, cfg)
}

// submitActivityCheck samples resource activity unless a check is already
// running. A check older than its own timeout is presumed lost and replaced.
func (m *Manager) submitActivityCheck(cfg *types.HAConfig, resource *types.Resource, p provider.HAProvider) {
	params := p.Params(resource)
	c := m.counters.Get(cfg.ResourceType, cfg.ResourceID)

	future := dispatch.NewFuture()
	if !c.BeginActivityCheck(future, params.ActivityCheckTimeout) {
		m.logger.Debug().Str("resource_id", cfg.ResourceID).Msg("Activity check already in progress")
		return
	}

	since := c.SuspectSince()
	resourceType, resourceID := cfg.ResourceType, cfg.ResourceID

	m.submit(dispatch.KindActivityCheck, dispatch.Task{
		ID:      taskID(dispatch.KindActivityCheck, cfg),
		Timeout: params.ActivityCheckTimeout,
		Future:  future,
		Fn: func(ctx context.Context) error {
			active, err := p.HasActivity(ctx, resource, since)
			if err != nil {
				return err
			}
			if !active {
				return errNoActivity
			}
			return nil
		},
		OnComplete: func(err error) {
			m.onActivityResult(resourceType, resourceID, resource, p, err != nil)
		},
	})
}

// onActivityResult records one activity sample. Until enough samples exist
// the resource goes back to Suspect; after that the failure ratio decides
// between Degraded and Recovering and the samples start over.
func (m *Manager) onActivityResult(resourceType types.ResourceType, resourceID string, resource *types.Resource, p provider.HAProvider, failed bool) {
	cfg, ok := m.reload(resourceType, resourceID)
	if !ok {
		return
	}

	params := p.Params(resource)
	c := m.counters.Get(resourceType, resourceID)
	c.IncrActivityCounts(failed)

	event := types.HAEventTooFewActivityCheckSamples
	if c.ActivityCheckCount() >= params.MaxActivityChecks {
		event = types.HAEventActivityCheckFailureUnderThresholdRatio
		if c.ActivityFailureRatio() > params.ActivityCheckFailureRatio {
			event = types.HAEventActivityCheckFailureOverThresholdRatio
		}
		c.ResetActivityCounts()
	}

	m.logger.Debug().
		Str("resource_id", resourceID).
		Bool("failed", failed).
		Str("event", string(event)).
		Msg("Activity check completed")
	m.TransitionHAState(event, cfg)
}

// submitRecovery starts a recovery attempt unless one is running. Once the
// attempt ceiling is reached the resource is escalated to fencing.
func (m *Manager) submitRecovery(cfg *types.HAConfig, resource *types.Resource, p provider.HAProvider) {
	params := p.Params(resource)
	c := m.counters.Get(cfg.ResourceType, cfg.ResourceID)

	future := dispatch.NewFuture()
	switch c.BeginRecovery(future, params.MaxRecoveryAttempts) {
	case counter.RecoveryInFlight:
		m.logger.Debug().Str("resource_id", cfg.ResourceID).Msg("Recovery already in progress")
		return
	case counter.RecoveryThresholdExceeded:
		m.logger.Warn().
			Str("resource_id", cfg.ResourceID).
			Int("attempts", c.RecoveryAttempts()).
			Msg("Recovery attempts exhausted, fencing resource")
		m.TransitionHAState(types.HAEventRecoveryOperationThresholdExceeded, cfg)
		return
	}

	resourceType, resourceID := cfg.ResourceType, cfg.ResourceID
	m.logger.Info().
		Str("resource_id", resourceID).
		Int("attempt", c.RecoveryAttempts()).
		Msg("Recovering resource")

	m.submit(dispatch.KindRecovery, dispatch.Task{
		ID:      taskID(dispatch.KindRecovery, cfg),
		Timeout: params.RecoveryTimeout,
		Future:  future,
		Fn: func(ctx context.Context) error {
			ok, err := p.Recover(ctx, resource)
			if err != nil {
				return err
			}
			if !ok {
				return errRecoveryFailed
			}
			return nil
		},
		OnComplete: func(err error) {
			if err != nil {
				// Stays Recovering; the sweep retries
				return
			}
			if cfg, ok := m.reload(resourceType, resourceID); ok {
				m.TransitionHAState(types.HAEventRecovered, cfg)
			}
		},
	})
}

// submitFence starts the fence operation unless one is running
func (m *Manager) submitFence(cfg *types.HAConfig, resource *types.Resource, p provider.HAProvider) {
	params := p.Params(resource)
	c := m.counters.Get(cfg.ResourceType, cfg.ResourceID)

	future := dispatch.NewFuture()
	if !c.BeginFence(future) {
		m.logger.Debug().Str("resource_id", cfg.ResourceID).Msg("Fence already in progress")
		return
	}

	resourceType, resourceID := cfg.ResourceType, cfg.ResourceID
	m.logger.Warn().Str("resource_id", resourceID).Msg("Fencing resource")

	m.submit(dispatch.KindFence, dispatch.Task{
		ID:      taskID(dispatch.KindFence, cfg),
		Timeout: params.FenceTimeout,
		Future:  future,
		Fn: func(ctx context.Context) error {
			ok, err := p.Fence(ctx, resource)
			if err != nil {
				return err
			}
			if !ok {
				return errFenceFailed
			}
			return nil
		},
		OnComplete: func(err error) {
			if err != nil {
				return
			}
			cfg, ok := m.reload(resourceType, resourceID)
			if !ok || !m.TransitionHAState(types.HAEventFenced, cfg) {
				return
			}

			ctx, cancel := context.WithTimeout(context.Background(), params.FenceTimeout)
			defer cancel()
			if err := p.FenceSubResources(ctx, resource); err != nil {
				m.logger.Warn().Err(err).Str("resource_id", resourceID).Msg("Failed to fence sub-resources")
			}
		},
	})
}
