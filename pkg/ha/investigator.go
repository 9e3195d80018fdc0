package ha

import (
	"errors"
	"fmt"

	"github.com/cuemby/warden/pkg/storage"
	"github.com/cuemby/warden/pkg/types"
)

// IsEligible is a read-only check for callers that need to know whether a
// resource is under active HA management
func (m *Manager) IsEligible(resource *types.Resource) bool {
	if resource == nil || resource.Removed || !m.scopeEnabled(resource) {
		return false
	}

	cfg, err := m.store.GetHAConfig(resource.Type, resource.ID)
	if err != nil {
		return false
	}
	if !cfg.Enabled {
		return false
	}
	return cfg.State != types.HAStateDisabled && cfg.State != types.HAStateIneligible
}

// IsAlive reports a resource alive unless HA has fenced it
func (m *Manager) IsAlive(resource *types.Resource) (bool, error) {
	cfg, err := m.store.GetHAConfig(resource.Type, resource.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, fmt.Errorf("%w: no HA config for %s", ErrInvalidParameter, resource.Key())
		}
		return false, fmt.Errorf("failed to load HA config: %w", err)
	}
	return cfg.State != types.HAStateFenced, nil
}

// HostStatus maps the HA state of a resource onto the coarse host status
func (m *Manager) HostStatus(resource *types.Resource) types.HostStatus {
	cfg, err := m.store.GetHAConfig(resource.Type, resource.ID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			m.logger.Warn().Err(err).Str("resource_id", resource.ID).Msg("Failed to load HA config")
		}
		return types.HostStatusUnknown
	}

	switch cfg.State {
	case types.HAStateFenced:
		return types.HostStatusDown
	case types.HAStateDegraded, types.HAStateRecovering, types.HAStateFencing:
		return types.HostStatusDisconnected
	default:
		return types.HostStatusUp
	}
}
