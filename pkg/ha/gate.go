package ha

import (
	"errors"

	"github.com/cuemby/warden/pkg/provider"
	"github.com/cuemby/warden/pkg/storage"
	"github.com/cuemby/warden/pkg/types"
)

// validateAndFindResource returns the resource of cfg when HA may run for it.
// Removed resources get HA disabled; configs switched off directly or through
// their zone or cluster are forced to Disabled. A Disabled config whose
// switches are all on is re-enabled.
func (m *Manager) validateAndFindResource(cfg *types.HAConfig) *types.Resource {
	resource, err := m.store.GetResource(cfg.ResourceType, cfg.ResourceID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		m.logger.Error().Err(err).Str("resource_id", cfg.ResourceID).Msg("Failed to look up resource")
		return nil
	}
	if resource == nil || resource.Removed {
		m.logger.Info().Str("resource_id", cfg.ResourceID).Msg("Resource is gone, disabling HA")
		if err := m.disable(cfg); err != nil {
			m.logger.Error().Err(err).Str("resource_id", cfg.ResourceID).Msg("Failed to disable HA for removed resource")
		}
		return nil
	}

	if !cfg.Enabled || !m.scopeEnabled(resource) {
		if cfg.State != types.HAStateDisabled {
			m.TransitionHAState(types.HAEventDisabled, cfg)
		}
		m.counters.Purge(cfg.ResourceType, cfg.ResourceID)
		return nil
	}

	if cfg.State == types.HAStateDisabled && !m.TransitionHAState(types.HAEventEnabled, cfg) {
		return nil
	}
	return resource
}

// validateAndFindProvider returns the provider of cfg when it accepts the
// resource, moving the config in or out of Ineligible as needed
func (m *Manager) validateAndFindProvider(cfg *types.HAConfig, resource *types.Resource) provider.HAProvider {
	p, ok := m.providers.Get(cfg.ProviderKey)
	if !ok || !p.IsEligible(resource) {
		if cfg.State != types.HAStateIneligible {
			m.TransitionHAState(types.HAEventIneligible, cfg)
		}
		return nil
	}

	if cfg.State == types.HAStateIneligible && !m.TransitionHAState(types.HAEventEligible, cfg) {
		return nil
	}
	return p
}

// scopeEnabled reports whether HA is switched on for the zone and cluster of
// a resource. Lookup failures count as switched on; the next sweep rechecks.
func (m *Manager) scopeEnabled(resource *types.Resource) bool {
	if resource.ZoneID != "" {
		enabled, err := m.store.IsHAEnabled(types.HAScopeZone, resource.ZoneID)
		if err != nil {
			m.logger.Warn().Err(err).Str("zone_id", resource.ZoneID).Msg("Failed to read zone HA flag")
		} else if !enabled {
			return false
		}
	}
	if resource.ClusterID != "" {
		enabled, err := m.store.IsHAEnabled(types.HAScopeCluster, resource.ClusterID)
		if err != nil {
			m.logger.Warn().Err(err).Str("cluster_id", resource.ClusterID).Msg("Failed to read cluster HA flag")
		} else if !enabled {
			return false
		}
	}
	return true
}

// disable clears the enabled flag and forces Disabled
func (m *Manager) disable(cfg *types.HAConfig) error {
	updated, err := m.machine.Update(cfg.ResourceType, cfg.ResourceID, func(c *types.HAConfig) bool {
		if !c.Enabled {
			return false
		}
		c.Enabled = false
		return true
	})
	if err != nil {
		return err
	}
	*cfg = *updated

	if cfg.State != types.HAStateDisabled {
		m.TransitionHAState(types.HAEventDisabled, cfg)
	}
	m.counters.Purge(cfg.ResourceType, cfg.ResourceID)
	return nil
}
