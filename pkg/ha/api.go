package ha

import (
	"errors"
	"fmt"

	"github.com/cuemby/warden/pkg/counter"
	"github.com/cuemby/warden/pkg/hastate"
	"github.com/cuemby/warden/pkg/provider"
	"github.com/cuemby/warden/pkg/storage"
	"github.com/cuemby/warden/pkg/types"
	"github.com/google/uuid"
)

// ConfigureProvider assigns an HA provider to a resource. A new config is
// owned by this node and starts Disabled until HA is enabled for it.
func (m *Manager) ConfigureProvider(resourceID string, resourceType types.ResourceType, providerName string) (*types.HAConfig, error) {
	resource, err := m.store.GetResource(resourceType, resourceID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown resource %s", ErrInvalidParameter, types.Key(resourceType, resourceID))
		}
		return nil, fmt.Errorf("failed to look up resource: %w", err)
	}
	if resource.Removed {
		return nil, fmt.Errorf("%w: resource %s has been removed", ErrInvalidParameter, resource.Key())
	}

	p, ok := m.providers.Get(providerName)
	if !ok {
		return nil, fmt.Errorf("%w: unknown HA provider %q", ErrInvalidParameter, providerName)
	}
	if p.ResourceType() != resource.Type || p.ResourceSubType() != resource.SubType {
		return nil, fmt.Errorf("%w: provider %q manages %s/%s, resource %s is %s/%s",
			ErrInvalidParameter, providerName,
			p.ResourceType(), p.ResourceSubType(),
			resource.ID, resource.Type, resource.SubType)
	}

	existing, err := m.store.GetHAConfig(resourceType, resourceID)
	switch {
	case err == nil:
		return m.machine.Update(existing.ResourceType, existing.ResourceID, func(c *types.HAConfig) bool {
			if c.ProviderKey == providerName {
				return false
			}
			c.ProviderKey = providerName
			return true
		})
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("failed to load HA config: %w", err)
	}

	state, err := hastate.InitialState(types.HAEventDisabled)
	if err != nil {
		return nil, err
	}
	owner := m.nodeID
	now := m.clock.Now()
	cfg := &types.HAConfig{
		ID:           uuid.New().String(),
		ResourceID:   resourceID,
		ResourceType: resourceType,
		State:        state,
		Enabled:      false,
		ProviderKey:  providerName,
		OwnerNodeID:  &owner,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.store.CreateHAConfig(cfg); err != nil {
		return nil, fmt.Errorf("failed to create HA config: %w", err)
	}

	m.logger.Info().
		Str("resource_id", resourceID).
		Str("provider", providerName).
		Msg("HA provider configured")
	return cfg, nil
}

// EnableHA switches HA on for one resource and evaluates it right away
func (m *Manager) EnableHA(resourceID string, resourceType types.ResourceType) (*types.HAConfig, error) {
	cfg, err := m.setEnabled(resourceID, resourceType, true)
	if err != nil {
		return nil, err
	}
	if cfg.OwnedBy(m.nodeID) {
		if resource := m.validateAndFindResource(cfg); resource != nil {
			m.validateAndFindProvider(cfg, resource)
		}
	}
	return cfg, nil
}

// DisableHA switches HA off for one resource. The owning node forces
// Disabled and drops the counter immediately; calling it twice is harmless.
func (m *Manager) DisableHA(resourceID string, resourceType types.ResourceType) (*types.HAConfig, error) {
	cfg, err := m.setEnabled(resourceID, resourceType, false)
	if err != nil {
		return nil, err
	}
	if cfg.OwnedBy(m.nodeID) {
		if err := m.disable(cfg); err != nil {
			return nil, fmt.Errorf("failed to disable HA: %w", err)
		}
	}
	return cfg, nil
}

func (m *Manager) setEnabled(resourceID string, resourceType types.ResourceType, enabled bool) (*types.HAConfig, error) {
	if _, err := m.store.GetHAConfig(resourceType, resourceID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: no HA provider configured for %s", ErrInvalidParameter, types.Key(resourceType, resourceID))
		}
		return nil, fmt.Errorf("failed to load HA config: %w", err)
	}

	cfg, err := m.machine.Update(resourceType, resourceID, func(c *types.HAConfig) bool {
		if c.Enabled == enabled {
			return false
		}
		c.Enabled = enabled
		return true
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// EnableCluster switches HA on for a cluster
func (m *Manager) EnableCluster(clusterID string) error {
	return m.setScope(types.HAScopeCluster, clusterID, true)
}

// DisableCluster switches HA off for a cluster and disables every config in it
func (m *Manager) DisableCluster(clusterID string) error {
	return m.setScope(types.HAScopeCluster, clusterID, false)
}

// EnableZone switches HA on for a zone
func (m *Manager) EnableZone(zoneID string) error {
	return m.setScope(types.HAScopeZone, zoneID, true)
}

// DisableZone switches HA off for a zone and disables every config in it
func (m *Manager) DisableZone(zoneID string) error {
	return m.setScope(types.HAScopeZone, zoneID, false)
}

func (m *Manager) setScope(scope types.HAScope, id string, enabled bool) error {
	if id == "" {
		return fmt.Errorf("%w: %s id is required", ErrInvalidParameter, scope)
	}
	if err := m.store.SetHAEnabled(scope, id, enabled); err != nil {
		return fmt.Errorf("failed to set %s HA flag: %w", scope, err)
	}

	var (
		resources []*types.Resource
		err       error
	)
	if scope == types.HAScopeZone {
		resources, err = m.store.ListResourcesByZone(id)
	} else {
		resources, err = m.store.ListResourcesByCluster(id)
	}
	if err != nil {
		return fmt.Errorf("failed to list resources in %s %s: %w", scope, id, err)
	}

	logger := m.logger.With().Str("scope", string(scope)).Str("scope_id", id).Logger()
	logger.Info().Bool("enabled", enabled).Int("resources", len(resources)).Msg("HA switch changed")

	for _, resource := range resources {
		configs, err := m.store.ListHAConfigsByResource(resource.ID, resource.Type)
		if err != nil {
			logger.Error().Err(err).Str("resource_id", resource.ID).Msg("Failed to list HA configs")
			continue
		}
		for _, cfg := range configs {
			if !cfg.OwnedBy(m.nodeID) {
				continue
			}
			if enabled {
				m.validateAndFindResource(cfg)
				continue
			}
			if cfg.State != types.HAStateDisabled {
				m.TransitionHAState(types.HAEventDisabled, cfg)
			}
			m.counters.Purge(cfg.ResourceType, cfg.ResourceID)
		}
	}
	return nil
}

// ListHAConfigs returns the HA configs of one resource, or of every resource
// when resourceID is empty. An empty resourceType matches all types.
func (m *Manager) ListHAConfigs(resourceID string, resourceType types.ResourceType) ([]*types.HAConfig, error) {
	if resourceID != "" {
		return m.store.ListHAConfigsByResource(resourceID, resourceType)
	}

	configs, err := m.store.ListHAConfigs()
	if err != nil {
		return nil, err
	}
	if resourceType == "" {
		return configs, nil
	}
	filtered := make([]*types.HAConfig, 0, len(configs))
	for _, cfg := range configs {
		if cfg.ResourceType == resourceType {
			filtered = append(filtered, cfg)
		}
	}
	return filtered, nil
}

// ListProviders returns the registered providers for a resource type, or all
// of them when resourceType is empty
func (m *Manager) ListProviders(resourceType types.ResourceType) []provider.HAProvider {
	return m.providers.List(resourceType)
}

// ReportHealth injects an external liveness verdict, for example from a
// legacy investigator, as if a health check had completed
func (m *Manager) ReportHealth(resourceID string, resourceType types.ResourceType, healthy bool) error {
	cfg, err := m.store.GetHAConfig(resourceType, resourceID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: no HA config for %s", ErrInvalidParameter, types.Key(resourceType, resourceID))
		}
		return fmt.Errorf("failed to load HA config: %w", err)
	}
	if !cfg.OwnedBy(m.nodeID) {
		return ErrNotOwner
	}

	resource := m.validateAndFindResource(cfg)
	if resource == nil {
		return nil
	}
	if m.validateAndFindProvider(cfg, resource) == nil {
		return nil
	}
	m.onHealthResult(resourceType, resourceID, healthy)
	return nil
}

// CounterSnapshot returns the in-memory bookkeeping of a resource, if any
func (m *Manager) CounterSnapshot(resourceType types.ResourceType, resourceID string) (counter.Snapshot, bool) {
	c, ok := m.counters.Lookup(resourceType, resourceID)
	if !ok {
		return counter.Snapshot{}, false
	}
	return c.Snapshot(), true
}
