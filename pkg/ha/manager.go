package ha

import (
	"errors"
	"fmt"

	"github.com/cuemby/warden/pkg/counter"
	"github.com/cuemby/warden/pkg/dispatch"
	"github.com/cuemby/warden/pkg/hastate"
	"github.com/cuemby/warden/pkg/log"
	"github.com/cuemby/warden/pkg/provider"
	"github.com/cuemby/warden/pkg/types"
	"github.com/rs/zerolog"
	"k8s.io/utils/clock"
)

var (
	// ErrInvalidParameter is returned for bad operator input: unknown
	// resources, unknown providers or a provider that does not fit the resource
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrNotOwner is returned when a signal reaches a node that does not own the config
	ErrNotOwner = errors.New("HA config is owned by another management node")
)

// ConfigStore persists HA configs
type ConfigStore interface {
	CreateHAConfig(cfg *types.HAConfig) error
	GetHAConfig(resourceType types.ResourceType, resourceID string) (*types.HAConfig, error)
	ListHAConfigs() ([]*types.HAConfig, error)
	ListHAConfigsByResource(resourceID string, resourceType types.ResourceType) ([]*types.HAConfig, error)
	UpdateHAConfig(cfg *types.HAConfig, expectedVersion int64) error
}

// ResourceLookup reads managed resources
type ResourceLookup interface {
	GetResource(resourceType types.ResourceType, id string) (*types.Resource, error)
	ListResourcesByCluster(clusterID string) ([]*types.Resource, error)
	ListResourcesByZone(zoneID string) ([]*types.Resource, error)
}

// FlagStore reads and writes zone and cluster HA switches
type FlagStore interface {
	IsHAEnabled(scope types.HAScope, id string) (bool, error)
	SetHAEnabled(scope types.HAScope, id string, enabled bool) error
}

// Store is everything the HA manager needs from persistence
type Store interface {
	ConfigStore
	ResourceLookup
	FlagStore
}

// Dispatcher runs HA tasks
type Dispatcher interface {
	Submit(kind dispatch.Kind, task dispatch.Task) (*dispatch.Future, error)
}

// Config configures a Manager
type Config struct {
	// NodeID identifies this management node for config ownership
	NodeID int64

	Store      Store
	Providers  *provider.Registry
	Dispatcher Dispatcher

	// Events receives audit events; optional
	Events hastate.Publisher

	// Clock defaults to the real clock
	Clock clock.PassiveClock
}

// Manager coordinates fault detection and recovery for the HA configs
// owned by this management node
type Manager struct {
	nodeID     int64
	store      Store
	providers  *provider.Registry
	dispatcher Dispatcher
	machine    *hastate.Machine
	counters   *counter.Registry
	clock      clock.PassiveClock
	logger     zerolog.Logger
}

// NewManager creates an HA manager
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Providers == nil {
		return nil, fmt.Errorf("provider registry is required")
	}
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}

	m := &Manager{
		nodeID:     cfg.NodeID,
		store:      cfg.Store,
		providers:  cfg.Providers,
		dispatcher: cfg.Dispatcher,
		machine:    hastate.NewMachine(cfg.Store, clk),
		counters:   counter.NewRegistry(clk),
		clock:      clk,
		logger:     log.WithComponent("ha-manager").With().Int64("node_id", cfg.NodeID).Logger(),
	}
	m.machine.SetListener(m)
	if cfg.Events != nil {
		m.machine.SetPublisher(cfg.Events)
	}
	return m, nil
}

// NodeID returns the management node id of this manager
func (m *Manager) NodeID() int64 {
	return m.nodeID
}

// TransitionHAState fires event against cfg. Rejected transitions are not
// errors: they are logged at debug and reported as false.
func (m *Manager) TransitionHAState(event types.HAEvent, cfg *types.HAConfig) bool {
	from := cfg.State
	_, err := m.machine.Transition(cfg, event)
	if err == nil {
		return true
	}

	logger := log.WithResource(m.logger, string(cfg.ResourceType), cfg.ResourceID).With().
		Str("state", string(from)).
		Str("event", string(event)).
		Logger()
	if errors.Is(err, hastate.ErrInvalidTransition) {
		logger.Debug().Err(err).Msg("Ignoring HA event")
	} else {
		logger.Error().Err(err).Msg("Failed to apply HA transition")
	}
	return false
}

// PreStateTransition keeps the counter in step with the state being entered.
// It runs under the machine's resource lock, possibly more than once per
// transition, so every step here is idempotent and nothing is dropped.
func (m *Manager) PreStateTransition(cfg *types.HAConfig, from, to types.HAState, event types.HAEvent) {
	if to == types.HAStateDisabled || to == types.HAStateIneligible {
		return
	}

	c := m.counters.Get(cfg.ResourceType, cfg.ResourceID)
	switch {
	case to == types.HAStateDegraded && from != types.HAStateDegraded:
		c.MarkDegraded()
	case from == types.HAStateDegraded && to != types.HAStateDegraded:
		c.ClearDegraded()
	}
	if to == types.HAStateAvailable {
		c.ClearFirstFailure()
	}
}

// PostStateTransition dispatches the work the current state calls for. A
// config that left HA processing loses its counter here, once the new state
// is stored.
func (m *Manager) PostStateTransition(cfg *types.HAConfig, from, to types.HAState, event types.HAEvent) {
	switch to {
	case types.HAStateChecking, types.HAStateRecovering, types.HAStateFencing:
	case types.HAStateDisabled, types.HAStateIneligible:
		m.counters.Purge(cfg.ResourceType, cfg.ResourceID)
		return
	default:
		return
	}

	resource, err := m.store.GetResource(cfg.ResourceType, cfg.ResourceID)
	if err != nil {
		m.logger.Warn().Err(err).Str("resource_id", cfg.ResourceID).Msg("Resource lookup failed, deferring dispatch to next sweep")
		return
	}
	p, ok := m.providers.Get(cfg.ProviderKey)
	if !ok {
		m.logger.Warn().Str("resource_id", cfg.ResourceID).Str("provider", cfg.ProviderKey).Msg("Provider not registered, deferring dispatch to next sweep")
		return
	}

	switch to {
	case types.HAStateChecking:
		m.submitActivityCheck(cfg, resource, p)
	case types.HAStateRecovering:
		m.submitRecovery(cfg, resource, p)
	case types.HAStateFencing:
		m.submitFence(cfg, resource, p)
	}
}

// reload fetches the current row of a config
func (m *Manager) reload(resourceType types.ResourceType, resourceID string) (*types.HAConfig, bool) {
	cfg, err := m.store.GetHAConfig(resourceType, resourceID)
	if err != nil {
		m.logger.Warn().Err(err).
			Str("resource_type", string(resourceType)).
			Str("resource_id", resourceID).
			Msg("Failed to reload HA config")
		return nil, false
	}
	return cfg, true
}
