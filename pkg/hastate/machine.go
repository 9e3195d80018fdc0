package hastate

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cuemby/warden/pkg/events"
	"github.com/cuemby/warden/pkg/log"
	"github.com/cuemby/warden/pkg/metrics"
	"github.com/cuemby/warden/pkg/storage"
	"github.com/cuemby/warden/pkg/types"
	"github.com/rs/zerolog"
	"k8s.io/utils/clock"
)

// maxPersistAttempts bounds reload-and-retry when a write loses the version race
const maxPersistAttempts = 3

// Persister is the slice of the config store the machine reads and writes
type Persister interface {
	GetHAConfig(resourceType types.ResourceType, resourceID string) (*types.HAConfig, error)
	UpdateHAConfig(cfg *types.HAConfig, expectedVersion int64) error
}

// Listener observes transitions. Both hooks see the config as it is after
// the transition; for self-loops from == to.
type Listener interface {
	// PreStateTransition runs under the resource lock before the new state is
	// persisted. It runs again for every retry after a version conflict and
	// also when the write then fails, so it must be idempotent and must not
	// drop state the old row still needs.
	PreStateTransition(cfg *types.HAConfig, from, to types.HAState, event types.HAEvent)

	// PostStateTransition runs after the new state is persisted and the lock released
	PostStateTransition(cfg *types.HAConfig, from, to types.HAState, event types.HAEvent)
}

// Publisher receives audit events
type Publisher interface {
	Publish(event *events.Event)
}

// Machine applies table transitions to stored HA configs. Transitions of one
// resource are serialized; the store's version check guards against writers
// on other management nodes.
type Machine struct {
	store     Persister
	clock     clock.PassiveClock
	listener  Listener
	publisher Publisher
	logger    zerolog.Logger

	mu    sync.Mutex
	locks map[string]*keyLock
}

// keyLock is a per-resource mutex shared by the callers currently holding
// or waiting for it; the entry is dropped when the last one releases it
type keyLock struct {
	sync.Mutex
	refs int
}

// NewMachine creates a state machine over the given store
func NewMachine(store Persister, clk clock.PassiveClock) *Machine {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Machine{
		store:  store,
		clock:  clk,
		logger: log.WithComponent("ha-state"),
		locks:  make(map[string]*keyLock),
	}
}

// SetListener installs the transition hooks
func (m *Machine) SetListener(l Listener) {
	m.listener = l
}

// SetPublisher installs the audit event sink
func (m *Machine) SetPublisher(p Publisher) {
	m.publisher = p
}

// lock acquires the mutex of key and returns its release function
func (m *Machine) lock(key string) func() {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &keyLock{}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()

		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, key)
		}
		m.mu.Unlock()
	}
}

// lockCount returns the number of keys with a live lock
func (m *Machine) lockCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

// Transition fires event against the stored state of cfg. On success cfg is
// refreshed in place with the stored row and the new state is returned.
// Self-loops are not written back but still run the hooks.
func (m *Machine) Transition(cfg *types.HAConfig, event types.HAEvent) (types.HAState, error) {
	unlock := m.lock(cfg.Key())

	var (
		from, to types.HAState
		next     *types.HAConfig
		err      error
	)
	for attempt := 1; attempt <= maxPersistAttempts; attempt++ {
		from, to, next, err = m.apply(cfg, event)
		if !errors.Is(err, storage.ErrConflict) {
			break
		}
		metrics.HATransitionConflictsTotal.Inc()
	}
	unlock()

	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			metrics.HAInvalidTransitionsTotal.WithLabelValues(string(from), string(event)).Inc()
		}
		return from, err
	}

	*cfg = *next
	metrics.HATransitionsTotal.WithLabelValues(string(from), string(to), string(event)).Inc()

	if from != to {
		m.logger.Info().
			Str("resource_type", string(cfg.ResourceType)).
			Str("resource_id", cfg.ResourceID).
			Str("from", string(from)).
			Str("to", string(to)).
			Str("event", string(event)).
			Msg("HA state changed")
		m.publish(cfg, from, to, event)
	}

	if m.listener != nil {
		m.listener.PostStateTransition(cfg.Clone(), from, to, event)
	}
	return to, nil
}

// apply must be called with the resource lock held
func (m *Machine) apply(cfg *types.HAConfig, event types.HAEvent) (types.HAState, types.HAState, *types.HAConfig, error) {
	current, err := m.store.GetHAConfig(cfg.ResourceType, cfg.ResourceID)
	if err != nil {
		return cfg.State, "", nil, fmt.Errorf("failed to load ha config %s: %w", cfg.Key(), err)
	}

	from := current.State
	to, err := NextState(from, event)
	if err != nil {
		return from, "", nil, err
	}

	next := current.Clone()
	next.State = to
	if m.listener != nil {
		m.listener.PreStateTransition(next.Clone(), from, to, event)
	}

	if from == to {
		return from, to, next, nil
	}

	next.UpdatedAt = m.clock.Now()
	if err := m.store.UpdateHAConfig(next, current.UpdateCount); err != nil {
		return from, "", nil, fmt.Errorf("failed to persist ha config %s: %w", cfg.Key(), err)
	}
	return from, to, next, nil
}

// Update applies fn to the stored config under the resource lock and writes
// the result back when fn reports a change. It is used for fields outside
// the state machine, such as the enabled flag.
func (m *Machine) Update(resourceType types.ResourceType, resourceID string, fn func(cfg *types.HAConfig) bool) (*types.HAConfig, error) {
	unlock := m.lock(types.Key(resourceType, resourceID))
	defer unlock()

	var lastErr error
	for attempt := 1; attempt <= maxPersistAttempts; attempt++ {
		current, err := m.store.GetHAConfig(resourceType, resourceID)
		if err != nil {
			return nil, fmt.Errorf("failed to load ha config %s: %w", types.Key(resourceType, resourceID), err)
		}

		next := current.Clone()
		if !fn(next) {
			return current, nil
		}

		next.UpdatedAt = m.clock.Now()
		lastErr = m.store.UpdateHAConfig(next, current.UpdateCount)
		if lastErr == nil {
			return next, nil
		}
		if !errors.Is(lastErr, storage.ErrConflict) {
			break
		}
		metrics.HATransitionConflictsTotal.Inc()
	}
	return nil, fmt.Errorf("failed to update ha config %s: %w", types.Key(resourceType, resourceID), lastErr)
}

func (m *Machine) publish(cfg *types.HAConfig, from, to types.HAState, event types.HAEvent) {
	if m.publisher == nil {
		return
	}

	eventType := events.EventHAStateChanged
	switch to {
	case types.HAStateRecovering:
		eventType = events.EventHARecovering
	case types.HAStateFencing:
		eventType = events.EventHAFencing
	case types.HAStateFenced:
		eventType = events.EventHAFenced
	case types.HAStateDisabled:
		eventType = events.EventHADisabled
	}

	m.publisher.Publish(&events.Event{
		Type:      eventType,
		Timestamp: m.clock.Now(),
		Message:   fmt.Sprintf("%s %s moved from %s to %s on %s", cfg.ResourceType, cfg.ResourceID, from, to, event),
		Metadata: map[string]string{
			"resource_id":   cfg.ResourceID,
			"resource_type": string(cfg.ResourceType),
			"from":          string(from),
			"to":            string(to),
			"event":         string(event),
		},
	})
}
