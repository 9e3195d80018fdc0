package events

import (
	"sync"
	"time"

	"github.com/cuemby/warden/pkg/log"
	"github.com/cuemby/warden/pkg/metrics"
	"github.com/google/uuid"
)

// EventType names an audit event
type EventType string

const (
	EventHAStateChanged EventType = "ha.state_changed"
	EventHARecovering   EventType = "ha.recovering"
	EventHAFencing      EventType = "ha.fencing"
	EventHAFenced       EventType = "ha.fenced"
	EventHADisabled     EventType = "ha.disabled"
	EventManagerJoined  EventType = "manager.joined"
)

// Critical reports whether the event records an intrusive HA action on a
// resource: a recovery or a fence
func (t EventType) Critical() bool {
	switch t {
	case EventHARecovering, EventHAFencing, EventHAFenced:
		return true
	}
	return false
}

// Event is one audit record
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// filter is the set of types a subscriber wants; nil means all
type filter map[EventType]struct{}

func (f filter) matches(t EventType) bool {
	if f == nil {
		return true
	}
	_, ok := f[t]
	return ok
}

// Broker fans audit events out to subscribers. Publishing never blocks: a
// full broker buffer drops the event, a full subscriber buffer skips that
// subscriber.
type Broker struct {
	subscribers map[Subscriber]filter
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
	stopOnce    sync.Once
}

const (
	brokerBuffer     = 100
	subscriberBuffer = 50
)

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]filter),
		eventCh:     make(chan *Event, brokerBuffer),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// Subscribe registers a subscriber for the given event types, or for every
// type when none are given
func (b *Broker) Subscribe(types ...EventType) Subscriber {
	var f filter
	if len(types) > 0 {
		f = make(filter, len(types))
		for _, t := range types {
			f[t] = struct{}{}
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, subscriberBuffer)
	b.subscribers[sub] = f
	return sub
}

// Unsubscribe removes a subscription and closes its channel
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub]; ok {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Publish hands an event to the distribution loop without blocking.
// Events are dropped when the broker is stopped or its buffer is full.
func (b *Broker) Publish(event *Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case <-b.stopCh:
		return
	default:
	}

	select {
	case b.eventCh <- event:
		metrics.HAAuditEventsTotal.WithLabelValues(string(event.Type)).Inc()
	default:
		metrics.HAAuditEventsDroppedTotal.WithLabelValues(string(event.Type)).Inc()
		log.Logger.Warn().
			Str("event_type", string(event.Type)).
			Str("event_id", event.ID).
			Msg("Event buffer full, dropping event")
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub, f := range b.subscribers {
		if !f.matches(event.Type) {
			continue
		}
		select {
		case sub <- event:
		default:
			// slow subscriber
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
