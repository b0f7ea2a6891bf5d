// Package events is the in-process pub/sub fabric between the scan
// pipeline and the delivery surfaces (API websocket, notifications,
// persistence).
package events

import (
	"sync"
	"time"
)

// EventType represents the different kinds of system events.
type EventType string

const (
	EventRecommendation   EventType = "RECOMMENDATION_EMITTED"
	EventPositionResolved EventType = "POSITION_RESOLVED"
	EventScanCompleted    EventType = "SCAN_COMPLETED"
	EventProviderDegraded EventType = "PROVIDER_DEGRADED"
	EventError            EventType = "ERROR"
)

// Event is a single system event.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events.
type Subscriber func(Event)

// Bus manages event publishing and subscriptions.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[EventType][]Subscriber),
	}
}

// Subscribe registers a subscriber for a specific event type.
func (b *Bus) Subscribe(eventType EventType, subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for every event.
func (b *Bus) SubscribeAll(subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allSubs = append(b.allSubs, subscriber)
}

// Publish sends an event to all subscribers. Delivery is asynchronous so
// a slow subscriber cannot stall the scan pipeline.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	for _, sub := range b.subscribers[event.Type] {
		go sub(event)
	}
	for _, sub := range b.allSubs {
		go sub(event)
	}
}

// PublishError publishes an error event.
func (b *Bus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	b.Publish(Event{Type: EventError, Data: data})
}

// PublishProviderDegraded publishes a market-data provider state change.
func (b *Bus) PublishProviderDegraded(provider, state string) {
	b.Publish(Event{
		Type: EventProviderDegraded,
		Data: map[string]interface{}{
			"provider": provider,
			"state":    state,
		},
	})
}
