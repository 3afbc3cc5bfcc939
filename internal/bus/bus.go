// Package bus provides an internal event bus for component communication
package bus

import (
	"sync"
	"time"
)

// EventType identifies different event types
type EventType string

// Event types for avatarmotion
const (
	// Motion events
	EventTypeModeChanged    EventType = "mode.changed"
	EventTypeTuningReloaded EventType = "tuning.reloaded"
	EventTypeTuningRejected EventType = "tuning.rejected"

	// Bridge events
	EventTypeClientConnected    EventType = "bridge.client_connected"
	EventTypeClientDisconnected EventType = "bridge.client_disconnected"
)

// Event represents a bus event
type Event struct {
	Type EventType
	Time time.Time
	Data map[string]any
}

// String returns a string field of the payload, empty when absent
func (e Event) String(key string) string {
	s, _ := e.Data[key].(string)
	return s
}

// ModeChanged builds the event published when the controller switches mode
func ModeChanged(from, to string) Event {
	return Event{
		Type: EventTypeModeChanged,
		Time: time.Now(),
		Data: map[string]any{"from": from, "to": to},
	}
}

// TuningReloaded builds the event published after a config file revision
// is accepted. source is the file it came from.
func TuningReloaded(source string) Event {
	return Event{
		Type: EventTypeTuningReloaded,
		Time: time.Now(),
		Data: map[string]any{"source": source},
	}
}

func TuningRejected(source string, err error) Event {
	return Event{
		Type: EventTypeTuningRejected,
		Time: time.Now(),
		Data: map[string]any{"source": source, "error": err.Error()},
	}
}

func ClientConnected(id, remote string) Event {
	return Event{
		Type: EventTypeClientConnected,
		Time: time.Now(),
		Data: map[string]any{"client": id, "remote": remote},
	}
}

func ClientDisconnected(id string) Event {
	return Event{
		Type: EventTypeClientDisconnected,
		Time: time.Now(),
		Data: map[string]any{"client": id},
	}
}

// Handler is a function that handles events
type Handler func(Event)

// EventBus is a simple pub/sub event bus
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for an event type
func (b *EventBus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeMultiple adds a handler for multiple event types
func (b *EventBus) SubscribeMultiple(eventTypes []EventType, handler Handler) {
	for _, et := range eventTypes {
		b.Subscribe(et, handler)
	}
}

func (b *EventBus) snapshot(et EventType) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	handlers := make([]Handler, len(b.handlers[et]))
	copy(handlers, b.handlers[et])
	return handlers
}

// Publish sends an event to all subscribed handlers without waiting
func (b *EventBus) Publish(event Event) {
	for _, handler := range b.snapshot(event.Type) {
		go handler(event)
	}
}

// PublishSync calls every handler in subscription order on the caller's
// goroutine. Handlers must not block.
func (b *EventBus) PublishSync(event Event) {
	for _, handler := range b.snapshot(event.Type) {
		handler(event)
	}
}

// Clear removes all handlers
func (b *EventBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[EventType][]Handler)
}
