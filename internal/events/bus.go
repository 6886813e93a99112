package events

import (
	"sync"
	"time"
)

// EventSource represents the source of an event
type EventSource string

const (
	EventSourceIRC    EventSource = "irc"
	EventSourceMUC    EventSource = "muc"
	EventSourceSystem EventSource = "system"
)

// Wildcard subscribes to every event type
const Wildcard = "*"

// Event represents a generic event
type Event struct {
	Type      string
	Data      map[string]interface{}
	Timestamp time.Time
	Source    EventSource
}

// New builds an event stamped with the current time
func New(source EventSource, eventType string, data map[string]interface{}) Event {
	return Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now(),
		Source:    source,
	}
}

// Subscriber is an interface for event subscribers
type Subscriber interface {
	OnEvent(event Event)
}

// SubscriberFunc adapts a function to Subscriber. Being a func, it cannot be
// compared, so use the returned *SubscriberFunc to Unsubscribe.
type SubscriberFunc func(event Event)

// OnEvent implements Subscriber
func (f *SubscriberFunc) OnEvent(event Event) {
	(*f)(event)
}

// Func wraps fn into a Subscriber
func Func(fn func(event Event)) *SubscriberFunc {
	f := SubscriberFunc(fn)
	return &f
}

// EventBus manages event routing
type EventBus struct {
	subscribers map[string][]Subscriber
	mu          sync.RWMutex
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[string][]Subscriber),
	}
}

// Subscribe subscribes a subscriber to a specific event type
func (eb *EventBus) Subscribe(eventType string, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// Unsubscribe removes a subscriber from an event type
func (eb *EventBus) Unsubscribe(eventType string, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	subs := eb.subscribers[eventType]
	for i, sub := range subs {
		if sub == subscriber {
			eb.subscribers[eventType] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
}

func (eb *EventBus) snapshot(eventType string) []Subscriber {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	subs := make([]Subscriber, 0, len(eb.subscribers[eventType])+len(eb.subscribers[Wildcard]))
	subs = append(subs, eb.subscribers[eventType]...)
	if eventType != Wildcard {
		subs = append(subs, eb.subscribers[Wildcard]...)
	}
	return subs
}

// Emit emits an event to all subscribers, each on its own goroutine
func (eb *EventBus) Emit(event Event) {
	for _, sub := range eb.snapshot(event.Type) {
		go sub.OnEvent(event)
	}
}

// EmitSync emits an event synchronously, in subscription order
func (eb *EventBus) EmitSync(event Event) {
	for _, sub := range eb.snapshot(event.Type) {
		sub.OnEvent(event)
	}
}
