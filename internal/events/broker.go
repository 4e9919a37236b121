// Package events distributes pipeline events to any number of listeners.
//
// The broker is deliberately best-effort: progress reporting must never be
// able to stall or crash the queue coordinator. A subscriber with a full
// channel misses the event; no subscriber at all is fine (the overlay may not
// be injected yet).
package events

import (
	"sync"
)

// Broker manages event distribution
type Broker struct {
	subscribers map[EventType][]chan Event
	mu          sync.RWMutex
	bufferSize  int
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[EventType][]chan Event),
		bufferSize:  32,
	}
}

// Subscribe creates a subscription to specific event types.
// With no types it subscribes to everything.
func (b *Broker) Subscribe(eventTypes ...EventType) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)

	if len(eventTypes) == 0 {
		eventTypes = []EventType{"*"} // wildcard
	}

	for _, eventType := range eventTypes {
		b.subscribers[eventType] = append(b.subscribers[eventType], ch)
	}

	return ch
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(ch <-chan Event, eventTypes ...EventType) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(eventTypes) == 0 {
		for eventType := range b.subscribers {
			b.removeChannel(eventType, ch)
		}
		return
	}

	for _, eventType := range eventTypes {
		b.removeChannel(eventType, ch)
	}
}

// Publish sends an event to all subscribers.
// Delivery is non-blocking; a full subscriber channel drops the event.
func (b *Broker) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if subscribers, ok := b.subscribers[event.Type]; ok {
		for _, ch := range subscribers {
			select {
			case ch <- event:
			default:
				// Channel full, skip this event
			}
		}
	}

	if wildcards, ok := b.subscribers["*"]; ok {
		for _, ch := range wildcards {
			select {
			case ch <- event:
			default:
			}
		}
	}
}

// PublishProgress is sugar for the most common event in the system.
func (b *Broker) PublishProgress(p Progress) {
	b.Publish(Event{Type: ProgressEvent, Payload: p})
}

// removeChannel removes a channel from a specific event type's subscribers
func (b *Broker) removeChannel(eventType EventType, target <-chan Event) {
	subscribers := b.subscribers[eventType]
	for i, ch := range subscribers {
		if ch == target {
			b.subscribers[eventType] = append(subscribers[:i], subscribers[i+1:]...)
			close(ch)
			break
		}
	}

	if len(b.subscribers[eventType]) == 0 {
		delete(b.subscribers, eventType)
	}
}

// Clear removes all subscriptions
func (b *Broker) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, subscribers := range b.subscribers {
		for _, ch := range subscribers {
			close(ch)
		}
	}

	b.subscribers = make(map[EventType][]chan Event)
}
