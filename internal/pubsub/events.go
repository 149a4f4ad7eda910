// Package pubsub fans events out to context-scoped channel subscribers.
// A slow subscriber loses events instead of stalling the publisher.
package pubsub

import (
	"context"
	"time"
)

// EventType names the kind of event being published.
type EventType string

// Event is a published event with a typed payload.
type Event[T any] struct {
	Type      EventType `json:"type"`
	Payload   T         `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Subscriber provides a subscription channel for events.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher publishes events with a typed payload.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T)
}

// Next waits for the next event on ch. It returns false when ctx is done or
// the channel has been closed.
func Next[T any](ctx context.Context, ch <-chan Event[T]) (Event[T], bool) {
	select {
	case <-ctx.Done():
		return Event[T]{}, false
	case ev, ok := <-ch:
		return ev, ok
	}
}
