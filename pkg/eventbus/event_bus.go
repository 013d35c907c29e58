// Package eventbus carries domain events in and execution notifications out of autoflow.
package eventbus

import (
	"context"
	"errors"

	"github.com/dukex/autoflow/pkg/events"
)

// ErrNoTopic is returned when an event cannot be routed to any topic.
var ErrNoTopic = errors.New("event has no topic")

type Event interface {
	GetType() events.EventType
}

// Routed events choose their own topic instead of the default for their type.
type Routed interface {
	Topic() string
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	// Subscribe starts consuming. Without explicit topics it listens on the
	// default topic of every handled event type.
	Subscribe(ctx context.Context, topics ...string) error
}

type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}

// TopicOf resolves the topic event is published on.
func TopicOf(event Event) string {
	if routed, ok := event.(Routed); ok {
		return routed.Topic()
	}

	return events.DefaultTopic(event.GetType())
}
