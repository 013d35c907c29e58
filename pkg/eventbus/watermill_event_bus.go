package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/autoflow/pkg/events"
)

type WatermillEventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     *slog.Logger

	mu            sync.RWMutex
	subscriptions map[events.EventType]EventHandler
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber, logger *slog.Logger) *WatermillEventBus {
	return &WatermillEventBus{
		publisher:     pub,
		subscriber:    sub,
		logger:        logger.With("module", "event_bus"),
		subscriptions: make(map[events.EventType]EventHandler),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event Event) error {
	topic := TopicOf(event)
	if topic == "" {
		return fmt.Errorf("%w: %s", ErrNoTopic, event.GetType())
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))
	msg.SetContext(ctx)

	return eb.publisher.Publish(topic, msg)
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context, topics ...string) error {
	if len(topics) == 0 {
		topics = eb.handledTopics()
	}

	for _, topic := range topics {
		messages, err := eb.subscriber.Subscribe(ctx, topic)
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}

		go eb.consume(ctx, topic, messages)
	}

	return nil
}

func (eb *WatermillEventBus) consume(ctx context.Context, topic string, messages <-chan *message.Message) {
	for msg := range messages {
		eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))
		if eventType == "" && topic == events.DomainEventsTopic {
			// producers outside autoflow publish bare domain events
			eventType = events.DomainEventReceived
		}

		eb.mu.RLock()
		handler, exists := eb.subscriptions[eventType]
		eb.mu.RUnlock()

		if !exists {
			msg.Ack()

			continue
		}

		event, ok := events.New(eventType)
		if !ok {
			eb.logger.WarnContext(ctx, "dropping message with unknown event type", "topic", topic, "event_type", eventType)
			msg.Ack()

			continue
		}

		err := json.Unmarshal(msg.Payload, event)
		if err != nil {
			eb.logger.WarnContext(ctx, "dropping undecodable message",
				"topic", topic,
				"event_type", eventType,
				"message_id", msg.UUID,
				"error", err)
			msg.Ack()

			continue
		}

		err = handler(ctx, event)
		if err != nil {
			eb.logger.ErrorContext(ctx, "event handler failed",
				"topic", topic,
				"event_type", eventType,
				"message_id", msg.UUID,
				"error", err)
			msg.Nack()

			continue
		}

		msg.Ack()
	}
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscriptions[eventType] = handler

	return nil
}

func (eb *WatermillEventBus) handledTopics() []string {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	var topics []string

	for eventType := range eb.subscriptions {
		topic := events.DefaultTopic(eventType)
		if topic != "" && !slices.Contains(topics, topic) {
			topics = append(topics, topic)
		}
	}

	slices.Sort(topics)

	return topics
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}
