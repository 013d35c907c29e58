package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/autoflow/pkg/channels/gochannel"
	"github.com/dukex/autoflow/pkg/channels/kafka"
	"github.com/dukex/autoflow/pkg/eventbus"
)

// NewEventBus creates the bus for provider "gochannel" or "kafka".
// serviceName names the Kafka consumer group.
func NewEventBus(provider, serviceName, brokers string, otelEnabled bool, logger *slog.Logger) (eventbus.EventBus, error) {
	watermillLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "gochannel", "":
		pub, sub, err := gochannel.CreateChannel(watermillLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub, logger), nil
	case "kafka":
		pub, sub, err := kafka.CreateChannel(watermillLogger, serviceName, kafka.ParseBrokers(brokers), otelEnabled)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub, logger), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider %q", provider)
	}
}
