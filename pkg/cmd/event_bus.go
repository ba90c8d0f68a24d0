package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/taskflow/pkg/channels/gochannel"
	"github.com/dukex/taskflow/pkg/channels/kafka"
	"github.com/dukex/taskflow/pkg/eventbus"
	"github.com/dukex/taskflow/pkg/events"
)

const serviceName = "taskflow"

// NewEventBus creates the bus for provider. "none" and "" return a nil bus.
func NewEventBus(provider string, brokers []string, logger *slog.Logger) (eventbus.EventBus, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "", "none":
		return nil, nil
	case "gochannel":
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, brokers, serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}

// LogEvents subscribes to bus and logs every pipeline event at debug level.
func LogEvents(ctx context.Context, bus eventbus.EventBus, logger *slog.Logger) error {
	eventTypes := []events.EventType{
		events.RunStartedEvent,
		events.RunFinishedEvent,
		events.TaskRetryingEvent,
		events.TaskCompletedEvent,
		events.TaskFailedEvent,
		events.TaskSkippedEvent,
	}

	for _, eventType := range eventTypes {
		err := bus.Handle(eventType, func(ctx context.Context, event any) error {
			logger.DebugContext(ctx, "Pipeline event received", "event_type", eventType, "event", event)

			return nil
		})
		if err != nil {
			return err
		}
	}

	return bus.Subscribe(ctx)
}
