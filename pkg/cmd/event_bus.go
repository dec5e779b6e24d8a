// Package cmd provides common initialization for the command-line
// binaries.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/casthq/caster/pkg/eventbus"
	"github.com/casthq/caster/pkg/eventbus/gochannel"
	"github.com/casthq/caster/pkg/eventbus/kafka"
)

// NewEventBus creates an event bus for the given provider. The
// gochannel provider only works when the API and the worker share one
// process; kafka is the multi-process deployment.
func NewEventBus(provider, serviceName string, logger *slog.Logger) eventbus.EventBus {
	watermillLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(watermillLogger, serviceName)
		if err != nil {
			panic(fmt.Errorf("failed to create Kafka pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub)
	case "gochannel", "":
		pub, sub, err := gochannel.CreateChannel(watermillLogger)
		if err != nil {
			panic(fmt.Errorf("failed to create gochannel pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub)
	default:
		panic("Unsupported event bus provider: " + provider)
	}
}
