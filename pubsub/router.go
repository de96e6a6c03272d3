package pubsub

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/ThreeDotsLabs/watermill/message"

	"stays/entity"
	"stays/pubsub/bus"
	"stays/pubsub/outbox"
)

type DataLake interface {
	StoreEvent(ctx context.Context, dataLakeEvent entity.DataLakeEvent) error
}

type SubscriberConstructor func(handlerName string) (message.Subscriber, error)

type RouterConfig struct {
	PostgresSubscriber     message.Subscriber
	RedisPublisher         message.Publisher
	NewRedisSubscriber     SubscriberConstructor
	EventProcessorConfig   cqrs.EventProcessorConfig
	EventHandlers          []cqrs.EventHandler
	CommandProcessorConfig cqrs.CommandProcessorConfig
	CommandHandlers        []cqrs.CommandHandler
	DataLake               DataLake
}

func NewWatermillRouter(config RouterConfig, watermillLogger watermill.LoggerAdapter) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{}, watermillLogger)
	if err != nil {
		return nil, fmt.Errorf("could not create router: %w", err)
	}

	if err := useMiddlewares(router, config.RedisPublisher, watermillLogger); err != nil {
		return nil, err
	}

	err = outbox.AddForwarderHandler(config.PostgresSubscriber, config.RedisPublisher, router, watermillLogger)
	if err != nil {
		return nil, err
	}

	eventProcessor, err := cqrs.NewEventProcessorWithConfig(router, config.EventProcessorConfig)
	if err != nil {
		return nil, fmt.Errorf("could not create event processor: %w", err)
	}

	if err := eventProcessor.AddHandlers(config.EventHandlers...); err != nil {
		return nil, fmt.Errorf("could not add handlers to event processor: %w", err)
	}

	commandProcessor, err := cqrs.NewCommandProcessorWithConfig(router, config.CommandProcessorConfig)
	if err != nil {
		return nil, fmt.Errorf("could not create command processor: %w", err)
	}

	if err := commandProcessor.AddHandlers(config.CommandHandlers...); err != nil {
		return nil, fmt.Errorf("could not add handlers to command processor: %w", err)
	}

	splitterSubscriber, err := config.NewRedisSubscriber("events_splitter")
	if err != nil {
		return nil, fmt.Errorf("could not create events_splitter subscriber: %w", err)
	}

	router.AddNoPublisherHandler(
		"events_splitter",
		"events",
		splitterSubscriber,
		func(msg *message.Message) error {
			eventName := bus.Marshaler.NameFromMessage(msg)
			if eventName == "" {
				return errors.New("could not get event name from message")
			}

			return config.RedisPublisher.Publish("events."+eventName, msg)
		},
	)

	dataLakeSubscriber, err := config.NewRedisSubscriber("store_to_data_lake")
	if err != nil {
		return nil, fmt.Errorf("could not create store_to_data_lake subscriber: %w", err)
	}

	router.AddNoPublisherHandler(
		"store_to_data_lake",
		"events",
		dataLakeSubscriber,
		func(msg *message.Message) error {
			return storeToDataLake(msg, config.DataLake)
		},
	)

	return router, nil
}

func storeToDataLake(msg *message.Message, dataLake DataLake) error {
	eventName := bus.Marshaler.NameFromMessage(msg)
	if eventName == "" {
		return errors.New("could not get event name from message")
	}

	// only the header is needed, the payload is stored as is
	type Event struct {
		Header entity.EventHeader `json:"header"`
	}

	var event Event
	if err := bus.Marshaler.Unmarshal(msg, &event); err != nil {
		return fmt.Errorf("could not unmarshal event: %w", err)
	}

	return dataLake.StoreEvent(
		msg.Context(),
		entity.DataLakeEvent{
			ID:          event.Header.ID,
			PublishedAt: event.Header.PublishedAt,
			Name:        eventName,
			Payload:     msg.Payload,
		},
	)
}
