package event

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/ThreeDotsLabs/watermill/message"

	"stays/entity"
	"stays/pubsub/bus"
)

type SubscriberConstructor func(handlerName string) (message.Subscriber, error)

// NewProcessorConfig subscribes every handler with its own consumer group.
// Internal events are read from the service's private topics, the rest from topics filled by events_splitter.
func NewProcessorConfig(newSubscriber SubscriberConstructor, watermillLogger watermill.LoggerAdapter) cqrs.EventProcessorConfig {
	return cqrs.EventProcessorConfig{
		GenerateSubscribeTopic: func(params cqrs.EventProcessorGenerateSubscribeTopicParams) (string, error) {
			if event, ok := params.EventHandler.NewEvent().(entity.Event); ok && event.IsInternal() {
				return "internal-events.svc-stays." + params.EventName, nil
			}

			return "events." + params.EventName, nil
		},
		SubscriberConstructor: func(params cqrs.EventProcessorSubscriberConstructorParams) (message.Subscriber, error) {
			return newSubscriber(params.HandlerName)
		},
		Marshaler: bus.Marshaler,
		Logger:    watermillLogger,
	}
}
