package command

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/ThreeDotsLabs/watermill/message"

	"stays/pubsub/bus"
)

type SubscriberConstructor func(handlerName string) (message.Subscriber, error)

func NewProcessorConfig(newSubscriber SubscriberConstructor, watermillLogger watermill.LoggerAdapter) cqrs.CommandProcessorConfig {
	return cqrs.CommandProcessorConfig{
		GenerateSubscribeTopic: func(params cqrs.CommandProcessorGenerateSubscribeTopicParams) (string, error) {
			return "commands." + params.CommandName, nil
		},
		SubscriberConstructor: func(params cqrs.CommandProcessorSubscriberConstructorParams) (message.Subscriber, error) {
			return newSubscriber(params.HandlerName)
		},
		Marshaler: bus.Marshaler,
		Logger:    watermillLogger,
	}
}
