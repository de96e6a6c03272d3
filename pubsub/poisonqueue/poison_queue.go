package poisonqueue

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/redis/go-redis/v9"
)

type Message struct {
	ID      string
	Topic   string
	Handler string
	Reason  string

	streamID string
	msg      *message.Message
}

// Queue inspects the poison queue stream directly, without joining a consumer group.
type Queue struct {
	rdb         *redis.Client
	publisher   message.Publisher
	topic       string
	unmarshaler redisstream.DefaultMarshallerUnmarshaller
}

func NewQueue(rdb *redis.Client, publisher message.Publisher, topic string) *Queue {
	if rdb == nil {
		panic("missing redis client")
	}
	if publisher == nil {
		panic("missing publisher")
	}

	return &Queue{
		rdb:       rdb,
		publisher: publisher,
		topic:     topic,
	}
}

func (q *Queue) Preview(ctx context.Context) ([]Message, error) {
	entries, err := q.rdb.XRange(ctx, q.topic, "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("could not read poison queue: %w", err)
	}

	result := make([]Message, 0, len(entries))
	for _, entry := range entries {
		msg, err := q.unmarshaler.Unmarshal(entry.Values)
		if err != nil {
			return nil, fmt.Errorf("could not unmarshal message %s: %w", entry.ID, err)
		}

		result = append(result, Message{
			ID:       msg.UUID,
			Topic:    msg.Metadata.Get(middleware.PoisonedTopicKey),
			Handler:  msg.Metadata.Get(middleware.PoisonedHandlerKey),
			Reason:   msg.Metadata.Get(middleware.ReasonForPoisonedKey),
			streamID: entry.ID,
			msg:      msg,
		})
	}

	return result, nil
}

func (q *Queue) Remove(ctx context.Context, messageID string) error {
	m, err := q.find(ctx, messageID)
	if err != nil {
		return err
	}

	return q.deleteEntry(ctx, m)
}

// Requeue publishes the message back to the topic it was poisoned on and removes it from the queue.
func (q *Queue) Requeue(ctx context.Context, messageID string) error {
	m, err := q.find(ctx, messageID)
	if err != nil {
		return err
	}
	if m.Topic == "" {
		return fmt.Errorf("message %s has no original topic", messageID)
	}

	msg := m.msg.Copy()
	delete(msg.Metadata, middleware.PoisonedTopicKey)
	delete(msg.Metadata, middleware.PoisonedHandlerKey)
	delete(msg.Metadata, middleware.PoisonedSubscriberKey)
	delete(msg.Metadata, middleware.ReasonForPoisonedKey)

	if err := q.publisher.Publish(m.Topic, msg); err != nil {
		return fmt.Errorf("could not requeue message %s: %w", messageID, err)
	}

	return q.deleteEntry(ctx, m)
}

func (q *Queue) find(ctx context.Context, messageID string) (Message, error) {
	messages, err := q.Preview(ctx)
	if err != nil {
		return Message{}, err
	}

	for _, m := range messages {
		if m.ID == messageID {
			return m, nil
		}
	}

	return Message{}, fmt.Errorf("message %s not found", messageID)
}

func (q *Queue) deleteEntry(ctx context.Context, m Message) error {
	if err := q.rdb.XDel(ctx, q.topic, m.streamID).Err(); err != nil {
		return fmt.Errorf("could not remove message %s: %w", m.ID, err)
	}

	return nil
}
