package outbox

import (
	"database/sql"
	"fmt"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill"
	watermillSQL "github.com/ThreeDotsLabs/watermill-sql/v2/pkg/sql"
	"github.com/ThreeDotsLabs/watermill/components/forwarder"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/jmoiron/sqlx"

	"stays/tracing"
)

const Topic = "events_to_forward"

func NewPostgresSubscriber(db *sql.DB, logger watermill.LoggerAdapter) message.Subscriber {
	sub, err := watermillSQL.NewSubscriber(db, watermillSQL.SubscriberConfig{
		SchemaAdapter:    watermillSQL.DefaultPostgreSQLSchema{},
		OffsetsAdapter:   watermillSQL.DefaultPostgreSQLOffsetsAdapter{},
		InitializeSchema: true,
	}, logger)
	if err != nil {
		panic(fmt.Errorf("could not create postgres subscriber: %w", err))
	}

	return sub
}

// InitializeSchema creates the outbox tables up front, so the first transaction publishing to the
// outbox doesn't race with the forwarder creating them.
func InitializeSchema(sub message.Subscriber) error {
	initializer, ok := sub.(message.SubscribeInitializer)
	if !ok {
		return fmt.Errorf("subscriber %T can't initialize topics", sub)
	}

	if err := initializer.SubscribeInitialize(Topic); err != nil {
		return fmt.Errorf("could not initialize outbox topic: %w", err)
	}

	return nil
}

// NewPublisherForDb returns a publisher writing messages into the outbox as part of tx.
func NewPublisherForDb(tx *sqlx.Tx, logger watermill.LoggerAdapter) (message.Publisher, error) {
	sqlPublisher, err := watermillSQL.NewPublisher(
		tx.Tx,
		watermillSQL.PublisherConfig{
			SchemaAdapter: watermillSQL.DefaultPostgreSQLSchema{},
		},
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("could not create outbox publisher: %w", err)
	}

	var publisher message.Publisher
	publisher = forwarder.NewPublisher(sqlPublisher, forwarder.PublisherConfig{
		ForwarderTopic: Topic,
	})
	publisher = tracing.PublisherDecorator{Publisher: publisher}
	publisher = log.CorrelationPublisherDecorator{Publisher: publisher}

	return publisher, nil
}

// AddForwarderHandler moves messages from the outbox to their destination topics on pub,
// as a handler of router.
func AddForwarderHandler(
	sub message.Subscriber,
	pub message.Publisher,
	router *message.Router,
	logger watermill.LoggerAdapter,
) error {
	_, err := forwarder.NewForwarder(sub, pub, logger, forwarder.Config{
		ForwarderTopic: Topic,
		Router:         router,
	})
	if err != nil {
		return fmt.Errorf("could not create forwarder: %w", err)
	}

	return nil
}
