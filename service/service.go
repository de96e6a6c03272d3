package service

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"stays/booking"
	"stays/config"
	"stays/db"
	"stays/db/bookings"
	"stays/db/data_lake"
	"stays/db/read_model_ops_bookings"
	"stays/db/users"
	"stays/http"
	"stays/migration"
	"stays/pubsub"
	"stays/pubsub/bus"
	"stays/pubsub/command"
	"stays/pubsub/event"
	"stays/pubsub/outbox"
)

type PaymentGateway interface {
	booking.PaymentGateway
	http.WebhookParser
}

type Service struct {
	db                 *sqlx.DB
	watermillRouter    *message.Router
	httpServer         *http.Server
	postgresSubscriber message.Subscriber
	dataLake           data_lake.DataLake
	opsReadModel       read_model_ops_bookings.OpsBookingReadModel
	rebuildReadModel   bool
}

func New(
	cfg config.Config,
	db *sqlx.DB,
	redisClient *redis.Client,
	paymentGateway PaymentGateway,
) Service {
	watermillLogger := log.NewWatermill(log.FromContext(context.Background()))

	var redisPublisher message.Publisher
	redisPublisher = pubsub.NewRedisPublisher(redisClient, watermillLogger)
	redisPublisher = log.CorrelationPublisherDecorator{Publisher: redisPublisher}

	eventBus, err := bus.NewEventBus(redisPublisher)
	if err != nil {
		panic(fmt.Errorf("failed to create event bus: %w", err))
	}

	commandBus, err := bus.NewCommandBus(redisPublisher)
	if err != nil {
		panic(fmt.Errorf("failed to create command bus: %w", err))
	}

	bookingsRepo := bookings.NewPostgresRepository(db, watermillLogger)
	usersRepo := users.NewPostgresRepository(db)
	opsReadModel := read_model_ops_bookings.NewOpsBookingReadModel(db, eventBus)
	dataLake := data_lake.NewDataLake(db)

	bookingConfig := booking.DefaultConfig()
	bookingConfig.HoldGrace = cfg.HoldGrace
	bookingConfig.SessionOpenGrace = cfg.SessionOpenGrace
	bookingConfig.Currency = cfg.Currency
	bookingConfig.SuccessURL = cfg.StripeSuccessURL
	bookingConfig.CancelURL = cfg.StripeCancelURL

	bookingService := booking.NewService(bookingsRepo, usersRepo, paymentGateway, eventBus, bookingConfig)

	newRedisSubscriber := func(handlerName string) (message.Subscriber, error) {
		return pubsub.NewRedisSubscriber(redisClient, handlerName, watermillLogger)
	}

	postgresSubscriber := outbox.NewPostgresSubscriber(db.DB, watermillLogger)

	watermillRouter, err := pubsub.NewWatermillRouter(
		pubsub.RouterConfig{
			PostgresSubscriber:     postgresSubscriber,
			RedisPublisher:         redisPublisher,
			NewRedisSubscriber:     newRedisSubscriber,
			EventProcessorConfig:   event.NewProcessorConfig(newRedisSubscriber, watermillLogger),
			EventHandlers:          event.NewHandler(opsReadModel).Handlers(),
			CommandProcessorConfig: command.NewProcessorConfig(newRedisSubscriber, watermillLogger),
			CommandHandlers:        command.NewHandler(bookingService).Handlers(),
			DataLake:               dataLake,
		},
		watermillLogger,
	)
	if err != nil {
		panic(fmt.Errorf("failed to create watermill router: %w", err))
	}

	httpServer := http.NewServer(
		cfg.HTTPAddr,
		http.Config{
			AllowedOrigins:     cfg.AllowedOrigins,
			RateLimitPerMinute: cfg.RateLimitPerMinute,
		},
		bookingService,
		commandBus,
		paymentGateway,
		opsReadModel,
	)

	return Service{
		db:                 db,
		watermillRouter:    watermillRouter,
		httpServer:         httpServer,
		postgresSubscriber: postgresSubscriber,
		dataLake:           dataLake,
		opsReadModel:       opsReadModel,
		rebuildReadModel:   cfg.RebuildReadModel,
	}
}

func (s Service) Run(ctx context.Context) error {
	if err := db.InitializeDatabaseSchema(s.db); err != nil {
		return fmt.Errorf("failed to initialize database schema: %w", err)
	}

	if err := outbox.InitializeSchema(s.postgresSubscriber); err != nil {
		return err
	}

	if s.rebuildReadModel {
		if _, err := migration.RebuildOpsReadModel(ctx, s.dataLake, s.opsReadModel); err != nil {
			return fmt.Errorf("failed to rebuild ops read model: %w", err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.watermillRouter.Run(ctx)
	})

	g.Go(func() error {
		// HTTP starts after the router, so the service isn't healthy before it can process messages
		<-s.watermillRouter.Running()

		return s.httpServer.Run(ctx)
	})

	return g.Wait()
}
