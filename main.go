package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/sirupsen/logrus"

	"stays/config"
	"stays/db"
	"stays/gateway"
	"stays/pubsub"
	"stays/service"
	"stays/tracing"
)

func main() {
	log.Init(logrus.InfoLevel)

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logrus.WithError(err).Fatal("could not load config")
	}
	logrus.SetLevel(cfg.Level())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	traceProvider, err := tracing.ConfigureTraceProvider(cfg.JaegerEndpoint)
	if err != nil {
		logrus.WithError(err).Fatal("could not configure tracing")
	}
	defer func() {
		if err := traceProvider.Shutdown(context.Background()); err != nil {
			logrus.WithError(err).Error("could not shutdown trace provider")
		}
	}()

	dbConn, err := db.Open(cfg.PostgresURL)
	if err != nil {
		logrus.WithError(err).Fatal("could not connect to database")
	}
	defer dbConn.Close()

	redisClient := pubsub.NewRedisClient(cfg.RedisAddr)
	defer redisClient.Close()

	stripeClient := gateway.NewStripeClient(cfg.StripeAPIKey, cfg.StripeWebhookSecret)

	err = service.New(
		cfg,
		dbConn,
		redisClient,
		stripeClient,
	).Run(ctx)
	if err != nil {
		logrus.WithError(err).Error("service stopped with error")
		cancel()
		os.Exit(1)
	}
}
