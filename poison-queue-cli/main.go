package main

import (
	"fmt"
	"os"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"stays/pubsub"
	"stays/pubsub/poisonqueue"
)

func newQueue(c *cli.Context) (*poisonqueue.Queue, func()) {
	rdb := pubsub.NewRedisClient(c.String("redis-addr"))
	watermillLogger := log.NewWatermill(logrus.NewEntry(logrus.StandardLogger()))

	publisher := pubsub.NewRedisPublisher(rdb, watermillLogger)

	closeFn := func() {
		_ = publisher.Close()
		_ = rdb.Close()
	}

	return poisonqueue.NewQueue(rdb, publisher, c.String("topic")), closeFn
}

func main() {
	app := &cli.App{
		Name:  "poison-queue-cli",
		Usage: "Manage the Poison Queue",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "redis-addr",
				EnvVars:  []string{"REDIS_ADDR"},
				Required: true,
			},
			&cli.StringFlag{
				Name:  "topic",
				Value: pubsub.PoisonQueueTopic,
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "preview",
				Usage: "preview messages",
				Action: func(c *cli.Context) error {
					q, closeFn := newQueue(c)
					defer closeFn()

					messages, err := q.Preview(c.Context)
					if err != nil {
						return err
					}

					for _, m := range messages {
						fmt.Printf("%v\t%v\t%v\t%v\n", m.ID, m.Topic, m.Handler, m.Reason)
					}

					return nil
				},
			},
			{
				Name:      "remove",
				ArgsUsage: "<message_id>",
				Usage:     "remove message",
				Action: func(c *cli.Context) error {
					q, closeFn := newQueue(c)
					defer closeFn()

					return q.Remove(c.Context, c.Args().First())
				},
			},
			{
				Name:      "requeue",
				ArgsUsage: "<message_id>",
				Usage:     "publish message back to its original topic",
				Action: func(c *cli.Context) error {
					q, closeFn := newQueue(c)
					defer closeFn()

					return q.Requeue(c.Context, c.Args().First())
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("poison-queue-cli failed")
	}
}
