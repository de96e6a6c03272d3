package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	HTTPAddr    string `long:"http-addr" env:"HTTP_ADDR" default:":8080" description:"address the HTTP server listens on"`
	PostgresURL string `long:"postgres-url" env:"POSTGRES_URL" description:"PostgreSQL connection string"`
	RedisAddr   string `long:"redis-addr" env:"REDIS_ADDR" description:"Redis address used for messaging"`

	StripeAPIKey        string `long:"stripe-api-key" env:"STRIPE_API_KEY" description:"Stripe secret key"`
	StripeWebhookSecret string `long:"stripe-webhook-secret" env:"STRIPE_WEBHOOK_SECRET" description:"Stripe webhook signing secret"`
	StripeSuccessURL    string `long:"stripe-success-url" env:"STRIPE_SUCCESS_URL" description:"where customers land after paying"`
	StripeCancelURL     string `long:"stripe-cancel-url" env:"STRIPE_CANCEL_URL" description:"where customers land after abandoning the checkout"`
	Currency            string `long:"currency" env:"CURRENCY" default:"eur" description:"ISO currency of checkout sessions"`

	JaegerEndpoint string   `long:"jaeger-endpoint" env:"JAEGER_ENDPOINT" description:"Jaeger collector endpoint, tracing is disabled when empty"`
	AllowedOrigins []string `long:"allowed-origin" env:"ALLOWED_ORIGINS" env-delim:"," description:"CORS allowed origins"`

	HoldGrace          time.Duration `long:"hold-grace" env:"HOLD_GRACE" default:"32m" description:"age after which unpaid bookings are reclaimed"`
	SessionOpenGrace   time.Duration `long:"session-open-grace" env:"SESSION_OPEN_GRACE" default:"2m" description:"age after which unpaid bookings without a checkout session are reclaimed"`
	RateLimitPerMinute int           `long:"rate-limit-per-minute" env:"RATE_LIMIT_PER_MINUTE" default:"20" description:"booking attempts allowed per user and minute, 0 disables the limit"`

	RebuildReadModel bool   `long:"rebuild-read-model" env:"REBUILD_READ_MODEL" description:"replay the data lake into the ops read model on start-up"`
	LogLevel         string `long:"log-level" env:"LOG_LEVEL" default:"info" description:"logrus level"`
}

// Load reads an optional .env file and then parses args and the environment.
// Values already set in the environment win over the ones from the file.
func Load(args []string, envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("could not load env file: %w", err)
	}

	var config Config
	if _, err := flags.ParseArgs(&config, args); err != nil {
		return Config{}, err
	}

	if err := config.validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}

func (c Config) validate() error {
	required := map[string]string{
		"POSTGRES_URL":       c.PostgresURL,
		"REDIS_ADDR":         c.RedisAddr,
		"STRIPE_API_KEY":     c.StripeAPIKey,
		"STRIPE_SUCCESS_URL": c.StripeSuccessURL,
		"STRIPE_CANCEL_URL":  c.StripeCancelURL,
	}
	for key, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", key)
		}
	}

	if c.HoldGrace <= c.SessionOpenGrace {
		return fmt.Errorf(
			"hold grace (%s) must be longer than session open grace (%s)",
			c.HoldGrace,
			c.SessionOpenGrace,
		)
	}

	return nil
}

func (c Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}

	return level
}
