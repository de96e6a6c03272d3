package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"

	"stays/entity"
	"stays/metrics"
)

// TxOptions bounds how long a transaction may wait for row locks and how long it may run in total.
type TxOptions struct {
	LockWait time.Duration
	Timeout  time.Duration
}

type Repository interface {
	InTx(ctx context.Context, opts TxOptions, fn func(ctx context.Context, tx Tx) error) error

	// DeleteStale removes PENDING_PAYMENT bookings created before createdBefore, and those
	// without a payment session created before sessionlessCreatedBefore. Bookings with a payment
	// still processing are kept.
	DeleteStale(ctx context.Context, createdBefore, sessionlessCreatedBefore time.Time) (int64, error)

	FindByUser(ctx context.Context, userID string) ([]entity.Booking, error)
	SetPaymentSession(ctx context.Context, bookingID string, sessionID string, paymentIntentID *string) error
	DeleteUnpaidBySession(ctx context.Context, sessionID string) (int64, error)

	// MarkPaymentProcessing flags the PENDING_PAYMENT bookings of the session so DeleteStale skips them.
	MarkPaymentProcessing(ctx context.Context, sessionID string) (int64, error)
}

// Tx is the set of operations available inside a single store transaction.
type Tx interface {
	// LockProperty reads the property and blocks concurrent transactions locking the same one.
	LockProperty(ctx context.Context, ref entity.PropertyRef) (entity.Property, error)
	GetProperty(ctx context.Context, ref entity.PropertyRef) (entity.Property, error)
	FindBookingsByProperty(ctx context.Context, ref entity.PropertyRef, start, end time.Time) ([]entity.Booking, error)

	GetBookingForUpdate(ctx context.Context, bookingID string) (entity.Booking, error)
	InsertBooking(ctx context.Context, booking entity.Booking) error
	UpdateBookingStatus(ctx context.Context, bookingID string, status entity.BookingStatus) error
	SetPaymentIntent(ctx context.Context, bookingID string, paymentIntentID string) error
	DeleteBooking(ctx context.Context, bookingID string) error

	// Publish stores the event in the outbox, it's forwarded only if the transaction commits.
	Publish(ctx context.Context, event entity.Event) error
}

type UsersRepository interface {
	Get(ctx context.Context, userID string) (entity.User, error)
}

type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, req entity.CheckoutSessionRequest) (entity.CheckoutSession, error)
	RetrieveSession(ctx context.Context, sessionID string) (entity.CheckoutSession, error)
	ExpireSession(ctx context.Context, sessionID string) error
	CreateRefund(ctx context.Context, req entity.RefundRequest) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

type Config struct {
	// HoldGrace is how long an unpaid hold blocks its range.
	HoldGrace time.Duration
	// SessionOpenGrace is how long a hold may exist before its checkout session gets attached.
	SessionOpenGrace time.Duration
	SessionExpiry    time.Duration

	Currency   string
	SuccessURL string
	CancelURL  string

	CreateTx  TxOptions
	ConfirmTx TxOptions
	CancelTx  TxOptions

	MaxTxAttempts int

	Now func() time.Time
}

func DefaultConfig() Config {
	return Config{
		HoldGrace:        32 * time.Minute,
		SessionOpenGrace: 2 * time.Minute,
		SessionExpiry:    30 * time.Minute,
		Currency:         "eur",
		CreateTx:         TxOptions{LockWait: 10 * time.Second, Timeout: 10 * time.Second},
		ConfirmTx:        TxOptions{LockWait: 5 * time.Second, Timeout: 10 * time.Second},
		CancelTx:         TxOptions{LockWait: 5 * time.Second, Timeout: 10 * time.Second},
		MaxTxAttempts:    3,
		Now:              time.Now,
	}
}

type Service struct {
	repo      Repository
	users     UsersRepository
	gateway   PaymentGateway
	events    EventPublisher
	reclaimer *Reclaimer

	config Config
}

func NewService(
	repo Repository,
	users UsersRepository,
	gateway PaymentGateway,
	events EventPublisher,
	config Config,
) *Service {
	if repo == nil {
		panic("missing bookings repository")
	}
	if users == nil {
		panic("missing users repository")
	}
	if gateway == nil {
		panic("missing payment gateway")
	}
	if events == nil {
		panic("missing event publisher")
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.MaxTxAttempts < 1 {
		config.MaxTxAttempts = 1
	}

	return &Service{
		repo:      repo,
		users:     users,
		gateway:   gateway,
		events:    events,
		reclaimer: NewReclaimer(repo, events, config.HoldGrace, config.SessionOpenGrace, config.Now),
		config:    config,
	}
}

func (s *Service) Reclaimer() *Reclaimer {
	return s.reclaimer
}

func (s *Service) now() time.Time {
	return s.config.Now().UTC()
}

// inTx runs fn in a transaction, retrying it when the store reports a transient failure.
func (s *Service) inTx(ctx context.Context, opts TxOptions, fn func(ctx context.Context, tx Tx) error) error {
	for attempt := 1; ; attempt++ {
		err := s.repo.InTx(ctx, opts, fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, entity.ErrTransientTx) || attempt >= s.config.MaxTxAttempts {
			return err
		}

		metrics.TransactionRetries.Inc()
		log.FromContext(ctx).WithError(err).WithField("attempt", attempt).Warn("Retrying transaction")
	}
}

func gatewayError(op string, err error) error {
	var gwErr *entity.GatewayError
	if errors.As(err, &gwErr) {
		return err
	}

	return &entity.GatewayError{Op: op, Err: err}
}

func wrapNotFound(err error, as error) error {
	if errors.Is(err, entity.ErrNotFound) {
		return fmt.Errorf("%w: %s", as, err)
	}

	return err
}

func isNotFound(err error) bool {
	return errors.Is(err, entity.ErrNotFound)
}
