package bookings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"stays/booking"
	dbLib "stays/db"
	"stays/entity"
	"stays/pubsub/bus"
	"stays/pubsub/outbox"
)

type PostgresRepository struct {
	db     *sqlx.DB
	logger watermill.LoggerAdapter
}

func NewPostgresRepository(db *sqlx.DB, logger watermill.LoggerAdapter) *PostgresRepository {
	if db == nil {
		panic("db is nil")
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	return &PostgresRepository{db: db, logger: logger}
}

// InTx runs fn in a READ COMMITTED transaction. Events published through the transaction land in
// the outbox and are forwarded only after commit.
func (r *PostgresRepository) InTx(
	ctx context.Context,
	opts booking.TxOptions,
	fn func(ctx context.Context, tx booking.Tx) error,
) error {
	return dbLib.UpdateInTx(
		ctx,
		r.db,
		dbLib.TxOptions{
			Isolation:   sql.LevelReadCommitted,
			LockTimeout: opts.LockWait,
			Timeout:     opts.Timeout,
		},
		func(ctx context.Context, tx *sqlx.Tx) error {
			outboxPublisher, err := outbox.NewPublisherForDb(tx, r.logger)
			if err != nil {
				return err
			}

			eventBus, err := bus.NewEventBus(outboxPublisher)
			if err != nil {
				return fmt.Errorf("could not create event bus: %w", err)
			}

			return fn(ctx, &postgresTx{tx: tx, eventBus: eventBus})
		},
	)
}

func (r *PostgresRepository) DeleteStale(ctx context.Context, createdBefore, sessionlessCreatedBefore time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM
			bookings
		WHERE
			status = $1
			AND NOT payment_processing
			AND (created_at < $2 OR (payment_session_id IS NULL AND created_at < $3))
		`,
		entity.BookingStatusPendingPayment,
		createdBefore,
		sessionlessCreatedBefore,
	)
	if err != nil {
		return 0, fmt.Errorf("could not delete stale bookings: %w", err)
	}

	return res.RowsAffected()
}

func (r *PostgresRepository) FindByUser(ctx context.Context, userID string) ([]entity.Booking, error) {
	var rows []bookingRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+bookingColumns+`
		FROM
			bookings
		WHERE
			user_id = $1
		ORDER BY created_at ASC
		`, userID)
	if err != nil {
		return nil, fmt.Errorf("could not select bookings: %w", err)
	}

	return toEntities(rows), nil
}

func (r *PostgresRepository) Get(ctx context.Context, bookingID string) (entity.Booking, error) {
	if _, err := uuid.Parse(bookingID); err != nil {
		return entity.Booking{}, entity.ErrNotFound
	}

	var row bookingRow
	err := r.db.GetContext(ctx, &row, `SELECT `+bookingColumns+` FROM bookings WHERE booking_id = $1`, bookingID)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Booking{}, entity.ErrNotFound
	} else if err != nil {
		return entity.Booking{}, fmt.Errorf("could not get booking: %w", err)
	}

	return row.toEntity(), nil
}

func (r *PostgresRepository) SetPaymentSession(
	ctx context.Context,
	bookingID string,
	sessionID string,
	paymentIntentID *string,
) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE
			bookings
		SET
			payment_session_id = $2,
			payment_intent_id = COALESCE($3, payment_intent_id),
			updated_at = NOW()
		WHERE
			booking_id = $1
		`, bookingID, sessionID, paymentIntentID)
	if err != nil {
		return fmt.Errorf("could not set payment session: %w", err)
	}

	return expectAffected(res)
}

func (r *PostgresRepository) DeleteUnpaidBySession(ctx context.Context, sessionID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM
			bookings
		WHERE
			payment_session_id = $1
			AND status = $2
		`, sessionID, entity.BookingStatusPendingPayment)
	if err != nil {
		return 0, fmt.Errorf("could not delete unpaid bookings: %w", err)
	}

	return res.RowsAffected()
}

func (r *PostgresRepository) MarkPaymentProcessing(ctx context.Context, sessionID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE
			bookings
		SET
			payment_processing = TRUE,
			updated_at = NOW()
		WHERE
			payment_session_id = $1
			AND status = $2
		`, sessionID, entity.BookingStatusPendingPayment)
	if err != nil {
		return 0, fmt.Errorf("could not mark payment processing: %w", err)
	}

	return res.RowsAffected()
}

type postgresTx struct {
	tx       *sqlx.Tx
	eventBus *cqrs.EventBus
}

func (t *postgresTx) LockProperty(ctx context.Context, ref entity.PropertyRef) (entity.Property, error) {
	return t.getProperty(ctx, ref, true)
}

func (t *postgresTx) GetProperty(ctx context.Context, ref entity.PropertyRef) (entity.Property, error) {
	return t.getProperty(ctx, ref, false)
}

func (t *postgresTx) getProperty(ctx context.Context, ref entity.PropertyRef, forUpdate bool) (entity.Property, error) {
	query := `SELECT ` + propertyColumns + ` FROM properties WHERE property_kind = $1 AND property_id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var row propertyRow
	err := t.tx.GetContext(ctx, &row, query, ref.Kind, ref.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Property{}, entity.ErrNotFound
	} else if err != nil {
		return entity.Property{}, fmt.Errorf("could not get property %s: %w", ref, err)
	}

	return row.toEntity(), nil
}

func (t *postgresTx) FindBookingsByProperty(
	ctx context.Context,
	ref entity.PropertyRef,
	start time.Time,
	end time.Time,
) ([]entity.Booking, error) {
	var rows []bookingRow
	err := t.tx.SelectContext(ctx, &rows, `
		SELECT `+bookingColumns+`
		FROM
			bookings
		WHERE
			property_kind = $1
			AND property_id = $2
			AND status IN ($3, $4)
			AND stay_start_date < $6::date
			AND stay_end_date > $5::date
		`,
		ref.Kind,
		ref.ID,
		entity.BookingStatusPendingPayment,
		entity.BookingStatusCompleted,
		start.Format(dateLayout),
		end.Format(dateLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("could not select bookings: %w", err)
	}

	return toEntities(rows), nil
}

func (t *postgresTx) GetBookingForUpdate(ctx context.Context, bookingID string) (entity.Booking, error) {
	if _, err := uuid.Parse(bookingID); err != nil {
		return entity.Booking{}, entity.ErrNotFound
	}

	var row bookingRow
	err := t.tx.GetContext(ctx, &row, `SELECT `+bookingColumns+` FROM bookings WHERE booking_id = $1 FOR UPDATE`, bookingID)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Booking{}, entity.ErrNotFound
	} else if err != nil {
		return entity.Booking{}, fmt.Errorf("could not get booking: %w", err)
	}

	return row.toEntity(), nil
}

func (t *postgresTx) InsertBooking(ctx context.Context, b entity.Booking) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO
			bookings (`+bookingColumns+`)
		VALUES
			($1, $2, $3, $4, $5, $6::date, $7::date, $8, $9, $10, $11, $12, $13, $14, $15)
		`,
		b.ID,
		b.Property.Kind,
		b.Property.ID,
		b.UserID,
		b.MerchantID,
		b.StayStartDate.Format(dateLayout),
		b.StayEndDate.Format(dateLayout),
		b.PricePerMonth,
		b.TotalPrice,
		b.PaymentSessionID,
		b.PaymentIntentID,
		b.PaymentProcessing,
		b.Status,
		b.CreatedAt,
		b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("could not insert booking: %w", err)
	}

	return nil
}

func (t *postgresTx) UpdateBookingStatus(ctx context.Context, bookingID string, status entity.BookingStatus) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE bookings SET status = $2, updated_at = NOW() WHERE booking_id = $1
		`, bookingID, status)
	if err != nil {
		return fmt.Errorf("could not update booking status: %w", err)
	}

	return expectAffected(res)
}

func (t *postgresTx) SetPaymentIntent(ctx context.Context, bookingID string, paymentIntentID string) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE bookings SET payment_intent_id = $2, updated_at = NOW() WHERE booking_id = $1
		`, bookingID, paymentIntentID)
	if err != nil {
		return fmt.Errorf("could not set payment intent: %w", err)
	}

	return expectAffected(res)
}

func (t *postgresTx) DeleteBooking(ctx context.Context, bookingID string) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM bookings WHERE booking_id = $1`, bookingID)
	if err != nil {
		return fmt.Errorf("could not delete booking: %w", err)
	}

	return nil
}

func (t *postgresTx) Publish(ctx context.Context, event entity.Event) error {
	return t.eventBus.Publish(ctx, event)
}

func expectAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return entity.ErrNotFound
	}

	return nil
}
