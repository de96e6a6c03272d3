package read_model_ops_bookings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	dbLib "stays/db"
	"stays/entity"
)

type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

// OpsBookingReadModel keeps a denormalized view of every booking's lifecycle for operators,
// including refunds that need manual reconciliation.
type OpsBookingReadModel struct {
	db       *sqlx.DB
	eventBus EventPublisher
}

func NewOpsBookingReadModel(db *sqlx.DB, eventBus EventPublisher) OpsBookingReadModel {
	if db == nil {
		panic("db is nil")
	}
	if eventBus == nil {
		panic("eventBus is nil")
	}

	return OpsBookingReadModel{db: db, eventBus: eventBus}
}

func (r OpsBookingReadModel) AllBookings(ctx context.Context, refundFailedOnly bool) ([]entity.OpsBooking, error) {
	query := "SELECT payload FROM read_model_ops_bookings"
	if refundFailedOnly {
		query += " WHERE payload ? 'refund_failed_at'"
	}
	query += " ORDER BY payload->>'booked_at' ASC"

	var payloads [][]byte
	if err := r.db.SelectContext(ctx, &payloads, query); err != nil {
		return nil, fmt.Errorf("could not get booking read models: %w", err)
	}

	result := make([]entity.OpsBooking, 0, len(payloads))
	for _, payload := range payloads {
		var rm entity.OpsBooking
		if err := json.Unmarshal(payload, &rm); err != nil {
			return nil, fmt.Errorf("could not unmarshal booking read model: %w", err)
		}
		result = append(result, rm)
	}

	return result, nil
}

func (r OpsBookingReadModel) BookingReadModel(ctx context.Context, bookingID string) (entity.OpsBooking, error) {
	if _, err := uuid.Parse(bookingID); err != nil {
		return entity.OpsBooking{}, entity.ErrNotFound
	}

	rm, err := r.findReadModelByBookingID(ctx, bookingID, r.db)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.OpsBooking{}, entity.ErrNotFound
	}

	return rm, err
}

func (r OpsBookingReadModel) OnBookingMade(ctx context.Context, event *entity.BookingMade_v1) error {
	// this is the first event of a booking, so it creates the read model
	err := r.createReadModel(ctx, entity.OpsBooking{
		BookingID:     event.BookingID,
		Property:      event.Property,
		UserID:        event.UserID,
		BookedAt:      event.Header.PublishedAt,
		StayStartDate: event.StayStartDate,
		StayEndDate:   event.StayEndDate,
		TotalPrice:    event.TotalPrice,
		LastUpdate:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("could not create read model: %w", err)
	}

	return nil
}

func (r OpsBookingReadModel) OnBookingConfirmed(ctx context.Context, event *entity.BookingConfirmed_v1) error {
	return r.updateBookingReadModel(ctx, event.BookingID, func(rm entity.OpsBooking) (entity.OpsBooking, error) {
		confirmedAt := event.Header.PublishedAt
		rm.ConfirmedAt = &confirmedAt

		return rm, nil
	})
}

func (r OpsBookingReadModel) OnBookingCancelled(ctx context.Context, event *entity.BookingCancelled_v1) error {
	return r.updateBookingReadModel(ctx, event.BookingID, func(rm entity.OpsBooking) (entity.OpsBooking, error) {
		cancelledAt := event.Header.PublishedAt
		rm.CancelledAt = &cancelledAt
		rm.RefundAmountMinor = event.RefundAmountMinor

		return rm, nil
	})
}

func (r OpsBookingReadModel) OnBookingRefundFailed(ctx context.Context, event *entity.BookingRefundFailed_v1) error {
	return r.updateBookingReadModel(ctx, event.BookingID, func(rm entity.OpsBooking) (entity.OpsBooking, error) {
		failedAt := event.Header.PublishedAt
		rm.RefundFailedAt = &failedAt
		rm.RefundFailure = event.Reason
		rm.RefundAmountMinor = event.RefundAmountMinor

		return rm, nil
	})
}

func (r OpsBookingReadModel) createReadModel(ctx context.Context, booking entity.OpsBooking) error {
	payload, err := json.Marshal(booking)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO
			read_model_ops_bookings (payload, booking_id)
		VALUES
			($1, $2)
		ON CONFLICT (booking_id) DO NOTHING; -- read model may be already updated by another event, we don't want to override
		`, payload, booking.BookingID)
	if err != nil {
		return fmt.Errorf("could not create read model: %w", err)
	}

	return nil
}

func (r OpsBookingReadModel) updateBookingReadModel(
	ctx context.Context,
	bookingID string,
	updateFunc func(rm entity.OpsBooking) (entity.OpsBooking, error),
) error {
	return dbLib.UpdateInTx(
		ctx,
		r.db,
		dbLib.TxOptions{Isolation: sql.LevelRepeatableRead},
		func(ctx context.Context, tx *sqlx.Tx) error {
			rm, err := r.findReadModelByBookingID(ctx, bookingID, tx)
			if errors.Is(err, sql.ErrNoRows) {
				// events arrived out of order, it should spin until the read model is created
				return fmt.Errorf("read model for booking %s not exist yet", bookingID)
			} else if err != nil {
				return fmt.Errorf("could not find read model: %w", err)
			}

			updatedRm, err := updateFunc(rm)
			if err != nil {
				return err
			}

			if err := r.updateReadModel(ctx, tx, updatedRm); err != nil {
				return err
			}

			err = r.eventBus.Publish(ctx, entity.InternalOpsReadModelUpdated{
				Header:    entity.NewEventHeader(),
				BookingID: bookingID,
			})
			if err != nil {
				log.FromContext(ctx).Errorf("could not publish event InternalOpsReadModelUpdated: %s", err)
			}

			return nil
		},
	)
}

func (r OpsBookingReadModel) updateReadModel(ctx context.Context, tx *sqlx.Tx, rm entity.OpsBooking) error {
	rm.LastUpdate = time.Now()

	payload, err := json.Marshal(rm)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO
			read_model_ops_bookings (payload, booking_id)
		VALUES
			($1, $2)
		ON CONFLICT (booking_id) DO UPDATE SET payload = excluded.payload;
		`, payload, rm.BookingID)
	if err != nil {
		return fmt.Errorf("could not update read model: %w", err)
	}

	return nil
}

func (r OpsBookingReadModel) findReadModelByBookingID(
	ctx context.Context,
	bookingID string,
	db sqlx.QueryerContext,
) (entity.OpsBooking, error) {
	var payload []byte

	err := db.QueryRowxContext(
		ctx,
		"SELECT payload FROM read_model_ops_bookings WHERE booking_id = $1",
		bookingID,
	).Scan(&payload)
	if err != nil {
		return entity.OpsBooking{}, err
	}

	var rm entity.OpsBooking
	if err := json.Unmarshal(payload, &rm); err != nil {
		return entity.OpsBooking{}, err
	}

	return rm, nil
}
