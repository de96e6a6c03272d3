package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/google/uuid"

	"stays/entity"
	"stays/metrics"
)

type CreateBookingRequest struct {
	UserID        string
	Property      entity.PropertyRef
	StayStartDate time.Time
	StayEndDate   time.Time
}

// CreateBooking places a PENDING_PAYMENT hold on the property for the requested range and opens a
// checkout session for it. The returned string is the checkout URL the customer pays on.
func (s *Service) CreateBooking(ctx context.Context, req CreateBookingRequest) (entity.Booking, string, error) {
	start := entity.NormalizeDate(req.StayStartDate)
	end := entity.NormalizeDate(req.StayEndDate)
	if !end.After(start) {
		return entity.Booking{}, "", fmt.Errorf("%w: stay end date must be after stay start date", entity.ErrInvalidBooking)
	}
	if req.Property.ID == "" {
		return entity.Booking{}, "", fmt.Errorf("%w: missing property id", entity.ErrInvalidProperty)
	}

	user, err := s.users.Get(ctx, req.UserID)
	if err != nil {
		return entity.Booking{}, "", wrapNotFound(err, entity.ErrInvalidUser)
	}

	if _, err := s.reclaimer.Run(ctx); err != nil {
		return entity.Booking{}, "", err
	}

	booking, property, err := s.reserve(ctx, req.UserID, req.Property, start, end)
	if err != nil {
		return entity.Booking{}, "", err
	}

	log.FromContext(ctx).
		WithField("booking_id", booking.ID).
		WithField("property", booking.Property.String()).
		Info("Booking placed on hold")

	session, err := s.openSession(ctx, booking, property, user.Email)
	if err != nil {
		return entity.Booking{}, "", err
	}

	booking.PaymentSessionID = &session.ID
	if session.PaymentIntentID != "" {
		booking.PaymentIntentID = &session.PaymentIntentID
	}

	return booking, session.URL, nil
}

// reserve runs the validate-and-insert transaction. The property row lock serializes concurrent
// reservations of the same property, so the availability check always sees committed holds.
func (s *Service) reserve(
	ctx context.Context,
	userID string,
	ref entity.PropertyRef,
	start time.Time,
	end time.Time,
) (entity.Booking, entity.Property, error) {
	var (
		booking  entity.Booking
		property entity.Property
	)

	err := s.inTx(ctx, s.config.CreateTx, func(ctx context.Context, tx Tx) error {
		p, err := tx.LockProperty(ctx, ref)
		if err != nil {
			return wrapNotFound(err, entity.ErrInvalidProperty)
		}

		existing, err := tx.FindBookingsByProperty(ctx, ref, start, end)
		if err != nil {
			return fmt.Errorf("could not find bookings of property %s: %w", ref, err)
		}
		if HasConflict(existing, ref, start, end) {
			metrics.BookingConflicts.Inc()
			return entity.ErrConflict
		}

		pricePerMonth := p.EffectivePricePerMonth()
		now := s.now()

		b := entity.Booking{
			ID:            uuid.NewString(),
			Property:      ref,
			UserID:        userID,
			MerchantID:    p.MerchantID,
			StayStartDate: start,
			StayEndDate:   end,
			PricePerMonth: pricePerMonth,
			TotalPrice:    TotalPrice(pricePerMonth, start, end),
			Status:        entity.BookingStatusPendingPayment,
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		if err := tx.InsertBooking(ctx, b); err != nil {
			return fmt.Errorf("could not insert booking: %w", err)
		}

		err = tx.Publish(ctx, entity.BookingMade_v1{
			Header:        entity.NewEventHeaderWithIdempotencyKey(b.ID),
			BookingID:     b.ID,
			Property:      b.Property,
			UserID:        b.UserID,
			MerchantID:    b.MerchantID,
			StayStartDate: b.StayStartDate,
			StayEndDate:   b.StayEndDate,
			TotalPrice:    b.TotalPrice,
		})
		if err != nil {
			return fmt.Errorf("could not publish BookingMade_v1: %w", err)
		}

		booking, property = b, p
		return nil
	})
	if err != nil {
		return entity.Booking{}, entity.Property{}, err
	}

	metrics.BookingsCreated.Inc()

	return booking, property, nil
}
