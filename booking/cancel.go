package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"

	"stays/entity"
	"stays/metrics"
)

// CancelBooking cancels a completed booking owned by userID and refunds the part of the price the
// property's cancellation policy allows.
//
// The cancellation is committed before the refund is requested. If the refund then fails,
// a *entity.ReconciliationError is returned together with the cancelled booking.
func (s *Service) CancelBooking(ctx context.Context, bookingID string, userID string) (entity.Booking, error) {
	var (
		cancelled   entity.Booking
		refund      float64
		refundMinor int64
	)

	err := s.inTx(ctx, s.config.CancelTx, func(ctx context.Context, tx Tx) error {
		b, err := tx.GetBookingForUpdate(ctx, bookingID)
		if err != nil {
			return wrapNotFound(err, entity.ErrInvalidBooking)
		}
		if b.UserID != userID || b.Status != entity.BookingStatusCompleted {
			return fmt.Errorf("%w: booking %s can't be cancelled", entity.ErrInvalidBooking, bookingID)
		}

		p, err := tx.GetProperty(ctx, b.Property)
		if err != nil {
			return wrapNotFound(err, entity.ErrInvalidProperty)
		}

		now := s.now()
		refund = RefundAmount(b, p, now)
		refundMinor = ToMinorUnits(refund)

		if err := tx.UpdateBookingStatus(ctx, b.ID, entity.BookingStatusCancelled); err != nil {
			return fmt.Errorf("could not cancel booking: %w", err)
		}

		err = tx.Publish(ctx, entity.BookingCancelled_v1{
			Header:            entity.NewEventHeaderWithIdempotencyKey("cancel-" + b.ID),
			BookingID:         b.ID,
			UserID:            b.UserID,
			RefundAmount:      refund,
			RefundAmountMinor: refundMinor,
		})
		if err != nil {
			return fmt.Errorf("could not publish BookingCancelled_v1: %w", err)
		}

		b.Status = entity.BookingStatusCancelled
		b.UpdatedAt = now
		cancelled = b

		return nil
	})
	if err != nil {
		return entity.Booking{}, err
	}

	metrics.BookingsCancelled.Inc()

	logger := log.FromContext(ctx).
		WithField("booking_id", cancelled.ID).
		WithField("refund_amount_minor", refundMinor)

	if refundMinor <= 0 {
		logger.Info("Booking cancelled without refund")
		return cancelled, nil
	}

	if err := s.refund(ctx, cancelled, refundMinor); err != nil {
		return cancelled, err
	}

	metrics.RefundedAmountMinor.Add(float64(refundMinor))
	logger.Info("Booking cancelled and refunded")

	return cancelled, nil
}

func (s *Service) refund(ctx context.Context, b entity.Booking, amountMinor int64) error {
	var paymentIntentID string
	if b.PaymentIntentID != nil {
		paymentIntentID = *b.PaymentIntentID
	}

	var err error
	if paymentIntentID == "" {
		err = errors.New("booking has no payment intent")
	} else {
		err = s.gateway.CreateRefund(ctx, entity.RefundRequest{
			PaymentIntentID: paymentIntentID,
			AmountMinor:     amountMinor,
			IdempotencyKey:  "refund-" + b.ID,
		})
	}
	if err == nil {
		return nil
	}

	recErr := &entity.ReconciliationError{
		BookingID:       b.ID,
		PaymentIntentID: paymentIntentID,
		AmountMinor:     amountMinor,
		Err:             err,
	}

	metrics.RefundFailures.Inc()
	log.FromContext(ctx).WithError(recErr).Error("Refund failed, manual reconciliation required")

	pubErr := s.events.Publish(ctx, entity.BookingRefundFailed_v1{
		Header:            entity.NewEventHeaderWithIdempotencyKey("refund-failed-" + b.ID),
		BookingID:         b.ID,
		PaymentIntentID:   paymentIntentID,
		RefundAmountMinor: amountMinor,
		Reason:            err.Error(),
	})
	if pubErr != nil {
		log.FromContext(ctx).WithError(pubErr).Error("Could not publish BookingRefundFailed_v1")
	}

	return recErr
}
