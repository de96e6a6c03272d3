package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"

	"stays/entity"
	"stays/metrics"
)

const maxProductImages = 8

type ConfirmResult struct {
	Success bool `json:"success"`
}

// openSession opens a checkout session for a freshly placed hold and attaches it to the booking.
// When the gateway refuses, the hold is released so the range doesn't stay blocked until reclaimed.
func (s *Service) openSession(
	ctx context.Context,
	booking entity.Booking,
	property entity.Property,
	email string,
) (entity.CheckoutSession, error) {
	images := property.Pictures
	if len(images) > maxProductImages {
		images = images[:maxProductImages]
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, entity.CheckoutSessionRequest{
		BookingID:          booking.ID,
		AmountMinor:        ToMinorUnits(booking.TotalPrice),
		Currency:           s.config.Currency,
		SuccessURL:         s.config.SuccessURL,
		CancelURL:          s.config.CancelURL,
		ExpiresAt:          s.now().Add(s.config.SessionExpiry),
		ReceiptEmail:       email,
		ProductName:        property.Name,
		ProductDescription: property.Description,
		ProductImages:      images,
	})
	if err != nil {
		delErr := s.repo.InTx(ctx, s.config.CreateTx, func(ctx context.Context, tx Tx) error {
			return tx.DeleteBooking(ctx, booking.ID)
		})
		if delErr != nil {
			log.FromContext(ctx).WithError(delErr).WithField("booking_id", booking.ID).Warn("Could not release hold")
		}
		return entity.CheckoutSession{}, gatewayError("create checkout session", err)
	}

	var paymentIntentID *string
	if session.PaymentIntentID != "" {
		paymentIntentID = &session.PaymentIntentID
	}

	err = s.repo.SetPaymentSession(ctx, booking.ID, session.ID, paymentIntentID)
	if errors.Is(err, entity.ErrNotFound) {
		logger := log.FromContext(ctx).WithField("booking_id", booking.ID).WithField("session_id", session.ID)
		if expErr := s.gateway.ExpireSession(ctx, session.ID); expErr != nil {
			logger.WithError(expErr).Error("Could not expire checkout session of a reclaimed hold")
		} else {
			logger.Warn("Hold reclaimed while opening checkout, session expired")
		}
		return entity.CheckoutSession{}, entity.ErrHoldExpired
	} else if err != nil {
		return entity.CheckoutSession{}, fmt.Errorf("could not attach payment session to booking %s: %w", booking.ID, err)
	}

	return session, nil
}

// ConfirmPayment reconciles a checkout session with its booking. Paid sessions complete the
// booking and expired ones release the hold. A session that is still open, or complete with a
// payment that hasn't settled, keeps its hold. Calling it again for the same session is a no-op.
func (s *Service) ConfirmPayment(ctx context.Context, sessionID string) (ConfirmResult, error) {
	session, err := s.gateway.RetrieveSession(ctx, sessionID)
	if err != nil {
		return ConfirmResult{}, gatewayError("retrieve checkout session", err)
	}

	logger := log.FromContext(ctx).
		WithField("session_id", sessionID).
		WithField("booking_id", session.BookingID)

	if !session.Paid() {
		switch session.Status {
		case entity.SessionStatusExpired:
			return s.releaseHold(ctx, sessionID, "expired")
		case entity.SessionStatusComplete:
			marked, err := s.repo.MarkPaymentProcessing(ctx, sessionID)
			if err != nil {
				return ConfirmResult{}, fmt.Errorf("could not mark payment as processing: %w", err)
			}

			metrics.PaymentConfirmations.WithLabelValues("processing").Inc()
			logger.WithField("marked", marked).Info("Checkout complete, waiting for the payment to settle")
		default:
			metrics.PaymentConfirmations.WithLabelValues("pending").Inc()
			logger.Info("Checkout still open, hold kept")
		}

		return ConfirmResult{Success: false}, nil
	}

	if session.BookingID == "" {
		metrics.PaymentConfirmations.WithLabelValues("rejected").Inc()
		logger.Warn("Paid session without booking id")
		return ConfirmResult{Success: false}, nil
	}

	result := "rejected"
	err = s.inTx(ctx, s.config.ConfirmTx, func(ctx context.Context, tx Tx) error {
		b, err := tx.GetBookingForUpdate(ctx, session.BookingID)
		if err != nil {
			if isNotFound(err) {
				result = "rejected"
				return nil
			}
			return fmt.Errorf("could not get booking: %w", err)
		}

		switch b.Status {
		case entity.BookingStatusCompleted:
			result = "duplicate"
			return nil
		case entity.BookingStatusPendingPayment:
		default:
			result = "rejected"
			return nil
		}

		if err := tx.UpdateBookingStatus(ctx, b.ID, entity.BookingStatusCompleted); err != nil {
			return fmt.Errorf("could not complete booking: %w", err)
		}
		if b.PaymentIntentID == nil && session.PaymentIntentID != "" {
			if err := tx.SetPaymentIntent(ctx, b.ID, session.PaymentIntentID); err != nil {
				return fmt.Errorf("could not store payment intent: %w", err)
			}
		}

		err = tx.Publish(ctx, entity.BookingConfirmed_v1{
			Header:           entity.NewEventHeaderWithIdempotencyKey("confirm-" + b.ID),
			BookingID:        b.ID,
			PaymentSessionID: sessionID,
		})
		if err != nil {
			return fmt.Errorf("could not publish BookingConfirmed_v1: %w", err)
		}

		result = "confirmed"
		return nil
	})
	if err != nil {
		return ConfirmResult{}, err
	}

	metrics.PaymentConfirmations.WithLabelValues(result).Inc()
	logger.WithField("result", result).Info("Payment confirmation processed")

	return ConfirmResult{Success: result == "confirmed" || result == "duplicate"}, nil
}

// ReleasePayment drops the hold of a session whose delayed payment was declined.
// A session the gateway reports as paid is confirmed instead.
func (s *Service) ReleasePayment(ctx context.Context, sessionID string) (ConfirmResult, error) {
	session, err := s.gateway.RetrieveSession(ctx, sessionID)
	if err != nil {
		return ConfirmResult{}, gatewayError("retrieve checkout session", err)
	}
	if session.Paid() {
		return s.ConfirmPayment(ctx, sessionID)
	}

	return s.releaseHold(ctx, sessionID, "failed")
}

func (s *Service) releaseHold(ctx context.Context, sessionID string, reason string) (ConfirmResult, error) {
	deleted, err := s.repo.DeleteUnpaidBySession(ctx, sessionID)
	if err != nil {
		return ConfirmResult{}, fmt.Errorf("could not release unpaid bookings: %w", err)
	}

	metrics.PaymentConfirmations.WithLabelValues(reason).Inc()
	log.FromContext(ctx).
		WithField("session_id", sessionID).
		WithField("reason", reason).
		WithField("deleted", deleted).
		Info("Payment not completed, hold released")

	return ConfirmResult{Success: false}, nil
}
