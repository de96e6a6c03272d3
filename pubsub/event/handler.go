package event

import (
	"context"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"

	"stays/entity"
)

type OpsReadModel interface {
	OnBookingMade(ctx context.Context, event *entity.BookingMade_v1) error
	OnBookingConfirmed(ctx context.Context, event *entity.BookingConfirmed_v1) error
	OnBookingCancelled(ctx context.Context, event *entity.BookingCancelled_v1) error
	OnBookingRefundFailed(ctx context.Context, event *entity.BookingRefundFailed_v1) error
}

type Handler struct {
	opsReadModel OpsReadModel
}

func NewHandler(opsReadModel OpsReadModel) Handler {
	if opsReadModel == nil {
		panic("missing opsReadModel")
	}

	return Handler{opsReadModel: opsReadModel}
}

func (h Handler) Handlers() []cqrs.EventHandler {
	return []cqrs.EventHandler{
		cqrs.NewEventHandler("ops_read_model.OnBookingMade", h.opsReadModel.OnBookingMade),
		cqrs.NewEventHandler("ops_read_model.OnBookingConfirmed", h.opsReadModel.OnBookingConfirmed),
		cqrs.NewEventHandler("ops_read_model.OnBookingCancelled", h.opsReadModel.OnBookingCancelled),
		cqrs.NewEventHandler("ops_read_model.OnBookingRefundFailed", h.opsReadModel.OnBookingRefundFailed),
		h.AlertRefundFailedHandler(),
		h.LogBookingsReclaimedHandler(),
	}
}

// AlertRefundFailedHandler surfaces refunds that need manual reconciliation in the service logs.
func (h Handler) AlertRefundFailedHandler() cqrs.EventHandler {
	return cqrs.NewEventHandler(
		"AlertRefundFailed",
		func(ctx context.Context, event *entity.BookingRefundFailed_v1) error {
			log.FromContext(ctx).
				WithField("booking_id", event.BookingID).
				WithField("payment_intent_id", event.PaymentIntentID).
				WithField("refund_amount_minor", event.RefundAmountMinor).
				Errorf("Refund needs manual reconciliation: %s", event.Reason)

			return nil
		},
	)
}

func (h Handler) LogBookingsReclaimedHandler() cqrs.EventHandler {
	return cqrs.NewEventHandler(
		"LogBookingsReclaimed",
		func(ctx context.Context, event *entity.BookingsReclaimed_v1) error {
			log.FromContext(ctx).WithField("count", event.Count).Info("Stale bookings reclaimed")
			return nil
		},
	)
}
