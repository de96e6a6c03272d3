package command

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/components/cqrs"

	"stays/booking"
)

type PaymentConfirmer interface {
	ConfirmPayment(ctx context.Context, sessionID string) (booking.ConfirmResult, error)
	ReleasePayment(ctx context.Context, sessionID string) (booking.ConfirmResult, error)
}

type Handler struct {
	payments PaymentConfirmer
}

func NewHandler(payments PaymentConfirmer) Handler {
	if payments == nil {
		panic("missing payments")
	}

	return Handler{payments: payments}
}

func (h Handler) Handlers() []cqrs.CommandHandler {
	return []cqrs.CommandHandler{
		h.ConfirmPaymentHandler(),
	}
}
