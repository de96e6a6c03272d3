package command

import (
	"context"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"

	"stays/entity"
)

// ConfirmPaymentHandler reconciles checkout sessions reported by the payment webhook.
// A session that is not paid yet is not an error, a later notification reconciles it again.
func (h Handler) ConfirmPaymentHandler() cqrs.CommandHandler {
	return cqrs.NewCommandHandler(
		"ConfirmPaymentHandler",
		func(ctx context.Context, cmd *entity.ConfirmPayment) error {
			logger := log.FromContext(ctx).
				WithField("session_id", cmd.SessionID).
				WithField("source", cmd.Source)

			reconcile := h.payments.ConfirmPayment
			if cmd.PaymentFailed {
				reconcile = h.payments.ReleasePayment
			}

			result, err := reconcile(ctx, cmd.SessionID)
			if err != nil {
				return err
			}

			logger.WithField("success", result.Success).Info("Payment confirmation handled")
			return nil
		},
	)
}
