package gateway

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"stays/entity"
)

const asyncPaymentFailed stripe.EventType = "checkout.session.async_payment_failed"

var checkoutSessionEvents = map[stripe.EventType]struct{}{
	"checkout.session.completed":               {},
	"checkout.session.expired":                 {},
	"checkout.session.async_payment_succeeded": {},
	asyncPaymentFailed:                         {},
}

// ParseWebhook verifies the signature of a Stripe webhook and extracts the checkout session it is
// about. Events unrelated to checkout sessions come back with an empty SessionID.
func (c StripeClient) ParseWebhook(payload []byte, signature string) (entity.PaymentWebhookEvent, error) {
	if c.webhookSecret == "" {
		return entity.PaymentWebhookEvent{}, errors.New("stripe webhook secret is not configured")
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, c.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return entity.PaymentWebhookEvent{}, fmt.Errorf("invalid stripe webhook: %w", err)
	}

	parsed := entity.PaymentWebhookEvent{
		ID:   event.ID,
		Type: string(event.Type),
	}

	if _, ok := checkoutSessionEvents[event.Type]; !ok {
		return parsed, nil
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return entity.PaymentWebhookEvent{}, fmt.Errorf("could not unmarshal checkout session: %w", err)
	}
	parsed.SessionID = session.ID
	parsed.PaymentFailed = event.Type == asyncPaymentFailed

	return parsed, nil
}
