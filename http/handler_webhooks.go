package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/labstack/echo/v4"

	"stays/entity"
)

const maxWebhookPayload = 65536

// PostStripeWebhook turns verified checkout session notifications into ConfirmPayment commands.
// Reconciliation happens asynchronously, so the gateway gets its 200 as soon as the command is sent.
func (s Server) PostStripeWebhook(c echo.Context) error {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Response(), c.Request().Body, maxWebhookPayload))
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "webhook payload too large")
	} else if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "could not read webhook payload")
	}

	event, err := s.webhooks.ParseWebhook(payload, c.Request().Header.Get("Stripe-Signature"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	logger := log.FromContext(c.Request().Context()).
		WithField("webhook_event_id", event.ID).
		WithField("webhook_event_type", event.Type)

	if event.SessionID == "" {
		logger.Debug("Ignoring webhook event")
		return c.NoContent(http.StatusOK)
	}

	err = s.commandBus.Send(c.Request().Context(), &entity.ConfirmPayment{
		Header:        entity.NewEventHeaderWithIdempotencyKey(event.ID),
		SessionID:     event.SessionID,
		Source:        "webhook:" + event.Type,
		PaymentFailed: event.PaymentFailed,
	})
	if err != nil {
		return err
	}

	logger.WithField("session_id", event.SessionID).Info("Payment confirmation requested")

	return c.NoContent(http.StatusOK)
}
