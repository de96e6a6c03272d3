package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"stays/entity"
)

type PaymentMock struct {
	mock sync.Mutex

	Sessions map[string]entity.CheckoutSession
	Requests map[string]entity.CheckoutSessionRequest
	Refunds  map[string]entity.RefundRequest

	CreateSessionErr error
	RefundErr        error

	// OnSessionCreated runs after a session is stored, before it's returned.
	OnSessionCreated func(session entity.CheckoutSession)
}

func (c *PaymentMock) CreateCheckoutSession(ctx context.Context, req entity.CheckoutSessionRequest) (entity.CheckoutSession, error) {
	c.mock.Lock()
	defer c.mock.Unlock()

	if c.CreateSessionErr != nil {
		return entity.CheckoutSession{}, c.CreateSessionErr
	}
	if c.Sessions == nil {
		c.Sessions = make(map[string]entity.CheckoutSession)
		c.Requests = make(map[string]entity.CheckoutSessionRequest)
	}

	id := "cs_test_" + uuid.NewString()
	session := entity.CheckoutSession{
		ID:            id,
		URL:           "https://checkout.stripe.com/c/pay/" + id,
		Status:        entity.SessionStatusOpen,
		PaymentStatus: "unpaid",
		BookingID:     req.BookingID,
	}
	c.Sessions[id] = session
	c.Requests[id] = req

	if c.OnSessionCreated != nil {
		c.OnSessionCreated(session)
	}

	return session, nil
}

func (c *PaymentMock) RetrieveSession(ctx context.Context, sessionID string) (entity.CheckoutSession, error) {
	c.mock.Lock()
	defer c.mock.Unlock()

	s, ok := c.Sessions[sessionID]
	if !ok {
		return entity.CheckoutSession{}, &entity.GatewayError{
			Op:  "retrieve checkout session",
			Err: fmt.Errorf("no such checkout session: %s", sessionID),
		}
	}

	return s, nil
}

func (c *PaymentMock) ExpireSession(ctx context.Context, sessionID string) error {
	c.mock.Lock()
	defer c.mock.Unlock()

	s, ok := c.Sessions[sessionID]
	if !ok {
		return &entity.GatewayError{
			Op:  "expire checkout session",
			Err: fmt.Errorf("no such checkout session: %s", sessionID),
		}
	}
	s.Status = entity.SessionStatusExpired
	c.Sessions[sessionID] = s

	return nil
}

func (c *PaymentMock) CreateRefund(ctx context.Context, req entity.RefundRequest) error {
	c.mock.Lock()
	defer c.mock.Unlock()

	if c.RefundErr != nil {
		return c.RefundErr
	}
	if c.Refunds == nil {
		c.Refunds = make(map[string]entity.RefundRequest)
	}

	c.Refunds[req.IdempotencyKey] = req

	return nil
}

// MockWebhookSignature is the only signature ParseWebhook of PaymentMock accepts.
const MockWebhookSignature = "mock-signature"

// ParseWebhook reads payloads shaped like entity.PaymentWebhookEvent.
func (c *PaymentMock) ParseWebhook(payload []byte, signature string) (entity.PaymentWebhookEvent, error) {
	if signature != MockWebhookSignature {
		return entity.PaymentWebhookEvent{}, errors.New("invalid webhook signature")
	}

	var event struct {
		ID        string `json:"id"`
		Type      string `json:"type"`
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return entity.PaymentWebhookEvent{}, fmt.Errorf("could not unmarshal webhook: %w", err)
	}

	return entity.PaymentWebhookEvent{
		ID:            event.ID,
		Type:          event.Type,
		SessionID:     event.SessionID,
		PaymentFailed: event.Type == "checkout.session.async_payment_failed",
	}, nil
}

// MarkPaid simulates the customer completing the checkout.
func (c *PaymentMock) MarkPaid(sessionID string, paymentIntentID string) {
	c.mock.Lock()
	defer c.mock.Unlock()

	s := c.Sessions[sessionID]
	s.Status = entity.SessionStatusComplete
	s.PaymentStatus = "paid"
	s.PaymentIntentID = paymentIntentID
	c.Sessions[sessionID] = s
}

// MarkProcessing simulates a checkout finished with a payment method that settles later.
func (c *PaymentMock) MarkProcessing(sessionID string, paymentIntentID string) {
	c.mock.Lock()
	defer c.mock.Unlock()

	s := c.Sessions[sessionID]
	s.Status = entity.SessionStatusComplete
	s.PaymentStatus = "unpaid"
	s.PaymentIntentID = paymentIntentID
	c.Sessions[sessionID] = s
}

func (c *PaymentMock) MarkExpired(sessionID string) {
	_ = c.ExpireSession(context.Background(), sessionID)
}

func (c *PaymentMock) Session(sessionID string) (entity.CheckoutSession, bool) {
	c.mock.Lock()
	defer c.mock.Unlock()

	s, ok := c.Sessions[sessionID]
	return s, ok
}

func (c *PaymentMock) SessionForBooking(bookingID string) (entity.CheckoutSession, bool) {
	c.mock.Lock()
	defer c.mock.Unlock()

	for _, s := range c.Sessions {
		if s.BookingID == bookingID {
			return s, true
		}
	}

	return entity.CheckoutSession{}, false
}

func (c *PaymentMock) RefundsCount() int {
	c.mock.Lock()
	defer c.mock.Unlock()

	return len(c.Refunds)
}
