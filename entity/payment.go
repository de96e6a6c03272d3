package entity

import "time"

const PaymentStatusPaid = "paid"

// Checkout session lifecycle. A complete session may still be unpaid while a delayed payment
// method (bank debit and similar) settles.
const (
	SessionStatusOpen     = "open"
	SessionStatusComplete = "complete"
	SessionStatusExpired  = "expired"
)

type CheckoutSessionRequest struct {
	BookingID    string
	AmountMinor  int64
	Currency     string
	SuccessURL   string
	CancelURL    string
	ExpiresAt    time.Time
	ReceiptEmail string

	ProductName        string
	ProductDescription string
	ProductImages      []string
}

type CheckoutSession struct {
	ID              string
	URL             string
	PaymentIntentID string
	Status          string
	PaymentStatus   string
	BookingID       string
}

func (s CheckoutSession) Paid() bool {
	return s.PaymentStatus == PaymentStatusPaid
}

type RefundRequest struct {
	PaymentIntentID string
	AmountMinor     int64
	IdempotencyKey  string
}

// PaymentWebhookEvent is a verified gateway notification about a checkout session.
// PaymentFailed is set when the gateway reports that a delayed payment was declined.
type PaymentWebhookEvent struct {
	ID            string
	Type          string
	SessionID     string
	PaymentFailed bool
}
