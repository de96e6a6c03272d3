package entity

// ConfirmPayment asks for a checkout session to be reconciled with its booking.
// Source tells where the confirmation came from (webhook, manual, ...).
// PaymentFailed releases the hold instead, the gateway gave up on a delayed payment.
type ConfirmPayment struct {
	Header        EventHeader `json:"header"`
	SessionID     string      `json:"session_id"`
	Source        string      `json:"source"`
	PaymentFailed bool        `json:"payment_failed,omitempty"`
}
