package entity

import (
	"errors"
	"fmt"
)

var (
	ErrConflict           = errors.New("property already booked in this range")
	ErrInvalidProperty    = errors.New("invalid property")
	ErrInvalidBooking     = errors.New("invalid booking")
	ErrInvalidUser        = errors.New("invalid user")
	ErrNotFound           = errors.New("not found")
	ErrTransactionTimeout = errors.New("transaction timed out")

	// ErrHoldExpired means the hold was reclaimed while its checkout session was being opened.
	ErrHoldExpired = errors.New("booking hold expired before checkout was opened")

	// ErrTransientTx marks serialization failures and deadlocks reported by the store.
	ErrTransientTx = errors.New("transient transaction failure")
)

// GatewayError is returned when a payment gateway call failed after the client retries.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway %s failed: %s", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// ReconciliationError means a booking was cancelled but the refund could not be issued.
// It needs manual operator intervention and must not be retried blindly.
type ReconciliationError struct {
	BookingID       string
	PaymentIntentID string
	AmountMinor     int64
	Err             error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf(
		"booking %s cancelled but refund of %d (payment intent %s) failed: %s",
		e.BookingID,
		e.AmountMinor,
		e.PaymentIntentID,
		e.Err,
	)
}

func (e *ReconciliationError) Unwrap() error {
	return e.Err
}
