package entity

import (
	"time"

	"github.com/google/uuid"
)

type Event interface {
	IsInternal() bool
}

type EventHeader struct {
	ID             string    `json:"id"`
	PublishedAt    time.Time `json:"published_at"`
	IdempotencyKey string    `json:"idempotency_key"`
}

func NewEventHeader() EventHeader {
	return EventHeader{
		ID:          uuid.NewString(),
		PublishedAt: time.Now().UTC(),
	}
}

func NewEventHeaderWithIdempotencyKey(idempotencyKey string) EventHeader {
	return EventHeader{
		ID:             uuid.NewString(),
		PublishedAt:    time.Now().UTC(),
		IdempotencyKey: idempotencyKey,
	}
}

type BookingMade_v1 struct {
	Header EventHeader `json:"header"`

	BookingID     string      `json:"booking_id"`
	Property      PropertyRef `json:"property"`
	UserID        string      `json:"user_id"`
	MerchantID    string      `json:"merchant_id"`
	StayStartDate time.Time   `json:"stay_start_date"`
	StayEndDate   time.Time   `json:"stay_end_date"`
	TotalPrice    float64     `json:"total_price"`
}

func (e BookingMade_v1) IsInternal() bool {
	return false
}

type BookingConfirmed_v1 struct {
	Header EventHeader `json:"header"`

	BookingID        string `json:"booking_id"`
	PaymentSessionID string `json:"payment_session_id"`
}

func (e BookingConfirmed_v1) IsInternal() bool {
	return false
}

type BookingCancelled_v1 struct {
	Header EventHeader `json:"header"`

	BookingID         string  `json:"booking_id"`
	UserID            string  `json:"user_id"`
	RefundAmount      float64 `json:"refund_amount"`
	RefundAmountMinor int64   `json:"refund_amount_minor"`
}

func (e BookingCancelled_v1) IsInternal() bool {
	return false
}

type BookingRefundFailed_v1 struct {
	Header EventHeader `json:"header"`

	BookingID         string `json:"booking_id"`
	PaymentIntentID   string `json:"payment_intent_id"`
	RefundAmountMinor int64  `json:"refund_amount_minor"`
	Reason            string `json:"reason"`
}

func (e BookingRefundFailed_v1) IsInternal() bool {
	return false
}

type BookingsReclaimed_v1 struct {
	Header EventHeader `json:"header"`

	Count int64 `json:"count"`
}

func (e BookingsReclaimed_v1) IsInternal() bool {
	return false
}

type InternalOpsReadModelUpdated struct {
	Header EventHeader `json:"header"`

	BookingID string `json:"booking_id"`
}

func (e InternalOpsReadModelUpdated) IsInternal() bool {
	return true
}

type DataLakeEvent struct {
	ID          string    `db:"event_id"`
	PublishedAt time.Time `db:"published_at"`
	Name        string    `db:"event_name"`
	Payload     []byte    `db:"event_payload"`
}
