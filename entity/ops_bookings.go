package entity

import (
	"time"
)

type OpsBooking struct {
	BookingID string      `json:"booking_id"`
	Property  PropertyRef `json:"property"`
	UserID    string      `json:"user_id"`
	BookedAt  time.Time   `json:"booked_at"`

	StayStartDate time.Time `json:"stay_start_date"`
	StayEndDate   time.Time `json:"stay_end_date"`
	TotalPrice    float64   `json:"total_price"`

	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`

	RefundAmountMinor int64      `json:"refund_amount_minor"`
	RefundFailedAt    *time.Time `json:"refund_failed_at,omitempty"`
	RefundFailure     string     `json:"refund_failure,omitempty"`

	LastUpdate time.Time `json:"last_update"`
}
