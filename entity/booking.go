package entity

import (
	"fmt"
	"time"
)

type BookingStatus string

const (
	BookingStatusPendingPayment BookingStatus = "PENDING_PAYMENT"
	BookingStatusCompleted      BookingStatus = "COMPLETED"
	BookingStatusCancelled      BookingStatus = "CANCELLED"
)

// IsActive reports whether the booking still holds its date range.
func (s BookingStatus) IsActive() bool {
	return s == BookingStatusPendingPayment || s == BookingStatusCompleted
}

type PropertyKind string

const (
	PropertyKindLongStay  PropertyKind = "LONG_STAY"
	PropertyKindShortStay PropertyKind = "SHORT_STAY"
)

func ParsePropertyKind(s string) (PropertyKind, error) {
	switch PropertyKind(s) {
	case PropertyKindLongStay, PropertyKindShortStay:
		return PropertyKind(s), nil
	default:
		return "", fmt.Errorf("unknown property type %q", s)
	}
}

// PropertyRef points at exactly one long-stay or short-stay property.
type PropertyRef struct {
	Kind PropertyKind `json:"kind"`
	ID   string       `json:"id"`
}

func LongStay(id string) PropertyRef {
	return PropertyRef{Kind: PropertyKindLongStay, ID: id}
}

func ShortStay(id string) PropertyRef {
	return PropertyRef{Kind: PropertyKindShortStay, ID: id}
}

func (r PropertyRef) String() string {
	return string(r.Kind) + "/" + r.ID
}

type Booking struct {
	ID         string      `json:"booking_id"`
	Property   PropertyRef `json:"property"`
	UserID     string      `json:"user_id"`
	MerchantID string      `json:"merchant_id"`

	StayStartDate time.Time `json:"stay_start_date"`
	StayEndDate   time.Time `json:"stay_end_date"`

	PricePerMonth float64 `json:"price_per_month"`
	TotalPrice    float64 `json:"total_price"`

	PaymentSessionID *string `json:"payment_session_id,omitempty"`
	PaymentIntentID  *string `json:"payment_intent_id,omitempty"`

	// PaymentProcessing marks a hold whose checkout is finished but whose payment hasn't settled yet.
	// Such holds aren't reclaimed, the gateway reports the outcome.
	PaymentProcessing bool `json:"payment_processing,omitempty"`

	Status BookingStatus `json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StayDays is the number of whole nights between start and end.
func (b Booking) StayDays() int {
	return DaysBetween(b.StayStartDate, b.StayEndDate)
}

// NormalizeDate truncates t to midnight UTC of its UTC calendar day.
func NormalizeDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func DaysBetween(start, end time.Time) int {
	return int(NormalizeDate(end).Sub(NormalizeDate(start)).Hours() / 24)
}
