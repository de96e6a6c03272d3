package bookings

import (
	"time"

	"github.com/lib/pq"

	"stays/entity"
)

const dateLayout = "2006-01-02"

const bookingColumns = `
	booking_id, property_kind, property_id, user_id, merchant_id,
	stay_start_date, stay_end_date, price_per_month, total_price,
	payment_session_id, payment_intent_id, payment_processing, status, created_at, updated_at`

type bookingRow struct {
	BookingID         string    `db:"booking_id"`
	PropertyKind      string    `db:"property_kind"`
	PropertyID        string    `db:"property_id"`
	UserID            string    `db:"user_id"`
	MerchantID        string    `db:"merchant_id"`
	StayStartDate     time.Time `db:"stay_start_date"`
	StayEndDate       time.Time `db:"stay_end_date"`
	PricePerMonth     float64   `db:"price_per_month"`
	TotalPrice        float64   `db:"total_price"`
	PaymentSessionID  *string   `db:"payment_session_id"`
	PaymentIntentID   *string   `db:"payment_intent_id"`
	PaymentProcessing bool      `db:"payment_processing"`
	Status            string    `db:"status"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

func (r bookingRow) toEntity() entity.Booking {
	return entity.Booking{
		ID:                r.BookingID,
		Property:          entity.PropertyRef{Kind: entity.PropertyKind(r.PropertyKind), ID: r.PropertyID},
		UserID:            r.UserID,
		MerchantID:        r.MerchantID,
		StayStartDate:     entity.NormalizeDate(r.StayStartDate),
		StayEndDate:       entity.NormalizeDate(r.StayEndDate),
		PricePerMonth:     r.PricePerMonth,
		TotalPrice:        r.TotalPrice,
		PaymentSessionID:  r.PaymentSessionID,
		PaymentIntentID:   r.PaymentIntentID,
		PaymentProcessing: r.PaymentProcessing,
		Status:            entity.BookingStatus(r.Status),
		CreatedAt:         r.CreatedAt.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
	}
}

func toEntities(rows []bookingRow) []entity.Booking {
	bookings := make([]entity.Booking, 0, len(rows))
	for _, r := range rows {
		bookings = append(bookings, r.toEntity())
	}

	return bookings
}

const propertyColumns = `
	property_kind, property_id, merchant_id, name, description, pictures,
	price_per_month, discounted_price, cancellation_policy, cancellation_fine`

type propertyRow struct {
	PropertyKind       string         `db:"property_kind"`
	PropertyID         string         `db:"property_id"`
	MerchantID         string         `db:"merchant_id"`
	Name               string         `db:"name"`
	Description        string         `db:"description"`
	Pictures           pq.StringArray `db:"pictures"`
	PricePerMonth      float64        `db:"price_per_month"`
	DiscountedPrice    *float64       `db:"discounted_price"`
	CancellationPolicy string         `db:"cancellation_policy"`
	CancellationFine   string         `db:"cancellation_fine"`
}

func (r propertyRow) toEntity() entity.Property {
	return entity.Property{
		Ref:                entity.PropertyRef{Kind: entity.PropertyKind(r.PropertyKind), ID: r.PropertyID},
		MerchantID:         r.MerchantID,
		Name:               r.Name,
		Description:        r.Description,
		Pictures:           []string(r.Pictures),
		PricePerMonth:      r.PricePerMonth,
		DiscountedPrice:    r.DiscountedPrice,
		CancellationPolicy: entity.CancellationPolicy(r.CancellationPolicy),
		CancellationFine:   entity.CancellationFine(r.CancellationFine),
	}
}
