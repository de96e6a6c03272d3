package entity

type CancellationPolicy string

const (
	CancellationNonRefundable        CancellationPolicy = "NonRefundable"
	CancellationUntilArrivalDay      CancellationPolicy = "CancelUntilArrivalDay"
	CancellationOneDayBeforeArrival  CancellationPolicy = "OneDayBeforeArrival"
	CancellationTwoDaysBeforeArrival CancellationPolicy = "TwoDaysBeforeArrival"
)

type CancellationFine string

const (
	CancellationFinePartialStayPrice CancellationFine = "PartialStayPrice"
	CancellationFineFullStayPrice    CancellationFine = "FullStayPrice"
)

type Property struct {
	Ref         PropertyRef `json:"ref"`
	MerchantID  string      `json:"merchant_id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Pictures    []string    `json:"pictures"`

	PricePerMonth   float64  `json:"price_per_month"`
	DiscountedPrice *float64 `json:"discounted_price,omitempty"`

	CancellationPolicy CancellationPolicy `json:"cancellation_policy"`
	CancellationFine   CancellationFine   `json:"cancellation_fine"`
}

// EffectivePricePerMonth prefers the discounted price over the list price.
func (p Property) EffectivePricePerMonth() float64 {
	if p.DiscountedPrice != nil && *p.DiscountedPrice > 0 {
		return *p.DiscountedPrice
	}
	return p.PricePerMonth
}

type User struct {
	ID    string `json:"user_id" db:"user_id"`
	Email string `json:"email" db:"email"`
}
