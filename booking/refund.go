package booking

import (
	"time"

	"stays/entity"
)

// RefundAmount computes how much of the booking's total price goes back to the customer
// when it is cancelled at now.
//
// The eligibility check compares the stay start with now exactly as the policy was
// originally implemented: a refund is granted only once the start date lies before the
// policy threshold. One day of the stay is always kept as the fine.
func RefundAmount(b entity.Booking, p entity.Property, now time.Time) float64 {
	if p.CancellationPolicy == entity.CancellationNonRefundable {
		return 0
	}
	if p.CancellationFine == entity.CancellationFineFullStayPrice {
		return 0
	}

	totalDays := b.StayDays()
	if totalDays <= 0 {
		return 0
	}

	var threshold time.Time
	switch p.CancellationPolicy {
	case entity.CancellationUntilArrivalDay:
		threshold = now
	case entity.CancellationOneDayBeforeArrival:
		threshold = now.AddDate(0, 0, -1)
	case entity.CancellationTwoDaysBeforeArrival:
		threshold = now.AddDate(0, 0, -2)
	default:
		return 0
	}

	if !b.StayStartDate.Before(threshold) {
		return 0
	}

	return b.TotalPrice * float64(totalDays-1) / float64(totalDays)
}
