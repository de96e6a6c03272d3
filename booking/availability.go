package booking

import (
	"time"

	"stays/entity"
)

// Overlaps reports whether the half-open ranges [aStart, aEnd) and [bStart, bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// HasConflict reports whether any active booking of the property intersects [start, end).
// Cancelled bookings never block a range.
func HasConflict(existing []entity.Booking, property entity.PropertyRef, start, end time.Time) bool {
	for _, b := range existing {
		if b.Property != property || !b.Status.IsActive() {
			continue
		}
		if Overlaps(b.StayStartDate, b.StayEndDate, start, end) {
			return true
		}
	}

	return false
}
