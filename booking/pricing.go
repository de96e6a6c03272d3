package booking

import (
	"math"
	"time"

	"stays/entity"
)

const daysPerMonth = 30

// TotalPrice prorates a monthly price over the stay length in whole days.
func TotalPrice(pricePerMonth float64, start, end time.Time) float64 {
	return pricePerMonth * float64(entity.DaysBetween(start, end)) / daysPerMonth
}

// ToMinorUnits converts an amount in currency units to cents.
func ToMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
