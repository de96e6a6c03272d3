package booking_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"stays/booking"
	"stays/entity"
)

func day(d int) time.Time {
	return time.Date(2026, time.March, d, 0, 0, 0, 0, time.UTC)
}

func TestHasConflict(t *testing.T) {
	property := entity.LongStay("p-1")

	existing := []entity.Booking{
		{
			ID:            "b-1",
			Property:      property,
			StayStartDate: day(10),
			StayEndDate:   day(15),
			Status:        entity.BookingStatusCompleted,
		},
		{
			ID:            "b-2",
			Property:      property,
			StayStartDate: day(20),
			StayEndDate:   day(25),
			Status:        entity.BookingStatusCancelled,
		},
		{
			ID:            "b-3",
			Property:      entity.ShortStay("p-1"),
			StayStartDate: day(1),
			StayEndDate:   day(5),
			Status:        entity.BookingStatusPendingPayment,
		},
	}

	testCases := []struct {
		name     string
		start    time.Time
		end      time.Time
		conflict bool
	}{
		{name: "ends_when_existing_starts", start: day(5), end: day(10), conflict: false},
		{name: "starts_when_existing_ends", start: day(15), end: day(18), conflict: false},
		{name: "overlaps_start", start: day(8), end: day(11), conflict: true},
		{name: "overlaps_end", start: day(14), end: day(16), conflict: true},
		{name: "inside", start: day(11), end: day(12), conflict: true},
		{name: "covers", start: day(9), end: day(16), conflict: true},
		{name: "cancelled_booking_frees_range", start: day(21), end: day(23), conflict: false},
		{name: "same_id_other_kind", start: day(2), end: day(4), conflict: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.conflict, booking.HasConflict(existing, property, tc.start, tc.end))
		})
	}
}

func TestOverlaps_is_symmetric(t *testing.T) {
	assert.True(t, booking.Overlaps(day(1), day(5), day(4), day(8)))
	assert.True(t, booking.Overlaps(day(4), day(8), day(1), day(5)))
	assert.False(t, booking.Overlaps(day(1), day(5), day(5), day(8)))
	assert.False(t, booking.Overlaps(day(5), day(8), day(1), day(5)))
}
