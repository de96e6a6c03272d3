package booking

import (
	"context"
	"fmt"

	"stays/entity"
)

// ListBookings returns the user's bookings after stale holds were reclaimed.
func (s *Service) ListBookings(ctx context.Context, userID string) ([]entity.Booking, error) {
	if _, err := s.reclaimer.Run(ctx); err != nil {
		return nil, err
	}

	bookings, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("could not find bookings of user %s: %w", userID, err)
	}

	return bookings, nil
}
