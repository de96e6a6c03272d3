package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"

	"stays/entity"
	"stays/metrics"
)

type StaleBookingsDeleter interface {
	DeleteStale(ctx context.Context, createdBefore, sessionlessCreatedBefore time.Time) (int64, error)
}

// Reclaimer frees date ranges held by bookings whose payment never arrived.
type Reclaimer struct {
	repo   StaleBookingsDeleter
	events EventPublisher

	holdGrace        time.Duration
	sessionOpenGrace time.Duration
	now              func() time.Time
}

func NewReclaimer(
	repo StaleBookingsDeleter,
	events EventPublisher,
	holdGrace time.Duration,
	sessionOpenGrace time.Duration,
	now func() time.Time,
) *Reclaimer {
	if now == nil {
		now = time.Now
	}

	return &Reclaimer{
		repo:             repo,
		events:           events,
		holdGrace:        holdGrace,
		sessionOpenGrace: sessionOpenGrace,
		now:              now,
	}
}

// Run deletes stale holds and returns how many were removed. Running it twice in a row is a no-op
// the second time.
func (r *Reclaimer) Run(ctx context.Context) (int64, error) {
	now := r.now().UTC()

	deleted, err := r.repo.DeleteStale(ctx, now.Add(-r.holdGrace), now.Add(-r.sessionOpenGrace))
	if err != nil {
		return 0, fmt.Errorf("could not delete stale bookings: %w", err)
	}
	if deleted == 0 {
		return 0, nil
	}

	metrics.BookingsReclaimed.Add(float64(deleted))
	log.FromContext(ctx).WithField("count", deleted).Info("Reclaimed stale bookings")

	if r.events != nil {
		err = r.events.Publish(ctx, entity.BookingsReclaimed_v1{
			Header: entity.NewEventHeader(),
			Count:  deleted,
		})
		if err != nil {
			log.FromContext(ctx).WithError(err).Warn("Could not publish BookingsReclaimed_v1")
		}
	}

	return deleted, nil
}
