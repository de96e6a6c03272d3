package migration

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/sirupsen/logrus"

	"stays/entity"
)

type EventSource interface {
	GetEvents(ctx context.Context) ([]entity.DataLakeEvent, error)
}

type OpsReadModel interface {
	OnBookingMade(ctx context.Context, event *entity.BookingMade_v1) error
	OnBookingConfirmed(ctx context.Context, event *entity.BookingConfirmed_v1) error
	OnBookingCancelled(ctx context.Context, event *entity.BookingCancelled_v1) error
	OnBookingRefundFailed(ctx context.Context, event *entity.BookingRefundFailed_v1) error
}

// RebuildOpsReadModel replays the data lake into the ops read model, oldest event first.
// It returns the number of replayed events.
func RebuildOpsReadModel(ctx context.Context, source EventSource, rm OpsReadModel) (int, error) {
	logger := log.FromContext(ctx)
	logger.Info("Rebuilding ops read model")

	events, err := source.GetEvents(ctx)
	if err != nil {
		return 0, fmt.Errorf("could not get events from data lake: %w", err)
	}

	logger.WithField("events_count", len(events)).Info("Has events to replay")

	replayed := 0
	for _, event := range events {
		start := time.Now()

		eventLogger := logger.WithFields(logrus.Fields{
			"event_name": event.Name,
			"event_id":   event.ID,
		})

		ok, err := replayEvent(ctx, event, rm)
		if err != nil {
			return replayed, fmt.Errorf("could not replay event %s (%s): %w", event.ID, event.Name, err)
		}
		if !ok {
			eventLogger.Debug("Event not used by the read model")
			continue
		}

		replayed++
		eventLogger.WithField("duration", time.Since(start)).Debug("Event replayed")
	}

	logger.WithField("replayed", replayed).Info("Ops read model rebuilt")

	return replayed, nil
}

func replayEvent(ctx context.Context, event entity.DataLakeEvent, rm OpsReadModel) (bool, error) {
	switch event.Name {
	case "BookingMade_v1":
		e, err := unmarshalDataLakeEvent[entity.BookingMade_v1](event)
		if err != nil {
			return false, err
		}
		return true, rm.OnBookingMade(ctx, e)
	case "BookingConfirmed_v1":
		e, err := unmarshalDataLakeEvent[entity.BookingConfirmed_v1](event)
		if err != nil {
			return false, err
		}
		return true, rm.OnBookingConfirmed(ctx, e)
	case "BookingCancelled_v1":
		e, err := unmarshalDataLakeEvent[entity.BookingCancelled_v1](event)
		if err != nil {
			return false, err
		}
		return true, rm.OnBookingCancelled(ctx, e)
	case "BookingRefundFailed_v1":
		e, err := unmarshalDataLakeEvent[entity.BookingRefundFailed_v1](event)
		if err != nil {
			return false, err
		}
		return true, rm.OnBookingRefundFailed(ctx, e)
	default:
		return false, nil
	}
}

func unmarshalDataLakeEvent[T any](event entity.DataLakeEvent) (*T, error) {
	eventInstance := new(T)

	if err := json.Unmarshal(event.Payload, eventInstance); err != nil {
		return nil, fmt.Errorf("could not unmarshal event %s: %w", event.Name, err)
	}

	return eventInstance, nil
}
