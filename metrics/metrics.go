package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "stays"

var messageLabels = []string{"topic", "handler"}

var (
	MessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "processed_total",
			Help:      "The total number of messages handled by the router",
		},
		messageLabels,
	)

	MessagesProcessingFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "processing_failed_total",
			Help:      "The total number of handler attempts that returned an error",
		},
		messageLabels,
	)

	// MessagesProcessingDuration has quantiles 0.5, 0.9 and 0.99.
	MessagesProcessingDuration = promauto.NewSummaryVec(
		prometheus.SummaryOpts{
			Namespace:  namespace,
			Subsystem:  "messages",
			Name:       "processing_duration_seconds",
			Help:       "The time spent in message handlers",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		messageLabels,
	)
)

var (
	BookingsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bookings",
			Name:      "created_total",
			Help:      "The total number of bookings placed on hold",
		},
	)

	BookingConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bookings",
			Name:      "conflicts_total",
			Help:      "The total number of rejected bookings because of an overlapping range",
		},
	)

	BookingsReclaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bookings",
			Name:      "reclaimed_total",
			Help:      "The total number of stale unpaid holds deleted",
		},
	)

	// PaymentConfirmations is labeled by result: confirmed, duplicate, rejected, pending, processing,
	// expired, failed.
	PaymentConfirmations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bookings",
			Name:      "payment_confirmations_total",
			Help:      "The total number of payment confirmations by result",
		},
		[]string{"result"},
	)

	BookingsCancelled = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bookings",
			Name:      "cancelled_total",
			Help:      "The total number of cancelled bookings",
		},
	)

	RefundedAmountMinor = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bookings",
			Name:      "refunded_amount_minor_total",
			Help:      "The total refunded amount in minor currency units",
		},
	)

	RefundFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bookings",
			Name:      "refund_failures_total",
			Help:      "The total number of cancellations whose refund could not be issued",
		},
	)

	TransactionRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bookings",
			Name:      "transaction_retries_total",
			Help:      "The total number of retried transactions after a transient failure",
		},
	)
)

// ObserveMessage records one handler attempt. Retried messages are counted once per attempt.
func ObserveMessage(topic, handler string, started time.Time, err error) {
	labels := prometheus.Labels{"topic": topic, "handler": handler}

	if err != nil {
		MessagesProcessingFailed.With(labels).Inc()
	}
	MessagesProcessed.With(labels).Inc()
	MessagesProcessingDuration.With(labels).Observe(time.Since(started).Seconds())
}
