package booking_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stays/booking"
	"stays/entity"
	"stays/gateway"
	"stays/mocks"
)

var testNow = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

type testDeps struct {
	service *booking.Service
	repo    *mocks.BookingsRepository
	payment *gateway.PaymentMock
	events  *mocks.EventPublisher
}

func newTestService(t *testing.T, properties ...entity.Property) testDeps {
	t.Helper()

	if len(properties) == 0 {
		properties = []entity.Property{testProperty()}
	}

	repo := mocks.NewBookingsRepository(properties...)
	users := mocks.NewUsersRepository(
		entity.User{ID: "user-1", Email: "user-1@example.com"},
		entity.User{ID: "user-2", Email: "user-2@example.com"},
	)
	payment := &gateway.PaymentMock{}
	events := &mocks.EventPublisher{}

	config := booking.DefaultConfig()
	config.SuccessURL = "https://stays.example.com/success"
	config.CancelURL = "https://stays.example.com/cancel"
	config.Now = func() time.Time { return testNow }

	return testDeps{
		service: booking.NewService(repo, users, payment, events, config),
		repo:    repo,
		payment: payment,
		events:  events,
	}
}

func testProperty() entity.Property {
	return entity.Property{
		Ref:                entity.LongStay("apartment-1"),
		MerchantID:         "merchant-1",
		Name:               "Sea view apartment",
		Description:        "Two rooms by the sea",
		Pictures:           []string{"1.jpg", "2.jpg", "3.jpg", "4.jpg", "5.jpg", "6.jpg", "7.jpg", "8.jpg", "9.jpg"},
		PricePerMonth:      3000,
		CancellationPolicy: entity.CancellationUntilArrivalDay,
		CancellationFine:   entity.CancellationFinePartialStayPrice,
	}
}

func createRequest(userID string, start, end time.Time) booking.CreateBookingRequest {
	return booking.CreateBookingRequest{
		UserID:        userID,
		Property:      entity.LongStay("apartment-1"),
		StayStartDate: start,
		StayEndDate:   end,
	}
}

func TestService_CreateBooking(t *testing.T) {
	ctx := context.Background()
	deps := newTestService(t)

	b, checkoutURL, err := deps.service.CreateBooking(ctx, createRequest("user-1", day(20), day(24)))
	require.NoError(t, err)

	assert.NotEmpty(t, checkoutURL)
	assert.Equal(t, entity.BookingStatusPendingPayment, b.Status)
	assert.Equal(t, "merchant-1", b.MerchantID)
	assert.InDelta(t, 400.0, b.TotalPrice, 0.0001)
	require.NotNil(t, b.PaymentSessionID)

	stored, ok := deps.repo.Booking(b.ID)
	require.True(t, ok)
	assert.Equal(t, b.PaymentSessionID, stored.PaymentSessionID)

	req := deps.payment.Requests[*b.PaymentSessionID]
	assert.Equal(t, int64(40000), req.AmountMinor)
	assert.Equal(t, b.ID, req.BookingID)
	assert.Equal(t, "user-1@example.com", req.ReceiptEmail)
	assert.Equal(t, testNow.Add(30*time.Minute), req.ExpiresAt)
	assert.Len(t, req.ProductImages, 8)

	events := deps.repo.PublishedEvents()
	require.Len(t, events, 1)
	made, ok := events[0].(entity.BookingMade_v1)
	require.True(t, ok)
	assert.Equal(t, b.ID, made.BookingID)
}

func TestService_CreateBooking_prefers_discounted_price(t *testing.T) {
	ctx := context.Background()
	property := testProperty()
	property.DiscountedPrice = lo.ToPtr(1500.0)
	deps := newTestService(t, property)

	b, _, err := deps.service.CreateBooking(ctx, createRequest("user-1", day(1), day(16)))
	require.NoError(t, err)

	assert.Equal(t, 1500.0, b.PricePerMonth)
	assert.InDelta(t, 750.0, b.TotalPrice, 0.0001)
}

func TestService_CreateBooking_conflict(t *testing.T) {
	ctx := context.Background()
	deps := newTestService(t)

	_, _, err := deps.service.CreateBooking(ctx, createRequest("user-1", day(20), day(24)))
	require.NoError(t, err)

	_, _, err = deps.service.CreateBooking(ctx, createRequest("user-2", day(23), day(26)))
	assert.ErrorIs(t, err, entity.ErrConflict)

	_, _, err = deps.service.CreateBooking(ctx, createRequest("user-2", day(24), day(26)))
	assert.NoError(t, err, "adjacent ranges don't overlap")

	assert.Len(t, deps.repo.AllBookings(), 2)
}

func TestService_CreateBooking_invalid_input(t *testing.T) {
	ctx := context.Background()
	deps := newTestService(t)

	_, _, err := deps.service.CreateBooking(ctx, createRequest("user-1", day(24), day(20)))
	assert.ErrorIs(t, err, entity.ErrInvalidBooking)

	_, _, err = deps.service.CreateBooking(ctx, createRequest("unknown-user", day(20), day(24)))
	assert.ErrorIs(t, err, entity.ErrInvalidUser)

	req := createRequest("user-1", day(20), day(24))
	req.Property = entity.ShortStay("apartment-1")
	_, _, err = deps.service.CreateBooking(ctx, req)
	assert.ErrorIs(t, err, entity.ErrInvalidProperty)

	assert.Empty(t, deps.repo.AllBookings())
}

func TestService_CreateBooking_gateway_failure_releases_hold(t *testing.T) {
	ctx := context.Background()
	deps := newTestService(t)
	deps.payment.CreateSessionErr = errors.New("stripe is down")

	_, _, err := deps.service.CreateBooking(ctx, createRequest("user-1", day(20), day(24)))

	var gwErr *entity.GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Empty(t, deps.repo.AllBookings())

	deps.payment.CreateSessionErr = nil
	_, _, err = deps.service.CreateBooking(ctx, createRequest("user-2", day(20), day(24)))
	assert.NoError(t, err)
}

func TestService_CreateBooking_hold_reclaimed_while_opening_checkout(t *testing.T) {
	ctx := context.Background()
	deps := newTestService(t)

	var orphaned string
	deps.payment.OnSessionCreated = func(session entity.CheckoutSession) {
		orphaned = session.ID
		deps.repo.RemoveBooking(session.BookingID)
	}

	_, _, err := deps.service.CreateBooking(ctx, createRequest("user-1", day(20), day(24)))
	require.ErrorIs(t, err, entity.ErrHoldExpired)

	session, ok := deps.payment.Session(orphaned)
	require.True(t, ok)
	assert.Equal(t, entity.SessionStatusExpired, session.Status)
}

func TestService_CreateBooking_concurrent_overlapping_requests(t *testing.T) {
	ctx := context.Background()
	deps := newTestService(t)

	const workers = 10

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = deps.service.CreateBooking(ctx, createRequest("user-1", day(10+i%3), day(15+i%3)))
		}(i)
	}
	wg.Wait()

	succeeded := lo.CountBy(errs, func(err error) bool { return err == nil })
	conflicts := lo.CountBy(errs, func(err error) bool { return errors.Is(err, entity.ErrConflict) })

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, conflicts)
	assert.Len(t, deps.repo.AllBookings(), 1)
}

func TestService_CreateBooking_retries_transient_failures(t *testing.T) {
	ctx := context.Background()
	deps := newTestService(t)

	failures := 2
	deps.repo.BeforeTx = func() error {
		if failures > 0 {
			failures--
			return entity.ErrTransientTx
		}
		return nil
	}

	_, _, err := deps.service.CreateBooking(ctx, createRequest("user-1", day(20), day(24)))
	require.NoError(t, err)

	failures = 3
	_, _, err = deps.service.CreateBooking(ctx, createRequest("user-1", day(1), day(4)))
	assert.ErrorIs(t, err, entity.ErrTransientTx)
}

func TestService_CreateBooking_does_not_retry_timeouts(t *testing.T) {
	ctx := context.Background()
	deps := newTestService(t)

	attempts := 0
	deps.repo.BeforeTx = func() error {
		attempts++
		return entity.ErrTransactionTimeout
	}

	_, _, err := deps.service.CreateBooking(ctx, createRequest("user-1", day(20), day(24)))
	assert.ErrorIs(t, err, entity.ErrTransactionTimeout)
	assert.Equal(t, 1, attempts)
}

func TestService_ConfirmPayment(t *testing.T) {
	ctx := context.Background()
	deps := newTestService(t)

	b, _, err := deps.service.CreateBooking(ctx, createRequest("user-1", day(20), day(24)))
	require.NoError(t, err)

	sessionID := *b.PaymentSessionID
	deps.payment.MarkPaid(sessionID, "pi_1")

	result, err := deps.service.ConfirmPayment(ctx, sessionID)
	require.NoError(t, err)
	assert.True(t, result.Success)

	stored, _ := deps.repo.Booking(b.ID)
	assert.Equal(t, entity.BookingStatusCompleted, stored.Status)
	require.NotNil(t, stored.PaymentIntentID)
	assert.Equal(t, "pi_1", *stored.PaymentIntentID)

	result, err = deps.service.ConfirmPayment(ctx, sessionID)
	require.NoError(t, err)
	assert.True(t, result.Success, "second confirmation is a no-op success")

	confirmed := lo.Filter(deps.repo.PublishedEvents(), func(e entity.Event, _ int) bool {
		_, ok := e.(entity.BookingConfirmed_v1)
		return ok
	})
	assert.Len(t, confirmed, 1)
}

func TestService_ConfirmPayment_open_session_keeps_hold(t *testing.T) {
	ctx := context.Background()
	deps := newTestService(t)

	b, _, err := deps.service.CreateBooking(ctx, createRequest("user-1", day(20), day(24)))
	require.NoError(t, err)

	result, err := deps.service.ConfirmPayment(ctx, *b.PaymentSessionID)
	require.NoError(t, err)
	assert.False(t, result.Success)

	stored, ok := deps.repo.Booking(b.ID)
	require.True(t, ok, "hold is kept while the checkout is open")
	assert.Equal(t, entity.BookingStatusPendingPayment, stored.Status)
	assert.False(t, stored.PaymentProcessing)

	deps.payment.MarkPaid(*b.PaymentSessionID, "pi_1")
	result, err = deps.service.ConfirmPayment(ctx, *b.PaymentSessionID)
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestService_ConfirmPayment_delayed_payment_is_confirmed_once_settled(t *testing.T) {
	ctx := context.Background()
	deps := newTestService(t)

	b, _, err := deps.service.CreateBooking(ctx, createRequest("user-1", day(20), day(24)))
	require.NoError(t, err)
	sessionID := *b.PaymentSessionID

	deps.payment.MarkProcessing(sessionID, "pi_1")
	result, err := deps.service.ConfirmPayment(ctx, sessionID)
	require.NoError(t, err)
	assert.False(t, result.Success)

	stored, ok := deps.repo.Booking(b.ID)
	require.True(t, ok, "hold is kept while the payment settles")
	assert.True(t, stored.PaymentProcessing)

	deleted, err := deps.repo.DeleteStale(ctx, testNow.Add(time.Hour), testNow.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, deleted, "settling payments are not reclaimed")

	_, _, err = deps.service.CreateBooking(ctx, createRequest("user-2", day(21), day(23)))
	assert.ErrorIs(t, err, entity.ErrConflict)

	deps.payment.MarkPaid(sessionID, "pi_1")
	result, err = deps.service.ConfirmPayment(ctx, sessionID)
	require.NoError(t, err)
	assert.True(t, result.Success)

	stored, _ = deps.repo.Booking(b.ID)
	assert.Equal(t, entity.BookingStatusCompleted, stored.Status)
}

func TestService_ReleasePayment_declined_payment_releases_hold(t *testing.T) {
	ctx := context.Background()
	deps := newTestService(t)

	b, _, err := deps.service.CreateBooking(ctx, createRequest("user-1", day(20), day(24)))
	require.NoError(t, err)
	sessionID := *b.PaymentSessionID

	deps.payment.MarkProcessing(sessionID, "pi_1")
	_, err = deps.service.ConfirmPayment(ctx, sessionID)
	require.NoError(t, err)

	result, err := deps.service.ReleasePayment(ctx, sessionID)
	require.NoError(t, err)
	assert.False(t, result.Success)

	_, ok := deps.repo.Booking(b.ID)
	assert.False(t, ok)
}

func TestService_ReleasePayment_paid_session_is_confirmed(t *testing.T) {
	ctx := context.Background()
	deps := newTestService(t)

	b, _, err := deps.service.CreateBooking(ctx, createRequest("user-1", day(20), day(24)))
	require.NoError(t, err)

	deps.payment.MarkPaid(*b.PaymentSessionID, "pi_1")
	result, err := deps.service.ReleasePayment(ctx, *b.PaymentSessionID)
	require.NoError(t, err)
	assert.True(t, result.Success)

	stored, _ := deps.repo.Booking(b.ID)
	assert.Equal(t, entity.BookingStatusCompleted, stored.Status)
}

func TestService_ConfirmPayment_expired_session_releases_hold(t *testing.T) {
	ctx := context.Background()
	deps := newTestService(t)

	b, _, err := deps.service.CreateBooking(ctx, createRequest("user-1", day(20), day(24)))
	require.NoError(t, err)

	deps.payment.MarkExpired(*b.PaymentSessionID)
	result, err := deps.service.ConfirmPayment(ctx, *b.PaymentSessionID)
	require.NoError(t, err)
	assert.False(t, result.Success)

	_, ok := deps.repo.Booking(b.ID)
	assert.False(t, ok)

	_, _, err = deps.service.CreateBooking(ctx, createRequest("user-2", day(20), day(24)))
	assert.NoError(t, err, "range is free again")
}

func TestService_ConfirmPayment_unknown_session(t *testing.T) {
	deps := newTestService(t)

	_, err := deps.service.ConfirmPayment(context.Background(), "cs_missing")

	var gwErr *entity.GatewayError
	assert.ErrorAs(t, err, &gwErr)
}

func completedBooking(deps testDeps, id string, userID string, start time.Time, days int) entity.Booking {
	b := entity.Booking{
		ID:               id,
		Property:         entity.LongStay("apartment-1"),
		UserID:           userID,
		MerchantID:       "merchant-1",
		StayStartDate:    start,
		StayEndDate:      start.AddDate(0, 0, days),
		PricePerMonth:    3000,
		TotalPrice:       booking.TotalPrice(3000, start, start.AddDate(0, 0, days)),
		PaymentSessionID: lo.ToPtr("cs_" + id),
		PaymentIntentID:  lo.ToPtr("pi_" + id),
		Status:           entity.BookingStatusCompleted,
		CreatedAt:        start.AddDate(0, 0, -7),
	}
	deps.repo.AddBooking(b)

	return b
}

func TestService_CancelBooking(t *testing.T) {
	ctx := context.Background()
	deps := newTestService(t)

	b := completedBooking(deps, "b-1", "user-1", testNow.AddDate(0, 0, -1), 10)

	cancelled, err := deps.service.CancelBooking(ctx, b.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusCancelled, cancelled.Status)

	stored, _ := deps.repo.Booking(b.ID)
	assert.Equal(t, entity.BookingStatusCancelled, stored.Status)

	refund, ok := deps.payment.Refunds["refund-b-1"]
	require.True(t, ok)
	assert.Equal(t, int64(90000), refund.AmountMinor)
	assert.Equal(t, "pi_b-1", refund.PaymentIntentID)

	events := deps.repo.PublishedEvents()
	require.Len(t, events, 1)
	assert.Equal(t, int64(90000), events[0].(entity.BookingCancelled_v1).RefundAmountMinor)

	_, err = deps.service.CancelBooking(ctx, b.ID, "user-1")
	assert.ErrorIs(t, err, entity.ErrInvalidBooking, "cancelled booking can't be cancelled again")
}

func TestService_CancelBooking_rejects_other_users_and_pending_bookings(t *testing.T) {
	ctx := context.Background()
	deps := newTestService(t)

	b := completedBooking(deps, "b-1", "user-1", testNow.AddDate(0, 0, -1), 10)

	_, err := deps.service.CancelBooking(ctx, b.ID, "user-2")
	assert.ErrorIs(t, err, entity.ErrInvalidBooking)

	pending, _, err := deps.service.CreateBooking(ctx, createRequest("user-1", day(20), day(24)))
	require.NoError(t, err)

	_, err = deps.service.CancelBooking(ctx, pending.ID, "user-1")
	assert.ErrorIs(t, err, entity.ErrInvalidBooking)

	_, err = deps.service.CancelBooking(ctx, "missing", "user-1")
	assert.ErrorIs(t, err, entity.ErrInvalidBooking)

	assert.Zero(t, deps.payment.RefundsCount())
}

func TestService_CancelBooking_without_refund_skips_gateway(t *testing.T) {
	ctx := context.Background()
	deps := newTestService(t)

	b := completedBooking(deps, "b-1", "user-1", testNow.AddDate(0, 0, 5), 10)

	cancelled, err := deps.service.CancelBooking(ctx, b.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusCancelled, cancelled.Status)
	assert.Zero(t, deps.payment.RefundsCount())
}

func TestService_CancelBooking_refund_failure_needs_reconciliation(t *testing.T) {
	ctx := context.Background()
	deps := newTestService(t)
	deps.payment.RefundErr = errors.New("card expired")

	b := completedBooking(deps, "b-1", "user-1", testNow.AddDate(0, 0, -1), 10)

	cancelled, err := deps.service.CancelBooking(ctx, b.ID, "user-1")

	var recErr *entity.ReconciliationError
	require.ErrorAs(t, err, &recErr)
	assert.Equal(t, "b-1", recErr.BookingID)
	assert.Equal(t, int64(90000), recErr.AmountMinor)
	assert.Equal(t, entity.BookingStatusCancelled, cancelled.Status)

	stored, _ := deps.repo.Booking(b.ID)
	assert.Equal(t, entity.BookingStatusCancelled, stored.Status, "cancellation stays committed")

	published := deps.events.Events()
	require.Len(t, published, 1)
	failed, ok := published[0].(entity.BookingRefundFailed_v1)
	require.True(t, ok)
	assert.Equal(t, "pi_b-1", failed.PaymentIntentID)
}

func TestService_ListBookings_reclaims_stale_holds(t *testing.T) {
	ctx := context.Background()
	deps := newTestService(t)

	completedBooking(deps, "b-1", "user-1", day(1), 3)
	deps.repo.AddBooking(entity.Booking{
		ID:        "stale",
		Property:  entity.LongStay("apartment-1"),
		UserID:    "user-1",
		Status:    entity.BookingStatusPendingPayment,
		CreatedAt: testNow.Add(-33 * time.Minute),
	})

	bookings, err := deps.service.ListBookings(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	assert.Equal(t, "b-1", bookings[0].ID)
}
