package bookings_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stays/booking"
	"stays/db"
	"stays/db/bookings"
	"stays/db/properties"
	"stays/db/users"
	"stays/entity"
	"stays/gateway"
	"stays/mocks"
	"stays/pubsub/outbox"
)

func TestMain(m *testing.M) {
	db.RunTests(m)
}

func getDb(t *testing.T) *sqlx.DB {
	t.Helper()

	dbconn := db.GetTestDb(t)
	require.NoError(t, outbox.InitializeSchema(outbox.NewPostgresSubscriber(dbconn.DB, watermill.NopLogger{})))

	return dbconn
}

type fixture struct {
	service  *booking.Service
	repo     *bookings.PostgresRepository
	payment  *gateway.PaymentMock
	property entity.Property
	userID   string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	dbconn := getDb(t)

	property := entity.Property{
		Ref:                entity.ShortStay(uuid.NewString()),
		MerchantID:         "merchant-" + uuid.NewString(),
		Name:               "Cabin",
		Pictures:           []string{"cabin.jpg"},
		PricePerMonth:      3000,
		CancellationPolicy: entity.CancellationUntilArrivalDay,
		CancellationFine:   entity.CancellationFinePartialStayPrice,
	}
	require.NoError(t, properties.NewPostgresRepository(dbconn).Store(ctx, property))

	user := entity.User{ID: uuid.NewString(), Email: "guest@example.com"}
	usersRepo := users.NewPostgresRepository(dbconn)
	require.NoError(t, usersRepo.Store(ctx, user))

	repo := bookings.NewPostgresRepository(dbconn, watermill.NopLogger{})
	payment := &gateway.PaymentMock{}

	return fixture{
		service:  booking.NewService(repo, usersRepo, payment, &mocks.EventPublisher{}, booking.DefaultConfig()),
		repo:     repo,
		payment:  payment,
		property: property,
		userID:   user.ID,
	}
}

func (f fixture) request(start, end time.Time) booking.CreateBookingRequest {
	return booking.CreateBookingRequest{
		UserID:        f.userID,
		Property:      f.property.Ref,
		StayStartDate: start,
		StayEndDate:   end,
	}
}

func stayDay(d int) time.Time {
	return time.Date(2030, time.June, d, 0, 0, 0, 0, time.UTC)
}

func TestPostgresRepository_CreateBooking_concurrent_overlapping_requests(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	const workers = 8

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = f.service.CreateBooking(ctx, f.request(stayDay(10+i%4), stayDay(14+i%4)))
		}(i)
	}
	wg.Wait()

	succeeded := lo.CountBy(errs, func(err error) bool { return err == nil })
	conflicts := lo.CountBy(errs, func(err error) bool { return errors.Is(err, entity.ErrConflict) })

	assert.Equal(t, 1, succeeded, "errors: %v", errs)
	assert.Equal(t, workers-1, conflicts, "errors: %v", errs)

	list, err := f.service.ListBookings(ctx, f.userID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestPostgresRepository_booking_lifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	b, checkoutURL, err := f.service.CreateBooking(ctx, f.request(stayDay(1), stayDay(16)))
	require.NoError(t, err)
	assert.NotEmpty(t, checkoutURL)

	stored, err := f.repo.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusPendingPayment, stored.Status)
	assert.Equal(t, stayDay(1), stored.StayStartDate)
	assert.Equal(t, stayDay(16), stored.StayEndDate)
	assert.InDelta(t, 1500.0, stored.TotalPrice, 0.0001)
	require.NotNil(t, stored.PaymentSessionID)

	f.payment.MarkPaid(*stored.PaymentSessionID, "pi_"+b.ID)

	for i := 0; i < 2; i++ {
		result, err := f.service.ConfirmPayment(ctx, *stored.PaymentSessionID)
		require.NoError(t, err)
		assert.True(t, result.Success)
	}

	stored, err = f.repo.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusCompleted, stored.Status)
	require.NotNil(t, stored.PaymentIntentID)
	assert.Equal(t, "pi_"+b.ID, *stored.PaymentIntentID)

	_, _, err = f.service.CreateBooking(ctx, f.request(stayDay(15), stayDay(20)))
	assert.ErrorIs(t, err, entity.ErrConflict)

	cancelled, err := f.service.CancelBooking(ctx, b.ID, f.userID)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusCancelled, cancelled.Status)

	_, _, err = f.service.CreateBooking(ctx, f.request(stayDay(15), stayDay(20)))
	assert.NoError(t, err, "cancelled booking frees its range")
}

func TestPostgresRepository_DeleteStale(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	now := time.Now().UTC()

	insert := func(start int, createdAt time.Time, sessionID *string, status entity.BookingStatus) string {
		b := entity.Booking{
			ID:               uuid.NewString(),
			Property:         f.property.Ref,
			UserID:           f.userID,
			MerchantID:       f.property.MerchantID,
			StayStartDate:    stayDay(start),
			StayEndDate:      stayDay(start + 1),
			PricePerMonth:    3000,
			TotalPrice:       100,
			PaymentSessionID: sessionID,
			Status:           status,
			CreatedAt:        createdAt,
			UpdatedAt:        createdAt,
		}
		err := f.repo.InTx(ctx, booking.TxOptions{Timeout: time.Second}, func(ctx context.Context, tx booking.Tx) error {
			return tx.InsertBooking(ctx, b)
		})
		require.NoError(t, err)

		return b.ID
	}

	fresh := insert(1, now, nil, entity.BookingStatusPendingPayment)
	sessionless := insert(3, now.Add(-33*time.Minute), nil, entity.BookingStatusPendingPayment)
	expired := insert(5, now.Add(-33*time.Minute), lo.ToPtr("cs_"+uuid.NewString()), entity.BookingStatusPendingPayment)
	paid := insert(7, now.Add(-40*time.Minute), lo.ToPtr("cs_"+uuid.NewString()), entity.BookingStatusCompleted)

	settlingSession := "cs_" + uuid.NewString()
	settling := insert(9, now.Add(-3*time.Hour), lo.ToPtr(settlingSession), entity.BookingStatusPendingPayment)
	marked, err := f.repo.MarkPaymentProcessing(ctx, settlingSession)
	require.NoError(t, err)
	assert.Equal(t, int64(1), marked)

	reclaimer := booking.NewReclaimer(f.repo, nil, 32*time.Minute, 2*time.Minute, time.Now)

	_, err = reclaimer.Run(ctx)
	require.NoError(t, err)

	for _, id := range []string{fresh, paid, settling} {
		_, err := f.repo.Get(ctx, id)
		assert.NoError(t, err, "booking %s should stay", id)
	}
	for _, id := range []string{sessionless, expired} {
		_, err := f.repo.Get(ctx, id)
		assert.ErrorIs(t, err, entity.ErrNotFound, "booking %s should be reclaimed", id)
	}

	deleted, err := reclaimer.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	stored, err := f.repo.Get(ctx, settling)
	require.NoError(t, err)
	assert.True(t, stored.PaymentProcessing)

	deleted, err = f.repo.DeleteUnpaidBySession(ctx, settlingSession)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted, "a declined payment still releases the hold")
}

func TestPostgresRepository_InTx_lock_wait_timeout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	locked := make(chan struct{})
	release := make(chan struct{})
	holderDone := make(chan error, 1)

	go func() {
		holderDone <- f.repo.InTx(ctx, booking.TxOptions{Timeout: 10 * time.Second}, func(ctx context.Context, tx booking.Tx) error {
			if _, err := tx.LockProperty(ctx, f.property.Ref); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()

	<-locked

	err := f.repo.InTx(ctx, booking.TxOptions{LockWait: 200 * time.Millisecond, Timeout: 5 * time.Second}, func(ctx context.Context, tx booking.Tx) error {
		_, err := tx.LockProperty(ctx, f.property.Ref)
		return err
	})
	assert.ErrorIs(t, err, entity.ErrTransactionTimeout)

	close(release)
	require.NoError(t, <-holderDone)
}

func TestPostgresRepository_InTx_rolls_back_on_error(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id := uuid.NewString()
	errRollback := fmt.Errorf("rollback please")

	err := f.repo.InTx(ctx, booking.TxOptions{Timeout: time.Second}, func(ctx context.Context, tx booking.Tx) error {
		err := tx.InsertBooking(ctx, entity.Booking{
			ID:            id,
			Property:      f.property.Ref,
			UserID:        f.userID,
			MerchantID:    f.property.MerchantID,
			StayStartDate: stayDay(1),
			StayEndDate:   stayDay(2),
			Status:        entity.BookingStatusPendingPayment,
			CreatedAt:     time.Now(),
			UpdatedAt:     time.Now(),
		})
		require.NoError(t, err)

		return errRollback
	})
	assert.ErrorIs(t, err, errRollback)

	_, err = f.repo.Get(ctx, id)
	assert.ErrorIs(t, err, entity.ErrNotFound)
}
