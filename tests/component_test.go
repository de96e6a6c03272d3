package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"stays/config"
	"stays/db"
	"stays/db/properties"
	"stays/db/users"
	"stays/entity"
	"stays/gateway"
	"stays/pubsub"
	"stays/service"
)

const (
	httpAddress = ":8080"
	baseURL     = "http://localhost:8080"
)

func TestComponent(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("github.com/testcontainers/testcontainers-go.(*Reaper).Connect.func1"))
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dbconn, err := db.Open(postgresURL)
	require.NoError(t, err)
	defer dbconn.Close()

	redisClient := pubsub.NewRedisClient(redisAddr)
	defer redisClient.Close()

	paymentGateway := &gateway.PaymentMock{}

	cfg := config.Config{
		HTTPAddr:           httpAddress,
		StripeSuccessURL:   "https://stays.example.com/success",
		StripeCancelURL:    "https://stays.example.com/cancel",
		Currency:           "eur",
		HoldGrace:          32 * time.Minute,
		SessionOpenGrace:   2 * time.Minute,
		RateLimitPerMinute: 100,
	}

	done := make(chan struct{})
	go func() {
		<-done
		cancel()
	}()

	finished := make(chan struct{})
	go func() {
		svc := service.New(cfg, dbconn, redisClient, paymentGateway)
		assert.NoError(t, svc.Run(ctx))
		close(finished)
	}()

	defer func() {
		close(done)
		<-finished
	}()

	waitForHttpServer(t)

	property, user := seedPropertyAndUser(t, dbconn)

	start := time.Now().UTC().AddDate(0, 1, 0)
	created := createBooking(t, user.ID, property.Ref, start, start.AddDate(0, 0, 15))

	session, ok := paymentGateway.SessionForBooking(created.BookingID)
	require.True(t, ok, "checkout session not opened")
	assert.Equal(t, session.URL, created.CheckoutURL)

	// the range is held until the payment is settled
	sendBookingRequest(t, user.ID, property.Ref, start.AddDate(0, 0, 5), start.AddDate(0, 0, 7), http.StatusBadRequest)

	paymentGateway.MarkPaid(session.ID, "pi_"+uuid.NewString())
	sendPaymentWebhook(t, session.ID)

	assertBookingStatus(t, user.ID, created.BookingID, entity.BookingStatusCompleted)
	assertOpsBooking(t, created.BookingID, func(t *assert.CollectT, rm entity.OpsBooking) {
		assert.NotNil(t, rm.ConfirmedAt)
	})

	cancelBooking(t, user.ID, created.BookingID)
	assertBookingStatus(t, user.ID, created.BookingID, entity.BookingStatusCancelled)
	assertOpsBooking(t, created.BookingID, func(t *assert.CollectT, rm entity.OpsBooking) {
		assert.NotNil(t, rm.CancelledAt)
	})

	assertEventsStoredInDataLake(t, dbconn, "BookingMade_v1", "BookingConfirmed_v1", "BookingCancelled_v1")
}

func seedPropertyAndUser(t *testing.T, dbconn *sqlx.DB) (entity.Property, entity.User) {
	t.Helper()
	ctx := context.Background()

	property := entity.Property{
		Ref:                entity.LongStay(uuid.NewString()),
		MerchantID:         "merchant-1",
		Name:               "Loft with a view",
		Pictures:           []string{"loft-1.jpg", "loft-2.jpg"},
		PricePerMonth:      3000,
		CancellationPolicy: entity.CancellationUntilArrivalDay,
		CancellationFine:   entity.CancellationFinePartialStayPrice,
	}
	require.NoError(t, properties.NewPostgresRepository(dbconn).Store(ctx, property))

	user := entity.User{ID: uuid.NewString(), Email: "guest@example.com"}
	require.NoError(t, users.NewPostgresRepository(dbconn).Store(ctx, user))

	return property, user
}

type createdBooking struct {
	BookingID   string `json:"booking_id"`
	CheckoutURL string `json:"checkout_url"`
}

func createBooking(t *testing.T, userID string, ref entity.PropertyRef, start, end time.Time) createdBooking {
	t.Helper()

	resp := sendBookingRequest(t, userID, ref, start, end, http.StatusCreated)

	var created createdBooking
	require.NoError(t, json.Unmarshal(resp, &created))
	require.NotEmpty(t, created.BookingID)

	return created
}

func sendBookingRequest(
	t *testing.T,
	userID string,
	ref entity.PropertyRef,
	start, end time.Time,
	expectedStatus int,
) []byte {
	t.Helper()

	payload, err := json.Marshal(map[string]string{
		"property_id":     ref.ID,
		"property_type":   string(ref.Kind),
		"stay_start_date": start.Format(time.DateOnly),
		"stay_end_date":   end.Format(time.DateOnly),
	})
	require.NoError(t, err)

	return doRequest(t, http.MethodPost, "/bookings", userID, nil, payload, expectedStatus)
}

func sendPaymentWebhook(t *testing.T, sessionID string) {
	t.Helper()

	payload, err := json.Marshal(map[string]string{
		"id":         "evt_" + uuid.NewString(),
		"type":       "checkout.session.completed",
		"session_id": sessionID,
	})
	require.NoError(t, err)

	headers := map[string]string{"Stripe-Signature": gateway.MockWebhookSignature}
	doRequest(t, http.MethodPost, "/webhooks/stripe", "", headers, payload, http.StatusOK)
}

func cancelBooking(t *testing.T, userID string, bookingID string) {
	t.Helper()

	resp := doRequest(t, http.MethodPut, "/bookings/"+bookingID+"/cancel", userID, nil, nil, http.StatusOK)

	var cancelled entity.Booking
	require.NoError(t, json.Unmarshal(resp, &cancelled))
	assert.Equal(t, entity.BookingStatusCancelled, cancelled.Status)
}

func assertBookingStatus(t *testing.T, userID string, bookingID string, status entity.BookingStatus) {
	t.Helper()

	require.EventuallyWithT(
		t,
		func(t *assert.CollectT) {
			resp, err := get("/bookings", userID)
			if !assert.NoError(t, err) {
				return
			}

			var bookings []entity.Booking
			if !assert.NoError(t, json.Unmarshal(resp, &bookings)) {
				return
			}

			b, ok := lo.Find(bookings, func(b entity.Booking) bool {
				return b.ID == bookingID
			})
			if assert.True(t, ok, "booking %s not listed", bookingID) {
				assert.Equal(t, status, b.Status)
			}
		},
		10*time.Second,
		100*time.Millisecond,
	)
}

func assertOpsBooking(t *testing.T, bookingID string, check func(t *assert.CollectT, rm entity.OpsBooking)) {
	t.Helper()

	require.EventuallyWithT(
		t,
		func(t *assert.CollectT) {
			resp, err := get("/ops/bookings/"+bookingID, "")
			if !assert.NoError(t, err) {
				return
			}

			var rm entity.OpsBooking
			if assert.NoError(t, json.Unmarshal(resp, &rm)) {
				check(t, rm)
			}
		},
		10*time.Second,
		100*time.Millisecond,
	)
}

func assertEventsStoredInDataLake(t *testing.T, dbconn *sqlx.DB, names ...string) {
	t.Helper()

	require.EventuallyWithT(
		t,
		func(t *assert.CollectT) {
			var stored []string
			err := dbconn.Select(&stored, "SELECT DISTINCT event_name FROM events")
			if assert.NoError(t, err) {
				assert.Subset(t, stored, names)
			}
		},
		10*time.Second,
		100*time.Millisecond,
	)
}

func get(path string, userID string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body bytes.Buffer
	if _, err := body.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &unexpectedStatusError{status: resp.StatusCode, body: body.String()}
	}

	return body.Bytes(), nil
}

type unexpectedStatusError struct {
	status int
	body   string
}

func (e *unexpectedStatusError) Error() string {
	return http.StatusText(e.status) + ": " + e.body
}

func doRequest(
	t *testing.T,
	method string,
	path string,
	userID string,
	headers map[string]string,
	payload []byte,
	expectedStatus int,
) []byte {
	t.Helper()

	req, err := http.NewRequest(method, baseURL+path, bytes.NewReader(payload))
	require.NoError(t, err)

	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body bytes.Buffer
	_, err = body.ReadFrom(resp.Body)
	require.NoError(t, err)

	require.Equal(t, expectedStatus, resp.StatusCode, body.String())

	return body.Bytes()
}

func waitForHttpServer(t *testing.T) {
	t.Helper()

	require.EventuallyWithT(
		t,
		func(t *assert.CollectT) {
			resp, err := http.Get(baseURL + "/health")
			if !assert.NoError(t, err) {
				return
			}
			defer resp.Body.Close()

			assert.Less(t, resp.StatusCode, 300, "API not ready, http status: %d", resp.StatusCode)
		},
		time.Second*10,
		time.Millisecond*50,
	)
}
