package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"stays/booking"
	"stays/entity"
)

// BookingsRepository is an in-memory booking.Repository. Transactions are serialized and work on a
// private copy of the bookings which is merged back only on commit.
type BookingsRepository struct {
	txLock sync.Mutex
	mu     sync.Mutex

	properties map[entity.PropertyRef]entity.Property
	bookings   map[string]entity.Booking

	// Events holds the events of committed transactions, in commit order.
	Events []entity.Event

	// BeforeTx, when set, is called at the start of every transaction and may fail it.
	BeforeTx func() error
}

func NewBookingsRepository(properties ...entity.Property) *BookingsRepository {
	r := &BookingsRepository{
		properties: make(map[entity.PropertyRef]entity.Property),
		bookings:   make(map[string]entity.Booking),
	}
	for _, p := range properties {
		r.properties[p.Ref] = p
	}

	return r
}

func (r *BookingsRepository) AddBooking(b entity.Booking) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.bookings[b.ID] = b
}

func (r *BookingsRepository) Booking(id string) (entity.Booking, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[id]
	return b, ok
}

func (r *BookingsRepository) RemoveBooking(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.bookings, id)
}

func (r *BookingsRepository) AllBookings() []entity.Booking {
	r.mu.Lock()
	defer r.mu.Unlock()

	return sortedBookings(lo.Values(r.bookings))
}

func (r *BookingsRepository) PublishedEvents() []entity.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]entity.Event(nil), r.Events...)
}

func (r *BookingsRepository) InTx(ctx context.Context, opts booking.TxOptions, fn func(ctx context.Context, tx booking.Tx) error) error {
	r.txLock.Lock()
	defer r.txLock.Unlock()

	if r.BeforeTx != nil {
		if err := r.BeforeTx(); err != nil {
			return err
		}
	}

	r.mu.Lock()
	tx := &memoryTx{
		properties: r.properties,
		bookings:   lo.Assign(r.bookings),
		touched:    make(map[string]struct{}),
	}
	r.mu.Unlock()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for id := range tx.touched {
		if b, ok := tx.bookings[id]; ok {
			r.bookings[id] = b
		} else {
			delete(r.bookings, id)
		}
	}
	r.Events = append(r.Events, tx.events...)

	return nil
}

func (r *BookingsRepository) DeleteStale(ctx context.Context, createdBefore, sessionlessCreatedBefore time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for id, b := range r.bookings {
		if b.Status != entity.BookingStatusPendingPayment || b.PaymentProcessing {
			continue
		}
		if b.CreatedAt.Before(createdBefore) || (b.PaymentSessionID == nil && b.CreatedAt.Before(sessionlessCreatedBefore)) {
			delete(r.bookings, id)
			deleted++
		}
	}

	return deleted, nil
}

func (r *BookingsRepository) FindByUser(ctx context.Context, userID string) ([]entity.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return sortedBookings(lo.Filter(lo.Values(r.bookings), func(b entity.Booking, _ int) bool {
		return b.UserID == userID
	})), nil
}

func (r *BookingsRepository) SetPaymentSession(ctx context.Context, bookingID string, sessionID string, paymentIntentID *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[bookingID]
	if !ok {
		return entity.ErrNotFound
	}
	b.PaymentSessionID = lo.ToPtr(sessionID)
	b.PaymentIntentID = paymentIntentID
	r.bookings[bookingID] = b

	return nil
}

func (r *BookingsRepository) DeleteUnpaidBySession(ctx context.Context, sessionID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for id, b := range r.bookings {
		if b.PaymentSessionID != nil && *b.PaymentSessionID == sessionID && b.Status == entity.BookingStatusPendingPayment {
			delete(r.bookings, id)
			deleted++
		}
	}

	return deleted, nil
}

func (r *BookingsRepository) MarkPaymentProcessing(ctx context.Context, sessionID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var marked int64
	for id, b := range r.bookings {
		if b.PaymentSessionID != nil && *b.PaymentSessionID == sessionID && b.Status == entity.BookingStatusPendingPayment {
			b.PaymentProcessing = true
			r.bookings[id] = b
			marked++
		}
	}

	return marked, nil
}

type memoryTx struct {
	properties map[entity.PropertyRef]entity.Property
	bookings   map[string]entity.Booking
	touched    map[string]struct{}
	events     []entity.Event
}

func (t *memoryTx) LockProperty(ctx context.Context, ref entity.PropertyRef) (entity.Property, error) {
	return t.GetProperty(ctx, ref)
}

func (t *memoryTx) GetProperty(ctx context.Context, ref entity.PropertyRef) (entity.Property, error) {
	p, ok := t.properties[ref]
	if !ok {
		return entity.Property{}, entity.ErrNotFound
	}

	return p, nil
}

func (t *memoryTx) FindBookingsByProperty(ctx context.Context, ref entity.PropertyRef, start, end time.Time) ([]entity.Booking, error) {
	return lo.Filter(lo.Values(t.bookings), func(b entity.Booking, _ int) bool {
		return b.Property == ref && b.Status.IsActive()
	}), nil
}

func (t *memoryTx) GetBookingForUpdate(ctx context.Context, bookingID string) (entity.Booking, error) {
	b, ok := t.bookings[bookingID]
	if !ok {
		return entity.Booking{}, entity.ErrNotFound
	}

	return b, nil
}

func (t *memoryTx) InsertBooking(ctx context.Context, b entity.Booking) error {
	t.bookings[b.ID] = b
	t.touched[b.ID] = struct{}{}

	return nil
}

func (t *memoryTx) UpdateBookingStatus(ctx context.Context, bookingID string, status entity.BookingStatus) error {
	b, ok := t.bookings[bookingID]
	if !ok {
		return entity.ErrNotFound
	}
	b.Status = status
	t.bookings[bookingID] = b
	t.touched[bookingID] = struct{}{}

	return nil
}

func (t *memoryTx) SetPaymentIntent(ctx context.Context, bookingID string, paymentIntentID string) error {
	b, ok := t.bookings[bookingID]
	if !ok {
		return entity.ErrNotFound
	}
	b.PaymentIntentID = lo.ToPtr(paymentIntentID)
	t.bookings[bookingID] = b
	t.touched[bookingID] = struct{}{}

	return nil
}

func (t *memoryTx) DeleteBooking(ctx context.Context, bookingID string) error {
	delete(t.bookings, bookingID)
	t.touched[bookingID] = struct{}{}

	return nil
}

func (t *memoryTx) Publish(ctx context.Context, event entity.Event) error {
	t.events = append(t.events, event)

	return nil
}

func sortedBookings(bookings []entity.Booking) []entity.Booking {
	sort.Slice(bookings, func(i, j int) bool {
		return bookings[i].CreatedAt.Before(bookings[j].CreatedAt)
	})

	return bookings
}
