package order

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront/internal/events"
)

type memRepo struct {
	mu     sync.Mutex
	orders map[string]Order
}

func newMemRepo(orders ...Order) *memRepo {
	r := &memRepo{orders: map[string]Order{}}
	for _, o := range orders {
		r.orders[o.ID] = o
	}
	return r
}

func (r *memRepo) Create(_ context.Context, o Order) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	r.orders[o.ID] = o
	return o, nil
}

func (r *memRepo) Get(_ context.Context, id string) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return o, nil
}

func (r *memRepo) ListByUser(_ context.Context, userID string) ([]Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Order{}
	for _, o := range r.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *memRepo) List(_ context.Context, f Filter) ([]Order, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Order{}
	for _, o := range r.orders {
		if f.Status == "" || o.Status == f.Status {
			out = append(out, o)
		}
	}
	return out, int64(len(out)), nil
}

func (r *memRepo) ListSince(_ context.Context, since time.Time) ([]Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Order{}
	for _, o := range r.orders {
		if !o.CreatedAt.Before(since) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *memRepo) UpdateStatus(_ context.Context, id string, status Status) (Order, Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return Order{}, "", ErrNotFound
	}
	from := o.Status
	if !CanTransition(from, status) {
		return Order{}, from, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, status)
	}
	o.Status = status
	r.orders[id] = o
	return o, from, nil
}

func (r *memRepo) MarkStockAdjusted(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.StockAdjusted = true
	r.orders[id] = o
	return nil
}

type recordingEmitter struct {
	topics   []string
	payloads []any
}

func (e *recordingEmitter) Emit(_ context.Context, topic, aggregateID string, payload any) (events.Event, error) {
	e.topics = append(e.topics, topic)
	e.payloads = append(e.payloads, payload)
	return events.Event{Topic: topic, AggregateID: aggregateID}, nil
}

func sampleOrder(userID string, status Status) Order {
	return Order{
		ID:            uuid.NewString(),
		UserID:        userID,
		Status:        status,
		Items:         []Item{{ProductID: uuid.NewString(), Name: "Silk Saree", Category: "Sarees", Quantity: 1, UnitPrice: decimal.NewFromInt(1000)}},
		Subtotal:      decimal.NewFromInt(1000),
		Total:         decimal.NewFromInt(1000),
		PaymentMethod: PaymentCOD,
	}
}

func TestGetForUserHidesForeignOrders(t *testing.T) {
	mine := sampleOrder("user-1", StatusPending)
	theirs := sampleOrder("user-2", StatusPending)
	svc := NewService(newMemRepo(mine, theirs), nil, zerolog.Nop())

	got, err := svc.GetForUser(context.Background(), "user-1", mine.ID)
	require.NoError(t, err)
	require.Equal(t, mine.ID, got.ID)

	_, err = svc.GetForUser(context.Background(), "user-1", theirs.ID)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.GetForUser(context.Background(), "user-1", "not-a-uuid")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateStatusEmitsEvent(t *testing.T) {
	o := sampleOrder("user-1", StatusPending)
	em := &recordingEmitter{}
	svc := NewService(newMemRepo(o), em, zerolog.Nop())

	updated, err := svc.UpdateStatus(context.Background(), o.ID, StatusShipped)
	require.NoError(t, err)
	require.Equal(t, StatusShipped, updated.Status)
	require.Equal(t, []string{events.TopicOrderStatusChanged}, em.topics)
	require.Equal(t, events.OrderStatusChanged{OrderID: o.ID, From: "pending", To: "shipped"}, em.payloads[0])

	_, err = svc.UpdateStatus(context.Background(), o.ID, StatusPending)
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Len(t, em.topics, 1)

	_, err = svc.UpdateStatus(context.Background(), o.ID, Status("lost"))
	require.Error(t, err)
}

func TestCreateForcesPending(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil, zerolog.Nop())

	o := sampleOrder("user-1", StatusDelivered)
	created, err := svc.Create(context.Background(), o)
	require.NoError(t, err)
	require.Equal(t, StatusPending, created.Status)

	o.Items = nil
	_, err = svc.Create(context.Background(), o)
	require.Error(t, err)

	o = sampleOrder("user-1", "")
	o.PaymentMethod = "upi"
	_, err = svc.Create(context.Background(), o)
	require.Error(t, err)
}

func TestListRejectsUnknownStatus(t *testing.T) {
	svc := NewService(newMemRepo(sampleOrder("u", StatusPending), sampleOrder("u", StatusShipped)), nil, zerolog.Nop())
	items, total, err := svc.List(context.Background(), Filter{Status: StatusShipped})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Len(t, items, 1)

	_, _, err = svc.List(context.Background(), Filter{Status: "lost"})
	require.Error(t, err)
}
