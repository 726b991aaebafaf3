package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront/internal/coupon"
	"github.com/noah-isme/storefront/internal/events"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "id", Type: task.Type(), Queue: QueueDefault}, nil
}

func event(t *testing.T, topic string, payload any) events.Event {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return events.Event{Topic: topic, AggregateID: "o1", Payload: raw}
}

func TestNotifierSchedulesRedeemOnlyWithCoupon(t *testing.T) {
	q := &fakeEnqueuer{}
	n := &Notifier{Client: q, Log: zerolog.Nop()}
	ctx := context.Background()

	require.NoError(t, n.Notify(ctx, event(t, events.TopicOrderCreated, events.OrderCreated{OrderID: "o1"})))
	require.Empty(t, q.tasks)

	require.NoError(t, n.Notify(ctx, event(t, events.TopicOrderCreated, events.OrderCreated{OrderID: "o1", CouponCode: "TEN"})))
	require.Len(t, q.tasks, 1)
	require.Equal(t, TypeCouponRedeem, q.tasks[0].Type())

	var p CouponRedeemPayload
	require.NoError(t, json.Unmarshal(q.tasks[0].Payload(), &p))
	require.Equal(t, CouponRedeemPayload{OrderID: "o1", Code: "TEN"}, p)
}

func TestNotifierSchedulesStockAlert(t *testing.T) {
	q := &fakeEnqueuer{}
	n := &Notifier{Client: q, Log: zerolog.Nop()}
	ev := event(t, events.TopicOrderStockAdjustFailed, events.StockAdjustFailed{OrderID: "o1", Reason: "insufficient", Items: map[string]int{"p1": 2}})
	require.NoError(t, n.Notify(context.Background(), ev))
	require.Len(t, q.tasks, 1)
	require.Equal(t, TypeStockAlert, q.tasks[0].Type())

	require.NoError(t, n.Notify(context.Background(), event(t, events.TopicOrderStatusChanged, events.OrderStatusChanged{OrderID: "o1"})))
	require.Len(t, q.tasks, 1)
}

func TestNotifierTreatsDuplicatesAsDone(t *testing.T) {
	n := &Notifier{Client: &fakeEnqueuer{err: asynq.ErrTaskIDConflict}, Log: zerolog.Nop()}
	require.NoError(t, n.Notify(context.Background(), event(t, events.TopicOrderCreated, events.OrderCreated{OrderID: "o1", CouponCode: "TEN"})))

	n = &Notifier{Client: &fakeEnqueuer{err: errors.New("redis down")}, Log: zerolog.Nop()}
	require.Error(t, n.Notify(context.Background(), event(t, events.TopicOrderCreated, events.OrderCreated{OrderID: "o1", CouponCode: "TEN"})))
}

type fakeRedeemer struct {
	codes []string
	err   error
}

func (f *fakeRedeemer) Redeem(_ context.Context, code string) error {
	f.codes = append(f.codes, code)
	return f.err
}

func TestHandleCouponRedeem(t *testing.T) {
	r := &fakeRedeemer{}
	h := &Handlers{Coupons: r, Log: zerolog.Nop()}
	task, err := NewCouponRedeemTask(CouponRedeemPayload{OrderID: "o1", Code: "TEN"})
	require.NoError(t, err)

	require.NoError(t, h.HandleCouponRedeem(context.Background(), task))
	require.Equal(t, []string{"TEN"}, r.codes)

	r.err = coupon.ErrNotFound
	require.NoError(t, h.HandleCouponRedeem(context.Background(), task))

	r.err = coupon.ErrUsageLimitReached
	require.NoError(t, h.HandleCouponRedeem(context.Background(), task))

	r.err = errors.New("db down")
	require.Error(t, h.HandleCouponRedeem(context.Background(), task))

	err = h.HandleCouponRedeem(context.Background(), asynq.NewTask(TypeCouponRedeem, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleStockAlert(t *testing.T) {
	h := &Handlers{Log: zerolog.Nop()}
	task, err := NewStockAlertTask(StockAlertPayload{OrderID: "o1", Reason: "x", Items: map[string]int{"p1": 1}})
	require.NoError(t, err)
	require.NoError(t, h.HandleStockAlert(context.Background(), task))

	_, err = NewStockAlertTask(StockAlertPayload{})
	require.Error(t, err)
}
