// Package tasks defines the background jobs run by the worker and the
// event notifier that schedules them.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront/internal/events"
)

// Task type names.
const (
	TypeCouponRedeem = "coupon:redeem"
	TypeStockAlert   = "order:stock_alert"
)

// Queue names and their worker priorities.
const (
	QueueDefault  = "default"
	QueueCritical = "critical"
)

// Queues returns the queue priority map for the worker server.
func Queues() map[string]int {
	return map[string]int{QueueCritical: 6, QueueDefault: 3}
}

// CouponRedeemPayload asks the worker to count one use of a coupon.
type CouponRedeemPayload struct {
	OrderID string `json:"orderId"`
	Code    string `json:"code"`
}

// StockAlertPayload reports an order whose inventory was not decremented.
type StockAlertPayload struct {
	OrderID string         `json:"orderId"`
	Reason  string         `json:"reason"`
	Items   map[string]int `json:"items"`
}

// NewCouponRedeemTask builds a redeem task. The task id is derived from the
// order so a replayed event cannot count the same order twice.
func NewCouponRedeemTask(p CouponRedeemPayload) (*asynq.Task, error) {
	if p.OrderID == "" || p.Code == "" {
		return nil, errors.New("tasks: order id and code are required")
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeCouponRedeem, body,
		asynq.TaskID("redeem:"+p.OrderID),
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(10),
		asynq.Retention(24*time.Hour),
	), nil
}

// NewStockAlertTask builds a stock alert task.
func NewStockAlertTask(p StockAlertPayload) (*asynq.Task, error) {
	if p.OrderID == "" {
		return nil, errors.New("tasks: order id is required")
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeStockAlert, body,
		asynq.TaskID("stock_alert:"+p.OrderID),
		asynq.Queue(QueueCritical),
		asynq.MaxRetry(3),
	), nil
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Notifier turns domain events into background tasks.
type Notifier struct {
	Client Enqueuer
	Log    zerolog.Logger
}

var _ events.Notifier = (*Notifier)(nil)

// Notify implements events.Notifier.
func (n *Notifier) Notify(ctx context.Context, ev events.Event) error {
	var (
		task *asynq.Task
		err  error
	)
	switch ev.Topic {
	case events.TopicOrderCreated:
		var p events.OrderCreated
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", ev.Topic, err)
		}
		if p.CouponCode == "" {
			return nil
		}
		task, err = NewCouponRedeemTask(CouponRedeemPayload{OrderID: p.OrderID, Code: p.CouponCode})
	case events.TopicOrderStockAdjustFailed:
		var p events.StockAdjustFailed
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", ev.Topic, err)
		}
		task, err = NewStockAlertTask(StockAlertPayload(p))
	default:
		return nil
	}
	if err != nil {
		return err
	}
	info, err := n.Client.EnqueueContext(ctx, task)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		return fmt.Errorf("enqueue %s: %w", task.Type(), err)
	}
	n.Log.Debug().Str("task_id", info.ID).Str("type", info.Type).Str("queue", info.Queue).Msg("task enqueued")
	return nil
}
