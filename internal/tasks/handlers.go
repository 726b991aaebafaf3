package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront/internal/coupon"
)

// Redeemer counts coupon usage.
type Redeemer interface {
	Redeem(ctx context.Context, code string) error
}

// Handlers processes tasks on the worker.
type Handlers struct {
	Coupons Redeemer
	Log     zerolog.Logger
}

// Register binds every task type to mux.
func (h *Handlers) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeCouponRedeem, h.HandleCouponRedeem)
	mux.HandleFunc(TypeStockAlert, h.HandleStockAlert)
}

// HandleCouponRedeem increments the coupon's used count.
func (h *Handlers) HandleCouponRedeem(ctx context.Context, t *asynq.Task) error {
	var p CouponRedeemPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := h.Coupons.Redeem(ctx, p.Code); err != nil {
		if errors.Is(err, coupon.ErrNotFound) {
			h.Log.Warn().Str("order_id", p.OrderID).Str("code", p.Code).Msg("redeemed coupon no longer exists")
			return nil
		}
		if errors.Is(err, coupon.ErrUsageLimitReached) {
			h.Log.Warn().Str("order_id", p.OrderID).Str("code", p.Code).Msg("coupon usage limit already reached, use not counted")
			return nil
		}
		return fmt.Errorf("redeem %s: %w", p.Code, err)
	}
	h.Log.Info().Str("order_id", p.OrderID).Str("code", p.Code).Msg("coupon redeemed")
	return nil
}

// HandleStockAlert raises an operator-visible warning for manual reconciliation.
func (h *Handlers) HandleStockAlert(_ context.Context, t *asynq.Task) error {
	var p StockAlertPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	items := zerolog.Dict()
	for id, qty := range p.Items {
		items = items.Int(id, qty)
	}
	h.Log.Warn().
		Str("order_id", p.OrderID).
		Str("reason", p.Reason).
		Dict("items", items).
		Msg("order placed without stock adjustment, reconcile inventory")
	return nil
}
