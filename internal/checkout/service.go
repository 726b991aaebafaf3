package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/storefront/internal/cart"
	"github.com/noah-isme/storefront/internal/catalog"
	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/coupon"
	"github.com/noah-isme/storefront/internal/events"
	"github.com/noah-isme/storefront/internal/obs"
	"github.com/noah-isme/storefront/internal/order"
	"github.com/noah-isme/storefront/internal/payment"
	"github.com/noah-isme/storefront/internal/pricing"
)

var (
	// ErrEmptyCart is returned when placing an order or opening a payment for an empty cart.
	ErrEmptyCart = errors.New("checkout: cart is empty")
	// ErrPaymentRequired is returned for online payment without a widget confirmation.
	ErrPaymentRequired = errors.New("checkout: payment confirmation required")
	// ErrUnsupportedPayment is returned for unknown payment methods.
	ErrUnsupportedPayment = errors.New("checkout: unsupported payment method")
)

// OrderWriter persists placed orders.
type OrderWriter interface {
	Create(ctx context.Context, o order.Order) (order.Order, error)
	MarkStockAdjusted(ctx context.Context, id string) error
}

// StockAdjuster decrements inventory for a placed order.
type StockAdjuster interface {
	Decrement(ctx context.Context, adjustments []catalog.Adjustment) error
}

// Emitter publishes domain events.
type Emitter interface {
	Emit(ctx context.Context, topic, aggregateID string, payload any) (events.Event, error)
}

// Service runs cart, coupon and order placement use cases against persisted sessions.
type Service struct {
	Sessions *SessionStore
	Catalog  catalog.Reader
	Coupons  CouponLookup
	Orders   OrderWriter
	Stock    StockAdjuster
	Payments payment.Collector
	Events   Emitter
	Rule     pricing.ShippingRule
	Validate *validator.Validate
	Log      zerolog.Logger
	Now      func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) rule() pricing.ShippingRule {
	if s.Rule.Threshold.IsZero() && s.Rule.Fee.IsZero() {
		return pricing.DefaultShippingRule()
	}
	return s.Rule
}

func (s *Service) validator() *validator.Validate {
	if s.Validate == nil {
		s.Validate = common.NewValidator()
	}
	return s.Validate
}

// Create opens a new empty session.
func (s *Service) Create(ctx context.Context) (View, error) {
	sess, err := s.Sessions.Create(ctx)
	if err != nil {
		return View{}, err
	}
	return sess.View(s.rule()), nil
}

// Get returns the current session view. A coupon that lapsed since it was
// applied is left out of the totals and reported as dropped.
func (s *Service) Get(ctx context.Context, id string) (View, error) {
	sess, err := s.Sessions.Load(ctx, id)
	if err != nil {
		return View{}, err
	}
	_ = sess.Revalidate(s.now())
	return sess.View(s.rule()), nil
}

// AddItem resolves the product from the catalog and adds qty of it. The
// returned flag is true when a new line was created.
func (s *Service) AddItem(ctx context.Context, id, productID string, qty int) (View, bool, error) {
	if qty <= 0 {
		return View{}, false, cart.ErrInvalidQuantity
	}
	product, err := s.Catalog.GetProduct(ctx, productID)
	if err != nil {
		obs.IncCartMutation("add", "product_error")
		return View{}, false, err
	}
	var inserted bool
	sess, err := s.Sessions.Update(ctx, id, func(sess *Session) error {
		var addErr error
		inserted, addErr = sess.AddItem(product, qty)
		return addErr
	})
	if err != nil {
		obs.IncCartMutation("add", mutationResult(err))
		return View{}, false, err
	}
	obs.IncCartMutation("add", "ok")
	return sess.View(s.rule()), inserted, nil
}

// UpdateQuantity sets a line quantity; zero or less removes it.
func (s *Service) UpdateQuantity(ctx context.Context, id, productID string, qty int) (View, error) {
	sess, err := s.Sessions.Update(ctx, id, func(sess *Session) error {
		return sess.UpdateQuantity(productID, qty)
	})
	obs.IncCartMutation("update", mutationResult(err))
	if err != nil {
		return View{}, err
	}
	return sess.View(s.rule()), nil
}

// RemoveItem drops a line.
func (s *Service) RemoveItem(ctx context.Context, id, productID string) (View, error) {
	sess, err := s.Sessions.Update(ctx, id, func(sess *Session) error {
		sess.RemoveItem(productID)
		return nil
	})
	obs.IncCartMutation("remove", mutationResult(err))
	if err != nil {
		return View{}, err
	}
	return sess.View(s.rule()), nil
}

// ClearCart empties the cart but keeps the applied coupon.
func (s *Service) ClearCart(ctx context.Context, id string) (View, error) {
	sess, err := s.Sessions.Update(ctx, id, func(sess *Session) error {
		sess.ClearCart()
		return nil
	})
	obs.IncCartMutation("clear", mutationResult(err))
	if err != nil {
		return View{}, err
	}
	return sess.View(s.rule()), nil
}

// ApplyCoupon looks the code up outside the session lock and commits the
// coupon only if the persisted session has not moved on. A rejected coupon
// leaves the session untouched.
func (s *Service) ApplyCoupon(ctx context.Context, id, code string) (View, pricing.Money, error) {
	ctx, span := otel.Tracer("checkout.Service").Start(ctx, "Checkout.ApplyCoupon")
	defer span.End()

	sess, err := s.Sessions.Load(ctx, id)
	if err != nil {
		return View{}, decimal.Zero, err
	}
	ticket := sess.Generation()
	span.SetAttributes(attribute.Int64("checkout.ticket", int64(ticket)))

	c, err := s.Coupons.Lookup(ctx, code)
	if err != nil {
		obs.IncCouponApply(couponResult(err))
		return View{}, decimal.Zero, err
	}
	if err := ctx.Err(); err != nil {
		obs.IncCouponApply("cancelled")
		return View{}, decimal.Zero, err
	}

	var discount pricing.Money
	now := s.now()
	updated, err := s.Sessions.Update(ctx, id, func(sess *Session) error {
		d, commitErr := sess.CommitCoupon(ticket, c, now)
		discount = d
		return commitErr
	})
	obs.IncCouponApply(couponResult(err))
	if err != nil {
		if errors.Is(err, ErrStaleLookup) {
			s.Log.Info().Str("session_id", id).Str("code", c.Code).Msg("discarded stale coupon lookup")
		}
		return View{}, decimal.Zero, err
	}
	return updated.View(s.rule()), discount, nil
}

// RemoveCoupon drops the applied coupon.
func (s *Service) RemoveCoupon(ctx context.Context, id string) (View, error) {
	sess, err := s.Sessions.Update(ctx, id, func(sess *Session) error {
		sess.RemoveCoupon()
		return nil
	})
	if err != nil {
		return View{}, err
	}
	return sess.View(s.rule()), nil
}

// CreatePaymentIntent opens a provider order for the session's current grand total.
func (s *Service) CreatePaymentIntent(ctx context.Context, id, userID string) (payment.Intent, error) {
	if s.Payments == nil {
		return payment.Intent{}, payment.ErrNotConfigured
	}
	sess, err := s.Sessions.Load(ctx, id)
	if err != nil {
		return payment.Intent{}, err
	}
	_ = sess.Revalidate(s.now())
	view := sess.View(s.rule())
	if view.ItemCount == 0 {
		return payment.Intent{}, ErrEmptyCart
	}
	return s.Payments.CreateIntent(ctx, payment.IntentRequest{
		Receipt: sess.ID(),
		Amount:  view.Totals.GrandTotal,
		Notes:   map[string]string{"userId": userID, "sessionId": sess.ID()},
	})
}

// PlaceOrderInput carries everything needed to turn a session into an order.
type PlaceOrderInput struct {
	SessionID     string
	UserID        string
	Address       order.Address
	PaymentMethod order.PaymentMethod
	Payment       *payment.Confirmation
}

// PlaceOrderResult is the outcome of a successful placement.
type PlaceOrderResult struct {
	Order         order.Order `json:"order"`
	StockAdjusted bool        `json:"stockAdjusted"`
}

// PlaceOrder materializes the session into an order. The applied coupon is
// checked once more at placement time; if it lapsed it is removed from the
// session and the order is refused with a CouponDroppedError so the shopper
// sees the new total first. Inventory is decremented after the order is
// written; a failed decrement is reported but the order stands. The session
// is reset on success.
func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (PlaceOrderResult, error) {
	ctx, span := otel.Tracer("checkout.Service").Start(ctx, "Checkout.PlaceOrder")
	defer span.End()

	method := order.PaymentMethod(strings.ToLower(strings.TrimSpace(string(in.PaymentMethod))))
	if !method.Valid() {
		return PlaceOrderResult{}, ErrUnsupportedPayment
	}
	address := normalizeAddress(in.Address)
	if err := s.validator().Struct(address); err != nil {
		return PlaceOrderResult{}, addressError(err)
	}
	span.SetAttributes(attribute.String("checkout.payment_method", string(method)))

	var (
		result  PlaceOrderResult
		created bool
		dropped error
	)
	now := s.now()
	_, err := s.Sessions.Update(ctx, in.SessionID, func(sess *Session) error {
		if sess.ItemCount() == 0 {
			return ErrEmptyCart
		}
		if err := sess.Revalidate(now); err != nil {
			// Save the session without the coupon, then refuse the order.
			dropped = err
			return nil
		}
		view := sess.View(s.rule())

		o := order.Order{
			UserID:          in.UserID,
			Items:           orderItems(view),
			Subtotal:        view.Totals.Subtotal,
			Discount:        view.Totals.Discount,
			Shipping:        view.Totals.Shipping,
			Total:           view.Totals.GrandTotal,
			PaymentMethod:   method,
			ShippingAddress: address,
		}
		if view.Coupon != nil {
			o.CouponCode = view.Coupon.Code
		}

		if method == order.PaymentRazorpay {
			if in.Payment == nil {
				return ErrPaymentRequired
			}
			if s.Payments == nil {
				return payment.ErrNotConfigured
			}
			receipt, err := s.Payments.Confirm(ctx, *in.Payment, o.Total)
			if err != nil {
				obs.IncCheckoutOrder(string(method), paymentResult(err))
				return err
			}
			o.PaymentID = receipt.PaymentID
		}

		placed, err := s.Orders.Create(ctx, o)
		if err != nil {
			obs.IncCheckoutOrder(string(method), "write_failed")
			return fmt.Errorf("create order: %w", err)
		}
		created = true
		result.Order = placed
		result.StockAdjusted = s.adjustStock(ctx, placed, sess.Adjustments())
		result.Order.StockAdjusted = result.StockAdjusted

		s.emit(ctx, events.TopicOrderCreated, placed.ID, events.OrderCreated{
			OrderID:       placed.ID,
			UserID:        placed.UserID,
			Total:         placed.Total.StringFixed(2),
			CouponCode:    placed.CouponCode,
			PaymentMethod: string(method),
			StockAdjusted: result.StockAdjusted,
		})
		obs.IncCheckoutOrder(string(method), "created")
		sess.Reset()
		return nil
	})
	if err != nil {
		if created {
			// The order exists; only persisting the reset session failed.
			s.Log.Error().Err(err).Str("order_id", result.Order.ID).Str("session_id", in.SessionID).Msg("order placed but session reset not saved")
			return result, nil
		}
		return PlaceOrderResult{}, err
	}
	if dropped != nil {
		obs.IncCheckoutOrder(string(method), "coupon_dropped")
		return PlaceOrderResult{}, dropped
	}
	return result, nil
}

func (s *Service) adjustStock(ctx context.Context, placed order.Order, adjustments []catalog.Adjustment) bool {
	err := s.Stock.Decrement(ctx, adjustments)
	if err == nil {
		if markErr := s.Orders.MarkStockAdjusted(ctx, placed.ID); markErr != nil {
			s.Log.Warn().Err(markErr).Str("order_id", placed.ID).Msg("mark stock adjusted failed")
		}
		return true
	}

	obs.IncStockAdjustFailure()
	s.Log.Error().Err(err).Str("order_id", placed.ID).Msg("stock adjustment failed after order creation")
	items := make(map[string]int, len(adjustments))
	for _, adj := range adjustments {
		items[adj.ProductID] += adj.Quantity
	}
	s.emit(ctx, events.TopicOrderStockAdjustFailed, placed.ID, events.StockAdjustFailed{
		OrderID: placed.ID,
		Reason:  err.Error(),
		Items:   items,
	})
	return false
}

func (s *Service) emit(ctx context.Context, topic, aggregateID string, payload any) {
	if s.Events == nil {
		return
	}
	if _, err := s.Events.Emit(ctx, topic, aggregateID, payload); err != nil {
		s.Log.Warn().Err(err).Str("topic", topic).Str("aggregate_id", aggregateID).Msg("emit event failed")
	}
}

func orderItems(view View) []order.Item {
	items := make([]order.Item, 0, len(view.Lines))
	for _, line := range view.Lines {
		items = append(items, order.Item{
			ProductID: line.ProductID,
			Name:      line.Product.Name,
			Category:  line.Product.Category,
			Quantity:  line.Quantity,
			UnitPrice: line.Product.Price,
		})
	}
	return items
}

func normalizeAddress(a order.Address) order.Address {
	a.Name = strings.TrimSpace(a.Name)
	a.Email = strings.TrimSpace(a.Email)
	a.Phone = common.Digits(a.Phone)
	a.AddressLine1 = strings.TrimSpace(a.AddressLine1)
	a.AddressLine2 = strings.TrimSpace(a.AddressLine2)
	a.City = strings.TrimSpace(a.City)
	a.State = strings.TrimSpace(a.State)
	a.Pincode = strings.TrimSpace(a.Pincode)
	return a
}

func addressError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	appErr := common.NewAppError("VALIDATION_ERROR", "shipping address is incomplete or invalid", http.StatusUnprocessableEntity, err)
	appErr.Details = map[string]any{"fields": fields}
	return appErr
}

func mutationResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, cart.ErrStockExceeded):
		return "stock_exceeded"
	case errors.Is(err, cart.ErrInvalidQuantity), errors.Is(err, cart.ErrLineNotFound):
		return "rejected"
	default:
		return "error"
	}
}

func couponResult(err error) string {
	switch {
	case err == nil:
		return "applied"
	case errors.Is(err, ErrStaleLookup):
		return "stale"
	case errors.Is(err, coupon.ErrLookupFailed):
		return "lookup_failed"
	case errors.Is(err, coupon.ErrNotFound):
		return "not_found"
	case errors.Is(err, coupon.ErrInactive):
		return "inactive"
	case errors.Is(err, coupon.ErrNotYetValid):
		return "not_yet_valid"
	case errors.Is(err, coupon.ErrExpired):
		return "expired"
	case errors.Is(err, coupon.ErrUsageLimitReached):
		return "usage_limit"
	case errors.Is(err, coupon.ErrMinimumNotMet):
		return "minimum_not_met"
	case errors.Is(err, coupon.ErrNotApplicable):
		return "not_applicable"
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	default:
		return "error"
	}
}

func paymentResult(err error) string {
	switch {
	case errors.Is(err, payment.ErrCancelled):
		return "payment_cancelled"
	case errors.Is(err, payment.ErrSignatureMismatch), errors.Is(err, payment.ErrAmountMismatch):
		return "payment_rejected"
	default:
		return "payment_error"
	}
}
