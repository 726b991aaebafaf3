package checkout

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront/internal/cart"
	"github.com/noah-isme/storefront/internal/catalog"
	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/coupon"
	"github.com/noah-isme/storefront/internal/events"
	"github.com/noah-isme/storefront/internal/order"
	"github.com/noah-isme/storefront/internal/payment"
	"github.com/noah-isme/storefront/internal/pricing"
)

type fakeCatalog map[string]catalog.Product

func (f fakeCatalog) GetProduct(_ context.Context, id string) (catalog.Product, error) {
	p, ok := f[id]
	if !ok {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return p, nil
}

type fakeOrders struct {
	mu      sync.Mutex
	err     error
	created []order.Order
	marked  []string
}

func (f *fakeOrders) Create(_ context.Context, o order.Order) (order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return order.Order{}, f.err
	}
	o.ID = uuid.NewString()
	o.Status = order.StatusPending
	f.created = append(f.created, o)
	return o, nil
}

func (f *fakeOrders) MarkStockAdjusted(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, id)
	return nil
}

type fakeStock struct {
	err   error
	calls [][]catalog.Adjustment
}

func (f *fakeStock) Decrement(_ context.Context, adjustments []catalog.Adjustment) error {
	f.calls = append(f.calls, adjustments)
	return f.err
}

type fakePayments struct {
	confirmErr error
	amounts    []pricing.Money
}

func (f *fakePayments) CreateIntent(_ context.Context, req payment.IntentRequest) (payment.Intent, error) {
	return payment.Intent{Provider: "razorpay", ProviderOrderID: "order_1", Amount: payment.ToMinorUnits(req.Amount), Receipt: req.Receipt}, nil
}

func (f *fakePayments) Confirm(_ context.Context, c payment.Confirmation, amount pricing.Money) (payment.Receipt, error) {
	f.amounts = append(f.amounts, amount)
	if c.Cancelled {
		return payment.Receipt{}, payment.ErrCancelled
	}
	if f.confirmErr != nil {
		return payment.Receipt{}, f.confirmErr
	}
	return payment.Receipt{Provider: "razorpay", PaymentID: c.PaymentID, OrderID: c.ProviderOrderID}, nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	topics []string
}

func (e *recordingEmitter) Emit(_ context.Context, topic, aggregateID string, _ any) (events.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.topics = append(e.topics, topic)
	return events.Event{Topic: topic, AggregateID: aggregateID}, nil
}

type testDeps struct {
	svc      *Service
	orders   *fakeOrders
	stock    *fakeStock
	payments *fakePayments
	events   *recordingEmitter
}

func newTestService(t *testing.T, lookup CouponLookup) testDeps {
	t.Helper()
	store, _ := newTestStore(t)
	deps := testDeps{orders: &fakeOrders{}, stock: &fakeStock{}, payments: &fakePayments{}, events: &recordingEmitter{}}
	deps.svc = &Service{
		Sessions: store,
		Catalog: fakeCatalog{
			"p1": testProduct("p1", "sarees", 500, 10),
			"p2": testProduct("p2", "kurtas", 300, 1),
		},
		Coupons:  lookup,
		Orders:   deps.orders,
		Stock:    deps.stock,
		Payments: deps.payments,
		Events:   deps.events,
		Rule:     pricing.DefaultShippingRule(),
		Log:      zerolog.Nop(),
		Now:      func() time.Time { return testNow },
	}
	return deps
}

func validAddress() order.Address {
	return order.Address{
		Name:         "Asha Verma",
		Email:        "asha@example.com",
		Phone:        "98765-43210",
		AddressLine1: "12 MG Road",
		City:         "Pune",
		State:        "MH",
		Pincode:      "411001",
	}
}

func TestAddItemReportsNewLines(t *testing.T) {
	d := newTestService(t, staticLookup{})
	ctx := context.Background()
	view, err := d.svc.Create(ctx)
	require.NoError(t, err)

	view, inserted, err := d.svc.AddItem(ctx, view.ID, "p1", 1)
	require.NoError(t, err)
	require.True(t, inserted)

	view, inserted, err = d.svc.AddItem(ctx, view.ID, "p1", 1)
	require.NoError(t, err)
	require.False(t, inserted)
	require.Equal(t, 2, view.ItemCount)
	require.True(t, view.Totals.Shipping.IsZero(), "subtotal 1000 is above the free shipping threshold")

	_, _, err = d.svc.AddItem(ctx, view.ID, "p2", 2)
	require.ErrorIs(t, err, cart.ErrStockExceeded)

	_, _, err = d.svc.AddItem(ctx, view.ID, "missing", 1)
	require.ErrorIs(t, err, catalog.ErrNotFound)

	got, err := d.svc.Get(ctx, view.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.ItemCount)
}

func TestApplyCouponThroughStore(t *testing.T) {
	expired := fixedCoupon("OLD", 50)
	expired.ValidUntil = testNow.Add(-time.Hour)
	d := newTestService(t, staticLookup{"FLAT50": fixedCoupon("FLAT50", 50), "OLD": expired})
	ctx := context.Background()
	view, _ := d.svc.Create(ctx)
	_, _, err := d.svc.AddItem(ctx, view.ID, "p1", 2)
	require.NoError(t, err)

	view, discount, err := d.svc.ApplyCoupon(ctx, view.ID, "flat50")
	require.NoError(t, err)
	require.Equal(t, "50.00", discount.StringFixed(2))
	require.Equal(t, "950.00", view.Totals.GrandTotal.StringFixed(2))

	_, _, err = d.svc.ApplyCoupon(ctx, view.ID, "old")
	require.ErrorIs(t, err, coupon.ErrExpired)
	got, err := d.svc.Get(ctx, view.ID)
	require.NoError(t, err)
	require.Equal(t, "FLAT50", got.Coupon.Code)

	_, _, err = d.svc.ApplyCoupon(ctx, view.ID, "nope")
	require.ErrorIs(t, err, coupon.ErrNotFound)

	view, err = d.svc.RemoveCoupon(ctx, view.ID)
	require.NoError(t, err)
	require.Nil(t, view.Coupon)
}

func TestApplyCouponStaleAcrossRequests(t *testing.T) {
	g := &gatedLookup{c: percentCoupon("TEN", 10, nil), started: make(chan struct{}), release: make(chan struct{})}
	d := newTestService(t, g)
	ctx := context.Background()
	view, _ := d.svc.Create(ctx)
	_, _, err := d.svc.AddItem(ctx, view.ID, "p1", 2)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, _, err := d.svc.ApplyCoupon(ctx, view.ID, "TEN")
		errCh <- err
	}()
	<-g.started
	_, err = d.svc.UpdateQuantity(ctx, view.ID, "p1", 1)
	require.NoError(t, err)
	close(g.release)

	require.ErrorIs(t, <-errCh, ErrStaleLookup)
	got, err := d.svc.Get(ctx, view.ID)
	require.NoError(t, err)
	require.Nil(t, got.Coupon)
	require.Equal(t, 1, got.ItemCount)
}

func TestApplyCouponLookupFailure(t *testing.T) {
	d := newTestService(t, failingLookup{})
	ctx := context.Background()
	view, _ := d.svc.Create(ctx)
	_, _, err := d.svc.ApplyCoupon(ctx, view.ID, "TEN")
	require.ErrorIs(t, err, coupon.ErrLookupFailed)
}

type failingLookup struct{}

func (failingLookup) Lookup(context.Context, string) (coupon.Coupon, error) {
	return coupon.Coupon{}, errors.Join(coupon.ErrLookupFailed, errors.New("connection refused"))
}

func TestPlaceOrderCashOnDelivery(t *testing.T) {
	d := newTestService(t, staticLookup{"TEN": percentCoupon("TEN", 10, nil)})
	ctx := context.Background()
	view, _ := d.svc.Create(ctx)
	_, _, _ = d.svc.AddItem(ctx, view.ID, "p1", 2)
	_, _, err := d.svc.ApplyCoupon(ctx, view.ID, "TEN")
	require.NoError(t, err)

	res, err := d.svc.PlaceOrder(ctx, PlaceOrderInput{SessionID: view.ID, UserID: "user-1", Address: validAddress(), PaymentMethod: "COD"})
	require.NoError(t, err)
	require.True(t, res.StockAdjusted)
	require.Equal(t, "1000.00", res.Order.Subtotal.StringFixed(2))
	require.Equal(t, "100.00", res.Order.Discount.StringFixed(2))
	require.True(t, res.Order.Shipping.IsZero())
	require.Equal(t, "900.00", res.Order.Total.StringFixed(2))
	require.Equal(t, "TEN", res.Order.CouponCode)
	require.Equal(t, "9876543210", res.Order.ShippingAddress.Phone)
	require.Len(t, res.Order.Items, 1)
	require.Equal(t, "product p1", res.Order.Items[0].Name)

	require.Equal(t, []catalog.Adjustment{{ProductID: "p1", Quantity: 2}}, d.stock.calls[0])
	require.Equal(t, []string{res.Order.ID}, d.orders.marked)
	require.Equal(t, []string{events.TopicOrderCreated}, d.events.topics)

	got, err := d.svc.Get(ctx, view.ID)
	require.NoError(t, err)
	require.Zero(t, got.ItemCount)
	require.Nil(t, got.Coupon)
}

func TestPlaceOrderStockFailureKeepsOrder(t *testing.T) {
	d := newTestService(t, staticLookup{})
	d.stock.err = catalog.ErrInsufficientStock
	ctx := context.Background()
	view, _ := d.svc.Create(ctx)
	_, _, _ = d.svc.AddItem(ctx, view.ID, "p1", 1)

	res, err := d.svc.PlaceOrder(ctx, PlaceOrderInput{SessionID: view.ID, UserID: "user-1", Address: validAddress(), PaymentMethod: order.PaymentCOD})
	require.NoError(t, err)
	require.False(t, res.StockAdjusted)
	require.Len(t, d.orders.created, 1)
	require.Empty(t, d.orders.marked)
	require.Equal(t, []string{events.TopicOrderStockAdjustFailed, events.TopicOrderCreated}, d.events.topics)
}

func TestPlaceOrderRejections(t *testing.T) {
	d := newTestService(t, staticLookup{})
	ctx := context.Background()
	view, _ := d.svc.Create(ctx)

	_, err := d.svc.PlaceOrder(ctx, PlaceOrderInput{SessionID: view.ID, UserID: "u", Address: validAddress(), PaymentMethod: order.PaymentCOD})
	require.ErrorIs(t, err, ErrEmptyCart)

	_, _, _ = d.svc.AddItem(ctx, view.ID, "p1", 1)
	bad := validAddress()
	bad.Pincode = "123"
	_, err = d.svc.PlaceOrder(ctx, PlaceOrderInput{SessionID: view.ID, UserID: "u", Address: bad, PaymentMethod: order.PaymentCOD})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, http.StatusUnprocessableEntity, appErr.HTTPStatus)

	_, err = d.svc.PlaceOrder(ctx, PlaceOrderInput{SessionID: view.ID, UserID: "u", Address: validAddress(), PaymentMethod: "upi"})
	require.ErrorIs(t, err, ErrUnsupportedPayment)

	d.orders.err = errors.New("db down")
	_, err = d.svc.PlaceOrder(ctx, PlaceOrderInput{SessionID: view.ID, UserID: "u", Address: validAddress(), PaymentMethod: order.PaymentCOD})
	require.Error(t, err)
	require.Empty(t, d.stock.calls)

	got, err := d.svc.Get(ctx, view.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.ItemCount)
}

func TestPlaceOrderRazorpay(t *testing.T) {
	d := newTestService(t, staticLookup{})
	ctx := context.Background()
	view, _ := d.svc.Create(ctx)
	_, _, _ = d.svc.AddItem(ctx, view.ID, "p1", 3)

	in := PlaceOrderInput{SessionID: view.ID, UserID: "u", Address: validAddress(), PaymentMethod: order.PaymentRazorpay}
	_, err := d.svc.PlaceOrder(ctx, in)
	require.ErrorIs(t, err, ErrPaymentRequired)

	in.Payment = &payment.Confirmation{Cancelled: true}
	_, err = d.svc.PlaceOrder(ctx, in)
	require.ErrorIs(t, err, payment.ErrCancelled)
	require.Empty(t, d.orders.created)

	intent, err := d.svc.CreatePaymentIntent(ctx, view.ID, "u")
	require.NoError(t, err)
	require.EqualValues(t, 150000, intent.Amount)

	in.Payment = &payment.Confirmation{ProviderOrderID: "order_1", PaymentID: "pay_9", Signature: "sig"}
	res, err := d.svc.PlaceOrder(ctx, in)
	require.NoError(t, err)
	require.Equal(t, "pay_9", res.Order.PaymentID)
	require.True(t, d.payments.amounts[len(d.payments.amounts)-1].Equal(decimal.NewFromInt(1500)))
}

func TestCouponRecheckedAfterCartEditAndAtPlacement(t *testing.T) {
	minimum := percentCoupon("MIN1000", 10, nil)
	minimum.MinOrderAmount = moneyPtr(1000)
	d := newTestService(t, staticLookup{"MIN1000": minimum, "TEN": percentCoupon("TEN", 10, nil)})
	ctx := context.Background()
	view, _ := d.svc.Create(ctx)
	_, _, err := d.svc.AddItem(ctx, view.ID, "p1", 2)
	require.NoError(t, err)
	_, _, err = d.svc.ApplyCoupon(ctx, view.ID, "MIN1000")
	require.NoError(t, err)

	view, err = d.svc.UpdateQuantity(ctx, view.ID, "p1", 1)
	require.NoError(t, err)
	require.Nil(t, view.Coupon)
	require.Equal(t, "MIN1000", view.Dropped.Code)
	require.True(t, view.Totals.Discount.IsZero())
	require.Equal(t, "599.00", view.Totals.GrandTotal.StringFixed(2))

	_, _, err = d.svc.ApplyCoupon(ctx, view.ID, "TEN")
	require.NoError(t, err)
	d.svc.Now = func() time.Time { return testNow.Add(48 * time.Hour) }

	got, err := d.svc.Get(ctx, view.ID)
	require.NoError(t, err)
	require.Nil(t, got.Coupon)
	require.Equal(t, "TEN", got.Dropped.Code)

	in := PlaceOrderInput{SessionID: view.ID, UserID: "u", Address: validAddress(), PaymentMethod: order.PaymentCOD}
	_, err = d.svc.PlaceOrder(ctx, in)
	require.ErrorIs(t, err, ErrCouponDropped)
	require.ErrorIs(t, err, coupon.ErrExpired)
	require.Empty(t, d.orders.created)

	res, err := d.svc.PlaceOrder(ctx, in)
	require.NoError(t, err)
	require.Empty(t, res.Order.CouponCode)
	require.True(t, res.Order.Discount.IsZero())
	require.Equal(t, "599.00", res.Order.Total.StringFixed(2))
}
