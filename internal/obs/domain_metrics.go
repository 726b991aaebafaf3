package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CouponApplyTotal counts coupon apply attempts by result (applied, expired, stale, lookup_failed, ...).
	CouponApplyTotal *prometheus.CounterVec
	// CheckoutOrdersTotal counts order placement outcomes per payment method.
	CheckoutOrdersTotal *prometheus.CounterVec
	// StockAdjustFailuresTotal counts orders whose stock decrement failed after creation.
	StockAdjustFailuresTotal prometheus.Counter
	// PaymentIntentTotal counts payment intent creation attempts.
	PaymentIntentTotal *prometheus.CounterVec
	// CartMutationsTotal counts ledger mutations by operation and result.
	CartMutationsTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CouponApplyTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coupon_apply_total",
			Help:      "Count of coupon apply attempts by outcome.",
		}, []string{"result"})
		CheckoutOrdersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_orders_total",
			Help:      "Count of order placement outcomes.",
		}, []string{"method", "result"})
		StockAdjustFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_adjust_failures_total",
			Help:      "Orders created whose stock decrement failed.",
		})
		PaymentIntentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_intent_total",
			Help:      "Count of payment intent processing outcomes.",
		}, []string{"provider", "result"})
		CartMutationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_mutations_total",
			Help:      "Count of cart ledger mutations by operation and outcome.",
		}, []string{"op", "result"})

		CouponApplyTotal = register(reg, CouponApplyTotal)
		CheckoutOrdersTotal = register(reg, CheckoutOrdersTotal)
		StockAdjustFailuresTotal = register(reg, StockAdjustFailuresTotal)
		PaymentIntentTotal = register(reg, PaymentIntentTotal)
		CartMutationsTotal = register(reg, CartMutationsTotal)
	})
}

// IncCouponApply records a coupon apply outcome if metrics are registered.
func IncCouponApply(result string) {
	if CouponApplyTotal != nil {
		CouponApplyTotal.WithLabelValues(result).Inc()
	}
}

// IncCheckoutOrder records an order placement outcome if metrics are registered.
func IncCheckoutOrder(method, result string) {
	if CheckoutOrdersTotal != nil {
		CheckoutOrdersTotal.WithLabelValues(method, result).Inc()
	}
}

// IncStockAdjustFailure records a failed post-order stock decrement.
func IncStockAdjustFailure() {
	if StockAdjustFailuresTotal != nil {
		StockAdjustFailuresTotal.Inc()
	}
}

// IncPaymentIntent records a payment intent outcome.
func IncPaymentIntent(provider, result string) {
	if PaymentIntentTotal != nil {
		PaymentIntentTotal.WithLabelValues(provider, result).Inc()
	}
}

// IncCartMutation records a ledger mutation outcome.
func IncCartMutation(op, result string) {
	if CartMutationsTotal != nil {
		CartMutationsTotal.WithLabelValues(op, result).Inc()
	}
}
