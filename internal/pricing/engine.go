package pricing

import "github.com/shopspring/decimal"

// Money represents a monetary value in whole currency units.
type Money = decimal.Decimal

// Default shipping configuration: orders up to and including the threshold pay the flat fee.
var (
	DefaultFreeShippingThreshold = decimal.NewFromInt(999)
	DefaultShippingFee           = decimal.NewFromInt(99)
)

// ShippingRule is a flat fee waived once the subtotal exceeds Threshold.
type ShippingRule struct {
	Threshold Money
	Fee       Money
}

// DefaultShippingRule returns the storefront's standard shipping rule.
func DefaultShippingRule() ShippingRule {
	return ShippingRule{Threshold: DefaultFreeShippingThreshold, Fee: DefaultShippingFee}
}

// ShippingFee returns the shipping fee charged for the provided subtotal.
func (r ShippingRule) ShippingFee(subtotal Money) Money {
	if subtotal.LessThanOrEqual(r.Threshold) {
		return r.Fee
	}
	return decimal.Zero
}

// Totals aggregates computed pricing components.
type Totals struct {
	Subtotal   Money `json:"subtotal"`
	Discount   Money `json:"discount"`
	Shipping   Money `json:"shipping"`
	GrandTotal Money `json:"grandTotal"`
}

// GrandTotal returns subtotal + shipping - discount, never below zero.
func GrandTotal(subtotal, discount, shipping Money) Money {
	total := subtotal.Add(shipping).Sub(discount)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

// Compute calculates checkout totals given the subtotal and an already computed discount.
func Compute(subtotal, discount Money, rule ShippingRule) Totals {
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	shipping := rule.ShippingFee(subtotal)
	return Totals{
		Subtotal:   subtotal,
		Discount:   discount,
		Shipping:   shipping,
		GrandTotal: GrandTotal(subtotal, discount, shipping),
	}
}
