// Package offer manages storefront promotions: codeless discounts that are
// advertised to shoppers and scoped to products or categories.
package offer

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/storefront/internal/coupon"
	"github.com/noah-isme/storefront/internal/pricing"
)

// Offer is an advertised promotion. Discount fields share the coupon model.
type Offer struct {
	ID                   string              `json:"id"`
	Title                string              `json:"title"`
	Description          string              `json:"description"`
	DiscountType         coupon.DiscountType `json:"discountType"`
	DiscountValue        pricing.Money       `json:"discountValue"`
	MinOrderAmount       *pricing.Money      `json:"minOrderAmount,omitempty"`
	MaxDiscountAmount    *pricing.Money      `json:"maxDiscountAmount,omitempty"`
	ValidFrom            time.Time           `json:"validFrom"`
	ValidUntil           time.Time           `json:"validUntil"`
	IsActive             bool                `json:"isActive"`
	ApplicableCategories []string            `json:"applicableCategories"`
	ApplicableProducts   []string            `json:"applicableProducts"`
	UsageLimit           *int                `json:"usageLimit,omitempty"`
	UsedCount            int                 `json:"usedCount"`
	CreatedAt            time.Time           `json:"createdAt"`
	UpdatedAt            time.Time           `json:"updatedAt"`
}

var (
	ErrNotFound     = errors.New("offer not found")
	ErrInvalidOffer = errors.New("invalid offer")
)

// StatusAt derives the admin lifecycle state. Offers share coupon statuses.
func StatusAt(o Offer, now time.Time) coupon.Status {
	switch {
	case !o.IsActive:
		return coupon.StatusInactive
	case now.Before(o.ValidFrom):
		return coupon.StatusScheduled
	case now.After(o.ValidUntil):
		return coupon.StatusExpired
	default:
		return coupon.StatusActive
	}
}

// Live reports whether shoppers should see o at now: active, inside its
// window and under its usage limit.
func Live(o Offer, now time.Time) bool {
	if StatusAt(o, now) != coupon.StatusActive {
		return false
	}
	return o.UsageLimit == nil || *o.UsageLimit <= 0 || o.UsedCount < *o.UsageLimit
}

// AppliesTo reports whether o covers the product or its category. An offer
// with no scope covers everything.
func AppliesTo(o Offer, productID, category string) bool {
	if len(o.ApplicableProducts) == 0 && len(o.ApplicableCategories) == 0 {
		return true
	}
	if productID != "" && contains(o.ApplicableProducts, productID) {
		return true
	}
	return category != "" && contains(o.ApplicableCategories, category)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// DaysLeft is the number of whole days remaining, rounded up, and zero once
// the offer has ended.
func DaysLeft(o Offer, now time.Time) int {
	left := o.ValidUntil.Sub(now)
	if left <= 0 {
		return 0
	}
	days := int(left / (24 * time.Hour))
	if left%(24*time.Hour) != 0 {
		days++
	}
	return days
}

// Savings is what o would take off subtotal, using the coupon discount rules.
// It is zero when the minimum order amount is not met.
func Savings(o Offer, subtotal pricing.Money) pricing.Money {
	if o.MinOrderAmount != nil && o.MinOrderAmount.IsPositive() && subtotal.LessThan(*o.MinOrderAmount) {
		return decimal.Zero
	}
	return coupon.Discount(coupon.Coupon{
		DiscountType:      o.DiscountType,
		DiscountValue:     o.DiscountValue,
		MaxDiscountAmount: o.MaxDiscountAmount,
	}, subtotal)
}
