// Package coupon validates coupon codes against a cart and computes the
// discount they grant. It also owns coupon administration.
package coupon

import (
	"errors"
	"fmt"
	"time"

	"github.com/noah-isme/storefront/internal/pricing"
)

// DiscountType selects how DiscountValue is interpreted.
type DiscountType string

const (
	// Percentage discounts take DiscountValue percent of the order total.
	Percentage DiscountType = "percentage"
	// Fixed discounts take DiscountValue currency units off the order total.
	Fixed DiscountType = "fixed"
)

// Valid reports whether t is a known discount type.
func (t DiscountType) Valid() bool { return t == Percentage || t == Fixed }

// Coupon is a redeemable discount code.
type Coupon struct {
	ID                   string         `json:"id"`
	Code                 string         `json:"code"`
	Title                string         `json:"title"`
	Description          string         `json:"description"`
	DiscountType         DiscountType   `json:"discountType"`
	DiscountValue        pricing.Money  `json:"discountValue"`
	MinOrderAmount       *pricing.Money `json:"minOrderAmount,omitempty"`
	MaxDiscountAmount    *pricing.Money `json:"maxDiscountAmount,omitempty"`
	ValidFrom            time.Time      `json:"validFrom"`
	ValidUntil           time.Time      `json:"validUntil"`
	IsActive             bool           `json:"isActive"`
	UsageLimit           *int           `json:"usageLimit,omitempty"`
	UsedCount            int            `json:"usedCount"`
	ApplicableCategories []string       `json:"applicableCategories"`
	CreatedAt            time.Time      `json:"createdAt"`
	UpdatedAt            time.Time      `json:"updatedAt"`
}

// Rejection reasons. Each is user-facing and distinct.
var (
	ErrNotFound          = errors.New("invalid coupon code")
	ErrInactive          = errors.New("this coupon is not active")
	ErrNotYetValid       = errors.New("this coupon is not yet valid")
	ErrExpired           = errors.New("this coupon has expired")
	ErrUsageLimitReached = errors.New("this coupon has reached its usage limit")
	ErrMinimumNotMet     = errors.New("minimum order amount not met")
	ErrNotApplicable     = errors.New("this coupon is not applicable to items in your cart")
)

var (
	// ErrLookupFailed wraps datastore failures while resolving a code.
	ErrLookupFailed = errors.New("coupon lookup failed")
	// ErrDuplicateCode is returned when creating or renaming to an existing code.
	ErrDuplicateCode = errors.New("coupon code already exists")
	// ErrInvalidCoupon is returned when admin input fails validation.
	ErrInvalidCoupon = errors.New("invalid coupon")
)

var rejections = []error{
	ErrNotFound, ErrInactive, ErrNotYetValid, ErrExpired,
	ErrUsageLimitReached, ErrMinimumNotMet, ErrNotApplicable,
}

// IsRejection reports whether err is a business rejection rather than a failure.
func IsRejection(err error) bool {
	for _, r := range rejections {
		if errors.Is(err, r) {
			return true
		}
	}
	return false
}

// MinimumError carries the required minimum for ErrMinimumNotMet.
type MinimumError struct {
	Required pricing.Money
}

func (e *MinimumError) Error() string {
	return fmt.Sprintf("minimum order amount of %s required for this coupon", e.Required.StringFixed(2))
}

// Unwrap lets errors.Is match ErrMinimumNotMet.
func (e *MinimumError) Unwrap() error { return ErrMinimumNotMet }
