package coupon

import (
	"crypto/rand"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/storefront/internal/pricing"
)

var hundred = decimal.NewFromInt(100)

// NormalizeCode trims and upper-cases a code. Stored codes are always normalized.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks c against now, the order total and the cart categories.
// Checks run in a fixed order and stop at the first failure.
func Validate(c Coupon, now time.Time, orderTotal pricing.Money, categories []string) error {
	if !c.IsActive {
		return ErrInactive
	}
	if now.Before(c.ValidFrom) {
		return ErrNotYetValid
	}
	if now.After(c.ValidUntil) {
		return ErrExpired
	}
	if c.UsageLimit != nil && *c.UsageLimit > 0 && c.UsedCount >= *c.UsageLimit {
		return ErrUsageLimitReached
	}
	if c.MinOrderAmount != nil && c.MinOrderAmount.IsPositive() && orderTotal.LessThan(*c.MinOrderAmount) {
		return &MinimumError{Required: *c.MinOrderAmount}
	}
	if len(c.ApplicableCategories) > 0 && !intersects(c.ApplicableCategories, categories) {
		return ErrNotApplicable
	}
	return nil
}

func intersects(allowed, present []string) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		set[a] = struct{}{}
	}
	for _, p := range present {
		if _, ok := set[p]; ok {
			return true
		}
	}
	return false
}

// Discount returns the amount c takes off orderTotal, rounded to two places
// and clamped into [0, orderTotal].
func Discount(c Coupon, orderTotal pricing.Money) pricing.Money {
	if !orderTotal.IsPositive() {
		return decimal.Zero
	}
	var d pricing.Money
	switch c.DiscountType {
	case Percentage:
		d = orderTotal.Mul(c.DiscountValue).Div(hundred)
		if c.MaxDiscountAmount != nil && c.MaxDiscountAmount.IsPositive() && d.GreaterThan(*c.MaxDiscountAmount) {
			d = *c.MaxDiscountAmount
		}
	default:
		d = c.DiscountValue
	}
	d = d.Round(2)
	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(orderTotal) {
		return orderTotal
	}
	return d
}

// Status is the admin-facing lifecycle state of a coupon.
type Status string

const (
	StatusInactive  Status = "inactive"
	StatusScheduled Status = "scheduled"
	StatusExpired   Status = "expired"
	StatusActive    Status = "active"
)

// StatusAt derives the coupon status at now.
func StatusAt(c Coupon, now time.Time) Status {
	switch {
	case !c.IsActive:
		return StatusInactive
	case now.Before(c.ValidFrom):
		return StatusScheduled
	case now.After(c.ValidUntil):
		return StatusExpired
	default:
		return StatusActive
	}
}

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// CodeLength is the length of generated codes.
const CodeLength = 8

// GenerateCode returns a random code of CodeLength characters from [A-Z0-9].
func GenerateCode() (string, error) {
	var b strings.Builder
	b.Grow(CodeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < CodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}
