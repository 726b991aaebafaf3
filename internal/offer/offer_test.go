package offer

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront/internal/coupon"
)

var now = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func baseOffer() Offer {
	return Offer{
		Title:                "Festive sarees",
		DiscountType:         coupon.Percentage,
		DiscountValue:        decimal.NewFromInt(20),
		ValidFrom:            now.Add(-24 * time.Hour),
		ValidUntil:           now.Add(36 * time.Hour),
		IsActive:             true,
		ApplicableCategories: []string{},
		ApplicableProducts:   []string{},
	}
}

func TestStatusAndLive(t *testing.T) {
	o := baseOffer()
	require.Equal(t, coupon.StatusActive, StatusAt(o, now))
	require.True(t, Live(o, now))

	require.Equal(t, coupon.StatusScheduled, StatusAt(o, now.Add(-48*time.Hour)))
	require.Equal(t, coupon.StatusExpired, StatusAt(o, now.Add(48*time.Hour)))
	require.False(t, Live(o, now.Add(48*time.Hour)))

	limit := 2
	o.UsageLimit = &limit
	o.UsedCount = 2
	require.Equal(t, coupon.StatusActive, StatusAt(o, now))
	require.False(t, Live(o, now))

	o.IsActive = false
	require.Equal(t, coupon.StatusInactive, StatusAt(o, now))
}

func TestAppliesTo(t *testing.T) {
	o := baseOffer()
	require.True(t, AppliesTo(o, "p1", "Kurtas"))

	o.ApplicableProducts = []string{"p1"}
	o.ApplicableCategories = []string{"Sarees"}
	require.True(t, AppliesTo(o, "p1", "Kurtas"))
	require.True(t, AppliesTo(o, "p9", "Sarees"))
	require.True(t, AppliesTo(o, "", "Sarees"))
	require.False(t, AppliesTo(o, "p9", "Kurtas"))
	require.False(t, AppliesTo(o, "", ""))
}

func TestDaysLeft(t *testing.T) {
	o := baseOffer()
	require.Equal(t, 2, DaysLeft(o, now))
	require.Equal(t, 1, DaysLeft(o, now.Add(12*time.Hour)))
	require.Equal(t, 0, DaysLeft(o, o.ValidUntil))
}

func TestSavings(t *testing.T) {
	o := baseOffer()
	ceiling := decimal.NewFromInt(150)
	o.MaxDiscountAmount = &ceiling
	require.Equal(t, "100.00", Savings(o, decimal.NewFromInt(500)).StringFixed(2))
	require.Equal(t, "150.00", Savings(o, decimal.NewFromInt(2000)).StringFixed(2))

	minimum := decimal.NewFromInt(1000)
	o.MinOrderAmount = &minimum
	require.True(t, Savings(o, decimal.NewFromInt(999)).IsZero())

	o = baseOffer()
	o.DiscountType = coupon.Fixed
	o.DiscountValue = decimal.NewFromInt(300)
	require.Equal(t, "200.00", Savings(o, decimal.NewFromInt(200)).StringFixed(2))
}
