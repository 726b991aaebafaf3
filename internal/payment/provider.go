// Package payment integrates the hosted payment widget used for online orders.
package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/storefront/internal/pricing"
)

var (
	// ErrCancelled indicates the customer dismissed the payment widget.
	ErrCancelled = errors.New("payment: cancelled by customer")
	// ErrSignatureMismatch indicates the widget result was not signed by the provider.
	ErrSignatureMismatch = errors.New("payment: signature mismatch")
	// ErrAmountMismatch indicates the provider order was created for a different amount.
	ErrAmountMismatch = errors.New("payment: amount mismatch")
	// ErrInvalidAmount indicates a non-positive charge.
	ErrInvalidAmount = errors.New("payment: amount must be positive")
	// ErrNotConfigured indicates online payments are disabled.
	ErrNotConfigured = errors.New("payment: provider not configured")
)

// IntentRequest opens a provider-side order for the widget.
type IntentRequest struct {
	Receipt string
	Amount  pricing.Money
	Notes   map[string]string
}

// Intent is what the browser needs to open the payment widget.
type Intent struct {
	Provider        string `json:"provider"`
	KeyID           string `json:"keyId"`
	ProviderOrderID string `json:"providerOrderId"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	Receipt         string `json:"receipt"`
}

// Confirmation is the widget's result as posted back by the browser.
type Confirmation struct {
	ProviderOrderID string `json:"providerOrderId"`
	PaymentID       string `json:"paymentId"`
	Signature       string `json:"signature"`
	Cancelled       bool   `json:"cancelled,omitempty"`
}

// Receipt identifies a confirmed payment.
type Receipt struct {
	Provider  string
	PaymentID string
	OrderID   string
}

// Collector takes money for an order total.
type Collector interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	// Confirm verifies the widget result for exactly amount.
	Confirm(ctx context.Context, c Confirmation, amount pricing.Money) (Receipt, error)
}

var hundred = decimal.NewFromInt(100)

// ToMinorUnits converts whole currency units to paise.
func ToMinorUnits(amount pricing.Money) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}
