// Package order stores placed orders and drives their fulfilment status.
package order

import (
	"errors"
	"time"

	"github.com/noah-isme/storefront/internal/pricing"
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// Statuses lists every status in fulfilment order.
var Statuses = []Status{StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusProcessing:
		return 1
	case StatusShipped:
		return 2
	case StatusDelivered:
		return 3
	default:
		return -1
	}
}

// CanTransition reports whether an order may move from one status to another.
// Orders only move forward; cancellation is allowed until delivery.
func CanTransition(from, to Status) bool {
	if from == to || !to.Valid() {
		return false
	}
	if from == StatusDelivered || from == StatusCancelled {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	return to.rank() > from.rank()
}

// PaymentMethod is how the customer pays.
type PaymentMethod string

const (
	PaymentCOD      PaymentMethod = "cod"
	PaymentRazorpay PaymentMethod = "razorpay"
)

// Valid reports whether m is supported.
func (m PaymentMethod) Valid() bool { return m == PaymentCOD || m == PaymentRazorpay }

var (
	// ErrNotFound indicates the order does not exist or is not visible to the caller.
	ErrNotFound = errors.New("order: not found")
	// ErrInvalidTransition indicates a status change the lifecycle does not allow.
	ErrInvalidTransition = errors.New("order: status transition not allowed")
)

// Address is the shipping destination captured at checkout.
type Address struct {
	Name         string `json:"name" validate:"required,max=120"`
	Email        string `json:"email" validate:"required,email"`
	Phone        string `json:"phone" validate:"required,phone10"`
	AddressLine1 string `json:"addressLine1" validate:"required,max=200"`
	AddressLine2 string `json:"addressLine2,omitempty" validate:"max=200"`
	City         string `json:"city" validate:"required,max=80"`
	State        string `json:"state" validate:"required,max=80"`
	Pincode      string `json:"pincode" validate:"required,pincode"`
}

// Item is a line snapshot taken at order time.
type Item struct {
	ProductID string        `json:"productId"`
	Name      string        `json:"name"`
	Category  string        `json:"category"`
	Quantity  int           `json:"quantity"`
	UnitPrice pricing.Money `json:"unitPrice"`
}

// Order is a placed order.
type Order struct {
	ID              string        `json:"id"`
	UserID          string        `json:"userId"`
	Status          Status        `json:"status"`
	Items           []Item        `json:"items"`
	Subtotal        pricing.Money `json:"subtotal"`
	Discount        pricing.Money `json:"discount"`
	Shipping        pricing.Money `json:"shipping"`
	Total           pricing.Money `json:"total"`
	CouponCode      string        `json:"couponCode,omitempty"`
	PaymentMethod   PaymentMethod `json:"paymentMethod"`
	PaymentID       string        `json:"paymentId,omitempty"`
	ShippingAddress Address       `json:"shippingAddress"`
	StockAdjusted   bool          `json:"stockAdjusted"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}
