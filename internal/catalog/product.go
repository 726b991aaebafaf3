package catalog

import (
	"errors"
	"strings"
	"time"

	"github.com/noah-isme/storefront/internal/pricing"
)

var (
	// ErrNotFound indicates the product does not exist.
	ErrNotFound = errors.New("catalog: product not found")
	// ErrInsufficientStock indicates a stock decrement would drive quantity below zero.
	ErrInsufficientStock = errors.New("catalog: insufficient stock")
	// ErrInvalidProduct indicates product input failed validation.
	ErrInvalidProduct = errors.New("catalog: invalid product")
)

// Product is the catalog record referenced by cart lines.
type Product struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Price         pricing.Money  `json:"price"`
	OriginalPrice *pricing.Money `json:"originalPrice,omitempty"`
	Category      string         `json:"category"`
	Images        []string       `json:"images"`
	StockQuantity int            `json:"stockQuantity"`
	InStock       bool           `json:"inStock"`
	Featured      bool           `json:"featured"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// Adjustment requests a stock decrement for one product.
type Adjustment struct {
	ProductID string
	Quantity  int
}

// ProductInput carries admin writes. Pointer fields are optional on update.
type ProductInput struct {
	Name          *string        `json:"name"`
	Description   *string        `json:"description"`
	Price         *pricing.Money `json:"price"`
	OriginalPrice *pricing.Money `json:"originalPrice"`
	Category      *string        `json:"category"`
	Images        []string       `json:"images"`
	StockQuantity *int           `json:"stockQuantity"`
	Featured      *bool          `json:"featured"`
}

// ApplyTo merges the input into p and re-derives InStock.
func (in ProductInput) ApplyTo(p *Product) {
	if in.Name != nil {
		p.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		p.Description = strings.TrimSpace(*in.Description)
	}
	if in.Price != nil {
		p.Price = *in.Price
	}
	if in.OriginalPrice != nil {
		op := *in.OriginalPrice
		p.OriginalPrice = &op
	}
	if in.Category != nil {
		p.Category = strings.TrimSpace(*in.Category)
	}
	if in.Images != nil {
		p.Images = append([]string(nil), in.Images...)
	}
	if in.StockQuantity != nil {
		p.StockQuantity = *in.StockQuantity
	}
	if in.Featured != nil {
		p.Featured = *in.Featured
	}
	p.InStock = p.StockQuantity > 0
}

// Validate checks the merged product before it is persisted.
func (p Product) Validate() error {
	switch {
	case p.Name == "":
		return fieldError("name", "name is required")
	case p.Category == "":
		return fieldError("category", "category is required")
	case p.Price.IsNegative():
		return fieldError("price", "price must not be negative")
	case p.OriginalPrice != nil && p.OriginalPrice.IsNegative():
		return fieldError("originalPrice", "originalPrice must not be negative")
	case p.StockQuantity < 0:
		return fieldError("stockQuantity", "stockQuantity must not be negative")
	}
	return nil
}

// FieldError describes which product field failed validation.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string { return e.Message }

// Unwrap lets errors.Is match ErrInvalidProduct.
func (e *FieldError) Unwrap() error { return ErrInvalidProduct }

func fieldError(field, msg string) error {
	return &FieldError{Field: field, Message: msg}
}
