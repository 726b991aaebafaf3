// Package cart holds the in-session cart ledger: product lines keyed by
// product id with a stock snapshot taken when the line was last touched.
package cart

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/storefront/internal/catalog"
	"github.com/noah-isme/storefront/internal/pricing"
)

var (
	// ErrStockExceeded is returned when a quantity would exceed the product's stock snapshot.
	ErrStockExceeded = errors.New("cart: quantity exceeds available stock")
	// ErrInvalidQuantity is returned when Add is called with a non-positive quantity.
	ErrInvalidQuantity = errors.New("cart: quantity must be positive")
	// ErrLineNotFound is returned when updating a product that is not in the cart.
	ErrLineNotFound = errors.New("cart: product not in cart")
)

// StockError reports the stock that bounded a rejected mutation.
type StockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("cart: requested %d of %s but only %d available", e.Requested, e.ProductID, e.Available)
}

// Unwrap lets errors.Is match ErrStockExceeded.
func (e *StockError) Unwrap() error { return ErrStockExceeded }

// Line is one product in the cart with the snapshot used for pricing and stock checks.
type Line struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	Product   catalog.Product `json:"product"`
}

// LineTotal is price times quantity for the line.
func (l Line) LineTotal() pricing.Money {
	return l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Ledger is an ordered list of lines, unique by product id. It is not safe
// for concurrent use; callers serialize access.
type Ledger struct {
	lines []Line
}

// NewLedger rebuilds a ledger from persisted lines, dropping duplicates and
// non-positive quantities.
func NewLedger(lines []Line) *Ledger {
	l := &Ledger{}
	for _, line := range lines {
		if line.ProductID == "" {
			line.ProductID = line.Product.ID
		}
		if line.Quantity <= 0 || l.index(line.ProductID) >= 0 {
			continue
		}
		l.lines = append(l.lines, line)
	}
	return l
}

func (l *Ledger) index(productID string) int {
	for i := range l.lines {
		if l.lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// Add increments an existing line or appends a new one. It reports whether a
// new line was inserted. The snapshot is replaced by product on every add.
func (l *Ledger) Add(product catalog.Product, qty int) (bool, error) {
	if qty <= 0 {
		return false, ErrInvalidQuantity
	}
	i := l.index(product.ID)
	current := 0
	if i >= 0 {
		current = l.lines[i].Quantity
	}
	next := current + qty
	if next > product.StockQuantity {
		return false, &StockError{ProductID: product.ID, Requested: next, Available: product.StockQuantity}
	}
	if i >= 0 {
		l.lines[i].Quantity = next
		l.lines[i].Product = product
		return false, nil
	}
	l.lines = append(l.lines, Line{ProductID: product.ID, Quantity: qty, Product: product})
	return true, nil
}

// UpdateQuantity sets the quantity of an existing line. qty <= 0 removes it.
func (l *Ledger) UpdateQuantity(productID string, qty int) error {
	if qty <= 0 {
		l.Remove(productID)
		return nil
	}
	i := l.index(productID)
	if i < 0 {
		return ErrLineNotFound
	}
	if available := l.lines[i].Product.StockQuantity; qty > available {
		return &StockError{ProductID: productID, Requested: qty, Available: available}
	}
	l.lines[i].Quantity = qty
	return nil
}

// Remove deletes the line for productID if present.
func (l *Ledger) Remove(productID string) {
	if i := l.index(productID); i >= 0 {
		l.lines = append(l.lines[:i], l.lines[i+1:]...)
	}
}

// Clear empties the ledger.
func (l *Ledger) Clear() { l.lines = nil }

// Subtotal is the sum of price times quantity across lines.
func (l *Ledger) Subtotal() pricing.Money {
	total := decimal.Zero
	for _, line := range l.lines {
		total = total.Add(line.LineTotal())
	}
	return total
}

// ItemCount is the total quantity across lines.
func (l *Ledger) ItemCount() int {
	n := 0
	for _, line := range l.lines {
		n += line.Quantity
	}
	return n
}

// Categories returns the distinct product categories in insertion order.
func (l *Ledger) Categories() []string {
	seen := make(map[string]struct{}, len(l.lines))
	out := make([]string, 0, len(l.lines))
	for _, line := range l.lines {
		c := line.Product.Category
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Lines returns a copy of the lines.
func (l *Ledger) Lines() []Line {
	out := make([]Line, len(l.lines))
	copy(out, l.lines)
	return out
}

// Adjustments converts the lines into stock decrements.
func (l *Ledger) Adjustments() []catalog.Adjustment {
	out := make([]catalog.Adjustment, 0, len(l.lines))
	for _, line := range l.lines {
		out = append(out, catalog.Adjustment{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	return out
}
