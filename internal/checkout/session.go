package checkout

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/storefront/internal/cart"
	"github.com/noah-isme/storefront/internal/catalog"
	"github.com/noah-isme/storefront/internal/coupon"
	"github.com/noah-isme/storefront/internal/pricing"
)

var (
	// ErrStaleLookup is returned when a coupon lookup resolved after the
	// session had already moved on. The result is discarded.
	ErrStaleLookup = errors.New("checkout: session changed while coupon lookup was in flight")
	// ErrCouponDropped marks an applied coupon that stopped qualifying.
	ErrCouponDropped = errors.New("checkout: applied coupon no longer qualifies")
)

// CouponDrop tells the shopper which coupon was removed and why.
type CouponDrop struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// CouponDroppedError is returned when an order is refused because its coupon
// stopped qualifying. It unwraps to both ErrCouponDropped and the rejection.
type CouponDroppedError struct {
	Code string
	Err  error
}

func (e *CouponDroppedError) Error() string {
	return "coupon " + e.Code + " no longer applies: " + e.Err.Error()
}

func (e *CouponDroppedError) Unwrap() []error { return []error{ErrCouponDropped, e.Err} }

// CouponLookup resolves a code to a coupon.
type CouponLookup interface {
	Lookup(ctx context.Context, code string) (coupon.Coupon, error)
}

// Session is the explicit checkout state: the cart ledger plus the applied
// coupon. Every mutation bumps the generation so late async results can be
// detected and dropped, and re-checks the applied coupon against the new
// cart. Safe for concurrent use.
type Session struct {
	// Now is the clock used when re-checking the coupon after cart edits.
	Now func() time.Time

	mu         sync.Mutex
	id         string
	ledger     *cart.Ledger
	applied    *coupon.Coupon
	dropped    *CouponDrop
	generation uint64
	updatedAt  time.Time
}

// NewSession returns an empty session.
func NewSession(id string) *Session {
	return &Session{id: id, ledger: cart.NewLedger(nil)}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Generation returns the mutation counter. It doubles as the ticket for an async lookup.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

func (s *Session) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Session) bump() { s.generation++ }

// mutated finishes a cart mutation: it bumps the generation and drops the
// applied coupon if the new cart no longer qualifies for it.
func (s *Session) mutated() {
	s.bump()
	s.revalidateLocked(s.now())
}

func (s *Session) revalidateLocked(now time.Time) *CouponDroppedError {
	if s.applied == nil {
		return nil
	}
	err := coupon.Validate(*s.applied, now, s.ledger.Subtotal(), s.ledger.Categories())
	if err == nil {
		return nil
	}
	code := s.applied.Code
	s.applied = nil
	s.dropped = &CouponDrop{Code: code, Reason: err.Error()}
	return &CouponDroppedError{Code: code, Err: err}
}

// Revalidate re-checks the applied coupon at now and drops it if it no longer
// qualifies, returning the reason. A drop counts as a mutation.
func (s *Session) Revalidate(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.revalidateLocked(now); err != nil {
		s.bump()
		return err
	}
	return nil
}

// AddItem adds qty of product to the cart. It reports whether a new line was inserted.
func (s *Session) AddItem(product catalog.Product, qty int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inserted, err := s.ledger.Add(product, qty)
	if err != nil {
		return false, err
	}
	s.dropped = nil
	s.mutated()
	return inserted, nil
}

// UpdateQuantity sets the quantity for a product; qty <= 0 removes the line.
func (s *Session) UpdateQuantity(productID string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ledger.UpdateQuantity(productID, qty); err != nil {
		return err
	}
	s.dropped = nil
	s.mutated()
	return nil
}

// RemoveItem drops a product from the cart.
func (s *Session) RemoveItem(productID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger.Remove(productID)
	s.dropped = nil
	s.mutated()
}

// ClearCart empties the cart. The applied coupon is kept only if it still
// qualifies for an empty cart.
func (s *Session) ClearCart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger.Clear()
	s.dropped = nil
	s.mutated()
}

// Reset empties the cart and drops the applied coupon, as after a placed order.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger.Clear()
	s.applied = nil
	s.dropped = nil
	s.bump()
}

// Lines returns a copy of the cart lines.
func (s *Session) Lines() []cart.Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Lines()
}

// ItemCount is the total quantity in the cart.
func (s *Session) ItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.ItemCount()
}

// Adjustments is the stock decrement the current cart would need.
func (s *Session) Adjustments() []catalog.Adjustment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Adjustments()
}

// Subtotal is the cart subtotal.
func (s *Session) Subtotal() pricing.Money {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Subtotal()
}

// AppliedCoupon returns a copy of the applied coupon, or nil.
func (s *Session) AppliedCoupon() *coupon.Coupon {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applied == nil {
		return nil
	}
	c := *s.applied
	return &c
}

// ApplyCoupon looks code up without holding the session lock and commits the
// result only if nothing changed in the meantime. Validation runs at commit
// time against the current cart. It returns the discount at that instant.
func (s *Session) ApplyCoupon(ctx context.Context, lookup CouponLookup, code string, now time.Time) (pricing.Money, error) {
	ticket := s.Generation()
	c, err := lookup.Lookup(ctx, code)
	if err != nil {
		return decimal.Zero, err
	}
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	return s.CommitCoupon(ticket, c, now)
}

// CommitCoupon validates c and makes it the applied coupon if the session is
// still at generation ticket. A rejected coupon leaves any previous one in place.
func (s *Session) CommitCoupon(ticket uint64, c coupon.Coupon, now time.Time) (pricing.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != ticket {
		return decimal.Zero, ErrStaleLookup
	}
	subtotal := s.ledger.Subtotal()
	if err := coupon.Validate(c, now, subtotal, s.ledger.Categories()); err != nil {
		return decimal.Zero, err
	}
	s.applied = &c
	s.dropped = nil
	s.bump()
	return coupon.Discount(c, subtotal), nil
}

// RemoveCoupon clears the applied coupon.
func (s *Session) RemoveCoupon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied = nil
	s.dropped = nil
	s.bump()
}

// Discount recomputes the applied coupon's discount against the current subtotal.
func (s *Session) Discount() pricing.Money {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.discountLocked()
}

func (s *Session) discountLocked() pricing.Money {
	if s.applied == nil {
		return decimal.Zero
	}
	return coupon.Discount(*s.applied, s.ledger.Subtotal())
}

// Totals computes subtotal, discount, shipping and grand total from the current state.
func (s *Session) Totals(rule pricing.ShippingRule) pricing.Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pricing.Compute(s.ledger.Subtotal(), s.discountLocked(), rule)
}

// View is a consistent read of the session for rendering and order placement.
type View struct {
	ID         string         `json:"id"`
	Lines      []cart.Line    `json:"lines"`
	ItemCount  int            `json:"itemCount"`
	Coupon     *coupon.Coupon `json:"coupon,omitempty"`
	Dropped    *CouponDrop    `json:"couponDropped,omitempty"`
	Totals     pricing.Totals `json:"totals"`
	Categories []string       `json:"categories"`
	Generation uint64         `json:"generation"`
}

// View captures lines, coupon and totals under a single lock.
func (s *Session) View(rule pricing.ShippingRule) View {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := View{
		ID:         s.id,
		Lines:      s.ledger.Lines(),
		ItemCount:  s.ledger.ItemCount(),
		Totals:     pricing.Compute(s.ledger.Subtotal(), s.discountLocked(), rule),
		Categories: s.ledger.Categories(),
		Generation: s.generation,
	}
	if s.applied != nil {
		c := *s.applied
		v.Coupon = &c
	}
	if s.dropped != nil {
		d := *s.dropped
		v.Dropped = &d
	}
	return v
}

// Snapshot is the persisted form of a session.
type Snapshot struct {
	ID         string         `json:"id"`
	Lines      []cart.Line    `json:"lines"`
	Coupon     *coupon.Coupon `json:"coupon,omitempty"`
	Generation uint64         `json:"generation"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// Snapshot returns the persistable state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{ID: s.id, Lines: s.ledger.Lines(), Generation: s.generation, UpdatedAt: s.updatedAt}
	if s.applied != nil {
		c := *s.applied
		snap.Coupon = &c
	}
	return snap
}

// Restore rebuilds a session from a snapshot.
func Restore(snap Snapshot) *Session {
	s := &Session{
		id:         snap.ID,
		ledger:     cart.NewLedger(snap.Lines),
		generation: snap.Generation,
		updatedAt:  snap.UpdatedAt,
	}
	if snap.Coupon != nil {
		c := *snap.Coupon
		s.applied = &c
	}
	return s
}
