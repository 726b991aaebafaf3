package coupon

import (
	"context"
	"errors"
	"fmt"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/pricing"
)

// Reader resolves a normalized code to a coupon. Implementations return
// ErrNotFound when no coupon carries the code.
type Reader interface {
	FindByCode(ctx context.Context, code string) (Coupon, error)
}

// Repository is the persistence contract implemented by Store.
type Repository interface {
	Reader
	Get(ctx context.Context, id string) (Coupon, error)
	List(ctx context.Context, f ListFilter) ([]Coupon, int64, error)
	ListActive(ctx context.Context, now time.Time) ([]Coupon, error)
	Create(ctx context.Context, c Coupon) (Coupon, error)
	Update(ctx context.Context, c Coupon) (Coupon, error)
	Delete(ctx context.Context, id string) error
	IncrementUsage(ctx context.Context, code string) error
}

// ListFilter narrows admin listings.
type ListFilter struct {
	Search string
	Limit  int
	Offset int
}

// Input is the admin payload for create and update.
type Input struct {
	Code                 string         `json:"code" validate:"omitempty,alphanum,min=3,max=32"`
	Title                string         `json:"title" validate:"required,max=120"`
	Description          string         `json:"description" validate:"max=1000"`
	DiscountType         DiscountType   `json:"discountType" validate:"required,oneof=percentage fixed"`
	DiscountValue        pricing.Money  `json:"discountValue"`
	MinOrderAmount       *pricing.Money `json:"minOrderAmount"`
	MaxDiscountAmount    *pricing.Money `json:"maxDiscountAmount"`
	ValidFrom            time.Time      `json:"validFrom" validate:"required"`
	ValidUntil           time.Time      `json:"validUntil" validate:"required,gtfield=ValidFrom"`
	IsActive             *bool          `json:"isActive"`
	UsageLimit           *int           `json:"usageLimit" validate:"omitempty,gte=0"`
	ApplicableCategories []string       `json:"applicableCategories" validate:"dive,required"`
}

// Service resolves codes for checkout and manages coupons for admins.
type Service struct {
	Repo     Repository
	Validate *validator.Validate
	Log      zerolog.Logger
	Now      func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) validator() *validator.Validate {
	if s.Validate == nil {
		s.Validate = common.NewValidator()
	}
	return s.Validate
}

// Lookup resolves code case-insensitively. Unknown codes yield ErrNotFound;
// datastore failures wrap ErrLookupFailed.
func (s *Service) Lookup(ctx context.Context, code string) (Coupon, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return Coupon{}, ErrNotFound
	}
	c, err := s.Repo.FindByCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Coupon{}, ErrNotFound
		}
		return Coupon{}, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	return c, nil
}

// Get returns a coupon by id.
func (s *Service) Get(ctx context.Context, id string) (Coupon, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Coupon{}, ErrNotFound
	}
	return s.Repo.Get(ctx, id)
}

// List returns coupons matching the filter along with the total count.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Coupon, int64, error) {
	return s.Repo.List(ctx, f)
}

// ListActive returns coupons a shopper can currently use, soonest expiry first.
func (s *Service) ListActive(ctx context.Context) ([]Coupon, error) {
	return s.Repo.ListActive(ctx, s.now())
}

// Create validates in and persists a new coupon, generating a code when none is given.
func (s *Service) Create(ctx context.Context, in Input) (Coupon, error) {
	if err := s.check(in); err != nil {
		return Coupon{}, err
	}
	c := Coupon{IsActive: true}
	apply(&c, in)
	if c.Code == "" {
		code, err := GenerateCode()
		if err != nil {
			return Coupon{}, fmt.Errorf("generate code: %w", err)
		}
		c.Code = code
	}
	created, err := s.Repo.Create(ctx, c)
	if err != nil {
		return Coupon{}, err
	}
	s.Log.Info().Str("coupon_code", created.Code).Msg("coupon created")
	return created, nil
}

// Update replaces the editable fields of an existing coupon.
func (s *Service) Update(ctx context.Context, id string, in Input) (Coupon, error) {
	if err := s.check(in); err != nil {
		return Coupon{}, err
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return Coupon{}, err
	}
	apply(&current, in)
	if current.Code == "" {
		return Coupon{}, &InputError{Field: "code", Message: "code is required"}
	}
	return s.Repo.Update(ctx, current)
}

// SetActive toggles the active flag.
func (s *Service) SetActive(ctx context.Context, id string, active bool) (Coupon, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return Coupon{}, err
	}
	current.IsActive = active
	return s.Repo.Update(ctx, current)
}

// Delete removes a coupon.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	return s.Repo.Delete(ctx, id)
}

// Redeem records one use of code. Called after an order is placed, never
// while pricing a cart.
func (s *Service) Redeem(ctx context.Context, code string) error {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return nil
	}
	return s.Repo.IncrementUsage(ctx, normalized)
}

// InputError describes an invalid admin field.
type InputError struct {
	Field   string
	Message string
}

func (e *InputError) Error() string { return e.Message }

// Unwrap lets errors.Is match ErrInvalidCoupon.
func (e *InputError) Unwrap() error { return ErrInvalidCoupon }

func (s *Service) check(in Input) error {
	if err := s.validator().Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &InputError{Field: fe.Field(), Message: fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())}
		}
		return &InputError{Field: "", Message: err.Error()}
	}
	switch {
	case !in.DiscountValue.IsPositive():
		return &InputError{Field: "discountValue", Message: "discountValue must be positive"}
	case in.DiscountType == Percentage && in.DiscountValue.GreaterThan(hundred):
		return &InputError{Field: "discountValue", Message: "percentage discount cannot exceed 100"}
	case in.MinOrderAmount != nil && in.MinOrderAmount.IsNegative():
		return &InputError{Field: "minOrderAmount", Message: "minOrderAmount must not be negative"}
	case in.MaxDiscountAmount != nil && in.MaxDiscountAmount.IsNegative():
		return &InputError{Field: "maxDiscountAmount", Message: "maxDiscountAmount must not be negative"}
	}
	return nil
}

func apply(c *Coupon, in Input) {
	if code := NormalizeCode(in.Code); code != "" {
		c.Code = code
	}
	c.Title = in.Title
	c.Description = in.Description
	c.DiscountType = in.DiscountType
	c.DiscountValue = in.DiscountValue
	c.MinOrderAmount = in.MinOrderAmount
	c.MaxDiscountAmount = in.MaxDiscountAmount
	c.ValidFrom = in.ValidFrom
	c.ValidUntil = in.ValidUntil
	if in.IsActive != nil {
		c.IsActive = *in.IsActive
	}
	c.UsageLimit = in.UsageLimit
	c.ApplicableCategories = append([]string{}, in.ApplicableCategories...)
}
