package offer

import (
	"context"
	"errors"
	"fmt"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/coupon"
	"github.com/noah-isme/storefront/internal/pricing"
)

// Repository is the persistence contract implemented by Store.
type Repository interface {
	Get(ctx context.Context, id string) (Offer, error)
	List(ctx context.Context, f ListFilter) ([]Offer, int64, error)
	ListActive(ctx context.Context, now time.Time) ([]Offer, error)
	Create(ctx context.Context, o Offer) (Offer, error)
	Update(ctx context.Context, o Offer) (Offer, error)
	Delete(ctx context.Context, id string) error
}

// ListFilter narrows admin listings.
type ListFilter struct {
	Search string
	Limit  int
	Offset int
}

// ActiveFilter narrows the public listing to offers covering a product or
// category.
type ActiveFilter struct {
	ProductID string
	Category  string
}

// Input is the admin payload for create and update.
type Input struct {
	Title                string              `json:"title" validate:"required,max=120"`
	Description          string              `json:"description" validate:"max=1000"`
	DiscountType         coupon.DiscountType `json:"discountType" validate:"required,oneof=percentage fixed"`
	DiscountValue        pricing.Money       `json:"discountValue"`
	MinOrderAmount       *pricing.Money      `json:"minOrderAmount"`
	MaxDiscountAmount    *pricing.Money      `json:"maxDiscountAmount"`
	ValidFrom            time.Time           `json:"validFrom" validate:"required"`
	ValidUntil           time.Time           `json:"validUntil" validate:"required,gtfield=ValidFrom"`
	IsActive             *bool               `json:"isActive"`
	UsageLimit           *int                `json:"usageLimit" validate:"omitempty,gte=0"`
	ApplicableCategories []string            `json:"applicableCategories" validate:"dive,required"`
	ApplicableProducts   []string            `json:"applicableProducts" validate:"dive,required"`
}

// Service manages offers.
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

// Get returns an offer by id.
func (s *Service) Get(ctx context.Context, id string) (Offer, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Offer{}, ErrNotFound
	}
	return s.Repo.Get(ctx, id)
}

// List returns offers matching the filter along with the total count.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Offer, int64, error) {
	return s.Repo.List(ctx, f)
}

// ListActive returns live offers, soonest ending first, narrowed by f.
func (s *Service) ListActive(ctx context.Context, f ActiveFilter) ([]Offer, error) {
	now := s.now()
	items, err := s.Repo.ListActive(ctx, now)
	if err != nil {
		return nil, err
	}
	out := make([]Offer, 0, len(items))
	for _, o := range items {
		if !Live(o, now) {
			continue
		}
		if (f.ProductID != "" || f.Category != "") && !AppliesTo(o, f.ProductID, f.Category) {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

// Create validates in and persists a new offer.
func (s *Service) Create(ctx context.Context, in Input) (Offer, error) {
	if err := s.check(in); err != nil {
		return Offer{}, err
	}
	o := Offer{IsActive: true}
	apply(&o, in)
	created, err := s.Repo.Create(ctx, o)
	if err != nil {
		return Offer{}, err
	}
	s.Log.Info().Str("offer_id", created.ID).Msg("offer created")
	return created, nil
}

// Update replaces the editable fields of an existing offer. UsedCount is kept.
func (s *Service) Update(ctx context.Context, id string, in Input) (Offer, error) {
	if err := s.check(in); err != nil {
		return Offer{}, err
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return Offer{}, err
	}
	apply(&current, in)
	return s.Repo.Update(ctx, current)
}

// SetActive toggles the active flag.
func (s *Service) SetActive(ctx context.Context, id string, active bool) (Offer, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return Offer{}, err
	}
	current.IsActive = active
	return s.Repo.Update(ctx, current)
}

// Delete removes an offer.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	return s.Repo.Delete(ctx, id)
}

// InputError describes an invalid admin field.
type InputError struct {
	Field   string
	Message string
}

func (e *InputError) Error() string { return e.Message }

// Unwrap lets errors.Is match ErrInvalidOffer.
func (e *InputError) Unwrap() error { return ErrInvalidOffer }

var hundred = decimal.NewFromInt(100)

func (s *Service) check(in Input) error {
	if err := s.validator().Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &InputError{Field: fe.Field(), Message: fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())}
		}
		return &InputError{Message: err.Error()}
	}
	switch {
	case !in.DiscountValue.IsPositive():
		return &InputError{Field: "discountValue", Message: "discountValue must be positive"}
	case in.DiscountType == coupon.Percentage && in.DiscountValue.GreaterThan(hundred):
		return &InputError{Field: "discountValue", Message: "percentage discount cannot exceed 100"}
	case in.MinOrderAmount != nil && in.MinOrderAmount.IsNegative():
		return &InputError{Field: "minOrderAmount", Message: "minOrderAmount must not be negative"}
	case in.MaxDiscountAmount != nil && in.MaxDiscountAmount.IsNegative():
		return &InputError{Field: "maxDiscountAmount", Message: "maxDiscountAmount must not be negative"}
	}
	return nil
}

func apply(o *Offer, in Input) {
	o.Title = in.Title
	o.Description = in.Description
	o.DiscountType = in.DiscountType
	o.DiscountValue = in.DiscountValue
	o.MinOrderAmount = in.MinOrderAmount
	o.MaxDiscountAmount = in.MaxDiscountAmount
	o.ValidFrom = in.ValidFrom
	o.ValidUntil = in.ValidUntil
	if in.IsActive != nil {
		o.IsActive = *in.IsActive
	}
	o.UsageLimit = in.UsageLimit
	o.ApplicableCategories = append([]string{}, in.ApplicableCategories...)
	o.ApplicableProducts = append([]string{}, in.ApplicableProducts...)
}
