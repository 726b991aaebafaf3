package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront/internal/common"
)

// Reader resolves product snapshots for the cart.
type Reader interface {
	GetProduct(ctx context.Context, id string) (Product, error)
}

// Repository is the persistence contract implemented by Store.
type Repository interface {
	Reader
	ListProducts(ctx context.Context, f ListParams) ([]Product, int64, error)
	CreateProduct(ctx context.Context, p Product) (Product, error)
	UpdateProduct(ctx context.Context, p Product) (Product, error)
	DeleteProduct(ctx context.Context, id string) error
	Decrement(ctx context.Context, adjustments []Adjustment) error
}

// ListParams captures filters for product listing.
type ListParams struct {
	Query    string
	Category string
	Featured *bool
	InStock  *bool
	Sort     string
	Page     int
	Limit    int
}

// ListResult contains list data and pagination metadata.
type ListResult struct {
	Items []Product
	Total int64
	Page  int
	Limit int
}

// Service orchestrates catalog reads with caching and admin writes with invalidation.
type Service struct {
	repo         Repository
	cache        *Cache
	log          zerolog.Logger
	defaultLimit int
	maxLimit     int
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Repo         Repository
	Cache        *Cache
	Logger       zerolog.Logger
	DefaultLimit int
	MaxLimit     int
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Repo == nil {
		return nil, errors.New("catalog: repository is required")
	}
	defaultLimit := cfg.DefaultLimit
	if defaultLimit < 1 {
		defaultLimit = 20
	}
	maxLimit := cfg.MaxLimit
	if maxLimit < 1 {
		maxLimit = 100
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}
	return &Service{
		repo:         cfg.Repo,
		cache:        cfg.Cache,
		log:          cfg.Logger,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}, nil
}

// ParseListParams normalises raw query values into typed filters.
func (s *Service) ParseListParams(values url.Values) (ListParams, error) {
	params := ListParams{Page: 1, Limit: s.defaultLimit}
	params.Query = strings.TrimSpace(values.Get("q"))
	params.Category = strings.TrimSpace(values.Get("category"))

	if v := strings.TrimSpace(values.Get("page")); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return params, common.BadRequest("page", "page must be a positive integer", err)
		}
		params.Page = page
	}
	if v := strings.TrimSpace(values.Get("limit")); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil || l < 1 {
			return params, common.BadRequest("limit", "limit must be a positive integer", err)
		}
		params.Limit = l
	}
	if params.Limit > s.maxLimit {
		params.Limit = s.maxLimit
	}
	for name, dst := range map[string]**bool{"featured": &params.Featured, "inStock": &params.InStock} {
		if v := strings.TrimSpace(values.Get(name)); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return params, common.BadRequest(name, name+" must be true or false", err)
			}
			*dst = &b
		}
	}
	switch sort := strings.TrimSpace(values.Get("sort")); sort {
	case "", "newest", "price_asc", "price_desc", "name":
		params.Sort = sort
	default:
		return params, common.BadRequest("sort", "sort must be one of newest, price_asc, price_desc, name", nil)
	}
	return params, nil
}

// GetProduct returns a product snapshot, serving from cache when possible.
func (s *Service) GetProduct(ctx context.Context, id string) (Product, error) {
	id = strings.TrimSpace(id)
	if _, err := uuid.Parse(id); err != nil {
		return Product{}, ErrNotFound
	}
	cached, ok, err := s.cache.Product(ctx, id)
	if err != nil {
		s.log.Warn().Err(err).Str("product_id", id).Msg("catalog cache read failed")
	} else if ok {
		return cached, nil
	}
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	if err := s.cache.PutProduct(ctx, p); err != nil {
		s.log.Warn().Err(err).Str("product_id", id).Msg("catalog cache write failed")
	}
	return p, nil
}

// ListProducts returns a filtered page. The unfiltered featured landing list is cached.
func (s *Service) ListProducts(ctx context.Context, params ListParams) (ListResult, error) {
	cacheable := s.isFeaturedLanding(params)
	if cacheable {
		if cached, ok, err := s.cache.Featured(ctx); err == nil && ok {
			return cached, nil
		}
	}
	items, total, err := s.repo.ListProducts(ctx, params)
	if err != nil {
		return ListResult{}, err
	}
	result := ListResult{Items: items, Total: total, Page: params.Page, Limit: params.Limit}
	if cacheable {
		if err := s.cache.PutFeatured(ctx, result); err != nil {
			s.log.Warn().Err(err).Msg("catalog featured cache write failed")
		}
	}
	return result, nil
}

// CreateProduct validates and persists a new product.
func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (Product, error) {
	var p Product
	in.ApplyTo(&p)
	if p.Images == nil {
		p.Images = []string{}
	}
	if err := p.Validate(); err != nil {
		return Product{}, err
	}
	created, err := s.repo.CreateProduct(ctx, p)
	if err != nil {
		return Product{}, err
	}
	s.invalidate(ctx, created.ID)
	return created, nil
}

// UpdateProduct merges the input into the stored product.
func (s *Service) UpdateProduct(ctx context.Context, id string, in ProductInput) (Product, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Product{}, ErrNotFound
	}
	current, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	in.ApplyTo(&current)
	if err := current.Validate(); err != nil {
		return Product{}, err
	}
	updated, err := s.repo.UpdateProduct(ctx, current)
	if err != nil {
		return Product{}, err
	}
	s.invalidate(ctx, id)
	return updated, nil
}

// DeleteProduct removes a product.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

// Decrement lowers stock after an order and drops the affected cache entries.
func (s *Service) Decrement(ctx context.Context, adjustments []Adjustment) error {
	if len(adjustments) == 0 {
		return nil
	}
	for _, adj := range adjustments {
		if adj.Quantity <= 0 {
			return fmt.Errorf("catalog: invalid decrement %d for %s", adj.Quantity, adj.ProductID)
		}
	}
	if err := s.repo.Decrement(ctx, adjustments); err != nil {
		return err
	}
	ids := make([]string, 0, len(adjustments))
	for _, adj := range adjustments {
		ids = append(ids, adj.ProductID)
	}
	s.invalidate(ctx, ids...)
	return nil
}

func (s *Service) invalidate(ctx context.Context, ids ...string) {
	if err := s.cache.Invalidate(ctx, ids...); err != nil {
		s.log.Warn().Err(err).Strs("product_ids", ids).Msg("catalog cache invalidation failed")
	}
}

// isFeaturedLanding reports whether params describe the default first page
// of featured products, the only listing that is cached.
func (s *Service) isFeaturedLanding(params ListParams) bool {
	if params.Page != 1 || params.Limit != s.defaultLimit {
		return false
	}
	if params.Query != "" || params.Category != "" || params.InStock != nil || params.Sort != "" {
		return false
	}
	return params.Featured != nil && *params.Featured
}
