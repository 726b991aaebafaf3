package offer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/storefront/internal/coupon"
)

const offerColumns = `id::text, title, description, discount_type, discount_value, min_order_amount,
max_discount_amount, valid_from, valid_until, is_active, applicable_categories, applicable_products,
usage_limit, used_count, created_at, updated_at`

// Store persists offers in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanOffer(row pgx.Row) (Offer, error) {
	var (
		o          Offer
		kind       string
		minOrder   decimal.NullDecimal
		maxDisc    decimal.NullDecimal
		usageLimit *int32
	)
	err := row.Scan(&o.ID, &o.Title, &o.Description, &kind, &o.DiscountValue, &minOrder,
		&maxDisc, &o.ValidFrom, &o.ValidUntil, &o.IsActive, &o.ApplicableCategories, &o.ApplicableProducts,
		&usageLimit, &o.UsedCount, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return Offer{}, err
	}
	o.DiscountType = coupon.DiscountType(kind)
	if minOrder.Valid {
		v := minOrder.Decimal
		o.MinOrderAmount = &v
	}
	if maxDisc.Valid {
		v := maxDisc.Decimal
		o.MaxDiscountAmount = &v
	}
	if usageLimit != nil {
		v := int(*usageLimit)
		o.UsageLimit = &v
	}
	if o.ApplicableCategories == nil {
		o.ApplicableCategories = []string{}
	}
	if o.ApplicableProducts == nil {
		o.ApplicableProducts = []string{}
	}
	return o, nil
}

func scanOne(row pgx.Row, op string) (Offer, error) {
	o, err := scanOffer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Offer{}, ErrNotFound
		}
		return Offer{}, fmt.Errorf("%s offer: %w", op, err)
	}
	return o, nil
}

// Get loads an offer by id.
func (s *Store) Get(ctx context.Context, id string) (Offer, error) {
	return scanOne(s.pool.QueryRow(ctx, "SELECT "+offerColumns+" FROM offers WHERE id = $1", id), "get")
}

// List returns offers whose title matches the search, newest first.
func (s *Store) List(ctx context.Context, f ListFilter) ([]Offer, int64, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM offers WHERE $1 = '' OR title ILIKE '%' || $1 || '%'`, f.Search).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count offers: %w", err)
	}
	rows, err := s.pool.Query(ctx, `SELECT `+offerColumns+` FROM offers
WHERE $1 = '' OR title ILIKE '%' || $1 || '%'
ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`, f.Search, limit, f.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list offers: %w", err)
	}
	items, err := collect(rows)
	return items, total, err
}

// ListActive returns active offers whose window contains now.
func (s *Store) ListActive(ctx context.Context, now time.Time) ([]Offer, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+offerColumns+` FROM offers
WHERE is_active AND valid_from <= $1 AND valid_until > $1
  AND (usage_limit IS NULL OR usage_limit <= 0 OR used_count < usage_limit)
ORDER BY valid_until ASC`, now)
	if err != nil {
		return nil, fmt.Errorf("list active offers: %w", err)
	}
	return collect(rows)
}

func collect(rows pgx.Rows) ([]Offer, error) {
	defer rows.Close()
	out := []Offer{}
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate offers: %w", err)
	}
	return out, nil
}

// Create inserts o.
func (s *Store) Create(ctx context.Context, o Offer) (Offer, error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	row := s.pool.QueryRow(ctx, `INSERT INTO offers
(id, title, description, discount_type, discount_value, min_order_amount, max_discount_amount,
 valid_from, valid_until, is_active, applicable_categories, applicable_products, usage_limit)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING `+offerColumns,
		o.ID, o.Title, o.Description, string(o.DiscountType), o.DiscountValue,
		nullable(o.MinOrderAmount), nullable(o.MaxDiscountAmount), o.ValidFrom, o.ValidUntil,
		o.IsActive, o.ApplicableCategories, o.ApplicableProducts, o.UsageLimit)
	return scanOne(row, "create")
}

// Update overwrites the editable columns of o.
func (s *Store) Update(ctx context.Context, o Offer) (Offer, error) {
	row := s.pool.QueryRow(ctx, `UPDATE offers SET
title = $2, description = $3, discount_type = $4, discount_value = $5,
min_order_amount = $6, max_discount_amount = $7, valid_from = $8, valid_until = $9,
is_active = $10, applicable_categories = $11, applicable_products = $12, usage_limit = $13,
updated_at = now()
WHERE id = $1
RETURNING `+offerColumns,
		o.ID, o.Title, o.Description, string(o.DiscountType), o.DiscountValue,
		nullable(o.MinOrderAmount), nullable(o.MaxDiscountAmount), o.ValidFrom, o.ValidUntil,
		o.IsActive, o.ApplicableCategories, o.ApplicableProducts, o.UsageLimit)
	return scanOne(row, "update")
}

// Delete removes an offer.
func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM offers WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete offer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(v *decimal.Decimal) decimal.NullDecimal {
	if v == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *v, Valid: true}
}
