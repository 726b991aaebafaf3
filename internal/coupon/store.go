package coupon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	pgUniqueViolation = "23505"
	couponColumns     = `id::text, code, title, description, discount_type, discount_value, min_order_amount,
max_discount_amount, valid_from, valid_until, is_active, usage_limit, used_count, applicable_categories,
created_at, updated_at`
)

// Store persists coupons in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanCoupon(row pgx.Row) (Coupon, error) {
	var (
		c          Coupon
		kind       string
		minOrder   decimal.NullDecimal
		maxDisc    decimal.NullDecimal
		usageLimit *int32
	)
	err := row.Scan(&c.ID, &c.Code, &c.Title, &c.Description, &kind, &c.DiscountValue, &minOrder,
		&maxDisc, &c.ValidFrom, &c.ValidUntil, &c.IsActive, &usageLimit, &c.UsedCount, &c.ApplicableCategories,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Coupon{}, err
	}
	c.DiscountType = DiscountType(kind)
	if minOrder.Valid {
		v := minOrder.Decimal
		c.MinOrderAmount = &v
	}
	if maxDisc.Valid {
		v := maxDisc.Decimal
		c.MaxDiscountAmount = &v
	}
	if usageLimit != nil {
		v := int(*usageLimit)
		c.UsageLimit = &v
	}
	if c.ApplicableCategories == nil {
		c.ApplicableCategories = []string{}
	}
	return c, nil
}

func scanOne(row pgx.Row, op string) (Coupon, error) {
	c, err := scanCoupon(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Coupon{}, ErrNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return Coupon{}, ErrDuplicateCode
		}
		return Coupon{}, fmt.Errorf("%s coupon: %w", op, err)
	}
	return c, nil
}

// FindByCode resolves an upper-cased code.
func (s *Store) FindByCode(ctx context.Context, code string) (Coupon, error) {
	return scanOne(s.pool.QueryRow(ctx, "SELECT "+couponColumns+" FROM coupons WHERE code = $1", code), "find")
}

// Get loads a coupon by id.
func (s *Store) Get(ctx context.Context, id string) (Coupon, error) {
	return scanOne(s.pool.QueryRow(ctx, "SELECT "+couponColumns+" FROM coupons WHERE id = $1", id), "get")
}

// List returns coupons matching the code/title search, newest first.
func (s *Store) List(ctx context.Context, f ListFilter) ([]Coupon, int64, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM coupons WHERE $1 = '' OR code ILIKE '%' || $1 || '%' OR title ILIKE '%' || $1 || '%'`, f.Search).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count coupons: %w", err)
	}
	rows, err := s.pool.Query(ctx, `SELECT `+couponColumns+` FROM coupons
WHERE $1 = '' OR code ILIKE '%' || $1 || '%' OR title ILIKE '%' || $1 || '%'
ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`, f.Search, limit, f.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list coupons: %w", err)
	}
	items, err := collect(rows)
	return items, total, err
}

// ListActive returns active coupons whose window contains now.
func (s *Store) ListActive(ctx context.Context, now time.Time) ([]Coupon, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+couponColumns+` FROM coupons
WHERE is_active AND valid_from <= $1 AND valid_until > $1
  AND (usage_limit IS NULL OR usage_limit <= 0 OR used_count < usage_limit)
ORDER BY valid_until ASC`, now)
	if err != nil {
		return nil, fmt.Errorf("list active coupons: %w", err)
	}
	return collect(rows)
}

func collect(rows pgx.Rows) ([]Coupon, error) {
	defer rows.Close()
	out := []Coupon{}
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, fmt.Errorf("scan coupon: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate coupons: %w", err)
	}
	return out, nil
}

// Create inserts c.
func (s *Store) Create(ctx context.Context, c Coupon) (Coupon, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	row := s.pool.QueryRow(ctx, `INSERT INTO coupons
(id, code, title, description, discount_type, discount_value, min_order_amount, max_discount_amount,
 valid_from, valid_until, is_active, usage_limit, applicable_categories)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING `+couponColumns,
		c.ID, c.Code, c.Title, c.Description, string(c.DiscountType), c.DiscountValue,
		nullable(c.MinOrderAmount), nullable(c.MaxDiscountAmount), c.ValidFrom, c.ValidUntil,
		c.IsActive, c.UsageLimit, c.ApplicableCategories)
	return scanOne(row, "create")
}

// Update overwrites the editable columns of c.
func (s *Store) Update(ctx context.Context, c Coupon) (Coupon, error) {
	row := s.pool.QueryRow(ctx, `UPDATE coupons SET
code = $2, title = $3, description = $4, discount_type = $5, discount_value = $6,
min_order_amount = $7, max_discount_amount = $8, valid_from = $9, valid_until = $10,
is_active = $11, usage_limit = $12, applicable_categories = $13, updated_at = now()
WHERE id = $1
RETURNING `+couponColumns,
		c.ID, c.Code, c.Title, c.Description, string(c.DiscountType), c.DiscountValue,
		nullable(c.MinOrderAmount), nullable(c.MaxDiscountAmount), c.ValidFrom, c.ValidUntil,
		c.IsActive, c.UsageLimit, c.ApplicableCategories)
	return scanOne(row, "update")
}

// Delete removes a coupon.
func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM coupons WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete coupon: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const incrementUsageSQL = `UPDATE coupons SET used_count = used_count + 1, updated_at = now()
WHERE code = $1 AND (usage_limit IS NULL OR usage_limit = 0 OR used_count < usage_limit)`

// IncrementUsage bumps used_count for code unless the usage limit is
// already reached, in which case it returns ErrUsageLimitReached.
func (s *Store) IncrementUsage(ctx context.Context, code string) error {
	tag, err := s.pool.Exec(ctx, incrementUsageSQL, code)
	if err != nil {
		return fmt.Errorf("increment coupon usage: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := s.pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM coupons WHERE code = $1)", code).Scan(&exists); err != nil {
		return fmt.Errorf("increment coupon usage: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrUsageLimitReached
}

func nullable(v *decimal.Decimal) decimal.NullDecimal {
	if v == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *v, Valid: true}
}
