package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	pgCheckViolation  = "23514"
	stockConstraint   = "products_stock_non_negative"
	productColumns    = "id::text, name, description, price, original_price, category, images, stock_quantity, featured, created_at, updated_at"
	productSelectBase = "SELECT " + productColumns + " FROM products"
)

// Store persists products in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanProduct(row pgx.Row) (Product, error) {
	var (
		p        Product
		original decimal.NullDecimal
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &original, &p.Category, &p.Images, &p.StockQuantity, &p.Featured, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Product{}, err
	}
	if original.Valid {
		v := original.Decimal
		p.OriginalPrice = &v
	}
	if p.Images == nil {
		p.Images = []string{}
	}
	p.InStock = p.StockQuantity > 0
	return p, nil
}

// GetProduct loads a product by id.
func (s *Store) GetProduct(ctx context.Context, id string) (Product, error) {
	p, err := scanProduct(s.pool.QueryRow(ctx, productSelectBase+" WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// buildListQuery renders the WHERE clause shared by list and count.
func buildListQuery(f ListParams) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Category != "" {
		add("lower(category) = lower($%d)", f.Category)
	}
	if f.Query != "" {
		add("(name ILIKE '%%' || $%[1]d || '%%' OR description ILIKE '%%' || $%[1]d || '%%')", f.Query)
	}
	if f.Featured != nil {
		add("featured = $%d", *f.Featured)
	}
	if f.InStock != nil {
		if *f.InStock {
			where = append(where, "stock_quantity > 0")
		} else {
			where = append(where, "stock_quantity = 0")
		}
	}
	if len(where) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

func orderClause(sort string) string {
	switch sort {
	case "price_asc":
		return " ORDER BY price ASC, id"
	case "price_desc":
		return " ORDER BY price DESC, id"
	case "name":
		return " ORDER BY name ASC, id"
	default:
		return " ORDER BY created_at DESC, id"
	}
}

// ListProducts returns one page of products matching the filters and the total count.
func (s *Store) ListProducts(ctx context.Context, f ListParams) ([]Product, int64, error) {
	where, args := buildListQuery(f)

	var total int64
	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM products"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	limitArgs := append(append([]any(nil), args...), f.Limit, (f.Page-1)*f.Limit)
	sql := fmt.Sprintf("%s%s%s LIMIT $%d OFFSET $%d", productSelectBase, where, orderClause(f.Sort), len(args)+1, len(args)+2)
	rows, err := s.pool.Query(ctx, sql, limitArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	items := make([]Product, 0, f.Limit)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan product: %w", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate products: %w", err)
	}
	return items, total, nil
}

// CreateProduct inserts p and returns the stored row.
func (s *Store) CreateProduct(ctx context.Context, p Product) (Product, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	row := s.pool.QueryRow(ctx, `
INSERT INTO products (id, name, description, price, original_price, category, images, stock_quantity, featured)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING `+productColumns,
		p.ID, p.Name, p.Description, p.Price, nullableDecimal(p.OriginalPrice), p.Category, p.Images, p.StockQuantity, p.Featured)
	created, err := scanProduct(row)
	if err != nil {
		return Product{}, fmt.Errorf("create product: %w", err)
	}
	return created, nil
}

// UpdateProduct overwrites the mutable columns of p.
func (s *Store) UpdateProduct(ctx context.Context, p Product) (Product, error) {
	row := s.pool.QueryRow(ctx, `
UPDATE products
SET name = $2, description = $3, price = $4, original_price = $5, category = $6,
    images = $7, stock_quantity = $8, featured = $9, updated_at = now()
WHERE id = $1
RETURNING `+productColumns,
		p.ID, p.Name, p.Description, p.Price, nullableDecimal(p.OriginalPrice), p.Category, p.Images, p.StockQuantity, p.Featured)
	updated, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("update product: %w", err)
	}
	return updated, nil
}

// DeleteProduct removes the product.
func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM products WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Decrement lowers stock for every adjustment in a single transaction. The
// non-negative check constraint turns an oversell into ErrInsufficientStock.
func (s *Store) Decrement(ctx context.Context, adjustments []Adjustment) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, adj := range adjustments {
		tag, err := tx.Exec(ctx, `UPDATE products SET stock_quantity = stock_quantity - $2, updated_at = now() WHERE id = $1`, adj.ProductID, adj.Quantity)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgCheckViolation && pgErr.ConstraintName == stockConstraint {
				return fmt.Errorf("%w: product %s", ErrInsufficientStock, adj.ProductID)
			}
			return fmt.Errorf("decrement stock: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, adj.ProductID)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit stock: %w", err)
	}
	return nil
}

func nullableDecimal(v *decimal.Decimal) decimal.NullDecimal {
	if v == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *v, Valid: true}
}
