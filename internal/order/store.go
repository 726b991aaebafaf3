package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const orderColumns = "id::text, user_id, status, subtotal, discount, shipping, total, coalesce(coupon_code, ''), payment_method, coalesce(payment_id, ''), shipping_address, stock_adjusted, created_at, updated_at"

// Filter narrows admin listings.
type Filter struct {
	Status Status
	Page   int
	Limit  int
}

// Store persists orders and their line snapshots in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o       Order
		address []byte
	)
	if err := row.Scan(&o.ID, &o.UserID, &o.Status, &o.Subtotal, &o.Discount, &o.Shipping, &o.Total, &o.CouponCode, &o.PaymentMethod, &o.PaymentID, &address, &o.StockAdjusted, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return Order{}, err
	}
	if len(address) > 0 {
		if err := json.Unmarshal(address, &o.ShippingAddress); err != nil {
			return Order{}, fmt.Errorf("decode address: %w", err)
		}
	}
	return o, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Create inserts the order and its items in one transaction.
func (s *Store) Create(ctx context.Context, o Order) (Order, error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Status == "" {
		o.Status = StatusPending
	}
	address, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return Order{}, fmt.Errorf("encode address: %w", err)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	row := tx.QueryRow(ctx, `
INSERT INTO orders (id, user_id, status, subtotal, discount, shipping, total, coupon_code, payment_method, payment_id, shipping_address, stock_adjusted)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, FALSE)
RETURNING `+orderColumns,
		o.ID, o.UserID, o.Status, o.Subtotal, o.Discount, o.Shipping, o.Total, nullable(o.CouponCode), o.PaymentMethod, nullable(o.PaymentID), address)
	created, err := scanOrder(row)
	if err != nil {
		return Order{}, fmt.Errorf("insert order: %w", err)
	}

	batch := &pgx.Batch{}
	for i, it := range o.Items {
		batch.Queue(`INSERT INTO order_items (order_id, position, product_id, product_name, category, quantity, unit_price) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			created.ID, i, it.ProductID, it.Name, it.Category, it.Quantity, it.UnitPrice)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return Order{}, fmt.Errorf("insert order items: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, fmt.Errorf("commit order: %w", err)
	}
	created.Items = append([]Item(nil), o.Items...)
	return created, nil
}

// Get loads an order with its items.
func (s *Store) Get(ctx context.Context, id string) (Order, error) {
	o, err := scanOrder(s.pool.QueryRow(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("get order: %w", err)
	}
	items, err := s.items(ctx, []string{o.ID})
	if err != nil {
		return Order{}, err
	}
	o.Items = items[o.ID]
	return o, nil
}

// ListByUser returns the user's orders, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	return s.query(ctx, "SELECT "+orderColumns+" FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
}

// List returns one page of orders, optionally filtered by status, with the total count.
func (s *Store) List(ctx context.Context, f Filter) ([]Order, int64, error) {
	where := ""
	args := []any{}
	if f.Status != "" {
		where = " WHERE status = $1"
		args = append(args, f.Status)
	}
	var total int64
	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM orders"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	sql := fmt.Sprintf("SELECT %s FROM orders%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d", orderColumns, where, len(args)+1, len(args)+2)
	args = append(args, f.Limit, (f.Page-1)*f.Limit)
	items, err := s.query(ctx, sql, args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListSince returns every order created at or after since, items included.
func (s *Store) ListSince(ctx context.Context, since time.Time) ([]Order, error) {
	return s.query(ctx, "SELECT "+orderColumns+" FROM orders WHERE created_at >= $1 ORDER BY created_at", since)
}

// UpdateStatus moves the order to status and returns the previous value.
// The row is locked so concurrent admins cannot race the transition check.
func (s *Store) UpdateStatus(ctx context.Context, id string, status Status) (Order, Status, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var current Status
	if err := tx.QueryRow(ctx, "SELECT status FROM orders WHERE id = $1 FOR UPDATE", id).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, "", ErrNotFound
		}
		return Order{}, "", fmt.Errorf("lock order: %w", err)
	}
	if !CanTransition(current, status) {
		return Order{}, current, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
	}
	updated, err := scanOrder(tx.QueryRow(ctx, "UPDATE orders SET status = $2, updated_at = now() WHERE id = $1 RETURNING "+orderColumns, id, status))
	if err != nil {
		return Order{}, "", fmt.Errorf("update status: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, "", fmt.Errorf("commit status: %w", err)
	}
	return updated, current, nil
}

// MarkStockAdjusted records that inventory was decremented for the order.
func (s *Store) MarkStockAdjusted(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, "UPDATE orders SET stock_adjusted = TRUE, updated_at = now() WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("mark stock adjusted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) query(ctx context.Context, sql string, args ...any) ([]Order, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	out := []Order{}
	ids := []string{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	if len(ids) == 0 {
		return out, nil
	}
	items, err := s.items(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = items[out[i].ID]
	}
	return out, nil
}

func (s *Store) items(ctx context.Context, orderIDs []string) (map[string][]Item, error) {
	rows, err := s.pool.Query(ctx, `
SELECT order_id::text, product_id::text, product_name, category, quantity, unit_price
FROM order_items WHERE order_id = ANY($1::uuid[]) ORDER BY order_id, position`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]Item, len(orderIDs))
	for rows.Next() {
		var (
			orderID string
			it      Item
		)
		if err := rows.Scan(&orderID, &it.ProductID, &it.Name, &it.Category, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		out[orderID] = append(out[orderID], it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return out, nil
}
