package order

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/events"
)

// Repository is the persistence contract implemented by Store.
type Repository interface {
	Create(ctx context.Context, o Order) (Order, error)
	Get(ctx context.Context, id string) (Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	List(ctx context.Context, f Filter) ([]Order, int64, error)
	ListSince(ctx context.Context, since time.Time) ([]Order, error)
	UpdateStatus(ctx context.Context, id string, status Status) (Order, Status, error)
	MarkStockAdjusted(ctx context.Context, id string) error
}

// Emitter publishes domain events.
type Emitter interface {
	Emit(ctx context.Context, topic, aggregateID string, payload any) (events.Event, error)
}

// Service exposes order reads for customers and status management for admins.
type Service struct {
	repo   Repository
	events Emitter
	log    zerolog.Logger
}

// NewService constructs a Service. A nil emitter disables status events.
func NewService(repo Repository, emitter Emitter, log zerolog.Logger) *Service {
	return &Service{repo: repo, events: emitter, log: log}
}

// Mine lists the caller's orders.
func (s *Service) Mine(ctx context.Context, userID string) ([]Order, error) {
	if userID == "" {
		return nil, ErrNotFound
	}
	return s.repo.ListByUser(ctx, userID)
}

// GetForUser returns the order only when it belongs to userID. Foreign orders
// are reported as missing.
func (s *Service) GetForUser(ctx context.Context, userID, id string) (Order, error) {
	o, err := s.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if o.UserID != userID {
		return Order{}, ErrNotFound
	}
	return o, nil
}

// Get returns any order by id.
func (s *Service) Get(ctx context.Context, id string) (Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Order{}, ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

// List returns a filtered admin page.
func (s *Service) List(ctx context.Context, f Filter) ([]Order, int64, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, common.BadRequest("status", "unknown order status", nil)
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = 20
	}
	return s.repo.List(ctx, f)
}

// ParseFilter reads status/page/limit query values.
func ParseFilter(r *http.Request) Filter {
	page, perPage := common.ParsePagination(r, 20, 100)
	status := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status")))
	return Filter{Status: Status(status), Page: page, Limit: perPage}
}

// UpdateStatus applies an admin status change and emits order.status_changed.
func (s *Service) UpdateStatus(ctx context.Context, id string, to Status) (Order, error) {
	if !to.Valid() {
		return Order{}, common.BadRequest("status", "unknown order status", nil)
	}
	if _, err := uuid.Parse(id); err != nil {
		return Order{}, ErrNotFound
	}
	updated, from, err := s.repo.UpdateStatus(ctx, id, to)
	if err != nil {
		return Order{}, err
	}
	if s.events != nil {
		payload := events.OrderStatusChanged{OrderID: updated.ID, From: string(from), To: string(to)}
		if _, err := s.events.Emit(ctx, events.TopicOrderStatusChanged, updated.ID, payload); err != nil {
			s.log.Warn().Err(err).Str("order_id", updated.ID).Msg("emit status change failed")
		}
	}
	return updated, nil
}

// Create persists a new order. Used by checkout.
func (s *Service) Create(ctx context.Context, o Order) (Order, error) {
	if len(o.Items) == 0 {
		return Order{}, errors.New("order: at least one item is required")
	}
	if !o.PaymentMethod.Valid() {
		return Order{}, fmt.Errorf("order: unsupported payment method %q", o.PaymentMethod)
	}
	o.Status = StatusPending
	return s.repo.Create(ctx, o)
}

// MarkStockAdjusted flags the order once inventory has been decremented.
func (s *Service) MarkStockAdjusted(ctx context.Context, id string) error {
	return s.repo.MarkStockAdjusted(ctx, id)
}

// Since returns orders created at or after t, for reporting.
func (s *Service) Since(ctx context.Context, t time.Time) ([]Order, error) {
	return s.repo.ListSince(ctx, t)
}
