package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront/internal/order"
)

// OrderSource loads orders for reporting.
type OrderSource interface {
	Since(ctx context.Context, t time.Time) ([]order.Order, error)
}

// Service provides cached dashboard summaries.
type Service struct {
	Orders       OrderSource
	R            *redis.Client
	TTL          time.Duration
	DefaultRange int
	MaxRange     int
	Log          zerolog.Logger
	Now          func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func cacheKey(parts ...any) string {
	formatted := make([]string, 0, len(parts))
	for _, part := range parts {
		formatted = append(formatted, fmt.Sprint(part))
	}
	return strings.Join(formatted, ":")
}

func (s *Service) clampDays(days int) int {
	if days <= 0 {
		days = s.DefaultRange
	}
	if days <= 0 {
		days = 30
	}
	maxRange := s.MaxRange
	if maxRange <= 0 {
		maxRange = 365
	}
	if days > maxRange {
		days = maxRange
	}
	return days
}

// Overview returns the summary for the trailing window of days. Results are
// cached per window and hour.
func (s *Service) Overview(ctx context.Context, days int) (Overview, error) {
	if s == nil || s.Orders == nil {
		return Overview{}, fmt.Errorf("analytics service not configured")
	}
	days = s.clampDays(days)
	now := s.now().UTC()
	key := cacheKey("an", "overview", days, now.Format("2006010215"))
	if ov, ok := s.fromCache(ctx, key); ok {
		return ov, nil
	}
	orders, err := s.Orders.Since(ctx, HistoryStart(now, days))
	if err != nil {
		return Overview{}, fmt.Errorf("load orders: %w", err)
	}
	ov := Summarize(orders, now, days)
	s.store(ctx, key, ov)
	return ov, nil
}

// Customers rolls up every order by user. The result is not cached since
// search and sort vary per request.
func (s *Service) Customers(ctx context.Context, by CustomerSort, search string) ([]Customer, error) {
	if s == nil || s.Orders == nil {
		return nil, fmt.Errorf("analytics service not configured")
	}
	orders, err := s.Orders.Since(ctx, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("load orders: %w", err)
	}
	return Customers(orders, by, search), nil
}

func (s *Service) fromCache(ctx context.Context, key string) (Overview, bool) {
	if s.R == nil || s.TTL <= 0 {
		return Overview{}, false
	}
	data, err := s.R.Get(ctx, key).Bytes()
	if err != nil {
		return Overview{}, false
	}
	var ov Overview
	if err := json.Unmarshal(data, &ov); err != nil {
		return Overview{}, false
	}
	return ov, true
}

func (s *Service) store(ctx context.Context, key string, value any) {
	if s.R == nil || s.TTL <= 0 {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.R.Set(ctx, key, data, s.TTL).Err(); err != nil {
		s.Log.Warn().Err(err).Str("key", key).Msg("analytics cache write failed")
	}
}
