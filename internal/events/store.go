package events

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore persists events in the domain_events table.
type PgStore struct {
	Pool *pgxpool.Pool
}

// Insert implements EventStore.
func (s PgStore) Insert(ctx context.Context, ev Event) (Event, error) {
	row := s.Pool.QueryRow(ctx, `INSERT INTO domain_events (topic, aggregate_id, payload, created_at)
VALUES ($1, $2, $3, $4)
RETURNING id::text, created_at`, ev.Topic, ev.AggregateID, []byte(ev.Payload), ev.OccurredAt)
	if err := row.Scan(&ev.ID, &ev.OccurredAt); err != nil {
		return Event{}, fmt.Errorf("insert domain event: %w", err)
	}
	return ev, nil
}
