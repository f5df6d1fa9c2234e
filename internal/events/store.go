package events

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore persists domain events to PostgreSQL.
type PGStore struct {
	Pool *pgxpool.Pool
}

// InsertDomainEvent appends one event row and returns it.
func (s PGStore) InsertDomainEvent(ctx context.Context, topic string, aggregateID pgtype.UUID, payload []byte) (Event, error) {
	if s.Pool == nil {
		return Event{}, errors.New("events: pool not configured")
	}
	var ev Event
	var occurredAt pgtype.Timestamptz
	err := s.Pool.QueryRow(ctx, `
		INSERT INTO domain_events (topic, aggregate_id, payload)
		VALUES ($1, $2, $3)
		RETURNING id, topic, aggregate_id, payload, occurred_at`,
		topic, aggregateID, payload).
		Scan(&ev.ID, &ev.Topic, &ev.AggregateID, &ev.Payload, &occurredAt)
	if err != nil {
		return Event{}, err
	}
	if occurredAt.Valid {
		ev.OccurredAt = occurredAt.Time
	}
	return ev, nil
}
