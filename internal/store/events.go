package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"gridmud-server/internal/domain/game"
)

// AppendEvent writes one record into a room's append-only log. The
// timestamp is assigned by the database at commit, giving the log a total
// order within its location.
func (s *Store) AppendEvent(ctx context.Context, location string, detail game.EventDetail) (game.GameEvent, error) {
	payload, err := json.Marshal(detail)
	if err != nil {
		return game.GameEvent{}, fmt.Errorf("encode event detail: %w", err)
	}
	evt := game.GameEvent{ID: uuid.New(), Location: location, Detail: detail}
	err = s.db.QueryRow(ctx, `
INSERT INTO location_events (id, location, event_type, detail)
VALUES ($1, $2, $3, $4)
RETURNING created_at`, evt.ID, location, string(detail.EventType()), payload).Scan(&evt.Timestamp)
	if err != nil {
		return game.GameEvent{}, fmt.Errorf("append event: %w", err)
	}
	s.notifyChange(ctx, collectionEvents, location)
	return evt, nil
}

// EventsAtLocation returns the newest records of a room's log, delivered
// oldest first.
func (s *Store) EventsAtLocation(ctx context.Context, location string, limit int) ([]game.GameEvent, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, location, event_type, detail, created_at FROM (
    SELECT id, location, event_type, detail, created_at
    FROM location_events WHERE location = $1
    ORDER BY created_at DESC LIMIT $2
) latest ORDER BY created_at ASC`, location, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := make([]game.GameEvent, 0)
	for rows.Next() {
		var (
			evt       game.GameEvent
			eventType string
			raw       []byte
		)
		if err := rows.Scan(&evt.ID, &evt.Location, &eventType, &raw, &evt.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		detail, err := game.DecodeEventDetail(game.EventType(eventType), raw)
		if err != nil {
			return nil, err
		}
		evt.Detail = detail
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
