// Package events owns the per-room durable event log and the session-local
// deduplication state that keeps snapshot redeliveries from narrating the
// same action twice.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gridmud-server/internal/domain/game"
)

type Appender interface {
	AppendEvent(ctx context.Context, location string, detail game.EventDetail) (game.GameEvent, error)
}

// Log appends game events to a room's append-only history.
type Log struct {
	store  Appender
	logger zerolog.Logger
}

func NewLog(store Appender, logger zerolog.Logger) *Log {
	return &Log{store: store, logger: logger}
}

func (l *Log) Append(ctx context.Context, location string, detail game.EventDetail) (game.GameEvent, error) {
	evt, err := l.store.AppendEvent(ctx, location, detail)
	if err != nil {
		return game.GameEvent{}, fmt.Errorf("append %s event: %w", detail.EventType(), err)
	}
	l.logger.Debug().Str("type", string(evt.Type())).Str("location", location).
		Str("event_id", evt.ID.String()).Msg("game event appended")
	return evt, nil
}

// Dedup tracks what one session has already processed. It is owned by a
// single session loop and passed by handle, never shared across sessions,
// so it needs no locking. Unbounded for the session lifetime; not
// persisted.
type Dedup struct {
	seenEvents  map[uuid.UUID]struct{}
	lastUpdated map[uuid.UUID]time.Time
}

func NewDedup() *Dedup {
	return &Dedup{
		seenEvents:  make(map[uuid.UUID]struct{}),
		lastUpdated: make(map[uuid.UUID]time.Time),
	}
}

// SeenEvent marks an event id processed and reports whether it had been
// processed before.
func (d *Dedup) SeenEvent(id uuid.UUID) bool {
	if _, ok := d.seenEvents[id]; ok {
		return true
	}
	d.seenEvents[id] = struct{}{}
	return false
}

// IsNewUpdate reports whether an item mutation is strictly newer than the
// last one this session processed, advancing the watermark when it is.
// Replaying the same snapshot yields true once, then false.
func (d *Dedup) IsNewUpdate(itemID uuid.UUID, lastUpdated time.Time) bool {
	prev, ok := d.lastUpdated[itemID]
	if ok && !lastUpdated.After(prev) {
		return false
	}
	d.lastUpdated[itemID] = lastUpdated
	return true
}
