// Package store is the document layer the game core consumes: conditional
// (compare-and-set) field updates, atomic multi-record batches, and live
// queries that deliver the full current result set on subscribe and after
// every change. Postgres holds the records; change notifications travel
// over the message bus so live queries know when to re-deliver.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"gridmud-server/internal/platform/mq"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a conditional write finds its
	// precondition no longer holds at commit time.
	ErrConflict = errors.New("conditional write conflict")
)

type Store struct {
	db      *pgxpool.Pool
	cache   *redis.Client
	bus     mq.Bus
	logger  zerolog.Logger
	roomTTL time.Duration
}

func New(db *pgxpool.Pool, cache *redis.Client, bus mq.Bus, logger zerolog.Logger, roomTTL time.Duration) *Store {
	if bus == nil {
		bus = mq.NewNoopBus()
	}
	return &Store{db: db, cache: cache, bus: bus, logger: logger, roomTTL: roomTTL}
}

// Ping reports whether the backing database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

const (
	collectionItems      = "items"
	collectionCharacters = "characters"
	collectionEvents     = "events"
)

func changeSubject(collection, location string) string {
	return "store." + collection + "." + location
}

// notifyChange tells live queries scoped to a location that the collection
// changed there. Best-effort: a lost notification is healed by the next
// snapshot delivery.
func (s *Store) notifyChange(ctx context.Context, collection, location string) {
	if location == "" {
		return
	}
	if err := s.bus.Publish(ctx, changeSubject(collection, location), nil); err != nil {
		s.logger.Warn().Err(err).
			Str("collection", collection).
			Str("location", location).
			Msg("change notification failed")
	}
}
