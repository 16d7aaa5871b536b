package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"gridmud-server/internal/domain/game"
)

// RoomAt looks up the immutable room record for a grid key. Rooms never
// change, so hits are served from redis when a cache client is wired.
func (s *Store) RoomAt(ctx context.Context, location string) (game.Room, error) {
	key := "room:" + location
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, key).Result(); err == nil {
			var r game.Room
			if uErr := json.Unmarshal([]byte(cached), &r); uErr == nil {
				return r, nil
			}
		}
	}

	var r game.Room
	err := s.db.QueryRow(ctx, `
SELECT location, name, description FROM locations WHERE location = $1`, location).
		Scan(&r.Location, &r.Name, &r.Description)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return game.Room{}, ErrNotFound
		}
		return game.Room{}, fmt.Errorf("query room: %w", err)
	}

	if s.cache != nil {
		if b, err := json.Marshal(r); err == nil {
			_ = s.cache.Set(ctx, key, b, s.roomTTL).Err()
		}
	}
	return r, nil
}

// RoomExists reports whether a grid key names a real room.
func (s *Store) RoomExists(ctx context.Context, location string) (bool, error) {
	_, err := s.RoomAt(ctx, location)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}
