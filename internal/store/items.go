package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"gridmud-server/internal/domain/game"
)

const itemColumns = `id, name, description, location, is_picked_up, owner, last_updated`

func scanItem(row pgx.Row) (game.Item, error) {
	var it game.Item
	err := row.Scan(&it.ID, &it.Name, &it.Description, &it.Location, &it.IsPickedUp, &it.Owner, &it.LastUpdated)
	return it, err
}

func (s *Store) ItemByID(ctx context.Context, id uuid.UUID) (game.Item, error) {
	row := s.db.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id)
	it, err := scanItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return game.Item{}, ErrNotFound
		}
		return game.Item{}, fmt.Errorf("query item: %w", err)
	}
	return it, nil
}

// ItemsAtLocation is the live-query source set: every item record scoped to
// one room, picked up or not. Consumers filter.
func (s *Store) ItemsAtLocation(ctx context.Context, location string) ([]game.Item, error) {
	rows, err := s.db.Query(ctx, `
SELECT `+itemColumns+` FROM items WHERE location = $1 ORDER BY name ASC`, location)
	if err != nil {
		return nil, fmt.Errorf("query room items: %w", err)
	}
	defer rows.Close()

	items := make([]game.Item, 0)
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate room items: %w", err)
	}
	return items, nil
}

// ItemByNameAtLocation resolves an item by display name, case-insensitive,
// scoped to one room.
func (s *Store) ItemByNameAtLocation(ctx context.Context, name, location string) (game.Item, error) {
	row := s.db.QueryRow(ctx, `
SELECT `+itemColumns+` FROM items
WHERE lower(name) = lower($1) AND location = $2
ORDER BY last_updated ASC LIMIT 1`, name, location)
	it, err := scanItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return game.Item{}, ErrNotFound
		}
		return game.Item{}, fmt.Errorf("query item by name: %w", err)
	}
	return it, nil
}

func handColumn(hand game.Hand) (string, error) {
	switch hand {
	case game.HandLeft:
		return "left_hand", nil
	case game.HandRight:
		return "right_hand", nil
	}
	return "", fmt.Errorf("unknown hand %q", hand)
}

// CommitPickup is the all-or-nothing pickup batch. Both updates are
// conditional: the item must still be on the floor and the hand still
// empty at commit time, otherwise the whole batch rolls back with
// ErrConflict. Exactly one of any set of concurrent attempts on the same
// item can commit.
func (s *Store) CommitPickup(ctx context.Context, characterID, itemID uuid.UUID, hand game.Hand, location string) error {
	col, err := handColumn(hand)
	if err != nil {
		return err
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin pickup: %w", err)
	}
	defer tx.Rollback(ctx)

	res, err := tx.Exec(ctx, `
UPDATE items SET is_picked_up = true, owner = $1, last_updated = now()
WHERE id = $2 AND is_picked_up = false`, characterID, itemID)
	if err != nil {
		return fmt.Errorf("claim item: %w", err)
	}
	if res.RowsAffected() == 0 {
		return ErrConflict
	}

	res, err = tx.Exec(ctx, `
UPDATE characters SET `+col+` = $1, last_active_time = now()
WHERE id = $2 AND `+col+` IS NULL`, itemID, characterID)
	if err != nil {
		return fmt.Errorf("fill hand: %w", err)
	}
	if res.RowsAffected() == 0 {
		return ErrConflict
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit pickup: %w", err)
	}
	s.notifyChange(ctx, collectionItems, location)
	s.notifyChange(ctx, collectionCharacters, location)
	return nil
}

// CommitDrop is the inverse batch: the hand must still hold this item and
// the item must still be held.
func (s *Store) CommitDrop(ctx context.Context, characterID, itemID uuid.UUID, hand game.Hand, location string) error {
	col, err := handColumn(hand)
	if err != nil {
		return err
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin drop: %w", err)
	}
	defer tx.Rollback(ctx)

	res, err := tx.Exec(ctx, `
UPDATE items SET is_picked_up = false, owner = NULL, location = $1, last_updated = now()
WHERE id = $2 AND is_picked_up = true AND owner = $3`, location, itemID, characterID)
	if err != nil {
		return fmt.Errorf("release item: %w", err)
	}
	if res.RowsAffected() == 0 {
		return ErrConflict
	}

	res, err = tx.Exec(ctx, `
UPDATE characters SET `+col+` = NULL, last_active_time = now()
WHERE id = $1 AND `+col+` = $2`, characterID, itemID)
	if err != nil {
		return fmt.Errorf("empty hand: %w", err)
	}
	if res.RowsAffected() == 0 {
		return ErrConflict
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit drop: %w", err)
	}
	s.notifyChange(ctx, collectionItems, location)
	s.notifyChange(ctx, collectionCharacters, location)
	return nil
}
