package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"gridmud-server/internal/domain/game"
)

const characterColumns = `id, character_id, user_id, name, class, race, gender, location,
left_hand, right_hand, is_online, last_active_time, created_at`

func scanCharacter(row pgx.Row) (game.Character, error) {
	var c game.Character
	err := row.Scan(&c.ID, &c.CharacterID, &c.UserID, &c.Name, &c.Class, &c.Race, &c.Gender,
		&c.Location, &c.LeftHand, &c.RightHand, &c.IsOnline, &c.LastActiveTime, &c.CreatedAt)
	return c, err
}

func (s *Store) CreateCharacter(ctx context.Context, userID uuid.UUID, name, class, race, gender, location string) (game.Character, error) {
	row := s.db.QueryRow(ctx, `
INSERT INTO characters (id, character_id, user_id, name, class, race, gender, location)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+characterColumns, uuid.New(), uuid.New(), userID, name, class, race, gender, location)
	c, err := scanCharacter(row)
	if err != nil {
		return game.Character{}, fmt.Errorf("insert character: %w", err)
	}
	return c, nil
}

// CharacterByID resolves a character by its storage key.
func (s *Store) CharacterByID(ctx context.Context, id uuid.UUID) (game.Character, error) {
	row := s.db.QueryRow(ctx, `SELECT `+characterColumns+` FROM characters WHERE id = $1`, id)
	c, err := scanCharacter(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return game.Character{}, ErrNotFound
		}
		return game.Character{}, fmt.Errorf("query character: %w", err)
	}
	return c, nil
}

// CharacterByGameID resolves a character by its stable game identity.
func (s *Store) CharacterByGameID(ctx context.Context, characterID uuid.UUID) (game.Character, error) {
	row := s.db.QueryRow(ctx, `SELECT `+characterColumns+` FROM characters WHERE character_id = $1`, characterID)
	c, err := scanCharacter(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return game.Character{}, ErrNotFound
		}
		return game.Character{}, fmt.Errorf("query character: %w", err)
	}
	return c, nil
}

func (s *Store) ListCharactersByUser(ctx context.Context, userID uuid.UUID) ([]game.Character, error) {
	rows, err := s.db.Query(ctx, `
SELECT `+characterColumns+` FROM characters WHERE user_id = $1 ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query characters: %w", err)
	}
	defer rows.Close()

	chars := make([]game.Character, 0)
	for rows.Next() {
		c, err := scanCharacter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan character: %w", err)
		}
		chars = append(chars, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate characters: %w", err)
	}
	return chars, nil
}

// CharactersAtLocation is the live-query source set: online characters in
// one room.
func (s *Store) CharactersAtLocation(ctx context.Context, location string) ([]game.Character, error) {
	rows, err := s.db.Query(ctx, `
SELECT `+characterColumns+` FROM characters
WHERE location = $1 AND is_online = true ORDER BY name ASC`, location)
	if err != nil {
		return nil, fmt.Errorf("query room characters: %w", err)
	}
	defer rows.Close()

	chars := make([]game.Character, 0)
	for rows.Next() {
		c, err := scanCharacter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room character: %w", err)
		}
		chars = append(chars, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate room characters: %w", err)
	}
	return chars, nil
}

// MoveCharacter commits a location change conditioned on the character
// still being where the caller thinks it is. Refreshes lastActiveTime.
func (s *Store) MoveCharacter(ctx context.Context, id uuid.UUID, from, to string) error {
	res, err := s.db.Exec(ctx, `
UPDATE characters SET location = $1, last_active_time = now()
WHERE id = $2 AND location = $3`, to, id, from)
	if err != nil {
		return fmt.Errorf("move character: %w", err)
	}
	if res.RowsAffected() == 0 {
		return ErrConflict
	}
	s.notifyChange(ctx, collectionCharacters, from)
	s.notifyChange(ctx, collectionCharacters, to)
	return nil
}

// SetOnline flips the presence flag and refreshes lastActiveTime when a
// character comes online.
func (s *Store) SetOnline(ctx context.Context, id uuid.UUID, online bool) error {
	var location string
	err := s.db.QueryRow(ctx, `
UPDATE characters SET is_online = $1,
    last_active_time = CASE WHEN $1 THEN now() ELSE last_active_time END
WHERE id = $2
RETURNING location`, online, id).Scan(&location)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("set online: %w", err)
	}
	s.notifyChange(ctx, collectionCharacters, location)
	return nil
}

// TouchCharacter refreshes lastActiveTime for any player activity.
func (s *Store) TouchCharacter(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.Exec(ctx, `
UPDATE characters SET last_active_time = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touch character: %w", err)
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SweepStaleCharacters demotes online characters idle past the threshold.
// Idempotent: already-offline characters never match.
func (s *Store) SweepStaleCharacters(ctx context.Context, threshold time.Duration) (int, error) {
	rows, err := s.db.Query(ctx, `
UPDATE characters SET is_online = false
WHERE is_online = true AND last_active_time <= now() - make_interval(secs => $1)
RETURNING location`, threshold.Seconds())
	if err != nil {
		return 0, fmt.Errorf("sweep characters: %w", err)
	}
	defer rows.Close()

	locations := make(map[string]struct{})
	count := 0
	for rows.Next() {
		var loc string
		if err := rows.Scan(&loc); err != nil {
			return count, fmt.Errorf("scan swept location: %w", err)
		}
		locations[loc] = struct{}{}
		count++
	}
	if err := rows.Err(); err != nil {
		return count, fmt.Errorf("iterate swept characters: %w", err)
	}
	for loc := range locations {
		s.notifyChange(ctx, collectionCharacters, loc)
	}
	return count, nil
}
