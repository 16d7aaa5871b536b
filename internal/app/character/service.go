// Package character manages character records outside of a live session:
// creation, the per-user roster, and the ownership check done before a
// connection may play a character.
package character

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"gridmud-server/internal/domain/game"
	"gridmud-server/internal/store"
)

var (
	ErrNotFound    = errors.New("character not found")
	ErrForbidden   = errors.New("forbidden")
	ErrInvalidName = errors.New("character name required")
)

type Store interface {
	CreateCharacter(ctx context.Context, userID uuid.UUID, name, class, race, gender, location string) (game.Character, error)
	ListCharactersByUser(ctx context.Context, userID uuid.UUID) ([]game.Character, error)
	CharacterByID(ctx context.Context, id uuid.UUID) (game.Character, error)
}

type Service struct {
	logger        zerolog.Logger
	store         Store
	cache         *redis.Client
	cacheTTL      time.Duration
	startLocation string
}

func NewService(logger zerolog.Logger, st Store, cache *redis.Client, cacheTTL time.Duration, startLocation string) *Service {
	return &Service{logger: logger, store: st, cache: cache, cacheTTL: cacheTTL, startLocation: startLocation}
}

// Create makes a new character at the world's starting room. Class, race
// and gender are cosmetic; empty values get defaults.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, name, class, race, gender string) (game.Character, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return game.Character{}, ErrInvalidName
	}
	if class == "" {
		class = "adventurer"
	}
	if race == "" {
		race = "human"
	}
	if gender == "" {
		gender = "unspecified"
	}
	c, err := s.store.CreateCharacter(ctx, userID, name, class, race, gender, s.startLocation)
	if err != nil {
		return game.Character{}, err
	}
	s.invalidateRoster(ctx, userID)
	return c, nil
}

// ListByUser returns the user's roster, cached because the character
// select screen polls it.
func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID) ([]game.Character, error) {
	key := s.rosterKey(userID)
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, key).Result()
		if err == nil {
			var chars []game.Character
			if uErr := json.Unmarshal([]byte(cached), &chars); uErr == nil {
				return chars, nil
			}
		}
	}

	chars, err := s.store.ListCharactersByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if b, err := json.Marshal(chars); err == nil {
			_ = s.cache.Set(ctx, key, b, s.cacheTTL).Err()
		}
	}
	return chars, nil
}

// GetByIDForUser resolves a character and verifies the caller owns it.
func (s *Service) GetByIDForUser(ctx context.Context, userID, characterID uuid.UUID) (game.Character, error) {
	c, err := s.store.CharacterByID(ctx, characterID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return game.Character{}, ErrNotFound
		}
		return game.Character{}, err
	}
	if c.UserID != userID {
		return game.Character{}, ErrForbidden
	}
	return c, nil
}

func (s *Service) rosterKey(userID uuid.UUID) string {
	return "characters:user:" + userID.String()
}

func (s *Service) invalidateRoster(ctx context.Context, userID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, s.rosterKey(userID)).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("roster cache invalidation failed")
	}
}
