// Package inventory moves items between room floors and hand slots as
// conditional, all-or-nothing transactions. Contention on an item is
// resolved by the store's compare-and-set batch: the first commit wins and
// every loser gets ErrConflict.
package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gridmud-server/internal/domain/game"
	"gridmud-server/internal/store"
)

var (
	ErrNoCharacter = errors.New("no character selected")
	ErrNotFound    = errors.New("not found")
	ErrHandFull    = errors.New("hand is full")
	ErrHandEmpty   = errors.New("hand is empty")
	ErrConflict    = errors.New("item already taken")
	ErrUnavailable = errors.New("store unavailable")
)

type Store interface {
	CharacterByID(ctx context.Context, id uuid.UUID) (game.Character, error)
	ItemByID(ctx context.Context, id uuid.UUID) (game.Item, error)
	ItemByNameAtLocation(ctx context.Context, name, location string) (game.Item, error)
	CommitPickup(ctx context.Context, characterID, itemID uuid.UUID, hand game.Hand, location string) error
	CommitDrop(ctx context.Context, characterID, itemID uuid.UUID, hand game.Hand, location string) error
}

type Announcer interface {
	AnnounceItemPickup(room, message string, eventID, actorID uuid.UUID)
	AnnounceItemDrop(room, message string, eventID, actorID uuid.UUID)
}

type EventLog interface {
	Append(ctx context.Context, location string, detail game.EventDetail) (game.GameEvent, error)
}

type Service struct {
	store  Store
	log    EventLog
	relay  Announcer
	logger zerolog.Logger
}

func NewService(st Store, log EventLog, relay Announcer, logger zerolog.Logger) *Service {
	return &Service{store: st, log: log, relay: relay, logger: logger}
}

// PickUp moves a floor item into a hand. The returned string is the
// actor's immediate first-person confirmation; peers learn of the pickup
// from the relay and the item live query.
func (s *Service) PickUp(ctx context.Context, characterID uuid.UUID, itemName string, hand game.Hand, roomLocation string) (string, error) {
	if characterID == uuid.Nil {
		return "", ErrNoCharacter
	}
	char, err := s.store.CharacterByID(ctx, characterID)
	if err != nil {
		return "", mapStoreErr(err)
	}
	item, err := s.store.ItemByNameAtLocation(ctx, itemName, roomLocation)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("%w: there is no %s here", ErrNotFound, itemName)
		}
		return "", mapStoreErr(err)
	}
	if char.HandSlot(hand) != nil {
		return "", ErrHandFull
	}
	if item.IsPickedUp {
		return "", ErrConflict
	}

	if err := s.store.CommitPickup(ctx, char.ID, item.ID, hand, roomLocation); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return "", ErrConflict
		}
		return "", mapStoreErr(err)
	}

	detail := game.ItemPickupDetail{
		CharacterID:   char.CharacterID,
		CharacterName: char.Name,
		ItemID:        item.ID,
		ItemName:      item.Name,
	}
	evt, err := s.log.Append(ctx, roomLocation, detail)
	if err != nil {
		s.logger.Warn().Err(err).Str("item", item.Name).Msg("pickup event append failed")
	}
	s.relay.AnnounceItemPickup(roomLocation, game.Narrate(detail), evt.ID, char.CharacterID)
	return fmt.Sprintf("You picked up the '%s'.", item.Name), nil
}

// Drop returns the item in the given hand to the room floor.
func (s *Service) Drop(ctx context.Context, characterID uuid.UUID, hand game.Hand, roomLocation string) (string, error) {
	if characterID == uuid.Nil {
		return "", ErrNoCharacter
	}
	char, err := s.store.CharacterByID(ctx, characterID)
	if err != nil {
		return "", mapStoreErr(err)
	}
	slot := char.HandSlot(hand)
	if slot == nil {
		return "", ErrHandEmpty
	}
	item, err := s.store.ItemByID(ctx, *slot)
	if err != nil {
		return "", mapStoreErr(err)
	}

	if err := s.store.CommitDrop(ctx, char.ID, item.ID, hand, roomLocation); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return "", ErrConflict
		}
		return "", mapStoreErr(err)
	}

	detail := game.ItemDropDetail{
		CharacterID:   char.CharacterID,
		CharacterName: char.Name,
		ItemID:        item.ID,
		ItemName:      item.Name,
	}
	evt, err := s.log.Append(ctx, roomLocation, detail)
	if err != nil {
		s.logger.Warn().Err(err).Str("item", item.Name).Msg("drop event append failed")
	}
	s.relay.AnnounceItemDrop(roomLocation, game.Narrate(detail), evt.ID, char.CharacterID)
	return fmt.Sprintf("You dropped the '%s'.", item.Name), nil
}

func mapStoreErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, store.ErrConflict) {
		return ErrConflict
	}
	return fmt.Errorf("%w: %s", ErrUnavailable, err)
}
