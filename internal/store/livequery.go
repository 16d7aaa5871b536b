package store

import (
	"context"

	"gridmud-server/internal/domain/game"
)

// Live queries deliver the full current result set immediately on
// subscribe, then again after every change notification for the watched
// location. Snapshots, never deltas: each delivery replaces the previous
// one wholesale. The channel closes when ctx is cancelled.

func (s *Store) WatchItems(ctx context.Context, location string) (<-chan []game.Item, error) {
	refresh := make(chan struct{}, 1)
	sub, err := s.bus.Subscribe(changeSubject(collectionItems, location), func([]byte) {
		select {
		case refresh <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return nil, err
	}

	out := make(chan []game.Item)
	go func() {
		defer close(out)
		defer func() { _ = sub.Unsubscribe() }()
		for {
			items, err := s.ItemsAtLocation(ctx, location)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Warn().Err(err).Str("location", location).Msg("item snapshot query failed")
			} else {
				select {
				case out <- items:
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-refresh:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// eventWatchLimit bounds how much of a room's log one delivery carries.
const eventWatchLimit = 100

func (s *Store) WatchEvents(ctx context.Context, location string) (<-chan []game.GameEvent, error) {
	refresh := make(chan struct{}, 1)
	sub, err := s.bus.Subscribe(changeSubject(collectionEvents, location), func([]byte) {
		select {
		case refresh <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return nil, err
	}

	out := make(chan []game.GameEvent)
	go func() {
		defer close(out)
		defer func() { _ = sub.Unsubscribe() }()
		for {
			events, err := s.EventsAtLocation(ctx, location, eventWatchLimit)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Warn().Err(err).Str("location", location).Msg("event snapshot query failed")
			} else {
				select {
				case out <- events:
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-refresh:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (s *Store) WatchCharacters(ctx context.Context, location string) (<-chan []game.Character, error) {
	refresh := make(chan struct{}, 1)
	sub, err := s.bus.Subscribe(changeSubject(collectionCharacters, location), func([]byte) {
		select {
		case refresh <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return nil, err
	}

	out := make(chan []game.Character)
	go func() {
		defer close(out)
		defer func() { _ = sub.Unsubscribe() }()
		for {
			chars, err := s.CharactersAtLocation(ctx, location)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Warn().Err(err).Str("location", location).Msg("character snapshot query failed")
			} else {
				select {
				case out <- chars:
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-refresh:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
