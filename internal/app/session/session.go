// Package session runs one connected player: a single loop that
// interleaves user commands, relay deliveries, and live-query updates, and
// owns the character's movement, text feed, and dedup state.
package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gridmud-server/internal/app/events"
	"gridmud-server/internal/app/projector"
	"gridmud-server/internal/app/relay"
	"gridmud-server/internal/domain/game"
)

type Store interface {
	CharacterByID(ctx context.Context, id uuid.UUID) (game.Character, error)
	RoomExists(ctx context.Context, location string) (bool, error)
	MoveCharacter(ctx context.Context, id uuid.UUID, from, to string) error
	SetOnline(ctx context.Context, id uuid.UUID, online bool) error
	TouchCharacter(ctx context.Context, id uuid.UUID) error
	ItemByID(ctx context.Context, id uuid.UUID) (game.Item, error)
	ItemsAtLocation(ctx context.Context, location string) ([]game.Item, error)
	EventsAtLocation(ctx context.Context, location string, limit int) ([]game.GameEvent, error)
}

type Inventory interface {
	PickUp(ctx context.Context, characterID uuid.UUID, itemName string, hand game.Hand, roomLocation string) (string, error)
	Drop(ctx context.Context, characterID uuid.UUID, hand game.Hand, roomLocation string) (string, error)
}

type Relay interface {
	Join(room string, c *relay.Client)
	Leave(room string, c *relay.Client)
	Unregister(c *relay.Client)
	AnnounceEnter(room, message string, eventID uuid.UUID, sender *relay.Client)
	AnnounceLeave(room, message string, eventID uuid.UUID, sender *relay.Client)
}

type EventLog interface {
	Append(ctx context.Context, location string, detail game.EventDetail) (game.GameEvent, error)
}

type RoomProjector interface {
	EnterRoom(ctx context.Context, location string) error
	ExitRoom()
	Updates() <-chan projector.Update
	Apply(projector.Update) bool
	View() game.RoomView
}

// OutMessage is one frame pushed to the player's connection.
type OutMessage struct {
	Type    string         `json:"type"` // feed | room
	Message string         `json:"message,omitempty"`
	Room    *game.RoomView `json:"room,omitempty"`
}

type Session struct {
	logger   zerolog.Logger
	store    Store
	inv      Inventory
	relayHub Relay
	proj     RoomProjector
	eventLog EventLog
	dedup    *events.Dedup

	char   game.Character
	x, y   int
	client *relay.Client

	cmds chan string
	out  chan OutMessage
}

func New(logger zerolog.Logger, st Store, inv Inventory, relayHub Relay, proj RoomProjector, eventLog EventLog, char game.Character, client *relay.Client) (*Session, error) {
	x, y, err := game.ParseGridKey(char.Location)
	if err != nil {
		return nil, fmt.Errorf("character location: %w", err)
	}
	return &Session{
		logger:   logger.With().Str("character", char.Name).Logger(),
		store:    st,
		inv:      inv,
		relayHub: relayHub,
		proj:     proj,
		eventLog: eventLog,
		dedup:    events.NewDedup(),
		char:     char,
		x:        x,
		y:        y,
		client:   client,
		cmds:     make(chan string, 8),
		out:      make(chan OutMessage, 64),
	}, nil
}

// HandleInput queues one line of player input for the session loop.
func (s *Session) HandleInput(ctx context.Context, text string) error {
	select {
	case s.cmds <- text:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Out is drained by the connection's write pump. It closes when Run
// returns.
func (s *Session) Out() <-chan OutMessage {
	return s.out
}

// Run drives the session until ctx is cancelled. It interleaves player
// commands, relay events, and the projector's merged live queries. All
// state mutation happens on this goroutine.
func (s *Session) Run(ctx context.Context) {
	defer close(s.out)
	defer s.teardown()

	if err := s.store.SetOnline(ctx, s.char.ID, true); err != nil {
		s.logger.Warn().Err(err).Msg("failed to mark character online")
	}
	s.enterRoom(ctx, s.char.Location)

	for {
		select {
		case <-ctx.Done():
			return
		case text := <-s.cmds:
			s.handleCommand(ctx, text)
		case evt, ok := <-s.client.Send:
			if !ok {
				return
			}
			s.handleRelayEvent(evt)
		case u := <-s.proj.Updates():
			if s.proj.Apply(u) {
				s.afterApply(u)
			}
		}
	}
}

// handleRelayEvent renders relay frames into the feed and marks the
// backing log record processed, so the event live query never narrates it
// a second time. Enter/leave frames never echo to the actor (the hub
// excludes the sender's connection); pickup/drop frames reach everyone, so
// the actor's own are suppressed here by identity comparison — the actor
// already got its first-person line.
func (s *Session) handleRelayEvent(evt relay.Event) {
	if evt.EventID != uuid.Nil {
		s.dedup.SeenEvent(evt.EventID)
	}
	switch evt.Type {
	case game.EventCharacterEnter, game.EventCharacterLeave:
		s.pushFeed(evt.Message)
	case game.EventItemPickup, game.EventItemDrop:
		if evt.CharacterID != s.char.CharacterID {
			s.pushFeed(evt.Message)
		}
	default:
		s.logger.Debug().Str("type", string(evt.Type)).Msg("ignoring unknown relay event")
	}
}

// afterApply runs after a current-generation live-query delivery. Event
// deliveries are the narration backstop: anything the lossy relay dropped
// is narrated here, gated on the processed-id set so a line never renders
// twice. Item and character deliveries refresh the pushed room view; item
// deliveries also advance the per-item watermarks so redelivered snapshots
// are recognized as already processed.
func (s *Session) afterApply(u projector.Update) {
	if evts, ok := u.Events(); ok {
		for _, evt := range evts {
			if s.dedup.SeenEvent(evt.ID) {
				continue
			}
			if game.EventActor(evt.Detail) == s.char.CharacterID {
				continue
			}
			s.pushFeed(game.Narrate(evt.Detail))
		}
		return
	}
	if items, ok := u.Items(); ok {
		for _, it := range items {
			if it.IsPickedUp {
				s.dedup.IsNewUpdate(it.ID, it.LastUpdated)
			}
		}
	}
	view := s.proj.View()
	s.push(OutMessage{Type: "room", Room: &view})
}

// enterRoom wires the projector and relay membership for a location and
// announces the arrival to whoever is already there.
func (s *Session) enterRoom(ctx context.Context, location string) {
	if err := s.proj.EnterRoom(ctx, location); err != nil {
		s.logger.Error().Err(err).Str("location", location).Msg("room projection failed")
		s.pushFeed("The world flickers; try again.")
		return
	}
	s.relayHub.Join(location, s.client)
	detail := game.CharacterEnterDetail{CharacterID: s.char.CharacterID, CharacterName: s.char.Name}
	evt, err := s.eventLog.Append(ctx, location, detail)
	if err != nil {
		s.logger.Warn().Err(err).Msg("enter event append failed")
	}
	s.relayHub.AnnounceEnter(location, game.Narrate(detail), evt.ID, s.client)
	s.markHistorySeen(ctx, location)
	s.pushRoomEntry(ctx)
}

// markHistorySeen records the room's existing log so a re-subscribe never
// narrates old events as new.
func (s *Session) markHistorySeen(ctx context.Context, location string) {
	evts, err := s.store.EventsAtLocation(ctx, location, 100)
	if err != nil {
		s.logger.Warn().Err(err).Str("location", location).Msg("event history load failed")
		return
	}
	for _, evt := range evts {
		s.dedup.SeenEvent(evt.ID)
	}
}

// pushRoomEntry composes the room description line: name, description,
// and the items visible on the floor.
func (s *Session) pushRoomEntry(ctx context.Context) {
	view := s.proj.View()
	msg := view.Name + ". " + view.Description
	items, err := s.store.ItemsAtLocation(ctx, view.Location)
	if err != nil {
		s.logger.Warn().Err(err).Msg("room item lookup failed")
	} else {
		names := make([]string, 0, len(items))
		for _, it := range items {
			if !it.IsPickedUp {
				names = append(names, it.Name)
			}
		}
		if len(names) > 0 {
			msg += " You see " + strings.Join(names, ", ") + "."
		}
	}
	s.pushFeed(msg)
}

func (s *Session) pushFeed(message string) {
	s.push(OutMessage{Type: "feed", Message: message})
}

func (s *Session) push(msg OutMessage) {
	select {
	case s.out <- msg:
	default:
		// Slow consumer; the next room snapshot supersedes what was lost.
	}
}

// teardown announces departure and flips the character offline. Runs with
// its own deadline because the session context is already cancelled.
func (s *Session) teardown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	location := game.GridKey(s.x, s.y)
	detail := game.CharacterLeaveDetail{CharacterID: s.char.CharacterID, CharacterName: s.char.Name}
	evt, err := s.eventLog.Append(ctx, location, detail)
	if err != nil {
		s.logger.Warn().Err(err).Msg("leave event append failed")
	}
	s.relayHub.AnnounceLeave(location, game.Narrate(detail), evt.ID, s.client)
	s.proj.ExitRoom()
	s.relayHub.Unregister(s.client)

	if err := s.store.SetOnline(ctx, s.char.ID, false); err != nil {
		s.logger.Warn().Err(err).Msg("failed to mark character offline")
	}
	s.logger.Info().Msg("session closed")
}
