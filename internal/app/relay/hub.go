// Package relay is the ephemeral fan-out transport: sessions are grouped
// into rooms keyed by grid location and typed events are broadcast with no
// persistence, validation, or delivery guarantee.
package relay

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gridmud-server/internal/domain/game"
)

// Event is one relay frame. Message is the pre-rendered third-person line;
// CharacterID is the actor, which receivers compare against their own
// identity before rendering. EventID names the durable log record behind
// the frame so receivers can mark it processed.
type Event struct {
	Type        game.EventType `json:"type"`
	Room        string         `json:"room"`
	Message     string         `json:"message"`
	CharacterID uuid.UUID      `json:"characterId"`
	EventID     uuid.UUID      `json:"eventId"`
}

// Client is one relay connection. Send is drained by the owning session;
// a full or abandoned buffer means the event is simply lost.
type Client struct {
	Name        string
	CharacterID uuid.UUID
	Send        chan Event
}

type Hub struct {
	logger zerolog.Logger
	buffer int

	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
}

func NewHub(logger zerolog.Logger, buffer int) *Hub {
	return &Hub{
		logger: logger,
		buffer: buffer,
		rooms:  make(map[string]map[*Client]struct{}),
	}
}

// Register creates a connection for a character. One connection per
// session; re-registering is the caller's reconnect.
func (h *Hub) Register(name string, characterID uuid.UUID) *Client {
	return &Client{Name: name, CharacterID: characterID, Send: make(chan Event, h.buffer)}
}

// Unregister removes the client from every room and closes its channel.
// The close happens under the lock broadcasts send under, so a broadcast
// can never hit a just-closed channel.
func (h *Hub) Unregister(c *Client) {
	if c == nil {
		return
	}
	h.mu.Lock()
	for room, members := range h.rooms {
		if _, ok := members[c]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	close(c.Send)
	h.mu.Unlock()
}

// Join adds the client to a room. Idempotent: joining a room the client is
// already in changes nothing.
func (h *Hub) Join(room string, c *Client) {
	h.mu.Lock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug().Str("room", room).Str("character", c.Name).
		Str("character_id", c.CharacterID.String()).Msg("joined room")
}

// Leave removes the client from a room; leaving a room the client is not
// in is a no-op.
func (h *Hub) Leave(room string, c *Client) {
	h.mu.Lock()
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	h.mu.Unlock()
	h.logger.Debug().Str("room", room).Str("character", c.Name).
		Str("character_id", c.CharacterID.String()).Msg("left room")
}

// AnnounceEnter delivers to everyone in the room except the sender's own
// connection.
func (h *Hub) AnnounceEnter(room, message string, eventID uuid.UUID, sender *Client) {
	h.broadcast(Event{Type: game.EventCharacterEnter, Room: room, Message: message, CharacterID: sender.CharacterID, EventID: eventID}, sender)
}

// AnnounceLeave delivers to everyone in the room except the sender's own
// connection.
func (h *Hub) AnnounceLeave(room, message string, eventID uuid.UUID, sender *Client) {
	h.broadcast(Event{Type: game.EventCharacterLeave, Room: room, Message: message, CharacterID: sender.CharacterID, EventID: eventID}, sender)
}

// AnnounceItemPickup delivers to everyone in the room, the actor included.
// Receivers suppress their own third-person echo by comparing CharacterID.
func (h *Hub) AnnounceItemPickup(room, message string, eventID, actorID uuid.UUID) {
	h.broadcast(Event{Type: game.EventItemPickup, Room: room, Message: message, CharacterID: actorID, EventID: eventID}, nil)
}

// AnnounceItemDrop delivers to everyone in the room, the actor included.
func (h *Hub) AnnounceItemDrop(room, message string, eventID, actorID uuid.UUID) {
	h.broadcast(Event{Type: game.EventItemDrop, Room: room, Message: message, CharacterID: actorID, EventID: eventID}, nil)
}

// broadcast holds the read lock across the sends. The sends never block,
// and Unregister closes channels under the write lock, so no send can race
// a close.
func (h *Hub) broadcast(evt Event, skip *Client) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[evt.Room] {
		if c == skip {
			continue
		}
		select {
		case c.Send <- evt:
		default:
			// Unreachable peer; no retry, no queue growth.
		}
	}
}
