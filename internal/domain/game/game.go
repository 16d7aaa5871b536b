package game

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Character is one playable identity. ID is the storage key referenced by
// item owners and hand slots; CharacterID is the stable game identity used
// on the relay and in event payloads.
type Character struct {
	ID             uuid.UUID  `json:"id"`
	CharacterID    uuid.UUID  `json:"character_id"`
	UserID         uuid.UUID  `json:"user_id"`
	Name           string     `json:"name"`
	Class          string     `json:"class"`
	Race           string     `json:"race"`
	Gender         string     `json:"gender"`
	Location       string     `json:"location"`
	LeftHand       *uuid.UUID `json:"left_hand,omitempty"`
	RightHand      *uuid.UUID `json:"right_hand,omitempty"`
	IsOnline       bool       `json:"is_online"`
	LastActiveTime time.Time  `json:"last_active_time"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Item sits on a room floor or in a hand. Location is meaningful only while
// the item is not held; LastUpdated is set by every mutating write.
type Item struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Location    string     `json:"location"`
	IsPickedUp  bool       `json:"is_picked_up"`
	Owner       *uuid.UUID `json:"owner,omitempty"`
	LastUpdated time.Time  `json:"last_updated"`
}

// Room is immutable reference data keyed by grid location.
type Room struct {
	Location    string `json:"location"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// RoomView is the merged, client-local projection of one room: the floor
// items and the other online characters sharing the viewer's location.
type RoomView struct {
	Location    string      `json:"location"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Items       []Item      `json:"items"`
	Characters  []Character `json:"characters"`
}

// HandSlot returns the item held in the given hand, nil when empty.
func (c Character) HandSlot(h Hand) *uuid.UUID {
	if h == HandRight {
		return c.RightHand
	}
	return c.LeftHand
}

type Hand string

const (
	HandLeft  Hand = "leftHand"
	HandRight Hand = "rightHand"
)

func ParseHand(s string) (Hand, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "left", "lefthand", "l":
		return HandLeft, true
	case "right", "righthand", "r":
		return HandRight, true
	}
	return "", false
}

type Direction string

const (
	North Direction = "North"
	South Direction = "South"
	East  Direction = "East"
	West  Direction = "West"
)

func ParseDirection(s string) (Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "north", "n":
		return North, true
	case "south", "s":
		return South, true
	case "east", "e":
		return East, true
	case "west", "w":
		return West, true
	}
	return "", false
}

// Step returns the grid delta for one move in this direction.
func (d Direction) Step() (dx, dy int) {
	switch d {
	case North:
		return 0, 1
	case South:
		return 0, -1
	case East:
		return 1, 0
	case West:
		return -1, 0
	}
	return 0, 0
}

// GridKey formats grid coordinates as a location key, e.g. X1Y0.
func GridKey(x, y int) string {
	return fmt.Sprintf("X%dY%d", x, y)
}

// ParseGridKey splits a location key back into coordinates.
func ParseGridKey(key string) (x, y int, err error) {
	if _, err := fmt.Sscanf(key, "X%dY%d", &x, &y); err != nil {
		return 0, 0, fmt.Errorf("parse grid key %q: %w", key, err)
	}
	return x, y, nil
}
