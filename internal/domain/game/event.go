package game

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventCharacterEnter EventType = "character-enter"
	EventCharacterLeave EventType = "character-leave"
	EventItemPickup     EventType = "item-picked-up"
	EventItemDrop       EventType = "item-drop"
)

// EventDetail is the payload of one game event. Each event type carries its
// own variant; there is no untyped detail bag.
type EventDetail interface {
	EventType() EventType
}

type CharacterEnterDetail struct {
	CharacterID   uuid.UUID `json:"character_id"`
	CharacterName string    `json:"character_name"`
}

func (CharacterEnterDetail) EventType() EventType { return EventCharacterEnter }

type CharacterLeaveDetail struct {
	CharacterID   uuid.UUID `json:"character_id"`
	CharacterName string    `json:"character_name"`
}

func (CharacterLeaveDetail) EventType() EventType { return EventCharacterLeave }

type ItemPickupDetail struct {
	CharacterID   uuid.UUID `json:"character_id"`
	CharacterName string    `json:"character_name"`
	ItemID        uuid.UUID `json:"item_id"`
	ItemName      string    `json:"item_name"`
}

func (ItemPickupDetail) EventType() EventType { return EventItemPickup }

type ItemDropDetail struct {
	CharacterID   uuid.UUID `json:"character_id"`
	CharacterName string    `json:"character_name"`
	ItemID        uuid.UUID `json:"item_id"`
	ItemName      string    `json:"item_name"`
}

func (ItemDropDetail) EventType() EventType { return EventItemDrop }

// GameEvent is one append-only record in a room's event log. Timestamp is
// server-assigned at commit and totally orders the log within a location.
type GameEvent struct {
	ID        uuid.UUID   `json:"id"`
	Location  string      `json:"location"`
	Detail    EventDetail `json:"detail"`
	Timestamp time.Time   `json:"timestamp"`
}

func (e GameEvent) Type() EventType {
	if e.Detail == nil {
		return ""
	}
	return e.Detail.EventType()
}

// EventActor returns the acting character's game identity.
func EventActor(d EventDetail) uuid.UUID {
	switch v := d.(type) {
	case CharacterEnterDetail:
		return v.CharacterID
	case CharacterLeaveDetail:
		return v.CharacterID
	case ItemPickupDetail:
		return v.CharacterID
	case ItemDropDetail:
		return v.CharacterID
	}
	return uuid.Nil
}

// Narrate renders the third-person feed line for an event. Every observer
// of an action renders the same line, whichever path delivered it.
func Narrate(d EventDetail) string {
	switch v := d.(type) {
	case CharacterEnterDetail:
		return v.CharacterName + " just arrived."
	case CharacterLeaveDetail:
		return v.CharacterName + " just left."
	case ItemPickupDetail:
		return fmt.Sprintf("%s picked up %s.", v.CharacterName, v.ItemName)
	case ItemDropDetail:
		return fmt.Sprintf("%s dropped %s.", v.CharacterName, v.ItemName)
	}
	return ""
}

// DecodeEventDetail unmarshals a stored detail payload into the variant for
// the given event type.
func DecodeEventDetail(t EventType, raw []byte) (EventDetail, error) {
	var (
		detail EventDetail
		err    error
	)
	switch t {
	case EventCharacterEnter:
		var d CharacterEnterDetail
		err = json.Unmarshal(raw, &d)
		detail = d
	case EventCharacterLeave:
		var d CharacterLeaveDetail
		err = json.Unmarshal(raw, &d)
		detail = d
	case EventItemPickup:
		var d ItemPickupDetail
		err = json.Unmarshal(raw, &d)
		detail = d
	case EventItemDrop:
		var d ItemDropDetail
		err = json.Unmarshal(raw, &d)
		detail = d
	default:
		return nil, fmt.Errorf("unknown event type %q", t)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s detail: %w", t, err)
	}
	return detail, nil
}
