package game

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

func TestGridKeyRoundTrip(t *testing.T) {
	key := GridKey(3, 12)
	if key != "X3Y12" {
		t.Fatalf("unexpected key: %s", key)
	}
	x, y, err := ParseGridKey(key)
	if err != nil {
		t.Fatalf("ParseGridKey err: %v", err)
	}
	if x != 3 || y != 12 {
		t.Fatalf("round trip mismatch: got (%d,%d)", x, y)
	}
	if _, _, err := ParseGridKey("garbage"); err == nil {
		t.Fatal("expected error for malformed key")
	}
}

func TestDirectionSteps(t *testing.T) {
	cases := []struct {
		dir    Direction
		dx, dy int
	}{
		{North, 0, 1},
		{South, 0, -1},
		{East, 1, 0},
		{West, -1, 0},
	}
	for _, c := range cases {
		dx, dy := c.dir.Step()
		if dx != c.dx || dy != c.dy {
			t.Fatalf("%s step: got (%d,%d) want (%d,%d)", c.dir, dx, dy, c.dx, c.dy)
		}
	}
}

func TestParseDirectionAliases(t *testing.T) {
	for _, alias := range []string{"north", "N", " n "} {
		d, ok := ParseDirection(alias)
		if !ok || d != North {
			t.Fatalf("alias %q: got %v ok=%v", alias, d, ok)
		}
	}
	if _, ok := ParseDirection("up"); ok {
		t.Fatal("expected up to be rejected")
	}
}

func TestParseHand(t *testing.T) {
	if h, ok := ParseHand("Left"); !ok || h != HandLeft {
		t.Fatalf("left parse failed: %v %v", h, ok)
	}
	if h, ok := ParseHand("r"); !ok || h != HandRight {
		t.Fatalf("right parse failed: %v %v", h, ok)
	}
	if _, ok := ParseHand("tail"); ok {
		t.Fatal("expected tail to be rejected")
	}
}

func TestDecodeEventDetail(t *testing.T) {
	d := ItemPickupDetail{
		CharacterID:   uuid.New(),
		CharacterName: "Aria",
		ItemID:        uuid.New(),
		ItemName:      "torch",
	}
	raw, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	decoded, err := DecodeEventDetail(EventItemPickup, raw)
	if err != nil {
		t.Fatalf("DecodeEventDetail err: %v", err)
	}
	got, ok := decoded.(ItemPickupDetail)
	if !ok {
		t.Fatalf("unexpected variant %T", decoded)
	}
	if got != d {
		t.Fatalf("detail mismatch: got %+v want %+v", got, d)
	}
	if _, err := DecodeEventDetail("explosion", raw); err == nil {
		t.Fatal("expected unknown event type error")
	}
}
