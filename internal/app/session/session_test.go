package session

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gridmud-server/internal/app/projector"
	"gridmud-server/internal/app/relay"
	"gridmud-server/internal/domain/game"
	"gridmud-server/internal/store"
)

// recorder collects calls across all fakes so ordering can be asserted.
type recorder struct {
	calls []string
}

func (r *recorder) add(call string) { r.calls = append(r.calls, call) }

type fakeStore struct {
	rec     *recorder
	rooms   map[string]bool
	chars   map[uuid.UUID]game.Character
	items   map[string][]game.Item
	history []game.GameEvent
	moveErr error
}

func (f *fakeStore) CharacterByID(_ context.Context, id uuid.UUID) (game.Character, error) {
	c, ok := f.chars[id]
	if !ok {
		return game.Character{}, store.ErrNotFound
	}
	return c, nil
}

func (f *fakeStore) RoomExists(_ context.Context, location string) (bool, error) {
	return f.rooms[location], nil
}

func (f *fakeStore) MoveCharacter(_ context.Context, _ uuid.UUID, from, to string) error {
	if f.moveErr != nil {
		return f.moveErr
	}
	f.rec.add("store:move:" + from + ">" + to)
	return nil
}

func (f *fakeStore) SetOnline(_ context.Context, _ uuid.UUID, online bool) error {
	if online {
		f.rec.add("store:online")
	} else {
		f.rec.add("store:offline")
	}
	return nil
}

func (f *fakeStore) TouchCharacter(context.Context, uuid.UUID) error { return nil }

func (f *fakeStore) ItemByID(context.Context, uuid.UUID) (game.Item, error) {
	return game.Item{}, store.ErrNotFound
}

func (f *fakeStore) ItemsAtLocation(_ context.Context, location string) ([]game.Item, error) {
	return f.items[location], nil
}

func (f *fakeStore) EventsAtLocation(context.Context, string, int) ([]game.GameEvent, error) {
	return f.history, nil
}

type fakeRelay struct {
	rec *recorder
}

func (f *fakeRelay) Join(room string, _ *relay.Client)  { f.rec.add("relay:join:" + room) }
func (f *fakeRelay) Leave(room string, _ *relay.Client) { f.rec.add("relay:leave:" + room) }
func (f *fakeRelay) Unregister(_ *relay.Client)         { f.rec.add("relay:unregister") }

func (f *fakeRelay) AnnounceEnter(room, _ string, _ uuid.UUID, _ *relay.Client) {
	f.rec.add("relay:announce-enter:" + room)
}

func (f *fakeRelay) AnnounceLeave(room, _ string, _ uuid.UUID, _ *relay.Client) {
	f.rec.add("relay:announce-leave:" + room)
}

type fakeProj struct {
	rec     *recorder
	view    game.RoomView
	updates chan projector.Update
}

func (f *fakeProj) EnterRoom(_ context.Context, location string) error {
	f.rec.add("proj:enter:" + location)
	f.view = game.RoomView{Location: location, Name: "Room " + location, Description: "A bare room."}
	return nil
}

func (f *fakeProj) ExitRoom() { f.rec.add("proj:exit") }

func (f *fakeProj) Updates() <-chan projector.Update { return f.updates }

func (f *fakeProj) Apply(projector.Update) bool { return true }

func (f *fakeProj) View() game.RoomView { return f.view }

type fakeInv struct {
	msg string
	err error
}

func (f *fakeInv) PickUp(context.Context, uuid.UUID, string, game.Hand, string) (string, error) {
	return f.msg, f.err
}

func (f *fakeInv) Drop(context.Context, uuid.UUID, game.Hand, string) (string, error) {
	return f.msg, f.err
}

type fakeEventLog struct {
	rec *recorder
}

func (f fakeEventLog) Append(_ context.Context, location string, detail game.EventDetail) (game.GameEvent, error) {
	switch detail.EventType() {
	case game.EventCharacterEnter:
		f.rec.add("log:enter:" + location)
	case game.EventCharacterLeave:
		f.rec.add("log:leave:" + location)
	}
	return game.GameEvent{ID: uuid.New(), Location: location, Detail: detail, Timestamp: time.Now()}, nil
}

func newTestSession(t *testing.T, location string, rooms map[string]bool) (*Session, *recorder, *fakeStore) {
	t.Helper()
	rec := &recorder{}
	char := game.Character{ID: uuid.New(), CharacterID: uuid.New(), Name: "Aria", Location: location}
	fs := &fakeStore{
		rec:   rec,
		rooms: rooms,
		chars: map[uuid.UUID]game.Character{char.ID: char},
		items: map[string][]game.Item{},
	}
	proj := &fakeProj{rec: rec, updates: make(chan projector.Update, 4)}
	client := &relay.Client{Name: char.Name, CharacterID: char.CharacterID, Send: make(chan relay.Event, 8)}
	s, err := New(zerolog.Nop(), fs, &fakeInv{msg: "You picked up the 'torch'."}, &fakeRelay{rec: rec}, proj, fakeEventLog{rec: rec}, char, client)
	if err != nil {
		t.Fatalf("New err: %v", err)
	}
	return s, rec, fs
}

func drainAll(s *Session) []OutMessage {
	msgs := make([]OutMessage, 0)
	for {
		select {
		case m := <-s.out:
			msgs = append(msgs, m)
		default:
			return msgs
		}
	}
}

func drainFeed(s *Session) []string {
	msgs := make([]string, 0)
	for {
		select {
		case m := <-s.out:
			if m.Type == "feed" {
				msgs = append(msgs, m.Message)
			}
		default:
			return msgs
		}
	}
}

func TestMoveBoundaryRejection(t *testing.T) {
	s, rec, _ := newTestSession(t, "X0Y0", map[string]bool{"X0Y0": true})
	ctx := context.Background()

	s.move(ctx, game.West)
	s.move(ctx, game.South)

	feed := drainFeed(s)
	if len(feed) != 2 {
		t.Fatalf("expected two rejections, got %v", feed)
	}
	for _, msg := range feed {
		if msg != "You can't go that way." {
			t.Fatalf("unexpected message %q", msg)
		}
	}
	if s.x != 0 || s.y != 0 {
		t.Fatalf("coordinates changed on rejected move: (%d,%d)", s.x, s.y)
	}
	if len(rec.calls) != 0 {
		t.Fatalf("boundary rejection must not touch store or relay: %v", rec.calls)
	}
}

func TestMoveNoSuchRoom(t *testing.T) {
	s, rec, _ := newTestSession(t, "X0Y0", map[string]bool{"X0Y0": true})
	s.move(context.Background(), game.North)

	feed := drainFeed(s)
	if len(feed) != 1 || feed[0] != "You can't go that way." {
		t.Fatalf("unexpected feed %v", feed)
	}
	if s.x != 0 || s.y != 0 {
		t.Fatal("coordinates changed without a target room")
	}
	if len(rec.calls) != 0 {
		t.Fatalf("missing room must not produce writes or announces: %v", rec.calls)
	}
}

func TestMoveOrdering(t *testing.T) {
	s, rec, _ := newTestSession(t, "X1Y0", map[string]bool{"X1Y0": true, "X2Y0": true})
	s.move(context.Background(), game.East)

	want := []string{
		"log:leave:X1Y0",
		"relay:announce-leave:X1Y0",
		"relay:leave:X1Y0",
		"store:move:X1Y0>X2Y0",
		"proj:exit",
		"proj:enter:X2Y0",
		"relay:join:X2Y0",
		"log:enter:X2Y0",
		"relay:announce-enter:X2Y0",
	}
	if !reflect.DeepEqual(rec.calls, want) {
		t.Fatalf("move order mismatch:\n got %v\nwant %v", rec.calls, want)
	}
	if s.x != 2 || s.y != 0 {
		t.Fatalf("coordinates not updated: (%d,%d)", s.x, s.y)
	}
	feed := drainFeed(s)
	if len(feed) != 1 || feed[0] != "Room X2Y0. A bare room." {
		t.Fatalf("expected room entry message, got %v", feed)
	}
}

func TestMoveConflictKeepsOldRoom(t *testing.T) {
	s, rec, fs := newTestSession(t, "X1Y0", map[string]bool{"X1Y0": true, "X2Y0": true})
	fs.moveErr = store.ErrConflict

	s.move(context.Background(), game.East)

	want := []string{
		"log:leave:X1Y0",
		"relay:announce-leave:X1Y0",
		"relay:leave:X1Y0",
		"relay:join:X1Y0",
		"log:enter:X1Y0",
		"relay:announce-enter:X1Y0",
	}
	if !reflect.DeepEqual(rec.calls, want) {
		t.Fatalf("conflict handling mismatch:\n got %v\nwant %v", rec.calls, want)
	}
	if s.x != 1 || s.y != 0 {
		t.Fatalf("coordinates changed on failed write: (%d,%d)", s.x, s.y)
	}
}

func TestRelaySelfSuppression(t *testing.T) {
	s, _, _ := newTestSession(t, "X1Y0", map[string]bool{"X1Y0": true})

	// Another character's pickup: rendered.
	s.handleRelayEvent(relay.Event{Type: game.EventItemPickup, Room: "X1Y0", Message: "Borin picked up torch.", CharacterID: uuid.New()})
	// The session's own pickup echo: suppressed.
	s.handleRelayEvent(relay.Event{Type: game.EventItemPickup, Room: "X1Y0", Message: "Aria picked up torch.", CharacterID: s.char.CharacterID})

	feed := drainFeed(s)
	if len(feed) != 1 || feed[0] != "Borin picked up torch." {
		t.Fatalf("expected exactly one third-person message, got %v", feed)
	}
}

func TestPickupCommandFirstPersonOnce(t *testing.T) {
	s, _, _ := newTestSession(t, "X1Y0", map[string]bool{"X1Y0": true})
	ctx := context.Background()

	s.handleCommand(ctx, "get torch")
	// Relay echoes the actor's own broadcast back; it must not render.
	s.handleRelayEvent(relay.Event{Type: game.EventItemPickup, Room: "X1Y0", Message: "Aria picked up torch.", CharacterID: s.char.CharacterID})

	feed := drainFeed(s)
	if len(feed) != 1 || feed[0] != "You picked up the 'torch'." {
		t.Fatalf("expected exactly one first-person line, got %v", feed)
	}
}

func TestEnterAndLeaveEventsRendered(t *testing.T) {
	s, _, _ := newTestSession(t, "X1Y0", map[string]bool{"X1Y0": true})

	s.handleRelayEvent(relay.Event{Type: game.EventCharacterEnter, Room: "X1Y0", Message: "Borin just arrived.", CharacterID: uuid.New()})
	s.handleRelayEvent(relay.Event{Type: game.EventCharacterLeave, Room: "X1Y0", Message: "Borin just left.", CharacterID: uuid.New()})

	feed := drainFeed(s)
	if len(feed) != 2 || feed[0] != "Borin just arrived." || feed[1] != "Borin just left." {
		t.Fatalf("unexpected feed %v", feed)
	}
}

func TestUnknownCommand(t *testing.T) {
	s, _, _ := newTestSession(t, "X0Y0", map[string]bool{"X0Y0": true})
	s.handleCommand(context.Background(), "dance wildly")
	feed := drainFeed(s)
	if len(feed) != 1 || feed[0] != "You can't do that." {
		t.Fatalf("unexpected feed %v", feed)
	}
}

func TestDirectionAliasesDispatchMove(t *testing.T) {
	s, rec, _ := newTestSession(t, "X1Y0", map[string]bool{"X1Y0": true, "X2Y0": true})
	s.handleCommand(context.Background(), "e")
	found := false
	for _, call := range rec.calls {
		if call == "store:move:X1Y0>X2Y0" {
			found = true
		}
	}
	if !found {
		t.Fatalf("alias 'e' did not move east: %v", rec.calls)
	}
}

func TestEventFeedHealsDroppedRelayFrame(t *testing.T) {
	s, _, _ := newTestSession(t, "X1Y0", map[string]bool{"X1Y0": true})
	evt := game.GameEvent{
		ID:        uuid.New(),
		Location:  "X1Y0",
		Detail:    game.ItemDropDetail{CharacterID: uuid.New(), CharacterName: "Borin", ItemID: uuid.New(), ItemName: "torch"},
		Timestamp: time.Now(),
	}

	// No relay frame arrived for this event; the log delivery narrates it.
	s.afterApply(projector.NewEventsUpdate([]game.GameEvent{evt}))
	feed := drainFeed(s)
	if len(feed) != 1 || feed[0] != "Borin dropped torch." {
		t.Fatalf("expected one narration, got %v", feed)
	}

	// Snapshot redelivery carries the same record; it must stay silent.
	s.afterApply(projector.NewEventsUpdate([]game.GameEvent{evt}))
	if feed := drainFeed(s); len(feed) != 0 {
		t.Fatalf("redelivered snapshot narrated again: %v", feed)
	}
}

func TestRelayFrameSuppressesLogCopy(t *testing.T) {
	s, _, _ := newTestSession(t, "X1Y0", map[string]bool{"X1Y0": true})
	eventID := uuid.New()
	actor := uuid.New()

	s.handleRelayEvent(relay.Event{Type: game.EventCharacterEnter, Room: "X1Y0", Message: "Borin just arrived.", CharacterID: actor, EventID: eventID})
	evt := game.GameEvent{
		ID:        eventID,
		Location:  "X1Y0",
		Detail:    game.CharacterEnterDetail{CharacterID: actor, CharacterName: "Borin"},
		Timestamp: time.Now(),
	}
	s.afterApply(projector.NewEventsUpdate([]game.GameEvent{evt}))

	feed := drainFeed(s)
	if len(feed) != 1 || feed[0] != "Borin just arrived." {
		t.Fatalf("expected the relay line only, got %v", feed)
	}
}

func TestOwnActionsAbsentFromEventFeed(t *testing.T) {
	s, _, _ := newTestSession(t, "X1Y0", map[string]bool{"X1Y0": true})
	evt := game.GameEvent{
		ID:        uuid.New(),
		Location:  "X1Y0",
		Detail:    game.ItemPickupDetail{CharacterID: s.char.CharacterID, CharacterName: "Aria", ItemID: uuid.New(), ItemName: "torch"},
		Timestamp: time.Now(),
	}
	s.afterApply(projector.NewEventsUpdate([]game.GameEvent{evt}))
	if feed := drainFeed(s); len(feed) != 0 {
		t.Fatalf("own action narrated in third person: %v", feed)
	}
}

func TestRoomHistorySilentOnEntry(t *testing.T) {
	s, _, fs := newTestSession(t, "X1Y0", map[string]bool{"X1Y0": true})
	old := game.GameEvent{
		ID:        uuid.New(),
		Location:  "X1Y0",
		Detail:    game.CharacterLeaveDetail{CharacterID: uuid.New(), CharacterName: "Borin"},
		Timestamp: time.Now().Add(-time.Hour),
	}
	fs.history = []game.GameEvent{old}

	s.enterRoom(context.Background(), "X1Y0")
	drainAll(s)

	// The first log delivery after entry replays the room's history.
	s.afterApply(projector.NewEventsUpdate([]game.GameEvent{old}))
	if feed := drainFeed(s); len(feed) != 0 {
		t.Fatalf("pre-entry history narrated as new: %v", feed)
	}
}

func TestCharacterSnapshotRefreshesRoomFrame(t *testing.T) {
	s, _, _ := newTestSession(t, "X1Y0", map[string]bool{"X1Y0": true})
	if err := s.proj.EnterRoom(context.Background(), "X1Y0"); err != nil {
		t.Fatalf("EnterRoom err: %v", err)
	}

	s.afterApply(projector.NewCharactersUpdate([]game.Character{{CharacterID: uuid.New(), Name: "Borin", Location: "X1Y0"}}))

	msgs := drainAll(s)
	if len(msgs) != 1 || msgs[0].Type != "room" {
		t.Fatalf("expected exactly one room frame, got %v", msgs)
	}
	if msgs[0].Room == nil || msgs[0].Room.Location != "X1Y0" {
		t.Fatalf("room frame carries wrong view: %+v", msgs[0].Room)
	}
}

func TestWatermarkAdvancesOnSnapshots(t *testing.T) {
	s, _, _ := newTestSession(t, "X1Y0", map[string]bool{"X1Y0": true})
	itemID := uuid.New()
	ts := time.Now()

	held := game.Item{ID: itemID, Name: "torch", Location: "X1Y0", IsPickedUp: true, LastUpdated: ts}
	s.afterApply(projector.NewItemsUpdate([]game.Item{held}))

	if s.dedup.IsNewUpdate(itemID, ts) {
		t.Fatal("snapshot redelivery should not count as a new update")
	}
	if !s.dedup.IsNewUpdate(itemID, ts.Add(time.Second)) {
		t.Fatal("genuinely newer update must pass the watermark")
	}
}
