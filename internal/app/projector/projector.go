// Package projector maintains one client's view of its current room by
// merging the room's live queries — items, characters, and the event log —
// into a single stream. Exactly one room is active at a time; every
// subscription is tagged with the generation it was created under, and
// deliveries from an older generation are discarded so a stale query can
// never mutate the view after a room change.
package projector

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gridmud-server/internal/domain/game"
)

type Watcher interface {
	WatchItems(ctx context.Context, location string) (<-chan []game.Item, error)
	WatchCharacters(ctx context.Context, location string) (<-chan []game.Character, error)
	WatchEvents(ctx context.Context, location string) (<-chan []game.GameEvent, error)
}

type RoomFinder interface {
	RoomAt(ctx context.Context, location string) (game.Room, error)
}

type updateKind int

const (
	updateItems updateKind = iota
	updateCharacters
	updateEvents
)

// Update is one tagged live-query delivery. It carries the full working
// set for its sub-view; applying it replaces that sub-view wholesale.
// Event deliveries carry the room's log and never touch the view.
type Update struct {
	gen        uint64
	kind       updateKind
	items      []game.Item
	characters []game.Character
	events     []game.GameEvent
}

// Projector is owned by a single session loop: EnterRoom, ExitRoom, Apply
// and View are called from that loop only. The pump goroutines it starts
// touch nothing but the updates channel.
type Projector struct {
	self    uuid.UUID
	watcher Watcher
	rooms   RoomFinder
	logger  zerolog.Logger

	gen     uint64
	cancel  context.CancelFunc
	view    game.RoomView
	active  bool
	updates chan Update
}

func New(self uuid.UUID, watcher Watcher, rooms RoomFinder, logger zerolog.Logger) *Projector {
	return &Projector{
		self:    self,
		watcher: watcher,
		rooms:   rooms,
		logger:  logger,
		updates: make(chan Update, 16),
	}
}

// Updates is the merged delivery stream. The owning loop must receive from
// it and pass each Update to Apply.
func (p *Projector) Updates() <-chan Update {
	return p.updates
}

// EnterRoom makes location the active room. Subscriptions for the previous
// room are torn down before the new ones are established; anything still
// in flight from them carries an old generation and will be discarded by
// Apply.
func (p *Projector) EnterRoom(ctx context.Context, location string) error {
	p.ExitRoom()

	room, err := p.rooms.RoomAt(ctx, location)
	if err != nil {
		return fmt.Errorf("resolve room %s: %w", location, err)
	}

	p.gen++
	gen := p.gen
	genCtx, cancel := context.WithCancel(ctx)

	itemCh, err := p.watcher.WatchItems(genCtx, location)
	if err != nil {
		cancel()
		return fmt.Errorf("watch items %s: %w", location, err)
	}
	charCh, err := p.watcher.WatchCharacters(genCtx, location)
	if err != nil {
		cancel()
		return fmt.Errorf("watch characters %s: %w", location, err)
	}
	eventCh, err := p.watcher.WatchEvents(genCtx, location)
	if err != nil {
		cancel()
		return fmt.Errorf("watch events %s: %w", location, err)
	}

	p.cancel = cancel
	p.active = true
	p.view = game.RoomView{
		Location:    room.Location,
		Name:        room.Name,
		Description: room.Description,
		Items:       []game.Item{},
		Characters:  []game.Character{},
	}

	go p.pumpItems(genCtx, gen, itemCh)
	go p.pumpCharacters(genCtx, gen, charCh)
	go p.pumpEvents(genCtx, gen, eventCh)
	return nil
}

// ExitRoom cancels the subscriptions and clears the view. Calling it with
// no active room is a no-op.
func (p *Projector) ExitRoom() {
	if !p.active {
		return
	}
	p.cancel()
	p.cancel = nil
	p.active = false
	p.view = game.RoomView{}
}

func (p *Projector) pumpItems(ctx context.Context, gen uint64, ch <-chan []game.Item) {
	for items := range ch {
		select {
		case p.updates <- Update{gen: gen, kind: updateItems, items: items}:
		case <-ctx.Done():
			return
		}
	}
}

func (p *Projector) pumpCharacters(ctx context.Context, gen uint64, ch <-chan []game.Character) {
	for chars := range ch {
		select {
		case p.updates <- Update{gen: gen, kind: updateCharacters, characters: chars}:
		case <-ctx.Done():
			return
		}
	}
}

func (p *Projector) pumpEvents(ctx context.Context, gen uint64, ch <-chan []game.GameEvent) {
	for events := range ch {
		select {
		case p.updates <- Update{gen: gen, kind: updateEvents, events: events}:
		case <-ctx.Done():
			return
		}
	}
}

// Apply folds one delivery into the view. Deliveries whose generation does
// not match the active room are silently discarded; re-applying an
// identical snapshot is a no-op by construction. Reports whether the
// delivery belongs to the active room.
func (p *Projector) Apply(u Update) bool {
	if !p.active || u.gen != p.gen {
		p.logger.Debug().Uint64("delivery_gen", u.gen).Uint64("active_gen", p.gen).
			Msg("discarding stale live-query delivery")
		return false
	}
	switch u.kind {
	case updateItems:
		visible := make([]game.Item, 0, len(u.items))
		for _, it := range u.items {
			if !it.IsPickedUp {
				visible = append(visible, it)
			}
		}
		p.view.Items = visible
	case updateCharacters:
		others := make([]game.Character, 0, len(u.characters))
		for _, c := range u.characters {
			if c.CharacterID == p.self {
				continue
			}
			others = append(others, c)
		}
		p.view.Characters = others
	case updateEvents:
		// Log deliveries are narration input, not view state.
	}
	return true
}

// Items exposes the raw item set of an update for watermark bookkeeping,
// valid only for item deliveries.
func (u Update) Items() ([]game.Item, bool) {
	return u.items, u.kind == updateItems
}

// Events exposes an event-log delivery, valid only for event deliveries.
func (u Update) Events() ([]game.GameEvent, bool) {
	return u.events, u.kind == updateEvents
}

// NewItemsUpdate builds a detached item delivery. It exists for
// RoomProjector implementations other than Projector; a detached delivery
// carries no generation and is discarded by Projector.Apply.
func NewItemsUpdate(items []game.Item) Update {
	return Update{kind: updateItems, items: items}
}

// NewCharactersUpdate builds a detached character delivery.
func NewCharactersUpdate(characters []game.Character) Update {
	return Update{kind: updateCharacters, characters: characters}
}

// NewEventsUpdate builds a detached event-log delivery.
func NewEventsUpdate(events []game.GameEvent) Update {
	return Update{kind: updateEvents, events: events}
}

// View returns the current merged room view.
func (p *Projector) View() game.RoomView {
	return p.view
}

// Active reports whether a room is currently projected.
func (p *Projector) Active() bool {
	return p.active
}
