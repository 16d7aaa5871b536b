package session

import (
	"context"
	"errors"
	"strings"

	"gridmud-server/internal/app/inventory"
	"gridmud-server/internal/domain/game"
)

// handleCommand parses and dispatches one line of player input. Every
// accepted command counts as activity for the presence sweep.
func (s *Session) handleCommand(ctx context.Context, text string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return
	}
	verb := strings.ToLower(fields[0])
	args := fields[1:]

	if err := s.store.TouchCharacter(ctx, s.char.ID); err != nil {
		s.logger.Warn().Err(err).Msg("activity touch failed")
	}

	if dir, ok := game.ParseDirection(verb); ok {
		s.move(ctx, dir)
		return
	}

	switch verb {
	case "move", "go":
		if len(args) == 0 {
			s.pushFeed("Go where?")
			return
		}
		dir, ok := game.ParseDirection(args[0])
		if !ok {
			s.pushFeed("You can only go north, south, east or west.")
			return
		}
		s.move(ctx, dir)
	case "look", "l":
		s.pushRoomEntry(ctx)
	case "get", "take":
		s.pickUp(ctx, args)
	case "drop":
		s.drop(ctx, args)
	case "hands", "inventory", "inv":
		s.showHands(ctx)
	case "who":
		s.showCharacters()
	default:
		s.pushFeed("You can't do that.")
	}
}

// pickUp handles `get <item> [left|right]`; the last argument names the
// hand when it parses as one, otherwise the left hand is used.
func (s *Session) pickUp(ctx context.Context, args []string) {
	if len(args) == 0 {
		s.pushFeed("Get what?")
		return
	}
	hand := game.HandLeft
	nameParts := args
	if len(args) > 1 {
		if h, ok := game.ParseHand(args[len(args)-1]); ok {
			hand = h
			nameParts = args[:len(args)-1]
		}
	}
	itemName := strings.Join(nameParts, " ")
	msg, err := s.inv.PickUp(ctx, s.char.ID, itemName, hand, game.GridKey(s.x, s.y))
	if err != nil {
		s.pushFeed(inventoryFeedback(err, itemName))
		return
	}
	s.refreshHands(ctx)
	s.pushFeed(msg)
}

func (s *Session) drop(ctx context.Context, args []string) {
	hand := game.HandLeft
	if len(args) > 0 {
		h, ok := game.ParseHand(args[0])
		if !ok {
			s.pushFeed("Drop from which hand? Try 'drop left' or 'drop right'.")
			return
		}
		hand = h
	}
	msg, err := s.inv.Drop(ctx, s.char.ID, hand, game.GridKey(s.x, s.y))
	if err != nil {
		s.pushFeed(inventoryFeedback(err, ""))
		return
	}
	s.refreshHands(ctx)
	s.pushFeed(msg)
}

// refreshHands reloads the character's hand slots after a transfer so the
// next command sees current state.
func (s *Session) refreshHands(ctx context.Context) {
	char, err := s.store.CharacterByID(ctx, s.char.ID)
	if err != nil {
		s.logger.Warn().Err(err).Msg("hand refresh failed")
		return
	}
	s.char.LeftHand = char.LeftHand
	s.char.RightHand = char.RightHand
}

func (s *Session) showHands(ctx context.Context) {
	describe := func(slot, label string) string {
		return label + " hand: " + slot
	}
	left, right := "empty", "empty"
	if s.char.LeftHand != nil {
		if it, err := s.store.ItemByID(ctx, *s.char.LeftHand); err == nil {
			left = it.Name
		}
	}
	if s.char.RightHand != nil {
		if it, err := s.store.ItemByID(ctx, *s.char.RightHand); err == nil {
			right = it.Name
		}
	}
	s.pushFeed(describe(left, "Left") + ". " + describe(right, "Right") + ".")
}

func (s *Session) showCharacters() {
	view := s.proj.View()
	if len(view.Characters) == 0 {
		s.pushFeed("You are alone here.")
		return
	}
	names := make([]string, 0, len(view.Characters))
	for _, c := range view.Characters {
		names = append(names, c.Name)
	}
	s.pushFeed("Also here: " + strings.Join(names, ", ") + ".")
}

// inventoryFeedback renders transfer errors as feed lines; none of them
// end the session.
func inventoryFeedback(err error, itemName string) string {
	switch {
	case errors.Is(err, inventory.ErrNoCharacter):
		return "You have no character selected."
	case errors.Is(err, inventory.ErrNotFound):
		if itemName != "" {
			return "There is no " + itemName + " here."
		}
		return "That isn't here."
	case errors.Is(err, inventory.ErrHandFull):
		return "That hand is already full."
	case errors.Is(err, inventory.ErrHandEmpty):
		return "That hand is empty."
	case errors.Is(err, inventory.ErrConflict):
		return "Too slow; it's already been taken."
	default:
		return "Something went wrong; try again."
	}
}
