package session

import (
	"context"

	"gridmud-server/internal/domain/game"
)

// move validates and commits a location change. There is no persisted
// in-transit state: a rejected or failed move leaves the character at the
// old location. On acceptance the steps run in a fixed order — log and
// announce the leave, conditional store write, local coordinates,
// projector re-subscription, log and announce the enter, local room
// description — so peers
// never see the character missing from both rooms for longer than the
// announce itself, and the store record is current before new peers can
// query it.
func (s *Session) move(ctx context.Context, dir game.Direction) {
	dx, dy := dir.Step()
	nx, ny := s.x+dx, s.y+dy
	if nx < 0 || ny < 0 {
		// Edge of the world: rejected locally, no store or relay traffic.
		s.pushFeed("You can't go that way.")
		return
	}

	target := game.GridKey(nx, ny)
	exists, err := s.store.RoomExists(ctx, target)
	if err != nil {
		s.logger.Warn().Err(err).Str("target", target).Msg("room lookup failed")
		s.pushFeed("The world flickers; try again.")
		return
	}
	if !exists {
		s.pushFeed("You can't go that way.")
		return
	}

	from := game.GridKey(s.x, s.y)
	leave := game.CharacterLeaveDetail{CharacterID: s.char.CharacterID, CharacterName: s.char.Name}
	leaveEvt, err := s.eventLog.Append(ctx, from, leave)
	if err != nil {
		s.logger.Warn().Err(err).Msg("leave event append failed")
	}
	s.relayHub.AnnounceLeave(from, game.Narrate(leave), leaveEvt.ID, s.client)
	s.relayHub.Leave(from, s.client)

	if err := s.store.MoveCharacter(ctx, s.char.ID, from, target); err != nil {
		// The conditional write lost; the character never left. Rejoin the
		// old room so relay traffic keeps flowing.
		s.relayHub.Join(from, s.client)
		enter := game.CharacterEnterDetail{CharacterID: s.char.CharacterID, CharacterName: s.char.Name}
		enterEvt, appendErr := s.eventLog.Append(ctx, from, enter)
		if appendErr != nil {
			s.logger.Warn().Err(appendErr).Msg("enter event append failed")
		}
		s.relayHub.AnnounceEnter(from, game.Narrate(enter), enterEvt.ID, s.client)
		s.logger.Warn().Err(err).Str("from", from).Str("to", target).Msg("location write failed")
		s.pushFeed("You can't go that way right now.")
		return
	}

	s.x, s.y = nx, ny
	s.char.Location = target
	s.proj.ExitRoom()
	s.enterRoom(ctx, target)
}
