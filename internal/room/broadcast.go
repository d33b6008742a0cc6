package room

import (
	"github.com/lox/holdemd/internal/game"
	"github.com/lox/holdemd/internal/protocol"
	"github.com/lox/holdemd/poker"
)

func boardStrings(h poker.Hand) []string {
	n := h.CountCards()
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = h.GetCard(i).String()
	}
	return out
}

func holeCardStrings(h poker.Hand) []string {
	return boardStrings(h)
}

// stateFor builds the room_state view, populating hole cards for the seat
// belonging to recipient and, once the hand reaches showdown, for every
// non-folded seat (an empty recipient sees only the showdown cards).
func (r *Room) stateFor(recipient string) *protocol.RoomState {
	seats := make([]protocol.SeatView, 0, len(r.Seats))
	for _, s := range r.Seats {
		if !s.occupied() {
			continue
		}
		view := protocol.SeatView{
			Seat:     s.Index,
			PlayerID: s.PlayerID,
			Name:     s.DisplayName,
			Stack:    s.Chips,
			Status:   string(s.Status),
		}

		if r.hand != nil {
			for i, roomSeat := range r.handOrder {
				if roomSeat != s.Index {
					continue
				}
				p := r.hand.Players[i]
				view.CurrentBet = p.Bet
				view.Folded = p.Folded
				view.AllIn = p.AllInFlag
				// Hole cards are visible to their owner always, and to
				// everyone once the hand reaches showdown, provided the
				// seat didn't fold its way out of contention.
				showAtShowdown := r.hand.Street == game.Showdown && !p.Folded
				if s.PlayerID == recipient || showAtShowdown {
					view.HoleCards = holeCardStrings(p.HoleCards)
				}
				break
			}
		}

		seats = append(seats, view)
	}

	state := &protocol.RoomState{
		Type:   protocol.TypeRoomState,
		RoomID: r.ID,
		Button: r.ButtonSeat,
		Seats:  seats,
	}

	if r.hand != nil {
		state.HandID = r.handID
		state.Stage = r.hand.Street.String()
		state.Board = boardStrings(r.hand.Board)
		state.CurrentBet = r.hand.Betting.CurrentBet
		for _, pot := range r.hand.GetPots() {
			state.Pot += pot.Amount
		}

		if r.hand.ActivePlayer >= 0 {
			toActRoomSeat := r.roomSeat(r.hand.ActivePlayer)
			state.TurnPlayerID = r.Seats[toActRoomSeat].PlayerID
			state.ToCall = r.hand.Betting.CurrentBet - r.hand.Players[r.hand.ActivePlayer].Bet
			state.MinRaise = r.hand.Betting.CurrentBet + r.hand.Betting.MinRaise
			state.TimeRemaining = r.Config.TurnTimeout * 1000
			if toActRoomSeat == r.seatIndexForPlayer(recipient) {
				for _, a := range r.hand.ValidActions() {
					state.ValidActions = append(state.ValidActions, a.String())
				}
			}
		}
	}

	return state
}

func (r *Room) seatIndexForPlayer(playerID string) int {
	if playerID == "" {
		return -1
	}
	if s := r.seatFor(playerID); s != nil {
		return s.Index
	}
	return -1
}

// broadcastState sends every occupied seat its own personalized room_state
// (hole cards visible to their owner, and to everyone at showdown unless
// folded).
func (r *Room) broadcastState() {
	for _, s := range r.Seats {
		if s.occupied() {
			r.sendState(s)
		}
	}
}

func (r *Room) sendState(seat *Seat) {
	if seat.Conn == nil {
		return
	}
	msg := r.stateFor(seat.PlayerID)
	if err := seat.Conn.Send(msg); err != nil {
		r.logger.Warn().Err(err).Str("player_id", seat.PlayerID).Msg("send room_state failed")
	}
}

func (r *Room) sendActionResult(roomSeat int, action string, amount int, accepted bool, reason string) {
	msg := &protocol.ActionResult{
		Type:     protocol.TypeActionResult,
		RoomID:   r.ID,
		HandID:   r.handID,
		Seat:     roomSeat,
		Action:   action,
		Amount:   amount,
		Accepted: accepted,
		Reason:   reason,
	}
	s := r.Seats[roomSeat]
	if s.Conn != nil {
		if err := s.Conn.Send(msg); err != nil {
			r.logger.Warn().Err(err).Str("player_id", s.PlayerID).Msg("send action_result failed")
		}
	}
}

func (r *Room) broadcast(msg any) {
	for _, s := range r.Seats {
		if s.occupied() && s.Conn != nil {
			if err := s.Conn.Send(msg); err != nil {
				r.logger.Warn().Err(err).Str("player_id", s.PlayerID).Msg("broadcast failed")
			}
		}
	}
}
