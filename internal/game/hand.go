package game

import (
	"fmt"

	"github.com/lox/holdemd/poker"
)

// HandState is the state of one dealt hand of Texas Hold'em, from blinds to
// showdown. It is a pure, self-contained value: it owns no goroutine, reads
// no clock, and holds no reference to the room that created it. Callers
// (the Room Actor) drive it by calling ProcessAction/ForceFold and copy
// chip counts back out of Players once IsComplete reports true.
type HandState struct {
	Players      []*Player
	Button       int
	Street       Street
	Board        poker.Hand
	PotManager   *PotManager
	ActivePlayer int
	Deck         *poker.Deck
	Betting      *BettingRound
}

func (h *HandState) postBlinds(smallBlind, bigBlind int) {
	sb := h.sbSeat()
	bb := h.bbSeat()
	h.commit(h.Players[sb], min(smallBlind, h.Players[sb].Chips))
	h.commit(h.Players[bb], min(bigBlind, h.Players[bb].Chips))
	h.Betting.CurrentBet = bigBlind
	// Blinds stay in Player.Bet, uncollected, until the street closes.
}

func (h *HandState) dealHoleCards() {
	// Two rounds of one card each, starting left of the button.
	n := len(h.Players)
	for round := 0; round < 2; round++ {
		for i := 1; i <= n; i++ {
			p := h.Players[(h.Button+i)%n]
			p.HoleCards.AddCard(h.Deck.Draw())
		}
	}
}

// sbSeat returns the small blind's seat. Heads-up, the button posts it.
func (h *HandState) sbSeat() int {
	if len(h.Players) == 2 {
		return h.Button
	}
	return (h.Button + 1) % len(h.Players)
}

func (h *HandState) bbSeat() int {
	if len(h.Players) == 2 {
		return (h.Button + 1) % len(h.Players)
	}
	return (h.Button + 2) % len(h.Players)
}

// commit moves chips from p's stack into its street bet, flagging the seat
// all-in when the stack empties.
func (h *HandState) commit(p *Player, chips int) {
	p.Chips -= chips
	p.Bet += chips
	p.TotalBet += chips
	if p.Chips == 0 {
		p.AllInFlag = true
	}
}

// ValidActions returns the legal actions for whoever is on the clock.
func (h *HandState) ValidActions() []Action {
	if h.ActivePlayer < 0 || h.ActivePlayer >= len(h.Players) {
		return []Action{}
	}
	return h.Betting.ValidActions(h.Players[h.ActivePlayer])
}

// ProcessAction applies the action on the clock to the hand and advances it
// to the next seat, or the next street if the round just closed. A rejected
// action leaves the hand untouched, cursor included.
func (h *HandState) ProcessAction(action Action, amount int) error {
	if h.ActivePlayer < 0 || h.Street == Showdown {
		return fmt.Errorf("no action pending")
	}
	p := h.Players[h.ActivePlayer]
	br := h.Betting

	switch action {
	case Fold:
		p.Folded = true
		if br.aggressor == h.ActivePlayer {
			br.aggressor = -1
		}

	case Check:
		if br.CurrentBet != p.Bet {
			return fmt.Errorf("cannot check, %d to call", br.CurrentBet-p.Bet)
		}

	case Call:
		if br.CurrentBet <= p.Bet {
			return fmt.Errorf("nothing to call")
		}
		h.commit(p, min(br.CurrentBet-p.Bet, p.Chips))

	case Raise:
		if err := h.applyRaise(p, amount); err != nil {
			return err
		}

	case AllIn:
		if target := p.Bet + p.Chips; target > br.CurrentBet {
			if err := h.applyRaise(p, target); err != nil {
				return err
			}
		} else {
			// Covering less than the bet: an all-in call.
			h.commit(p, p.Chips)
		}

	default:
		return fmt.Errorf("unknown action %d", action)
	}

	br.MarkActed(h.ActivePlayer)
	if h.Street == Preflop && h.ActivePlayer == h.bbSeat() {
		br.bbOptionUsed = true
	}

	h.advance()
	return nil
}

// applyRaise validates and applies a raise (or all-in treated as one) to
// the given total street bet.
func (h *HandState) applyRaise(p *Player, to int) error {
	br := h.Betting
	if to > p.Bet+p.Chips {
		return fmt.Errorf("insufficient chips")
	}
	if to <= br.CurrentBet {
		return fmt.Errorf("raise must exceed current bet of %d", br.CurrentBet)
	}
	if !br.CanRaise(p.Seat) {
		return fmt.Errorf("raising is closed, call or fold")
	}
	allIn := to == p.Bet+p.Chips
	if to < br.CurrentBet+br.MinRaise && !allIn {
		return fmt.Errorf("raise too small, minimum %d", br.CurrentBet+br.MinRaise)
	}
	h.commit(p, to-p.Bet)
	br.RecordRaise(p.Seat, to)
	return nil
}

// ForceFold folds the given seat out of turn. Used by the Room Actor when a
// turn timer expires with no legal check available.
func (h *HandState) ForceFold(seat int) {
	if seat < 0 || seat >= len(h.Players) {
		return
	}
	p := h.Players[seat]
	if p.Folded {
		return
	}

	p.Folded = true
	h.Betting.MarkActed(seat)
	if h.Street == Preflop && seat == h.bbSeat() {
		h.Betting.bbOptionUsed = true
	}
	if h.Betting.aggressor == seat {
		h.Betting.aggressor = -1
	}

	if seat == h.ActivePlayer {
		h.advance()
	}
}

// ForceCheck checks on behalf of the seat on the clock. Used by the Room
// Actor's turn timer when checking is legal.
func (h *HandState) ForceCheck(seat int) error {
	if seat != h.ActivePlayer {
		return fmt.Errorf("seat %d is not on the clock", seat)
	}
	return h.ProcessAction(Check, 0)
}

// advance moves the clock to the next seat able to act, closing the street
// (or the whole hand, when a fold leaves one player) as needed.
func (h *HandState) advance() {
	if h.playersInHand() <= 1 {
		h.collectStreet()
		h.ActivePlayer = -1
		return
	}

	h.ActivePlayer = h.nextActivePlayer(h.ActivePlayer + 1)
	if h.ActivePlayer == -1 || h.Betting.Complete(h.Players, h.Street, h.bbSeat()) {
		h.nextStreet()
	}
}

func (h *HandState) playersInHand() int {
	n := 0
	for _, p := range h.Players {
		if !p.Folded {
			n++
		}
	}
	return n
}

func (h *HandState) nextActivePlayer(from int) int {
	n := len(h.Players)
	for i := 0; i < n; i++ {
		seat := (from + i) % n
		if !h.Players[seat].Folded && !h.Players[seat].AllInFlag {
			return seat
		}
	}
	return -1
}

// collectStreet sweeps the street's bets into the pot layers.
func (h *HandState) collectStreet() {
	h.PotManager.CollectBets(h.Players)
	h.PotManager.CalculateSidePots(h.Players)
}

// nextStreet closes the current betting round, burns a card, and deals the
// next street's community cards. When no seat can act (everyone all-in or
// covered) it runs the board out street by street to showdown.
func (h *HandState) nextStreet() {
	h.collectStreet()
	h.Betting.NextStreet()

	switch h.Street {
	case Preflop:
		h.Street = Flop
		h.Deck.Draw() // burn
		for _, c := range h.Deck.DrawN(3) {
			h.Board.AddCard(c)
		}
	case Flop:
		h.Street = Turn
		h.Deck.Draw() // burn
		h.Board.AddCard(h.Deck.Draw())
	case Turn:
		h.Street = River
		h.Deck.Draw() // burn
		h.Board.AddCard(h.Deck.Draw())
	case River:
		h.Street = Showdown
		h.ActivePlayer = -1
		return
	case Showdown:
		return
	}

	h.ActivePlayer = h.nextActivePlayer((h.Button + 1) % len(h.Players))
	if h.ActivePlayer == -1 {
		// Nobody left with chips to bet: run the remaining streets out.
		h.nextStreet()
	}
}

// GetPots returns the current pot layers, including bets not yet collected.
func (h *HandState) GetPots() []Pot {
	return h.PotManager.GetPotsWithUncollected(h.Players)
}

// IsComplete reports whether the hand has reached showdown or folded down
// to one player.
func (h *HandState) IsComplete() bool {
	return h.Street == Showdown || h.playersInHand() <= 1
}

// GetWinners returns, for each pot index, the seats that won it. Ties list
// more than one seat; ResolveShowdown splits the chips across them.
func (h *HandState) GetWinners() map[int][]int {
	winners := make(map[int][]int)

	for potIdx, pot := range h.GetPots() {
		var best []int
		var bestRank poker.HandRank

		for _, seat := range pot.Eligible {
			p := h.Players[seat]
			if p.Folded {
				continue
			}
			rank := poker.Evaluate7Cards(p.HoleCards | h.Board)
			switch {
			case len(best) == 0 || rank > bestRank:
				best, bestRank = []int{seat}, rank
			case rank == bestRank:
				best = append(best, seat)
			}
		}

		winners[potIdx] = best
	}

	return winners
}

// Settle resolves every pot's winners and applies the resulting awards to
// Players' chip stacks, returning the awards for reporting to clients. Any
// bets still uncollected (a hand that folded out mid-street) are swept into
// the pots first.
func (h *HandState) Settle() []Award {
	h.collectStreet()
	awards := ResolveShowdown(h.GetPots(), h.GetWinners(), h.Button, len(h.Players))
	for _, a := range awards {
		h.Players[a.Seat].Chips += a.Amount
	}
	return awards
}
