package game

import (
	"testing"

	"github.com/lox/holdemd/internal/randutil"
	"github.com/lox/holdemd/poker"
)

func mustCards(t *testing.T, names ...string) []poker.Card {
	t.Helper()
	out := make([]poker.Card, len(names))
	for i, n := range names {
		c, err := poker.ParseCard(n)
		if err != nil {
			t.Fatalf("ParseCard(%q): %v", n, err)
		}
		out[i] = c
	}
	return out
}

// requireConserved checks the hand's money still sums to the starting
// stacks: chips behind plus chips committed this hand.
func requireConserved(t *testing.T, h *HandState, want int) {
	t.Helper()
	total := 0
	for _, p := range h.Players {
		total += p.Chips + p.TotalBet
	}
	if total != want {
		t.Fatalf("chips not conserved: have %d, want %d", total, want)
	}
}

func act(t *testing.T, h *HandState, action Action, amount int) {
	t.Helper()
	if err := h.ProcessAction(action, amount); err != nil {
		t.Fatalf("ProcessAction(%s, %d): %v", action, amount, err)
	}
}

func finalChips(h *HandState) []int {
	out := make([]int, len(h.Players))
	for i, p := range h.Players {
		out[i] = p.Chips
	}
	return out
}

func TestFoldAroundBlindsGoToCaller(t *testing.T) {
	t.Parallel()

	// Button on C: A posts the small blind, B the big blind, C opens.
	h := NewHandState(randutil.New(7), []string{"A", "B", "C"}, 2, 1, 2, WithUniformChips(100))

	if h.ActivePlayer != 2 {
		t.Fatalf("first to act = %d, want 2 (under the gun)", h.ActivePlayer)
	}

	act(t, h, Call, 0) // C
	act(t, h, Fold, 0) // A
	act(t, h, Fold, 0) // B

	if !h.IsComplete() {
		t.Fatal("hand should be complete after folding to one player")
	}

	requireConserved(t, h, 300)
	awards := h.Settle()

	if got := finalChips(h); got[0] != 99 || got[1] != 98 || got[2] != 103 {
		t.Errorf("final stacks = %v, want [99 98 103]", got)
	}
	if len(awards) != 1 || awards[0].Seat != 2 || awards[0].Amount != 5 {
		t.Errorf("awards = %+v, want seat 2 winning 5", awards)
	}
}

func TestSplitPotWhenBoardPlays(t *testing.T) {
	t.Parallel()

	// Heads-up, button (seat 0) posts the small blind and is dealt second.
	// The board runs out a nine-high straight neither hole pair improves.
	deck := poker.NewDeckFromCards(mustCards(t,
		"2c", "3c", "2d", "3d", // holes: seat1 2c2d, seat0 3c3d
		"Kd", "5h", "6s", "7d", // burn + flop
		"Kc", "8c", // burn + turn
		"Ks", "9h", // burn + river
	)...)
	h := NewHandState(randutil.New(1), []string{"A", "B"}, 0, 1, 2,
		WithUniformChips(100), WithDeck(deck))

	if h.ActivePlayer != 0 {
		t.Fatalf("heads-up button should act first preflop, got seat %d", h.ActivePlayer)
	}

	act(t, h, Call, 0)  // A completes the small blind
	act(t, h, Check, 0) // B takes the big blind option
	for street := 0; street < 3; street++ {
		act(t, h, Check, 0) // B acts first postflop
		act(t, h, Check, 0) // A
	}

	if h.Street != Showdown {
		t.Fatalf("street = %s, want showdown", h.Street)
	}

	requireConserved(t, h, 200)
	h.Settle()
	if got := finalChips(h); got[0] != 100 || got[1] != 100 {
		t.Errorf("final stacks = %v, want the blinds to wash at [100 100]", got)
	}
}

func TestSidePotWithAllIn(t *testing.T) {
	t.Parallel()

	// A (button, 30 chips) jams preflop; B and C call and keep betting into
	// a side pot A cannot win. A holds the best hand, C the best of B/C.
	deck := poker.NewDeckFromCards(mustCards(t,
		"Qs", "Ks", "As", "Qh", "Kh", "Ah", // holes: B=QQ, C=KK, A=AA
		"3d", "2c", "7d", "9h", // burn + flop
		"3h", "4s", // burn + turn
		"3s", "Jc", // burn + river
	)...)
	h := NewHandState(randutil.New(1), []string{"A", "B", "C"}, 0, 1, 2,
		WithChips([]int{30, 100, 100}), WithDeck(deck))

	act(t, h, AllIn, 0) // A all-in for 30
	act(t, h, Call, 0)  // B
	act(t, h, Call, 0)  // C

	if h.Street != Flop {
		t.Fatalf("street = %s, want flop", h.Street)
	}

	act(t, h, Raise, 20) // B
	act(t, h, Call, 0)   // C
	act(t, h, Check, 0)  // B (turn)
	act(t, h, Check, 0)  // C
	act(t, h, Check, 0)  // B (river)
	act(t, h, Check, 0)  // C

	if h.Street != Showdown {
		t.Fatalf("street = %s, want showdown", h.Street)
	}

	pots := h.GetPots()
	if len(pots) != 2 {
		t.Fatalf("pots = %+v, want a main pot and one side pot", pots)
	}
	if pots[0].Amount != 90 || pots[1].Amount != 40 {
		t.Errorf("pot sizes = [%d %d], want [90 40]", pots[0].Amount, pots[1].Amount)
	}

	requireConserved(t, h, 230)
	h.Settle()
	if got := finalChips(h); got[0] != 90 || got[1] != 50 || got[2] != 90 {
		t.Errorf("final stacks = %v, want [90 50 90]", got)
	}
}

func TestRaiseBelowMinimumRejectedAndStateUnchanged(t *testing.T) {
	t.Parallel()

	h := NewHandState(randutil.New(3), []string{"A", "B"}, 0, 5, 10, WithUniformChips(200))

	before := h.ActivePlayer
	chipsBefore := h.Players[before].Chips
	betBefore := h.Players[before].Bet

	// Current bet 10, minimum raise 10: any raise below 20 is illegal.
	if err := h.ProcessAction(Raise, 12); err == nil {
		t.Fatal("expected raise to 12 to be rejected")
	}

	if h.ActivePlayer != before {
		t.Errorf("cursor moved to %d after rejected action, want %d", h.ActivePlayer, before)
	}
	if h.Players[before].Chips != chipsBefore || h.Players[before].Bet != betBefore {
		t.Error("rejected raise mutated the player's chips")
	}
	if h.Betting.CurrentBet != 10 {
		t.Errorf("CurrentBet = %d after rejected raise, want 10", h.Betting.CurrentBet)
	}

	act(t, h, Raise, 20) // the minimum legal raise is fine
	if h.Betting.CurrentBet != 20 {
		t.Errorf("CurrentBet = %d, want 20", h.Betting.CurrentBet)
	}
}

func TestShortAllInDoesNotReopenAction(t *testing.T) {
	t.Parallel()

	// A raises to 20, B calls, then C's all-in for 25 is less than a full
	// raise: A and B may call the extra 5 or fold, but not re-raise.
	h := NewHandState(randutil.New(5), []string{"A", "B", "C"}, 0, 1, 2,
		WithChips([]int{100, 100, 25}))

	act(t, h, Raise, 20) // A (under the gun)
	act(t, h, Call, 0)   // B
	act(t, h, AllIn, 0)  // C, big blind, all-in for 25 total

	if h.Betting.CurrentBet != 25 {
		t.Fatalf("CurrentBet = %d, want 25", h.Betting.CurrentBet)
	}
	if h.ActivePlayer != 0 {
		t.Fatalf("cursor = %d, want 0 (A owes the extra 5)", h.ActivePlayer)
	}

	if err := h.ProcessAction(Raise, 45); err == nil {
		t.Fatal("expected re-raise to be rejected while action is not reopened")
	}
	for _, a := range h.ValidActions() {
		if a == Raise || a == AllIn {
			t.Errorf("capped seat offered %s", a)
		}
	}

	act(t, h, Call, 0) // A calls the extra 5
	act(t, h, Call, 0) // B calls the extra 5

	if h.Street != Flop {
		t.Fatalf("street = %s, want flop after the short all-in is called", h.Street)
	}
	requireConserved(t, h, 225)
}

func TestFullRaiseAllInReopensAction(t *testing.T) {
	t.Parallel()

	h := NewHandState(randutil.New(5), []string{"A", "B", "C"}, 0, 1, 2,
		WithChips([]int{200, 200, 60}))

	act(t, h, Raise, 20) // A
	act(t, h, Call, 0)   // B
	act(t, h, AllIn, 0)  // C all-in for 60: a full raise (min was to 38)

	if h.Betting.CurrentBet != 60 {
		t.Fatalf("CurrentBet = %d, want 60", h.Betting.CurrentBet)
	}
	if !h.Betting.CanRaise(0) || !h.Betting.CanRaise(1) {
		t.Fatal("full all-in raise should reopen action for earlier callers")
	}

	act(t, h, Raise, 100) // A may re-raise
	if h.Betting.CurrentBet != 100 {
		t.Errorf("CurrentBet = %d, want 100", h.Betting.CurrentBet)
	}
}

func TestBigBlindOptionAfterLimps(t *testing.T) {
	t.Parallel()

	h := NewHandState(randutil.New(11), []string{"A", "B", "C"}, 0, 1, 2, WithUniformChips(100))

	act(t, h, Call, 0) // A limps
	act(t, h, Call, 0) // B completes

	if h.Street != Preflop {
		t.Fatalf("street advanced to %s before the big blind's option", h.Street)
	}
	if h.ActivePlayer != 2 {
		t.Fatalf("cursor = %d, want 2 (big blind's option)", h.ActivePlayer)
	}

	act(t, h, Raise, 6) // BB raises the limpers

	if h.Street != Preflop {
		t.Fatal("a big blind raise must keep the street open")
	}
	act(t, h, Call, 0) // A
	act(t, h, Call, 0) // B

	if h.Street != Flop {
		t.Fatalf("street = %s, want flop", h.Street)
	}
}

func TestBigBlindCheckClosesPreflop(t *testing.T) {
	t.Parallel()

	h := NewHandState(randutil.New(11), []string{"A", "B", "C"}, 0, 1, 2, WithUniformChips(100))

	act(t, h, Call, 0)  // A
	act(t, h, Call, 0)  // B
	act(t, h, Check, 0) // C checks the option

	if h.Street != Flop {
		t.Fatalf("street = %s, want flop after the big blind checks", h.Street)
	}
	if h.Board.CountCards() != 3 {
		t.Errorf("board has %d cards on the flop, want 3", h.Board.CountCards())
	}
}

func TestEveryoneAllInRunsOutTheBoard(t *testing.T) {
	t.Parallel()

	h := NewHandState(randutil.New(13), []string{"A", "B"}, 0, 1, 2, WithUniformChips(100))

	act(t, h, AllIn, 0) // A jams
	act(t, h, AllIn, 0) // B calls all-in

	if h.Street != Showdown {
		t.Fatalf("street = %s, want showdown once nobody can bet", h.Street)
	}
	if h.Board.CountCards() != 5 {
		t.Errorf("board has %d cards, want a full runout of 5", h.Board.CountCards())
	}

	requireConserved(t, h, 200)
	h.Settle()

	total := 0
	for _, c := range finalChips(h) {
		total += c
	}
	if total != 200 {
		t.Errorf("stacks after settlement sum to %d, want 200", total)
	}
}

func TestForceFoldOutOfTurnClosesRound(t *testing.T) {
	t.Parallel()

	h := NewHandState(randutil.New(17), []string{"A", "B", "C"}, 0, 1, 2, WithUniformChips(100))

	act(t, h, Call, 0) // A
	h.ForceFold(1)     // B times out on the clock
	if h.ActivePlayer != 2 {
		t.Fatalf("cursor = %d, want 2 after the forced fold", h.ActivePlayer)
	}
	act(t, h, Check, 0) // C checks the option

	if h.Street != Flop {
		t.Fatalf("street = %s, want flop", h.Street)
	}
	if !h.Players[1].Folded {
		t.Error("seat 1 should be folded")
	}
}

func TestForceCheckOnlyWhenLegal(t *testing.T) {
	t.Parallel()

	h := NewHandState(randutil.New(19), []string{"A", "B"}, 0, 1, 2, WithUniformChips(100))

	// Button owes half the big blind preflop: checking is illegal.
	if err := h.ForceCheck(h.ActivePlayer); err == nil {
		t.Fatal("expected ForceCheck to fail when there is an amount to call")
	}

	act(t, h, Call, 0)
	// Big blind has the option: checking is legal.
	if err := h.ForceCheck(h.ActivePlayer); err != nil {
		t.Fatalf("ForceCheck with option: %v", err)
	}
	if h.Street != Flop {
		t.Fatalf("street = %s, want flop", h.Street)
	}
}

func TestDealtHandHasUniqueCards(t *testing.T) {
	t.Parallel()

	h := NewHandState(randutil.New(23), []string{"A", "B", "C", "D"}, 1, 1, 2, WithUniformChips(100))

	seen := poker.Hand(0)
	count := 0
	for _, p := range h.Players {
		if seen&p.HoleCards != 0 {
			t.Fatal("duplicate hole card dealt")
		}
		seen |= p.HoleCards
		count += p.HoleCards.CountCards()
	}
	if count != 8 {
		t.Errorf("dealt %d hole cards, want 8", count)
	}
	if h.Deck.Remaining() != 52-8 {
		t.Errorf("deck has %d cards after the deal, want %d", h.Deck.Remaining(), 52-8)
	}
}

func TestAllInForLessIsACall(t *testing.T) {
	t.Parallel()

	// C has only 10 behind facing a raise to 40: the all-in is a call for
	// less and must not move the current bet.
	h := NewHandState(randutil.New(29), []string{"A", "B", "C"}, 0, 1, 2,
		WithChips([]int{200, 200, 12}))

	act(t, h, Raise, 40) // A
	act(t, h, Call, 0)   // B
	act(t, h, AllIn, 0)  // C covers only 12 total

	// The street has closed (CurrentBet is reset for the flop), so the bet
	// level shows in what A and B committed: 40 each, nothing more owed.
	if h.Players[0].TotalBet != 40 || h.Players[1].TotalBet != 40 {
		t.Errorf("TotalBet = %d/%d, want 40 each after an all-in call for less",
			h.Players[0].TotalBet, h.Players[1].TotalBet)
	}
	if !h.Players[2].AllInFlag {
		t.Error("seat 2 should be all-in")
	}
	if h.Street != Flop {
		t.Fatalf("street = %s, want flop", h.Street)
	}
	requireConserved(t, h, 412)
}
