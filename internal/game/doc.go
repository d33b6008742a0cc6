// Package game implements the hand engine: the pure state machine that
// drives one hand of Texas Hold'em from blinds to showdown.
//
// HandState owns a hand's players, deck, board, and betting state. It does
// no I/O and reads no clock; the room actor in internal/room feeds it
// actions one at a time and reads back chip movements once the hand
// completes. Randomness is injected: every constructor that shuffles takes
// a *rand.Rand, so a seeded source reproduces the hand exactly.
//
//	rng := randutil.New(42)
//	h := game.NewHandState(rng, []string{"alice", "bob"}, 0, 1, 2,
//		game.WithChips([]int{100, 100}))
//	err := h.ProcessAction(game.Call, 0)
//
// Betting legality (check/call/raise/all-in, minimum raise, the big
// blind's preflop option, short all-ins that don't reopen the action)
// lives in BettingRound; pot layering and split-pot resolution live in
// PotManager and ResolveShowdown.
package game
