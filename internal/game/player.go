package game

import "github.com/lox/holdemd/poker"

// Player is a single seat's state for the duration of one hand. HandState
// rebuilds a fresh slice of these from the room's persistent seat stacks at
// the start of every hand; nothing here survives past showdown except the
// Chips a caller copies back out.
type Player struct {
	Seat      int
	Name      string
	Chips     int
	HoleCards poker.Hand

	Folded    bool
	AllInFlag bool
	Bet       int // amount committed this street, not yet collected into a pot
	TotalBet  int // amount committed this hand, across all streets
}
