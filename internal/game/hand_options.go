package game

import (
	"math/rand"

	"github.com/lox/holdemd/poker"
)

// HandOption adjusts hand construction; see NewHandState.
type HandOption func(*handConfig)

type handConfig struct {
	chipCounts []int
	startChips int
	deck       *poker.Deck
}

// WithUniformChips starts every seat with the same stack. The default is
// 1000 when no chip option is given.
func WithUniformChips(chips int) HandOption {
	return func(c *handConfig) {
		c.startChips = chips
		c.chipCounts = nil
	}
}

// WithChips sets each seat's starting stack individually; the slice length
// must match the number of players.
func WithChips(chipCounts []int) HandOption {
	return func(c *handConfig) {
		c.chipCounts = chipCounts
	}
}

// WithDeck deals from a specific pre-shuffled deck instead of building one
// from the hand's rng, letting tests pin exact cards.
func WithDeck(deck *poker.Deck) HandOption {
	return func(c *handConfig) {
		c.deck = deck
	}
}

// NewHandState deals a new hand: stacks are seated, blinds posted, hole
// cards dealt, and the clock set on the first seat to act (heads-up, the
// button; otherwise under the gun). rng is required so every shuffle is
// reproducible from an injected seed.
func NewHandState(rng *rand.Rand, playerNames []string, button int, smallBlind, bigBlind int, opts ...HandOption) *HandState {
	if rng == nil {
		panic("game: rng is required")
	}
	if len(playerNames) < 2 {
		panic("game: at least 2 players required")
	}
	if button < 0 || button >= len(playerNames) {
		panic("game: button position out of range")
	}

	cfg := &handConfig{startChips: 1000}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.chipCounts != nil && len(cfg.chipCounts) != len(playerNames) {
		panic("game: chip counts must match number of players")
	}

	players := make([]*Player, len(playerNames))
	for i, name := range playerNames {
		chips := cfg.startChips
		if cfg.chipCounts != nil {
			chips = cfg.chipCounts[i]
		}
		players[i] = &Player{Seat: i, Name: name, Chips: chips}
	}

	deck := cfg.deck
	if deck == nil {
		deck = poker.NewDeck(rng)
	}

	h := &HandState{
		Players:    players,
		Button:     button,
		Street:     Preflop,
		Deck:       deck,
		PotManager: NewPotManager(players),
		Betting:    NewBettingRound(len(players), bigBlind),
	}

	h.postBlinds(smallBlind, bigBlind)
	h.dealHoleCards()

	if len(players) == 2 {
		h.ActivePlayer = button
	} else {
		h.ActivePlayer = h.nextActivePlayer((button + 3) % len(players))
	}

	return h
}
