package poker

import (
	"math/rand"
)

// Deck is a shuffled 52-card deck with a draw cursor. The random source is
// injected so hands are reproducible from a seed; the package never touches
// the global math/rand state.
type Deck struct {
	cards []Card
	next  int
	rng   *rand.Rand
}

// NewDeck builds a full 52-card deck and shuffles it with rng. rng must not
// be nil.
func NewDeck(rng *rand.Rand) *Deck {
	if rng == nil {
		panic("poker: NewDeck requires a non-nil rng")
	}
	d := &Deck{
		cards: make([]Card, 0, 52),
		rng:   rng,
	}
	for suit := uint8(0); suit < 4; suit++ {
		for rank := uint8(0); rank < 13; rank++ {
			d.cards = append(d.cards, NewCard(rank, suit))
		}
	}
	d.Shuffle()
	return d
}

// NewDeckFromCards builds an unshuffled deck that draws the given cards in
// order. For tests that need a known runout; Shuffle must not be called on
// a deck built this way.
func NewDeckFromCards(cards ...Card) *Deck {
	d := &Deck{cards: make([]Card, len(cards))}
	copy(d.cards, cards)
	return d
}

// Shuffle re-randomizes the full deck and rewinds the draw cursor.
func (d *Deck) Shuffle() {
	d.next = 0
	d.rng.Shuffle(len(d.cards), func(i, j int) {
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	})
}

// Draw removes and returns the top card, or 0 if the deck is exhausted. A
// correctly dealt hand never exhausts the deck.
func (d *Deck) Draw() Card {
	if d.next >= len(d.cards) {
		return 0
	}
	c := d.cards[d.next]
	d.next++
	return c
}

// DrawN removes and returns the top n cards, or nil if fewer remain.
func (d *Deck) DrawN(n int) []Card {
	if d.next+n > len(d.cards) {
		return nil
	}
	out := d.cards[d.next : d.next+n]
	d.next += n
	return out
}

// Remaining reports how many cards are left to draw.
func (d *Deck) Remaining() int {
	return len(d.cards) - d.next
}
