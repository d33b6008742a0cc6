package game

import "sort"

// Pot is one layer of the hand's money: the main pot, or a side pot capped
// at an all-in player's contribution level.
type Pot struct {
	Amount       int
	Eligible     []int // seats that can win this layer
	MaxPerPlayer int   // per-player contribution level this layer is built up to
}

// PotManager derives the hand's pot layers from per-player contributions.
// Layers are rebuilt from Player.TotalBet at every street close, so folded
// players' chips stay in whichever layers they reached, as dead money for
// that layer's winners.
type PotManager struct {
	pots []Pot
}

// NewPotManager starts a hand with a single empty pot every dealt seat can
// win.
func NewPotManager(players []*Player) *PotManager {
	eligible := make([]int, 0, len(players))
	for _, p := range players {
		if !p.Folded {
			eligible = append(eligible, p.Seat)
		}
	}
	return &PotManager{pots: []Pot{{Eligible: eligible}}}
}

// Total returns the chips across all pot layers.
func (pm *PotManager) Total() int {
	total := 0
	for _, pot := range pm.pots {
		total += pot.Amount
	}
	return total
}

// CollectBets closes out the street's bets. The chips themselves are
// already accounted for in each player's TotalBet, which CalculateSidePots
// layers from; this only clears the per-street counters.
func (pm *PotManager) CollectBets(players []*Player) {
	for _, p := range players {
		p.Bet = 0
	}
}

// CalculateSidePots rebuilds the pot layers from scratch. Contribution
// levels are the distinct hand totals committed by non-folded players,
// ascending; each layer holds every player's chips between the previous
// level and its own, and is winnable by the non-folded players who reached
// it. Chips a folded player committed beyond the highest surviving level
// fall into the top layer.
func (pm *PotManager) CalculateSidePots(players []*Player) {
	var levels []int
	for _, p := range players {
		if !p.Folded && p.TotalBet > 0 {
			levels = append(levels, p.TotalBet)
		}
	}
	if len(levels) == 0 {
		return
	}
	sort.Ints(levels)

	pm.pots = pm.pots[:0]
	prev := 0
	for _, level := range levels {
		if level == prev {
			continue
		}
		pot := Pot{MaxPerPlayer: level}
		for _, p := range players {
			if c := min(p.TotalBet, level) - min(p.TotalBet, prev); c > 0 {
				pot.Amount += c
			}
			if !p.Folded && p.TotalBet >= level {
				pot.Eligible = append(pot.Eligible, p.Seat)
			}
		}
		pm.pots = append(pm.pots, pot)
		prev = level
	}

	// Dead money above the highest surviving level (an aggressor who was
	// folded out by the turn timer) joins the top layer.
	leftover := 0
	for _, p := range players {
		if p.TotalBet > prev {
			leftover += p.TotalBet - prev
		}
	}
	if leftover > 0 {
		pm.pots[len(pm.pots)-1].Amount += leftover
	}
}

// GetPots returns the current pot layers.
func (pm *PotManager) GetPots() []Pot {
	return pm.pots
}

// GetPotsWithUncollected returns the pot layers with the street's live bets
// added to the top layer, for mid-street display.
func (pm *PotManager) GetPotsWithUncollected(players []*Player) []Pot {
	uncollected := 0
	for _, p := range players {
		uncollected += p.Bet
	}
	if uncollected == 0 {
		return pm.pots
	}

	out := make([]Pot, len(pm.pots))
	copy(out, pm.pots)
	if len(out) > 0 {
		out[len(out)-1].Amount += uncollected
	}
	return out
}

// Award is one seat's winnings from the hand.
type Award struct {
	Seat   int
	Amount int
}

// ResolveShowdown splits every pot across its winners (as returned by
// HandState.GetWinners, keyed by pot index) and returns the per-seat chip
// awards, ascending by seat. Tied winners split evenly; any odd chips are
// handed out one at a time starting with the winner seated closest to the
// button's left, so the result never depends on map iteration order.
func ResolveShowdown(pots []Pot, winners map[int][]int, button, numSeats int) []Award {
	totals := make(map[int]int)

	for potIdx, pot := range pots {
		seats := winners[potIdx]
		if len(seats) == 0 || pot.Amount == 0 {
			continue
		}

		share := pot.Amount / len(seats)
		remainder := pot.Amount % len(seats)

		for _, seat := range seats {
			totals[seat] += share
		}
		for _, seat := range seatsByDistanceFromButton(seats, button, numSeats) {
			if remainder == 0 {
				break
			}
			totals[seat]++
			remainder--
		}
	}

	awards := make([]Award, 0, len(totals))
	for seat, amount := range totals {
		awards = append(awards, Award{Seat: seat, Amount: amount})
	}
	sort.Slice(awards, func(i, j int) bool { return awards[i].Seat < awards[j].Seat })
	return awards
}

// seatsByDistanceFromButton orders seats by how far they sit, in dealing
// order, to the left of the button: the seat immediately after the button
// comes first.
func seatsByDistanceFromButton(seats []int, button, numSeats int) []int {
	if numSeats <= 0 {
		numSeats = 1
	}
	distance := func(seat int) int {
		d := seat - button
		if d <= 0 {
			d += numSeats
		}
		return d
	}

	ordered := make([]int, len(seats))
	copy(ordered, seats)
	sort.Slice(ordered, func(i, j int) bool { return distance(ordered[i]) < distance(ordered[j]) })
	return ordered
}
