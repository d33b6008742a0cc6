// Package room implements the persistent, per-table coordinator that sits
// between the transport layer and the stateless hand engine in
// internal/game: the Room Actor, its event mailbox, and the Registry that
// owns every pre-seeded room for the server's lifetime.
package room

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"github.com/lox/holdemd/internal/auth"
	"github.com/lox/holdemd/internal/config"
	"github.com/lox/holdemd/internal/game"
	"github.com/lox/holdemd/internal/gameid"
	"github.com/lox/holdemd/internal/protocol"
	"github.com/lox/holdemd/poker"
)

// mailboxDepth bounds how many events can queue for a single room before
// submitters (the transport read pump) start blocking. Inbound callers wait
// synchronously on a reply, so a full mailbox means the room is genuinely
// overloaded, not momentarily busy.
const mailboxDepth = 64

// nextHandDelay is the pause between a hand ending and the next deal, long
// enough for clients to show the result.
const nextHandDelay = 3 * time.Second

// Room is the single-writer coordinator for one table. Every field below is
// owned exclusively by the goroutine running Run; nothing outside this
// package ever reads or writes them directly, only through Event values
// delivered over mailbox.
type Room struct {
	ID     string
	Name   string
	Config config.RoomConfig

	Seats      []*Seat
	ButtonSeat int // room seat index of the current button, -1 before the first hand

	hand          *game.HandState
	handID        string
	handOrder     []int // hand seat index -> room seat index, for the in-flight hand
	handStart     map[int]int
	epoch         int // turn nonce, incremented whenever the clock moves to a new seat
	turnTimer     *quartz.Timer
	nextHandTimer *quartz.Timer
	quarantined   bool

	mailbox    chan Event
	onVacate   func(playerID string) // registry membership release, may be nil
	clock      quartz.Clock
	rng        *rand.Rand
	idGen      *gameid.Generator
	balance    auth.BalanceAdapter
	logger     zerolog.Logger
	seatsTaken atomic.Int32 // mirror of the occupied-seat count, for lobby reads
}

// New creates a room ready to be started with Run. rng and clock must be
// supplied by the caller so tests can inject determinism.
func New(id, name string, cfg config.RoomConfig, balance auth.BalanceAdapter, clock quartz.Clock, rng *rand.Rand, logger zerolog.Logger) *Room {
	seats := make([]*Seat, cfg.MaxSeats)
	for i := range seats {
		seats[i] = &Seat{Index: i, Status: StatusLeft}
	}
	return &Room{
		ID:         id,
		Name:       name,
		Config:     cfg,
		Seats:      seats,
		ButtonSeat: -1,
		mailbox:    make(chan Event, mailboxDepth),
		clock:      clock,
		rng:        rng,
		idGen:      gameid.NewGenerator(rng),
		balance:    balance,
		logger:     logger.With().Str("component", "room").Str("room_id", id).Logger(),
	}
}

// Run drives the room's event loop until ctx is cancelled or Stop is
// called, then refunds every seated stack. It must be run in its own
// goroutine; it is the only goroutine ever allowed to mutate Room's fields.
func (r *Room) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.shutdown()
			return
		case ev := <-r.mailbox:
			if stop, ok := ev.(stopEvent); ok {
				r.shutdown()
				close(stop.done)
				return
			}
			r.handle(ev)
		}
	}
}

// Stop requests the room's loop exit after draining its current mailbox.
func (r *Room) Stop() {
	done := make(chan struct{})
	r.mailbox <- stopEvent{done: done}
	<-done
}

// SeatsTaken reports how many seats are currently occupied. Safe to call
// from any goroutine.
func (r *Room) SeatsTaken() int {
	return int(r.seatsTaken.Load())
}

func (r *Room) post(ev Event) {
	r.mailbox <- ev
}

func (r *Room) handle(ev Event) {
	if r.quarantined {
		rejectEvent(ev, fmt.Errorf("room %s is quarantined", r.ID))
		return
	}

	switch e := ev.(type) {
	case JoinEvent:
		r.handleJoin(e)
	case LeaveEvent:
		r.handleLeave(e)
	case DisconnectEvent:
		r.handleDisconnect(e)
	case ReconnectEvent:
		r.handleReconnect(e)
	case ReadyEvent:
		r.handleReady(e)
	case ActionEvent:
		r.handleAction(e)
	case turnTimeoutEvent:
		r.handleTurnTimeout(e)
	case startHandEvent:
		r.tryStartHand()
	default:
		r.logger.Warn().Str("type", fmt.Sprintf("%T", ev)).Msg("unhandled room event")
	}

	r.seatsTaken.Store(int32(r.countOccupied()))
}

// rejectEvent answers any reply-carrying event with err, so callers never
// block on a room that refuses work.
func rejectEvent(ev Event, err error) {
	switch e := ev.(type) {
	case JoinEvent:
		e.Result <- err
	case LeaveEvent:
		e.Result <- err
	case ReconnectEvent:
		e.Result <- err
	case ReadyEvent:
		e.Result <- err
	case ActionEvent:
		e.Result <- err
	case stopEvent:
		close(e.done)
	}
}

func (r *Room) countOccupied() int {
	n := 0
	for _, s := range r.Seats {
		if s.occupied() {
			n++
		}
	}
	return n
}

func (r *Room) handleJoin(e JoinEvent) {
	if e.BuyIn < r.Config.BuyInMin || e.BuyIn > r.Config.BuyInMax {
		e.Result <- fmt.Errorf("buy-in must be between %d and %d", r.Config.BuyInMin, r.Config.BuyInMax)
		return
	}
	for _, s := range r.Seats {
		if s.PlayerID == e.PlayerID && s.Status != StatusLeft {
			e.Result <- fmt.Errorf("already seated")
			return
		}
	}

	seat := r.firstOpenSeat()
	if seat == nil {
		e.Result <- fmt.Errorf("room is full")
		return
	}

	stack, err := r.balance.LoadPlayer(context.Background(), e.PlayerID, e.BuyIn)
	if err != nil {
		e.Result <- fmt.Errorf("load balance: %w", err)
		return
	}

	seat.PlayerID = e.PlayerID
	seat.DisplayName = e.DisplayName
	seat.Chips = stack
	seat.Status = StatusSeated
	seat.Conn = e.Conn

	r.balance.OnJoin(context.Background(), e.PlayerID, r.ID, stack)
	r.logger.Info().Str("player_id", e.PlayerID).Int("seat", seat.Index).Int("stack", stack).Msg("player joined")

	e.Result <- nil
	r.broadcastState()
}

func (r *Room) firstOpenSeat() *Seat {
	for _, s := range r.Seats {
		if !s.occupied() {
			return s
		}
	}
	return nil
}

func (r *Room) seatFor(playerID string) *Seat {
	for _, s := range r.Seats {
		if s.PlayerID == playerID && s.Status != StatusLeft {
			return s
		}
	}
	return nil
}

func (r *Room) handleLeave(e LeaveEvent) {
	seat := r.seatFor(e.PlayerID)
	if seat == nil {
		e.Result <- fmt.Errorf("not seated")
		return
	}
	if seat.Status == StatusPlaying {
		e.Result <- fmt.Errorf("cannot leave mid-hand, disconnect and your hand will fold out")
		return
	}

	r.balance.OnLeave(context.Background(), e.PlayerID, r.ID, seat.Chips)

	r.vacateSeat(seat)
	e.Result <- nil
	r.broadcastState()
}

// vacateSeat clears a seat and releases the player's one-room membership in
// the registry.
func (r *Room) vacateSeat(seat *Seat) {
	playerID := seat.PlayerID
	*seat = Seat{Index: seat.Index, Status: StatusLeft}
	if r.onVacate != nil && playerID != "" {
		r.onVacate(playerID)
	}
}

func (r *Room) handleDisconnect(e DisconnectEvent) {
	seat := r.seatFor(e.PlayerID)
	if seat == nil {
		return
	}
	seat.Conn = nil
	r.logger.Info().Str("player_id", e.PlayerID).Msg("player disconnected")
}

func (r *Room) handleReconnect(e ReconnectEvent) {
	seat := r.seatFor(e.PlayerID)
	if seat == nil {
		e.Result <- fmt.Errorf("not seated")
		return
	}
	seat.Conn = e.Conn
	e.Result <- nil
	r.sendState(seat)
}

func (r *Room) handleReady(e ReadyEvent) {
	seat := r.seatFor(e.PlayerID)
	if seat == nil {
		e.Result <- fmt.Errorf("not seated")
		return
	}
	if seat.Status == StatusPlaying {
		e.Result <- fmt.Errorf("already in a hand")
		return
	}

	if e.Ready {
		seat.Status = StatusReady
	} else {
		seat.Status = StatusSeated
	}
	e.Result <- nil
	r.broadcastState()
	if e.Ready {
		r.tryStartHand()
	}
}

// tryStartHand deals a new hand if at least two seats are ready and no
// hand is currently in progress.
func (r *Room) tryStartHand() {
	if r.hand != nil || r.quarantined {
		return
	}

	order := r.orderedActiveSeats()
	if len(order) < 2 {
		return
	}

	// Advance the button to the first active seat strictly past the
	// previous button's room seat index, wrapping around the table.
	buttonIdx := 0
	if r.ButtonSeat >= 0 {
		buttonIdx = len(order)
		for i, roomSeat := range order {
			if roomSeat > r.ButtonSeat {
				buttonIdx = i
				break
			}
		}
		if buttonIdx == len(order) {
			buttonIdx = 0
		}
	}

	names := make([]string, len(order))
	chips := make([]int, len(order))
	start := make(map[int]int, len(order))
	for i, roomSeat := range order {
		s := r.Seats[roomSeat]
		names[i] = s.DisplayName
		chips[i] = s.Chips
		start[roomSeat] = s.Chips
		s.Status = StatusPlaying
	}

	r.handOrder = order
	r.handStart = start
	r.ButtonSeat = order[buttonIdx]
	r.handID = r.idGen.Generate()
	r.hand = game.NewHandState(r.rng, names, buttonIdx, r.Config.SmallBlind, r.Config.BigBlind, game.WithChips(chips))

	r.logger.Info().Str("hand_id", r.handID).Int("players", len(order)).Msg("hand started")

	r.scheduleTurnTimer()
	r.broadcastState()
	r.checkHandComplete()
}

// orderedActiveSeats returns ready seats' room indices in ascending order,
// the seating order used to build each hand's player list.
func (r *Room) orderedActiveSeats() []int {
	var order []int
	for i, s := range r.Seats {
		if s.Status == StatusReady && s.Conn != nil {
			order = append(order, i)
		}
	}
	sort.Ints(order)
	return order
}

func (r *Room) roomSeat(handSeat int) int {
	return r.handOrder[handSeat]
}

func (r *Room) handleAction(e ActionEvent) {
	reject := func(reason string) {
		e.Result <- nil
		r.sendActionReject(e, reason)
	}

	if r.hand == nil {
		reject("no hand in progress")
		return
	}
	seat := r.seatFor(e.PlayerID)
	if seat == nil {
		reject("not seated")
		return
	}

	handSeat := -1
	for i, rs := range r.handOrder {
		if rs == seat.Index {
			handSeat = i
			break
		}
	}
	if handSeat != r.hand.ActivePlayer {
		reject("not your turn")
		return
	}

	action, err := parseAction(e.Action)
	if err != nil {
		reject(err.Error())
		return
	}

	if err := r.hand.ProcessAction(action, e.Amount); err != nil {
		reject(err.Error())
		return
	}

	e.Result <- nil
	r.sendActionResult(seat.Index, e.Action, e.Amount, true, "")
	r.afterHandMutation()
}

// sendActionReject answers a rule-rejected action. Rejections are game
// outcomes, not protocol failures: the client gets a single action_result
// with accepted=false and the hand state stays exactly as it was, cursor
// included.
func (r *Room) sendActionReject(e ActionEvent, reason string) {
	conn := e.Conn
	seatIdx := -1
	if s := r.seatFor(e.PlayerID); s != nil {
		seatIdx = s.Index
		if conn == nil {
			conn = s.Conn
		}
	}
	if conn == nil {
		return
	}

	msg := &protocol.ActionResult{
		Type:     protocol.TypeActionResult,
		RoomID:   r.ID,
		HandID:   r.handID,
		Seat:     seatIdx,
		Action:   e.Action,
		Amount:   e.Amount,
		Accepted: false,
		Reason:   reason,
	}
	if err := conn.Send(msg); err != nil {
		r.logger.Warn().Err(err).Str("player_id", e.PlayerID).Msg("send action_result failed")
	}
}

// afterHandMutation is the common tail of every event that moved the hand
// forward: verify the money still adds up, re-arm the turn clock, tell the
// table, and settle if the hand just ended.
func (r *Room) afterHandMutation() {
	if !r.checkInvariants() {
		return
	}
	r.scheduleTurnTimer()
	r.broadcastState()
	r.checkHandComplete()
}

func parseAction(s string) (game.Action, error) {
	switch strings.ReplaceAll(strings.ToLower(s), "_", "") {
	case "fold":
		return game.Fold, nil
	case "check":
		return game.Check, nil
	case "call":
		return game.Call, nil
	case "raise":
		return game.Raise, nil
	case "allin":
		return game.AllIn, nil
	default:
		return 0, fmt.Errorf("unknown action %q", s)
	}
}

// checkInvariants verifies the in-flight hand still conserves chips and
// holds a coherent turn cursor. A violation quarantines the room: the hand
// is voided, every stack is refunded at its hand-start value, and all
// further events are rejected. Other rooms are unaffected. Returns false
// if the room was quarantined.
func (r *Room) checkInvariants() bool {
	if r.hand == nil {
		return true
	}

	total := 0
	want := 0
	for i, roomSeat := range r.handOrder {
		p := r.hand.Players[i]
		total += p.Chips + p.TotalBet
		want += r.handStart[roomSeat]
	}
	if total != want {
		r.quarantine(fmt.Errorf("chip conservation violated: have %d, want %d", total, want))
		return false
	}

	if ap := r.hand.ActivePlayer; ap >= 0 {
		p := r.hand.Players[ap]
		if p.Folded || p.AllInFlag {
			r.quarantine(fmt.Errorf("turn cursor on seat %d which cannot act", ap))
			return false
		}
	}
	return true
}

// quarantine takes the room out of service after an invariant violation.
func (r *Room) quarantine(cause error) {
	r.logger.Error().Err(cause).Msg("invariant violation, quarantining room")

	r.stopTimers()
	r.quarantined = true

	for _, seat := range r.Seats {
		if !seat.occupied() {
			continue
		}
		stack := seat.Chips
		if start, inHand := r.handStart[seat.Index]; inHand && seat.Status == StatusPlaying {
			stack = start // the hand is void
		}
		r.balance.OnLeave(context.Background(), seat.PlayerID, r.ID, stack)
		if seat.Conn != nil {
			_ = seat.Conn.Send(&protocol.Error{
				Type:    protocol.TypeError,
				Code:    "room_quarantined",
				Message: "room closed due to an internal error, your stack has been refunded",
			})
		}
		r.vacateSeat(seat)
	}

	r.hand = nil
	r.handID = ""
	r.handOrder = nil
	r.handStart = nil
}

func (r *Room) stopTimers() {
	if r.turnTimer != nil {
		r.turnTimer.Stop()
		r.turnTimer = nil
	}
	if r.nextHandTimer != nil {
		r.nextHandTimer.Stop()
		r.nextHandTimer = nil
	}
}

// scheduleTurnTimer (re)arms the clock on the seat now on the move, after
// cancelling any timer left over from the previous turn. The epoch is the
// turn nonce: a fired timer whose epoch no longer matches is stale and
// ignored, so a player acting just before expiry is never double-acted.
func (r *Room) scheduleTurnTimer() {
	if r.turnTimer != nil {
		r.turnTimer.Stop()
		r.turnTimer = nil
	}
	if r.hand == nil || r.hand.IsComplete() || r.hand.ActivePlayer < 0 {
		return
	}

	r.epoch++
	epoch := r.epoch
	handID := r.handID
	seat := r.hand.ActivePlayer
	timeout := time.Duration(r.Config.TurnTimeout) * time.Second

	r.turnTimer = r.clock.AfterFunc(timeout, func() {
		r.post(turnTimeoutEvent{handID: handID, seat: seat, epoch: epoch})
	})
}

func (r *Room) handleTurnTimeout(e turnTimeoutEvent) {
	if r.hand == nil || r.handID != e.handID || e.epoch != r.epoch {
		return
	}
	if r.hand.ActivePlayer != e.seat {
		return
	}

	roomSeat := r.roomSeat(e.seat)
	r.logger.Info().Str("hand_id", r.handID).Int("seat", roomSeat).Msg("turn timed out")

	if err := r.hand.ForceCheck(e.seat); err != nil {
		r.hand.ForceFold(e.seat)
		r.sendActionResult(roomSeat, "fold", 0, true, "turn timed out")
	} else {
		r.sendActionResult(roomSeat, "check", 0, true, "turn timed out")
	}

	r.afterHandMutation()
}

// checkHandComplete settles and clears the in-flight hand once it reaches
// showdown or folds out, then schedules the next deal.
func (r *Room) checkHandComplete() {
	if r.hand == nil || !r.hand.IsComplete() {
		return
	}

	r.stopTimers()

	awards := r.hand.Settle()
	winners := make([]protocol.Winner, 0, len(awards))
	for _, a := range awards {
		roomSeat := r.roomSeat(a.Seat)
		winners = append(winners, protocol.Winner{
			Seat:          roomSeat,
			PlayerID:      r.Seats[roomSeat].PlayerID,
			Amount:        a.Amount,
			HandRankLabel: r.handRankLabel(a.Seat),
		})
	}

	r.broadcast(&protocol.HandResult{
		Type:         protocol.TypeHandResult,
		RoomID:       r.ID,
		HandID:       r.handID,
		Board:        boardStrings(r.hand.Board),
		Winners:      winners,
		NextHandInMS: int(nextHandDelay / time.Millisecond),
	})

	for i, roomSeat := range r.handOrder {
		seat := r.Seats[roomSeat]
		finalChips := r.hand.Players[i].Chips
		startChips := r.handStart[roomSeat]
		seat.Chips = finalChips

		if delta := finalChips - startChips; delta != 0 {
			go r.balance.ApplySettlement(context.Background(), auth.Settlement{
				PlayerID: seat.PlayerID,
				RoomID:   r.ID,
				HandID:   r.handID,
				Delta:    delta,
			})
		}

		switch {
		case finalChips <= 0:
			// Busted: the seat opens up. Rejoining with a fresh buy-in is
			// the only way back in.
			playerID, conn := seat.PlayerID, seat.Conn
			r.balance.OnLeave(context.Background(), playerID, r.ID, 0)
			if conn != nil {
				_ = conn.Send(&protocol.Error{
					Type:    protocol.TypeError,
					Code:    "busted",
					Message: "stack is empty, rejoin with a new buy-in to keep playing",
				})
			}
			r.vacateSeat(seat)
			r.logger.Info().Str("player_id", playerID).Msg("player busted out")
		case seat.Conn == nil:
			// Disconnected during the hand: the turn timer drove their
			// default actions; now that the hand is over, remove them
			// from seating and refund the stack as a leave.
			playerID, chips := seat.PlayerID, seat.Chips
			r.balance.OnLeave(context.Background(), playerID, r.ID, chips)
			r.vacateSeat(seat)
			r.logger.Info().Str("player_id", playerID).Msg("disconnected player removed from seating after showdown")
		default:
			seat.Status = StatusReady
		}
	}

	r.logger.Info().Str("hand_id", r.handID).Msg("hand complete")

	r.hand = nil
	r.handID = ""
	r.handOrder = nil
	r.handStart = nil

	r.broadcastState()

	r.nextHandTimer = r.clock.AfterFunc(nextHandDelay, func() {
		r.post(startHandEvent{})
	})
}

// handRankLabel returns the winning hand's category label for a seat that
// reached showdown (e.g. "Full House"), or "" if the hand ended by everyone
// folding but one, where no cards were ever evaluated.
func (r *Room) handRankLabel(handSeat int) string {
	if r.hand.Street != game.Showdown {
		return ""
	}
	p := r.hand.Players[handSeat]
	if p.Folded {
		return ""
	}
	full := p.HoleCards | r.hand.Board
	if full.CountCards() != 7 {
		return ""
	}
	return poker.Evaluate7Cards(full).String()
}

// shutdown drains the mailbox, rejecting queued work, then refunds every
// seated stack through the balance adapter. Stacks in a half-played hand
// are refunded at their hand-start value: an interrupted hand is void.
func (r *Room) shutdown() {
	r.stopTimers()

	for {
		select {
		case ev := <-r.mailbox:
			rejectEvent(ev, fmt.Errorf("room %s is shutting down", r.ID))
		default:
			for _, seat := range r.Seats {
				if !seat.occupied() {
					continue
				}
				stack := seat.Chips
				if start, inHand := r.handStart[seat.Index]; inHand && seat.Status == StatusPlaying {
					stack = start
				}
				r.balance.OnLeave(context.Background(), seat.PlayerID, r.ID, stack)
				r.vacateSeat(seat)
			}
			r.hand = nil
			r.seatsTaken.Store(0)
			return
		}
	}
}
