package room

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/holdemd/internal/auth"
	"github.com/lox/holdemd/internal/config"
	"github.com/lox/holdemd/internal/game"
	"github.com/lox/holdemd/internal/protocol"
	"github.com/lox/holdemd/internal/randutil"
)

// fakeConn records everything a room sends to one player.
type fakeConn struct {
	player string

	mu   sync.Mutex
	msgs []any
}

func (c *fakeConn) Send(msg any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *fakeConn) PlayerID() string { return c.player }

func (c *fakeConn) lastRoomState() *protocol.RoomState {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.msgs) - 1; i >= 0; i-- {
		if st, ok := c.msgs[i].(*protocol.RoomState); ok {
			return st
		}
	}
	return nil
}

func (c *fakeConn) handResults() []*protocol.HandResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*protocol.HandResult
	for _, m := range c.msgs {
		if hr, ok := m.(*protocol.HandResult); ok {
			out = append(out, hr)
		}
	}
	return out
}

func (c *fakeConn) actionResults() []*protocol.ActionResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*protocol.ActionResult
	for _, m := range c.msgs {
		if ar, ok := m.(*protocol.ActionResult); ok {
			out = append(out, ar)
		}
	}
	return out
}

func (c *fakeConn) errorCodes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, m := range c.msgs {
		if e, ok := m.(*protocol.Error); ok {
			out = append(out, e.Code)
		}
	}
	return out
}

// recordingBalance wraps the in-memory adapter and records joins/leaves.
type recordingBalance struct {
	*auth.InMemoryBalanceAdapter

	mu     sync.Mutex
	joins  map[string]int
	leaves map[string]int
}

func newRecordingBalance() *recordingBalance {
	return &recordingBalance{
		InMemoryBalanceAdapter: auth.NewInMemoryBalanceAdapter(),
		joins:                  make(map[string]int),
		leaves:                 make(map[string]int),
	}
}

func (b *recordingBalance) OnJoin(ctx context.Context, playerID, roomID string, stack int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.joins[playerID] = stack
}

func (b *recordingBalance) OnLeave(ctx context.Context, playerID, roomID string, finalStack int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.leaves[playerID] = finalStack
}

func (b *recordingBalance) leaveStack(playerID string) (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.leaves[playerID]
	return s, ok
}

func testRoomConfig() config.RoomConfig {
	return config.RoomConfig{
		Name:        "test",
		MaxSeats:    6,
		SmallBlind:  1,
		BigBlind:    2,
		BuyInMin:    50,
		BuyInMax:    1000,
		TurnTimeout: 10,
	}
}

// newTestRoom builds a room whose events the test feeds directly through
// handle, so every assertion runs single-threaded and deterministic.
func newTestRoom(t *testing.T) (*Room, *quartz.Mock, *recordingBalance) {
	t.Helper()
	mock := quartz.NewMock(t)
	balance := newRecordingBalance()
	rm := New("test", "test", testRoomConfig(), balance, mock, randutil.New(42), zerolog.Nop())
	return rm, mock, balance
}

func joinSync(t *testing.T, rm *Room, player string, buyIn int, conn Conn) error {
	t.Helper()
	result := make(chan error, 1)
	rm.handle(JoinEvent{PlayerID: player, DisplayName: player, BuyIn: buyIn, Conn: conn, Result: result})
	return <-result
}

func readySync(t *testing.T, rm *Room, player string) error {
	t.Helper()
	result := make(chan error, 1)
	rm.handle(ReadyEvent{PlayerID: player, Ready: true, Result: result})
	return <-result
}

func actSync(t *testing.T, rm *Room, conn Conn, player, action string, amount int) error {
	t.Helper()
	result := make(chan error, 1)
	rm.handle(ActionEvent{PlayerID: player, Action: action, Amount: amount, Conn: conn, Result: result})
	return <-result
}

// drainOne pulls the next self-posted event (a fired timer) off the
// mailbox and applies it.
func drainOne(t *testing.T, rm *Room) {
	t.Helper()
	select {
	case ev := <-rm.mailbox:
		rm.handle(ev)
	case <-time.After(5 * time.Second):
		t.Fatal("no event arrived on the room mailbox")
	}
}

func advanceAndDrain(t *testing.T, rm *Room, mock *quartz.Mock, d time.Duration) {
	t.Helper()
	mock.Advance(d).MustWait(context.Background())
	drainOne(t, rm)
}

func TestJoinRejectsBadBuyIn(t *testing.T) {
	t.Parallel()
	rm, _, _ := newTestRoom(t)

	if err := joinSync(t, rm, "alice", 10, &fakeConn{player: "alice"}); err == nil {
		t.Error("buy-in below the minimum should be rejected")
	}
	if err := joinSync(t, rm, "alice", 5000, &fakeConn{player: "alice"}); err == nil {
		t.Error("buy-in above the maximum should be rejected")
	}
	if err := joinSync(t, rm, "alice", 100, &fakeConn{player: "alice"}); err != nil {
		t.Errorf("valid buy-in rejected: %v", err)
	}
	if err := joinSync(t, rm, "alice", 100, &fakeConn{player: "alice"}); err == nil {
		t.Error("double join should be rejected")
	}
}

func TestJoinRejectsWhenFull(t *testing.T) {
	t.Parallel()
	rm, _, _ := newTestRoom(t)

	for _, name := range []string{"p1", "p2", "p3", "p4", "p5", "p6"} {
		require.NoError(t, joinSync(t, rm, name, 100, &fakeConn{player: name}))
	}
	if err := joinSync(t, rm, "p7", 100, &fakeConn{player: "p7"}); err == nil {
		t.Error("seventh player should not fit a six-seat room")
	}
	if rm.SeatsTaken() != 6 {
		t.Errorf("SeatsTaken() = %d, want 6", rm.SeatsTaken())
	}
}

func TestHandStartsWhenTwoReady(t *testing.T) {
	t.Parallel()
	rm, _, _ := newTestRoom(t)

	alice := &fakeConn{player: "alice"}
	bob := &fakeConn{player: "bob"}
	require.NoError(t, joinSync(t, rm, "alice", 100, alice))
	require.NoError(t, joinSync(t, rm, "bob", 100, bob))

	require.NoError(t, readySync(t, rm, "alice"))
	if rm.hand != nil {
		t.Fatal("hand must not start with a single ready player")
	}
	require.NoError(t, readySync(t, rm, "bob"))
	if rm.hand == nil {
		t.Fatal("hand should start once two players are ready")
	}

	st := alice.lastRoomState()
	require.NotNil(t, st)
	assert.Equal(t, "preflop", st.Stage)
	assert.Equal(t, 2, len(st.Seats))
}

func TestHoleCardsOnlyVisibleToOwner(t *testing.T) {
	t.Parallel()
	rm, _, _ := newTestRoom(t)

	alice := &fakeConn{player: "alice"}
	bob := &fakeConn{player: "bob"}
	require.NoError(t, joinSync(t, rm, "alice", 100, alice))
	require.NoError(t, joinSync(t, rm, "bob", 100, bob))
	require.NoError(t, readySync(t, rm, "alice"))
	require.NoError(t, readySync(t, rm, "bob"))

	st := alice.lastRoomState()
	require.NotNil(t, st)
	for _, seat := range st.Seats {
		if seat.PlayerID == "alice" {
			assert.Len(t, seat.HoleCards, 2, "own hole cards should be visible")
		} else {
			assert.Empty(t, seat.HoleCards, "opponent hole cards must be masked")
		}
	}
}

func TestActionOutOfTurnRejected(t *testing.T) {
	t.Parallel()
	rm, _, _ := newTestRoom(t)

	alice := &fakeConn{player: "alice"}
	bob := &fakeConn{player: "bob"}
	require.NoError(t, joinSync(t, rm, "alice", 100, alice))
	require.NoError(t, joinSync(t, rm, "bob", 100, bob))
	require.NoError(t, readySync(t, rm, "alice"))
	require.NoError(t, readySync(t, rm, "bob"))

	// Heads-up, first hand: alice (seat 0) has the button and acts first.
	// An out-of-turn action is a game-rule rejection: bob gets a single
	// action_result with accepted=false and no error envelope.
	require.NoError(t, actSync(t, rm, bob, "bob", "fold", 0))

	rejections := bob.actionResults()
	require.Len(t, rejections, 1)
	assert.False(t, rejections[0].Accepted)
	assert.Equal(t, "not your turn", rejections[0].Reason)
	assert.Empty(t, bob.errorCodes(), "rule rejections must not surface as protocol errors")

	if rm.hand.Players[1].Folded {
		t.Error("rejected fold must leave the hand untouched")
	}
	if err := actSync(t, rm, alice, "alice", "call", 0); err != nil {
		t.Errorf("in-turn call rejected: %v", err)
	}
	accepted := alice.actionResults()
	require.NotEmpty(t, accepted)
	assert.True(t, accepted[len(accepted)-1].Accepted)
}

func TestTurnTimeoutFoldsWhenCheckIllegal(t *testing.T) {
	t.Parallel()
	rm, mock, _ := newTestRoom(t)

	alice := &fakeConn{player: "alice"}
	bob := &fakeConn{player: "bob"}
	require.NoError(t, joinSync(t, rm, "alice", 100, alice))
	require.NoError(t, joinSync(t, rm, "bob", 100, bob))
	require.NoError(t, readySync(t, rm, "alice"))
	require.NoError(t, readySync(t, rm, "bob"))

	// Alice owes the other half of the blind: the timer must fold her.
	advanceAndDrain(t, rm, mock, 10*time.Second)

	if rm.hand != nil {
		t.Fatal("hand should be over after the only opponent folds out")
	}
	results := bob.handResults()
	require.Len(t, results, 1)
	require.Len(t, results[0].Winners, 1)
	assert.Equal(t, 3, results[0].Winners[0].Amount, "bob wins both blinds")
	assert.Equal(t, int(nextHandDelay/time.Millisecond), results[0].NextHandInMS)
}

func TestTurnTimeoutChecksWhenLegal(t *testing.T) {
	t.Parallel()
	rm, mock, _ := newTestRoom(t)

	alice := &fakeConn{player: "alice"}
	bob := &fakeConn{player: "bob"}
	require.NoError(t, joinSync(t, rm, "alice", 100, alice))
	require.NoError(t, joinSync(t, rm, "bob", 100, bob))
	require.NoError(t, readySync(t, rm, "alice"))
	require.NoError(t, readySync(t, rm, "bob"))

	require.NoError(t, actSync(t, rm, alice, "alice", "call", 0))

	// Bob holds the big-blind option: the timer checks for him instead of
	// folding, and the hand moves on to the flop.
	advanceAndDrain(t, rm, mock, 10*time.Second)

	require.NotNil(t, rm.hand)
	assert.Equal(t, game.Flop, rm.hand.Street)
	assert.False(t, rm.hand.Players[1].Folded, "a legal check must not fold the seat")
}

func TestStaleTurnTimeoutIgnored(t *testing.T) {
	t.Parallel()
	rm, _, _ := newTestRoom(t)

	alice := &fakeConn{player: "alice"}
	bob := &fakeConn{player: "bob"}
	require.NoError(t, joinSync(t, rm, "alice", 100, alice))
	require.NoError(t, joinSync(t, rm, "bob", 100, bob))
	require.NoError(t, readySync(t, rm, "alice"))
	require.NoError(t, readySync(t, rm, "bob"))

	// A timeout carrying an old epoch must be discarded even though the
	// seat matches.
	rm.handle(turnTimeoutEvent{handID: rm.handID, seat: rm.hand.ActivePlayer, epoch: rm.epoch - 1})

	if rm.hand == nil || rm.hand.Players[rm.hand.ActivePlayer].Folded {
		t.Error("stale timeout should not have acted on the hand")
	}
}

func TestNextHandDealsAfterDelay(t *testing.T) {
	t.Parallel()
	rm, mock, _ := newTestRoom(t)

	alice := &fakeConn{player: "alice"}
	bob := &fakeConn{player: "bob"}
	require.NoError(t, joinSync(t, rm, "alice", 100, alice))
	require.NoError(t, joinSync(t, rm, "bob", 100, bob))
	require.NoError(t, readySync(t, rm, "alice"))
	require.NoError(t, readySync(t, rm, "bob"))

	require.NoError(t, actSync(t, rm, alice, "alice", "fold", 0))
	require.Nil(t, rm.hand, "hand should fold out immediately")

	// The next deal happens only after the advertised pause.
	advanceAndDrain(t, rm, mock, nextHandDelay)
	require.NotNil(t, rm.hand, "next hand should deal after the delay")

	// Button rotates to the other seat for the second hand.
	assert.Equal(t, 1, rm.ButtonSeat)
}

func TestDisconnectedPlayerFoldedOutAndRemovedAfterHand(t *testing.T) {
	t.Parallel()
	rm, mock, balance := newTestRoom(t)

	alice := &fakeConn{player: "alice"}
	bob := &fakeConn{player: "bob"}
	require.NoError(t, joinSync(t, rm, "alice", 100, alice))
	require.NoError(t, joinSync(t, rm, "bob", 100, bob))
	require.NoError(t, readySync(t, rm, "alice"))
	require.NoError(t, readySync(t, rm, "bob"))

	// Alice drops mid-hand; she stays dealt in and the timer acts for her.
	rm.handle(DisconnectEvent{PlayerID: "alice"})
	advanceAndDrain(t, rm, mock, 10*time.Second) // timer folds her blind

	require.Nil(t, rm.hand)
	if rm.seatFor("alice") != nil {
		t.Error("disconnected player should lose the seat once the hand ends")
	}
	stack, ok := balance.leaveStack("alice")
	require.True(t, ok, "stack must be refunded through the balance adapter")
	assert.Equal(t, 99, stack, "alice lost only her small blind")

	// With one player left the next deal never happens.
	mock.Advance(nextHandDelay).MustWait(context.Background())
	drainOne(t, rm)
	assert.Nil(t, rm.hand)
}

func TestSettlementDeltasSumToZero(t *testing.T) {
	t.Parallel()
	rm, _, balance := newTestRoom(t)

	alice := &fakeConn{player: "alice"}
	bob := &fakeConn{player: "bob"}
	require.NoError(t, joinSync(t, rm, "alice", 100, alice))
	require.NoError(t, joinSync(t, rm, "bob", 100, bob))
	require.NoError(t, readySync(t, rm, "alice"))
	require.NoError(t, readySync(t, rm, "bob"))

	require.NoError(t, actSync(t, rm, alice, "alice", "fold", 0))

	require.Eventually(t, func() bool {
		return len(balance.Settlements()) == 2
	}, 5*time.Second, 10*time.Millisecond, "both seats settle")

	sum := 0
	for _, s := range balance.Settlements() {
		sum += s.Delta
		assert.NotEmpty(t, s.HandID)
	}
	assert.Zero(t, sum, "hand deltas must cancel out")
}

func TestLeaveRefundsStack(t *testing.T) {
	t.Parallel()
	rm, _, balance := newTestRoom(t)

	alice := &fakeConn{player: "alice"}
	require.NoError(t, joinSync(t, rm, "alice", 150, alice))

	result := make(chan error, 1)
	rm.handle(LeaveEvent{PlayerID: "alice", Result: result})
	require.NoError(t, <-result)

	stack, ok := balance.leaveStack("alice")
	require.True(t, ok)
	assert.Equal(t, 150, stack)
	assert.Equal(t, 0, rm.SeatsTaken())
}

func TestInvariantViolationQuarantinesRoom(t *testing.T) {
	t.Parallel()
	rm, _, balance := newTestRoom(t)

	alice := &fakeConn{player: "alice"}
	bob := &fakeConn{player: "bob"}
	require.NoError(t, joinSync(t, rm, "alice", 100, alice))
	require.NoError(t, joinSync(t, rm, "bob", 100, bob))
	require.NoError(t, readySync(t, rm, "alice"))
	require.NoError(t, readySync(t, rm, "bob"))

	// Conjure chips from nowhere and let the next invariant sweep notice.
	rm.hand.Players[0].Chips += 5
	require.False(t, rm.checkInvariants())

	assert.True(t, rm.quarantined)
	if _, ok := balance.leaveStack("alice"); !ok {
		t.Error("quarantine must refund alice through the adapter")
	}
	if _, ok := balance.leaveStack("bob"); !ok {
		t.Error("quarantine must refund bob through the adapter")
	}
	assert.Contains(t, alice.errorCodes(), "room_quarantined")

	// The room refuses all further work.
	if err := joinSync(t, rm, "carol", 100, &fakeConn{player: "carol"}); err == nil {
		t.Error("a quarantined room must reject joins")
	}
}

func TestShutdownRefundsSeatedStacks(t *testing.T) {
	t.Parallel()
	rm, _, balance := newTestRoom(t)

	alice := &fakeConn{player: "alice"}
	bob := &fakeConn{player: "bob"}
	require.NoError(t, joinSync(t, rm, "alice", 100, alice))
	require.NoError(t, joinSync(t, rm, "bob", 100, bob))
	require.NoError(t, readySync(t, rm, "alice"))
	require.NoError(t, readySync(t, rm, "bob"))

	// Mid-hand shutdown voids the hand: both stacks come back whole.
	rm.shutdown()

	for _, name := range []string{"alice", "bob"} {
		stack, ok := balance.leaveStack(name)
		require.True(t, ok, "%s must be refunded", name)
		assert.Equal(t, 100, stack, "%s refunded at the hand-start stack", name)
	}
}
