package room

// Event is a single unit of work processed by a Room's actor loop. Every
// mutation of room or hand state happens as the result of exactly one
// Event, processed one at a time by the single mailbox goroutine.
type Event interface {
	isRoomEvent()
}

// JoinEvent requests a seat for playerID with the given display name and
// proposed buy-in. Result receives nil once seated, or an error if the
// room is full or the buy-in is out of bounds.
type JoinEvent struct {
	PlayerID    string
	DisplayName string
	BuyIn       int
	Conn        Conn
	Result      chan<- error
}

func (JoinEvent) isRoomEvent() {}

// LeaveEvent vacates playerID's seat, refunding their current stack via the
// balance adapter.
type LeaveEvent struct {
	PlayerID string
	Result   chan<- error
}

func (LeaveEvent) isRoomEvent() {}

// DisconnectEvent marks playerID's seat connection as gone without vacating
// the seat; a subsequent ReconnectEvent restores Conn in place.
type DisconnectEvent struct {
	PlayerID string
}

func (DisconnectEvent) isRoomEvent() {}

// ReconnectEvent re-attaches a live connection to an already-seated player.
type ReconnectEvent struct {
	PlayerID string
	Conn     Conn
	Result   chan<- error
}

func (ReconnectEvent) isRoomEvent() {}

// ReadyEvent marks playerID available to be dealt into the next hand.
type ReadyEvent struct {
	PlayerID string
	Ready    bool // false for an Unready request
	Result   chan<- error
}

func (ReadyEvent) isRoomEvent() {}

// ActionEvent submits a betting decision on behalf of playerID, who must be
// the seat currently on the clock. Game-rule rejections (out of turn,
// illegal move, short chips) are answered on Conn as an action_result with
// accepted=false, never as an error reply: Result only carries failures
// that make the room itself unusable.
type ActionEvent struct {
	PlayerID string
	Action   string // fold, check, call, raise, allin
	Amount   int
	Conn     Conn
	Result   chan<- error
}

func (ActionEvent) isRoomEvent() {}

// turnTimeoutEvent fires when the seat on the clock's turn timer elapses.
// epoch guards against a stale timer firing after the hand already moved
// on (e.g. the player acted just before expiry).
type turnTimeoutEvent struct {
	handID string
	seat   int
	epoch  int
}

func (turnTimeoutEvent) isRoomEvent() {}

// startHandEvent is self-posted by the room's next-hand timer after the
// previous hand completes; a ready seat triggers a deal directly instead.
type startHandEvent struct{}

func (startHandEvent) isRoomEvent() {}

// stopEvent requests the actor loop exit after finishing its mailbox.
type stopEvent struct {
	done chan<- struct{}
}

func (stopEvent) isRoomEvent() {}
