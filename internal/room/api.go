package room

// resultTimeout-free synchronous wrappers: each posts one Event to the
// room's mailbox and blocks on its Result channel. Safe to call from any
// goroutine (the transport's per-connection read pump).

// Join requests a seat for playerID.
func (r *Room) Join(playerID, displayName string, buyIn int, conn Conn) error {
	result := make(chan error, 1)
	r.post(JoinEvent{PlayerID: playerID, DisplayName: displayName, BuyIn: buyIn, Conn: conn, Result: result})
	return <-result
}

// Leave vacates playerID's seat.
func (r *Room) Leave(playerID string) error {
	result := make(chan error, 1)
	r.post(LeaveEvent{PlayerID: playerID, Result: result})
	return <-result
}

// Disconnect marks playerID's connection gone without vacating the seat.
func (r *Room) Disconnect(playerID string) {
	r.post(DisconnectEvent{PlayerID: playerID})
}

// Reconnect re-attaches a live connection to an already-seated player.
func (r *Room) Reconnect(playerID string, conn Conn) error {
	result := make(chan error, 1)
	r.post(ReconnectEvent{PlayerID: playerID, Conn: conn, Result: result})
	return <-result
}

// SetReady marks playerID ready (or not) to be dealt into the next hand.
func (r *Room) SetReady(playerID string, ready bool) error {
	result := make(chan error, 1)
	r.post(ReadyEvent{PlayerID: playerID, Ready: ready, Result: result})
	return <-result
}

// Act submits a betting decision for playerID's current turn. A rejected
// action is reported to conn as an action_result and returns nil here; a
// non-nil error means the room could not take the event at all.
func (r *Room) Act(playerID, action string, amount int, conn Conn) error {
	result := make(chan error, 1)
	r.post(ActionEvent{PlayerID: playerID, Action: action, Amount: amount, Conn: conn, Result: result})
	return <-result
}
