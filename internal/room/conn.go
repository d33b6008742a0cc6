package room

import "errors"

// ErrConnClosed is returned by Conn.Send once the underlying connection has
// gone away.
var ErrConnClosed = errors.New("room: connection closed")

// ErrSendTimeout is returned by Conn.Send when a client isn't draining its
// outbound queue fast enough to keep up with room broadcasts.
var ErrSendTimeout = errors.New("room: send timed out, client too slow")

// Conn is the Room Actor's view of a connected player: a bounded,
// backpressured outbound queue. Concrete websocket implementations live in
// internal/transport; tests use an in-memory fake.
type Conn interface {
	// Send enqueues msg for delivery. It must never block the caller (the
	// room's single event-loop goroutine) for longer than the
	// implementation's own send timeout.
	Send(msg any) error
	// PlayerID identifies the authenticated player driving this connection.
	PlayerID() string
}
