// Package transport implements the websocket front door: per-connection
// read/write pumps, ping/pong keepalive, and the HTTP server that accepts
// upgrades and serves /health and /stats alongside the game socket.
package transport

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lox/holdemd/internal/protocol"
	"github.com/lox/holdemd/internal/room"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 32
)

// WSConn wraps one upgraded websocket connection, implementing room.Conn
// (Send/PlayerID) for the Room Actor while running its own read/write
// pumps.
type WSConn struct {
	id       string
	playerID string
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	closeOne sync.Once
	logger   zerolog.Logger
}

// NewWSConn wraps an already-upgraded websocket connection. playerID is
// set once auth resolves (see Server.serveWS); until then it is empty.
func NewWSConn(conn *websocket.Conn, logger zerolog.Logger) *WSConn {
	return &WSConn{
		id:     uuid.NewString(),
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		logger: logger.With().Str("component", "transport").Logger(),
	}
}

// ID is this connection's unique session identifier, independent of which
// player ends up authenticated over it.
func (c *WSConn) ID() string { return c.id }

// PlayerID implements room.Conn.
func (c *WSConn) PlayerID() string { return c.playerID }

// setPlayerID is called once after a successful auth handshake.
func (c *WSConn) setPlayerID(id string) { c.playerID = id }

// Send implements room.Conn: encodes msg and enqueues it for the write
// pump, never blocking the caller (the room's single actor goroutine) for
// longer than a short send timeout.
func (c *WSConn) Send(msg any) error {
	data, err := protocol.Marshal(msg)
	if err != nil {
		return err
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return room.ErrConnClosed
	case <-time.After(time.Second):
		return room.ErrSendTimeout
	}
}

// Close shuts down the connection's send loop exactly once.
func (c *WSConn) Close() {
	c.closeOne.Do(func() {
		close(c.done)
	})
}

// ReadPump reads inbound frames and hands each one to handle, until the
// connection errors or closes. Must run in its own goroutine; returns when
// the connection is gone.
func (c *WSConn) ReadPump(handle func(payload []byte)) {
	defer func() {
		c.Close()
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn().Err(err).Msg("unexpected websocket close")
			}
			return
		}
		handle(message)
	}
}

// WritePump drains the send channel onto the wire and emits keepalive
// pings, until the connection closes.
func (c *WSConn) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		c.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}
