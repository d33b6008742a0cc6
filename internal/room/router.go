package room

import (
	"fmt"

	"github.com/lox/holdemd/internal/protocol"
)

// Router dispatches already-authenticated inbound messages to the right
// room, translating the per-room actor's synchronous result into the
// matching outbound acknowledgement or error. One Router is shared by
// every connection; it holds no per-connection state itself.
type Router struct {
	registry *Registry
}

// NewRouter creates a router over the given registry.
func NewRouter(registry *Registry) *Router {
	return &Router{registry: registry}
}

// Dispatch decodes one inbound wire message on behalf of playerID and
// routes it to the appropriate room, writing any resulting error back to
// conn as a protocol.Error. conn is also the connection registered for
// join_room, so a room can reach the player with broadcasts.
func (router *Router) Dispatch(playerID, displayName string, conn Conn, raw []byte) error {
	msgType, err := protocol.PeekType(raw)
	if err != nil {
		return router.sendError(conn, "bad_message", err.Error())
	}

	switch msgType {
	case protocol.TypeJoinRoom:
		var m protocol.JoinRoom
		if err := protocol.Unmarshal(raw, &m); err != nil {
			return router.sendError(conn, "bad_message", err.Error())
		}
		if _, ok := router.registry.Room(m.RoomID); !ok {
			return router.sendError(conn, "unknown_room", fmt.Sprintf("no such room %q", m.RoomID))
		}
		if err := router.registry.Join(playerID, displayName, m.BuyIn, m.RoomID, conn); err != nil {
			return router.sendError(conn, "join_rejected", err.Error())
		}
		return nil

	case protocol.TypeLeaveRoom:
		var m protocol.LeaveRoom
		if err := protocol.Unmarshal(raw, &m); err != nil {
			return router.sendError(conn, "bad_message", err.Error())
		}
		rm, errReply := router.resolveRoom(playerID, m.RoomID)
		if errReply != "" {
			return router.sendError(conn, "unknown_room", errReply)
		}
		if err := rm.Leave(playerID); err != nil {
			return router.sendError(conn, "leave_rejected", err.Error())
		}
		return nil

	case protocol.TypeReady, protocol.TypeUnready:
		var roomID string
		ready := msgType == protocol.TypeReady
		if ready {
			var m protocol.Ready
			if err := protocol.Unmarshal(raw, &m); err != nil {
				return router.sendError(conn, "bad_message", err.Error())
			}
			roomID = m.RoomID
		} else {
			var m protocol.Unready
			if err := protocol.Unmarshal(raw, &m); err != nil {
				return router.sendError(conn, "bad_message", err.Error())
			}
			roomID = m.RoomID
		}
		rm, errReply := router.resolveRoom(playerID, roomID)
		if errReply != "" {
			return router.sendError(conn, "unknown_room", errReply)
		}
		if err := rm.SetReady(playerID, ready); err != nil {
			return router.sendError(conn, "ready_rejected", err.Error())
		}
		return nil

	case protocol.TypeAction:
		var m protocol.Action
		if err := protocol.Unmarshal(raw, &m); err != nil {
			return router.sendError(conn, "bad_message", err.Error())
		}
		rm, errReply := router.resolveRoom(playerID, m.RoomID)
		if errReply != "" {
			return router.sendError(conn, "unknown_room", errReply)
		}
		// Game-rule rejections come back to the client as an
		// action_result from the room actor; an error here means the
		// room itself refused the event (quarantined or shutting down).
		if err := rm.Act(playerID, m.Kind, m.Amount, conn); err != nil {
			return router.sendError(conn, "room_unavailable", err.Error())
		}
		return nil

	default:
		return router.sendError(conn, "unknown_type", fmt.Sprintf("unrecognised message type %q", msgType))
	}
}

// resolveRoom finds the target room for a post-join message: an explicit
// room_id wins, otherwise the room the player currently holds a seat in.
// Returns a non-empty error message when neither resolves.
func (router *Router) resolveRoom(playerID, roomID string) (*Room, string) {
	if roomID != "" {
		rm, ok := router.registry.Room(roomID)
		if !ok {
			return nil, fmt.Sprintf("no such room %q", roomID)
		}
		return rm, ""
	}
	rm, ok := router.registry.RoomFor(playerID)
	if !ok {
		return nil, "not in a room"
	}
	return rm, ""
}

func (router *Router) sendError(conn Conn, code, message string) error {
	return conn.Send(&protocol.Error{
		Type:    protocol.TypeError,
		Code:    code,
		Message: message,
	})
}

// ReconnectPlayer re-attaches conn to the seat playerID already holds, if
// any. Called by the transport layer after a returning player completes
// the auth handshake; reports whether a seat was found.
func (router *Router) ReconnectPlayer(playerID string, conn Conn) bool {
	rm, ok := router.registry.RoomFor(playerID)
	if !ok {
		return false
	}
	return rm.Reconnect(playerID, conn) == nil
}

// DisconnectPlayer marks playerID's connection gone in the room they hold
// a seat in, if any. Called by the transport layer when a websocket closes.
func (router *Router) DisconnectPlayer(playerID string) {
	if rm, ok := router.registry.RoomFor(playerID); ok {
		rm.Disconnect(playerID)
	}
}
