package transport

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lox/holdemd/internal/auth"
	"github.com/lox/holdemd/internal/protocol"
	"github.com/lox/holdemd/internal/room"
)

// Server is the websocket front door: it upgrades /ws connections, runs
// the auth handshake, then hands every subsequent inbound frame to the
// Router for dispatch to the right room.
type Server struct {
	registry *room.Registry
	router   *room.Router
	resolver auth.SessionResolver
	upgrader websocket.Upgrader
	mux      *http.ServeMux
	logger   zerolog.Logger

	startedAt time.Time
}

// New builds a Server over an already-seeded Registry.
func New(registry *room.Registry, resolver auth.SessionResolver, logger zerolog.Logger) *Server {
	s := &Server{
		registry: registry,
		router:   room.NewRouter(registry),
		resolver: resolver,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		mux:       http.NewServeMux(),
		logger:    logger.With().Str("component", "transport").Logger(),
		startedAt: time.Now(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/ws", s.serveWS)
	s.mux.HandleFunc("/health", s.serveHealth)
	s.mux.HandleFunc("/stats", s.serveStats)
}

// Run listens on addr and serves until ctx is cancelled, at which point it
// shuts the HTTP server down gracefully and waits for the room registry to
// drain.
func (s *Server) Run(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	httpServer := &http.Server{Handler: s.mux}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		s.logger.Info().Str("addr", addr).Msg("listening")
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	group.Go(func() error {
		<-gctx.Done()
		return s.registry.Shutdown(10 * time.Second)
	})

	return group.Wait()
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":     "ok",
		"uptime_sec": int(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) serveStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"rooms": s.registry.List(),
	})
}

// serveWS upgrades the connection, requires an auth message as the first
// frame, then pumps frames to the router for the connection's lifetime.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := NewWSConn(wsConn, s.logger)

	profile, err := s.authenticate(r.Context(), conn)
	if err != nil {
		s.logger.Warn().Err(err).Msg("auth handshake failed")
		reply, _ := protocol.Marshal(&protocol.Error{
			Type: protocol.TypeError, Code: "auth_failed", Message: err.Error(),
		})
		_ = wsConn.WriteMessage(websocket.TextMessage, reply)
		_ = wsConn.Close()
		return
	}

	go conn.WritePump()
	conn.setPlayerID(profile.PlayerID)

	// A returning player picks their old seat back up and gets a fresh
	// state snapshot before any new messages are read.
	if s.router.ReconnectPlayer(profile.PlayerID, conn) {
		s.logger.Info().Str("player_id", profile.PlayerID).Msg("player reconnected to seat")
	}

	conn.ReadPump(func(payload []byte) {
		if err := s.router.Dispatch(profile.PlayerID, profile.DisplayName, conn, payload); err != nil {
			s.logger.Warn().Err(err).Str("player_id", profile.PlayerID).Msg("dispatch failed")
		}
	})

	s.router.DisconnectPlayer(profile.PlayerID)
}

// authenticate reads exactly one frame (the auth message) and resolves the
// session it carries before any room operation is accepted.
func (s *Server) authenticate(ctx context.Context, conn *WSConn) (*auth.PlayerProfile, error) {
	_, payload, err := conn.conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	var authMsg protocol.Auth
	if err := protocol.Unmarshal(payload, &authMsg); err != nil {
		return nil, err
	}

	return s.resolver.ResolveSession(ctx, authMsg.Token)
}
