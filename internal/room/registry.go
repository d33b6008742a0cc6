package room

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"github.com/lox/holdemd/internal/auth"
	"github.com/lox/holdemd/internal/config"
	"github.com/lox/holdemd/internal/randutil"
)

// Registry owns every pre-seeded room for the server's lifetime: lookup by
// ID, the shared balance adapter, and the clock every room's turn timer is
// built from.
type Registry struct {
	mu      sync.RWMutex
	rooms   map[string]*Room
	order   []string
	members map[string]string // player id -> room id, one room per player

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRegistry seeds one Room per entry in cfg.Rooms and starts each one's
// actor loop. A room's ID is its configured name, so clients can bookmark a
// room_id across restarts. baseSeed mixes into every room's shuffle RNG so
// callers (tests, or an operator passing --seed) can reproduce an entire
// server's worth of hands.
func NewRegistry(cfg *config.ServerConfig, balance auth.BalanceAdapter, clock quartz.Clock, baseSeed int64, logger zerolog.Logger) *Registry {
	reg := &Registry{
		rooms:   make(map[string]*Room),
		members: make(map[string]string),
	}

	ctx, cancel := context.WithCancel(context.Background())
	reg.cancel = cancel

	for _, rc := range cfg.Rooms {
		seed := seedFromName(rc.Name) ^ baseSeed
		rng := randutil.New(seed)

		rm := New(rc.Name, rc.Name, rc, balance, clock, rng, logger)
		rm.onVacate = reg.vacate
		reg.rooms[rm.ID] = rm
		reg.order = append(reg.order, rm.ID)

		reg.wg.Add(1)
		go func(rm *Room) {
			defer reg.wg.Done()
			rm.Run(ctx)
		}(rm)
	}

	return reg
}

// seedFromName derives a stable RNG seed from a room's configured name, so
// re-running the server with the same rooms.hcl and --seed replays the same
// shuffles without reaching for real randomness at startup.
func seedFromName(name string) int64 {
	var h int64 = 1469598103934665603
	for _, c := range name {
		h ^= int64(c)
		h *= 1099511628211
	}
	return h
}

// Join seats a player in the room named roomID, enforcing that a player
// holds at most one seat across the whole server.
func (reg *Registry) Join(playerID, displayName string, buyIn int, roomID string, conn Conn) error {
	reg.mu.Lock()
	if current, ok := reg.members[playerID]; ok {
		reg.mu.Unlock()
		return fmt.Errorf("already in room %q", current)
	}
	rm, ok := reg.rooms[roomID]
	if !ok {
		reg.mu.Unlock()
		return fmt.Errorf("no such room %q", roomID)
	}
	reg.members[playerID] = roomID
	reg.mu.Unlock()

	if err := rm.Join(playerID, displayName, buyIn, conn); err != nil {
		reg.vacate(playerID)
		return err
	}
	return nil
}

// RoomFor returns the room the player currently holds a seat in, if any.
func (reg *Registry) RoomFor(playerID string) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	id, ok := reg.members[playerID]
	if !ok {
		return nil, false
	}
	rm, ok := reg.rooms[id]
	return rm, ok
}

// vacate releases a player's one-room membership. Called by room actors
// whenever a seat is cleared (leave, bust, post-hand disconnect cleanup,
// quarantine, shutdown).
func (reg *Registry) vacate(playerID string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.members, playerID)
}

// Room returns the room registered under id, if any.
func (reg *Registry) Room(id string) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	rm, ok := reg.rooms[id]
	return rm, ok
}

// RoomSummary is the lobby-facing view of one pre-seeded room.
type RoomSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	SmallBlind int    `json:"small_blind"`
	BigBlind   int    `json:"big_blind"`
	BuyInMin   int    `json:"buy_in_min"`
	BuyInMax   int    `json:"buy_in_max"`
	MaxSeats   int    `json:"max_seats"`
	SeatsTaken int    `json:"seats_taken"`
}

// List returns a stable-ordered summary of every pre-seeded room.
func (reg *Registry) List() []RoomSummary {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	out := make([]RoomSummary, 0, len(reg.order))
	for _, id := range reg.order {
		rm := reg.rooms[id]
		out = append(out, RoomSummary{
			ID:         rm.ID,
			Name:       rm.Name,
			SmallBlind: rm.Config.SmallBlind,
			BigBlind:   rm.Config.BigBlind,
			BuyInMin:   rm.Config.BuyInMin,
			BuyInMax:   rm.Config.BuyInMax,
			MaxSeats:   rm.Config.MaxSeats,
			SeatsTaken: rm.SeatsTaken(),
		})
	}
	return out
}

// Shutdown cancels every room's actor loop, which drains each mailbox and
// refunds seated stacks, and waits up to the given timeout for them all to
// exit.
func (reg *Registry) Shutdown(timeout time.Duration) error {
	reg.cancel()
	done := make(chan struct{})
	go func() {
		reg.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("room registry: shutdown timed out after %s", timeout)
	}
}
