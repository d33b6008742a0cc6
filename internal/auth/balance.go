package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Settlement describes one seat's net chip change at the end of a hand, to
// be persisted against the player's external balance. The (hand_id,
// player_id) pair is the store's idempotency key, so retrying an ambiguous
// failure is safe.
type Settlement struct {
	PlayerID string `json:"player_id"`
	RoomID   string `json:"room_id"`
	HandID   string `json:"hand_id"`
	Delta    int    `json:"delta"` // net chips won (positive) or lost (negative)
}

// BalanceAdapter loads a player's starting stack on join and persists
// settlements as hands complete. Implementations must tolerate the backing
// store being unavailable: a failed ApplySettlement must not block or crash
// the room actor, only be logged and retried out-of-band.
type BalanceAdapter interface {
	// LoadPlayer debits a buy-in and returns the chip stack the player is
	// seated with; the store may clamp the requested amount to the
	// player's durable balance.
	LoadPlayer(ctx context.Context, playerID string, requestedBuyIn int) (int, error)
	// ApplySettlement persists the outcome of a completed hand for one seat.
	ApplySettlement(ctx context.Context, s Settlement) error
	// OnJoin notifies the backing store that a player has taken a seat.
	OnJoin(ctx context.Context, playerID, roomID string, stack int)
	// OnLeave notifies the backing store that a player has left with a
	// final stack, to be credited back to their balance.
	OnLeave(ctx context.Context, playerID, roomID string, finalStack int)
}

const identityRequestTimeout = 2 * time.Second

// HTTPIdentityClient speaks to the external identity/balance service over
// JSON callbacks. The one client implements both SessionResolver and
// BalanceAdapter: session resolution, buy-in debits, leave credits, and
// hand settlements all go through the same endpoint shape, authenticated
// with a shared admin secret.
type HTTPIdentityClient struct {
	baseURL     string
	adminSecret string
	client      *http.Client
}

// NewHTTPIdentityClient creates a client rooted at baseURL.
func NewHTTPIdentityClient(baseURL, adminSecret string) *HTTPIdentityClient {
	return &HTTPIdentityClient{
		baseURL:     baseURL,
		adminSecret: adminSecret,
		client: &http.Client{
			Timeout: identityRequestTimeout,
		},
	}
}

// post sends one callback and decodes the reply into out (skipped when out
// is nil). A 401/403 maps to ErrSessionInvalid; anything else that is not
// a 200 maps to ErrStoreUnavailable, so callers branch with errors.Is
// instead of status codes.
func (c *HTTPIdentityClient) post(ctx context.Context, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, identityRequestTimeout)
	defer cancel()

	reqBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.adminSecret != "" {
		req.Header.Set("X-Admin-Secret", c.adminSecret)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrSessionInvalid
	default:
		return fmt.Errorf("%w: status %d", ErrStoreUnavailable, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	limited := io.LimitReader(resp.Body, 1<<20)
	if err := json.NewDecoder(limited).Decode(out); err != nil {
		return fmt.Errorf("%w: decode error: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// ResolveSession implements SessionResolver against the service's session
// table: the reply is the player profile the token was issued to,
// including the durable chip balance a join may buy in from.
func (c *HTTPIdentityClient) ResolveSession(ctx context.Context, token string) (*PlayerProfile, error) {
	if token == "" {
		return nil, ErrSessionInvalid
	}

	var profile PlayerProfile
	if err := c.post(ctx, "/sessions/resolve", map[string]any{"token": token}, &profile); err != nil {
		return nil, err
	}
	if profile.PlayerID == "" {
		// A 200 with no player is a revoked session, not an outage.
		return nil, ErrSessionInvalid
	}
	return &profile, nil
}

type loadPlayerResponse struct {
	Balance int `json:"balance"`
}

func (c *HTTPIdentityClient) LoadPlayer(ctx context.Context, playerID string, requestedBuyIn int) (int, error) {
	var resp loadPlayerResponse
	err := c.post(ctx, "/players/load", map[string]any{
		"player_id": playerID,
		"requested": requestedBuyIn,
	}, &resp)
	if err != nil {
		return 0, err
	}
	return resp.Balance, nil
}

func (c *HTTPIdentityClient) ApplySettlement(ctx context.Context, s Settlement) error {
	return c.post(ctx, "/settlements", s, nil)
}

func (c *HTTPIdentityClient) OnJoin(ctx context.Context, playerID, roomID string, stack int) {
	_ = c.post(ctx, "/players/join", map[string]any{
		"player_id": playerID,
		"room_id":   roomID,
		"stack":     stack,
	}, nil)
}

func (c *HTTPIdentityClient) OnLeave(ctx context.Context, playerID, roomID string, finalStack int) {
	_ = c.post(ctx, "/players/leave", map[string]any{
		"player_id":   playerID,
		"room_id":     roomID,
		"final_stack": finalStack,
	}, nil)
}

// InMemoryBalanceAdapter is a dependency-free fallback for dev/test runs
// where no external balance service is configured: every player starts with
// their full requested buy-in and settlements are retained in memory only.
type InMemoryBalanceAdapter struct {
	mu      sync.Mutex
	history []Settlement
}

// NewInMemoryBalanceAdapter creates a balance adapter with no external
// dependency.
func NewInMemoryBalanceAdapter() *InMemoryBalanceAdapter {
	return &InMemoryBalanceAdapter{}
}

func (a *InMemoryBalanceAdapter) LoadPlayer(ctx context.Context, playerID string, requestedBuyIn int) (int, error) {
	return requestedBuyIn, nil
}

func (a *InMemoryBalanceAdapter) ApplySettlement(ctx context.Context, s Settlement) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = append(a.history, s)
	return nil
}

func (a *InMemoryBalanceAdapter) OnJoin(ctx context.Context, playerID, roomID string, stack int) {}

func (a *InMemoryBalanceAdapter) OnLeave(ctx context.Context, playerID, roomID string, finalStack int) {
}

// Settlements returns a snapshot of every settlement recorded so far, for
// test assertions.
func (a *InMemoryBalanceAdapter) Settlements() []Settlement {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Settlement, len(a.history))
	copy(out, a.history)
	return out
}

// RetryingBalanceAdapter wraps another adapter and retries failed
// settlements with doubling backoff. Settlement writes are idempotent on
// the store side, keyed by (hand_id, player_id), so a retry after an
// ambiguous failure is safe. After the final attempt the error is logged
// for the operator; the hand's in-memory outcome stands regardless.
type RetryingBalanceAdapter struct {
	BalanceAdapter
	attempts int
	backoff  time.Duration
	logger   zerolog.Logger
}

// NewRetryingBalanceAdapter wraps inner with settlement retries.
func NewRetryingBalanceAdapter(inner BalanceAdapter, attempts int, backoff time.Duration, logger zerolog.Logger) *RetryingBalanceAdapter {
	return &RetryingBalanceAdapter{
		BalanceAdapter: inner,
		attempts:       attempts,
		backoff:        backoff,
		logger:         logger.With().Str("component", "balance").Logger(),
	}
}

func (a *RetryingBalanceAdapter) ApplySettlement(ctx context.Context, s Settlement) error {
	var err error
	delay := a.backoff
	for attempt := 1; attempt <= a.attempts; attempt++ {
		if err = a.BalanceAdapter.ApplySettlement(ctx, s); err == nil {
			return nil
		}
		if attempt < a.attempts {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
		}
	}
	a.logger.Error().Err(err).
		Str("player_id", s.PlayerID).
		Str("hand_id", s.HandID).
		Int("delta", s.Delta).
		Msg("settlement failed after retries, manual reconciliation required")
	return err
}
