// Package auth connects the room server to its external identity service:
// session tokens are resolved to player profiles before a connection may
// touch a room, and hand outcomes are settled back against durable player
// balances. One HTTP callback client covers both concerns against the real
// service; in-memory stand-ins cover development and tests.
package auth

import (
	"context"
	"errors"
)

var (
	// ErrSessionInvalid indicates the token does not belong to any live
	// session; the connection must authenticate again.
	ErrSessionInvalid = errors.New("auth: session invalid")

	// ErrStoreUnavailable indicates the identity service could not be
	// asked; the operation may be retried.
	ErrStoreUnavailable = errors.New("auth: identity store unavailable")
)

// PlayerProfile is the durable identity behind a session: who the player
// is and how many chips their account holds before any buy-in.
type PlayerProfile struct {
	PlayerID    string `json:"player_id"`
	DisplayName string `json:"display_name"`
	Balance     int    `json:"balance"`
}

// SessionResolver exchanges a session token for the profile it was issued
// to. Implementations return ErrSessionInvalid for tokens the identity
// service rejects and ErrStoreUnavailable when it cannot be reached.
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (*PlayerProfile, error)
}

// DevSessionResolver accepts any non-empty token and uses it as both the
// player id and display name, so a local server can be driven without a
// running identity service.
type DevSessionResolver struct{}

// NewDevSessionResolver creates a resolver for token-free development.
func NewDevSessionResolver() *DevSessionResolver {
	return &DevSessionResolver{}
}

func (*DevSessionResolver) ResolveSession(ctx context.Context, token string) (*PlayerProfile, error) {
	if token == "" {
		return nil, ErrSessionInvalid
	}
	return &PlayerProfile{PlayerID: token, DisplayName: token}, nil
}
