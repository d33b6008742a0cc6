// Package randutil centralizes deterministic RNG construction so every
// call site that needs a seeded source (deck shuffles in tests, the room
// registry's per-room RNGs) gets the same reproducible sequence from an int64
// seed, using the math/rand source poker.NewDeck and game.NewHandState
// are built against.
package randutil

import "math/rand"

// New returns a *rand.Rand seeded deterministically from the provided
// int64. Centralising this means every test that wants a reproducible
// shuffle goes through the same seeding path rather than re-deriving one.
func New(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}
