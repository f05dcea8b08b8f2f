package engine

import (
	"errors"

	"github.com/romulus-oracle/romulus/callback"
	"github.com/romulus-oracle/romulus/core/chain"
	"github.com/romulus-oracle/romulus/registry"
	"github.com/romulus-oracle/romulus/seedring"
)

// These errors are produced by the engine's own validation and timing checks.
var (
	// ErrInvalidSpan is used when a requested span is outside [MinSpan, MaxSpan].
	ErrInvalidSpan = errors.New("span outside allowed range")

	// ErrSpanTooLarge is used when a span exceeds half the history window.
	ErrSpanTooLarge = errors.New("span exceeds half the history window")

	// ErrTooEarlyToReveal is used when the span plus grace period has not completed.
	ErrTooEarlyToReveal = errors.New("too early to reveal")

	// ErrTooEarlyToGenerateSeed is used when the refresh interval has not elapsed.
	ErrTooEarlyToGenerateSeed = errors.New("seed refresh interval not elapsed")

	// ErrNotOwner is used when a privileged operation is invoked by a non-owner.
	ErrNotOwner = errors.New("caller is not the owner")
)

// Conditions surfaced from collaborating components, re-exported so callers
// can branch on them with a single import.
var (
	ErrRequestNotFound  = registry.ErrRequestNotFound
	ErrHashUnavailable  = chain.ErrHashUnavailable
	ErrNotEnoughHistory = seedring.ErrNotEnoughHistory
	ErrNoValidSeeds     = seedring.ErrNoValidSeeds
	ErrInvalidSlot      = seedring.ErrInvalidSlot
	ErrInvalidBudget    = callback.ErrInvalidBudget
)
