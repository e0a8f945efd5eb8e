// Package supply enforces global and per-artist scarcity caps for
// card minting.  Every mint consumes one slot from the (season, tier)
// ceiling and, for scarce tiers, one slot from the (season, tier,
// artist) ceiling.  The check and the increment are one atomic unit
// in every backend: two concurrent callers can never both win the
// last remaining slot.
package supply

import (
	"context"
	"errors"
	"fmt"

	"github.com/samuraifrenchienft/music-legends-engine/internal/model"
)

// ErrCapExceeded signals that a tier or artist ceiling is reached.
// It is recoverable locally: the mint pipeline absorbs it by walking
// down the tier hierarchy.
var ErrCapExceeded = errors.New("supply: cap exceeded")

// ErrTierCapReached and ErrArtistCapReached narrow ErrCapExceeded to
// the exhausted scope.  Both satisfy errors.Is(err, ErrCapExceeded).
var (
	ErrTierCapReached   = fmt.Errorf("%w: tier ceiling reached", ErrCapExceeded)
	ErrArtistCapReached = fmt.Errorf("%w: artist ceiling reached", ErrCapExceeded)
)

// ErrSeasonInactive is fatal for the requested mint: only an active
// season may produce cards.  It is never absorbed by the downgrade
// walk because no tier of an inactive season can mint.
var ErrSeasonInactive = errors.New("supply: season not active")

// ErrSeasonNotFound is returned for an unknown season id.
var ErrSeasonNotFound = errors.New("supply: season not found")

// ErrTierNotConfigured is returned when a season has no cap row for
// the requested tier.  Minting fails closed rather than assuming an
// unlimited ceiling.
var ErrTierNotConfigured = errors.New("supply: tier not configured for season")

// Store is the persistence backend for supply accounting.  Two
// implementations exist: MySQL for production and an in-memory store
// for tests and single-process development.  The backend is selected
// by configuration.
type Store interface {
	// SeasonState returns the lifecycle state of a season.
	SeasonState(ctx context.Context, seasonID string) (model.SeasonState, error)

	// TierCap returns the cap row for (season, tier).
	TierCap(ctx context.Context, seasonID string, tier model.Tier) (model.TierCap, error)

	// ArtistCap returns the cap row for (season, tier, artist).  When
	// no row exists yet the second return value is false and callers
	// should assume the supplied default ceiling with zero minted.
	ArtistCap(ctx context.Context, seasonID string, tier model.Tier, artistID string) (model.ArtistCap, bool, error)

	// ReserveSlot atomically checks the season is active and
	// increments the tier counter (and, when artistID is non-empty,
	// the artist counter) if and only if every counter is below its
	// ceiling.  Either all counters advance or none do.  A missing
	// artist row is created on first use with artistDefault as its
	// ceiling.
	ReserveSlot(ctx context.Context, seasonID string, tier model.Tier, artistID string, artistDefault uint64) error

	// TierCaps returns all cap rows for a season.
	TierCaps(ctx context.Context, seasonID string) ([]model.TierCap, error)

	// SeedTierCap and SeedArtistCap install ceilings when a season is
	// created.  Seeding an existing row is a no-op.
	SeedTierCap(ctx context.Context, seasonID string, tier model.Tier, max uint64) error
	SeedArtistCap(ctx context.Context, seasonID string, tier model.Tier, artistID string, max uint64) error
}

// Reasons reported by CanMint when minting is denied.
const (
	ReasonSeasonInactive    = "season_inactive"
	ReasonTierCapReached    = "tier_cap_reached"
	ReasonArtistCapReached  = "artist_cap_reached"
	ReasonTierNotConfigured = "tier_not_configured"
)

// CapCheck is the result of a read-only mint feasibility check.
type CapCheck struct {
	Allowed   bool   `json:"can_mint"`
	Reason    string `json:"reason,omitempty"`
	Remaining uint64 `json:"remaining"`
}
