package supply

import (
	"context"
	"fmt"
	"log"

	"github.com/samuraifrenchienft/music-legends-engine/internal/model"
	"github.com/samuraifrenchienft/music-legends-engine/internal/serial"
)

// SerialSource issues print numbers.  Satisfied by
// serial.Allocator; tests substitute an in-memory counter.
type SerialSource interface {
	Next(ctx context.Context, season string, tier model.Tier) (uint64, error)
}

// DefaultArtistCaps are the per-artist ceilings applied to scarce
// tiers when no explicit cap was seeded for an artist.
var DefaultArtistCaps = map[model.Tier]uint64{
	model.TierLegendary: 100,
	model.TierPlatinum:  250,
}

// MintResult describes one successfully consumed supply slot.
type MintResult struct {
	Serial   uint64     `json:"serial_number"`
	Tier     model.Tier `json:"tier"`
	Scarcity string     `json:"scarcity_level"`
}

// Ledger is the supply authority.  It answers feasibility queries,
// consumes slots, and hands out serials for consumed slots.  It
// fails closed: an inactive season, a missing cap row or an
// exhausted ceiling all deny the mint.
type Ledger struct {
	store      Store
	serials    SerialSource
	artistCaps map[model.Tier]uint64
}

// NewLedger builds a ledger over the given store and serial source.
func NewLedger(store Store, serials SerialSource) *Ledger {
	return &Ledger{store: store, serials: serials, artistCaps: DefaultArtistCaps}
}

// CanMint reports whether one card could currently be minted at
// (tier, artist) without consuming anything.  The answer is advisory
// under concurrency; Mint re-validates atomically.
func (l *Ledger) CanMint(ctx context.Context, seasonID string, tier model.Tier, artistID string) (CapCheck, error) {
	st, err := l.store.SeasonState(ctx, seasonID)
	if err != nil {
		return CapCheck{}, err
	}
	if st != model.SeasonActive {
		return CapCheck{Reason: ReasonSeasonInactive}, nil
	}

	tc, err := l.store.TierCap(ctx, seasonID, tier)
	if err == ErrTierNotConfigured {
		return CapCheck{Reason: ReasonTierNotConfigured}, nil
	}
	if err != nil {
		return CapCheck{}, err
	}
	if tc.CurrentCount >= tc.MaxCount {
		return CapCheck{Reason: ReasonTierCapReached}, nil
	}
	remaining := tc.MaxCount - tc.CurrentCount

	if tier.Scarce() {
		ac, found, err := l.store.ArtistCap(ctx, seasonID, tier, artistID)
		if err != nil {
			return CapCheck{}, err
		}
		max := l.artistCaps[tier]
		var cur uint64
		if found {
			max, cur = ac.MaxCount, ac.CurrentCount
		}
		if cur >= max {
			return CapCheck{Reason: ReasonArtistCapReached}, nil
		}
		if artistLeft := max - cur; artistLeft < remaining {
			remaining = artistLeft
		}
	}

	return CapCheck{Allowed: true, Remaining: remaining}, nil
}

// Mint consumes one supply slot at (tier, artist) and allocates its
// serial.  The cap check and counter increment happen as one atomic
// storage operation; callers handling ErrCapExceeded may retry at a
// lower tier.  Counters consumed by a successful reserve are never
// returned to the pool.
func (l *Ledger) Mint(ctx context.Context, seasonID string, tier model.Tier, artistID, source string) (*MintResult, error) {
	if !tier.Valid() {
		return nil, fmt.Errorf("unknown tier %q", tier)
	}
	scopedArtist := ""
	if tier.Scarce() {
		scopedArtist = artistID
	}
	if err := l.store.ReserveSlot(ctx, seasonID, tier, scopedArtist, l.artistCaps[tier]); err != nil {
		return nil, err
	}

	n, err := l.serials.Next(ctx, seasonID, tier)
	if err != nil {
		// The slot is consumed and, by design, never refunded; the
		// mint surfaces the failure instead of producing a card with
		// no serial.
		log.Printf("supply: serial allocation failed after reserve (season=%s tier=%s source=%s): %v",
			seasonID, tier, source, err)
		return nil, fmt.Errorf("allocate serial: %w", err)
	}

	return &MintResult{Serial: n, Tier: tier, Scarcity: serial.ScarcityLevel(n)}, nil
}

// Status returns the per-tier supply view for a season.
func (l *Ledger) Status(ctx context.Context, seasonID string) ([]model.TierStatus, error) {
	caps, err := l.store.TierCaps(ctx, seasonID)
	if err != nil {
		return nil, err
	}
	out := make([]model.TierStatus, 0, len(caps))
	for _, tc := range caps {
		st := model.TierStatus{
			Tier:    tc.Tier,
			Current: tc.CurrentCount,
			Max:     tc.MaxCount,
		}
		if tc.MaxCount > tc.CurrentCount {
			st.Remaining = tc.MaxCount - tc.CurrentCount
		}
		if tc.MaxCount > 0 {
			st.Percentage = float64(tc.CurrentCount) / float64(tc.MaxCount) * 100
		}
		out = append(out, st)
	}
	return out, nil
}

// Seed installs the standard cap rows for a new season.
func (l *Ledger) Seed(ctx context.Context, seasonID string, caps map[model.Tier]uint64) error {
	for tier, max := range caps {
		if err := l.store.SeedTierCap(ctx, seasonID, tier, max); err != nil {
			return fmt.Errorf("seed %s cap: %w", tier, err)
		}
	}
	return nil
}

// SeedArtist installs an explicit per-artist cap, overriding the
// tier default the first reservation would otherwise create.
func (l *Ledger) SeedArtist(ctx context.Context, seasonID string, tier model.Tier, artistID string, max uint64) error {
	if err := l.store.SeedArtistCap(ctx, seasonID, tier, artistID, max); err != nil {
		return fmt.Errorf("seed artist cap %s/%s: %w", tier, artistID, err)
	}
	return nil
}
