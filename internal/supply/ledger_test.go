package supply

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samuraifrenchienft/music-legends-engine/internal/model"
)

// fakeSerials is an in-memory SerialSource for ledger tests.
type fakeSerials struct {
	mu       sync.Mutex
	counters map[string]*uint64
}

func newFakeSerials() *fakeSerials {
	return &fakeSerials{counters: make(map[string]*uint64)}
}

func (f *fakeSerials) Next(_ context.Context, season string, tier model.Tier) (uint64, error) {
	f.mu.Lock()
	key := season + ":" + string(tier)
	c, ok := f.counters[key]
	if !ok {
		c = new(uint64)
		f.counters[key] = c
	}
	f.mu.Unlock()
	return atomic.AddUint64(c, 1), nil
}

func newTestLedger(t *testing.T) (*Ledger, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	store.PutSeason("season-1", model.SeasonActive)
	ctx := context.Background()
	require.NoError(t, store.SeedTierCap(ctx, "season-1", model.TierLegendary, 500))
	require.NoError(t, store.SeedTierCap(ctx, "season-1", model.TierPlatinum, 2000))
	require.NoError(t, store.SeedTierCap(ctx, "season-1", model.TierGold, 10000))
	require.NoError(t, store.SeedTierCap(ctx, "season-1", model.TierCommunity, 100000))
	return NewLedger(store, newFakeSerials()), store
}

func TestMintConsumesSupplyAndAllocatesSerials(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	r1, err := l.Mint(ctx, "season-1", model.TierGold, "artist_1", "black_packs")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), r1.Serial)
	assert.Equal(t, "ultra_premium", r1.Scarcity)

	r2, err := l.Mint(ctx, "season-1", model.TierGold, "artist_2", "black_packs")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), r2.Serial)
}

func TestCanMintArtistCapScenario(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	chk, err := l.CanMint(ctx, "season-1", model.TierLegendary, "artist_42")
	require.NoError(t, err)
	assert.True(t, chk.Allowed)
	assert.Equal(t, uint64(100), chk.Remaining, "artist default cap bounds remaining")

	// Exhaust artist_42's legendary allocation.
	for i := 0; i < 100; i++ {
		_, err := l.Mint(ctx, "season-1", model.TierLegendary, "artist_42", "black_packs")
		require.NoError(t, err, "mint %d", i+1)
	}

	chk, err = l.CanMint(ctx, "season-1", model.TierLegendary, "artist_42")
	require.NoError(t, err)
	assert.False(t, chk.Allowed)
	assert.Equal(t, ReasonArtistCapReached, chk.Reason)

	_, err = l.Mint(ctx, "season-1", model.TierLegendary, "artist_42", "black_packs")
	require.ErrorIs(t, err, ErrCapExceeded)
	require.ErrorIs(t, err, ErrArtistCapReached)

	// A different artist still has room at the same tier.
	chk, err = l.CanMint(ctx, "season-1", model.TierLegendary, "artist_43")
	require.NoError(t, err)
	assert.True(t, chk.Allowed)
}

func TestTierCapNeverExceededConcurrently(t *testing.T) {
	store := NewMemoryStore()
	store.PutSeason("season-1", model.SeasonActive)
	ctx := context.Background()
	require.NoError(t, store.SeedTierCap(ctx, "season-1", model.TierGold, 50))
	l := NewLedger(store, newFakeSerials())

	const attempts = 200
	var successes int64
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := l.Mint(ctx, "season-1", model.TierGold, fmt.Sprintf("artist_%d", n%7), "drop")
			if err == nil {
				atomic.AddInt64(&successes, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(50), successes, "exactly the cap may be minted, never more")
	tc, err := store.TierCap(ctx, "season-1", model.TierGold)
	require.NoError(t, err)
	assert.Equal(t, tc.MaxCount, tc.CurrentCount)
}

func TestMintSeasonInactive(t *testing.T) {
	l, store := newTestLedger(t)
	ctx := context.Background()

	store.PutSeason("season-1", model.SeasonEnded)
	_, err := l.Mint(ctx, "season-1", model.TierGold, "artist_1", "black_packs")
	require.ErrorIs(t, err, ErrSeasonInactive)

	chk, err := l.CanMint(ctx, "season-1", model.TierGold, "artist_1")
	require.NoError(t, err)
	assert.False(t, chk.Allowed)
	assert.Equal(t, ReasonSeasonInactive, chk.Reason)
}

func TestMintUnconfiguredTierFailsClosed(t *testing.T) {
	store := NewMemoryStore()
	store.PutSeason("season-1", model.SeasonActive)
	l := NewLedger(store, newFakeSerials())
	ctx := context.Background()

	_, err := l.Mint(ctx, "season-1", model.TierGold, "artist_1", "black_packs")
	require.ErrorIs(t, err, ErrTierNotConfigured)
}

func TestNonScarceTierIgnoresArtistCaps(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	// Community and gold have no per-artist ceiling; one artist can
	// take far more than the scarce-tier default.
	for i := 0; i < 300; i++ {
		_, err := l.Mint(ctx, "season-1", model.TierGold, "artist_42", "drop")
		require.NoError(t, err)
	}
}

func TestStatus(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	for i := 0; i < 250; i++ {
		_, err := l.Mint(ctx, "season-1", model.TierLegendary, fmt.Sprintf("artist_%d", i%50), "drop")
		require.NoError(t, err)
	}

	sts, err := l.Status(ctx, "season-1")
	require.NoError(t, err)
	require.Len(t, sts, 4)
	assert.Equal(t, model.TierLegendary, sts[0].Tier)
	assert.Equal(t, uint64(250), sts[0].Current)
	assert.Equal(t, uint64(250), sts[0].Remaining)
	assert.InDelta(t, 50.0, sts[0].Percentage, 0.001)
}
