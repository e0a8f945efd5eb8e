package mint

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samuraifrenchienft/music-legends-engine/internal/events"
	"github.com/samuraifrenchienft/music-legends-engine/internal/model"
	"github.com/samuraifrenchienft/music-legends-engine/internal/purchase"
	"github.com/samuraifrenchienft/music-legends-engine/internal/supply"
)

// memCards is an in-memory CardStore. Setting createErr makes Create
// fail, standing in for a database outage.
type memCards struct {
	mu        sync.Mutex
	nextID    uint64
	cards     map[uint64]*model.Card
	createErr error
}

func newMemCards() *memCards { return &memCards{cards: make(map[uint64]*model.Card)} }

func (m *memCards) Create(_ context.Context, c model.Card) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return 0, m.createErr
	}
	m.nextID++
	c.ID = m.nextID
	c.CreatedAt = time.Now().UTC()
	m.cards[c.ID] = &c
	return c.ID, nil
}

func (m *memCards) Get(_ context.Context, id uint64) (*model.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cards[id]
	if !ok {
		return nil, purchase.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memCards) Burn(_ context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	m.cards[id].BurnedAt = &now
	return nil
}

func (m *memCards) Transfer(_ context.Context, id, newOwnerID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cards[id].OwnerID = &newOwnerID
	return nil
}

func (m *memCards) Revoke(_ context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cards[id].OwnerID = nil
	return nil
}

// memSerials is a per-(season, tier) atomic counter.
type memSerials struct {
	mu       sync.Mutex
	counters map[string]*uint64
}

func (m *memSerials) Next(_ context.Context, season string, tier model.Tier) (uint64, error) {
	m.mu.Lock()
	key := season + ":" + string(tier)
	c, ok := m.counters[key]
	if !ok {
		c = new(uint64)
		m.counters[key] = c
	}
	m.mu.Unlock()
	return atomic.AddUint64(c, 1), nil
}

// capturePublisher records published events.
type capturePublisher struct {
	mu     sync.Mutex
	events []events.CardMinted
}

func (p *capturePublisher) PublishCardMinted(_ context.Context, ev events.CardMinted) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

type fixture struct {
	pipeline  *Pipeline
	store     *supply.MemoryStore
	purchases purchase.Store
	cards     *memCards
	published *capturePublisher
}

func newFixture(t *testing.T, caps map[model.Tier]uint64) *fixture {
	t.Helper()
	store := supply.NewMemoryStore()
	store.PutSeason("season-1", model.SeasonActive)
	ctx := context.Background()
	for tier, max := range caps {
		require.NoError(t, store.SeedTierCap(ctx, "season-1", tier, max))
	}
	ledger := supply.NewLedger(store, &memSerials{counters: make(map[string]*uint64)})
	purchases := purchase.NewMemoryStore()
	cards := newMemCards()
	pub := &capturePublisher{}
	return &fixture{
		pipeline:  NewPipeline(ledger, purchases, cards, pub),
		store:     store,
		purchases: purchases,
		cards:     cards,
		published: pub,
	}
}

func (f *fixture) claim(t *testing.T, key string, userID uint64) {
	t.Helper()
	_, _, err := f.purchases.Claim(context.Background(), model.PurchaseRecord{
		IdempotencyKey: key, UserID: userID, ProductKey: "black_packs",
	})
	require.NoError(t, err)
}

func mintJobRaw(t *testing.T, key string, userID uint64, tier model.Tier, artist string) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(purchase.MintJob{
		IdempotencyKey: key,
		UserID:         userID,
		ProductKey:     "black_packs",
		Tier:           tier,
		ArtistID:       artist,
		Source:         "black_packs",
		SeasonID:       "season-1",
	})
	require.NoError(t, err)
	return raw
}

func TestProcessMintDelivers(t *testing.T) {
	f := newFixture(t, map[model.Tier]uint64{
		model.TierLegendary: 10, model.TierCommunity: 10,
	})
	ctx := context.Background()
	f.claim(t, "K1", 7)

	require.NoError(t, f.pipeline.ProcessMint(ctx, mintJobRaw(t, "K1", 7, model.TierLegendary, "artist_42")))

	rec, err := f.purchases.Get(ctx, "K1")
	require.NoError(t, err)
	assert.Equal(t, model.PurchaseDelivered, rec.Status)
	require.NotNil(t, rec.CardID)

	card, err := f.cards.Get(ctx, *rec.CardID)
	require.NoError(t, err)
	assert.Equal(t, model.TierLegendary, card.Tier)
	assert.Equal(t, uint64(1), card.Serial)
	assert.Equal(t, "ultra_premium", card.Scarcity)
	require.NotNil(t, card.OwnerID)
	assert.Equal(t, uint64(7), *card.OwnerID)

	require.Len(t, f.published.events, 1)
	assert.Equal(t, "legendary", f.published.events[0].Tier)
}

func TestProcessMintIdempotentOnRedelivery(t *testing.T) {
	f := newFixture(t, map[model.Tier]uint64{
		model.TierLegendary: 10, model.TierCommunity: 10,
	})
	ctx := context.Background()
	f.claim(t, "K1", 7)
	raw := mintJobRaw(t, "K1", 7, model.TierLegendary, "artist_42")

	require.NoError(t, f.pipeline.ProcessMint(ctx, raw))
	// Crash between complete and ack: the same message arrives again.
	require.NoError(t, f.pipeline.ProcessMint(ctx, raw))

	assert.Len(t, f.cards.cards, 1, "exactly one mint side effect per key")
	assert.Len(t, f.published.events, 1)
	tc, err := f.store.TierCap(ctx, "season-1", model.TierLegendary)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), tc.CurrentCount)
}

func TestProcessMintDowngradesThroughHierarchy(t *testing.T) {
	f := newFixture(t, map[model.Tier]uint64{
		model.TierLegendary: 0,
		model.TierPlatinum:  0,
		model.TierGold:      1,
		model.TierCommunity: 10,
	})
	ctx := context.Background()
	f.claim(t, "K1", 7)

	require.NoError(t, f.pipeline.ProcessMint(ctx, mintJobRaw(t, "K1", 7, model.TierLegendary, "artist_42")))

	rec, err := f.purchases.Get(ctx, "K1")
	require.NoError(t, err)
	require.NotNil(t, rec.CardID)
	card, err := f.cards.Get(ctx, *rec.CardID)
	require.NoError(t, err)
	assert.Equal(t, model.TierGold, card.Tier, "first tier with room wins")

	ev := f.published.events[0]
	assert.Equal(t, "legendary", ev.RequestedTier)
	assert.Equal(t, "gold", ev.Tier)
}

func TestProcessMintExhaustedFailsPurchase(t *testing.T) {
	f := newFixture(t, map[model.Tier]uint64{
		model.TierLegendary: 0,
		model.TierPlatinum:  0,
		model.TierGold:      0,
		model.TierCommunity: 0,
	})
	ctx := context.Background()
	f.claim(t, "K1", 7)

	// Exhaustion is a settled outcome, not a retryable handler error.
	require.NoError(t, f.pipeline.ProcessMint(ctx, mintJobRaw(t, "K1", 7, model.TierLegendary, "artist_42")))

	rec, err := f.purchases.Get(ctx, "K1")
	require.NoError(t, err)
	assert.Equal(t, model.PurchaseFailed, rec.Status)
	assert.Contains(t, rec.FailureReason, "exhausted")
	assert.Empty(t, f.cards.cards)
	assert.Empty(t, f.published.events)
}

func TestProcessMintInactiveSeasonFailsPurchase(t *testing.T) {
	f := newFixture(t, map[model.Tier]uint64{model.TierCommunity: 10})
	f.store.PutSeason("season-1", model.SeasonEnded)
	ctx := context.Background()
	f.claim(t, "K1", 7)

	require.NoError(t, f.pipeline.ProcessMint(ctx, mintJobRaw(t, "K1", 7, model.TierCommunity, "artist_1")))

	rec, err := f.purchases.Get(ctx, "K1")
	require.NoError(t, err)
	assert.Equal(t, model.PurchaseFailed, rec.Status)
}

func TestProcessMintCardWriteFailureRetries(t *testing.T) {
	f := newFixture(t, map[model.Tier]uint64{model.TierLegendary: 10})
	ctx := context.Background()
	f.claim(t, "K1", 7)
	raw := mintJobRaw(t, "K1", 7, model.TierLegendary, "artist_42")

	f.cards.createErr = errors.New("db gone")
	require.Error(t, f.pipeline.ProcessMint(ctx, raw))

	// The purchase stays pending for the retry; the slot and serial
	// taken by the failed attempt stay consumed.
	rec, err := f.purchases.Get(ctx, "K1")
	require.NoError(t, err)
	assert.Equal(t, model.PurchasePending, rec.Status)
	tc, err := f.store.TierCap(ctx, "season-1", model.TierLegendary)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), tc.CurrentCount)

	f.cards.createErr = nil
	require.NoError(t, f.pipeline.ProcessMint(ctx, raw))

	rec, err = f.purchases.Get(ctx, "K1")
	require.NoError(t, err)
	assert.Equal(t, model.PurchaseDelivered, rec.Status)
	require.NotNil(t, rec.CardID)
	card, err := f.cards.Get(ctx, *rec.CardID)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), card.Serial, "the retry draws a fresh serial")
}

func TestProcessBurnKeepsSerialConsumed(t *testing.T) {
	f := newFixture(t, map[model.Tier]uint64{
		model.TierLegendary: 10, model.TierCommunity: 10,
	})
	ctx := context.Background()
	f.claim(t, "K1", 7)
	require.NoError(t, f.pipeline.ProcessMint(ctx, mintJobRaw(t, "K1", 7, model.TierLegendary, "artist_42")))

	rec, _ := f.purchases.Get(ctx, "K1")
	raw, _ := json.Marshal(BurnJob{CardID: *rec.CardID})
	require.NoError(t, f.pipeline.ProcessBurn(ctx, raw))
	// Redelivery settles as a no-op.
	require.NoError(t, f.pipeline.ProcessBurn(ctx, raw))

	card, err := f.cards.Get(ctx, *rec.CardID)
	require.NoError(t, err)
	assert.NotNil(t, card.BurnedAt)

	// The burned card's serial is never reissued.
	f.claim(t, "K2", 8)
	require.NoError(t, f.pipeline.ProcessMint(ctx, mintJobRaw(t, "K2", 8, model.TierLegendary, "artist_42")))
	rec2, _ := f.purchases.Get(ctx, "K2")
	card2, err := f.cards.Get(ctx, *rec2.CardID)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), card2.Serial)
}

func TestProcessTrade(t *testing.T) {
	f := newFixture(t, map[model.Tier]uint64{
		model.TierGold: 10, model.TierCommunity: 10,
	})
	ctx := context.Background()
	f.claim(t, "K1", 7)
	require.NoError(t, f.pipeline.ProcessMint(ctx, mintJobRaw(t, "K1", 7, model.TierGold, "artist_1")))
	rec, _ := f.purchases.Get(ctx, "K1")

	raw, _ := json.Marshal(TradeJob{CardID: *rec.CardID, FromUserID: 7, ToUserID: 9})
	require.NoError(t, f.pipeline.ProcessTrade(ctx, raw))
	// Redelivered trade observes the new owner and settles.
	require.NoError(t, f.pipeline.ProcessTrade(ctx, raw))

	card, err := f.cards.Get(ctx, *rec.CardID)
	require.NoError(t, err)
	require.NotNil(t, card.OwnerID)
	assert.Equal(t, uint64(9), *card.OwnerID)

	// A trade from the wrong holder is rejected.
	raw, _ = json.Marshal(TradeJob{CardID: *rec.CardID, FromUserID: 7, ToUserID: 11})
	assert.ErrorIs(t, f.pipeline.ProcessTrade(ctx, raw), ErrValidation)
}
