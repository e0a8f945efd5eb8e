package supply

import (
	"context"
	"sync"

	"github.com/samuraifrenchienft/music-legends-engine/internal/model"
)

// MemoryStore keeps all supply accounting in process memory behind
// one mutex, which makes the check-and-increment trivially atomic.
// It backs tests and single-process development; multi-worker
// deployments must use the MySQL store.
type MemoryStore struct {
	mu      sync.Mutex
	seasons map[string]model.SeasonState
	tiers   map[string]*model.TierCap   // key season|tier
	artists map[string]*model.ArtistCap // key season|tier|artist
}

// NewMemoryStore returns an empty in-memory supply store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		seasons: make(map[string]model.SeasonState),
		tiers:   make(map[string]*model.TierCap),
		artists: make(map[string]*model.ArtistCap),
	}
}

// PutSeason installs or updates a season's lifecycle state.
func (s *MemoryStore) PutSeason(seasonID string, state model.SeasonState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seasons[seasonID] = state
}

// SeasonState implements Store.
func (s *MemoryStore) SeasonState(_ context.Context, seasonID string) (model.SeasonState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.seasons[seasonID]
	if !ok {
		return "", ErrSeasonNotFound
	}
	return st, nil
}

// TierCap implements Store.
func (s *MemoryStore) TierCap(_ context.Context, seasonID string, tier model.Tier) (model.TierCap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tc, ok := s.tiers[tierKey(seasonID, tier)]
	if !ok {
		return model.TierCap{}, ErrTierNotConfigured
	}
	return *tc, nil
}

// ArtistCap implements Store.
func (s *MemoryStore) ArtistCap(_ context.Context, seasonID string, tier model.Tier, artistID string) (model.ArtistCap, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ac, ok := s.artists[artistKey(seasonID, tier, artistID)]
	if !ok {
		return model.ArtistCap{}, false, nil
	}
	return *ac, true, nil
}

// ReserveSlot implements Store.  The whole operation happens under
// one mutex hold, so either both counters advance or neither does.
func (s *MemoryStore) ReserveSlot(_ context.Context, seasonID string, tier model.Tier, artistID string, artistDefault uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.seasons[seasonID]
	if !ok {
		return ErrSeasonNotFound
	}
	if st != model.SeasonActive {
		return ErrSeasonInactive
	}

	tc, ok := s.tiers[tierKey(seasonID, tier)]
	if !ok {
		return ErrTierNotConfigured
	}
	if tc.CurrentCount >= tc.MaxCount {
		return ErrTierCapReached
	}

	if artistID != "" {
		key := artistKey(seasonID, tier, artistID)
		ac, ok := s.artists[key]
		if !ok {
			ac = &model.ArtistCap{SeasonID: seasonID, Tier: tier, ArtistID: artistID, MaxCount: artistDefault}
			s.artists[key] = ac
		}
		if ac.CurrentCount >= ac.MaxCount {
			return ErrArtistCapReached
		}
		ac.CurrentCount++
	}

	tc.CurrentCount++
	return nil
}

// TierCaps implements Store.
func (s *MemoryStore) TierCaps(_ context.Context, seasonID string) ([]model.TierCap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.TierCap
	for _, tier := range model.TiersDescending() {
		if tc, ok := s.tiers[tierKey(seasonID, tier)]; ok {
			out = append(out, *tc)
		}
	}
	return out, nil
}

// SeedTierCap implements Store.
func (s *MemoryStore) SeedTierCap(_ context.Context, seasonID string, tier model.Tier, max uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := tierKey(seasonID, tier)
	if _, ok := s.tiers[key]; ok {
		return nil
	}
	s.tiers[key] = &model.TierCap{SeasonID: seasonID, Tier: tier, MaxCount: max}
	return nil
}

// SeedArtistCap implements Store.
func (s *MemoryStore) SeedArtistCap(_ context.Context, seasonID string, tier model.Tier, artistID string, max uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := artistKey(seasonID, tier, artistID)
	if _, ok := s.artists[key]; ok {
		return nil
	}
	s.artists[key] = &model.ArtistCap{SeasonID: seasonID, Tier: tier, ArtistID: artistID, MaxCount: max}
	return nil
}

func tierKey(seasonID string, tier model.Tier) string {
	return seasonID + "|" + string(tier)
}

func artistKey(seasonID string, tier model.Tier, artistID string) string {
	return seasonID + "|" + string(tier) + "|" + artistID
}
