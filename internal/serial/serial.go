// Package serial issues gap-free, monotonically increasing print
// numbers per (season, tier).  Numbers are allocated with a Redis
// INCR so concurrent workers can never observe a duplicate, and a
// number is never reissued, not even after the card it was printed
// on is burned or the purchase refunded.
package serial

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/samuraifrenchienft/music-legends-engine/internal/model"
)

// Scarcity bands derived from a print number.  Low serials are worth
// more: the boundaries below mirror the collector market's view of
// "first prints".
const (
	ScarcityUltraPremium = "ultra_premium"
	ScarcityHighValue    = "high_value"
	ScarcityCollectible  = "collectible"
	ScarcityTradeable    = "tradeable"
)

// Allocator hands out serial numbers from per-(season, tier)
// counters in Redis.
type Allocator struct {
	rdb *redis.Client
}

// NewAllocator returns a serial allocator on the given Redis client.
func NewAllocator(rdb *redis.Client) *Allocator {
	return &Allocator{rdb: rdb}
}

// Next atomically increments the (season, tier) counter and returns
// the new value.  The first serial issued is 1.
func (a *Allocator) Next(ctx context.Context, season string, tier model.Tier) (uint64, error) {
	n, err := a.rdb.Incr(ctx, counterKey(season, tier)).Result()
	if err != nil {
		return 0, fmt.Errorf("serial next: %w", err)
	}
	return uint64(n), nil
}

// Current returns the last issued serial for (season, tier) without
// allocating.  Zero means nothing has been issued yet.
func (a *Allocator) Current(ctx context.Context, season string, tier model.Tier) (uint64, error) {
	n, err := a.rdb.Get(ctx, counterKey(season, tier)).Uint64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("serial current: %w", err)
	}
	return n, nil
}

// ScarcityLevel classifies a print number into its value band.  It
// is a pure function of the integer so callers can re-derive the
// band without touching storage.
func ScarcityLevel(serial uint64) string {
	switch {
	case serial <= 5:
		return ScarcityUltraPremium
	case serial <= 25:
		return ScarcityHighValue
	case serial <= 100:
		return ScarcityCollectible
	default:
		return ScarcityTradeable
	}
}

func counterKey(season string, tier model.Tier) string {
	return fmt.Sprintf("serial:%s:%s", season, tier)
}
