package model

// TierCap tracks the global mint ceiling for one (season, tier)
// pair.  The invariant CurrentCount <= MaxCount must hold at every
// point in time; the storage layer enforces it with an atomic
// increment-below-ceiling rather than a read-modify-write.
//
// Fields:
//  SeasonID     – owning season.
//  Tier         – rarity tier this cap applies to.
//  MaxCount     – maximum number of cards ever minted at this tier.
//  CurrentCount – number minted so far; never decremented, not even
//                 when a card is burned or a purchase refunded.
type TierCap struct {
	SeasonID     string // tier_caps.season_id
	Tier         Tier   // tier_caps.tier
	MaxCount     uint64 // tier_caps.max_count
	CurrentCount uint64 // tier_caps.current_count
}

// ArtistCap tracks the per-artist ceiling for a scarce tier.  Only
// platinum and legendary mints consume artist slots.
//
// Fields mirror TierCap with the artist dimension added.
type ArtistCap struct {
	SeasonID     string // artist_caps.season_id
	Tier         Tier   // artist_caps.tier
	ArtistID     string // artist_caps.artist_id
	MaxCount     uint64 // artist_caps.max_count
	CurrentCount uint64 // artist_caps.current_count
}

// TierStatus is the read-only view of one tier's supply returned by
// the supply status API.
type TierStatus struct {
	Tier       Tier    `json:"tier"`
	Current    uint64  `json:"current"`
	Max        uint64  `json:"max"`
	Remaining  uint64  `json:"remaining"`
	Percentage float64 `json:"percentage"`
}
