package model

import "time"

// Card is a minted collectible.  A card row is immutable once
// created: the serial, tier, artist and season never change.
// Revocation (refund) and burning clear ownership or mark the card
// burned but never free the serial number and never decrement the
// supply counters that were consumed by the mint.
//
// Fields:
//  ID         – primary key identifier.
//  Serial     – print number, unique within (season, tier).
//  Tier       – rarity tier the card was minted at (post-downgrade).
//  ArtistID   – artist attribution.
//  SeasonID   – season the card belongs to.
//  PackSource – which pack/drop produced the card (e.g. "black_packs").
//  OwnerID    – current owner; nil after revocation.
//  Scarcity   – scarcity band derived from the serial at mint time.
//  BurnedAt   – when the card was burned (nil while live).
//  CreatedAt  – mint timestamp.
type Card struct {
	ID         uint64     // cards.id
	Serial     uint64     // cards.serial
	Tier       Tier       // cards.tier
	ArtistID   string     // cards.artist_id
	SeasonID   string     // cards.season_id
	PackSource string     // cards.pack_source
	OwnerID    *uint64    // cards.owner_id (nullable)
	Scarcity   string     // cards.scarcity
	BurnedAt   *time.Time // cards.burned_at (nullable)
	CreatedAt  time.Time  // cards.created_at
}
