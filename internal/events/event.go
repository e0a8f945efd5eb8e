// Package events defines the messages this service publishes to the
// broker and the background consumer that records them.
package events

// CardMinted is published after a card has been minted and its
// purchase marked delivered.  It carries enough for downstream
// consumers (presentation overlays, notifications, analytics) to act
// without querying the primary database.
type CardMinted struct {
	CardID         uint64 `json:"card_id"`
	Serial         uint64 `json:"serial_number"`
	Tier           string `json:"tier"`
	RequestedTier  string `json:"requested_tier"`
	ArtistID       string `json:"artist_id"`
	SeasonID       string `json:"season_id"`
	PackSource     string `json:"pack_source"`
	OwnerID        uint64 `json:"owner_id"`
	Scarcity       string `json:"scarcity_level"`
	IdempotencyKey string `json:"idempotency_key"`
	MintedAt       string `json:"minted_at"`
}
