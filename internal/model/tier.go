package model

// Tier is a discrete rarity level of a card.  Tiers form a strict
// hierarchy used by the mint pipeline when a requested tier is
// exhausted: minting walks down one level at a time until a tier
// with remaining supply is found or the bottom tier is also full.
type Tier string

const (
	TierCommunity Tier = "community"
	TierGold      Tier = "gold"
	TierPlatinum  Tier = "platinum"
	TierLegendary Tier = "legendary"
)

// tierOrder lists tiers from most to least scarce.  The downgrade
// walk follows this order.
var tierOrder = []Tier{TierLegendary, TierPlatinum, TierGold, TierCommunity}

// ParseTier validates a raw tier string.  It returns the typed tier
// and true when the value names a known tier, or an empty tier and
// false otherwise.
func ParseTier(s string) (Tier, bool) {
	switch Tier(s) {
	case TierCommunity, TierGold, TierPlatinum, TierLegendary:
		return Tier(s), true
	}
	return "", false
}

// Valid reports whether t is one of the four known tiers.
func (t Tier) Valid() bool {
	_, ok := ParseTier(string(t))
	return ok
}

// Scarce reports whether per-artist caps apply to this tier.  Only
// the top two tiers are scarce; community and gold cards are capped
// globally but not per artist.
func (t Tier) Scarce() bool {
	return t == TierPlatinum || t == TierLegendary
}

// Downgrade returns the next tier below t.  The second return value
// is false when t is the bottom tier (community) and no further
// downgrade is possible.
func (t Tier) Downgrade() (Tier, bool) {
	for i, cur := range tierOrder {
		if cur == t && i+1 < len(tierOrder) {
			return tierOrder[i+1], true
		}
	}
	return "", false
}

// TiersDescending returns all tiers from legendary down to
// community.  Callers must not mutate the returned slice.
func TiersDescending() []Tier {
	return tierOrder
}
