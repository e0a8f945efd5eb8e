// Package mint composes the supply ledger, serial allocator and
// purchase store into the one canonical card-producing operation,
// including the tier-downgrade-on-exhaustion policy.
package mint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/samuraifrenchienft/music-legends-engine/internal/events"
	"github.com/samuraifrenchienft/music-legends-engine/internal/model"
	"github.com/samuraifrenchienft/music-legends-engine/internal/purchase"
	"github.com/samuraifrenchienft/music-legends-engine/internal/supply"
)

// ErrSupplyExhausted is returned when every tier from the requested
// one down to community is at its ceiling.  The system never
// oversupplies to make a drop work; the slot simply fails.
var ErrSupplyExhausted = errors.New("mint: supply exhausted at every tier")

// ErrValidation marks malformed jobs (unknown tier, missing key).
var ErrValidation = errors.New("mint: validation failed")

// CardStore is the card persistence the pipeline needs.  Satisfied
// by repository.CardRepo; tests substitute an in-memory fake.
type CardStore interface {
	Create(ctx context.Context, c model.Card) (uint64, error)
	Get(ctx context.Context, id uint64) (*model.Card, error)
	Burn(ctx context.Context, id uint64) error
	Transfer(ctx context.Context, id, newOwnerID uint64) error
	Revoke(ctx context.Context, id uint64) error
}

// MintedPublisher fans a successful mint out to the broker.  A nil
// publisher disables fanout; publish failures never fail the mint.
type MintedPublisher interface {
	PublishCardMinted(ctx context.Context, ev events.CardMinted) error
}

// Pipeline turns approved purchases into cards.
type Pipeline struct {
	ledger    *supply.Ledger
	purchases purchase.Store
	cards     CardStore
	publisher MintedPublisher
}

// NewPipeline builds a mint pipeline.  publisher may be nil.
func NewPipeline(ledger *supply.Ledger, purchases purchase.Store, cards CardStore, publisher MintedPublisher) *Pipeline {
	return &Pipeline{ledger: ledger, purchases: purchases, cards: cards, publisher: publisher}
}

// MintWithDowngrade consumes one supply slot starting at the
// requested tier and walking legendary→platinum→gold→community when
// a ceiling is hit.  The cap check and increment at each step are
// atomic in the ledger, so the walk never oversupplies; when even
// community is exhausted it returns ErrSupplyExhausted.  A tier the
// season never configured is treated the same as an exhausted one.
func (p *Pipeline) MintWithDowngrade(ctx context.Context, seasonID string, tier model.Tier, artistID, source string) (*supply.MintResult, error) {
	if !tier.Valid() {
		return nil, fmt.Errorf("%w: unknown tier %q", ErrValidation, tier)
	}
	for {
		res, err := p.ledger.Mint(ctx, seasonID, tier, artistID, source)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, supply.ErrCapExceeded) && !errors.Is(err, supply.ErrTierNotConfigured) {
			return nil, err
		}
		next, ok := tier.Downgrade()
		if !ok {
			return nil, ErrSupplyExhausted
		}
		tier = next
	}
}

// ProcessMint fulfills one queued mint job.  It is idempotent under
// redelivery: a purchase already settled (delivered, failed or
// refunded) is left untouched.  Exhausted supply and an inactive
// season settle the purchase as failed, so paid money is surfaced
// for compensating action rather than silently dropped.
// Infrastructure errors propagate so the queue retries the job.
func (p *Pipeline) ProcessMint(ctx context.Context, raw json.RawMessage) error {
	var job purchase.MintJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return fmt.Errorf("%w: decode mint job: %v", ErrValidation, err)
	}
	if job.IdempotencyKey == "" {
		return fmt.Errorf("%w: mint job without idempotency key", ErrValidation)
	}

	rec, err := p.purchases.Get(ctx, job.IdempotencyKey)
	if err != nil {
		return fmt.Errorf("load purchase %s: %w", job.IdempotencyKey, err)
	}
	if rec.Status != model.PurchasePending {
		// Redelivered after a crash between completion and ack.
		return nil
	}

	res, err := p.MintWithDowngrade(ctx, job.SeasonID, job.Tier, job.ArtistID, job.Source)
	if err != nil {
		switch {
		case errors.Is(err, ErrSupplyExhausted):
			return p.settleFailed(ctx, job.IdempotencyKey, "supply exhausted at every tier")
		case errors.Is(err, supply.ErrSeasonInactive):
			return p.settleFailed(ctx, job.IdempotencyKey, "season not active")
		case errors.Is(err, supply.ErrSeasonNotFound), errors.Is(err, ErrValidation):
			return p.settleFailed(ctx, job.IdempotencyKey, err.Error())
		default:
			return err
		}
	}

	owner := job.UserID
	cardID, err := p.cards.Create(ctx, model.Card{
		Serial:     res.Serial,
		Tier:       res.Tier,
		ArtistID:   job.ArtistID,
		SeasonID:   job.SeasonID,
		PackSource: job.Source,
		OwnerID:    &owner,
		Scarcity:   res.Scarcity,
	})
	if err != nil {
		// The slot and serial are consumed; surface the error so the
		// job retries, and rely on the pending status check above to
		// keep the retry from double-minting once the card row lands.
		// Each retry that fails here burns another slot, so the log
		// line below is what an operator watches during a DB outage.
		log.Printf("mint: persist card for %s failed, slot %s/%s serial %d consumed: %v",
			job.IdempotencyKey, job.SeasonID, res.Tier, res.Serial, err)
		return fmt.Errorf("persist card: %w", err)
	}

	if err := p.purchases.MarkDelivered(ctx, job.IdempotencyKey, cardID); err != nil {
		return fmt.Errorf("mark delivered %s: %w", job.IdempotencyKey, err)
	}

	if p.publisher != nil {
		ev := events.CardMinted{
			CardID:         cardID,
			Serial:         res.Serial,
			Tier:           string(res.Tier),
			RequestedTier:  string(job.Tier),
			ArtistID:       job.ArtistID,
			SeasonID:       job.SeasonID,
			PackSource:     job.Source,
			OwnerID:        job.UserID,
			Scarcity:       res.Scarcity,
			IdempotencyKey: job.IdempotencyKey,
			MintedAt:       time.Now().UTC().Format(time.RFC3339),
		}
		if err := p.publisher.PublishCardMinted(ctx, ev); err != nil {
			log.Printf("mint: publish card.minted for %s failed: %v", job.IdempotencyKey, err)
		}
	}
	return nil
}

func (p *Pipeline) settleFailed(ctx context.Context, key, reason string) error {
	if err := p.purchases.MarkFailed(ctx, key, reason); err != nil {
		return fmt.Errorf("mark failed %s: %w", key, err)
	}
	log.Printf("mint: purchase %s failed: %s", key, reason)
	return nil
}

// BurnJob asks for a card to be burned.
type BurnJob struct {
	CardID uint64 `json:"card_id"`
}

// ProcessBurn marks a card burned.  The card's serial stays consumed
// and supply counters are untouched.  Burning a card that is already
// burned is an idempotent no-op so redelivered jobs settle cleanly.
func (p *Pipeline) ProcessBurn(ctx context.Context, raw json.RawMessage) error {
	var job BurnJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return fmt.Errorf("%w: decode burn job: %v", ErrValidation, err)
	}
	card, err := p.cards.Get(ctx, job.CardID)
	if err != nil {
		return fmt.Errorf("load card %d: %w", job.CardID, err)
	}
	if card.BurnedAt != nil {
		return nil
	}
	if err := p.cards.Burn(ctx, job.CardID); err != nil {
		return fmt.Errorf("burn card %d: %w", job.CardID, err)
	}
	return nil
}

// TradeJob finalizes a trade by moving a card between owners.
type TradeJob struct {
	CardID     uint64 `json:"card_id"`
	FromUserID uint64 `json:"from_user_id"`
	ToUserID   uint64 `json:"to_user_id"`
}

// ProcessTrade transfers card ownership.  A redelivered job whose
// transfer already happened observes the new owner and settles as a
// no-op.
func (p *Pipeline) ProcessTrade(ctx context.Context, raw json.RawMessage) error {
	var job TradeJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return fmt.Errorf("%w: decode trade job: %v", ErrValidation, err)
	}
	card, err := p.cards.Get(ctx, job.CardID)
	if err != nil {
		return fmt.Errorf("load card %d: %w", job.CardID, err)
	}
	if card.BurnedAt != nil {
		return fmt.Errorf("%w: card %d is burned", ErrValidation, job.CardID)
	}
	if card.OwnerID != nil && *card.OwnerID == job.ToUserID {
		return nil
	}
	if card.OwnerID == nil || *card.OwnerID != job.FromUserID {
		return fmt.Errorf("%w: card %d not held by user %d", ErrValidation, job.CardID, job.FromUserID)
	}
	if err := p.cards.Transfer(ctx, job.CardID, job.ToUserID); err != nil {
		return fmt.Errorf("transfer card %d: %w", job.CardID, err)
	}
	return nil
}
