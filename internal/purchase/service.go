package purchase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/samuraifrenchienft/music-legends-engine/internal/model"
)

// Outcome is the caller-visible result of submitting a purchase.
type Outcome string

const (
	OutcomeQueued           Outcome = "QUEUED"
	OutcomeAlreadyProcessed Outcome = "ALREADY_PROCESSED"
	OutcomeFailed           Outcome = "FAILED"
)

// ErrValidation is returned for malformed submissions (missing key,
// unknown product).
var ErrValidation = errors.New("purchase: validation failed")

// Product describes a purchasable pack: which tier the mint attempt
// starts at and the pack source recorded on the card.
type Product struct {
	Tier   model.Tier
	Source string
}

// DefaultProducts is the standard pack catalog.
var DefaultProducts = map[string]Product{
	"black_packs":    {Tier: model.TierLegendary, Source: "black_packs"},
	"platinum_packs": {Tier: model.TierPlatinum, Source: "platinum_packs"},
	"gold_packs":     {Tier: model.TierGold, Source: "gold_packs"},
	"starter_packs":  {Tier: model.TierCommunity, Source: "starter_packs"},
}

// Enqueuer is the slice of the durable queue the intake service
// needs.  Supplying an explicit message id makes enqueueing
// idempotent, which closes the crash window between record
// persistence and delivery.
type Enqueuer interface {
	Enqueue(ctx context.Context, queue string, payload []byte, delay time.Duration, id string) (string, error)
}

// MintJob is the payload body of a queued mint job.
type MintJob struct {
	IdempotencyKey string     `json:"idempotency_key"`
	UserID         uint64     `json:"user_id"`
	ProductKey     string     `json:"product_key"`
	Tier           model.Tier `json:"tier"`
	ArtistID       string     `json:"artist_id"`
	Source         string     `json:"source"`
	SeasonID       string     `json:"season_id"`
}

// Service is the purchase intake: it owns the record-before-deliver
// contract and hands approved purchases to the durable queue.
type Service struct {
	store    Store
	queue    Enqueuer
	products map[string]Product
	seasonID string
}

// NewService builds the intake service.  seasonID names the season
// new purchases mint into.
func NewService(store Store, queue Enqueuer, products map[string]Product, seasonID string) *Service {
	if products == nil {
		products = DefaultProducts
	}
	return &Service{store: store, queue: queue, products: products, seasonID: seasonID}
}

// Store exposes the underlying record store for workers that settle
// purchases after minting.
func (s *Service) Store() Store { return s.store }

// Handle processes one purchase submission.  The PurchaseRecord is
// committed in pending state before the job is enqueued; if two
// calls race on the same key the loser observes the winner's record
// and returns ALREADY_PROCESSED without a second side effect.  A
// pending record found on a retry re-enqueues the job under the same
// message id, so a crash before the original enqueue cannot strand
// paid money: the queue deduplicates by id and at most one job ever
// exists per key.
func (s *Service) Handle(ctx context.Context, userID uint64, productKey, artistID, idemKey string) (Outcome, error) {
	if idemKey == "" || userID == 0 {
		return OutcomeFailed, fmt.Errorf("%w: user id and idempotency key are required", ErrValidation)
	}
	product, ok := s.products[productKey]
	if !ok {
		return OutcomeFailed, fmt.Errorf("%w: unknown product %q", ErrValidation, productKey)
	}

	created, existing, err := s.store.Claim(ctx, model.PurchaseRecord{
		IdempotencyKey: idemKey,
		UserID:         userID,
		ProductKey:     productKey,
	})
	if err != nil {
		return OutcomeFailed, err
	}
	if !created {
		if existing.Status == model.PurchasePending {
			if err := s.enqueueMint(ctx, userID, productKey, artistID, idemKey, product); err != nil {
				log.Printf("purchase: re-enqueue for pending key %s failed: %v", idemKey, err)
			}
		}
		return OutcomeAlreadyProcessed, nil
	}

	if err := s.enqueueMint(ctx, userID, productKey, artistID, idemKey, product); err != nil {
		// The pending record stays behind; re-presenting the key
		// retries the enqueue.
		return OutcomeFailed, fmt.Errorf("enqueue mint: %w", err)
	}
	return OutcomeQueued, nil
}

func (s *Service) enqueueMint(ctx context.Context, userID uint64, productKey, artistID, idemKey string, product Product) error {
	body, err := json.Marshal(MintJob{
		IdempotencyKey: idemKey,
		UserID:         userID,
		ProductKey:     productKey,
		Tier:           product.Tier,
		ArtistID:       artistID,
		Source:         product.Source,
		SeasonID:       s.seasonID,
	})
	if err != nil {
		return err
	}
	payload, err := json.Marshal(model.JobPayload{
		Type:        "mint",
		ResourceKey: fmt.Sprintf("user:%d", userID),
		Body:        body,
	})
	if err != nil {
		return err
	}
	_, err = s.queue.Enqueue(ctx, "mint", payload, 0, "purchase:"+idemKey)
	return err
}
