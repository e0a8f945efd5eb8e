// Package purchase implements the idempotent purchase workflow.  A
// PurchaseRecord is persisted in pending state before any side
// effect (record-before-deliver), keyed by a caller-supplied
// idempotency token, so crashes and webhook retries can re-present
// the same key safely: exactly one record per key ever reaches
// delivered, and exactly one mint side effect ever happens.
package purchase

import (
	"context"
	"errors"

	"github.com/samuraifrenchienft/music-legends-engine/internal/model"
)

// ErrAlreadyProcessed signals that the idempotency key has already
// produced its one permitted outcome.  It is an idempotent no-op
// marker, not a failure.
var ErrAlreadyProcessed = errors.New("purchase: already processed")

// ErrNotFound is returned for an unknown idempotency key.
var ErrNotFound = errors.New("purchase: record not found")

// ErrInvalidTransition is returned when a status update would move a
// record backwards (e.g. delivered → pending).  Status transitions
// are forward-only.
var ErrInvalidTransition = errors.New("purchase: invalid status transition")

// Store persists purchase records keyed by idempotency key.  The
// backend is selected by configuration: MySQL in production, memory
// for tests and single-process development.  Claim must be atomic:
// two near-simultaneous claims for the same key produce exactly one
// created record, and the loser observes the winner's committed row.
type Store interface {
	// Claim inserts rec (status pending) if no record exists for its
	// idempotency key.  It returns created=true when this call won
	// the insert, or created=false plus the existing record.
	Claim(ctx context.Context, rec model.PurchaseRecord) (created bool, existing *model.PurchaseRecord, err error)

	// Get returns the record for key, or ErrNotFound.
	Get(ctx context.Context, key string) (*model.PurchaseRecord, error)

	// MarkDelivered moves a pending record to delivered and links the
	// minted card.  Marking an already-delivered record with the same
	// card is a no-op; any other non-forward move is rejected.
	MarkDelivered(ctx context.Context, key string, cardID uint64) error

	// MarkFailed moves a pending record to failed with a reason.  The
	// record stays visible for compensating action; it is never
	// deleted.
	MarkFailed(ctx context.Context, key, reason string) error

	// MarkRefunded moves a delivered record to refunded.
	MarkRefunded(ctx context.Context, key string) error
}
