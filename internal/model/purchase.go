package model

import "time"

// PurchaseStatus is the forward-only state of a purchase record.
// pending → delivered | failed; delivered → refunded.  A record is
// created in pending state before any side effect takes place so
// that a crash between persistence and delivery is retryable.
type PurchaseStatus string

const (
	PurchasePending   PurchaseStatus = "pending"
	PurchaseDelivered PurchaseStatus = "delivered"
	PurchaseFailed    PurchaseStatus = "failed"
	PurchaseRefunded  PurchaseStatus = "refunded"
)

// purchaseRank orders statuses so forward-only transitions can be
// checked with a comparison.  failed and delivered share a rank:
// exactly one of them is ever reached from pending and neither may
// replace the other.
var purchaseRank = map[PurchaseStatus]int{
	PurchasePending:   0,
	PurchaseDelivered: 1,
	PurchaseFailed:    1,
	PurchaseRefunded:  2,
}

// CanTransition reports whether a purchase may move from its current
// status to next.  Only strictly forward moves are allowed, and
// refunded is reachable only from delivered.
func (s PurchaseStatus) CanTransition(next PurchaseStatus) bool {
	if next == PurchaseRefunded {
		return s == PurchaseDelivered
	}
	cur, ok1 := purchaseRank[s]
	nxt, ok2 := purchaseRank[next]
	return ok1 && ok2 && nxt > cur
}

// PurchaseRecord is the idempotency anchor for a paid purchase.
// Exactly one record exists per idempotency key, and exactly one
// record per key ever reaches "delivered".
//
// Fields:
//  IdempotencyKey – caller-supplied unique token.
//  UserID         – buyer.
//  ProductKey     – product purchased (e.g. "black_packs").
//  Status         – forward-only purchase status.
//  FailureReason  – populated when Status is failed; a paid but
//                   unfulfillable purchase is surfaced, never dropped.
//  CardID         – minted card, set once delivered.
//  CreatedAt      – creation timestamp.
//  UpdatedAt      – last status change timestamp.
type PurchaseRecord struct {
	IdempotencyKey string         // purchases.idempotency_key
	UserID         uint64         // purchases.user_id
	ProductKey     string         // purchases.product_key
	Status         PurchaseStatus // purchases.status
	FailureReason  string         // purchases.failure_reason
	CardID         *uint64        // purchases.card_id (nullable)
	CreatedAt      time.Time      // purchases.created_at
	UpdatedAt      time.Time      // purchases.updated_at
}
