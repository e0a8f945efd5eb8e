package purchase

import (
	"context"
	"sync"
	"time"

	"github.com/samuraifrenchienft/music-legends-engine/internal/model"
)

// MemoryStore keeps purchase records in a map behind one mutex.
// Claim's existence check and insert share a single critical
// section, which gives the same winner-takes-all behavior as the
// unique key constraint in MySQL.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*model.PurchaseRecord
}

// NewMemoryStore returns an empty in-memory purchase store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*model.PurchaseRecord)}
}

// Claim implements Store.
func (s *MemoryStore) Claim(_ context.Context, rec model.PurchaseRecord) (bool, *model.PurchaseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.records[rec.IdempotencyKey]; ok {
		cp := *existing
		return false, &cp, nil
	}
	now := time.Now().UTC()
	rec.Status = model.PurchasePending
	rec.CreatedAt = now
	rec.UpdatedAt = now
	stored := rec
	s.records[rec.IdempotencyKey] = &stored
	cp := stored
	return true, &cp, nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) (*model.PurchaseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// MarkDelivered implements Store.
func (s *MemoryStore) MarkDelivered(_ context.Context, key string, cardID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return ErrNotFound
	}
	if rec.Status == model.PurchaseDelivered {
		return nil // redelivery of the same outcome is a no-op
	}
	if !rec.Status.CanTransition(model.PurchaseDelivered) {
		return ErrInvalidTransition
	}
	rec.Status = model.PurchaseDelivered
	rec.CardID = &cardID
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkFailed implements Store.
func (s *MemoryStore) MarkFailed(_ context.Context, key, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return ErrNotFound
	}
	if rec.Status == model.PurchaseFailed {
		return nil
	}
	if !rec.Status.CanTransition(model.PurchaseFailed) {
		return ErrInvalidTransition
	}
	rec.Status = model.PurchaseFailed
	rec.FailureReason = reason
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkRefunded implements Store.
func (s *MemoryStore) MarkRefunded(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return ErrNotFound
	}
	if rec.Status == model.PurchaseRefunded {
		return nil
	}
	if !rec.Status.CanTransition(model.PurchaseRefunded) {
		return ErrInvalidTransition
	}
	rec.Status = model.PurchaseRefunded
	rec.UpdatedAt = time.Now().UTC()
	return nil
}
