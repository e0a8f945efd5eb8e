package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/samuraifrenchienft/music-legends-engine/internal/model"
)

// MemoryQueue mirrors the Redis queue semantics in process memory:
// same claim visibility, same backoff, same dead-letter behavior.
// It backs tests and single-process development.
type MemoryQueue struct {
	mu           sync.Mutex
	messages     map[string]map[string]*model.QueueMessage // queue -> id -> message
	claims       map[string]map[string]time.Time           // queue -> id -> claim deadline
	dead         map[string][]model.DeadLetterEntry
	maxAttempts  int
	claimTimeout time.Duration
	now          func() time.Time
}

// NewMemoryQueue returns an in-memory queue with the same option
// defaults as the Redis backend.
func NewMemoryQueue(maxAttempts int, claimTimeout time.Duration) *MemoryQueue {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if claimTimeout <= 0 {
		claimTimeout = DefaultClaimTimeout
	}
	return &MemoryQueue{
		messages:     make(map[string]map[string]*model.QueueMessage),
		claims:       make(map[string]map[string]time.Time),
		dead:         make(map[string][]model.DeadLetterEntry),
		maxAttempts:  maxAttempts,
		claimTimeout: claimTimeout,
		now:          time.Now,
	}
}

// Enqueue implements Queue.
func (q *MemoryQueue) Enqueue(_ context.Context, queue string, payload []byte, delay time.Duration, id string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if id == "" {
		id = uuid.NewString()
	}
	msgs, ok := q.messages[queue]
	if !ok {
		msgs = make(map[string]*model.QueueMessage)
		q.messages[queue] = msgs
		q.claims[queue] = make(map[string]time.Time)
	}
	if _, exists := msgs[id]; exists {
		return id, nil
	}
	now := q.now().UTC()
	msgs[id] = &model.QueueMessage{
		ID:            id,
		Queue:         queue,
		Payload:       payload,
		NextAttemptAt: now.Add(delay),
		EnqueuedAt:    now,
	}
	return id, nil
}

// Dequeue implements Queue.  The earliest eligible message wins; a
// claim expires after the claim timeout, which doubles as the
// stale-claim sweep.
func (q *MemoryQueue) Dequeue(_ context.Context, queue string) (*model.QueueMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	var best *model.QueueMessage
	for id, msg := range q.messages[queue] {
		if msg.NextAttemptAt.After(now) {
			continue
		}
		if deadline, claimed := q.claims[queue][id]; claimed && deadline.After(now) {
			continue
		}
		if best == nil || msg.NextAttemptAt.Before(best.NextAttemptAt) {
			best = msg
		}
	}
	if best == nil {
		return nil, ErrEmpty
	}
	q.claims[queue][best.ID] = now.Add(q.claimTimeout)
	cp := *best
	return &cp, nil
}

// Complete implements Queue.
func (q *MemoryQueue) Complete(_ context.Context, msg *model.QueueMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.messages[msg.Queue], msg.ID)
	delete(q.claims[msg.Queue], msg.ID)
	return nil
}

// Retry implements Queue.
func (q *MemoryQueue) Retry(_ context.Context, msg *model.QueueMessage, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	msg.Attempts++
	if msg.Attempts >= q.maxAttempts {
		cp := *msg
		q.dead[msg.Queue] = append([]model.DeadLetterEntry{{
			Message:  cp,
			Reason:   reason,
			FailedAt: q.now().UTC(),
		}}, q.dead[msg.Queue]...)
		delete(q.messages[msg.Queue], msg.ID)
		delete(q.claims[msg.Queue], msg.ID)
		return nil
	}
	msg.NextAttemptAt = q.now().UTC().Add(Backoff(msg.Attempts))
	if stored, ok := q.messages[msg.Queue][msg.ID]; ok {
		stored.Attempts = msg.Attempts
		stored.NextAttemptAt = msg.NextAttemptAt
	}
	delete(q.claims[msg.Queue], msg.ID)
	return nil
}

// DeadLetters implements Queue.
func (q *MemoryQueue) DeadLetters(_ context.Context, queue string) ([]model.DeadLetterEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]model.DeadLetterEntry, len(q.dead[queue]))
	copy(out, q.dead[queue])
	return out, nil
}

// Replay implements Queue.  Mirrors the Redis backend: enqueue
// first, then drop the dead letter, so a failed enqueue never loses
// the entry.
func (q *MemoryQueue) Replay(ctx context.Context, queue, id string) error {
	q.mu.Lock()
	var payload []byte
	found := false
	for _, entry := range q.dead[queue] {
		if entry.Message.ID == id {
			payload = entry.Message.Payload
			found = true
			break
		}
	}
	q.mu.Unlock()
	if !found {
		return ErrNotFound
	}
	if _, err := q.Enqueue(ctx, queue, payload, 0, id); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	entries := q.dead[queue]
	for i, entry := range entries {
		if entry.Message.ID == id {
			q.dead[queue] = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
	return nil
}

// PurgeDeadLetters implements Queue.
func (q *MemoryQueue) PurgeDeadLetters(_ context.Context, queue string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.dead[queue])
	delete(q.dead, queue)
	return n, nil
}
