// Package queue implements the durable job queue: messages are
// persisted before delivery, claimed by exactly one worker at a
// time, retried with exponential backoff on handler failure, and
// dead-lettered once the attempts ceiling is reached.  Dead letters
// keep the original payload and failure reason indefinitely for
// manual replay.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/samuraifrenchienft/music-legends-engine/internal/model"
)

// ErrEmpty is returned by Dequeue when no message is eligible.
var ErrEmpty = errors.New("queue: no eligible message")

// ErrNotFound is returned when a referenced message or dead letter
// does not exist.
var ErrNotFound = errors.New("queue: message not found")

// DefaultMaxAttempts is the hard retry ceiling applied when a queue
// is built without an explicit value.
const DefaultMaxAttempts = 5

// DefaultClaimTimeout bounds how long a claimed message stays
// invisible.  A worker that dies without completing or retrying its
// message loses the claim after this long and the message becomes
// eligible again.
const DefaultClaimTimeout = 60 * time.Second

// Queue is the durable queue contract shared by the Redis and
// in-memory backends.
type Queue interface {
	// Enqueue persists a message and schedules it delay from now.
	// A non-empty id makes the call idempotent: enqueueing an id that
	// already exists is a no-op.  The message id is returned.
	Enqueue(ctx context.Context, queue string, payload []byte, delay time.Duration, id string) (string, error)

	// Dequeue atomically claims the earliest eligible unclaimed
	// message, or returns ErrEmpty.
	Dequeue(ctx context.Context, queue string) (*model.QueueMessage, error)

	// Complete removes a successfully handled message for good.
	Complete(ctx context.Context, msg *model.QueueMessage) error

	// Retry records a handler failure.  Below the attempts ceiling
	// the message is rescheduled with exponential backoff; at the
	// ceiling it moves to the dead-letter queue with the original
	// payload and the failure reason preserved.
	Retry(ctx context.Context, msg *model.QueueMessage, reason string) error

	// DeadLetters lists a queue's dead letters, newest first.
	DeadLetters(ctx context.Context, queue string) ([]model.DeadLetterEntry, error)

	// Replay moves one dead letter back onto its queue with a fresh
	// attempts budget.
	Replay(ctx context.Context, queue, id string) error

	// PurgeDeadLetters drops all dead letters for a queue and
	// returns how many were removed.
	PurgeDeadLetters(ctx context.Context, queue string) (int, error)
}

// Backoff returns the retry delay after the given number of failed
// attempts: 2^attempts seconds.
func Backoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 16 {
		attempts = 16 // cap the shift; beyond this the message dead-letters anyway
	}
	return time.Duration(1<<uint(attempts)) * time.Second
}
