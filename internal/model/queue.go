package model

import (
	"encoding/json"
	"time"
)

// QueueMessage is one unit of durable work.  Messages are persisted
// before delivery and survive worker crashes; a claimed message that
// is neither completed nor retried becomes eligible again once its
// claim times out.
//
// Fields:
//  ID            – unique message identifier.  Callers may supply one
//                  to make enqueueing idempotent; otherwise a random
//                  id is assigned.
//  Queue         – queue name (doubles as the job type).
//  Payload       – opaque job payload, JSON in practice.
//  Attempts      – number of failed handler invocations so far.
//  NextAttemptAt – earliest time the message may be delivered.
//  EnqueuedAt    – first enqueue timestamp.
type QueueMessage struct {
	ID            string    `json:"id"`
	Queue         string    `json:"queue"`
	Payload       []byte    `json:"payload"`
	Attempts      int       `json:"attempts"`
	NextAttemptAt time.Time `json:"next_attempt_at"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
}

// DeadLetterEntry preserves a message that exhausted its retry
// budget.  The original payload and the final failure reason are
// retained indefinitely for manual inspection and replay.
type DeadLetterEntry struct {
	Message  QueueMessage `json:"message"`
	Reason   string       `json:"reason"`
	FailedAt time.Time    `json:"failed_at"`
}

// JobPayload is the envelope carried by engine-owned queues.  The
// worker pool uses ResourceKey to scope a distributed lock around
// the handler invocation, so jobs touching the same resource are
// serialized while unrelated jobs run concurrently.
type JobPayload struct {
	Type        string          `json:"type"`
	ResourceKey string          `json:"resource_key"`
	Body        json.RawMessage `json:"body"`
}
