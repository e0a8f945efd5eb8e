// Package worker runs the background job loop: claim a message from
// a durable queue, take a distributed lock scoped to the job's
// resource, invoke the handler, then complete or retry.  Handler
// failures are converted into retry/dead-letter bookkeeping and
// never crash a worker.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/samuraifrenchienft/music-legends-engine/internal/lock"
	"github.com/samuraifrenchienft/music-legends-engine/internal/model"
	"github.com/samuraifrenchienft/music-legends-engine/internal/queue"
)

// Handler processes one job body.  Handlers must be idempotent (or
// protected by the idempotency store) because a message can be
// redelivered after a crash between completion and acknowledgment.
type Handler func(ctx context.Context, body json.RawMessage) error

// Locker is the slice of the distributed lock manager the pool
// needs; nil-able in tests that don't care about lock scoping.
type Locker interface {
	Acquire(ctx context.Context, key string) (*lock.Handle, error)
	Release(ctx context.Context, h *lock.Handle) error
}

// Pool pulls jobs from a set of queues with a fixed number of
// workers.  Each registered queue maps to one handler; the queue
// name doubles as the job type.
type Pool struct {
	queue        queue.Queue
	locks        Locker
	workers      int
	pollInterval time.Duration

	mu       sync.Mutex
	handlers map[string]Handler
	order    []string

	wg sync.WaitGroup
}

// NewPool builds a pool.  locks may be nil, in which case jobs run
// without lock scoping (memory-backed single-process setups).
func NewPool(q queue.Queue, locks Locker, workers int, pollInterval time.Duration) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if pollInterval <= 0 {
		pollInterval = 250 * time.Millisecond
	}
	return &Pool{
		queue:        q,
		locks:        locks,
		workers:      workers,
		pollInterval: pollInterval,
		handlers:     make(map[string]Handler),
	}
}

// Register binds a handler to a queue name.  Must be called before
// Start.
func (p *Pool) Register(queueName string, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, dup := p.handlers[queueName]; !dup {
		p.order = append(p.order, queueName)
	}
	p.handlers[queueName] = h
}

// Start launches the worker goroutines.  They run until ctx is
// cancelled; Wait blocks until they have drained.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func(worker int) {
			defer p.wg.Done()
			p.run(ctx, worker)
		}(i)
	}
}

// Wait blocks until every worker goroutine has exited.
func (p *Pool) Wait() { p.wg.Wait() }

func (p *Pool) run(ctx context.Context, worker int) {
	for {
		if ctx.Err() != nil {
			return
		}
		handled := false
		for _, queueName := range p.queueNames() {
			if ctx.Err() != nil {
				return
			}
			if p.handleOne(ctx, queueName) {
				handled = true
			}
		}
		if handled {
			continue
		}
		// All queues empty; back off before polling again.
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.pollInterval):
		}
	}
}

func (p *Pool) queueNames() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, len(p.order))
	copy(names, p.order)
	return names
}

// handleOne claims and processes at most one message from queueName.
// It reports whether a message was claimed.
func (p *Pool) handleOne(ctx context.Context, queueName string) bool {
	msg, err := p.queue.Dequeue(ctx, queueName)
	if errors.Is(err, queue.ErrEmpty) {
		return false
	}
	if err != nil {
		log.Printf("worker: dequeue %s failed: %v", queueName, err)
		return false
	}

	if err := p.process(ctx, queueName, msg); err != nil {
		// Handler or lock failure: hand the message back to the
		// retry/dead-letter policy.  The worker itself never dies on
		// a bad job.
		if rerr := p.queue.Retry(ctx, msg, err.Error()); rerr != nil {
			log.Printf("worker: retry %s/%s failed: %v", queueName, msg.ID, rerr)
		}
		return true
	}

	if err := p.queue.Complete(ctx, msg); err != nil {
		// The claim will lapse and the message redeliver; handlers
		// are idempotent, so this is safe.
		log.Printf("worker: complete %s/%s failed: %v", queueName, msg.ID, err)
	}
	return true
}

func (p *Pool) process(ctx context.Context, queueName string, msg *model.QueueMessage) error {
	p.mu.Lock()
	handler, ok := p.handlers[queueName]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("no handler registered for queue %q", queueName)
	}

	var payload model.JobPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	if p.locks != nil && payload.ResourceKey != "" {
		h, err := p.locks.Acquire(ctx, payload.ResourceKey)
		if err != nil {
			return fmt.Errorf("acquire %s: %w", payload.ResourceKey, err)
		}
		defer func() {
			if rerr := p.locks.Release(ctx, h); rerr != nil {
				log.Printf("worker: release %s: %v", payload.ResourceKey, rerr)
			}
		}()
	}

	return handler(ctx, payload.Body)
}
