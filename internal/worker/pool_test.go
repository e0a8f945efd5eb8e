package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/samuraifrenchienft/music-legends-engine/internal/lock"
	"github.com/samuraifrenchienft/music-legends-engine/internal/model"
	"github.com/samuraifrenchienft/music-legends-engine/internal/queue"
)

type fakeLocker struct {
	mu       sync.Mutex
	acquired []string
	released int
	deny     map[string]bool
}

func (f *fakeLocker) Acquire(_ context.Context, key string) (*lock.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deny[key] {
		return nil, lock.ErrLockTimeout
	}
	f.acquired = append(f.acquired, key)
	return &lock.Handle{Key: key, Token: "t"}, nil
}

func (f *fakeLocker) Release(_ context.Context, _ *lock.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released++
	return nil
}

func mustPayload(t *testing.T, resourceKey string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]string{"k": "v"})
	require.NoError(t, err)
	raw, err := json.Marshal(model.JobPayload{Type: "mint", ResourceKey: resourceKey, Body: body})
	require.NoError(t, err)
	return raw
}

func TestPoolProcessesAndCompletesJobs(t *testing.T) {
	q := queue.NewMemoryQueue(3, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seen := make(chan struct{}, 2)
	pool := NewPool(q, nil, 2, 5*time.Millisecond)
	pool.Register("mint", func(_ context.Context, _ json.RawMessage) error {
		seen <- struct{}{}
		return nil
	})

	_, err := q.Enqueue(ctx, "mint", mustPayload(t, "user:1"), 0, "job-1")
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "mint", mustPayload(t, "user:2"), 0, "job-2")
	require.NoError(t, err)

	pool.Start(ctx)
	for i := 0; i < 2; i++ {
		select {
		case <-seen:
		case <-time.After(2 * time.Second):
			t.Fatal("job was not processed in time")
		}
	}

	require.Eventually(t, func() bool {
		_, err := q.Dequeue(ctx, "mint")
		return errors.Is(err, queue.ErrEmpty)
	}, 2*time.Second, 10*time.Millisecond, "completed jobs should leave the queue")

	cancel()
	pool.Wait()
}

func TestPoolHandlerFailureDeadLettersAtCeiling(t *testing.T) {
	q := queue.NewMemoryQueue(1, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := NewPool(q, nil, 1, 5*time.Millisecond)
	pool.Register("mint", func(_ context.Context, _ json.RawMessage) error {
		return errors.New("card store unavailable")
	})

	_, err := q.Enqueue(ctx, "mint", mustPayload(t, "user:1"), 0, "job-1")
	require.NoError(t, err)

	pool.Start(ctx)
	require.Eventually(t, func() bool {
		dead, derr := q.DeadLetters(ctx, "mint")
		return derr == nil && len(dead) == 1
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	pool.Wait()

	dead, err := q.DeadLetters(ctx, "mint")
	require.NoError(t, err)
	require.Contains(t, dead[0].Reason, "card store unavailable")
}

func TestPoolPoisonPayloadNeverReachesHandler(t *testing.T) {
	q := queue.NewMemoryQueue(1, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int
	var mu sync.Mutex
	pool := NewPool(q, nil, 1, 5*time.Millisecond)
	pool.Register("mint", func(_ context.Context, _ json.RawMessage) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	})

	_, err := q.Enqueue(ctx, "mint", []byte("not json"), 0, "poison")
	require.NoError(t, err)

	pool.Start(ctx)
	require.Eventually(t, func() bool {
		dead, derr := q.DeadLetters(ctx, "mint")
		return derr == nil && len(dead) == 1
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	pool.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Zero(t, calls, "undecodable payload must not invoke the handler")
}

func TestPoolLockScopesJobAndReleases(t *testing.T) {
	q := queue.NewMemoryQueue(3, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	locks := &fakeLocker{}
	done := make(chan struct{}, 1)
	pool := NewPool(q, locks, 1, 5*time.Millisecond)
	pool.Register("mint", func(_ context.Context, _ json.RawMessage) error {
		done <- struct{}{}
		return nil
	})

	_, err := q.Enqueue(ctx, "mint", mustPayload(t, "user:42"), 0, "job-1")
	require.NoError(t, err)

	pool.Start(ctx)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not processed in time")
	}
	cancel()
	pool.Wait()

	locks.mu.Lock()
	defer locks.mu.Unlock()
	require.Equal(t, []string{"user:42"}, locks.acquired)
	require.Equal(t, 1, locks.released)
}

func TestPoolLockTimeoutRetriesWithoutHandler(t *testing.T) {
	q := queue.NewMemoryQueue(1, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	locks := &fakeLocker{deny: map[string]bool{"user:42": true}}
	var calls int
	var mu sync.Mutex
	pool := NewPool(q, locks, 1, 5*time.Millisecond)
	pool.Register("mint", func(_ context.Context, _ json.RawMessage) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	})

	_, err := q.Enqueue(ctx, "mint", mustPayload(t, "user:42"), 0, "job-1")
	require.NoError(t, err)

	pool.Start(ctx)
	require.Eventually(t, func() bool {
		dead, derr := q.DeadLetters(ctx, "mint")
		return derr == nil && len(dead) == 1
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	pool.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Zero(t, calls)
	locks.mu.Lock()
	defer locks.mu.Unlock()
	require.Empty(t, locks.acquired)
}
