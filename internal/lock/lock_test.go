package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, wait, retry time.Duration) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewManager(rdb, time.Second, wait, retry), mr
}

func TestAcquireRelease(t *testing.T) {
	m, _ := newTestManager(t, 100*time.Millisecond, 10*time.Millisecond)
	ctx := context.Background()

	h, err := m.Acquire(ctx, "user:42")
	require.NoError(t, err)
	require.NotEmpty(t, h.Token)

	require.NoError(t, m.Release(ctx, h))

	// Released lock can be re-acquired with a fresh token.
	h2, err := m.Acquire(ctx, "user:42")
	require.NoError(t, err)
	assert.NotEqual(t, h.Token, h2.Token)
}

func TestAcquireContended(t *testing.T) {
	m, _ := newTestManager(t, 80*time.Millisecond, 10*time.Millisecond)
	ctx := context.Background()

	h, err := m.Acquire(ctx, "card:7")
	require.NoError(t, err)

	_, err = m.Acquire(ctx, "card:7")
	require.ErrorIs(t, err, ErrLockTimeout)

	// Different keys do not contend.
	other, err := m.Acquire(ctx, "card:8")
	require.NoError(t, err)
	require.NoError(t, m.Release(ctx, other))
	require.NoError(t, m.Release(ctx, h))
}

func TestReleaseWrongToken(t *testing.T) {
	m, _ := newTestManager(t, 80*time.Millisecond, 10*time.Millisecond)
	ctx := context.Background()

	h, err := m.Acquire(ctx, "artist:9:legendary")
	require.NoError(t, err)

	forged := &Handle{Key: h.Key, Token: "someone-else"}
	require.ErrorIs(t, m.Release(ctx, forged), ErrNotHeld)

	// The real holder can still release.
	require.NoError(t, m.Release(ctx, h))
}

func TestExpiredHolderCannotReleaseNewHolder(t *testing.T) {
	m, mr := newTestManager(t, 80*time.Millisecond, 10*time.Millisecond)
	ctx := context.Background()

	stale, err := m.Acquire(ctx, "card:13")
	require.NoError(t, err)

	// TTL lapses while the stale holder is stuck; another worker
	// takes the lock.
	mr.FastForward(2 * time.Second)
	fresh, err := m.Acquire(ctx, "card:13")
	require.NoError(t, err)

	require.ErrorIs(t, m.Release(ctx, stale), ErrNotHeld)
	require.NoError(t, m.Release(ctx, fresh))
}

func TestAcquireAfterExpiry(t *testing.T) {
	m, mr := newTestManager(t, 50*time.Millisecond, 10*time.Millisecond)
	ctx := context.Background()

	_, err := m.Acquire(ctx, "burn:1")
	require.NoError(t, err)

	// Crashed holder never releases; TTL frees the resource.
	mr.FastForward(2 * time.Second)

	h, err := m.Acquire(ctx, "burn:1")
	require.NoError(t, err)
	require.NoError(t, m.Release(ctx, h))
}
