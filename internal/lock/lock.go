// Package lock implements a Redis-backed distributed lock with TTL
// auto-expiry and fencing tokens.  It serializes compound operations
// that cannot be expressed as a single atomic storage primitive:
// one user's concurrent purchases, burn/trade of the same card, and
// the supply check-and-increment for an (artist, tier) pair.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockTimeout is returned when a lock could not be acquired
// within the configured wait timeout.  The resource is contended;
// the caller may retry or re-enqueue the job.
var ErrLockTimeout = errors.New("lock: acquisition timed out")

// ErrNotHeld is returned by Release when the stored holder token no
// longer matches the handle.  This happens when the TTL lapsed and
// another holder took over; the stale holder must not be able to
// release the new holder's lock.
var ErrNotHeld = errors.New("lock: not held by this token")

// releaseScript deletes the lock key only when the stored token
// matches the caller's fencing token.  Compare and delete must be
// one atomic step, hence Lua.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// Handle identifies one successful acquisition.  Token is the
// fencing token: unique per acquisition, required for release, and
// usable by downstream systems to reject writes from stale holders.
type Handle struct {
	Key   string
	Token string
}

// Manager acquires and releases locks against a shared Redis.
type Manager struct {
	rdb           *redis.Client
	ttl           time.Duration
	waitTimeout   time.Duration
	retryInterval time.Duration
}

// NewManager returns a lock manager.  ttl bounds how long a crashed
// holder can block others; waitTimeout bounds how long Acquire polls
// before giving up; retryInterval is the poll spacing.
func NewManager(rdb *redis.Client, ttl, waitTimeout, retryInterval time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if waitTimeout <= 0 {
		waitTimeout = 5 * time.Second
	}
	if retryInterval <= 0 {
		retryInterval = 50 * time.Millisecond
	}
	return &Manager{rdb: rdb, ttl: ttl, waitTimeout: waitTimeout, retryInterval: retryInterval}
}

// Acquire takes the lock for key, waiting up to the configured
// timeout.  On success it returns a handle carrying the fencing
// token; on contention past the deadline it returns ErrLockTimeout.
func (m *Manager) Acquire(ctx context.Context, key string) (*Handle, error) {
	return m.AcquireTTL(ctx, key, m.ttl)
}

// AcquireTTL is Acquire with an explicit TTL for callers whose
// critical section is longer or shorter than the default.
func (m *Manager) AcquireTTL(ctx context.Context, key string, ttl time.Duration) (*Handle, error) {
	token := uuid.NewString()
	deadline := time.Now().Add(m.waitTimeout)
	for {
		ok, err := m.rdb.SetNX(ctx, lockKey(key), token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("lock acquire: %w", err)
		}
		if ok {
			return &Handle{Key: key, Token: token}, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.retryInterval):
		}
	}
}

// Release frees the lock identified by h.  It succeeds only while h
// is still the live holder; an expired or superseded handle gets
// ErrNotHeld and the current holder's lock is left untouched.
func (m *Manager) Release(ctx context.Context, h *Handle) error {
	if h == nil {
		return ErrNotHeld
	}
	n, err := releaseScript.Run(ctx, m.rdb, []string{lockKey(h.Key)}, h.Token).Int()
	if err != nil {
		return fmt.Errorf("lock release: %w", err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

func lockKey(key string) string { return "lock:" + key }
