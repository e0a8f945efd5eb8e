// Package ratelimit provides sliding-window admission control backed
// by Redis.  Each (actor, action) pair is tracked as a sorted set of
// event timestamps; one Lua script purges expired entries, counts
// the remainder and conditionally records the new event, so a
// rejected call leaves no partial side effects behind.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// allowScript purges entries older than the window, then either
// records the event and admits it or rejects without writing.
// Returns {allowed, current, oldest_ms} where oldest_ms is -1 when
// the window is empty.
var allowScript = redis.NewScript(`
	local key = KEYS[1]
	local now_ms = tonumber(ARGV[1])
	local window_ms = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local member = ARGV[4]

	redis.call('ZREMRANGEBYSCORE', key, 0, now_ms - window_ms)
	local count = redis.call('ZCARD', key)
	if count < limit then
		redis.call('ZADD', key, now_ms, member)
		redis.call('PEXPIRE', key, window_ms)
		return {1, count + 1, -1}
	end
	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	local oldest_ms = -1
	if oldest[2] then
		oldest_ms = tonumber(oldest[2])
	end
	return {0, count, oldest_ms}
`)

// statusScript is the read-only counterpart: purge then report.
var statusScript = redis.NewScript(`
	local key = KEYS[1]
	local now_ms = tonumber(ARGV[1])
	local window_ms = tonumber(ARGV[2])

	redis.call('ZREMRANGEBYSCORE', key, 0, now_ms - window_ms)
	local count = redis.call('ZCARD', key)
	if count == 0 then
		return {0, -1}
	end
	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	return {count, tonumber(oldest[2])}
`)

// Rule configures one action's budget: at most Limit events per
// trailing Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Status is the read-only view of one (actor, action) window.
type Status struct {
	Current   int       `json:"current"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetTime time.Time `json:"reset_time"`
}

// Limiter evaluates rules against Redis.  The limiter itself is
// data-driven; adding an action is a configuration change, not code.
type Limiter struct {
	rdb    *redis.Client
	rules  map[string]Rule
	prefix string
	now    func() time.Time
}

// NewLimiter returns a limiter for the given rule table.  Actions
// without a rule are admitted unconditionally.
func NewLimiter(rdb *redis.Client, rules map[string]Rule) *Limiter {
	return &Limiter{rdb: rdb, rules: rules, prefix: "rl", now: time.Now}
}

// Rule returns the configured rule for an action.
func (l *Limiter) Rule(action string) (Rule, bool) {
	r, ok := l.rules[action]
	return r, ok
}

// Allow records one event for (actor, action) if the window has
// budget left and reports whether the event was admitted.  On
// rejection nothing is recorded, so rejected retries do not extend
// the window.
func (l *Limiter) Allow(ctx context.Context, actor, action string) (bool, error) {
	rule, ok := l.rules[action]
	if !ok {
		return true, nil
	}
	args := []interface{}{
		l.now().UnixMilli(),
		rule.Window.Milliseconds(),
		rule.Limit,
		uuid.NewString(),
	}
	vals, err := allowScript.Run(ctx, l.rdb, []string{l.key(actor, action)}, args...).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("ratelimit allow: %w", err)
	}
	if len(vals) != 3 {
		return false, fmt.Errorf("ratelimit allow: unexpected script result %v", vals)
	}
	return vals[0] == 1, nil
}

// GetStatus reports the current window without recording anything.
// ResetTime is the moment the oldest recorded event leaves the
// window, i.e. the earliest time a full window frees a slot.
func (l *Limiter) GetStatus(ctx context.Context, actor, action string) (Status, error) {
	rule, ok := l.rules[action]
	if !ok {
		return Status{Limit: -1, Remaining: -1}, nil
	}
	now := l.now()
	vals, err := statusScript.Run(ctx, l.rdb, []string{l.key(actor, action)},
		now.UnixMilli(), rule.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return Status{}, fmt.Errorf("ratelimit status: %w", err)
	}
	if len(vals) != 2 {
		return Status{}, fmt.Errorf("ratelimit status: unexpected script result %v", vals)
	}
	st := Status{
		Current: int(vals[0]),
		Limit:   rule.Limit,
	}
	st.Remaining = st.Limit - st.Current
	if st.Remaining < 0 {
		st.Remaining = 0
	}
	if vals[1] >= 0 {
		st.ResetTime = time.UnixMilli(vals[1]).Add(rule.Window)
	} else {
		st.ResetTime = now
	}
	return st, nil
}

func (l *Limiter) key(actor, action string) string {
	return strings.Join([]string{l.prefix, action, actor}, ":")
}
