package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/samuraifrenchienft/music-legends-engine/internal/model"
)

// enqueueScript stores the message body only if the id is new, and
// schedules it.  HSETNX + ZADD in one script keeps idempotent
// enqueues race-free.
var enqueueScript = redis.NewScript(`
	if redis.call('HSETNX', KEYS[1], ARGV[1], ARGV[2]) == 1 then
		redis.call('ZADD', KEYS[2], ARGV[3], ARGV[1])
		return 1
	end
	return 0
`)

// claimScript picks the earliest message whose score is due and
// pushes its score claim-timeout into the future in the same atomic
// step.  The bumped score is the claim: other workers skip the
// message, and a worker that dies simply lets the score become due
// again; that is the stale-claim sweep.
var claimScript = redis.NewScript(`
	local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
	if #due == 0 then
		return false
	end
	local id = due[1]
	redis.call('ZADD', KEYS[1], tonumber(ARGV[1]) + tonumber(ARGV[2]), id)
	return {id, redis.call('HGET', KEYS[2], id)}
`)

// removeScript deletes a message from both the schedule and the body
// hash.
var removeScript = redis.NewScript(`
	redis.call('ZREM', KEYS[1], ARGV[1])
	return redis.call('HDEL', KEYS[2], ARGV[1])
`)

// RedisQueue is the production queue backend.  Each named queue is a
// sorted set of message ids scored by next-eligible timestamp plus a
// hash of message bodies; dead letters live in a list per queue.
type RedisQueue struct {
	rdb          *redis.Client
	maxAttempts  int
	claimTimeout time.Duration
	now          func() time.Time
}

// NewRedisQueue returns a Redis-backed queue.  Non-positive options
// fall back to the package defaults.
func NewRedisQueue(rdb *redis.Client, maxAttempts int, claimTimeout time.Duration) *RedisQueue {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if claimTimeout <= 0 {
		claimTimeout = DefaultClaimTimeout
	}
	return &RedisQueue{rdb: rdb, maxAttempts: maxAttempts, claimTimeout: claimTimeout, now: time.Now}
}

// Enqueue implements Queue.
func (q *RedisQueue) Enqueue(ctx context.Context, queue string, payload []byte, delay time.Duration, id string) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}
	now := q.now().UTC()
	msg := model.QueueMessage{
		ID:            id,
		Queue:         queue,
		Payload:       payload,
		NextAttemptAt: now.Add(delay),
		EnqueuedAt:    now,
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	err = enqueueScript.Run(ctx, q.rdb,
		[]string{msgsKey(queue), schedKey(queue)},
		id, body, msg.NextAttemptAt.UnixMilli(),
	).Err()
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", queue, err)
	}
	return id, nil
}

// Dequeue implements Queue.
func (q *RedisQueue) Dequeue(ctx context.Context, queue string) (*model.QueueMessage, error) {
	res, err := claimScript.Run(ctx, q.rdb,
		[]string{schedKey(queue), msgsKey(queue)},
		q.now().UnixMilli(), q.claimTimeout.Milliseconds(),
	).Result()
	if err == redis.Nil {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue %s: %w", queue, err)
	}
	arr, ok := res.([]interface{})
	if !ok || len(arr) == 0 {
		return nil, fmt.Errorf("dequeue %s: unexpected script result %v", queue, res)
	}
	if len(arr) < 2 {
		// Schedule entry without a body (a false HGET truncates the
		// Lua reply); drop the orphan.
		if id, ok := arr[0].(string); ok {
			_ = q.rdb.ZRem(ctx, schedKey(queue), id).Err()
		}
		return nil, ErrEmpty
	}
	raw, ok := arr[1].(string)
	if !ok {
		return nil, fmt.Errorf("dequeue %s: unexpected script result %v", queue, res)
	}
	var msg model.QueueMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return nil, fmt.Errorf("dequeue %s: decode message: %w", queue, err)
	}
	return &msg, nil
}

// Complete implements Queue.
func (q *RedisQueue) Complete(ctx context.Context, msg *model.QueueMessage) error {
	err := removeScript.Run(ctx, q.rdb,
		[]string{schedKey(msg.Queue), msgsKey(msg.Queue)}, msg.ID,
	).Err()
	if err != nil {
		return fmt.Errorf("complete %s/%s: %w", msg.Queue, msg.ID, err)
	}
	return nil
}

// Retry implements Queue.
func (q *RedisQueue) Retry(ctx context.Context, msg *model.QueueMessage, reason string) error {
	msg.Attempts++
	if msg.Attempts >= q.maxAttempts {
		return q.deadLetter(ctx, msg, reason)
	}
	msg.NextAttemptAt = q.now().UTC().Add(Backoff(msg.Attempts))
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, msgsKey(msg.Queue), msg.ID, body)
	pipe.ZAdd(ctx, schedKey(msg.Queue), redis.Z{Score: float64(msg.NextAttemptAt.UnixMilli()), Member: msg.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("retry %s/%s: %w", msg.Queue, msg.ID, err)
	}
	return nil
}

func (q *RedisQueue) deadLetter(ctx context.Context, msg *model.QueueMessage, reason string) error {
	entry := model.DeadLetterEntry{Message: *msg, Reason: reason, FailedAt: q.now().UTC()}
	body, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	pipe := q.rdb.TxPipeline()
	pipe.LPush(ctx, deadKey(msg.Queue), body)
	pipe.ZRem(ctx, schedKey(msg.Queue), msg.ID)
	pipe.HDel(ctx, msgsKey(msg.Queue), msg.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("dead-letter %s/%s: %w", msg.Queue, msg.ID, err)
	}
	return nil
}

// DeadLetters implements Queue.
func (q *RedisQueue) DeadLetters(ctx context.Context, queue string) ([]model.DeadLetterEntry, error) {
	raws, err := q.rdb.LRange(ctx, deadKey(queue), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("dead letters %s: %w", queue, err)
	}
	out := make([]model.DeadLetterEntry, 0, len(raws))
	for _, raw := range raws {
		var entry model.DeadLetterEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, fmt.Errorf("dead letters %s: decode entry: %w", queue, err)
		}
		out = append(out, entry)
	}
	return out, nil
}

// Replay implements Queue.  The replayed message keeps its id, so a
// still-scheduled duplicate cannot be created.  The message is
// re-enqueued before it leaves the dead-letter list: if the enqueue
// fails the entry stays put, and the id-keyed enqueue makes the
// leftover-entry window harmless.
func (q *RedisQueue) Replay(ctx context.Context, queue, id string) error {
	raws, err := q.rdb.LRange(ctx, deadKey(queue), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("replay %s/%s: %w", queue, id, err)
	}
	for _, raw := range raws {
		var entry model.DeadLetterEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			continue
		}
		if entry.Message.ID != id {
			continue
		}
		if _, err := q.Enqueue(ctx, queue, entry.Message.Payload, 0, id); err != nil {
			return fmt.Errorf("replay %s/%s: %w", queue, id, err)
		}
		if err := q.rdb.LRem(ctx, deadKey(queue), 1, raw).Err(); err != nil {
			return fmt.Errorf("replay %s/%s: %w", queue, id, err)
		}
		return nil
	}
	return ErrNotFound
}

// PurgeDeadLetters implements Queue.
func (q *RedisQueue) PurgeDeadLetters(ctx context.Context, queue string) (int, error) {
	n, err := q.rdb.LLen(ctx, deadKey(queue)).Result()
	if err != nil {
		return 0, err
	}
	if err := q.rdb.Del(ctx, deadKey(queue)).Err(); err != nil {
		return 0, err
	}
	return int(n), nil
}

func schedKey(queue string) string { return "queue:" + queue + ":sched" }
func msgsKey(queue string) string  { return "queue:" + queue + ":msgs" }
func deadKey(queue string) string  { return "queue:" + queue + ":dead" }
