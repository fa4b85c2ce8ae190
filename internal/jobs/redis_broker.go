// server/internal/jobs/redis_broker.go
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// promoteBatch caps how many due retries one Pop moves back to waiting.
const promoteBatch = 100

// RedisBroker keeps each queue in Redis:
//
//	queue:<name>:wait       list, LPUSH in / pop from the right
//	queue:<name>:active     list of jobs being processed
//	queue:<name>:delayed    sorted set scored by the unix ms a retry is due
//	queue:<name>:completed  capped history list, newest first
//	queue:<name>:failed     capped history list, newest first
type RedisBroker struct {
	rdb *redis.Client
}

func NewRedisBroker(rdb *redis.Client) *RedisBroker {
	return &RedisBroker{rdb: rdb}
}

func queueKey(queue, list string) string {
	return fmt.Sprintf("queue:%s:%s", queue, list)
}

func (b *RedisBroker) Push(ctx context.Context, job *Job) error {
	job.State = StateWaiting
	raw, err := job.encode()
	if err != nil {
		return err
	}
	if err := b.rdb.LPush(ctx, queueKey(job.Queue, "wait"), raw).Err(); err != nil {
		return fmt.Errorf("push %s/%s: %w", job.Queue, job.Name, err)
	}
	return nil
}

func (b *RedisBroker) Pop(ctx context.Context, queue string, timeout time.Duration) (*Job, error) {
	if err := b.promote(ctx, queue); err != nil {
		log.Printf("Queue %s: promoting delayed jobs failed: %v", queue, err)
	}

	raw, err := b.rdb.BLMove(ctx, queueKey(queue, "wait"), queueKey(queue, "active"), "RIGHT", "LEFT", timeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pop %s: %w", queue, err)
	}
	job, err := decodeJob(raw)
	if err != nil {
		// Unreadable entries would block the active list forever.
		b.rdb.LRem(ctx, queueKey(queue, "active"), 1, raw)
		return nil, err
	}
	job.State = StateActive
	return job, nil
}

// promoteScript moves due retries from the delayed set to the waiting list
// in one step, so a crash cannot drop a job between the two.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
local moved = 0
for _, raw in ipairs(due) do
  if redis.call('ZREM', KEYS[1], raw) == 1 then
    redis.call('LPUSH', KEYS[2], raw)
    moved = moved + 1
  end
end
return moved
`)

// promote moves retries whose delay has passed back to the waiting list.
func (b *RedisBroker) promote(ctx context.Context, queue string) error {
	keys := []string{queueKey(queue, "delayed"), queueKey(queue, "wait")}
	return promoteScript.Run(ctx, b.rdb, keys, time.Now().UnixMilli(), promoteBatch).Err()
}

func (b *RedisBroker) finish(ctx context.Context, job *Job, list string, keep int) error {
	now := time.Now()
	job.FinishedAt = &now
	raw, err := job.encode()
	if err != nil {
		return err
	}
	pipe := b.rdb.TxPipeline()
	pipe.LRem(ctx, queueKey(job.Queue, "active"), 1, job.raw)
	pipe.LPush(ctx, queueKey(job.Queue, list), raw)
	if keep > 0 {
		pipe.LTrim(ctx, queueKey(job.Queue, list), 0, int64(keep-1))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record %s job %s: %w", list, job.ID, err)
	}
	return nil
}

func (b *RedisBroker) Complete(ctx context.Context, job *Job, keep int) error {
	job.State = StateCompleted
	return b.finish(ctx, job, "completed", keep)
}

func (b *RedisBroker) Fail(ctx context.Context, job *Job, keep int) error {
	job.State = StateFailed
	return b.finish(ctx, job, "failed", keep)
}

func (b *RedisBroker) Retry(ctx context.Context, job *Job, delay time.Duration) error {
	job.State = StateDelayed
	raw, err := job.encode()
	if err != nil {
		return err
	}
	due := time.Now().Add(delay).UnixMilli()
	pipe := b.rdb.TxPipeline()
	pipe.LRem(ctx, queueKey(job.Queue, "active"), 1, job.raw)
	pipe.ZAdd(ctx, queueKey(job.Queue, "delayed"), redis.Z{Score: float64(due), Member: raw})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("schedule retry of %s: %w", job.ID, err)
	}
	return nil
}

func (b *RedisBroker) Recover(ctx context.Context, queue string) (int, error) {
	n := 0
	for {
		_, err := b.rdb.LMove(ctx, queueKey(queue, "active"), queueKey(queue, "wait"), "LEFT", "RIGHT").Result()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("recover %s: %w", queue, err)
		}
		n++
	}
}

func (b *RedisBroker) Counts(ctx context.Context, queue string) (Counts, error) {
	pipe := b.rdb.Pipeline()
	waiting := pipe.LLen(ctx, queueKey(queue, "wait"))
	active := pipe.LLen(ctx, queueKey(queue, "active"))
	delayed := pipe.ZCard(ctx, queueKey(queue, "delayed"))
	completed := pipe.LLen(ctx, queueKey(queue, "completed"))
	failed := pipe.LLen(ctx, queueKey(queue, "failed"))
	if _, err := pipe.Exec(ctx); err != nil {
		return Counts{}, fmt.Errorf("count %s: %w", queue, err)
	}
	return Counts{
		Waiting:   waiting.Val(),
		Active:    active.Val(),
		Delayed:   delayed.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
	}, nil
}

func (b *RedisBroker) Failed(ctx context.Context, queue string, limit int) ([]Job, error) {
	raws, err := b.rdb.LRange(ctx, queueKey(queue, "failed"), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list failed %s: %w", queue, err)
	}
	out := make([]Job, 0, len(raws))
	for _, raw := range raws {
		j, err := decodeJob(raw)
		if err != nil {
			continue
		}
		out = append(out, *j)
	}
	return out, nil
}
