// Package queue implements the redis-backed dispatch queues. One list per
// job type carries wake-up notifications; the jobs table in Postgres stays
// the source of truth, so a lost or duplicated notification is harmless:
// workers always claim through the store's atomic conditional update.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Queue dispatches job wake-ups to workers.
type Queue interface {
	Enqueue(ctx context.Context, jobType string, jobID uuid.UUID) error
	// Dequeue blocks up to wait for a notification on the given job type's
	// list. Returns (uuid.Nil, nil) on timeout.
	Dequeue(ctx context.Context, jobType string, wait time.Duration) (uuid.UUID, error)
	Ping(ctx context.Context) error
	Close() error
}

// RedisQueue implements Queue using redis lists (LPUSH/BRPOP).
type RedisQueue struct {
	client *redis.Client
}

// NewRedisQueue creates a RedisQueue from a redis URL.
func NewRedisQueue(redisURL string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisQueue{client: redis.NewClient(opts)}, nil
}

func listKey(jobType string) string {
	return fmt.Sprintf("dispatch:%s", jobType)
}

func (q *RedisQueue) Enqueue(ctx context.Context, jobType string, jobID uuid.UUID) error {
	if err := q.client.LPush(ctx, listKey(jobType), jobID.String()).Err(); err != nil {
		return fmt.Errorf("enqueue %s job %s: %w", jobType, jobID, err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, jobType string, wait time.Duration) (uuid.UUID, error) {
	vals, err := q.client.BRPop(ctx, wait, listKey(jobType)).Result()
	if err == redis.Nil {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("dequeue %s: %w", jobType, err)
	}
	if len(vals) < 2 {
		return uuid.Nil, fmt.Errorf("dequeue %s: unexpected BRPOP response %v", jobType, vals)
	}
	id, err := uuid.Parse(vals[1])
	if err != nil {
		return uuid.Nil, fmt.Errorf("dequeue %s: bad job id %q: %w", jobType, vals[1], err)
	}
	return id, nil
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
