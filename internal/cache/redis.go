// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/showguessr/server/internal/models"
)

// DefaultQueueName is the Redis list session records are pushed to.
const DefaultQueueName = "showguessr_history"

// HistoryQueue is a Redis list carrying session records from the game server to
// the historian. It satisfies game.Publisher on the producing side and
// historian.Source on the consuming side.
type HistoryQueue struct {
	client *redis.Client
	queue  string
}

// NewHistoryQueue creates a client for addr. It does not dial; call Ping to check
// connectivity.
func NewHistoryQueue(addr string, db int, queue string) *HistoryQueue {
	if queue == "" {
		queue = DefaultQueueName
	}
	return &HistoryQueue{
		client: redis.NewClient(&redis.Options{Addr: addr, DB: db}),
		queue:  queue,
	}
}

// Queue returns the list name.
func (q *HistoryQueue) Queue() string { return q.queue }

func (q *HistoryQueue) Ping(ctx context.Context) error {
	if err := q.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis at %s: %w", q.client.Options().Addr, err)
	}
	return nil
}

// PublishSessionRecord serializes rec and appends it to the queue.
func (q *HistoryQueue) PublishSessionRecord(ctx context.Context, rec models.SessionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal SessionRecord: %w", err)
	}
	if err := q.client.RPush(ctx, q.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", q.queue, err)
	}
	return nil
}

// Pop waits up to timeout for the next record. ok is false when the wait timed
// out. A malformed entry is consumed and reported as an error.
func (q *HistoryQueue) Pop(ctx context.Context, timeout time.Duration) (rec models.SessionRecord, ok bool, err error) {
	res, err := q.client.BLPop(ctx, timeout, q.queue).Result()
	if errors.Is(err, redis.Nil) {
		return rec, false, nil
	}
	if err != nil {
		return rec, false, fmt.Errorf("BLPop %s: %w", q.queue, err)
	}
	// res[0] is the list name, res[1] the payload.
	if len(res) < 2 {
		return rec, false, nil
	}
	if err := json.Unmarshal([]byte(res[1]), &rec); err != nil {
		return rec, false, fmt.Errorf("invalid session record: %w", err)
	}
	return rec, true, nil
}

func (q *HistoryQueue) Close() error {
	return q.client.Close()
}
