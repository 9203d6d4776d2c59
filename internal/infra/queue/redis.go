package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"carry-core/internal/domain"
	"carry-core/internal/infra/metrics"
)

// RedisRollupQueue реализует очередь задач сводок на базе Redis lists.
type RedisRollupQueue struct {
	client *redis.Client
	key    string
}

var _ domain.RollupQueue = (*RedisRollupQueue)(nil)

// NewRedisRollupQueue создаёт очередь по указанному ключу.
func NewRedisRollupQueue(client *redis.Client, key string) *RedisRollupQueue {
	return &RedisRollupQueue{client: client, key: key}
}

// Enqueue публикует задачу в очередь.
func (q *RedisRollupQueue) Enqueue(ctx context.Context, job domain.RollupJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.client.LPush(ctx, q.key, payload).Err()
	metrics.ObserveNetworkRequest("redis", "enqueue", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу из очереди. Неуспешное подтверждение
// возвращает задачу в хвост очереди.
func (q *RedisRollupQueue) Receive(ctx context.Context) (domain.RollupJob, domain.RollupAckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.RollupJob{}, nil, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.RollupJob{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.RollupJob{}, nil, err
		}
		if len(res) != 2 {
			return domain.RollupJob{}, nil, errors.New("redis queue: unexpected response")
		}
		raw := res[1]
		var job domain.RollupJob
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			return domain.RollupJob{}, nil, fmt.Errorf("decode job: %w", err)
		}
		ack := func(success bool) error {
			if success {
				return nil
			}
			requeueCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			return q.client.LPush(requeueCtx, q.key, raw).Err()
		}
		return job, ack, nil
	}
}
