package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"clipcast/internal/config"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient builds a client from config.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

const (
	wakeQueueKey  = "clipcast:publish:wake"
	deadLetterKey = "clipcast:publish:deadletter"
	counterPrefix = "clipcast:counter:"
)

// RedisStateRepository coordinates workers through Redis: a wake-signal
// list of due job ids (fast path ahead of DB polling), a dead-letter list
// of abandoned jobs, and short-lived engagement counters.
type RedisStateRepository struct {
	client *redis.Client
}

func NewRedisStateRepository(client *redis.Client) *RedisStateRepository {
	return &RedisStateRepository{client: client}
}

// PushWake signals workers that a job is due now.
func (r *RedisStateRepository) PushWake(ctx context.Context, jobID int64) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.LPush(ctx, wakeQueueKey, jobID).Err(); err != nil {
		return fmt.Errorf("failed to push wake signal: %w", err)
	}
	return nil
}

// PopWake blocks up to timeout for a wake signal. The second return is
// false when the wait timed out without a signal.
func (r *RedisStateRepository) PopWake(ctx context.Context, timeout time.Duration) (int64, bool, error) {
	if r.client == nil {
		return 0, false, fmt.Errorf("redis client is nil")
	}
	res, err := r.client.BRPop(ctx, timeout, wakeQueueKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.DeadlineExceeded) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to pop wake signal: %w", err)
	}
	if len(res) != 2 {
		return 0, false, nil
	}
	id, err := strconv.ParseInt(res[1], 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("malformed wake signal %q: %w", res[1], err)
	}
	return id, true, nil
}

// PushDeadLetter records an abandoned job payload for operator tooling.
func (r *RedisStateRepository) PushDeadLetter(ctx context.Context, payload []byte) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.LPush(ctx, deadLetterKey, payload).Err(); err != nil {
		return fmt.Errorf("failed to push dead letter: %w", err)
	}
	return nil
}

// IncrWindow increments a windowed counter and returns the new count.
// The TTL starts on the first increment of the window.
func (r *RedisStateRepository) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	if r.client == nil {
		return 0, fmt.Errorf("redis client is nil")
	}
	full := counterPrefix + key
	count, err := r.client.Incr(ctx, full).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter: %w", err)
	}
	if count == 1 {
		r.client.Expire(ctx, full, window)
	}
	return count, nil
}

// Ping verifies the Redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
