package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// TickLease gates a scheduler tick. With several scheduler replicas running,
// only the lease holder executes the tick; the rest skip it.
type TickLease interface {
	TryAcquire(ctx context.Context) (bool, error)
}

// NoopTickLease always grants the tick. Used for single-instance
// deployments and tests.
type NoopTickLease struct{}

func (NoopTickLease) TryAcquire(_ context.Context) (bool, error) {
	return true, nil
}

// RedisTickLease grants at most one tick per TTL window across replicas
// using a SET NX key. The lease is never released early; a crashed holder's
// window simply expires.
type RedisTickLease struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func NewRedisTickLease(client *redis.Client, key string, ttl time.Duration) *RedisTickLease {
	return &RedisTickLease{client: client, key: key, ttl: ttl}
}

func (l *RedisTickLease) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, "1", l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire tick lease: %w", err)
	}

	return ok, nil
}
