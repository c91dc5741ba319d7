package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisPropertyLocker implements PropertyLocker on Redis SET NX with an
// owner token, giving exclusion across service instances.
type RedisPropertyLocker struct {
	client *redis.Client
	wait   time.Duration
	ttl    time.Duration
}

func NewRedisPropertyLocker(client *redis.Client, wait, ttl time.Duration) *RedisPropertyLocker {
	if wait <= 0 {
		wait = DefaultWait
	}
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	return &RedisPropertyLocker{client: client, wait: wait, ttl: ttl}
}

func lockKey(propertyID int64) string {
	return fmt.Sprintf("property_lock:%d", propertyID)
}

// releaseScript deletes the key only when the owner token still matches, so
// a lease expired and re-acquired by another writer is never released here.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0`)

func (l *RedisPropertyLocker) Acquire(ctx context.Context, propertyID int64) (Lease, error) {
	if l.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}

	key := lockKey(propertyID)
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire property lock: %w", err)
		}
		if ok {
			return &redisLease{client: l.client, key: key, token: token}, nil
		}

		if time.Now().Add(retryInterval).After(deadline) {
			return nil, ErrTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
		}
	}
}

type redisLease struct {
	client *redis.Client
	key    string
	token  string
}

func (l *redisLease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release property lock: %w", err)
	}
	return nil
}

// Ping verifies the Redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}
