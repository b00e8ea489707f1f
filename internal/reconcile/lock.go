package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker serialises reconciliation cycles across replicas. Acquire reports
// false without error when another holder owns the lock.
type Locker interface {
	Acquire(ctx context.Context) (release func(), ok bool, err error)
}

// releaseScript deletes the key only if it still holds our token, so an
// expired lock taken over by another replica is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
}

func NewRedisLocker(client redis.Cmdable, key string, ttl time.Duration) *RedisLocker {
	if key == "" {
		key = "silo-runners:reconcile:lock"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisLocker{client: client, key: key, ttl: ttl}
}

func (l *RedisLocker) Acquire(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire reconcile lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.client, []string{l.key}, token).Err(); err != nil {
			slog.Warn("Failed to release reconcile lock", "key", l.key, "error", err)
		}
	}
	return release, true, nil
}

// noopLocker always grants the lock; used when a single replica runs.
type noopLocker struct{}

func (noopLocker) Acquire(context.Context) (func(), bool, error) {
	return func() {}, true, nil
}
