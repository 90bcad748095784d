package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/achievement-api/pkg/cache"
)

var releaseScript = redis.NewScript(`if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// LockRepository provides best-effort distributed locks on Redis.
type LockRepository struct {
	client *redis.Client
	prefix string
}

// NewLockRepository constructs a lock repository.
func NewLockRepository(client *redis.Client, prefix string) *LockRepository {
	return &LockRepository{client: client, prefix: prefix}
}

// TryAcquire attempts to take the named lock for ttl. When acquired the returned release func
// deletes the lock only if it is still owned by this caller.
func (r *LockRepository) TryAcquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, bool, error) {
	key := cache.Key(r.prefix, "lock", name)
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis acquire %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
			return fmt.Errorf("redis release %s: %w", key, err)
		}
		return nil
	}
	return release, true, nil
}
