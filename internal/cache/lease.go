package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token, so a lease that
// expired and was taken over by another instance is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lease is a Redis-backed mutual exclusion with a TTL. Each Lease value has its own
// holder token.
type Lease struct {
	rdb   *redis.Client
	token string
}

func NewLease(rdb *redis.Client) *Lease {
	return &Lease{rdb: rdb, token: uuid.NewString()}
}

// Acquire takes key for ttl. It reports false when another holder has it.
func (l *Lease) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, key, l.token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease %s: %w", key, err)
	}
	return ok, nil
}

func (l *Lease) Release(ctx context.Context, key string) error {
	if err := releaseScript.Run(ctx, l.rdb, []string{key}, l.token).Err(); err != nil {
		return fmt.Errorf("failed to release lease %s: %w", key, err)
	}
	return nil
}
