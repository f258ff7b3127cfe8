package leaselock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "aai:lease:"

var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end
`)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

type redisBackend struct {
	rdb redis.UniversalClient
}

// NewRedis returns a Client keeping leases as expiring Redis keys.
func NewRedis(rdb redis.UniversalClient) *Client {
	return &Client{b: &redisBackend{rdb: rdb}}
}

func (r *redisBackend) tryAcquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	ok, err := r.rdb.SetNX(ctx, redisKeyPrefix+key, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease: %w", err)
	}
	return ok, nil
}

func (r *redisBackend) renew(ctx context.Context, key, token string, ttl time.Duration) error {
	n, err := renewScript.Run(ctx, r.rdb, []string{redisKeyPrefix + key}, token, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("renew lease: %w", err)
	}
	if n != 1 {
		return ErrLost
	}
	return nil
}

func (r *redisBackend) release(ctx context.Context, key, token string) error {
	if err := releaseScript.Run(ctx, r.rdb, []string{redisKeyPrefix + key}, token).Err(); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}
