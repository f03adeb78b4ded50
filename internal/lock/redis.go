package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ratesync:lock:"

// releaseScript deletes the key only while it still holds our owner id.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker takes locks with SET NX PX.
type RedisLocker struct {
	rdb *redis.Client
}

// NewRedisLocker connects to the Redis instance at url.
func NewRedisLocker(ctx context.Context, url string) (*RedisLocker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisLocker{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (l *RedisLocker) Close() error {
	return l.rdb.Close()
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	owner, err := NewOwner()
	if err != nil {
		return nil, err
	}

	fullKey := redisKeyPrefix + key
	ok, err := l.rdb.SetNX(ctx, fullKey, owner, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("setnx failed: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotAcquired, key)
	}
	return &redisLease{rdb: l.rdb, key: fullKey, owner: owner}, nil
}

type redisLease struct {
	rdb   *redis.Client
	key   string
	owner string
}

func (l *redisLease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.owner).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	return nil
}
