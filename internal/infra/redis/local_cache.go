package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// LocalCache keeps per-student attempt state (warning counts, question orders) in Redis
// so it survives page reloads and server restarts. Entries expire after ttl so abandoned
// attempts do not accumulate.
type LocalCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewLocalCache(client *redis.Client, prefix string, ttl time.Duration) *LocalCache {
	return &LocalCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *LocalCache) Read(ctx context.Context, key string) (string, bool, error) {
	value, err := c.client.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (c *LocalCache) Write(ctx context.Context, key, value string) error {
	return c.client.Set(ctx, c.prefix+key, value, c.ttl).Err()
}

func (c *LocalCache) Clear(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.prefix+key).Err()
}
