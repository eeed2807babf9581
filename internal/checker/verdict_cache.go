package checker

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"proxycrawler/internal/support"
)

const verdictKeyPrefix = "proxycrawler:verdict:"

// VerdictCache remembers recent per-endpoint verdicts so a crawl does not
// probe the same endpoint twice within the TTL.
type VerdictCache interface {
	Get(ctx context.Context, key string) (passed bool, found bool)
	Set(ctx context.Context, key string, passed bool)
}

type NopVerdictCache struct{}

func (NopVerdictCache) Get(context.Context, string) (bool, bool) { return false, false }

func (NopVerdictCache) Set(context.Context, string, bool) {}

type RedisVerdictCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisVerdictCache(client *redis.Client, ttl time.Duration) *RedisVerdictCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisVerdictCache{client: client, ttl: ttl}
}

// NewVerdictCache uses redis when REDIS_URL is set and a no-op cache otherwise.
func NewVerdictCache(ttl time.Duration) VerdictCache {
	client, err := support.GetRedisClient()
	if err != nil {
		if !errors.Is(err, support.ErrRedisNotConfigured) {
			log.Warn("Verdict cache disabled", "error", err)
		}
		return NopVerdictCache{}
	}
	return NewRedisVerdictCache(client, ttl)
}

func (c *RedisVerdictCache) Get(ctx context.Context, key string) (bool, bool) {
	value, err := c.client.Get(ctx, verdictRedisKey(key)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Debug("Verdict cache lookup failed", "key", key, "error", err)
		}
		return false, false
	}
	return value == "1", true
}

func (c *RedisVerdictCache) Set(ctx context.Context, key string, passed bool) {
	value := "0"
	if passed {
		value = "1"
	}
	if err := c.client.Set(ctx, verdictRedisKey(key), value, c.ttl).Err(); err != nil {
		log.Debug("Verdict cache write failed", "key", key, "error", err)
	}
}

func verdictRedisKey(key string) string {
	return verdictKeyPrefix + key
}
