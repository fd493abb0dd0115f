package threat

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"sentinel/core"
	"sentinel/metrics"
)

// RedisIndicatorCache is a shared cache for deployments running several
// instances against one indicator store. Errors degrade to cache misses so
// a Redis outage only costs latency.
type RedisIndicatorCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.SugaredLogger
}

func NewRedisIndicatorCache(addr, password string, db, poolSize int, ttl time.Duration, logger *zap.SugaredLogger) *RedisIndicatorCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: poolSize,
	})
	return &RedisIndicatorCache{client: client, ttl: ttl, logger: logger}
}

// Ping tests the Redis connection
func (c *RedisIndicatorCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *RedisIndicatorCache) Close() error {
	return c.client.Close()
}

func (c *RedisIndicatorCache) Get(ctx context.Context, indType core.IndicatorType, value string) (*core.ThreatIndicator, bool) {
	data, err := c.client.Get(ctx, cacheKey(indType, value)).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warnw("Redis cache read failed", "error", err)
		}
		metrics.IndicatorCacheMisses.WithLabelValues("redis").Inc()
		return nil, false
	}

	var ind core.ThreatIndicator
	if err := json.Unmarshal([]byte(data), &ind); err != nil {
		c.logger.Warnw("Redis cache entry corrupt", "key", cacheKey(indType, value), "error", err)
		metrics.IndicatorCacheMisses.WithLabelValues("redis").Inc()
		return nil, false
	}

	metrics.IndicatorCacheHits.WithLabelValues("redis").Inc()
	return &ind, true
}

func (c *RedisIndicatorCache) Set(ctx context.Context, ind *core.ThreatIndicator) {
	data, err := json.Marshal(ind)
	if err != nil {
		c.logger.Warnw("Failed to marshal indicator for cache", "indicator_id", ind.ID, "error", err)
		return
	}
	if err := c.client.Set(ctx, cacheKey(ind.Type, ind.Value), data, c.ttl).Err(); err != nil {
		c.logger.Warnw("Redis cache write failed", "error", err)
	}
}

func (c *RedisIndicatorCache) Invalidate(ctx context.Context, indType core.IndicatorType, value string) {
	if err := c.client.Del(ctx, cacheKey(indType, value)).Err(); err != nil {
		c.logger.Warnw("Redis cache invalidation failed", "error", err)
	}
}
