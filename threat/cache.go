package threat

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"sentinel/core"
	"sentinel/metrics"
)

// IndicatorCache fronts indicator lookups during correlation. A miss is
// not an error; correlation falls through to the store.
type IndicatorCache interface {
	Get(ctx context.Context, indType core.IndicatorType, value string) (*core.ThreatIndicator, bool)
	Set(ctx context.Context, ind *core.ThreatIndicator)
	Invalidate(ctx context.Context, indType core.IndicatorType, value string)
}

func cacheKey(indType core.IndicatorType, value string) string {
	return "indicator:" + string(indType) + ":" + value
}

type lruEntry struct {
	ind       *core.ThreatIndicator
	expiresAt time.Time
}

// LRUIndicatorCache is a bounded in-process cache with per-entry TTL.
type LRUIndicatorCache struct {
	entries *lru.Cache[string, lruEntry]
	ttl     time.Duration
}

func NewLRUIndicatorCache(size int, ttl time.Duration) (*LRUIndicatorCache, error) {
	if size <= 0 {
		size = 4096
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	entries, err := lru.New[string, lruEntry](size)
	if err != nil {
		return nil, err
	}
	return &LRUIndicatorCache{entries: entries, ttl: ttl}, nil
}

func (c *LRUIndicatorCache) Get(ctx context.Context, indType core.IndicatorType, value string) (*core.ThreatIndicator, bool) {
	entry, ok := c.entries.Get(cacheKey(indType, value))
	if !ok || time.Now().After(entry.expiresAt) {
		metrics.IndicatorCacheMisses.WithLabelValues("lru").Inc()
		return nil, false
	}
	metrics.IndicatorCacheHits.WithLabelValues("lru").Inc()
	return entry.ind, true
}

func (c *LRUIndicatorCache) Set(ctx context.Context, ind *core.ThreatIndicator) {
	c.entries.Add(cacheKey(ind.Type, ind.Value), lruEntry{
		ind:       ind,
		expiresAt: time.Now().Add(c.ttl),
	})
}

func (c *LRUIndicatorCache) Invalidate(ctx context.Context, indType core.IndicatorType, value string) {
	c.entries.Remove(cacheKey(indType, value))
}
