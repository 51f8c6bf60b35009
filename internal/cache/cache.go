package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// TimelineCache is an optional Redis cache in front of the schedule board
// endpoint. Rendering the board walks every device and every rental in range,
// so dashboards polling it benefit from a short TTL. A nil client disables
// caching entirely.
type TimelineCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewTimelineCache(client *redis.Client, ttl time.Duration) *TimelineCache {
	return &TimelineCache{redis: client, ttl: ttl}
}

// Key builds the cache key for a display range.
func (c *TimelineCache) Key(from, to time.Time) string {
	return fmt.Sprintf("timeline:%s:%s", from.Format("2006-01-02"), to.Format("2006-01-02"))
}

// Get reads a cached payload into out. A miss, a broken payload or a
// disabled cache all report false.
func (c *TimelineCache) Get(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.ttl <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

// Set stores a payload under key. Failures are ignored; the cache is an
// optimization, not a source of truth.
func (c *TimelineCache) Set(ctx context.Context, key string, val any) {
	if c.redis == nil || c.ttl <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

// Invalidate drops every cached timeline range. Called after any write that
// changes the schedule.
func (c *TimelineCache) Invalidate(ctx context.Context) {
	if c.redis == nil {
		return
	}
	iter := c.redis.Scan(ctx, 0, "timeline:*", 100).Iterator()
	for iter.Next(ctx) {
		_ = c.redis.Del(ctx, iter.Val()).Err()
	}
}
