package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Rows []string `json:"rows"`
}

func newTestCache(t *testing.T, ttl time.Duration) (*TimelineCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewTimelineCache(client, ttl), mr
}

func TestTimelineCache_RoundTrip(t *testing.T) {
	cache, _ := newTestCache(t, time.Minute)
	ctx := context.Background()

	key := cache.Key(
		time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
	)
	assert.Equal(t, "timeline:2025-06-01:2025-06-30", key)

	var out payload
	assert.False(t, cache.Get(ctx, key, &out), "cold cache misses")

	cache.Set(ctx, key, payload{Rows: []string{"a", "b"}})
	require.True(t, cache.Get(ctx, key, &out))
	assert.Equal(t, []string{"a", "b"}, out.Rows)
}

func TestTimelineCache_TTLExpiry(t *testing.T) {
	cache, mr := newTestCache(t, time.Second)
	ctx := context.Background()

	cache.Set(ctx, "timeline:x", payload{Rows: []string{"a"}})
	mr.FastForward(2 * time.Second)

	var out payload
	assert.False(t, cache.Get(ctx, "timeline:x", &out))
}

func TestTimelineCache_Invalidate(t *testing.T) {
	cache, _ := newTestCache(t, time.Minute)
	ctx := context.Background()

	cache.Set(ctx, "timeline:a", payload{Rows: []string{"a"}})
	cache.Set(ctx, "timeline:b", payload{Rows: []string{"b"}})

	cache.Invalidate(ctx)

	var out payload
	assert.False(t, cache.Get(ctx, "timeline:a", &out))
	assert.False(t, cache.Get(ctx, "timeline:b", &out))
}

func TestTimelineCache_DisabledClient(t *testing.T) {
	cache := NewTimelineCache(nil, time.Minute)
	ctx := context.Background()

	cache.Set(ctx, "timeline:a", payload{Rows: []string{"a"}})
	var out payload
	assert.False(t, cache.Get(ctx, "timeline:a", &out))
	cache.Invalidate(ctx)
}
