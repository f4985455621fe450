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

func newTestRedis(t *testing.T) (Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCacheFromClient(client, "pos"), mr
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedis(t)

	key := c.GenerateKey("cart", "store-1")
	assert.Equal(t, "pos:cart:store-1", key)

	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, got, "miss returns empty string")

	require.NoError(t, c.Set(ctx, key, `{"v":1}`, time.Minute))
	got, err = c.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, `{"v":1}`, got)

	mr.FastForward(2 * time.Minute)
	got, err = c.Get(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, c.Set(ctx, key, "x", 0))
	require.NoError(t, c.Del(ctx, key))
	got, err = c.Get(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, got)

	assert.NoError(t, Ping(ctx, c))
}

func TestRedisCacheServerDown(t *testing.T) {
	c, mr := newTestRedis(t)
	mr.Close()

	_, err := c.Get(context.Background(), "k")
	assert.Error(t, err)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache("pos").(*memoryCache)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "a", []byte("one"), time.Second))
	require.NoError(t, c.Set(ctx, "b", "two", 0))

	v, _ := c.Get(ctx, "a")
	assert.Equal(t, "one", v)

	now = now.Add(2 * time.Second)
	v, _ = c.Get(ctx, "a")
	assert.Empty(t, v)
	v, _ = c.Get(ctx, "b")
	assert.Equal(t, "two", v, "zero ttl never expires")

	require.NoError(t, c.Del(ctx, "b"))
	v, _ = c.Get(ctx, "b")
	assert.Empty(t, v)
	assert.Equal(t, "pos:catalog:s1", c.GenerateKey("catalog", "s1"))
	assert.NoError(t, Ping(ctx, c))
}
