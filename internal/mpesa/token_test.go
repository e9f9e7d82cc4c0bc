package mpesa

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisCache(t *testing.T) {
	server := miniredis.RunT(t)
	cache := NewRedisCache(redis.NewClient(&redis.Options{Addr: server.Addr()}))
	ctx := context.Background()

	token, err := cache.Get(ctx)
	require.NoError(t, err)
	require.Empty(t, token)

	require.NoError(t, cache.Set(ctx, "tok-123", time.Minute))

	token, err = cache.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, "tok-123", token)

	server.FastForward(2 * time.Minute)

	token, err = cache.Get(ctx)
	require.NoError(t, err)
	require.Empty(t, token)
}

func TestMemoryCacheExpires(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	token, err := cache.Get(ctx)
	require.NoError(t, err)
	require.Empty(t, token)

	require.NoError(t, cache.Set(ctx, "tok-123", 20*time.Millisecond))

	token, err = cache.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, "tok-123", token)

	time.Sleep(30 * time.Millisecond)

	token, err = cache.Get(ctx)
	require.NoError(t, err)
	require.Empty(t, token)
}
