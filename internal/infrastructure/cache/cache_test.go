package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/clearsight/scenario-audit-backend/internal/infrastructure/config"
)

func setupTestRedis(t *testing.T) (*redisCache, *miniredis.Miniredis, func()) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	cfg := &config.RedisConfig{
		Addr:     mr.Addr(),
		Password: "",
		DB:       0,
	}

	logger := zaptest.NewLogger(t)

	cache, err := NewRedisCache(cfg, logger)
	require.NoError(t, err)

	rc := cache.(*redisCache)

	cleanup := func() {
		cache.Close()
		mr.Close()
	}

	return rc, mr, cleanup
}

func TestNewRedisCache(t *testing.T) {
	t.Run("successful creation", func(t *testing.T) {
		cache, _, cleanup := setupTestRedis(t)
		defer cleanup()

		assert.NotNil(t, cache)
		assert.NotNil(t, cache.client)
		assert.NotNil(t, cache.logger)
	})

	t.Run("nil logger", func(t *testing.T) {
		cfg := &config.RedisConfig{Addr: "localhost:6379"}
		_, err := NewRedisCache(cfg, nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("nil config", func(t *testing.T) {
		logger := zaptest.NewLogger(t)
		_, err := NewRedisCache(nil, logger)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "redis config is required")
	})

	t.Run("connection failure", func(t *testing.T) {
		mr, err := miniredis.Run()
		require.NoError(t, err)
		addr := mr.Addr()
		mr.Close()

		cfg := &config.RedisConfig{Addr: addr}
		logger := zaptest.NewLogger(t)

		_, err = NewRedisCache(cfg, logger)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "redis connection failed")
	})
}

func TestRedisCache_GetSet(t *testing.T) {
	cache, _, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()

	t.Run("set and get", func(t *testing.T) {
		err := cache.Set(ctx, "key1", "value1", time.Minute)
		require.NoError(t, err)

		val, err := cache.Get(ctx, "key1")
		require.NoError(t, err)
		assert.Equal(t, "value1", val)
	})

	t.Run("get missing key", func(t *testing.T) {
		_, err := cache.Get(ctx, "absent")
		require.Error(t, err)

		var notFound ErrCacheKeyNotFound
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "absent", notFound.Key)
	})

	t.Run("expired key", func(t *testing.T) {
		cache, mr, cleanup := setupTestRedis(t)
		defer cleanup()

		err := cache.Set(ctx, "short", "lived", time.Second)
		require.NoError(t, err)

		mr.FastForward(2 * time.Second)

		_, err = cache.Get(ctx, "short")
		var notFound ErrCacheKeyNotFound
		assert.ErrorAs(t, err, &notFound)
	})
}

func TestRedisCache_Delete(t *testing.T) {
	cache, _, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "doomed", "v", time.Minute))
	require.NoError(t, cache.Delete(ctx, "doomed"))

	_, err := cache.Get(ctx, "doomed")
	var notFound ErrCacheKeyNotFound
	assert.ErrorAs(t, err, &notFound)

	// Deleting an absent key is not an error.
	assert.NoError(t, cache.Delete(ctx, "doomed"))
}

func TestRedisCache_Exists(t *testing.T) {
	cache, _, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()

	ok, err := cache.Exists(ctx, "key")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, "key", "v", time.Minute))

	ok, err = cache.Exists(ctx, "key")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisCache_JSON(t *testing.T) {
	cache, _, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()

	type summary struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	t.Run("roundtrip", func(t *testing.T) {
		in := summary{Name: "validation_error", Count: 12}
		require.NoError(t, cache.SetJSON(ctx, "sum", in, time.Minute))

		var out summary
		require.NoError(t, cache.GetJSON(ctx, "sum", &out))
		assert.Equal(t, in, out)
	})

	t.Run("missing key", func(t *testing.T) {
		var out summary
		err := cache.GetJSON(ctx, "nope", &out)
		var notFound ErrCacheKeyNotFound
		assert.ErrorAs(t, err, &notFound)
	})

	t.Run("corrupt payload", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, "bad", "{not json", time.Minute))

		var out summary
		err := cache.GetJSON(ctx, "bad", &out)
		require.Error(t, err)

		var notFound ErrCacheKeyNotFound
		assert.False(t, errors.As(err, &notFound))
	})

	t.Run("unmarshalable value", func(t *testing.T) {
		err := cache.SetJSON(ctx, "fn", func() {}, time.Minute)
		assert.Error(t, err)
	})
}
