package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compozy/docqa/pkg/logger"
)

func setupMiniredis(t *testing.T, cfg *Config) (*miniredis.Miniredis, *Redis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	r := NewRedisWithClient(client, cfg)
	t.Cleanup(func() { _ = r.Close() })
	return mr, r
}

func TestVectorCache(t *testing.T) {
	t.Run("Should round trip vectors and skip missing keys", func(t *testing.T) {
		_, r := setupMiniredis(t, &Config{})
		c := NewVectorCache(r)
		ctx := context.Background()
		require.NoError(t, c.SetVectors(ctx, map[string][]float32{
			"a": {0.25, -1.5, 3},
			"b": {1},
		}))
		got, err := c.GetVectors(ctx, []string{"a", "missing", "b"})
		require.NoError(t, err)
		assert.Equal(t, map[string][]float32{"a": {0.25, -1.5, 3}, "b": {1}}, got)
	})

	t.Run("Should namespace keys with the prefix and apply the TTL", func(t *testing.T) {
		mr, r := setupMiniredis(t, &Config{Prefix: "test:", TTL: time.Hour})
		c := NewVectorCache(r)
		require.NoError(t, c.SetVectors(context.Background(), map[string][]float32{"k": {2}}))
		assert.True(t, mr.Exists("test:vec:k"))
		assert.Equal(t, time.Hour, mr.TTL("test:vec:k"))
		mr.FastForward(2 * time.Hour)
		got, err := c.GetVectors(context.Background(), []string{"k"})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("Should ignore undecodable entries", func(t *testing.T) {
		mr, r := setupMiniredis(t, &Config{})
		require.NoError(t, mr.Set("docqa:vec:bad", "abc"))
		got, err := NewVectorCache(r).GetVectors(context.Background(), []string{"bad"})
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestNewRedis(t *testing.T) {
	ctx := logger.ContextWithLogger(context.Background(), logger.NewForTests())

	t.Run("Should connect through a URL", func(t *testing.T) {
		mr := miniredis.RunT(t)
		r, err := NewRedis(ctx, &Config{URL: "redis://" + mr.Addr() + "/0"})
		require.NoError(t, err)
		require.NoError(t, r.Close())
		require.NoError(t, r.Close())
	})

	t.Run("Should fail when the server is unreachable", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()
		_, err := NewRedis(ctx, &Config{URL: "redis://" + addr, PingTimeout: 200 * time.Millisecond})
		require.Error(t, err)
	})

	t.Run("Should require a URL", func(t *testing.T) {
		_, err := NewRedis(ctx, &Config{})
		require.Error(t, err)
	})
}
