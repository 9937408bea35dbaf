package flags

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisCachePutGet(t *testing.T) {
	mr, client := newTestRedis(t)

	cache, err := NewRedisCache(client)
	require.NoError(t, err)
	assert.NoError(t, cache.LoadErr())

	entry := testEntry(true)
	require.NoError(t, cache.Put("checkout", entry))

	got, ok := cache.Get("checkout")
	require.True(t, ok)
	assert.True(t, got.State.Equal(entry.State))
	assert.True(t, got.CapturedAt.Equal(entry.CapturedAt))
	assert.Equal(t, entry.TTL, got.TTL)

	assert.True(t, mr.Exists(DefaultRedisKey))
	assert.NotEmpty(t, mr.HGet(DefaultRedisKey, "checkout"))
}

func TestRedisCacheSurvivesRestart(t *testing.T) {
	_, client := newTestRedis(t)

	first, err := NewRedisCache(client, WithRedisKey("svc:flags"))
	require.NoError(t, err)
	require.NoError(t, first.Put("checkout", testEntry(true)))
	require.NoError(t, first.Put("beta", testEntry(false)))

	second, err := NewRedisCache(client, WithRedisKey("svc:flags"))
	require.NoError(t, err)

	list := second.List()
	require.Len(t, list, 2)
	assert.Equal(t, "beta", list[0].Name)
	assert.Equal(t, "checkout", list[1].Name)

	got, ok := second.Get("checkout")
	require.True(t, ok)
	assert.True(t, got.State.Equal(testEntry(true).State))
	assert.True(t, got.CapturedAt.Equal(testEntry(true).CapturedAt))
}

func TestRedisCacheSkipsCorruptEntries(t *testing.T) {
	mr, client := newTestRedis(t)
	mr.HSet(DefaultRedisKey, "broken", "{not json")

	logger, logs := newObservedLogger()
	cache, err := NewRedisCache(client, WithRedisLogger(logger))
	require.NoError(t, err)

	_, ok := cache.Get("broken")
	assert.False(t, ok)
	assert.Equal(t, 1, logs.FilterMessage("Skipping unreadable cache entry").Len())
}

func TestRedisCacheLoadFailure(t *testing.T) {
	mr, client := newTestRedis(t)
	mr.Close()

	cache, err := NewRedisCache(client, WithRedisTimeout(200*time.Millisecond))
	require.Error(t, err)
	require.NotNil(t, cache, "a failed load still yields a usable cache")

	assert.True(t, errors.Is(err, ErrCacheBackend))
	assert.Equal(t, err, cache.LoadErr())
	assert.Empty(t, cache.List())
}

func TestRedisCachePutKeepsMirrorWhenRedisDown(t *testing.T) {
	mr, client := newTestRedis(t)
	cache, err := NewRedisCache(client, WithRedisTimeout(200*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, cache.Put("checkout", testEntry(true)))

	mr.Close()

	err = cache.Put("checkout", testEntry(false))
	require.Error(t, err)
	assert.Equal(t, ErrorTypeCacheBackend, ErrorTypeOf(err))

	var fe *FlagError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "checkout", fe.Flag)

	got, ok := cache.Get("checkout")
	require.True(t, ok)
	assert.False(t, got.State.Enabled, "mirror holds the latest entry")
}

func TestRedisCachePutAll(t *testing.T) {
	mr, client := newTestRedis(t)
	cache, err := NewRedisCache(client)
	require.NoError(t, err)

	require.NoError(t, cache.PutAll(map[string]CacheEntry{
		"checkout": testEntry(true),
		"search":   testEntry(false),
	}))
	require.NoError(t, cache.PutAll(nil))

	keys, err := mr.HKeys(DefaultRedisKey)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"checkout", "search"}, keys)
	assert.Equal(t, 2, cache.Len())

	restarted, err := NewRedisCache(client)
	require.NoError(t, err)
	got, ok := restarted.Get("search")
	require.True(t, ok)
	assert.False(t, got.State.Enabled)
}

func TestRedisCachePutAllWhenRedisDown(t *testing.T) {
	mr, client := newTestRedis(t)
	cache, err := NewRedisCache(client, WithRedisTimeout(200*time.Millisecond))
	require.NoError(t, err)

	mr.Close()

	start := time.Now()
	err = cache.PutAll(map[string]CacheEntry{
		"a": testEntry(true),
		"b": testEntry(true),
		"c": testEntry(true),
		"d": testEntry(true),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCacheBackend))
	assert.Less(t, time.Since(start), 2*time.Second, "one round trip for the whole batch")
	assert.Equal(t, 4, cache.Len())
}

func TestRedisCacheClear(t *testing.T) {
	mr, client := newTestRedis(t)
	cache, err := NewRedisCache(client)
	require.NoError(t, err)
	require.NoError(t, cache.Put("checkout", testEntry(true)))

	require.NoError(t, cache.Clear())
	assert.False(t, mr.Exists(DefaultRedisKey))
	assert.Zero(t, cache.Len())
}

func TestConnectRedis(t *testing.T) {
	mr, _ := newTestRedis(t)

	client, err := ConnectRedis(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	defer client.Close()

	cache, err := NewRedisCache(client)
	require.NoError(t, err)
	assert.NoError(t, cache.Ping(context.Background()))

	_, err = ConnectRedis(context.Background(), "not a url")
	assert.True(t, errors.Is(err, ErrCacheBackend))
}
