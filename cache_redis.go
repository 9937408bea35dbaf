package flags

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultRedisKey is the hash that holds every cached flag.
	DefaultRedisKey = "flags:cache"

	defaultRedisTimeout = 2 * time.Second
)

// RedisCache is a persistent Cache. Entries live in a single Redis hash
// keyed by flag name, with an in-memory mirror serving reads so that a
// resolution never waits on the network. Writes land in the mirror first,
// so a Redis outage costs persistence but never the last-known-good value.
type RedisCache struct {
	client  redis.UniversalClient
	key     string
	timeout time.Duration
	logger  Logger
	mirror  *InMemoryCache
	loadErr error
}

// RedisCacheOption configures a RedisCache.
type RedisCacheOption func(*RedisCache)

// WithRedisKey sets the hash key used to store entries.
func WithRedisKey(key string) RedisCacheOption {
	return func(c *RedisCache) {
		if key != "" {
			c.key = key
		}
	}
}

// WithRedisTimeout bounds every Redis round trip.
func WithRedisTimeout(timeout time.Duration) RedisCacheOption {
	return func(c *RedisCache) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithRedisLogger sets the logger used to report skipped entries.
func WithRedisLogger(logger Logger) RedisCacheOption {
	return func(c *RedisCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewRedisCache creates a cache backed by client and loads everything
// already stored under its key. If loading fails the returned cache is
// still usable (it starts empty) and the error is also kept in LoadErr.
func NewRedisCache(client redis.UniversalClient, opts ...RedisCacheOption) (*RedisCache, error) {
	c := &RedisCache{
		client:  client,
		key:     DefaultRedisKey,
		timeout: defaultRedisTimeout,
		logger:  NewNopLogger(),
		mirror:  NewInMemoryCache(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.load(); err != nil {
		c.loadErr = err
		return c, err
	}
	return c, nil
}

// ConnectRedis parses a redis:// URL and verifies the server answers.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, newFlagError(ErrorTypeCacheBackend, "invalid redis url", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, newFlagError(ErrorTypeCacheBackend, "redis not reachable", err)
	}
	return client, nil
}

func (c *RedisCache) load() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	raw, err := c.client.HGetAll(ctx, c.key).Result()
	if err != nil {
		return newFlagError(ErrorTypeCacheBackend, "load persisted flags", err)
	}

	for name, value := range raw {
		var entry CacheEntry
		if err := json.Unmarshal([]byte(value), &entry); err != nil {
			c.logger.Warn("Skipping unreadable cache entry", "flag", name, "error", err)
			continue
		}
		_ = c.mirror.Put(name, entry)
	}

	c.logger.Debug("Loaded persisted flags", "key", c.key, "count", c.mirror.Len())
	return nil
}

// LoadErr returns the error hit while loading persisted entries, if any.
func (c *RedisCache) LoadErr() error {
	return c.loadErr
}

// Get serves from the in-memory mirror.
func (c *RedisCache) Get(name string) (CacheEntry, bool) {
	return c.mirror.Get(name)
}

// Put stores entry in the mirror and then writes it through to Redis. A
// failed write is reported but the mirror keeps the new entry.
func (c *RedisCache) Put(name string, entry CacheEntry) error {
	return c.PutAll(map[string]CacheEntry{name: entry})
}

// PutAll stores every entry in the mirror and writes them to Redis with a
// single HSET.
func (c *RedisCache) PutAll(entries map[string]CacheEntry) error {
	if len(entries) == 0 {
		return nil
	}

	var encodeErr error
	fields := make(map[string]any, len(entries))
	for name, entry := range entries {
		_ = c.mirror.Put(name, entry)

		payload, err := json.Marshal(entry)
		if err != nil {
			encodeErr = errors.Join(encodeErr, err)
			continue
		}
		fields[name] = payload
	}
	if len(fields) == 0 {
		return cacheWriteError("encode cache entry", encodeErr, entries)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	if err := c.client.HSet(ctx, c.key, fields).Err(); err != nil {
		return cacheWriteError("persist cache entries", errors.Join(err, encodeErr), entries)
	}
	if encodeErr != nil {
		return cacheWriteError("encode cache entry", encodeErr, entries)
	}
	return nil
}

func cacheWriteError(msg string, err error, entries map[string]CacheEntry) *FlagError {
	fe := newFlagError(ErrorTypeCacheBackend, msg, err)
	if len(entries) == 1 {
		for name := range entries {
			fe.Flag = name
		}
	}
	return fe
}

// List returns every mirrored entry sorted by name.
func (c *RedisCache) List() []CachedFlag {
	return c.mirror.List()
}

// Clear removes the hash from Redis and empties the mirror.
func (c *RedisCache) Clear() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	err := c.client.Del(ctx, c.key).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return newFlagError(ErrorTypeCacheBackend, "clear persisted flags", err)
	}
	return c.mirror.Clear()
}

// Len returns the number of mirrored entries.
func (c *RedisCache) Len() int {
	return c.mirror.Len()
}

// Ping checks that the backing server is reachable.
func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return newFlagError(ErrorTypeCacheBackend, "redis ping failed", err)
	}
	return nil
}
