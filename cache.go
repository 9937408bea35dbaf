package flags

import (
	"hash/fnv"
	"sort"
	"sync"
)

// Cache stores the last known state of every flag. Entries never expire by
// age: a stale entry is still the best answer while the remote is down, so
// freshness is judged by the caller against CacheEntry.IsFresh.
//
// Implementations must be safe for concurrent use and must return entries
// that are bit-identical to what was stored.
type Cache interface {
	Get(name string) (CacheEntry, bool)
	Put(name string, entry CacheEntry) error
	List() []CachedFlag
	Clear() error
}

// BatchCache is implemented by caches that can store a whole snapshot at
// once. The client prefers it over per-flag Put calls.
type BatchCache interface {
	PutAll(entries map[string]CacheEntry) error
}

const defaultCacheShards = 16

// InMemoryCache is a sharded, process-local Cache.
type InMemoryCache struct {
	shards    []*cacheShard
	numShards int
}

type cacheShard struct {
	mu    sync.RWMutex
	store map[string]CacheEntry
}

// NewInMemoryCache creates an empty cache.
func NewInMemoryCache() *InMemoryCache {
	numShards := defaultCacheShards
	shards := make([]*cacheShard, numShards)
	for i := range shards {
		shards[i] = &cacheShard{
			store: make(map[string]CacheEntry),
		}
	}
	return &InMemoryCache{
		shards:    shards,
		numShards: numShards,
	}
}

func (c *InMemoryCache) getShard(name string) *cacheShard {
	hash := fnv.New32a()
	_, _ = hash.Write([]byte(name))
	return c.shards[hash.Sum32()%uint32(c.numShards)]
}

// Get returns a copy of the stored entry.
func (c *InMemoryCache) Get(name string) (CacheEntry, bool) {
	shard := c.getShard(name)
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	entry, exists := shard.store[name]
	if !exists {
		return CacheEntry{}, false
	}
	entry.State = entry.State.Clone()
	return entry, true
}

// Put stores a copy of entry, replacing any previous one.
func (c *InMemoryCache) Put(name string, entry CacheEntry) error {
	entry.State = entry.State.Clone()

	shard := c.getShard(name)
	shard.mu.Lock()
	shard.store[name] = entry
	shard.mu.Unlock()
	return nil
}

// List returns every entry sorted by flag name.
func (c *InMemoryCache) List() []CachedFlag {
	var out []CachedFlag
	for _, shard := range c.shards {
		shard.mu.RLock()
		for name, entry := range shard.store {
			entry.State = entry.State.Clone()
			out = append(out, CachedFlag{Name: name, Entry: entry})
		}
		shard.mu.RUnlock()
	}
	sortCachedFlags(out)
	return out
}

// Len returns the number of stored entries.
func (c *InMemoryCache) Len() int {
	n := 0
	for _, shard := range c.shards {
		shard.mu.RLock()
		n += len(shard.store)
		shard.mu.RUnlock()
	}
	return n
}

// Clear drops every entry.
func (c *InMemoryCache) Clear() error {
	for _, shard := range c.shards {
		shard.mu.Lock()
		shard.store = make(map[string]CacheEntry)
		shard.mu.Unlock()
	}
	return nil
}

func sortCachedFlags(flags []CachedFlag) {
	sort.Slice(flags, func(i, j int) bool { return flags[i].Name < flags[j].Name })
}
