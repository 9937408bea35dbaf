package flags

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flags-gg/go-flags/internal/singleflight"
)

const (
	instrumentationName = "github.com/flags-gg/go-flags"
	breakerMetricName   = "remote"
	fetchAllKey         = "all"
)

// Client resolves feature flags through the override, cache and remote
// layers. It is safe for concurrent use.
type Client struct {
	config Config

	overrides *OverrideResolver
	cache     Cache
	fetcher   Fetcher
	breaker   *CircuitBreaker
	fetches   *singleflight.Group[*Snapshot]

	httpClient     *http.Client
	metrics        *MetricsCollector
	logger         Logger
	tracerProvider trace.TracerProvider
	tracer         trace.Tracer
	now            func() time.Time
	envLookup      EnvLookup
	dedup          bool

	// rdb is the connection opened for RedisURL; nil when the cache was
	// supplied by the caller.
	rdb       *redis.Client
	closeOnce sync.Once
	closeErr  error
}

// New builds a Client from cfg. Zero fields of cfg take their defaults.
// Credentials are required unless a custom fetcher is supplied.
func New(cfg Config, options ...Option) (*Client, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := &Client{
		config:    cfg,
		now:       time.Now,
		envLookup: os.LookupEnv,
		dedup:     true,
	}

	for _, option := range options {
		option(client)
	}

	if client.logger == nil {
		client.logger = NewNopLogger()
	}
	if client.now == nil {
		client.now = time.Now
	}
	if client.envLookup == nil {
		client.envLookup = os.LookupEnv
	}
	if client.tracerProvider == nil {
		client.tracerProvider = otel.GetTracerProvider()
	}
	client.tracer = client.tracerProvider.Tracer(instrumentationName, trace.WithInstrumentationVersion(Version))

	if client.fetcher == nil {
		if err := cfg.validateAuth(); err != nil {
			return nil, err
		}
		client.fetcher = NewHTTPFetcher(cfg.BaseURL, cfg.Auth(), client.httpClient)
	}

	if client.cache == nil {
		client.cache = client.defaultCache()
	}

	client.overrides = NewOverrideResolver(cfg.OverridePrefix, client.envLookup, client.logger)
	client.fetches = singleflight.New[*Snapshot]()

	client.breaker = NewCircuitBreaker(cfg.CircuitBreaker)
	client.breaker.now = client.now
	client.breaker.onStateChange = client.onBreakerStateChange
	client.metrics.RecordCircuitBreakerState(breakerMetricName, StateClosed)
	client.metrics.RecordCacheSize(cacheName(client.cache), len(client.cache.List()))

	return client, nil
}

// defaultCache builds the configured backend. A Redis store that fails to
// load is still used; the failure is logged and counted.
func (c *Client) defaultCache() Cache {
	if c.config.RedisURL == "" {
		return NewInMemoryCache()
	}

	opts, err := redis.ParseURL(c.config.RedisURL)
	if err != nil {
		// Validate has already rejected unparsable URLs.
		return NewInMemoryCache()
	}

	c.rdb = redis.NewClient(opts)
	cache, err := NewRedisCache(c.rdb, WithRedisLogger(c.logger))
	if err != nil {
		c.logger.Error("Persistent cache unavailable, starting empty", "error", err)
		c.metrics.RecordError(ErrorTypeCacheBackend)
	}
	return cache
}

// Resolve returns the effective state of a boolean flag, falling back to def.
func (c *Client) Resolve(ctx context.Context, name string, def bool) Result {
	return c.ResolveState(ctx, name, FlagState{Enabled: def})
}

// IsEnabled reports whether the flag is on, treating unknown flags as off.
func (c *Client) IsEnabled(ctx context.Context, name string) bool {
	return c.Resolve(ctx, name, false).Enabled()
}

// ResolveState resolves a flag, trying the override, a fresh cache entry,
// the remote service, a stale cache entry and finally def, in that order.
// It never fails: problems are reported in Result.Err.
func (c *Client) ResolveState(ctx context.Context, name string, def FlagState) Result {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "flags.Resolve",
		trace.WithAttributes(attribute.String("flag.name", name)),
	)
	defer span.End()

	result := c.resolve(ctx, name, def)

	span.SetAttributes(
		attribute.String("flag.provenance", result.Provenance.String()),
		attribute.Bool("flag.enabled", result.State.Enabled),
	)
	if result.Err != nil {
		span.RecordError(result.Err)
	}
	c.metrics.RecordResolution(result.Provenance, time.Since(start))

	return result
}

func (c *Client) resolve(ctx context.Context, name string, def FlagState) Result {
	if state, ok, err := c.overrides.Resolve(name); ok {
		return Result{Flag: name, State: state, Provenance: ProvenanceOverride}
	} else if err != nil {
		c.metrics.RecordError(ErrorTypeOverrideParse)
	}

	entry, cached := c.cache.Get(name)
	if cached && entry.IsFresh(c.now()) {
		return Result{Flag: name, State: entry.State, Provenance: ProvenanceFreshCache}
	}

	snapshot, err := c.awaitFetch(ctx)
	if err == nil {
		if state, ok := snapshot.Lookup(name); ok {
			return Result{Flag: name, State: state.Clone(), Provenance: ProvenanceRemoteFresh}
		}
		fe := newFlagError(ErrorTypeFlagNotFound, "flag not in remote set", nil)
		fe.Flag = name
		return Result{Flag: name, State: def.Clone(), Provenance: ProvenanceDefault, Err: fe}
	}

	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return Result{Flag: name, State: def.Clone(), Provenance: ProvenanceDefault, Err: err}
	}

	if cached {
		return Result{Flag: name, State: entry.State, Provenance: ProvenanceStaleCache, Err: err}
	}
	return Result{Flag: name, State: def.Clone(), Provenance: ProvenanceDefault, Err: err}
}

// List resolves every flag the client knows about, sorted by name. At most
// one remote fetch is made, and only when some cached flag is stale or the
// cache is empty. A stale flag the remote no longer serves is reported as
// Default with ErrFlagNotFound, as Resolve would with a false default.
func (c *Client) List(ctx context.Context) []Result {
	ctx, span := c.tracer.Start(ctx, "flags.List")
	defer span.End()

	now := c.now()
	entries := c.cache.List()

	needsFetch := len(entries) == 0
	for _, cf := range entries {
		if _, overridden, _ := c.overrides.Resolve(cf.Name); overridden {
			continue
		}
		if !cf.Entry.IsFresh(now) {
			needsFetch = true
			break
		}
	}

	var snapshot *Snapshot
	var fetchErr error
	if needsFetch {
		snapshot, fetchErr = c.awaitFetch(ctx)
		if fetchErr != nil {
			span.RecordError(fetchErr)
		}
	}

	known := make(map[string]CacheEntry, len(entries))
	for _, cf := range entries {
		known[cf.Name] = cf.Entry
	}
	fetched := make(map[string]FlagState)
	if snapshot != nil {
		for _, f := range snapshot.Flags {
			fetched[f.Name] = f.State
		}
	}

	names := make([]string, 0, len(known)+len(fetched))
	for name := range known {
		names = append(names, name)
	}
	for name := range fetched {
		if _, ok := known[name]; !ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	results := make([]Result, 0, len(names))
	for _, name := range names {
		start := time.Now()
		var result Result
		state, overridden, _ := c.overrides.Resolve(name)
		entry := known[name]
		remote, ok := fetched[name]

		switch {
		case overridden:
			result = Result{Flag: name, State: state, Provenance: ProvenanceOverride}
		case ok:
			result = Result{Flag: name, State: remote.Clone(), Provenance: ProvenanceRemoteFresh}
		case entry.IsFresh(now):
			result = Result{Flag: name, State: entry.State, Provenance: ProvenanceFreshCache}
		case snapshot != nil:
			fe := newFlagError(ErrorTypeFlagNotFound, "flag not in remote set", nil)
			fe.Flag = name
			result = Result{Flag: name, Provenance: ProvenanceDefault, Err: fe}
		default:
			result = Result{Flag: name, State: entry.State, Provenance: ProvenanceStaleCache, Err: fetchErr}
		}
		c.metrics.RecordResolution(result.Provenance, time.Since(start))
		results = append(results, result)
	}

	span.SetAttributes(attribute.Int("flags.count", len(results)))
	return results
}

// Refresh forces a remote fetch through the circuit breaker and stores the
// result.
func (c *Client) Refresh(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "flags.Refresh")
	defer span.End()

	_, err := c.awaitFetch(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// awaitFetch starts (or joins) a remote fetch and waits for it or for ctx.
// The fetch itself is detached from ctx: a caller giving up does not stop
// it from warming the cache and settling breaker accounting.
func (c *Client) awaitFetch(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	detached := context.WithoutCancel(ctx)
	leader := false
	fn := func() (*Snapshot, error) {
		leader = true
		return c.fetchAndStore(detached)
	}

	var ch <-chan singleflight.Result[*Snapshot]
	if c.dedup {
		ch = c.fetches.DoChan(fetchAllKey, fn)
	} else {
		out := make(chan singleflight.Result[*Snapshot], 1)
		go func() {
			val, err := fn()
			out <- singleflight.Result[*Snapshot]{Val: val, Err: err}
		}()
		ch = out
	}

	select {
	case res := <-ch:
		if res.Shared && !leader {
			c.metrics.RecordDeduplicationHit()
		}
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// fetchAndStore performs one gated remote call and applies its outcome to
// the breaker and the cache.
func (c *Client) fetchAndStore(ctx context.Context) (*Snapshot, error) {
	if !c.breaker.Acquire() {
		c.metrics.RecordFetch(fetchOutcomeRejected, 0)
		c.metrics.RecordError(ErrorTypeCircuitOpen)
		return nil, newFlagError(ErrorTypeCircuitOpen, "remote call suppressed", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.FetchTimeout)
	defer cancel()

	ctx, span := c.tracer.Start(ctx, "flags.FetchAll", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	start := time.Now()
	snapshot, err := c.fetcher.FetchAll(ctx)
	if err == nil && snapshot == nil {
		err = newFlagError(ErrorTypeMalformedResponse, "fetcher returned no snapshot", nil)
	}
	if err != nil {
		fe := asFlagError(err, ErrorTypeRemoteUnavailable, "fetch flags")
		c.breaker.RecordFailure()
		c.metrics.RecordFetch(fetchOutcomeFailure, time.Since(start))
		c.metrics.RecordError(fe.Type)
		c.logger.Warn("Remote fetch failed", "error", fe, "type", fe.Type, "failures", c.breaker.Stats().Failures)
		span.RecordError(fe)
		span.SetStatus(codes.Error, fe.Type)
		return nil, fe
	}

	c.breaker.RecordSuccess()
	c.metrics.RecordFetch(fetchOutcomeSuccess, time.Since(start))
	span.SetAttributes(attribute.Int("flags.count", len(snapshot.Flags)))

	c.storeSnapshot(snapshot)
	return snapshot, nil
}

// storeSnapshot upserts every fetched flag. Flags missing from the snapshot
// keep their previous entries.
func (c *Client) storeSnapshot(snapshot *Snapshot) {
	ttl := c.config.CacheTTL
	if snapshot.RefreshInterval > 0 {
		ttl = snapshot.RefreshInterval
	}
	capturedAt := c.now()

	entries := make(map[string]CacheEntry, len(snapshot.Flags))
	for _, f := range snapshot.Flags {
		entries[f.Name] = CacheEntry{State: f.State, CapturedAt: capturedAt, TTL: ttl}
	}

	if batch, ok := c.cache.(BatchCache); ok {
		if err := batch.PutAll(entries); err != nil {
			c.logger.Error("Cache write failed", "flags", len(entries), "error", err)
			c.metrics.RecordError(ErrorTypeCacheBackend)
		}
	} else {
		for name, entry := range entries {
			if err := c.cache.Put(name, entry); err != nil {
				c.logger.Error("Cache write failed", "flag", name, "error", err)
				c.metrics.RecordError(ErrorTypeCacheBackend)
			}
		}
	}

	size := len(c.cache.List())
	c.metrics.RecordCacheSize(cacheName(c.cache), size)
	c.logger.Debug("Cache refreshed", "flags", len(snapshot.Flags), "ttl", ttl, "cached", size)
}

func (c *Client) onBreakerStateChange(from, to CircuitState) {
	c.logger.Info("Circuit breaker state changed", "from", from.String(), "to", to.String())
	c.metrics.RecordCircuitBreakerState(breakerMetricName, to)
}

// ClearCache purges every cached flag.
func (c *Client) ClearCache() error {
	if err := c.cache.Clear(); err != nil {
		c.metrics.RecordError(ErrorTypeCacheBackend)
		return err
	}
	c.metrics.RecordCacheSize(cacheName(c.cache), 0)
	return nil
}

// Close releases the Redis connection opened for Config.RedisURL. Caches
// passed in with WithCache are left to their owner. Close is idempotent.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if c.rdb == nil {
			return
		}
		if err := c.rdb.Close(); err != nil {
			c.closeErr = newFlagError(ErrorTypeCacheBackend, "close redis connection", err)
		}
	})
	return c.closeErr
}

// Reset closes the circuit breaker and forgets its failure history.
func (c *Client) Reset() {
	c.breaker.Reset()
}

// BreakerState reports the effective circuit state.
func (c *Client) BreakerState() CircuitState {
	return c.breaker.State()
}

// BreakerStats returns a snapshot of the circuit breaker.
func (c *Client) BreakerStats() CircuitBreakerStats {
	return c.breaker.Stats()
}

// Config returns the effective configuration.
func (c *Client) Config() Config {
	return c.config
}

// DebugInfo returns a one-line description of the client's configuration
// and state. Credentials other than the identifiers are never included.
func (c *Client) DebugInfo() string {
	stats := c.breaker.Stats()
	return fmt.Sprintf(
		"Client{baseURL=%s project=%s agent=%s environment=%s cacheTTL=%s cache=%s cached=%d breaker=%s failures=%d dedup=%t}",
		c.config.BaseURL,
		c.config.ProjectID,
		c.config.AgentID,
		c.config.EnvironmentID,
		c.config.CacheTTL,
		cacheName(c.cache),
		len(c.cache.List()),
		stats.State,
		stats.Failures,
		c.dedup,
	)
}

func cacheName(cache Cache) string {
	switch cache.(type) {
	case *InMemoryCache:
		return "memory"
	case *RedisCache:
		return "redis"
	default:
		return "custom"
	}
}
