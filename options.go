package flags

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// WithCache sets the cache backend. The default is an InMemoryCache, or a
// RedisCache when Config.RedisURL is set.
func WithCache(cache Cache) Option {
	return func(c *Client) {
		c.cache = cache
	}
}

// WithFetcher replaces the built-in HTTP fetcher. Credentials are not
// required when a custom fetcher is supplied.
func WithFetcher(fetcher Fetcher) Option {
	return func(c *Client) {
		c.fetcher = fetcher
	}
}

// WithHTTPClient sets the HTTP client used by the built-in fetcher.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithLogger sets the logger.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithZapLogger logs through l.
func WithZapLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.logger = NewZapLogger(l)
	}
}

// WithMetrics enables Prometheus metrics on the default registerer.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsRegisterer enables Prometheus metrics on registerer.
func WithMetricsRegisterer(registerer prometheus.Registerer) Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollectorWithRegistry(registerer)
	}
}

// WithMetricsCollector sets a custom metrics collector
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider. The global
// provider is used otherwise.
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(c *Client) {
		c.tracerProvider = provider
	}
}

// WithClock sets the time source used for cache freshness and breaker
// cooldowns.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// WithEnvLookup sets the function used to read override variables.
func WithEnvLookup(lookup EnvLookup) Option {
	return func(c *Client) {
		c.envLookup = lookup
	}
}

// WithDeduplication toggles coalescing of concurrent remote fetches. It is
// on by default.
func WithDeduplication(enabled bool) Option {
	return func(c *Client) {
		c.dedup = enabled
	}
}
