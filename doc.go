// Package flags is a client for the flags.gg feature flag service. It
// resolves a flag by consulting, in order:
//
//   - an environment override (FLAGS_<NAME>)
//   - a fresh entry in the local cache
//   - the remote service, gated by a circuit breaker
//   - a stale cache entry
//   - the caller's default
//
// Every answer carries its provenance, and resolution never fails: problems
// ride along in Result.Err while the caller still gets a usable state.
//
// Design goals:
//   - Stale data beats no data: cached entries are never evicted by age
//   - A failing remote is probed, not hammered (open / half-open / closed)
//   - Safe concurrent use of a single *Client instance
//   - Pluggable cache (in-memory, Redis), fetcher, logger, metrics, tracing
//
// Typical usage:
//
//	cfg, err := flags.LoadConfig()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client, err := flags.New(cfg, flags.WithMetrics())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if client.IsEnabled(ctx, "beta-ui") {
//	    // ...
//	}
//
// One successful fetch refreshes the whole flag set, so a single call warms
// the cache for every flag. Concurrent fetches are coalesced unless
// WithDeduplication(false) is given.
package flags
