package flags

import (
	"bytes"
	"encoding/json"
	"time"
)

// FlagState is the resolved value of a flag. Treat it as immutable: every
// resolution hands out its own copy.
type FlagState struct {
	ID      string          `json:"id,omitempty"`
	Enabled bool            `json:"enabled"`
	Variant json.RawMessage `json:"variant,omitempty"`
}

// Clone returns a deep copy of s.
func (s FlagState) Clone() FlagState {
	if s.Variant != nil {
		s.Variant = bytes.Clone(s.Variant)
	}
	return s
}

// Equal reports whether two states carry the same value and payload.
func (s FlagState) Equal(other FlagState) bool {
	return s.ID == other.ID && s.Enabled == other.Enabled && bytes.Equal(s.Variant, other.Variant)
}

// Flag pairs a flag identifier with its state. Identifiers are case-sensitive.
type Flag struct {
	Name  string
	State FlagState
}

// CacheEntry is the last known state of a flag together with the time it was
// captured and the window during which it counts as fresh.
type CacheEntry struct {
	State      FlagState     `json:"state"`
	CapturedAt time.Time     `json:"captured_at"`
	TTL        time.Duration `json:"ttl"`
}

// IsFresh reports whether the entry is still inside its freshness window.
func (e CacheEntry) IsFresh(now time.Time) bool {
	return now.Sub(e.CapturedAt) <= e.TTL
}

// Age returns how long ago the entry was captured.
func (e CacheEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.CapturedAt)
}

// CachedFlag is one row of Cache.List.
type CachedFlag struct {
	Name  string
	Entry CacheEntry
}

// Provenance tells which layer produced a Result.
type Provenance int

const (
	ProvenanceDefault Provenance = iota
	ProvenanceOverride
	ProvenanceFreshCache
	ProvenanceStaleCache
	ProvenanceRemoteFresh
)

func (p Provenance) String() string {
	switch p {
	case ProvenanceDefault:
		return "Default"
	case ProvenanceOverride:
		return "Override"
	case ProvenanceFreshCache:
		return "FreshCache"
	case ProvenanceStaleCache:
		return "StaleCache"
	case ProvenanceRemoteFresh:
		return "RemoteFresh"
	default:
		return "Unknown"
	}
}

// Result is what a resolution hands back to the caller. Err is set on
// degraded paths (stale cache, default) and never replaces the state.
type Result struct {
	Flag       string
	State      FlagState
	Provenance Provenance
	Err        error
}

// Enabled is shorthand for r.State.Enabled.
func (r Result) Enabled() bool {
	return r.State.Enabled
}

// CircuitState represents the state of the circuit breaker
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "Closed"
	case StateOpen:
		return "Open"
	case StateHalfOpen:
		return "HalfOpen"
	default:
		return "Unknown"
	}
}

// Option configures a Client.
type Option func(*Client)
