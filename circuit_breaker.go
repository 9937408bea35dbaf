package flags

import (
	"sync"
	"time"

	"github.com/flags-gg/go-flags/internal/backoff"
)

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int `env:"FAILURE_THRESHOLD" envDefault:"3"`
	// Cooldown is how long the circuit stays open after its first trip.
	Cooldown time.Duration `env:"COOLDOWN" envDefault:"10s"`
	// MaxCooldown caps the cooldown growth after repeated failed trials.
	MaxCooldown time.Duration `env:"MAX_COOLDOWN" envDefault:"5m"`
	// CooldownMultiplier scales the cooldown after every failed trial.
	CooldownMultiplier float64 `env:"COOLDOWN_MULTIPLIER" envDefault:"2"`
	// CooldownStrategy is "exponential" (default) or "constant".
	CooldownStrategy string `env:"COOLDOWN_STRATEGY" envDefault:"exponential"`
}

// DefaultCircuitBreakerConfig returns the documented breaker defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:   3,
		Cooldown:           10 * time.Second,
		MaxCooldown:        5 * time.Minute,
		CooldownMultiplier: 2,
		CooldownStrategy:   "exponential",
	}
}

func (cfg CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	def := DefaultCircuitBreakerConfig()
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.MaxCooldown == 0 {
		cfg.MaxCooldown = def.MaxCooldown
		if cfg.MaxCooldown < cfg.Cooldown {
			cfg.MaxCooldown = cfg.Cooldown
		}
	}
	if cfg.CooldownMultiplier == 0 {
		cfg.CooldownMultiplier = def.CooldownMultiplier
	}
	if cfg.CooldownStrategy == "" {
		cfg.CooldownStrategy = def.CooldownStrategy
	}
	return cfg
}

// CircuitBreakerStats is a consistent snapshot of breaker state.
type CircuitBreakerStats struct {
	State     CircuitState
	Failures  int
	Trips     int
	OpenUntil time.Time
	Cooldown  time.Duration
}

// CircuitBreaker gates remote calls. Reads share a read lock; every
// transition happens under the write lock.
type CircuitBreaker struct {
	mu       sync.RWMutex
	config   CircuitBreakerConfig
	cooldown *backoff.Calculator
	now      func() time.Time

	state     CircuitState
	failures  int
	trips     int
	openUntil time.Time
	trial     bool

	onStateChange func(from, to CircuitState)
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	config = config.withDefaults()

	return &CircuitBreaker{
		config: config,
		cooldown: backoff.NewCalculator(
			backoff.ByName(config.CooldownStrategy),
			config.Cooldown,
			config.MaxCooldown,
			config.CooldownMultiplier,
		),
		now:   time.Now,
		state: StateClosed,
	}
}

// Allow reports whether a remote call would currently be let through. It
// does not change state; use Acquire to actually claim a HalfOpen trial.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		return !cb.now().Before(cb.openUntil) && !cb.trial
	case StateHalfOpen:
		return !cb.trial
	default:
		return false
	}
}

// Acquire claims permission for one remote call. In Closed it always
// succeeds. Once the open period has elapsed, exactly one caller wins the
// HalfOpen trial; everyone else is refused until that trial is recorded.
func (cb *CircuitBreaker) Acquire() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if cb.now().Before(cb.openUntil) {
			return false
		}
		cb.setState(StateHalfOpen)
		cb.trial = true
		return true
	case StateHalfOpen:
		if cb.trial {
			return false
		}
		cb.trial = true
		return true
	default:
		return false
	}
}

// RecordSuccess records a success in the circuit breaker
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.failures = 0
		cb.trips = 0
		cb.trial = false
		cb.openUntil = time.Time{}
		cb.setState(StateClosed)
	case StateOpen:
		// A call admitted before the trip finished late; the open period stands.
	}
}

// RecordFailure records a failure in the circuit breaker
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.trip()
		}
	case StateHalfOpen:
		cb.failures++
		cb.trial = false
		cb.trip()
	case StateOpen:
		cb.failures++
	}
}

// trip opens the circuit for the cooldown that matches the current streak.
// Callers hold the write lock.
func (cb *CircuitBreaker) trip() {
	cb.openUntil = cb.now().Add(cb.cooldown.Cooldown(cb.trips))
	cb.trips++
	cb.setState(StateOpen)
}

func (cb *CircuitBreaker) setState(to CircuitState) {
	from := cb.state
	cb.state = to
	if from != to && cb.onStateChange != nil {
		cb.onStateChange(from, to)
	}
}

// State returns the effective state: an Open circuit whose cooldown has
// elapsed reports HalfOpen.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return cb.effectiveState()
}

func (cb *CircuitBreaker) effectiveState() CircuitState {
	if cb.state == StateOpen && !cb.now().Before(cb.openUntil) {
		return StateHalfOpen
	}
	return cb.state
}

// Stats returns a snapshot of the breaker.
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	stats := CircuitBreakerStats{
		State:     cb.effectiveState(),
		Failures:  cb.failures,
		Trips:     cb.trips,
		OpenUntil: cb.openUntil,
	}
	if cb.trips > 0 {
		stats.Cooldown = cb.cooldown.Cooldown(cb.trips - 1)
	}
	return stats
}

// Reset returns the breaker to Closed and forgets all history.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.trips = 0
	cb.trial = false
	cb.openUntil = time.Time{}
	cb.setState(StateClosed)
}

// Config returns the effective configuration.
func (cb *CircuitBreaker) Config() CircuitBreakerConfig {
	return cb.config
}
