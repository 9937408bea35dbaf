package backoff

import (
	"math"
	"time"
)

// Strategy computes how long a breaker stays open after its n-th consecutive
// trip. Implementations must be non-decreasing in trips so a flapping remote
// is never probed more often than before.
type Strategy interface {
	Cooldown(trips int, base, max time.Duration, multiplier float64) time.Duration
}

// ExponentialStrategy grows the cooldown by multiplier per consecutive trip,
// capped at max.
type ExponentialStrategy struct{}

// Cooldown implements Strategy.
func (s ExponentialStrategy) Cooldown(trips int, base, max time.Duration, multiplier float64) time.Duration {
	if trips < 0 {
		trips = 0
	}
	if multiplier < 1 {
		multiplier = 1
	}
	if max < base {
		max = base
	}

	d := float64(base) * math.Pow(multiplier, float64(trips))
	if math.IsInf(d, 0) || math.IsNaN(d) || d > float64(max) {
		return max
	}
	return time.Duration(d)
}

// ConstantStrategy always returns the base cooldown.
type ConstantStrategy struct{}

// Cooldown implements Strategy.
func (s ConstantStrategy) Cooldown(trips int, base, max time.Duration, multiplier float64) time.Duration {
	return base
}

// ByName maps a configuration string to a Strategy. Unknown names fall back
// to exponential growth.
func ByName(name string) Strategy {
	switch name {
	case "constant":
		return ConstantStrategy{}
	default:
		return ExponentialStrategy{}
	}
}
