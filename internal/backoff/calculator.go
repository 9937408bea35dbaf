package backoff

import "time"

// Calculator binds a Strategy to fixed cooldown parameters.
type Calculator struct {
	strategy   Strategy
	base       time.Duration
	max        time.Duration
	multiplier float64
}

// NewCalculator creates a calculator. A nil strategy means exponential.
func NewCalculator(strategy Strategy, base, max time.Duration, multiplier float64) *Calculator {
	if strategy == nil {
		strategy = ExponentialStrategy{}
	}
	return &Calculator{
		strategy:   strategy,
		base:       base,
		max:        max,
		multiplier: multiplier,
	}
}

// Cooldown returns the open period that follows the given number of
// consecutive trips (0 for the first trip).
func (c *Calculator) Cooldown(trips int) time.Duration {
	return c.strategy.Cooldown(trips, c.base, c.max, c.multiplier)
}

// Strategy returns the strategy in use.
func (c *Calculator) Strategy() Strategy {
	return c.strategy
}
