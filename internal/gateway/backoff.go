package gateway

import (
	"math/rand"
	"time"
)

// BackoffConfig paces the acceptor after consecutive Accept failures.
// A zero InitialDelay passed to New is replaced by DefaultBackoff.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       true,
	}
}

// Delay is the pause before retrying Accept after the n-th consecutive
// failure. Growth stops at MaxDelay; jitter scales the result into
// [0.5, 1.5) of its value.
func (b BackoffConfig) Delay(failures int, rng *rand.Rand) time.Duration {
	if b.InitialDelay <= 0 || failures < 1 {
		return 0
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := b.InitialDelay
	for i := 1; i < failures; i++ {
		next := time.Duration(float64(d) * mult)
		if b.MaxDelay > 0 && next >= b.MaxDelay {
			d = b.MaxDelay
			break
		}
		d = next
	}
	if b.MaxDelay > 0 && d > b.MaxDelay {
		d = b.MaxDelay
	}
	if !b.Jitter || rng == nil {
		return d
	}
	return time.Duration(float64(d) * (0.5 + rng.Float64()))
}
