package session

import (
	"math/rand"
	"time"
)

// Delay returns how long a frame waits before its next delivery attempt.
// attempt counts failed deliveries so far, starting at 1. With Jitter the
// delay is scaled by a factor in [0.5, 1.5).
func (b BackoffConfig) Delay(attempt int, rng *rand.Rand) time.Duration {
	if b.InitialDelay <= 0 {
		return 0
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}
	delay := float64(b.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= mult
		if b.MaxDelay > 0 && delay >= float64(b.MaxDelay) {
			delay = float64(b.MaxDelay)
			break
		}
	}
	if b.Jitter {
		f := 0.5
		if rng != nil {
			f += rng.Float64()
		}
		delay *= f
	}
	return time.Duration(delay)
}
