package session

import "time"

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines outbox reliability defaults.
type Config struct {
	// Capacity bounds queued frames; zero means unbounded.
	Capacity int
	// MaxAttempts drops a frame after this many failed deliveries.
	MaxAttempts int
	Backoff     BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		Capacity:    64,
		MaxAttempts: 3,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}
