package browse

import "time"

// Config holds C8/C9's increasing-rate query cadence and the per-service
// resolve budget C9 hands to C7.
type Config struct {
	InitialDelay   time.Duration
	BaseDelay      time.Duration
	Factor         float64
	MaxDelay       time.Duration
	ResolveTimeout time.Duration
}

// DefaultConfig returns spec.md §6's querying.* and resolution.timeout
// defaults.
func DefaultConfig() Config {
	return Config{
		InitialDelay:   120 * time.Millisecond,
		BaseDelay:      time.Second,
		Factor:         2,
		MaxDelay:       60 * time.Minute,
		ResolveTimeout: 6 * time.Second,
	}
}
