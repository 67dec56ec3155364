package worker

import "time"

// Options tune retries, draining and configuration refreshes.
type Options struct {
	// MaxAttempts is the number of sends per snapshot, first try included
	MaxAttempts int

	// InitialBackoff is the wait before the first retry; it doubles per retry
	InitialBackoff time.Duration

	// MaxBackoff caps a single wait
	MaxBackoff time.Duration

	// MaxElapsed caps the total time spent on one snapshot
	MaxElapsed time.Duration

	// AttemptTimeout bounds a single send
	AttemptTimeout time.Duration

	// RefreshInterval throttles opportunistic configuration refreshes;
	// zero refreshes after every delivery cycle
	RefreshInterval time.Duration

	// DrainAttempts and DrainTimeout bound the final delivery at shutdown
	DrainAttempts int
	DrainTimeout  time.Duration
}

// DefaultOptions returns the production retry policy: 4 attempts with
// exponential backoff 1s, 2s, 4s (each wait capped at 8s), at most 30s per
// snapshot, 10s per attempt, and a 2-attempt drain bounded by 5s.
func DefaultOptions() Options {
	return Options{
		MaxAttempts:     4,
		InitialBackoff:  1 * time.Second,
		MaxBackoff:      8 * time.Second,
		MaxElapsed:      30 * time.Second,
		AttemptTimeout:  10 * time.Second,
		RefreshInterval: 0,
		DrainAttempts:   2,
		DrainTimeout:    5 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = def.MaxAttempts
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = def.InitialBackoff
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = def.MaxBackoff
	}
	if o.MaxElapsed <= 0 {
		o.MaxElapsed = def.MaxElapsed
	}
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = def.AttemptTimeout
	}
	if o.RefreshInterval < 0 {
		o.RefreshInterval = 0
	}
	if o.DrainAttempts <= 0 {
		o.DrainAttempts = def.DrainAttempts
	}
	if o.DrainTimeout <= 0 {
		o.DrainTimeout = def.DrainTimeout
	}
	return o
}
