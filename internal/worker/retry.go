package worker

import (
	"math"
	"time"
)

// RetryPolicy spaces out attempts to append a queued application.
// Zero fields take the sync defaults: 10 attempts, 30s doubling up to 30m.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

func (r RetryPolicy) withDefaults() RetryPolicy {
	if r.MaxRetries == 0 {
		r.MaxRetries = 10
	}
	if r.InitialDelay == 0 {
		r.InitialDelay = 30 * time.Second
	}
	if r.MaxDelay == 0 {
		r.MaxDelay = 30 * time.Minute
	}
	if r.BackoffFactor == 0 {
		r.BackoffFactor = 2
	}
	return r
}

// Exhausted reports whether a task that failed attempt times should go to the dead letter.
func (r RetryPolicy) Exhausted(attempt int) bool {
	return r.MaxRetries > 0 && attempt >= r.MaxRetries
}

// NextDelay is the wait before attempt+1. attempt is 1-based.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	attempt = max(attempt, 1)
	base := r.InitialDelay
	if base <= 0 {
		base = time.Second
	}
	factor := r.BackoffFactor
	if factor <= 0 {
		factor = 2
	}

	d := time.Duration(float64(base) * math.Pow(factor, float64(attempt-1)))
	switch {
	case d <= 0:
		// overflow
		d = r.MaxDelay
	case r.MaxDelay > 0 && d > r.MaxDelay:
		d = r.MaxDelay
	}
	if d <= 0 {
		d = base
	}
	return d
}
