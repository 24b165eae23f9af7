package capture

import (
	"math"
	"time"
)

// Default retry settings. They reproduce a fixed 100ms backoff retried forever.
const (
	DefaultRetryInterval    = 100 * time.Millisecond
	DefaultRetryMultiplier  = 1.0
	DefaultMaxRetryInterval = 2 * time.Second
)

// RetryPolicy controls how the capture loop waits after failed camera reads.
type RetryPolicy struct {
	// Interval is the wait after the first failure.
	Interval time.Duration

	// Multiplier grows the wait on each consecutive failure. Values <= 1 keep
	// the wait fixed at Interval.
	Multiplier float64

	// MaxInterval caps the grown wait. Zero leaves it capped only by the
	// largest Duration.
	MaxInterval time.Duration

	// MaxRetries is the number of consecutive failures tolerated before the
	// loop gives up. Zero retries forever.
	MaxRetries int
}

// DefaultRetryPolicy returns the fixed-interval, retry-forever policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Interval:    DefaultRetryInterval,
		Multiplier:  DefaultRetryMultiplier,
		MaxInterval: DefaultMaxRetryInterval,
	}
}

// Delay returns the wait before the next read after attempt consecutive
// failures (attempt starts at 1).
//
// With a multiplier m > 1: delay = Interval * m^(attempt-1), capped at MaxInterval.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultRetryInterval
	}

	if p.Multiplier <= 1 || attempt <= 1 {
		return interval
	}

	limit := time.Duration(math.MaxInt64)
	if p.MaxInterval > 0 {
		limit = p.MaxInterval
	}

	delay := float64(interval)
	for i := 1; i < attempt; i++ {
		delay *= p.Multiplier
		if delay >= float64(limit) {
			return limit
		}
	}

	return time.Duration(delay)
}

// Exhausted reports whether failures consecutive failures exceed MaxRetries.
func (p RetryPolicy) Exhausted(failures int) bool {
	return p.MaxRetries > 0 && failures > p.MaxRetries
}
