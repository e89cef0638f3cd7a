package batch

import (
	"math"
	"math/rand"
	"time"
)

// backoffDelay computes the exponential backoff delay for a retry
// attempt (attempt 1 is the first retry) with jitter to avoid
// thundering-herd retries against a recovering vendor.
func backoffDelay(attempt int, base, max time.Duration, rng *rand.Rand) time.Duration {
	delay := float64(base) * math.Pow(2, float64(attempt-1))
	if delay > float64(max) {
		delay = float64(max)
	}

	if rng != nil {
		jitter := rng.Float64() * 0.2 * delay
		if rng.Float64() < 0.5 {
			delay -= jitter
		} else {
			delay += jitter
		}
	}

	if delay < float64(base) {
		delay = float64(base)
	}
	return time.Duration(delay)
}
