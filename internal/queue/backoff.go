package queue

import (
	"math/rand"
	"time"
)

// backoffDelay is the deterministic part of the retry delay:
// base·2^attempts, capped at max. Monotonically non-decreasing in attempts.
func backoffDelay(base, max time.Duration, attempts int) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base
	for i := 0; i < attempts; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// withJitter adds up to 25% of d so retries from many jobs spread out
// instead of landing on the same tick.
func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	return d + time.Duration(rand.Int63n(int64(d)/4+1))
}
