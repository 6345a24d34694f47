package utils

import (
	"math/rand"
	"time"
)

// CalculateExponentialBackoffWithJitter returns base * 2^(attempt-1) with ±12.5% jitter, capped at max.
// attempt is 1-based; zero or negative attempts wait nothing.
func CalculateExponentialBackoffWithJitter(attempt int, base time.Duration, max time.Duration) time.Duration {
	if attempt <= 0 || base <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < attempt && delay < max; i++ {
		delay *= 2
	}
	if spread := int64(delay / 4); spread > 0 {
		delay += time.Duration(rand.Int63n(spread)) - delay/8
	}
	if delay > max {
		delay = max
	}
	return delay
}
