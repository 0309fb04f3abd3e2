package utils

import (
	"math"
	"math/rand"
	"time"
)

// CalculateExponentialBackoffWithJitter computes a jittered exponential backoff delay.
// - count: attempt number (1-based)
// - base: base delay (e.g., 50 * time.Millisecond)
// - max: maximum allowable delay
func CalculateExponentialBackoffWithJitter(count int, base time.Duration, max time.Duration) time.Duration {
	if count <= 0 || base <= 0 {
		return 0
	}

	// base * 2^(count-1), capped before jitter so large counts cannot overflow
	baseDelay := time.Duration(float64(base) * math.Pow(2, float64(count-1)))
	if baseDelay <= 0 || baseDelay > max {
		baseDelay = max
	}

	// -12.5% to +12.5%
	spread := int64(baseDelay / 4)
	delay := baseDelay
	if spread > 0 {
		delay += time.Duration(rand.Int63n(spread)) - baseDelay/8
	}

	if delay > max {
		delay = max
	}
	return delay
}
