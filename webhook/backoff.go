package webhook

import (
	"math/rand"
	"time"
)

/* Backoff computes the delay before the next retry attempt.
 * Exponential: the base delay doubles per attempt, capped at Max.
 * Jitter spreads retries so an endpoint outage that fails many
 * deliveries at once does not produce a synchronized retry storm.
 */
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64 // fraction of the delay randomized in [1-Jitter, 1+Jitter]
}

// DefaultBackoff returns the standard retry policy: 30s base, 1h ceiling,
// 20% jitter
func DefaultBackoff() Backoff {
	return Backoff{
		Base:   30 * time.Second,
		Max:    time.Hour,
		Jitter: 0.2,
	}
}

// Delay returns the delay to apply after the given number of attempts.
// attempts is at least 1 (the attempt that just failed).
func (b Backoff) Delay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}

	delay := b.Base
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= b.Max {
			delay = b.Max
			break
		}
	}
	if delay > b.Max {
		delay = b.Max
	}

	if b.Jitter > 0 {
		spread := 1 + b.Jitter*(2*rand.Float64()-1)
		delay = time.Duration(float64(delay) * spread)
	}

	return delay
}
