package scheduler

import (
	"math/rand"
	"time"
)

// BackoffConfig shapes the retry schedule: base * 2^(attempt-1), capped, with
// optional jitter to spread retries against a recovering subscriber.
type BackoffConfig struct {
	Base   time.Duration
	Cap    time.Duration
	Jitter float64 // fraction, e.g. 0.2 for +/-20%
}

func (c BackoffConfig) normalized() BackoffConfig {
	if c.Base <= 0 {
		c.Base = 30 * time.Second
	}
	if c.Cap <= 0 {
		c.Cap = time.Hour
	}
	if c.Jitter < 0 || c.Jitter >= 1 {
		c.Jitter = 0
	}
	return c
}

// NextDelay returns the wait before the attempt following failed attempt n
// (1-based). A subscriber-provided Retry-After acts as a floor over the
// exponential schedule, never shortening it; the cap bounds both.
func (c BackoffConfig) NextDelay(attempt int, retryAfter time.Duration) time.Duration {
	c = c.normalized()
	if attempt < 1 {
		attempt = 1
	}

	d := c.Base
	for i := 1; i < attempt && d < c.Cap; i++ {
		d *= 2
	}
	if d > c.Cap {
		d = c.Cap
	}

	if c.Jitter > 0 {
		// uniform in [d*(1-j), d*(1+j)]
		span := float64(d) * c.Jitter
		d = time.Duration(float64(d) - span + rand.Float64()*2*span)
	}

	if retryAfter > d {
		d = retryAfter
	}
	if d > c.Cap {
		d = c.Cap
	}
	return d
}
