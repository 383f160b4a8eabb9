// Package retry holds the reconnect policies used by network stores.
package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Policy decides whether and when to try again. attempt is 0 for the
// first retry.
type Policy interface {
	NextDelay(attempt int, lastErr error) (time.Duration, bool)
}

// Backoff grows the delay geometrically up to Max, with optional jitter.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	// MaxAttempts stops retrying after that many retries. Zero retries
	// forever.
	MaxAttempts int
	// Jitter is the largest random deviation as a fraction of the delay.
	Jitter float64
}

// DefaultBackoff starts at 500ms and caps at 30s with 20% jitter.
func DefaultBackoff() *Backoff {
	return &Backoff{
		Initial:    500 * time.Millisecond,
		Max:        30 * time.Second,
		Multiplier: 2,
		Jitter:     0.2,
	}
}

func (b *Backoff) NextDelay(attempt int, _ error) (time.Duration, bool) {
	if b.MaxAttempts > 0 && attempt >= b.MaxAttempts {
		return 0, false
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}
	delay := float64(b.Initial) * math.Pow(mult, float64(attempt))
	if b.Max > 0 && delay > float64(b.Max) {
		delay = float64(b.Max)
	}
	if b.Jitter > 0 {
		//nolint:gosec // jitter is not security sensitive
		delay += delay * b.Jitter * (2*rand.Float64() - 1)
		if delay < 0 {
			delay = float64(b.Initial)
		}
	}
	return time.Duration(delay), true
}

// Fixed waits the same delay between attempts.
type Fixed struct {
	Delay       time.Duration
	MaxAttempts int
}

func (f Fixed) NextDelay(attempt int, _ error) (time.Duration, bool) {
	if f.MaxAttempts > 0 && attempt >= f.MaxAttempts {
		return 0, false
	}
	return f.Delay, true
}

// Do calls fn until it succeeds, the policy gives up or ctx is done, and
// returns the last error.
func Do(ctx context.Context, p Policy, fn func(context.Context) error) error {
	err := fn(ctx)
	for attempt := 0; err != nil; attempt++ {
		delay, ok := p.NextDelay(attempt, err)
		if !ok {
			return err
		}
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		err = fn(ctx)
	}
	return nil
}
