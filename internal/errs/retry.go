package errs

import (
	"context"
	"math"
	"time"
)

// RetryPolicy is the bounded exponential backoff schedule used by
// transient-infrastructure retries throughout the pipeline: base delay,
// multiplier, cap, and a max try count.
type RetryPolicy struct {
	InitialDelayMs    int64
	BackoffMultiplier float64
	MaxDelayMs        int64
	MaxRetries        int
}

// Delay returns the backoff delay before attempt number n (0-based: the
// delay before the first retry, after the initial attempt failed).
func (p RetryPolicy) Delay(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	d := float64(p.InitialDelayMs) * math.Pow(p.BackoffMultiplier, float64(n))
	if cap := float64(p.MaxDelayMs); d > cap {
		d = cap
	}
	return time.Duration(d) * time.Millisecond
}

// Do runs fn, retrying on error up to p.MaxRetries times with the
// configured backoff. Returns the last error if all attempts fail, or
// nil on the first success. Respects ctx cancellation between attempts.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == p.MaxRetries {
			break
		}
		timer := time.NewTimer(p.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}
