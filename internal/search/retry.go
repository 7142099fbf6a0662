package search

import (
	"context"
	"math/rand/v2"
	"time"

	"torrentstream/moviesearch/internal/domain"
)

// RetryConfig shapes the backoff between provider attempts.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig waits roughly 500ms then 1s between three attempts.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

// backoff is the un-jittered wait after the given zero-based attempt.
func (c RetryConfig) backoff(attempt int) time.Duration {
	wait := float64(c.InitialDelay)
	for range attempt {
		wait *= c.Multiplier
		if wait >= float64(c.MaxDelay) {
			return c.MaxDelay
		}
	}
	return min(time.Duration(wait), c.MaxDelay)
}

// RetryWithBackoff retries fn while it fails with a transient error, backing
// off exponentially with jitter. Permanent errors return immediately.
func RetryWithBackoff(ctx context.Context, cfg RetryConfig, fn func() error) error {
	attempts := max(cfg.MaxAttempts, 1)

	var err error
	for attempt := range attempts {
		if err = fn(); err == nil || !domain.IsTransient(err) {
			return err
		}
		if attempt+1 == attempts {
			break
		}
		if waitErr := sleepContext(ctx, min(applyJitter(cfg.backoff(attempt)), cfg.MaxDelay)); waitErr != nil {
			return waitErr
		}
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// applyJitter scales d by a factor in [0.75, 1.25).
func applyJitter(d time.Duration) time.Duration {
	return time.Duration(float64(d) * (0.75 + rand.Float64()*0.5))
}
