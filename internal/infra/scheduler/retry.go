// Package scheduler runs store work that may fail transiently.
//
// Failed attempts are retried with exponential backoff while the error
// wraps domain.ErrTransientStore; any other error is returned at once.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/habitnest/habitnest/internal/domain"
	"github.com/habitnest/habitnest/internal/infra/metrics"
)

// RetryConfig configures the retry behavior.
type RetryConfig struct {
	MaxRetries int           // Retries after the first attempt
	BaseDelay  time.Duration // Initial backoff delay (doubles each retry)
	MaxDelay   time.Duration // Cap on backoff delay
}

// DefaultRetryConfig returns production retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  50 * time.Millisecond,
		MaxDelay:   time.Second,
	}
}

// Backoff returns the delay before retry number attempt (1-based).
// baseDelay * 2^(attempt-1), capped at MaxDelay.
func (c RetryConfig) Backoff(attempt int) time.Duration {
	delay := c.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay > c.MaxDelay {
			return c.MaxDelay
		}
	}
	if delay > c.MaxDelay {
		return c.MaxDelay
	}
	return delay
}

// Retry runs fn until it succeeds, fails with a non-transient error, the
// retries are exhausted or ctx is done. op labels the retry metric.
func Retry(ctx context.Context, cfg RetryConfig, op string, fn func(context.Context) error) error {
	err := fn(ctx)
	for attempt := 1; attempt <= cfg.MaxRetries && errors.Is(err, domain.ErrTransientStore); attempt++ {
		metrics.StoreRetries.WithLabelValues(op).Inc()

		t := time.NewTimer(cfg.Backoff(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return errors.Join(err, ctx.Err())
		case <-t.C:
		}
		err = fn(ctx)
	}
	return err
}
