package config

import (
	"golang.org/x/time/rate"

	"github.com/easeware/snippetd/executor"
)

// RetryPolicy converts the executor section into an executor.RetryPolicy.
func (c ExecutorConfig) RetryPolicy() executor.RetryPolicy {
	return executor.RetryPolicy{
		MaxAttempts:      c.MaxAttempts,
		BackoffBase:      c.Backoff.Base,
		MaxBackoff:       c.Backoff.Max,
		LegacyXORBackoff: c.Backoff.LegacyXOR,
		JitterMin:        c.Jitter.Min,
		JitterMax:        c.Jitter.Max,
		JitterUnit:       c.Jitter.Unit,
		AttemptTimeout:   c.Attempt.Timeout,
	}
}

// RateLimiter returns the configured attempt limiter, or nil when Limit is 0.
func (c ExecutorConfig) RateLimiter() *rate.Limiter {
	if c.Rate.Limit <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(c.Rate.Limit), c.Rate.Burst)
}
