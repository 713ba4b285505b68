package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// RetryConfig holds the configuration for retry logic.
//
// Transient failures (network, timeout, 5xx) and rate-limit responses draw
// from independent budgets, so an aggressive rate limiter cannot use up the
// attempts reserved for a flaky network and vice versa.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial
	// request) when failures are transient.
	MaxAttempts int

	// MaxRateLimitRetries is the number of extra attempts allowed after 429 responses.
	MaxRateLimitRetries int

	// InitialBackoff is the initial backoff duration for transient failures.
	InitialBackoff time.Duration

	// RateLimitBackoff is the initial backoff duration after a 429.
	RateLimitBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64

	// Jitter enables ±20% randomness on every backoff.
	Jitter bool
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:         3,
		MaxRateLimitRetries: 3,
		InitialBackoff:      1 * time.Second,
		RateLimitBackoff:    5 * time.Second,
		MaxBackoff:          30 * time.Second,
		BackoffMultiplier:   2.0,
		Jitter:              true,
	}
}

// Validate checks the retry configuration.
func (c RetryConfig) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be >= 1 (got %d)", c.MaxAttempts)
	}
	if c.MaxRateLimitRetries < 0 {
		return fmt.Errorf("max_rate_limit_retries must be >= 0 (got %d)", c.MaxRateLimitRetries)
	}
	if c.InitialBackoff < 0 || c.RateLimitBackoff < 0 || c.MaxBackoff < 0 {
		return fmt.Errorf("backoff durations must be >= 0")
	}
	if c.BackoffMultiplier < 1 {
		return fmt.Errorf("backoff_multiplier must be >= 1 (got %v)", c.BackoffMultiplier)
	}
	return nil
}

// budget tracks one retry allowance and its exponential backoff.
type budget struct {
	used    int
	limit   int
	backoff time.Duration
}

func (b *budget) next(cfg RetryConfig) time.Duration {
	d := b.backoff
	b.backoff = time.Duration(float64(b.backoff) * cfg.BackoffMultiplier)
	if b.backoff > cfg.MaxBackoff {
		b.backoff = cfg.MaxBackoff
	}
	return d
}

// retrier executes attempts with exponential backoff. It respects context
// cancellation and adds jitter to prevent thundering herd.
type retrier struct {
	config RetryConfig
	clock  clockwork.Clock
	logger zerolog.Logger
}

// do calls fn until it succeeds, fails with a non-retryable error or a budget
// runs out. It returns the number of attempts made.
func (r *retrier) do(ctx context.Context, fn func() error) (int, error) {
	transient := budget{limit: r.config.MaxAttempts - 1, backoff: r.config.InitialBackoff}
	rateLimit := budget{limit: r.config.MaxRateLimitRetries, backoff: r.config.RateLimitBackoff}

	attempts := 0
	for {
		attempts++
		err := fn()
		if err == nil {
			if attempts > 1 {
				r.logger.Info().
					Int("attempt", attempts).
					Msg("Request succeeded after retry")
			}
			return attempts, nil
		}

		var apiErr *APIError
		if !errors.As(err, &apiErr) || !shouldRetry(apiErr.ErrorClass) {
			return attempts, err
		}

		b := &transient
		if apiErr.ErrorClass == ErrorClassRateLimit {
			b = &rateLimit
		}
		if b.used >= b.limit {
			retryExhaustedTotal.WithLabelValues(string(apiErr.ErrorClass)).Inc()
			r.logger.Warn().
				Str("error_class", string(apiErr.ErrorClass)).
				Int("attempts", attempts).
				Msg("Retry attempts exhausted")
			return attempts, fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempts, err)
		}
		b.used++

		wait := b.next(r.config)
		if r.config.Jitter {
			wait = applyJitter(wait)
		}
		wait = min(wait, r.config.MaxBackoff)
		if apiErr.RetryAfter > wait {
			wait = apiErr.RetryAfter
		}

		retriesTotal.WithLabelValues(string(apiErr.ErrorClass)).Inc()
		retryBackoffSeconds.WithLabelValues(string(apiErr.ErrorClass)).Observe(wait.Seconds())

		r.logger.Debug().
			Str("error_class", string(apiErr.ErrorClass)).
			Int("attempt", attempts).
			Dur("backoff", wait).
			Msg("Retrying request after backoff")

		if wait <= 0 {
			if ctx.Err() != nil {
				return attempts, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
			}
			continue
		}

		timer := r.clock.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			r.logger.Warn().
				Str("error_class", string(apiErr.ErrorClass)).
				Int("attempt", attempts).
				Msg("Context cancelled during retry backoff")
			return attempts, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case <-timer.Chan():
		}
	}
}

// applyJitter spreads d by ±20%.
func applyJitter(d time.Duration) time.Duration {
	return time.Duration(float64(d) * (0.8 + rand.Float64()*0.4))
}
