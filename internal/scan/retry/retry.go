// Package retry implements the bounded exponential backoff helper shared by
// every platform adapter: honor Retry-After when the caller can supply one,
// otherwise back off exponentially with jitter, and never retry errors the
// caller doesn't classify as rate-limited.
package retry

import (
	"context"
	"math/rand"
	"time"

	perr "codecat/internal/platform/errors"
	"codecat/internal/platform/logger"
)

// Options configures Execute. Zero-value Options falls back to sane
// defaults mirroring the original Python implementation's retry_utils.py.
type Options struct {
	MaxRetries int
	InitDelay  time.Duration
	Backoff    float64
	MaxDelay   time.Duration

	// IsRateLimited classifies err as retryable-due-to-rate-limit.
	IsRateLimited func(err error) bool

	// RetryAfter extracts a server-supplied wait duration from err, if any.
	RetryAfter func(err error) (time.Duration, bool)

	// Sleep is overridable for tests.
	Sleep func(time.Duration)

	// Rand is overridable for deterministic jitter in tests.
	Rand func() float64
}

func (o *Options) setDefaults() {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.InitDelay <= 0 {
		o.InitDelay = 10 * time.Second
	}
	if o.Backoff <= 0 {
		o.Backoff = 2.0
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 900 * time.Second
	}
	if o.IsRateLimited == nil {
		o.IsRateLimited = func(error) bool { return false }
	}
	if o.Sleep == nil {
		o.Sleep = time.Sleep
	}
	if o.Rand == nil {
		o.Rand = rand.Float64
	}
}

// Execute runs call, retrying on rate-limit errors with capped exponential
// backoff plus +/-10% jitter. Non-rate-limit errors propagate immediately.
// Retry-After, when the caller can extract one, wins over the computed
// backoff for that attempt.
func Execute[T any](ctx context.Context, opts Options, logCtx string, call func() (T, error)) (T, error) {
	opts.setDefaults()
	log := logger.Named("retry")

	var zero T
	for attempt := 0; ; attempt++ {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		result, err := call()
		if err == nil {
			return result, nil
		}
		if !opts.IsRateLimited(err) {
			return zero, err
		}
		if attempt >= opts.MaxRetries {
			log.Error().Str("ctx", logCtx).Int("max_retries", opts.MaxRetries).Msg("rate limit retries exhausted")
			return zero, perr.Wrapf(err, perr.ErrorCodeTooManyRequests, "rate limited after %d retries", opts.MaxRetries)
		}

		delay := opts.backoffDelay(attempt)
		if opts.RetryAfter != nil {
			if ra, ok := opts.RetryAfter(err); ok {
				delay = ra
			}
		}
		delay = jitter(delay, opts.Rand)
		if delay > opts.MaxDelay {
			delay = opts.MaxDelay
		}

		log.Warn().Str("ctx", logCtx).Dur("retry_in", delay).Int("attempt", attempt+1).Msg("rate limit: retrying")
		opts.Sleep(delay)
	}
}

func (o Options) backoffDelay(attempt int) time.Duration {
	d := float64(o.InitDelay)
	for i := 0; i < attempt; i++ {
		d *= o.Backoff
	}
	return time.Duration(d)
}

// jitter applies +/-10% jitter to d using r() in [0,1).
func jitter(d time.Duration, r func() float64) time.Duration {
	if d <= 0 {
		return d
	}
	spread := float64(d) * 0.1
	delta := (r()*2 - 1) * spread
	out := time.Duration(float64(d) + delta)
	if out < 0 {
		return 0
	}
	return out
}
