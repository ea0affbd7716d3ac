// Package retry provides the retry engine used for every outbound call
// the pipeline makes: KEV catalog downloads, EPSS batches and LLM
// completions. Subprocess scanners are never retried.
//
// Three strategies are supported:
//   - Exponential: delay doubles each attempt (1s, 2s, 4s, …)
//   - Linear: delay grows linearly (1s, 2s, 3s, …)
//   - Constant: delay stays the same each attempt
//
// Usage:
//
//	catalog, err := retry.DoValue(ctx, retry.FeedConfig(), func() (*Catalog, error) {
//	    return c.fetch(ctx)
//	})
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/scanforge/scanforge/pkg/defaults"
	"github.com/scanforge/scanforge/pkg/duration"
)

// Strategy defines the backoff algorithm.
type Strategy int

const (
	// Exponential doubles the delay each attempt: initDelay * 2^attempt.
	Exponential Strategy = iota
	// Linear increases the delay linearly: initDelay * (attempt+1).
	Linear
	// Constant uses the same delay between every attempt.
	Constant
)

// Config controls retry behaviour.
type Config struct {
	MaxAttempts int           // Total attempts (including the first). 0 means no-op.
	InitDelay   time.Duration // Base delay before first retry.
	MaxDelay    time.Duration // Upper bound on any single delay.
	Strategy    Strategy      // Backoff algorithm.
	Jitter      bool          // Add ±25% random jitter to each delay.

	// OnRetry, when set, is called before each sleep with the failed
	// attempt number (0-indexed), its error and the chosen delay.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig returns 3 attempts, exponential backoff from 1s to 10s
// with jitter enabled.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: defaults.RetryFeed,
		InitDelay:   duration.FeedRetryInit,
		MaxDelay:    duration.FeedRetryMax,
		Strategy:    Exponential,
		Jitter:      true,
	}
}

// FeedConfig is the policy for KEV and EPSS downloads.
func FeedConfig() Config {
	return DefaultConfig()
}

// StopError wraps an error to signal that retrying should stop immediately.
// Use this when the caller knows the error is permanent (e.g. 404).
type StopError struct {
	Err error
}

func (e *StopError) Error() string { return e.Err.Error() }
func (e *StopError) Unwrap() error { return e.Err }

// Stop wraps err so that Do returns it without further retries.
func Stop(err error) error {
	return &StopError{Err: err}
}

// StatusError is a non-2xx HTTP response from a feed or API.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}

// CheckStatus converts a response code into nil, a retryable *StatusError
// (429 and 5xx) or a permanent one wrapped in Stop.
func CheckStatus(url string, code int) error {
	if code >= 200 && code < 300 {
		return nil
	}
	err := &StatusError{URL: url, Code: code}
	if code == http.StatusTooManyRequests || code >= 500 {
		return err
	}
	return Stop(err)
}

// sleeper is an interface for waiting, allowing tests to override time.After.
type sleeper interface {
	sleep(ctx context.Context, d time.Duration) error
}

type realSleeper struct{}

func (realSleeper) sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do executes fn up to cfg.MaxAttempts times, sleeping between failures
// according to the configured strategy. It returns nil on the first
// successful call, or the last error if all attempts fail. If the context
// is cancelled, ctx.Err() is returned immediately.
//
// If fn returns a StopError, Do returns the wrapped error without retrying.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	return doWithSleeper(ctx, cfg, fn, realSleeper{})
}

// DoValue is Do for functions that produce a value.
func DoValue[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var out T
	err := Do(ctx, cfg, func() error {
		v, err := fn()
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func doWithSleeper(ctx context.Context, cfg Config, fn func() error, s sleeper) error {
	if cfg.MaxAttempts <= 0 {
		return nil
	}

	var lastErr error
	for attempt := range cfg.MaxAttempts {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		var stop *StopError
		if errors.As(lastErr, &stop) {
			return stop.Err
		}

		if attempt < cfg.MaxAttempts-1 {
			delay := CalcDelay(cfg, attempt)
			if cfg.OnRetry != nil {
				cfg.OnRetry(attempt, lastErr, delay)
			}
			if err := s.sleep(ctx, delay); err != nil {
				return err
			}
		}
	}
	return lastErr
}

// CalcDelay computes the sleep duration for a given attempt (0-indexed).
// The result is always within [0, cfg.MaxDelay].
func CalcDelay(cfg Config, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := float64(cfg.InitDelay)
	var d float64
	switch cfg.Strategy {
	case Exponential:
		d = base * math.Pow(2, float64(attempt))
	case Linear:
		d = base * float64(attempt+1)
	default:
		d = base
	}
	if math.IsInf(d, 0) || math.IsNaN(d) || d > float64(cfg.MaxDelay) {
		d = float64(cfg.MaxDelay)
	}
	delay := time.Duration(d)
	if cfg.Jitter && delay > 0 {
		if quarter := int64(delay) / 4; quarter > 0 {
			j := time.Duration(rand.Int64N(quarter))
			if rand.IntN(2) == 0 {
				delay += j
			} else {
				delay -= j
			}
		}
	}
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}
