/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package retry retries model calls that fail with rate limit or transient
// server errors.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/chainguard-dev/clog"
)

// Config bounds the retry loop. Backoff doubles from BaseBackoff up to
// MaxBackoff, with up to MaxJitter of random jitter per attempt.
type Config struct {
	// MaxRetries of 0 disables retries.
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	MaxJitter   time.Duration
}

// Default suits provider quota errors, which take a while to clear.
func Default() Config {
	return Config{
		MaxRetries:  5,
		BaseBackoff: time.Second,
		MaxBackoff:  time.Minute,
		MaxJitter:   500 * time.Millisecond,
	}
}

// Validate rejects negative settings.
func (c Config) Validate() error {
	switch {
	case c.MaxRetries < 0:
		return errors.New("max retries cannot be negative")
	case c.BaseBackoff < 0, c.MaxBackoff < 0, c.MaxJitter < 0:
		return errors.New("backoff durations cannot be negative")
	}
	return nil
}

func (c Config) backoff(attempt int) time.Duration {
	d := c.BaseBackoff
	for range attempt {
		if d >= c.MaxBackoff/2 {
			d = c.MaxBackoff
			break
		}
		d *= 2
	}
	d = min(d, c.MaxBackoff)
	if c.MaxJitter > 0 {
		d += rand.N(c.MaxJitter)
	}
	return d
}

// Do calls fn until it succeeds, returns an error retryable rejects, or the
// retries run out.
func Do[T any](ctx context.Context, cfg Config, op string, retryable func(error) bool, fn func() (T, error)) (T, error) {
	for attempt := 0; ; attempt++ {
		v, err := fn()
		if err == nil || !retryable(err) {
			return v, err
		}
		if attempt >= cfg.MaxRetries {
			return v, fmt.Errorf("%s failed after %d retries: %w", op, cfg.MaxRetries, err)
		}

		wait := cfg.backoff(attempt)
		clog.FromContext(ctx).With("operation", op).
			With("attempt", attempt+1).
			With("backoff", wait).
			With("error", err.Error()).
			Warn("Retrying after transient error")

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return v, ctx.Err()
		case <-t.C:
		}
	}
}
