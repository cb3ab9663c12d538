// Package ratelimit implements the per-credential token bucket from
// spec.md §4.1. It wraps golang.org/x/time/rate's Limiter — which already
// implements exactly the refill formula the spec describes (bounded burst,
// fractional-progress-preserving refill) — behind the
// tryAcquire/acquire/availableTokens surface the rest of the stack expects,
// rather than hand-rolling the atomic compare-and-swap loop the teacher's
// pkg/middleware/ratelimit.go shows for its HTTP-facing token bucket.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/tra-cli/tra/internal/model"
)

// Config configures one Limiter instance. Defaults encode the upstream
// contract: "5 req/s per credential, small burst allowance" (spec.md §4.1).
type Config struct {
	MaxTokens        int     // default 50
	RefillRatePerSec float64 // default 5
	RetryAfterMs     int     // default 100
	MaxRetries       int     // default 50
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxTokens:        50,
		RefillRatePerSec: 5,
		RetryAfterMs:     100,
		MaxRetries:       50,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxTokens <= 0 {
		c.MaxTokens = 50
	}
	if c.RefillRatePerSec <= 0 {
		c.RefillRatePerSec = 5
	}
	if c.RetryAfterMs <= 0 {
		c.RetryAfterMs = 100
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 50
	}
	return c
}

// Limiter is a single credential's token bucket.
type Limiter struct {
	cfg Config
	rl  *rate.Limiter
}

// New creates a Limiter with the given config, filling unset fields with
// DefaultConfig's values.
func New(cfg Config) *Limiter {
	cfg = cfg.withDefaults()
	return &Limiter{
		cfg: cfg,
		rl:  rate.NewLimiter(rate.Limit(cfg.RefillRatePerSec), cfg.MaxTokens),
	}
}

// TryAcquire atomically refills then attempts to consume one token,
// returning false if the bucket is empty.
func (l *Limiter) TryAcquire() bool {
	return l.rl.Allow()
}

// Acquire performs the cooperative poll loop spec.md §4.1 describes:
// retry TryAcquire every RetryAfterMs up to MaxRetries, failing with
// CodeRateLimited if none succeed. ctx cancellation aborts the loop before
// a token is taken, returning CodeCancelled without affecting the bucket's
// counters (spec.md §5).
func (l *Limiter) Acquire(ctx context.Context) error {
	for attempt := 0; attempt < l.cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return model.New(model.CodeCancelled, "rate limiter acquire cancelled")
		default:
		}

		if l.TryAcquire() {
			return nil
		}

		select {
		case <-ctx.Done():
			return model.New(model.CodeCancelled, "rate limiter acquire cancelled")
		case <-time.After(time.Duration(l.cfg.RetryAfterMs) * time.Millisecond):
		}
	}
	return model.New(model.CodeRateLimited, "rate limit exhausted after max retries")
}

// AvailableTokens returns an approximate snapshot of tokens currently in
// the bucket, without consuming one.
func (l *Limiter) AvailableTokens() int {
	tokens := l.rl.TokensAt(time.Now())
	if tokens < 0 {
		return 0
	}
	if tokens > float64(l.cfg.MaxTokens) {
		return l.cfg.MaxTokens
	}
	return int(tokens)
}

// Reset refills the bucket to full capacity immediately.
func (l *Limiter) Reset() {
	l.rl = rate.NewLimiter(rate.Limit(l.cfg.RefillRatePerSec), l.cfg.MaxTokens)
}
