// Package retry implements RetryRunner from spec.md §4.6, generalizing
// the teacher corpus's exponential backoff+jitter shape
// (hra42/openrouter-go retry.go RetryWithBackoff/RetryConfig) to this
// spec's transient-error taxonomy and onRetry observer callback.
package retry

import (
	"errors"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"time"
)

// Config configures one RetryRunner. Zero values fall back to spec
// defaults.
type Config struct {
	MaxRetries        int // default 3
	BaseDelay         time.Duration // default 100ms
	MaxDelay          time.Duration // default 10s
	BackoffMultiplier float64       // default 2
	EnableJitter      bool
	JitterPercentage  float64 // default 0.1

	// IsTransient classifies err as retryable. Nil falls back to
	// DefaultIsTransient.
	IsTransient func(err error) bool
}

func (c Config) withDefaults() Config {
	if c.BaseDelay <= 0 {
		c.BaseDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 10 * time.Second
	}
	if c.BackoffMultiplier <= 0 {
		c.BackoffMultiplier = 2
	}
	if c.JitterPercentage <= 0 {
		c.JitterPercentage = 0.1
	}
	if c.IsTransient == nil {
		c.IsTransient = DefaultIsTransient
	}
	return c
}

// transientHTTPStatuses are the spec.md §4.6 retryable HTTP statuses.
var transientHTTPStatuses = map[int]bool{
	http.StatusRequestTimeout:     true,
	http.StatusTooManyRequests:    true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:         true,
	http.StatusServiceUnavailable: true,
	http.StatusGatewayTimeout:     true,
}

var transientNetworkSubstrings = []string{"ECONNREFUSED", "ETIMEDOUT", "timeout"}

// HTTPStatusError is implemented by errors that carry an HTTP status code,
// so DefaultIsTransient can classify without depending on apiclient.
type HTTPStatusError interface {
	StatusCode() int
}

// DefaultIsTransient implements the spec.md §4.6 classification: a listed
// HTTP status, or a network error matching a fixed substring list.
func DefaultIsTransient(err error) bool {
	if err == nil {
		return false
	}

	var statusErr HTTPStatusError
	if errors.As(err, &statusErr) {
		return transientHTTPStatuses[statusErr.StatusCode()]
	}

	msg := err.Error()
	for _, substr := range transientNetworkSubstrings {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

// Attempt is passed to fn on each call of Run.
type Attempt struct {
	Number int // 1-indexed
}

// OnRetry is invoked once per retry, after a transient failure and before
// the backoff sleep, for observability.
type OnRetry func(err error, attempt int, nextDelay time.Duration)

// Runner executes fn with exponential backoff and jitter over transient
// failures.
type Runner struct {
	cfg Config
}

// New builds a Runner with cfg, filling zero fields with spec defaults.
func New(cfg Config) *Runner {
	return &Runner{cfg: cfg.withDefaults()}
}

// Run calls fn starting at attempt 1. On a transient failure it waits the
// computed delay and retries, up to cfg.MaxRetries additional attempts; a
// permanent failure propagates immediately. maxRetries=0 performs exactly
// one attempt.
func (r *Runner) Run(fn func(a Attempt) error, onRetry OnRetry) error {
	var lastErr error

	for attempt := 1; attempt <= r.cfg.MaxRetries+1; attempt++ {
		err := fn(Attempt{Number: attempt})
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt > r.cfg.MaxRetries || !r.cfg.IsTransient(err) {
			return lastErr
		}

		delay := r.delayFor(attempt)
		if onRetry != nil {
			onRetry(err, attempt, delay)
		}
		time.Sleep(delay)
	}

	return lastErr
}

// delayFor computes the delay before retry k (1-indexed attempt number
// that just failed), per spec.md §4.6.
func (r *Runner) delayFor(attempt int) time.Duration {
	base := float64(r.cfg.BaseDelay) * math.Pow(r.cfg.BackoffMultiplier, float64(attempt-1))
	delay := math.Min(float64(r.cfg.MaxDelay), base)

	if r.cfg.EnableJitter {
		delay += rand.Float64() * r.cfg.JitterPercentage * delay
	}

	return time.Duration(delay)
}
