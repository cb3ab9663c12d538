// Package breaker implements the three-state CircuitBreaker from
// spec.md §4.5, generalizing the teacher corpus's lock-free,
// atomic-field CLOSED/OPEN/HALF_OPEN machine
// (1mb-dev/autobreaker internal/breaker/circuitbreaker.go) to this
// spec's exact thresholds and its CIRCUIT_BREAKER_OPEN error carrying
// retryAfterMs.
package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/tra-cli/tra/internal/events"
	"github.com/tra-cli/tra/internal/model"
)

// State is one of the three circuit breaker states.
type State string

const (
	Closed   State = "CLOSED"
	Open     State = "OPEN"
	HalfOpen State = "HALF_OPEN"
)

// Config configures thresholds. Zero values fall back to spec defaults.
type Config struct {
	FailureThreshold int           // default 3
	SuccessThreshold int           // default 2
	OpenTimeout      time.Duration // default configurable; tests use 100ms

	// ShouldRetry classifies an error as transient (counts toward the
	// failure threshold) or permanent (does not). Nil means "always
	// transient".
	ShouldRetry func(err error) bool

	// Bus, if set, receives a BreakerStateChanged event on every
	// transition so HealthCheck can aggregate breaker state without
	// polling.
	Bus *events.Bus
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 2
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 100 * time.Millisecond
	}
	if c.ShouldRetry == nil {
		c.ShouldRetry = func(error) bool { return true }
	}
	return c
}

// StateChange is one entry in the breaker's bounded transition log.
type StateChange struct {
	From      State
	To        State
	Timestamp time.Time
}

// Metrics is the snapshot returned by GetMetrics.
type Metrics struct {
	State              State
	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64
	RejectedRequests   int64
	StateChanges       []StateChange
}

const maxStateChangeLog = 50

// Breaker is a single, shared circuit breaker instance (spec.md §9 treats
// this as one global instance across the API client, not per-slot).
type Breaker struct {
	cfg Config

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	consecutiveSuccesses int
	openedAt            time.Time

	totalRequests      int64
	successfulRequests int64
	failedRequests     int64
	rejectedRequests   int64
	stateChanges       []StateChange
}

// New creates a Breaker in the CLOSED state.
func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg.withDefaults(), state: Closed}
}

// Execute runs fn under the breaker's current state, per spec.md §4.5: in
// OPEN it rejects immediately (unless openTimeout has elapsed, in which
// case it admits one HALF_OPEN probe); in HALF_OPEN it admits and the
// outcome drives the next transition; in CLOSED it passes through.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.beforeCall(); err != nil {
		return err
	}

	err := fn(ctx)
	b.afterCall(err)
	return err
}

func (b *Breaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalRequests++

	if b.state == Open {
		elapsed := time.Since(b.openedAt)
		if elapsed < b.cfg.OpenTimeout {
			b.rejectedRequests++
			retryAfter := b.cfg.OpenTimeout - elapsed
			err := model.New(model.CodeCircuitBreakerOpen, "circuit breaker is open")
			err.RetryAfterMs = retryAfter.Milliseconds()
			return err
		}
		b.transition(HalfOpen)
	}

	return nil
}

func (b *Breaker) afterCall(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.successfulRequests++
		b.onSuccess()
		return
	}

	if !b.cfg.ShouldRetry(err) {
		// permanent failure: does not count toward the breaker threshold
		return
	}

	b.failedRequests++
	b.onFailure()
}

func (b *Breaker) onSuccess() {
	b.consecutiveFailures = 0

	switch b.state {
	case HalfOpen:
		b.consecutiveSuccesses++
		if b.consecutiveSuccesses >= b.cfg.SuccessThreshold {
			b.transition(Closed)
		}
	case Closed:
		b.consecutiveSuccesses = 0
	}
}

func (b *Breaker) onFailure() {
	b.consecutiveSuccesses = 0

	switch b.state {
	case HalfOpen:
		b.transition(Open)
	case Closed:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.cfg.FailureThreshold {
			b.transition(Open)
		}
	}
}

// transition must be called with b.mu held.
func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	if to == Open {
		b.openedAt = time.Now()
	}
	if to == HalfOpen {
		b.consecutiveSuccesses = 0
	}
	if to == Closed {
		b.consecutiveFailures = 0
		b.consecutiveSuccesses = 0
	}

	b.stateChanges = append(b.stateChanges, StateChange{From: from, To: to, Timestamp: time.Now()})
	if len(b.stateChanges) > maxStateChangeLog {
		b.stateChanges = b.stateChanges[len(b.stateChanges)-maxStateChangeLog:]
	}

	if b.cfg.Bus != nil {
		b.cfg.Bus.PublishBreakerStateChanged(events.BreakerStateChanged{From: string(from), To: string(to)})
	}
}

// GetMetrics returns a snapshot of the breaker's counters and its bounded
// state-change log.
func (b *Breaker) GetMetrics() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()

	changes := make([]StateChange, len(b.stateChanges))
	copy(changes, b.stateChanges)

	return Metrics{
		State:              b.state,
		TotalRequests:      b.totalRequests,
		SuccessfulRequests: b.successfulRequests,
		FailedRequests:     b.failedRequests,
		RejectedRequests:   b.rejectedRequests,
		StateChanges:       changes,
	}
}

// Reset restores the breaker to CLOSED with zero counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = Closed
	b.consecutiveFailures = 0
	b.consecutiveSuccesses = 0
	b.openedAt = time.Time{}
	b.totalRequests = 0
	b.successfulRequests = 0
	b.failedRequests = 0
	b.rejectedRequests = 0
	b.stateChanges = nil
}
