// Package keypool implements KeySlot and KeyPool from spec.md §4.3/§4.4,
// generalizing the multi-credential failover shape of the pack's
// cecil-the-coder-ai-provider-kit pkg/oauthmanager/oauthmanager.go
// OAuthKeyManager (per-credential health tracking, failure/success
// reporting, selection among healthy credentials) into the spec's
// ACTIVE/DISABLED/COOLDOWN state machine and most-tokens-then-LRU
// selection.
package keypool

import (
	"context"
	"sync"
	"time"

	"github.com/tra-cli/tra/internal/auth"
	"github.com/tra-cli/tra/internal/events"
	"github.com/tra-cli/tra/internal/logging"
	"github.com/tra-cli/tra/internal/model"
	"github.com/tra-cli/tra/internal/ratelimit"
)

// Thresholds from spec.md §4.3.
const (
	failureThreshold  = 3
	failureCooldownMs = 30_000
	recoveryTimeMs    = 60_000
)

// Slot aggregates one credential with its own AuthService and RateLimiter,
// and the health counters from spec.md §3.
type Slot struct {
	cred model.Credential

	Auth    *auth.Service
	Limiter *ratelimit.Limiter

	mu                   sync.Mutex
	state                model.SlotState
	consecutiveFailures  int
	totalRequests        int64
	successfulRequests   int64
	failedRequests       int64
	lastUsedEpochMs      int64
	lastErrorMessage     string
	disabledUntilEpochMs int64

	bus *events.Bus
}

// NewSlot builds a Slot in the ACTIVE state.
func NewSlot(cred model.Credential, a *auth.Service, l *ratelimit.Limiter, bus *events.Bus) *Slot {
	return &Slot{cred: cred, Auth: a, Limiter: l, state: model.SlotActive, bus: bus}
}

// ID returns the underlying credential's id.
func (s *Slot) ID() string { return s.cred.ID }

// Label returns the underlying credential's human label.
func (s *Slot) Label() string { return s.cred.Label }

// IsAvailable reports whether the slot may currently be handed out by
// KeyPool.getSlot, lazily transitioning DISABLED→COOLDOWN when the
// cooldown window has elapsed.
func (s *Slot) IsAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lazyTransition()
	return s.state == model.SlotActive || s.state == model.SlotCooldown
}

// GetAvailableTokens returns the slot's rate limiter's current token
// count, used by KeyPool.getSlot's most-tokens selection.
func (s *Slot) GetAvailableTokens() int {
	return s.Limiter.AvailableTokens()
}

// RecordSuccess resets the failure streak and, from COOLDOWN, returns the
// slot to ACTIVE (spec.md §4.3).
func (s *Slot) RecordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalRequests++
	s.successfulRequests++
	s.lastUsedEpochMs = nowMs()
	s.consecutiveFailures = 0

	s.lazyTransition()
	if s.state == model.SlotCooldown {
		s.transition(model.SlotActive, "recovered after successful request")
		s.disabledUntilEpochMs = 0
	}
}

// RecordFailure increments the failure streak and, at failureThreshold,
// disables the slot for failureCooldownMs. Per spec.md §4.3, any failure
// observed while in COOLDOWN resets the disabled window.
func (s *Slot) RecordFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalRequests++
	s.failedRequests++
	s.lastUsedEpochMs = nowMs()
	if err != nil {
		s.lastErrorMessage = err.Error()
	}

	s.lazyTransition()

	if s.state == model.SlotCooldown {
		s.disabledUntilEpochMs = nowMs() + failureCooldownMs
		s.transition(model.SlotDisabled, "failure observed during cooldown")
		return
	}

	s.consecutiveFailures++
	if s.consecutiveFailures >= failureThreshold {
		s.disabledUntilEpochMs = nowMs() + failureCooldownMs
		s.transition(model.SlotDisabled, "consecutive failure threshold reached")
	}
}

// lazyTransition must be called with s.mu held; it implements the
// DISABLED→COOLDOWN check done on every read (spec.md §4.3).
func (s *Slot) lazyTransition() {
	if s.state == model.SlotDisabled && nowMs() >= s.disabledUntilEpochMs {
		s.transition(model.SlotCooldown, "disabled window elapsed")
	}
}

// transition must be called with s.mu held.
func (s *Slot) transition(to model.SlotState, reason string) {
	from := s.state
	if from == to {
		return
	}
	s.state = to

	logging.Info(context.Background(), "key slot state change", map[string]interface{}{
		"slot_id": s.cred.ID,
		"from":    string(from),
		"to":      string(to),
		"reason":  reason,
	})

	if s.bus != nil {
		s.bus.PublishSlotStateChanged(events.SlotStateChanged{
			SlotID: s.cred.ID,
			From:   string(from),
			To:     string(to),
			Reason: reason,
		})
	}
}

// GetMetrics returns a snapshot of the slot's counters.
func (s *Slot) GetMetrics() model.SlotMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lazyTransition()

	return model.SlotMetrics{
		SlotID:               s.cred.ID,
		Label:                s.cred.Label,
		State:                s.state,
		ConsecutiveFailures:  s.consecutiveFailures,
		TotalRequests:        s.totalRequests,
		SuccessfulRequests:   s.successfulRequests,
		FailedRequests:       s.failedRequests,
		LastUsedEpochMs:      s.lastUsedEpochMs,
		LastErrorMessage:     s.lastErrorMessage,
		DisabledUntilEpochMs: s.disabledUntilEpochMs,
		AvailableTokens:      s.Limiter.AvailableTokens(),
	}
}

// reset restores the slot to ACTIVE with zero counters.
func (s *Slot) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = model.SlotActive
	s.consecutiveFailures = 0
	s.totalRequests = 0
	s.successfulRequests = 0
	s.failedRequests = 0
	s.lastUsedEpochMs = 0
	s.lastErrorMessage = ""
	s.disabledUntilEpochMs = 0
}

func nowMs() int64 { return time.Now().UnixMilli() }
