package keypool

import (
	"errors"
	"testing"

	"github.com/tra-cli/tra/internal/auth"
	"github.com/tra-cli/tra/internal/events"
	"github.com/tra-cli/tra/internal/model"
	"github.com/tra-cli/tra/internal/ratelimit"
)

var errBoom = errors.New("boom")

func newTestSlot(id string, maxTokens int) *Slot {
	cred := model.Credential{ID: id, Label: "slot-" + id}
	a := auth.New(cred, nil)
	l := ratelimit.New(ratelimit.Config{MaxTokens: maxTokens, RefillRatePerSec: 1})
	return NewSlot(cred, a, l, &events.Bus{})
}

func TestRecordFailureDisablesAtThreshold(t *testing.T) {
	s := newTestSlot("1", 5)
	for i := 0; i < failureThreshold; i++ {
		s.RecordFailure(errBoom)
	}
	if s.IsAvailable() {
		t.Fatal("expected slot to be unavailable once DISABLED")
	}
	if got := s.GetMetrics().State; got != model.SlotDisabled {
		t.Fatalf("expected DISABLED, got %s", got)
	}
}

func TestRecordSuccessResetsFailureStreak(t *testing.T) {
	s := newTestSlot("1", 5)
	s.RecordFailure(errBoom)
	s.RecordFailure(errBoom)
	s.RecordSuccess()

	if got := s.GetMetrics().ConsecutiveFailures; got != 0 {
		t.Fatalf("expected failure streak reset, got %d", got)
	}
}

func TestCooldownTransitionsOnSuccessAfterWindow(t *testing.T) {
	s := newTestSlot("1", 5)
	for i := 0; i < failureThreshold; i++ {
		s.RecordFailure(errBoom)
	}
	// simulate the cooldown window having elapsed
	s.disabledUntilEpochMs = nowMs() - 1

	if !s.IsAvailable() {
		t.Fatal("expected slot to become available (COOLDOWN) once window elapses")
	}
	if got := s.GetMetrics().State; got != model.SlotCooldown {
		t.Fatalf("expected COOLDOWN, got %s", got)
	}

	s.RecordSuccess()
	if got := s.GetMetrics().State; got != model.SlotActive {
		t.Fatalf("expected ACTIVE after success in COOLDOWN, got %s", got)
	}
}

func TestFailureDuringCooldownResetsWindow(t *testing.T) {
	s := newTestSlot("1", 5)
	for i := 0; i < failureThreshold; i++ {
		s.RecordFailure(errBoom)
	}
	s.disabledUntilEpochMs = nowMs() - 1
	s.IsAvailable() // trigger lazy transition to COOLDOWN

	s.RecordFailure(errBoom)
	if got := s.GetMetrics().State; got != model.SlotDisabled {
		t.Fatalf("expected re-DISABLED after failure during COOLDOWN, got %s", got)
	}
}

func TestPoolGetSlotSkipsDisabledSlots(t *testing.T) {
	p := New()
	s1 := newTestSlot("1", 5)
	s2 := newTestSlot("2", 5)
	p.Add(s1)
	p.Add(s2)

	for i := 0; i < failureThreshold; i++ {
		s1.RecordFailure(errBoom)
	}

	got, err := p.GetSlot()
	if err != nil {
		t.Fatalf("GetSlot: %v", err)
	}
	if got.ID() != "2" {
		t.Fatalf("expected slot 2 to be selected, got %s", got.ID())
	}
}

func TestPoolGetSlotFailsWhenAllDisabled(t *testing.T) {
	p := New()
	s1 := newTestSlot("1", 5)
	p.Add(s1)
	for i := 0; i < failureThreshold; i++ {
		s1.RecordFailure(errBoom)
	}

	_, err := p.GetSlot()
	if code, ok := model.CodeOf(err); !ok || code != model.CodeNoAvailableSlots {
		t.Fatalf("expected NO_AVAILABLE_SLOTS, got %v", err)
	}
}

func TestPoolGetSlotPrefersMostTokens(t *testing.T) {
	p := New()
	s1 := newTestSlot("1", 5)
	s2 := newTestSlot("2", 5)
	p.Add(s1)
	p.Add(s2)

	// exhaust s1's bucket so s2 has strictly more tokens available
	for i := 0; i < 5; i++ {
		s1.Limiter.TryAcquire()
	}

	got, err := p.GetSlot()
	if err != nil {
		t.Fatalf("GetSlot: %v", err)
	}
	if got.ID() != "2" {
		t.Fatalf("expected slot 2 (more tokens) to be selected, got %s", got.ID())
	}
}

func TestCapacityAvailableNeverExceedsMax(t *testing.T) {
	p := New()
	p.Add(newTestSlot("1", 5))
	p.Add(newTestSlot("2", 5))

	capacity := p.GetCapacity()
	if capacity.Available > capacity.Max {
		t.Fatalf("invariant violated: available=%d max=%d", capacity.Available, capacity.Max)
	}
}
