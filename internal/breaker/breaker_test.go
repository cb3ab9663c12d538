package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tra-cli/tra/internal/model"
)

var errBoom = errors.New("boom")

func TestOpensAfterFailureThreshold(t *testing.T) {
	b := New(Config{FailureThreshold: 3, SuccessThreshold: 2, OpenTimeout: 100 * time.Millisecond})

	for i := 0; i < 3; i++ {
		err := b.Execute(context.Background(), func(context.Context) error { return errBoom })
		if err != errBoom {
			t.Fatalf("attempt %d: expected passthrough error, got %v", i, err)
		}
	}

	if got := b.GetMetrics().State; got != Open {
		t.Fatalf("expected OPEN, got %s", got)
	}
}

func TestOpenRejectsWithoutCallingFn(t *testing.T) {
	b := New(Config{FailureThreshold: 1, OpenTimeout: time.Hour})
	_ = b.Execute(context.Background(), func(context.Context) error { return errBoom })

	called := false
	err := b.Execute(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	if called {
		t.Fatal("fn must not be invoked while OPEN")
	}

	code, ok := model.CodeOf(err)
	if !ok || code != model.CodeCircuitBreakerOpen {
		t.Fatalf("expected CIRCUIT_BREAKER_OPEN, got %v", err)
	}

	var me *model.Error
	if errors.As(err, &me) {
		if me.RetryAfterMs <= 0 {
			t.Fatal("expected positive RetryAfterMs")
		}
	}

	m := b.GetMetrics()
	if m.RejectedRequests != 1 {
		t.Fatalf("expected 1 rejected request, got %d", m.RejectedRequests)
	}
	if m.FailedRequests != 1 {
		t.Fatalf("expected failedRequests to reflect only the first call, got %d", m.FailedRequests)
	}
}

func TestRecoversThroughHalfOpen(t *testing.T) {
	b := New(Config{FailureThreshold: 3, SuccessThreshold: 2, OpenTimeout: 50 * time.Millisecond})

	for i := 0; i < 3; i++ {
		_ = b.Execute(context.Background(), func(context.Context) error { return errBoom })
	}
	if b.GetMetrics().State != Open {
		t.Fatal("expected OPEN after 3 failures")
	}

	time.Sleep(60 * time.Millisecond)

	if err := b.Execute(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("expected HALF_OPEN probe to succeed: %v", err)
	}
	if b.GetMetrics().State != HalfOpen {
		t.Fatal("expected HALF_OPEN after one success, before reaching successThreshold")
	}

	if err := b.Execute(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("second probe: %v", err)
	}
	if b.GetMetrics().State != Closed {
		t.Fatal("expected CLOSED after successThreshold successes in HALF_OPEN")
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b := New(Config{FailureThreshold: 1, SuccessThreshold: 2, OpenTimeout: 10 * time.Millisecond})

	_ = b.Execute(context.Background(), func(context.Context) error { return errBoom })
	time.Sleep(15 * time.Millisecond)

	_ = b.Execute(context.Background(), func(context.Context) error { return errBoom })

	if got := b.GetMetrics().State; got != Open {
		t.Fatalf("expected re-OPEN after HALF_OPEN failure, got %s", got)
	}
}

func TestPermanentErrorsDoNotCountTowardThreshold(t *testing.T) {
	permanent := errors.New("400 bad request")
	b := New(Config{
		FailureThreshold: 2,
		ShouldRetry:      func(err error) bool { return err != permanent },
	})

	for i := 0; i < 5; i++ {
		_ = b.Execute(context.Background(), func(context.Context) error { return permanent })
	}

	if got := b.GetMetrics().State; got != Closed {
		t.Fatalf("expected CLOSED since all failures were permanent, got %s", got)
	}
}

func TestResetRestoresClosedWithZeroCounters(t *testing.T) {
	b := New(Config{FailureThreshold: 1, OpenTimeout: time.Hour})
	_ = b.Execute(context.Background(), func(context.Context) error { return errBoom })
	if b.GetMetrics().State != Open {
		t.Fatal("expected OPEN before reset")
	}

	b.Reset()

	m := b.GetMetrics()
	if m.State != Closed || m.TotalRequests != 0 || len(m.StateChanges) != 0 {
		t.Fatalf("expected a clean reset, got %+v", m)
	}
}
