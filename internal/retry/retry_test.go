package retry

import (
	"errors"
	"testing"
	"time"
)

var errTransient = errors.New("timeout talking to upstream")
var errPermanent = errors.New("400 bad request")

func TestZeroMaxRetriesPerformsExactlyOneAttempt(t *testing.T) {
	r := New(Config{MaxRetries: 0, BaseDelay: time.Millisecond})

	calls := 0
	err := r.Run(func(Attempt) error {
		calls++
		return errTransient
	}, nil)

	if err != errTransient {
		t.Fatalf("expected errTransient, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 attempt, got %d", calls)
	}
}

func TestKRetriesYieldAtMostKPlusOneAttempts(t *testing.T) {
	r := New(Config{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond})

	calls := 0
	err := r.Run(func(Attempt) error {
		calls++
		return errTransient
	}, nil)

	if err != errTransient {
		t.Fatalf("expected last error to propagate, got %v", err)
	}
	if calls != 4 {
		t.Fatalf("expected 4 attempts (1 + 3 retries), got %d", calls)
	}
}

func TestPermanentErrorPropagatesImmediately(t *testing.T) {
	r := New(Config{MaxRetries: 5, BaseDelay: time.Millisecond})

	calls := 0
	err := r.Run(func(Attempt) error {
		calls++
		return errPermanent
	}, nil)

	if err != errPermanent {
		t.Fatalf("expected errPermanent, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 attempt for a permanent error, got %d", calls)
	}
}

func TestSucceedsAfterTransientFailures(t *testing.T) {
	r := New(Config{MaxRetries: 3, BaseDelay: time.Millisecond})

	calls := 0
	err := r.Run(func(Attempt) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	}, nil)

	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestOnRetryInvokedOncePerRetry(t *testing.T) {
	r := New(Config{MaxRetries: 2, BaseDelay: time.Millisecond})

	var retries []int
	_ = r.Run(func(Attempt) error {
		return errTransient
	}, func(err error, attempt int, nextDelay time.Duration) {
		retries = append(retries, attempt)
	})

	if len(retries) != 2 {
		t.Fatalf("expected onRetry called twice, got %d: %v", len(retries), retries)
	}
}

func TestDelayForRespectsMaxDelay(t *testing.T) {
	r := New(Config{
		BaseDelay:         time.Second,
		MaxDelay:          2 * time.Second,
		BackoffMultiplier: 10,
	})

	d := r.delayFor(5)
	if d > 2*time.Second {
		t.Fatalf("expected delay capped at MaxDelay, got %v", d)
	}
}

func TestDefaultIsTransientClassifiesNetworkMessages(t *testing.T) {
	if !DefaultIsTransient(errors.New("dial tcp: connection refused ECONNREFUSED")) {
		t.Fatal("expected ECONNREFUSED to be transient")
	}
	if DefaultIsTransient(errPermanent) {
		t.Fatal("expected a plain 400 message not matching any substring to be permanent")
	}
}
