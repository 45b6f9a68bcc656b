package breaker

import (
	"errors"
	"testing"
	"time"

	"lphedge/internal/coretypes"
)

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	t.Parallel()
	b := New("venue", 3, time.Minute, 1)

	for i := 0; i < 3; i++ {
		if err := b.Allow(); err != nil {
			t.Fatalf("call %d: Allow returned %v, want nil", i, err)
		}
		b.RecordFailure()
	}

	if b.State() != Open {
		t.Fatalf("state = %v, want Open", b.State())
	}
	if err := b.Allow(); !errors.Is(err, coretypes.ErrCircuitOpen) {
		t.Errorf("Allow() = %v, want ErrCircuitOpen", err)
	}
}

func TestBreaker_SuccessResetsFailureStreak(t *testing.T) {
	t.Parallel()
	b := New("venue", 3, time.Minute, 1)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()

	if b.State() != Closed {
		t.Fatalf("state = %v, want Closed (streak should have reset)", b.State())
	}
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	t.Parallel()
	b := New("pool", 1, 10*time.Millisecond, 1)

	b.RecordFailure()
	if b.State() != Open {
		t.Fatalf("state = %v, want Open", b.State())
	}

	time.Sleep(15 * time.Millisecond)

	if err := b.Allow(); err != nil {
		t.Fatalf("Allow() after reset timeout = %v, want nil (half-open trial)", err)
	}
	if b.State() != HalfOpen {
		t.Fatalf("state = %v, want HalfOpen", b.State())
	}

	b.RecordSuccess()
	if b.State() != Closed {
		t.Fatalf("state = %v, want Closed after successful trial", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	t.Parallel()
	b := New("notifier", 1, 10*time.Millisecond, 1)

	b.RecordFailure()
	time.Sleep(15 * time.Millisecond)
	if err := b.Allow(); err != nil {
		t.Fatalf("Allow() = %v, want nil", err)
	}

	b.RecordFailure()
	if b.State() != Open {
		t.Fatalf("state = %v, want Open after half-open trial failure", b.State())
	}
}
