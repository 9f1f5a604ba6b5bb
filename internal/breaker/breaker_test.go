package breaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

func newTestBreaker(clk *fakeClock, slept *[]time.Duration) *Breaker {
	return New(Config{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		Threshold:   5,
		Cooldown:    60 * time.Second,
		Now:         clk.Now,
		Sleep: func(_ context.Context, d time.Duration) error {
			*slept = append(*slept, d)
			return nil
		},
	})
}

func TestDo_RetriesExactlyMaxAttempts(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	var slept []time.Duration
	b := newTestBreaker(clk, &slept)

	calls := 0
	errBoom := errors.New("boom")
	err := b.Do(context.Background(), func(context.Context) error {
		calls++
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", calls)
	}
	// Backoff schedule: base*2^0 + base*2^1 between the 3 attempts.
	if len(slept) != 2 || slept[0] != 100*time.Millisecond || slept[1] != 200*time.Millisecond {
		t.Fatalf("unexpected backoff schedule: %v", slept)
	}
}

func TestDo_SuccessAfterRetryDecrementsFailures(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	var slept []time.Duration
	b := newTestBreaker(clk, &slept)

	attempts := 0
	err := b.Do(context.Background(), func(context.Context) error {
		attempts++
		if attempts < 2 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
	if b.failures != 0 {
		t.Fatalf("expected failure counter 0, got %d", b.failures)
	}
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	var slept []time.Duration
	b := newTestBreaker(clk, &slept)
	b.cfg.Retryable = func(error) bool { return false }

	calls := 0
	_ = b.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("bad request")
	})
	if calls != 1 {
		t.Fatalf("expected 1 attempt for non-retryable error, got %d", calls)
	}
	if len(slept) != 0 {
		t.Fatalf("expected no backoff sleeps, got %v", slept)
	}
}

func TestBreaker_OpensAtThresholdAndResetsAfterCooldown(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	var slept []time.Duration
	b := newTestBreaker(clk, &slept)

	fail := func(context.Context) error { return errors.New("down") }
	for i := 0; i < 5; i++ {
		if err := b.Do(context.Background(), fail); errors.Is(err, ErrOpen) {
			t.Fatalf("breaker opened early at terminal failure %d", i+1)
		}
	}

	// Threshold reached: the next call is skipped without invoking the op.
	called := false
	err := b.Do(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if called {
		t.Fatalf("operation must not run while the breaker is open")
	}

	// After the cooldown the breaker closes and operations flow again.
	clk.Advance(61 * time.Second)
	if err := b.Do(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("expected closed breaker after cooldown, got %v", err)
	}
}

func TestRecordSuccess_FloorsAtZero(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	var slept []time.Duration
	b := newTestBreaker(clk, &slept)

	b.RecordSuccess()
	if b.failures != 0 {
		t.Fatalf("expected floor at zero, got %d", b.failures)
	}
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordSuccess()
	if b.failures != 0 {
		t.Fatalf("expected counter back at zero, got %d", b.failures)
	}
}
