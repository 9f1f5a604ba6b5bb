package breaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Do when the breaker is open and the operation was
// skipped without any I/O being attempted.
var ErrOpen = errors.New("breaker: open")

// Config controls retry and trip behavior. Zero values get safe defaults.
type Config struct {
	// MaxAttempts is the total number of tries per Do call.
	MaxAttempts int
	// BaseDelay is the first backoff delay; attempt n waits BaseDelay * 2^(n-1).
	BaseDelay time.Duration
	// Threshold is the terminal-failure count at which the breaker opens.
	Threshold int
	// Cooldown is how long the breaker stays open before resetting to closed.
	Cooldown time.Duration

	// Retryable decides whether an error is worth another attempt.
	// nil means every error is retried until attempts are exhausted.
	Retryable func(error) bool

	// Now and Sleep are injectable for deterministic tests.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

func (c Config) withDefaults() Config {
	out := c
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = 3
	}
	if out.BaseDelay <= 0 {
		out.BaseDelay = 100 * time.Millisecond
	}
	if out.Threshold <= 0 {
		out.Threshold = 5
	}
	if out.Cooldown <= 0 {
		out.Cooldown = 60 * time.Second
	}
	if out.Now == nil {
		out.Now = time.Now
	}
	if out.Sleep == nil {
		out.Sleep = sleepCtx
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Breaker is a process-wide failure gate combined with a bounded retry loop.
//
// It is advisory backpressure only: operations are not exactly-once, so
// everything executed through Do must be idempotent by key. The counter is
// mutex-guarded; a slightly premature or delayed trip under concurrency is
// acceptable.
type Breaker struct {
	cfg Config

	mu          sync.Mutex
	failures    int
	open        bool
	lastFailure time.Time
}

// New returns a closed Breaker. Pass the same instance to every service that
// should share the failure budget.
func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg.withDefaults()}
}

// Allow reports whether an operation may proceed, resetting an open breaker
// once the cooldown has elapsed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.open && b.cfg.Now().Sub(b.lastFailure) > b.cfg.Cooldown {
		b.open = false
		b.failures = 0
	}
	return !b.open
}

// RecordSuccess decrements the failure counter, floored at zero.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures > 0 {
		b.failures--
	}
}

// RecordFailure increments the failure counter and opens the breaker once the
// threshold is reached.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFailure = b.cfg.Now()
	if b.failures >= b.cfg.Threshold {
		b.open = true
	}
}

// Do runs op with exponential-backoff retries and breaker bookkeeping.
// A nil return records a success. Exhausting all attempts, or hitting a
// non-retryable error, records a single terminal failure and returns the
// last error. ErrOpen is returned without invoking op when the breaker is
// open.
func (b *Breaker) Do(ctx context.Context, op func(ctx context.Context) error) error {
	if !b.Allow() {
		return ErrOpen
	}

	var lastErr error
	for attempt := 1; attempt <= b.cfg.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			b.RecordSuccess()
			return nil
		}
		lastErr = err

		if b.cfg.Retryable != nil && !b.cfg.Retryable(err) {
			break
		}
		if attempt < b.cfg.MaxAttempts {
			delay := b.cfg.BaseDelay << (attempt - 1)
			if err := b.cfg.Sleep(ctx, delay); err != nil {
				lastErr = err
				break
			}
		}
	}

	b.RecordFailure()
	return lastErr
}
