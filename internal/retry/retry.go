package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// DefaultMaxAttempts is the attempt cap for external calls
const DefaultMaxAttempts = 3

// uncappedDelay stands in for a zero MaxDelay
const uncappedDelay = time.Hour

// Policy retries an operation with exponential backoff and full jitter
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// AttemptTimeout bounds each attempt; zero means no per-attempt timeout
	AttemptTimeout time.Duration

	// Rand returns a value in [0, 1). Defaults to math/rand.
	Rand func() float64
	// Sleep waits for d or until ctx is done. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy returns 3 attempts, 1s base delay, 60s cap
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   time.Second,
		MaxDelay:    time.Minute,
	}
}

// Permanent marks err as not worth retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var p *backoff.PermanentError
	return errors.As(err, &p)
}

// fullJitter scales each exponential step by a random factor in [0, 1)
type fullJitter struct {
	exp  *backoff.ExponentialBackOff
	rand func() float64
}

func (j *fullJitter) NextBackOff() time.Duration {
	next := j.exp.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	return time.Duration(j.rand() * float64(next))
}

func (j *fullJitter) Reset() { j.exp.Reset() }

// sleepTimer drives backoff waits through the policy's Sleep
type sleepTimer struct {
	ctx   context.Context
	sleep func(ctx context.Context, d time.Duration) error
	c     chan time.Time
}

func (t *sleepTimer) Start(d time.Duration) {
	c := make(chan time.Time, 1)
	t.c = c
	go func() {
		if t.sleep(t.ctx, d) == nil {
			c <- time.Now()
		}
	}()
}

func (t *sleepTimer) Stop() {}

func (t *sleepTimer) C() <-chan time.Time { return t.c }

func (p Policy) backOff(ctx context.Context, attempts int) backoff.BackOffContext {
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = uncappedDelay
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = max(p.BaseDelay, 0)
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxInterval = maxDelay
	exp.MaxElapsedTime = 0
	exp.Reset()

	random := p.Rand
	if random == nil {
		random = rand.Float64
	}

	b := backoff.WithMaxRetries(&fullJitter{exp: exp, rand: random}, uint64(attempts-1))
	return backoff.WithContext(b, ctx)
}

// Do runs op until it succeeds, returns a permanent error, the context ends or attempts run out
func (p Policy) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	attempts := max(p.MaxAttempts, 1)

	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	attempt := 0
	operation := func() error {
		attempt++
		return p.attempt(ctx, op)
	}
	notify := func(err error, delay time.Duration) {
		logrus.Warnf("%s failed (attempt %d/%d), retrying in %s: %v", name, attempt, attempts, delay.Round(time.Millisecond), err)
	}

	err := backoff.RetryNotifyWithTimer(operation, p.backOff(ctx, attempts), notify, &sleepTimer{ctx: ctx, sleep: sleep})
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return fmt.Errorf("%s: %w", name, err)
	}
	return fmt.Errorf("%s failed after retries: %w", name, err)
}

func (p Policy) attempt(ctx context.Context, op func(ctx context.Context) error) error {
	if p.AttemptTimeout <= 0 {
		return op(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, p.AttemptTimeout)
	defer cancel()
	return op(attemptCtx)
}

// Sleep waits for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
