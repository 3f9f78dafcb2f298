// Package wait polls remote resources until they reach a terminal state.
package wait

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/DevExpGBB/azsvc/internal/mgmt"
)

// ErrTimeout is matched by every *TimeoutError.
var ErrTimeout = errors.New("timeout")

// TimeoutError is returned when the terminal state was not reached within
// the policy bound. Last holds the last value polled, which may be nil if
// every poll reported not found.
type TimeoutError struct {
	Attempts int
	Elapsed  time.Duration
	Last     any
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %d attempts (%s)", e.Attempts, e.Elapsed.Round(time.Millisecond))
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// Policy bounds a poll loop. The interval between polls starts at Interval
// and is multiplied by Multiplier after every poll, up to MaxInterval.
type Policy struct {
	Interval    time.Duration
	MaxInterval time.Duration
	Multiplier  float64
	// Jitter is the backoff randomization factor, 0 for none.
	Jitter float64

	// MaxAttempts is the maximum number of polls; 0 means unlimited.
	MaxAttempts int
	// Timeout is the maximum wall-clock time; 0 means unlimited.
	Timeout time.Duration

	Clock clockwork.Clock
	Log   zerolog.Logger
}

// DefaultPolicy polls every 5 seconds, backing off to 30 seconds, for up to
// 15 minutes.
func DefaultPolicy() Policy {
	return Policy{
		Interval:    5 * time.Second,
		MaxInterval: 30 * time.Second,
		Multiplier:  1.5,
		Timeout:     15 * time.Minute,
		Clock:       clockwork.NewRealClock(),
		Log:         zerolog.Nop(),
	}
}

func (p Policy) validate() error {
	if p.MaxAttempts <= 0 && p.Timeout <= 0 {
		return fmt.Errorf("wait policy needs a max attempts or timeout bound")
	}
	if p.Interval < 0 || p.MaxAttempts < 0 || p.Timeout < 0 {
		return fmt.Errorf("wait policy values must not be negative")
	}
	return nil
}

func (p Policy) backOff(clock clockwork.Clock) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Interval
	b.MaxInterval = p.MaxInterval
	if b.MaxInterval < p.Interval {
		b.MaxInterval = p.Interval
	}
	b.Multiplier = p.Multiplier
	if b.Multiplier < 1 {
		b.Multiplier = 1
	}
	b.RandomizationFactor = p.Jitter
	// The poll loop enforces its own bound.
	b.MaxElapsedTime = 0
	b.Clock = clock
	b.Reset()
	return b
}

// Until calls poll until done reports true for its result, then returns that
// result. A poll error matching mgmt.ErrNotFound counts as "not terminal
// yet"; any other error is returned immediately. The context and the policy
// bound are checked before every poll.
func Until[T any](ctx context.Context, p Policy, poll func(context.Context) (T, error), done func(T) bool) (T, error) {
	var (
		zero T
		last T
		seen bool
	)
	if err := p.validate(); err != nil {
		return zero, err
	}
	clock := p.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	b := p.backOff(clock)
	start := clock.Now()
	timeout := func(attempts int) error {
		te := &TimeoutError{Attempts: attempts, Elapsed: clock.Since(start)}
		if seen {
			te.Last = last
		}
		return te
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return last, err
		}
		if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
			return last, timeout(attempt)
		}
		if p.Timeout > 0 && clock.Since(start) >= p.Timeout {
			return last, timeout(attempt)
		}

		v, err := poll(ctx)
		switch {
		case err == nil:
			last, seen = v, true
			if done(v) {
				return v, nil
			}
			p.Log.Debug().Int("attempt", attempt+1).Msg("not in terminal state yet")
		case mgmt.IsNotFound(err):
			p.Log.Debug().Int("attempt", attempt+1).Msg("resource not found yet")
		default:
			return last, err
		}

		delay := b.NextBackOff()
		if p.Timeout > 0 {
			if remaining := p.Timeout - clock.Since(start); delay > remaining {
				delay = remaining
			}
		}
		if delay <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-clock.After(delay):
		}
	}
}
