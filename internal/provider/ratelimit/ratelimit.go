package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// MinDelay is the smallest pacing accepted by configuration.
const MinDelay = 500 * time.Millisecond

// Sequencer paces calls to a per-item API. Consecutive call starts through the
// same Sequencer are at least Delay apart, including calls from overlapping
// cycles. Run additionally waits Delay after each call completes.
type Sequencer struct {
	delay   time.Duration
	limiter *rate.Limiter
}

// NewSequencer returns a Sequencer spacing calls by delay. A non-positive
// delay disables pacing.
func NewSequencer(delay time.Duration) *Sequencer {
	lim := rate.NewLimiter(rate.Inf, 1)
	if delay > 0 {
		lim = rate.NewLimiter(rate.Every(delay), 1)
	}
	return &Sequencer{delay: delay, limiter: lim}
}

func (s *Sequencer) Delay() time.Duration { return s.delay }

// Wait blocks until the next call may start or ctx is done.
func (s *Sequencer) Wait(ctx context.Context) error {
	return s.limiter.Wait(ctx)
}

// pause waits Delay from now, or until ctx is done.
func (s *Sequencer) pause(ctx context.Context) error {
	if s.delay <= 0 {
		return nil
	}
	t := time.NewTimer(s.delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Results holds the outcome of a sequenced run. Every item appears in
// exactly one of the two maps.
type Results[T any] struct {
	Values map[string]T
	Errors map[string]error
}

// Run calls fn for each item in order, one at a time. The next item starts
// no sooner than Delay after the previous call returned. Item failures are
// collected and do not stop the run; cancellation of ctx marks the remaining
// items with ctx's error.
func Run[T any](ctx context.Context, s *Sequencer, items []string, fn func(ctx context.Context, item string) (T, error)) Results[T] {
	res := Results[T]{
		Values: make(map[string]T, len(items)),
		Errors: make(map[string]error),
	}
	called := false
	for i, item := range items {
		if _, done := res.Values[item]; done {
			continue
		}
		var err error
		if called {
			err = s.pause(ctx)
		}
		if err == nil {
			err = s.Wait(ctx)
		}
		if err != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			for _, rest := range items[i:] {
				if _, ok := res.Values[rest]; !ok {
					res.Errors[rest] = err
				}
			}
			return res
		}
		called = true
		v, err := fn(ctx, item)
		if err != nil {
			res.Errors[item] = err
			continue
		}
		delete(res.Errors, item)
		res.Values[item] = v
	}
	return res
}
