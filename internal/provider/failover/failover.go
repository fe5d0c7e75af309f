// Package failover runs a request against an ordered set of equivalent
// endpoints, retrying transient failures on the same endpoint before moving
// to the next one.
package failover

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"marketpulse/internal/provider"
)

const (
	DefaultMaxRetries = 3
	DefaultDelay      = 2 * time.Second
)

var (
	// ErrEndpointsExhausted wraps the last error once every endpoint failed.
	ErrEndpointsExhausted = errors.New("all endpoints exhausted")
	ErrNoEndpoints        = errors.New("no endpoints configured")
)

// Decision is what to do after a failed attempt.
type Decision int

const (
	// Retry the same endpoint after the policy delay.
	Retry Decision = iota
	// Rotate to the next endpoint immediately.
	Rotate
)

func (d Decision) String() string {
	if d == Retry {
		return "retry"
	}
	return "rotate"
}

// Classifier maps an attempt error to a Decision.
type Classifier func(error) Decision

// DefaultClassifier retries unreachable endpoints in place and rotates on
// anything the server actually answered. Timeouts retry unless
// rotateOnTimeout is set.
func DefaultClassifier(rotateOnTimeout bool) Classifier {
	return func(err error) Decision {
		switch provider.KindOf(err) {
		case provider.KindNetworkUnreachable:
			return Retry
		case provider.KindTimeout:
			if rotateOnTimeout {
				return Rotate
			}
			return Retry
		default:
			return Rotate
		}
	}
}

// Policy bounds the attempts made against each endpoint.
type Policy struct {
	// MaxRetries is the number of attempts per endpoint, including the first.
	MaxRetries int
	Delay      time.Duration
	Classify   Classifier
	Logger     zerolog.Logger
}

// Attempt performs one request against endpoint.
type Attempt[T any] func(ctx context.Context, endpoint string) (T, error)

// Do tries endpoints in order. Each endpoint gets up to MaxRetries attempts
// while the classifier says Retry; a Rotate decision or exhausted retries
// move on to the next endpoint with a fresh counter. Cancellation of ctx
// stops immediately with ctx's error.
func Do[T any](ctx context.Context, p Policy, endpoints []string, attempt Attempt[T]) (T, error) {
	var zero T
	if len(endpoints) == 0 {
		return zero, ErrNoEndpoints
	}
	maxRetries := p.MaxRetries
	if maxRetries < 1 {
		maxRetries = DefaultMaxRetries
	}
	classify := p.Classify
	if classify == nil {
		classify = DefaultClassifier(false)
	}

	var last error
	for i, endpoint := range endpoints {
		tries := 0
		op := func() (T, error) {
			tries++
			v, err := attempt(ctx, endpoint)
			if err == nil {
				return v, nil
			}
			if ctx.Err() != nil {
				return zero, backoff.Permanent(ctx.Err())
			}
			d := classify(err)
			p.Logger.Debug().
				Err(err).
				Str("endpoint", endpoint).
				Int("attempt", tries).
				Stringer("decision", d).
				Msg("endpoint attempt failed")
			if d == Rotate {
				return zero, backoff.Permanent(err)
			}
			return zero, err
		}

		v, err := backoff.Retry(ctx, op,
			backoff.WithBackOff(backoff.NewConstantBackOff(p.Delay)),
			backoff.WithMaxTries(uint(maxRetries)),
			backoff.WithMaxElapsedTime(0),
		)
		if err == nil {
			if i > 0 {
				p.Logger.Info().Str("endpoint", endpoint).Int("index", i).Msg("failover succeeded")
			}
			return v, nil
		}
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Unwrap()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
		last = err
		if i+1 < len(endpoints) {
			p.Logger.Warn().Err(err).Str("endpoint", endpoint).Str("next", endpoints[i+1]).Msg("rotating endpoint")
		}
	}
	return zero, fmt.Errorf("%w (%d endpoints): %w", ErrEndpointsExhausted, len(endpoints), last)
}
