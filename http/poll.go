package http

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/field-workshops/labkit/logger"
)

// ErrConditionNotMet is the last error of a poll whose probe never reported done.
var ErrConditionNotMet = errors.New("condition not met")

// Probe checks a condition once. done=true ends the poll successfully.
type Probe func(ctx context.Context, attempt int) (done bool, err error)

type stopError struct {
	err error
}

func (e *stopError) Error() string { return e.err.Error() }

func (e *stopError) Unwrap() error { return e.err }

// Stop marks a probe error as fatal so Poll returns it without retrying.
func Stop(err error) error {
	if err == nil {
		return nil
	}
	return &stopError{err: err}
}

// Poll runs probe under the attempt budget and delay of p. p.Success and
// p.NonIdempotent do not apply. Probe errors are retryable unless wrapped
// with Stop. Exhaustion returns *AttemptsExhaustedError.
func Poll(ctx context.Context, log logger.Logger, p Policy, what string, probe Probe) error {
	p = p.normalized()
	if log == nil {
		log = logger.Nop()
	}

	var (
		attempt int
		last    error
		stopped bool
	)

	operation := func() error {
		attempt++
		done, err := probe(ctx, attempt)
		switch {
		case err != nil:
			var stop *stopError
			if errors.As(err, &stop) {
				stopped = true
				return backoff.Permanent(stop.err)
			}
			last = err
		case done:
			return nil
		default:
			last = ErrConditionNotMet
		}
		return last
	}

	notify := func(err error, wait time.Duration) {
		log.Info().
			Str("waiting_for", what).
			Int("attempt", attempt).
			Int("max_attempts", p.MaxAttempts).
			Dur("retry_in", wait).
			Str("reason", err.Error()).
			Msg("Condition not met, retrying")
	}

	strategy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), uint64(p.MaxAttempts-1)),
		ctx,
	)

	err := backoff.RetryNotify(operation, strategy, notify)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("waiting for %s cancelled after %d attempt(s): %w", what, attempt, ctxErr)
	}
	if !stopped {
		err = &AttemptsExhaustedError{Attempts: attempt, Last: fmt.Errorf("%s: %w", what, last)}
	}

	log.Error().
		Str("waiting_for", what).
		Int("attempts", attempt).
		Err(err).
		Msg("Giving up")
	return err
}
