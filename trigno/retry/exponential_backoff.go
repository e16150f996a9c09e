// Copyright (c) jupacheco1407.
// Licensed under the MIT License.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/jupacheco1407/datacollector/internal/log"
	"github.com/jupacheco1407/datacollector/internal/wallclock"
)

type (
	// ExponentialBackoff retries a task with a doubling delay between
	// attempts, up to MaxInterval, with +/-5% jitter.
	ExponentialBackoff struct {
		// MaxAttempts caps the number of attempts. Zero means unlimited; one
		// disables retries.
		MaxAttempts uint64

		// MinInterval is the delay after the first failure. Defaults to
		// 125ms.
		MinInterval time.Duration

		// MaxInterval caps the delay. Defaults to 30s.
		MaxInterval time.Duration

		// Timeout bounds all attempts together. Zero means no bound beyond
		// the caller's context.
		Timeout time.Duration

		// NoJitter makes delays exact.
		NoJitter bool

		Logger *slog.Logger
	}

	// ExhaustedError is returned when a retried task gives up, either because
	// attempts ran out or because the context ended while backing off. It
	// wraps the last task error and, if any, the context error.
	ExhaustedError struct {
		Task     string
		Attempts uint64
		Last     error
		Cause    error
	}
)

const (
	defaultMinInterval = time.Second / 8
	defaultMaxInterval = 30 * time.Second
)

// Start runs task until it succeeds, reports a non-retryable error, or the
// policy gives up.
func (e *ExponentialBackoff) Start(
	ctx context.Context,
	name string,
	task Task,
) error {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	l := logger{log.Wrap(e.Logger)}

	for attempt := uint64(1); ; attempt++ {
		l.attempt(ctx, name, attempt)
		retry, err := task(ctx)
		switch {
		case err == nil:
			l.complete(ctx, name, attempt, nil)
			return nil

		case !retry:
			l.complete(ctx, name, attempt, err)
			return err

		case attempt == e.MaxAttempts, ctx.Err() != nil:
			err = &ExhaustedError{
				Task:     name,
				Attempts: attempt,
				Last:     err,
				Cause:    ctx.Err(),
			}
			l.complete(ctx, name, attempt, err)
			return err
		}

		delay := e.delay(attempt)
		l.backoff(ctx, name, attempt, delay, err)

		if !wallclock.Sleep(ctx, delay, nil) {
			err = &ExhaustedError{
				Task:     name,
				Attempts: attempt,
				Last:     err,
				Cause:    ctx.Err(),
			}
			l.complete(ctx, name, attempt, err)
			return err
		}
	}
}

// The delay before the attempt following the given one.
func (e *ExponentialBackoff) delay(attempt uint64) time.Duration {
	lo, hi := e.MinInterval, e.MaxInterval
	if lo <= 0 {
		lo = defaultMinInterval
	}
	if hi <= 0 {
		hi = defaultMaxInterval
	}

	d := lo
	for i := uint64(1); i < attempt && d < hi; i++ {
		d *= 2
	}
	d = min(d, hi)

	if e.NoJitter {
		return d
	}
	// #nosec G404
	return time.Duration(float64(d) * (.95 + .1*rand.Float64()))
}

func (e *ExhaustedError) Error() string {
	msg := fmt.Sprintf("%s: gave up after %d attempt(s)", e.Task, e.Attempts)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	if e.Last != nil {
		msg += ": " + e.Last.Error()
	}
	return msg
}

func (e *ExhaustedError) Unwrap() []error {
	errs := make([]error, 0, 2)
	for _, err := range []error{e.Last, e.Cause} {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
