// Copyright (c) jupacheco1407.
// Licensed under the MIT License.
package sampling

import (
	"context"
	"time"
)

type (
	// Source is a strategy that feeds samples to a worker's accumulator.
	Source interface {
		// Channels returns the number of channels produced by the source.
		Channels() int

		// Open prepares the source to feed the accumulator for a single run.
		// It must fail rather than return a session that can never produce
		// data; the worker will not start its loop if Open fails.
		Open(ctx context.Context, acc *Accumulator) (Session, error)
	}

	// Session is a single opened run of a Source.
	Session interface {
		// Poll is called once per iteration. Polled sources take a sample
		// here; push-based sources only report whether they are still
		// healthy.
		Poll(ctx context.Context) error

		// Close releases everything acquired by Open. The worker calls it
		// exactly once, on every exit path.
		Close(ctx context.Context) error
	}

	// Defaulter may be implemented by a source to suggest the sampling
	// cadence used when the worker is not given explicit options.
	Defaulter interface {
		Defaults() (iterations int, interval time.Duration)
	}
)

// Default cadence for sources that do not implement Defaulter: five one-second
// windows.
const (
	DefaultIterations = 5
	DefaultInterval   = time.Second
)
