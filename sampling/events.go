// Copyright (c) jupacheco1407.
// Licensed under the MIT License.
package sampling

import (
	"time"

	"github.com/google/uuid"
)

type (
	// Event is a notification emitted by a worker. It is either a Progress or
	// a Completion.
	Event interface{ event() }

	// Progress reports that a sampling step has finished. Steps are emitted
	// in strictly increasing order, starting from 1, and never exceed Total.
	Progress struct {
		RunID uuid.UUID
		Step  int
		Total int
	}

	// Completion is the final result of a run. Exactly one is emitted per
	// run, after every Progress event.
	Completion struct {
		RunID uuid.UUID

		// The per-channel maxima accumulated before the run ended.
		Maxima []float64

		// The number of completed steps and the configured number of steps.
		Steps int
		Total int

		// Whether the run ended early due to Stop or context cancellation.
		Stopped bool

		// Any failure that ended the run or occurred while releasing the
		// source. Maxima are still valid up to the point of failure.
		Err error

		Started  time.Time
		Finished time.Time
	}
)

func (Progress) event() {}

func (Completion) event() {}

// Fraction returns the progress as a value between 0 and 1.
func (p Progress) Fraction() float64 {
	if p.Total <= 0 {
		return 0
	}
	return float64(p.Step) / float64(p.Total)
}

// Max returns the largest of the per-channel maxima, or zero if there are no
// channels.
func (c Completion) Max() float64 {
	var m float64
	for _, v := range c.Maxima {
		if v > m {
			m = v
		}
	}
	return m
}

// Duration returns the wall time taken by the run.
func (c Completion) Duration() time.Duration {
	return c.Finished.Sub(c.Started)
}
