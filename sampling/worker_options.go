// Copyright (c) jupacheco1407.
// Licensed under the MIT License.
package sampling

import (
	"log/slog"
	"time"

	"github.com/jupacheco1407/datacollector/internal"
)

type (
	// WorkerOption represents a single worker option.
	WorkerOption interface{ worker(*WorkerOptions) }

	// WorkerOptions are the resolved worker options. Zero values select the
	// source's defaults.
	WorkerOptions struct {
		Iterations int
		Interval   time.Duration
		Logger     *slog.Logger
	}

	// WithIterations sets the number of sampling steps.
	WithIterations int

	// WithInterval sets the time spent in each sampling step.
	WithInterval time.Duration

	// This option is not used directly; see WithLogger below.
	withLogger struct{ *slog.Logger }
)

// WithLogger enables logging with the provided slog logger.
func WithLogger(logger *slog.Logger) WorkerOption {
	return withLogger{logger}
}

// Apply resolves the provided list of options.
func (o *WorkerOptions) Apply(
	opts []WorkerOption,
	rest ...WorkerOption,
) {
	for opt := range internal.Apply[WorkerOption](opts, rest...) {
		opt.worker(o)
	}
}

func (o *WorkerOptions) worker(opt *WorkerOptions) {
	if o != nil {
		*opt = *o
	}
}

func (o WithIterations) worker(opt *WorkerOptions) {
	opt.Iterations = int(o)
}

func (o WithInterval) worker(opt *WorkerOptions) {
	opt.Interval = time.Duration(o)
}

func (o withLogger) worker(opt *WorkerOptions) {
	opt.Logger = o.Logger
}
