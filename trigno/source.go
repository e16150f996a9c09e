// Copyright (c) jupacheco1407.
// Licensed under the MIT License.
package trigno

import (
	"context"
	"time"

	"github.com/jupacheco1407/datacollector/internal/log"
	"github.com/jupacheco1407/datacollector/sampling"
	"github.com/jupacheco1407/datacollector/sampling/errors"
)

type (
	// Source samples a connected sensor base. While a run is open, frames
	// from the base are routed to the run's accumulator instead of the
	// base's installed handler.
	Source struct {
		base    *Base
		timeout time.Duration
		log     logger
	}

	session struct {
		*Source
		restore func()
		began   bool
	}
)

const (
	// DefaultSensorIterations is the number of steps in a sensor-backed run.
	DefaultSensorIterations = 5

	// DefaultSensorInterval is the length of each step in a sensor-backed
	// run.
	DefaultSensorInterval = time.Second
)

// NewSource creates a sampling source backed by the given base.
func NewSource(base *Base, opt ...SourceOption) (*Source, error) {
	if base == nil {
		return nil, &InvalidArgumentError{message: "base must not be nil"}
	}

	var options SourceOptions
	options.Apply(opt)

	if options.CommandTimeout < 0 {
		return nil, &InvalidArgumentError{
			message: "command timeout must not be negative",
		}
	}
	timeout := options.CommandTimeout
	if timeout == 0 {
		timeout = DefaultCommandTimeout
	}

	return &Source{
		base:    base,
		timeout: timeout,
		log:     logger{log.Wrap(options.Logger)},
	}, nil
}

// Channels returns the number of channels streamed by the base.
func (s *Source) Channels() int {
	return s.base.Channels()
}

// Defaults suggests the cadence of a sensor-backed run.
func (*Source) Defaults() (int, time.Duration) {
	return DefaultSensorIterations, DefaultSensorInterval
}

// Open intercepts the base's frame handler and begins collection. If the base
// is not connected, or collection cannot begin, Open fails and the base's
// handler is left as it was.
func (s *Source) Open(
	ctx context.Context,
	acc *sampling.Accumulator,
) (sampling.Session, error) {
	if err := s.base.Err(); err != nil {
		return nil, &errors.Error{
			Message:     "sensor base is not available",
			Kind:        errors.SourceUnavailable,
			NestedError: err,
		}
	}

	restore, err := s.base.Intercept(func(_ context.Context, f *Frame) {
		acc.ObserveFrame(f.Channels)
	})
	if err != nil {
		return nil, &errors.Error{
			Message:     "sensor base is in use by another run",
			Kind:        errors.SourceUnavailable,
			NestedError: err,
		}
	}

	ss := &session{Source: s, restore: restore}

	// A base that is already streaming for the application is left
	// streaming afterwards.
	if !s.base.Collecting() {
		cctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		if err := s.base.BeginCollection(cctx); err != nil {
			restore()
			return nil, &errors.Error{
				Message:     "cannot begin collection",
				Kind:        errors.SourceUnavailable,
				NestedError: err,
			}
		}
		ss.began = true
	}

	s.log.session(ctx, true, ss.began)
	return ss, nil
}

// Poll checks that the base is still connected. Frames are observed as they
// arrive, so there is nothing to read here.
func (s *session) Poll(context.Context) error {
	if err := s.base.Err(); err != nil {
		return &errors.Error{
			Message:     "sensor base disconnected",
			Kind:        errors.SourceFailed,
			NestedError: err,
		}
	}
	return nil
}

// Close ends collection if this session began it, then restores the base's
// handler. The handler is restored even if collection cannot be ended.
func (s *session) Close(ctx context.Context) error {
	defer s.log.session(ctx, false, s.began)
	defer s.restore()

	if !s.began {
		return nil
	}

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.base.EndCollection(cctx); err != nil {
		return &errors.Error{
			Message:     "cannot end collection",
			Kind:        errors.SourceFailed,
			NestedError: err,
		}
	}
	return nil
}
