// Copyright (c) jupacheco1407.
// Licensed under the MIT License.
package sampling

import (
	"context"
	stderr "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jupacheco1407/datacollector/internal/log"
	"github.com/jupacheco1407/datacollector/internal/wallclock"
	"github.com/jupacheco1407/datacollector/sampling/errors"
)

// Worker is a one-shot background task that samples a Source for a fixed
// number of steps and reports the per-channel maxima.
type Worker struct {
	id     uuid.UUID
	source Source
	acc    *Accumulator

	iterations int
	interval   time.Duration

	// Cleared by Stop; checked by the loop at every step boundary. Starts
	// out set so that a Stop issued before Start yields an empty run.
	running atomic.Bool

	// Ensures Start is only honored once.
	started atomic.Bool

	// Closed by Stop to cut the current step's sleep short.
	wake chan struct{}
	stop func()

	events chan Event
	done   chan struct{}

	// Written before done is closed.
	result   Completion
	startErr error

	log logger
}

const samplingErrStr = "sampling"

// ProgressBuffer is the number of Progress events held for a host that has
// not read them yet. Further Progress events are skipped until the host
// catches up; the Completion always has room.
const ProgressBuffer = 64

// NewWorker creates a worker for the given source. The worker takes no
// samples until Start is called.
func NewWorker(source Source, opt ...WorkerOption) (*Worker, error) {
	if source == nil {
		return nil, &errors.Error{
			Message:      "source must not be nil",
			Kind:         errors.ArgumentInvalid,
			PropertyName: "source",
		}
	}

	var options WorkerOptions
	options.Apply(opt)

	iterations, interval := DefaultIterations, DefaultInterval
	if d, ok := source.(Defaulter); ok {
		iterations, interval = d.Defaults()
	}

	if options.Iterations < 0 {
		return nil, &errors.Error{
			Message:       "iterations must not be negative",
			Kind:          errors.ArgumentInvalid,
			PropertyName:  "Iterations",
			PropertyValue: options.Iterations,
		}
	}
	if options.Iterations > 0 {
		iterations = options.Iterations
	}

	if options.Interval < 0 {
		return nil, &errors.Error{
			Message:       "interval must not be negative",
			Kind:          errors.ArgumentInvalid,
			PropertyName:  "Interval",
			PropertyValue: options.Interval,
		}
	}
	if options.Interval > 0 {
		interval = options.Interval
	}

	if iterations <= 0 {
		return nil, &errors.Error{
			Message:       "source suggested a non-positive iteration count",
			Kind:          errors.ConfigurationInvalid,
			PropertyName:  "Iterations",
			PropertyValue: iterations,
		}
	}

	channels := source.Channels()
	if channels <= 0 {
		return nil, &errors.Error{
			Message:       "source must produce at least one channel",
			Kind:          errors.ConfigurationInvalid,
			PropertyName:  "Channels",
			PropertyValue: channels,
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, &errors.Error{
			Message:     "cannot generate run ID",
			Kind:        errors.ExecutionException,
			NestedError: err,
		}
	}

	w := &Worker{
		id:         id,
		source:     source,
		acc:        NewAccumulator(channels),
		iterations: iterations,
		interval:   interval,
		wake:       make(chan struct{}),
		// The loop never blocks on a slow host; one slot is kept for the
		// completion.
		events: make(chan Event, min(iterations, ProgressBuffer)+1),
		done:   make(chan struct{}),
		log:    logger{log.Wrap(options.Logger)},
	}
	w.running.Store(true)
	w.stop = sync.OnceFunc(func() { close(w.wake) })
	return w, nil
}

// ID returns the identifier of this run.
func (w *Worker) ID() uuid.UUID {
	return w.id
}

// Iterations returns the configured number of steps.
func (w *Worker) Iterations() int {
	return w.iterations
}

// Events returns the channel on which progress and completion events are
// delivered. It is closed after the completion event, or immediately if Start
// fails. At most ProgressBuffer unread Progress events are held; later ones
// are skipped while the host is behind, so the steps received are increasing
// but not necessarily consecutive. The completion is never skipped.
func (w *Worker) Events() <-chan Event {
	return w.events
}

// Done is closed once the run has finished and its completion is available.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Start opens the source and begins sampling in the background. If the source
// cannot be opened, the error is returned and no sampling takes place. Start
// may only be called once.
func (w *Worker) Start(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return &errors.Error{
			Message: "worker has already been started",
			Kind:    errors.StateInvalid,
		}
	}

	session, err := w.open(ctx)
	if err != nil {
		w.log.Err(ctx, err)
		w.startErr = err
		close(w.events)
		close(w.done)
		return err
	}

	w.log.start(ctx, w)
	go w.run(ctx, session)
	return nil
}

// Stop requests that the worker end the run. The request is cooperative: it
// takes effect at the next step boundary, and the worker still emits a
// completion carrying the maxima accumulated so far. Stop is safe to call at
// any time and more than once.
func (w *Worker) Stop() {
	w.running.Store(false)
	w.stop()
}

// Wait blocks until the run completes and returns its completion. It returns
// the Start error if the source could not be opened.
func (w *Worker) Wait(ctx context.Context) (Completion, error) {
	select {
	case <-w.done:
		if w.startErr != nil {
			return Completion{}, w.startErr
		}
		return w.result, nil
	case <-ctx.Done():
		return Completion{}, errors.Context(ctx, samplingErrStr)
	}
}

func (w *Worker) open(ctx context.Context) (s Session, err error) {
	defer func() {
		if ePanic := recover(); ePanic != nil {
			err = &errors.Error{
				Message: fmt.Sprint(ePanic),
				Kind:    errors.ExecutionException,
			}
		}
	}()

	if err := errors.Context(ctx, samplingErrStr); err != nil {
		return nil, err
	}

	s, err = w.source.Open(ctx, w.acc)
	switch {
	case err != nil:
		return nil, structured(err, errors.SourceUnavailable,
			"cannot open sampling source")
	case s == nil:
		return nil, &errors.Error{
			Message: "sampling source returned no session",
			Kind:    errors.SourceUnavailable,
		}
	}
	return s, nil
}

func (w *Worker) run(ctx context.Context, session Session) {
	c := Completion{
		RunID:   w.id,
		Total:   w.iterations,
		Started: wallclock.Instance.Now(),
	}

	// Deferred so the source is released and the completion delivered even
	// if the loop itself fails unexpectedly.
	defer w.finish(ctx, &c)
	defer w.close(ctx, session, &c)

	c.Steps, c.Stopped, c.Err = w.loop(ctx, session)
}

func (w *Worker) loop(
	ctx context.Context,
	session Session,
) (steps int, stopped bool, err error) {
	for step := 1; step <= w.iterations; step++ {
		if !w.running.Load() {
			return steps, true, nil
		}
		if err := errors.Context(ctx, samplingErrStr); err != nil {
			return steps, true, err
		}

		if err := w.poll(ctx, session); err != nil {
			return steps, false, err
		}

		if !wallclock.Sleep(ctx, w.interval, w.wake) {
			// The sample taken in this step still counts toward the maxima,
			// but the step itself did not complete.
			return steps, true, errors.Context(ctx, samplingErrStr)
		}

		steps = step
		p := Progress{RunID: w.id, Step: step, Total: w.iterations}
		w.log.progress(ctx, p)
		w.emit(ctx, p)
	}
	return steps, false, nil
}

// Queue a progress event unless doing so would take the slot reserved for
// the completion. The loop is the only sender, so the length can only shrink
// between the check and the send.
func (w *Worker) emit(ctx context.Context, p Progress) {
	if len(w.events) >= cap(w.events)-1 {
		w.log.skipped(ctx, p)
		return
	}
	w.events <- p
}

// Poll the session with panic catch.
func (w *Worker) poll(ctx context.Context, session Session) (err error) {
	defer func() {
		if ePanic := recover(); ePanic != nil {
			err = &errors.Error{
				Message: fmt.Sprint(ePanic),
				Kind:    errors.ExecutionException,
			}
		}
	}()

	if err := session.Poll(ctx); err != nil {
		return structured(err, errors.SourceFailed, "sampling source failed")
	}
	return nil
}

// Close the session with panic catch. The session is released with a context
// that outlives cancellation of the run, since cancellation is one of the
// paths that ends up here.
func (w *Worker) close(ctx context.Context, session Session, c *Completion) {
	defer func() {
		if ePanic := recover(); ePanic != nil && c.Err == nil {
			c.Err = &errors.Error{
				Message: fmt.Sprint(ePanic),
				Kind:    errors.ExecutionException,
			}
		}
	}()

	if err := session.Close(context.WithoutCancel(ctx)); err != nil {
		err = structured(err, errors.SourceFailed,
			"cannot release sampling source")
		w.log.Warn(ctx, "source release failed", err)
		if c.Err == nil {
			c.Err = err
		}
	}
}

func (w *Worker) finish(ctx context.Context, c *Completion) {
	c.Maxima = w.acc.Maxima()
	c.Finished = wallclock.Instance.Now()
	w.log.complete(ctx, c)

	w.result = *c
	w.events <- *c
	close(w.events)
	close(w.done)
}

// Wrap a foreign error as a structured error of the given kind, keeping
// structured errors as-is.
func structured(err error, kind errors.Kind, msg string) error {
	var e *errors.Error
	if stderr.As(err, &e) {
		return err
	}
	return &errors.Error{Message: msg, Kind: kind, NestedError: err}
}
