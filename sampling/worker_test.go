// Copyright (c) jupacheco1407.
// Licensed under the MIT License.
package sampling_test

import (
	"context"
	stderr "errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jupacheco1407/datacollector/sampling"
	"github.com/jupacheco1407/datacollector/sampling/errors"
	"github.com/stretchr/testify/require"
)

type (
	// Polled single-channel source with hooks for every stage of a run.
	stubSource struct {
		channels int
		values   []float64

		openErr  error
		closeErr error
		onPoll   func(n int) error

		polls  atomic.Int32
		closes atomic.Int32
	}

	stubSession struct {
		src *stubSource
		acc *sampling.Accumulator
	}
)

func (s *stubSource) Channels() int {
	if s.channels == 0 {
		return 1
	}
	return s.channels
}

func (s *stubSource) Open(
	_ context.Context,
	acc *sampling.Accumulator,
) (sampling.Session, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	return &stubSession{s, acc}, nil
}

func (s *stubSession) Poll(context.Context) error {
	n := int(s.src.polls.Add(1))
	if s.src.onPoll != nil {
		if err := s.src.onPoll(n); err != nil {
			return err
		}
	}
	if n <= len(s.src.values) {
		s.acc.Observe(0, s.src.values[n-1])
	}
	return nil
}

func (s *stubSession) Close(context.Context) error {
	s.src.closes.Add(1)
	return s.src.closeErr
}

// Drain the worker's events, checking ordering guarantees along the way.
func collect(
	t *testing.T,
	w *sampling.Worker,
) ([]sampling.Progress, sampling.Completion) {
	t.Helper()

	var progress []sampling.Progress
	var completions []sampling.Completion
	timeout := time.After(5 * time.Second)

	for {
		select {
		case ev, ok := <-w.Events():
			if !ok {
				require.Len(t, completions, 1, "exactly one completion")
				return progress, completions[0]
			}
			switch ev := ev.(type) {
			case sampling.Progress:
				require.Empty(t, completions, "progress after completion")
				if n := len(progress); n > 0 {
					require.Greater(t, ev.Step, progress[n-1].Step)
				}
				require.LessOrEqual(t, ev.Step, ev.Total)
				progress = append(progress, ev)
			case sampling.Completion:
				completions = append(completions, ev)
			}
		case <-timeout:
			t.Fatal("timed out waiting for worker events")
		}
	}
}

func TestProgressThenCompletion(t *testing.T) {
	ctx := context.Background()
	src := &stubSource{values: []float64{3, 1, 4, 1, 5, 9, 2, 6}}

	w, err := sampling.NewWorker(src,
		sampling.WithIterations(len(src.values)),
		sampling.WithInterval(time.Microsecond),
	)
	require.NoError(t, err)
	require.NoError(t, w.Start(ctx))

	progress, done := collect(t, w)
	require.Len(t, progress, 8)
	for i, p := range progress {
		require.Equal(t, i+1, p.Step)
		require.Equal(t, 8, p.Total)
		require.Equal(t, w.ID(), p.RunID)
	}
	require.InDelta(t, 1.0, progress[7].Fraction(), 1e-9)

	require.Equal(t, w.ID(), done.RunID)
	require.Equal(t, []float64{9}, done.Maxima)
	require.Equal(t, 9.0, done.Max())
	require.Equal(t, 8, done.Steps)
	require.Equal(t, 8, done.Total)
	require.False(t, done.Stopped)
	require.NoError(t, done.Err)
	require.False(t, done.Finished.Before(done.Started))
	require.EqualValues(t, 1, src.closes.Load())

	res, err := w.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, done.Maxima, res.Maxima)
}

func TestStopBeforeFirstSample(t *testing.T) {
	ctx := context.Background()
	src := &stubSource{channels: 3, values: []float64{10}}

	w, err := sampling.NewWorker(src, sampling.WithIterations(4))
	require.NoError(t, err)

	w.Stop()
	require.NoError(t, w.Start(ctx))

	progress, done := collect(t, w)
	require.Empty(t, progress)
	require.Equal(t, []float64{0, 0, 0}, done.Maxima)
	require.Zero(t, done.Steps)
	require.True(t, done.Stopped)
	require.NoError(t, done.Err)
	require.Zero(t, src.polls.Load())
	require.EqualValues(t, 1, src.closes.Load())
}

func TestStopRightAfterStart(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})

	// The first poll reads nothing and is held until the test lets it go;
	// later polls would raise the maximum if the run kept going.
	src := &stubSource{channels: 2, values: []float64{0, 50, 60}}
	src.onPoll = func(n int) error {
		if n == 1 {
			<-release
		}
		return nil
	}

	w, err := sampling.NewWorker(src,
		sampling.WithIterations(3),
		sampling.WithInterval(time.Millisecond),
	)
	require.NoError(t, err)

	require.NoError(t, w.Start(ctx))
	w.Stop()
	close(release)

	progress, done := collect(t, w)
	require.Empty(t, progress)
	require.Equal(t, []float64{0, 0}, done.Maxima)
	require.Zero(t, done.Steps)
	require.True(t, done.Stopped)
	require.NoError(t, done.Err)
	require.LessOrEqual(t, src.polls.Load(), int32(1))
	require.EqualValues(t, 1, src.closes.Load())
}

func TestStopFinishesSampleInFlight(t *testing.T) {
	ctx := context.Background()
	blocked := make(chan struct{})
	release := make(chan struct{})

	src := &stubSource{values: []float64{1, 2, 3, 4, 5}}
	src.onPoll = func(n int) error {
		if n == 3 {
			close(blocked)
			<-release
		}
		return nil
	}

	w, err := sampling.NewWorker(src,
		sampling.WithIterations(5),
		sampling.WithInterval(time.Microsecond),
	)
	require.NoError(t, err)
	require.NoError(t, w.Start(ctx))

	<-blocked
	w.Stop()
	close(release)

	progress, done := collect(t, w)
	require.Len(t, progress, 2)
	require.True(t, done.Stopped)
	require.Equal(t, 2, done.Steps)
	// The third sample was already being taken when Stop arrived.
	require.Equal(t, []float64{3}, done.Maxima)
	require.EqualValues(t, 3, src.polls.Load())
}

func TestStopAtEveryStep(t *testing.T) {
	ctx := context.Background()
	values := []float64{2, 7, 1, 8, 2, 8}

	var prev float64
	for stopAt := 1; stopAt <= len(values); stopAt++ {
		var w *sampling.Worker
		src := &stubSource{values: values}
		src.onPoll = func(n int) error {
			if n == stopAt {
				w.Stop()
			}
			return nil
		}

		var err error
		w, err = sampling.NewWorker(src,
			sampling.WithIterations(len(values)),
			sampling.WithInterval(time.Millisecond),
		)
		require.NoError(t, err)
		require.NoError(t, w.Start(ctx))

		progress, done := collect(t, w)
		require.True(t, done.Stopped)
		require.Equal(t, stopAt-1, done.Steps)
		require.Len(t, progress, stopAt-1)

		var want float64
		for _, v := range values[:stopAt] {
			want = max(want, v)
		}
		require.Equal(t, want, done.Max())
		require.GreaterOrEqual(t, done.Max(), prev)
		prev = done.Max()
	}
}

func TestStopAfterCompletion(t *testing.T) {
	ctx := context.Background()
	src := &stubSource{values: []float64{1}}

	w, err := sampling.NewWorker(src,
		sampling.WithIterations(1),
		sampling.WithInterval(time.Microsecond),
	)
	require.NoError(t, err)
	require.NoError(t, w.Start(ctx))

	_, done := collect(t, w)
	require.False(t, done.Stopped)

	w.Stop()
	w.Stop()

	res, err := w.Wait(ctx)
	require.NoError(t, err)
	require.False(t, res.Stopped)
}

func TestStartTwice(t *testing.T) {
	ctx := context.Background()

	w, err := sampling.NewWorker(&stubSource{},
		sampling.WithIterations(1),
		sampling.WithInterval(time.Microsecond),
	)
	require.NoError(t, err)
	require.NoError(t, w.Start(ctx))

	err = w.Start(ctx)
	require.True(t, errors.IsKind(err, errors.StateInvalid))

	collect(t, w)
}

func TestOpenFailure(t *testing.T) {
	ctx := context.Background()
	cause := stderr.New("no base attached")
	src := &stubSource{openErr: cause}

	w, err := sampling.NewWorker(src)
	require.NoError(t, err)

	err = w.Start(ctx)
	require.True(t, errors.IsKind(err, errors.SourceUnavailable))
	require.ErrorIs(t, err, cause)

	_, ok := <-w.Events()
	require.False(t, ok, "no events after a failed start")
	require.Zero(t, src.polls.Load())
	require.Zero(t, src.closes.Load())

	_, err = w.Wait(ctx)
	require.ErrorIs(t, err, cause)
}

func TestPollFailureKeepsPartialResult(t *testing.T) {
	ctx := context.Background()
	cause := stderr.New("device disconnected")

	src := &stubSource{values: []float64{4, 6, 5}}
	src.onPoll = func(n int) error {
		if n == 3 {
			return cause
		}
		return nil
	}

	w, err := sampling.NewWorker(src,
		sampling.WithIterations(3),
		sampling.WithInterval(time.Microsecond),
	)
	require.NoError(t, err)
	require.NoError(t, w.Start(ctx))

	progress, done := collect(t, w)
	require.Len(t, progress, 2)
	require.False(t, done.Stopped)
	require.True(t, errors.IsKind(done.Err, errors.SourceFailed))
	require.ErrorIs(t, done.Err, cause)
	require.Equal(t, []float64{6}, done.Maxima)
	require.EqualValues(t, 1, src.closes.Load())
}

func TestPollPanic(t *testing.T) {
	ctx := context.Background()

	src := &stubSource{values: []float64{1}}
	src.onPoll = func(n int) error {
		if n == 2 {
			panic("driver crashed")
		}
		return nil
	}

	w, err := sampling.NewWorker(src,
		sampling.WithIterations(3),
		sampling.WithInterval(time.Microsecond),
	)
	require.NoError(t, err)
	require.NoError(t, w.Start(ctx))

	_, done := collect(t, w)
	require.True(t, errors.IsKind(done.Err, errors.ExecutionException))
	require.EqualError(t, done.Err, "driver crashed")
	require.Equal(t, []float64{1}, done.Maxima)
	require.EqualValues(t, 1, src.closes.Load())
}

func TestCloseFailureReported(t *testing.T) {
	ctx := context.Background()
	cause := stderr.New("stop command rejected")
	src := &stubSource{values: []float64{1, 2}, closeErr: cause}

	w, err := sampling.NewWorker(src,
		sampling.WithIterations(2),
		sampling.WithInterval(time.Microsecond),
	)
	require.NoError(t, err)
	require.NoError(t, w.Start(ctx))

	_, done := collect(t, w)
	require.ErrorIs(t, done.Err, cause)
	require.Equal(t, []float64{2}, done.Maxima)
}

func TestContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &stubSource{values: []float64{5, 5, 5}}
	src.onPoll = func(n int) error {
		if n == 1 {
			cancel()
		}
		return nil
	}

	w, err := sampling.NewWorker(src,
		sampling.WithIterations(3),
		sampling.WithInterval(time.Hour),
	)
	require.NoError(t, err)
	require.NoError(t, w.Start(ctx))

	_, done := collect(t, w)
	require.True(t, done.Stopped)
	require.True(t, errors.IsKind(done.Err, errors.Cancellation))
	require.Equal(t, []float64{5}, done.Maxima)
	require.EqualValues(t, 1, src.closes.Load())
}

func TestStopInterruptsLongInterval(t *testing.T) {
	ctx := context.Background()

	w, err := sampling.NewWorker(&stubSource{values: []float64{1}},
		sampling.WithIterations(5),
		sampling.WithInterval(time.Hour),
	)
	require.NoError(t, err)
	require.NoError(t, w.Start(ctx))

	w.Stop()

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	done, err := w.Wait(waitCtx)
	require.NoError(t, err)
	require.True(t, done.Stopped)
	require.Zero(t, done.Steps)
}

func TestWaitContext(t *testing.T) {
	w, err := sampling.NewWorker(&stubSource{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = w.Wait(ctx)
	require.True(t, errors.IsKind(err, errors.Cancellation))
}

func TestNewWorkerValidation(t *testing.T) {
	_, err := sampling.NewWorker(nil)
	require.True(t, errors.IsKind(err, errors.ArgumentInvalid))

	_, err = sampling.NewWorker(&stubSource{}, sampling.WithIterations(-1))
	require.True(t, errors.IsKind(err, errors.ArgumentInvalid))

	_, err = sampling.NewWorker(&stubSource{}, sampling.WithInterval(-1))
	require.True(t, errors.IsKind(err, errors.ArgumentInvalid))

	_, err = sampling.NewWorker(&stubSource{channels: -1})
	require.True(t, errors.IsKind(err, errors.ConfigurationInvalid))
}

func TestLargeIterationCount(t *testing.T) {
	w, err := sampling.NewWorker(&stubSource{},
		sampling.WithIterations(math.MaxInt),
	)
	require.NoError(t, err)
	require.Equal(t, math.MaxInt, w.Iterations())
}

func TestSlowHostSkipsProgress(t *testing.T) {
	ctx := context.Background()
	const iterations = 3 * sampling.ProgressBuffer
	src := &stubSource{values: []float64{1, 8, 2}}

	w, err := sampling.NewWorker(src,
		sampling.WithIterations(iterations),
		sampling.WithInterval(time.Microsecond),
	)
	require.NoError(t, err)
	require.NoError(t, w.Start(ctx))

	// Read nothing until the run is over.
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	res, err := w.Wait(waitCtx)
	require.NoError(t, err)
	require.Equal(t, iterations, res.Steps)

	progress, done := collect(t, w)
	require.Len(t, progress, sampling.ProgressBuffer)
	require.Equal(t, sampling.ProgressBuffer, progress[len(progress)-1].Step)
	require.Equal(t, iterations, done.Steps)
	require.Equal(t, []float64{8}, done.Maxima)
	require.EqualValues(t, iterations, src.polls.Load())
}

func TestDefaultCadence(t *testing.T) {
	w, err := sampling.NewWorker(&stubSource{})
	require.NoError(t, err)
	require.Equal(t, sampling.DefaultIterations, w.Iterations())

	w, err = sampling.NewWorker(&stubSource{}, sampling.WithIterations(12))
	require.NoError(t, err)
	require.Equal(t, 12, w.Iterations())
}
