// Copyright (c) jupacheco1407.
// Licensed under the MIT License.
package sampling

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/jupacheco1407/datacollector/internal"
	"github.com/jupacheco1407/datacollector/internal/wallclock"
)

type (
	// SyntheticSource generates uniformly distributed random values on a
	// single channel. It stands in for a sensor when none is attached.
	SyntheticSource struct {
		mu        sync.Mutex
		rng       *rand.Rand
		amplitude float64
	}

	// SyntheticSourceOption represents a single synthetic source option.
	SyntheticSourceOption interface {
		synthetic(*SyntheticSourceOptions)
	}

	// SyntheticSourceOptions are the resolved synthetic source options.
	SyntheticSourceOptions struct {
		Seed      *int64
		Amplitude float64
	}

	// WithSeed fixes the random sequence so runs are reproducible.
	WithSeed int64

	// WithAmplitude sets the exclusive upper bound of generated values.
	WithAmplitude float64

	syntheticSession struct {
		src *SyntheticSource
		acc *Accumulator
	}
)

// Cadence and range of the synthetic source.
const (
	DefaultSyntheticIterations = 100
	DefaultSyntheticInterval   = 50 * time.Millisecond
	DefaultSyntheticAmplitude  = 100.0
)

// NewSyntheticSource creates a new synthetic source.
func NewSyntheticSource(opt ...SyntheticSourceOption) *SyntheticSource {
	var options SyntheticSourceOptions
	options.Apply(opt)

	seed := wallclock.Instance.Now().UnixNano()
	if options.Seed != nil {
		seed = *options.Seed
	}

	amplitude := options.Amplitude
	if amplitude <= 0 {
		amplitude = DefaultSyntheticAmplitude
	}

	return &SyntheticSource{
		// #nosec G404
		rng:       rand.New(rand.NewSource(seed)),
		amplitude: amplitude,
	}
}

// Channels returns 1; the synthetic source produces a single scalar.
func (*SyntheticSource) Channels() int {
	return 1
}

// Defaults returns 100 iterations of 50ms.
func (*SyntheticSource) Defaults() (int, time.Duration) {
	return DefaultSyntheticIterations, DefaultSyntheticInterval
}

// Open returns a session that draws one value per poll.
func (s *SyntheticSource) Open(
	_ context.Context,
	acc *Accumulator,
) (Session, error) {
	return &syntheticSession{s, acc}, nil
}

func (s *SyntheticSource) next() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64() * s.amplitude
}

func (s *syntheticSession) Poll(context.Context) error {
	s.acc.Observe(0, s.src.next())
	return nil
}

func (*syntheticSession) Close(context.Context) error {
	return nil
}

// Apply resolves the provided list of options.
func (o *SyntheticSourceOptions) Apply(
	opts []SyntheticSourceOption,
	rest ...SyntheticSourceOption,
) {
	for opt := range internal.Apply[SyntheticSourceOption](opts, rest...) {
		opt.synthetic(o)
	}
}

func (o *SyntheticSourceOptions) synthetic(opt *SyntheticSourceOptions) {
	if o != nil {
		*opt = *o
	}
}

func (o WithSeed) synthetic(opt *SyntheticSourceOptions) {
	seed := int64(o)
	opt.Seed = &seed
}

func (o WithAmplitude) synthetic(opt *SyntheticSourceOptions) {
	opt.Amplitude = float64(o)
}
