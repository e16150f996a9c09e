// Copyright (c) jupacheco1407.
// Licensed under the MIT License.
package trigno

import (
	"context"
	"sync"

	"github.com/jupacheco1407/datacollector/internal/log"
)

type (
	// FrameHandler processes a frame pushed by the sensor base. Handlers run
	// on the transport's goroutine and must not call back into the Base's
	// handler methods.
	FrameHandler func(ctx context.Context, f *Frame)

	// Command is a control command understood by the sensor base.
	Command string

	// Transport carries frames from and commands to a sensor base.
	Transport interface {
		// Open establishes the connection. Frames received afterwards are
		// passed to deliver; lost is called at most once if the connection
		// drops after Open has returned.
		Open(ctx context.Context, deliver FrameHandler, lost func(error)) error

		// Command sends a control command and waits for it to be accepted.
		Command(ctx context.Context, cmd Command) error

		// Close tears down the connection.
		Close() error
	}

	// Base is a connected sensor base. It owns a single frame handler slot
	// that a sampling run may temporarily intercept.
	Base struct {
		transport Transport
		channels  int
		log       logger

		stateMu    sync.RWMutex
		state      BaseState
		connecting bool
		err        error

		// Held for reading while a handler runs, so that once a restore
		// returns no frame reaches the intercepting handler.
		handlerMu   sync.RWMutex
		handler     FrameHandler
		override    FrameHandler
		intercepted bool

		collectMu  sync.Mutex
		collecting bool
	}
)

const (
	// CommandStart asks the base to begin streaming frames.
	CommandStart Command = "START"

	// CommandStop asks the base to stop streaming frames.
	CommandStop Command = "STOP"
)

// NewBase creates a sensor base on the given transport. The base must be
// connected before collection can begin.
func NewBase(transport Transport, opt ...BaseOption) (*Base, error) {
	if transport == nil {
		return nil, &InvalidArgumentError{message: "transport must not be nil"}
	}

	var options BaseOptions
	options.Apply(opt)

	channels := options.Channels
	if channels == 0 {
		channels = DefaultChannels
	}
	if channels < 0 {
		return nil, &InvalidArgumentError{
			message: "channel count must be positive",
		}
	}

	return &Base{
		transport: transport,
		channels:  channels,
		log:       logger{log.Wrap(options.Logger)},
	}, nil
}

// Channels returns the number of sensor channels streamed by the base.
func (b *Base) Channels() int {
	return b.channels
}

// Connect opens the transport. A base can only be connected once.
func (b *Base) Connect(ctx context.Context) error {
	b.stateMu.Lock()
	if b.state != NotConnected || b.connecting {
		defer b.stateMu.Unlock()
		return &StateError{State: b.state}
	}
	b.connecting = true
	b.stateMu.Unlock()

	err := b.transport.Open(ctx, b.Deliver, b.lost)

	b.stateMu.Lock()
	defer b.stateMu.Unlock()

	b.connecting = false
	if err != nil {
		return err
	}
	if b.state == Closed {
		// Closed or lost while the transport was opening.
		_ = b.transport.Close()
		if b.err != nil {
			return b.err
		}
		return &StateError{State: Closed}
	}

	b.state = Connected
	b.log.connected(ctx, b.channels)
	return nil
}

// Connected reports whether the base is currently usable.
func (b *Base) Connected() bool {
	return b.Err() == nil
}

// State returns the connection state of the base.
func (b *Base) State() BaseState {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.state
}

// Err returns nil while the base is connected. Otherwise it returns the
// reason the base cannot be used, which is the transport error if the
// connection was lost.
func (b *Base) Err() error {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()

	switch {
	case b.err != nil:
		return b.err
	case b.state != Connected:
		return &StateError{State: b.state}
	default:
		return nil
	}
}

func (b *Base) lost(err error) {
	ctx := context.Background()

	b.stateMu.Lock()
	if b.state != Connected && !b.connecting {
		b.stateMu.Unlock()
		return
	}
	b.state = Closed
	b.err = &ConnectionError{
		message: "connection to sensor base lost",
		wrapped: err,
	}
	b.stateMu.Unlock()

	b.log.lost(ctx, err)
}

// SetHandler installs the application's frame handler. If the slot is
// currently intercepted, the handler takes effect once the interception is
// restored.
func (b *Base) SetHandler(h FrameHandler) {
	b.handlerMu.Lock()
	defer b.handlerMu.Unlock()
	b.handler = h
}

// Intercept routes frames to h instead of the installed handler until the
// returned restore function is called. Only one interception may be active
// at a time. Restore is idempotent.
func (b *Base) Intercept(h FrameHandler) (restore func(), err error) {
	if h == nil {
		return nil, &InvalidArgumentError{message: "handler must not be nil"}
	}

	state := b.State()

	b.handlerMu.Lock()
	defer b.handlerMu.Unlock()

	if b.intercepted {
		return nil, &StateError{
			State:   state,
			message: "the frame handler is already intercepted",
		}
	}
	b.intercepted = true
	b.override = h
	b.log.intercept(context.Background(), true)

	return sync.OnceFunc(func() {
		b.handlerMu.Lock()
		defer b.handlerMu.Unlock()
		b.intercepted = false
		b.override = nil
		b.log.intercept(context.Background(), false)
	}), nil
}

// Intercepted reports whether a handler interception is active.
func (b *Base) Intercepted() bool {
	b.handlerMu.RLock()
	defer b.handlerMu.RUnlock()
	return b.intercepted
}

// Deliver dispatches a frame to the current handler. Frames arriving with no
// handler installed are dropped.
func (b *Base) Deliver(ctx context.Context, f *Frame) {
	b.handlerMu.RLock()
	defer b.handlerMu.RUnlock()

	h := b.handler
	if b.intercepted {
		h = b.override
	}
	if h == nil {
		b.log.dropped(ctx, f)
		return
	}
	h(ctx, f)
}

// BeginCollection asks the base to start streaming frames. It is a no-op if
// collection is already running.
func (b *Base) BeginCollection(ctx context.Context) error {
	return b.collect(ctx, true, CommandStart)
}

// EndCollection asks the base to stop streaming frames. It is a no-op if
// collection is not running.
func (b *Base) EndCollection(ctx context.Context) error {
	return b.collect(ctx, false, CommandStop)
}

// Collecting reports whether the base is streaming frames.
func (b *Base) Collecting() bool {
	b.collectMu.Lock()
	defer b.collectMu.Unlock()
	return b.collecting && b.Connected()
}

func (b *Base) collect(ctx context.Context, want bool, cmd Command) error {
	b.collectMu.Lock()
	defer b.collectMu.Unlock()

	if err := b.Err(); err != nil {
		// A base that is gone has stopped streaming.
		b.collecting = false
		if !want {
			return nil
		}
		return err
	}
	if b.collecting == want {
		return nil
	}

	b.log.command(ctx, cmd)
	if err := b.transport.Command(ctx, cmd); err != nil {
		return &CommandError{Command: cmd, wrapped: err}
	}
	b.collecting = want
	return nil
}

// Close tears down the transport. Closing an already closed base is a no-op.
func (b *Base) Close() error {
	b.stateMu.Lock()
	prev := b.state
	b.state = Closed
	b.stateMu.Unlock()

	if prev != Connected {
		return nil
	}
	return b.transport.Close()
}
