// Copyright (c) jupacheco1407.
// Licensed under the MIT License.
package trigno_test

import (
	"context"
	"sync"
	"testing"

	"github.com/jupacheco1407/datacollector/trigno"
	"github.com/stretchr/testify/require"
)

// In-memory transport that records commands and lets the test push frames.
type stubTransport struct {
	mu       sync.Mutex
	deliver  trigno.FrameHandler
	lost     func(error)
	commands []trigno.Command
	closes   int

	openErr    error
	commandErr map[trigno.Command]error
	onCommand  func(trigno.Command)
}

func (t *stubTransport) Open(
	_ context.Context,
	deliver trigno.FrameHandler,
	lost func(error),
) error {
	if t.openErr != nil {
		return t.openErr
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deliver, t.lost = deliver, lost
	return nil
}

func (t *stubTransport) Command(_ context.Context, cmd trigno.Command) error {
	t.mu.Lock()
	t.commands = append(t.commands, cmd)
	hook := t.onCommand
	err := t.commandErr[cmd]
	t.mu.Unlock()

	if hook != nil {
		hook(cmd)
	}
	return err
}

func (t *stubTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closes++
	return nil
}

func (t *stubTransport) push(channels ...[]float64) {
	t.mu.Lock()
	deliver := t.deliver
	t.mu.Unlock()
	deliver(context.Background(), &trigno.Frame{Channels: channels})
}

func (t *stubTransport) drop(err error) {
	t.mu.Lock()
	lost := t.lost
	t.mu.Unlock()
	lost(err)
}

func (t *stubTransport) sent() []trigno.Command {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]trigno.Command(nil), t.commands...)
}

// Application handler that records the frames it sees.
type appHandler struct {
	mu     sync.Mutex
	frames int
}

func (h *appHandler) handle(context.Context, *trigno.Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames++
}

func (h *appHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.frames
}

func connectedBase(
	t *testing.T,
	tr *stubTransport,
	opt ...trigno.BaseOption,
) *trigno.Base {
	base, err := trigno.NewBase(tr, opt...)
	require.NoError(t, err)
	require.NoError(t, base.Connect(context.Background()))
	t.Cleanup(func() { _ = base.Close() })
	return base
}
