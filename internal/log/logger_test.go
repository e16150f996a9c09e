// Copyright (c) jupacheco1407.
// Licensed under the MIT License.
package log_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/jupacheco1407/datacollector/internal/log"
	"github.com/stretchr/testify/require"
)

type attrErr struct{}

func (attrErr) Error() string { return "attr error" }

func (attrErr) Attrs() []slog.Attr {
	return []slog.Attr{slog.String("property_name", "channels")}
}

func TestNilLogger(t *testing.T) {
	l := log.Wrap(nil)
	require.False(t, l.Enabled(context.Background(), slog.LevelError))

	// Must not panic.
	l.Err(context.Background(), errors.New("ignored"))
}

func TestErrAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := log.Wrap(slog.New(slog.NewTextHandler(&buf, nil)))

	l.Err(context.Background(), attrErr{})
	require.Contains(t, buf.String(), "msg=\"attr error\"")
	require.Contains(t, buf.String(), "property_name=channels")

	buf.Reset()
	l.Warn(context.Background(), "cleanup failed", errors.New("boom"))
	require.Contains(t, buf.String(), "level=WARN")
	require.Contains(t, buf.String(), "error=boom")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := log.Wrap(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	l.Log(context.Background(), slog.LevelInfo, "dropped")
	require.Empty(t, buf.String())
}
