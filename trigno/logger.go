// Copyright (c) jupacheco1407.
// Licensed under the MIT License.
package trigno

import (
	"context"
	"log/slog"

	"github.com/jupacheco1407/datacollector/internal/log"
)

type logger struct{ log.Logger }

func (l *logger) connected(ctx context.Context, channels int) {
	l.Log(ctx, slog.LevelInfo, "sensor base connected",
		slog.Int("channels", channels),
	)
}

func (l *logger) lost(ctx context.Context, err error) {
	l.Log(ctx, slog.LevelError, "sensor base connection lost",
		slog.String("error", err.Error()),
	)
}

func (l *logger) command(ctx context.Context, cmd Command) {
	l.Log(ctx, slog.LevelInfo, "sensor base command",
		slog.String("command", string(cmd)),
	)
}

func (l *logger) intercept(ctx context.Context, active bool) {
	msg := "frame handler restored"
	if active {
		msg = "frame handler intercepted"
	}
	l.Log(ctx, slog.LevelDebug, msg)
}

func (l *logger) dropped(ctx context.Context, f *Frame) {
	l.Log(ctx, slog.LevelDebug, "frame dropped with no handler",
		slog.Uint64("seq", f.Sequence),
	)
}

func (l *logger) session(ctx context.Context, open bool, began bool) {
	msg := "sensor session closed"
	if open {
		msg = "sensor session opened"
	}
	l.Log(ctx, slog.LevelDebug, msg,
		slog.Bool("owns_collection", began),
	)
}
