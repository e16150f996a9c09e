// Copyright (c) jupacheco1407.
// Licensed under the MIT License.
package sampling

import (
	"context"
	"log/slog"

	"github.com/jupacheco1407/datacollector/internal/log"
)

type logger struct{ log.Logger }

func (l *logger) start(ctx context.Context, w *Worker) {
	l.Log(ctx, slog.LevelInfo, "sampling started",
		slog.String("run_id", w.id.String()),
		slog.Int("channels", w.acc.Channels()),
		slog.Int("iterations", w.iterations),
		slog.Duration("interval", w.interval),
	)
}

func (l *logger) progress(ctx context.Context, p Progress) {
	l.Log(ctx, slog.LevelDebug, "sampling progress",
		slog.String("run_id", p.RunID.String()),
		slog.Int("step", p.Step),
		slog.Int("total", p.Total),
	)
}

func (l *logger) skipped(ctx context.Context, p Progress) {
	l.Log(ctx, slog.LevelDebug, "progress event skipped; host is behind",
		slog.String("run_id", p.RunID.String()),
		slog.Int("step", p.Step),
	)
}

func (l *logger) complete(ctx context.Context, c *Completion) {
	attrs := []slog.Attr{
		slog.String("run_id", c.RunID.String()),
		slog.Any("maxima", c.Maxima),
		slog.Int("steps", c.Steps),
		slog.Bool("stopped", c.Stopped),
		slog.Duration("elapsed", c.Duration()),
	}
	if c.Err != nil {
		attrs = append(attrs, slog.String("error", c.Err.Error()))
		l.Log(ctx, slog.LevelWarn, "sampling ended with error", attrs...)
		return
	}
	l.Log(ctx, slog.LevelInfo, "sampling complete", attrs...)
}
