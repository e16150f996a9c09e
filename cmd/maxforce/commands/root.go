// Copyright (c) jupacheco1407.
// Licensed under the MIT License.

// Package commands implements the maxforce command line.
package commands

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	history string
	verbose bool
}

// NewRootCmd builds the maxforce command tree.
func NewRootCmd() *cobra.Command {
	o := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "maxforce",
		Short: "Measure maximum force from a sensor base or a synthetic source",
		Long: `maxforce samples a force source for a fixed number of steps and reports
the largest value seen on each channel.

The sensor base is reached through an MQTT broker configured with the
TRIGNO_* environment variables.`,
		SilenceUsage: true,
	}

	f := cmd.PersistentFlags()
	f.StringVar(&o.history, "history-db", defaultHistoryPath(),
		"path of the measurement history database")
	f.BoolVarP(&o.verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(
		newMeasureCmd(o),
		newHistoryCmd(o),
	)
	return cmd
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// Build the logger for a command writing to w. Anything else written to w
// while the logger is in use must go through the same lockedWriter.
func (o *rootOptions) logger(w *lockedWriter) *slog.Logger {
	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}

	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		NoColor:    !isTerminal(w),
	}))
}

func isTerminal(w io.Writer) bool {
	if lw, ok := w.(*lockedWriter); ok {
		w = lw.w
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func defaultHistoryPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "maxforce.db"
	}
	return filepath.Join(dir, "maxforce", "history.db")
}

// lockedWriter serializes writes from the worker's logger and the progress
// display, which run on different goroutines.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func newLockedWriter(w io.Writer) *lockedWriter {
	return &lockedWriter{w: w}
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
