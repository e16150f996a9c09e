// Copyright (c) jupacheco1407.
// Licensed under the MIT License.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/jupacheco1407/datacollector/sampling"
	"github.com/jupacheco1407/datacollector/store"
	"github.com/jupacheco1407/datacollector/trigno"
	"github.com/spf13/cobra"
)

type measureOptions struct {
	profile    string
	synthetic  bool
	seed       int64
	iterations int
	interval   time.Duration
	noSave     bool
}

func newMeasureCmd(root *rootOptions) *cobra.Command {
	o := &measureOptions{}

	cmd := &cobra.Command{
		Use:   "measure",
		Short: "Sample a source and report the maximum force per channel",
		Long: `measure samples the sensor base, or the synthetic source, for a fixed
number of steps. Interrupting the command stops the run at the next step
and still reports the maxima seen so far.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.run(cmd, root)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.profile, "profile", "p", "", "YAML measurement profile")
	f.BoolVar(&o.synthetic, "synthetic", false,
		"use the synthetic source instead of the sensor base")
	f.Int64Var(&o.seed, "seed", 0, "seed for the synthetic source")
	f.IntVarP(&o.iterations, "iterations", "n", 0,
		"number of sampling steps (source default if unset)")
	f.DurationVarP(&o.interval, "interval", "i", 0,
		"time spent in each step (source default if unset)")
	f.BoolVar(&o.noSave, "no-save", false,
		"do not record the measurement in the history")
	return cmd
}

// Resolve the profile, letting explicitly set flags take precedence.
func (o *measureOptions) resolve(cmd *cobra.Command) (*Profile, error) {
	p := &Profile{}
	if o.profile != "" {
		var err error
		if p, err = LoadProfile(o.profile); err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("synthetic") {
		if o.synthetic {
			p.Source = SourceSynthetic
		} else {
			p.Source = SourceTrigno
		}
	}
	if flags.Changed("seed") {
		p.Seed = &o.seed
	}
	if flags.Changed("iterations") {
		p.Iterations = o.iterations
	}
	if flags.Changed("interval") {
		p.Interval = Duration(o.interval)
	}
	if p.Source == "" {
		p.Source = SourceTrigno
	}

	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (o *measureOptions) run(cmd *cobra.Command, root *rootOptions) error {
	ctx := cmd.Context()
	errOut := newLockedWriter(cmd.ErrOrStderr())
	log := root.logger(errOut)

	p, err := o.resolve(cmd)
	if err != nil {
		return err
	}

	src, release, err := openSource(ctx, p, log)
	if err != nil {
		return err
	}
	defer release()

	w, err := sampling.NewWorker(src,
		sampling.WithIterations(p.Iterations),
		sampling.WithInterval(p.Interval),
		sampling.WithLogger(log),
	)
	if err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)
	go func() {
		select {
		case s := <-sig:
			log.Info("stopping measurement", "signal", s.String())
			w.Stop()
		case <-w.Done():
		}
	}()

	if err := w.Start(ctx); err != nil {
		return err
	}

	c := follow(errOut, w)
	if err := printCompletion(cmd.OutOrStdout(), c); err != nil {
		return err
	}

	if !o.noSave {
		if err := save(ctx, root.history, store.FromCompletion(p.Source, c)); err != nil {
			return err
		}
		log.Debug("measurement saved", "run_id", c.RunID, "history", root.history)
	}
	return c.Err
}

func openSource(
	ctx context.Context,
	p *Profile,
	log *slog.Logger,
) (sampling.Source, func(), error) {
	if p.Source == SourceSynthetic {
		var opts []sampling.SyntheticSourceOption
		if p.Seed != nil {
			opts = append(opts, sampling.WithSeed(*p.Seed))
		}
		if p.Amplitude > 0 {
			opts = append(opts, sampling.WithAmplitude(p.Amplitude))
		}
		return sampling.NewSyntheticSource(opts...), func() {}, nil
	}

	opts := []trigno.BaseOption{trigno.WithLogger(log)}
	if p.Channels > 0 {
		opts = append(opts, trigno.WithChannels(p.Channels))
	}
	base, err := trigno.DialFromEnv(ctx, opts...)
	if err != nil {
		return nil, nil, err
	}
	release := func() {
		if err := base.Close(); err != nil {
			log.Warn("error closing sensor base", "error", err)
		}
	}

	src, err := trigno.NewSource(base, trigno.WithLogger(log))
	if err != nil {
		release()
		return nil, nil, err
	}
	return src, release, nil
}

// Drain the worker's events, rendering progress to w, and return the
// completion.
func follow(w io.Writer, worker *sampling.Worker) sampling.Completion {
	var bar *pb.ProgressBar
	if isTerminal(w) {
		bar = pb.New(worker.Iterations()).SetWriter(w).Start()
	}

	var c sampling.Completion
	for ev := range worker.Events() {
		switch ev := ev.(type) {
		case sampling.Progress:
			if bar != nil {
				bar.SetCurrent(int64(ev.Step))
			} else {
				fmt.Fprintf(w, "step %d/%d\n", ev.Step, ev.Total)
			}
		case sampling.Completion:
			c = ev
		}
	}

	if bar != nil {
		bar.Finish()
	}
	return c
}

func printCompletion(w io.Writer, c sampling.Completion) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "run\t%s\n", c.RunID)
	fmt.Fprintf(tw, "status\t%s\n", status(c.Stopped, c.Err))
	fmt.Fprintf(tw, "steps\t%d/%d\n", c.Steps, c.Total)
	fmt.Fprintf(tw, "duration\t%s\n", c.Duration().Round(time.Millisecond))
	fmt.Fprintf(tw, "max\t%.3f\n", c.Max())
	if len(c.Maxima) > 1 {
		for i, m := range c.Maxima {
			fmt.Fprintf(tw, "channel %d\t%.3f\n", i+1, m)
		}
	}
	return tw.Flush()
}

func status(stopped bool, err error) string {
	switch {
	case err != nil:
		return "failed: " + err.Error()
	case stopped:
		return "stopped"
	default:
		return "complete"
	}
}

func save(ctx context.Context, path string, r store.Record) error {
	s, err := openHistory(ctx, path)
	if err != nil {
		return err
	}
	defer s.Close()
	return s.Save(ctx, r)
}
