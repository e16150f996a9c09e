// Copyright (c) jupacheco1407.
// Licensed under the MIT License.
package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/jupacheco1407/datacollector/store"
	"github.com/spf13/cobra"
)

func newHistoryCmd(root *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent measurements, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return errors.New("limit must be positive")
			}

			ctx := cmd.Context()
			s, err := openHistory(ctx, root.history)
			if err != nil {
				return err
			}
			defer s.Close()

			records, err := s.Recent(ctx, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(records) == 0 {
				_, err := fmt.Fprintln(out, "no measurements recorded")
				return err
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "run_id\tsource\tfinished\tsteps\tmax\tstatus")
			for _, r := range records {
				var err error
				if r.Error != "" {
					err = errors.New(r.Error)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%.3f\t%s\n",
					r.RunID,
					r.Source,
					r.Finished.Local().Format(time.DateTime),
					r.Steps,
					r.Total,
					r.Max(),
					status(r.Stopped, err),
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 10,
		"maximum number of measurements to list")
	return cmd
}

func openHistory(ctx context.Context, path string) (*store.SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}
	return store.Open(ctx, path)
}
