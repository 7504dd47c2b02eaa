package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"citadel/internal/dashboard"
	"citadel/internal/portfolio"
	"citadel/internal/store"
)

func newServeCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Poll every strategy on the loop interval and serve the dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), rt)
		},
	}
}

func serve(ctx context.Context, rt *runtime) error {
	if err := rt.app().Run(ctx); err != nil {
		rt.logger.Error("tracker stopped with error", zap.Error(err))
		return err
	}
	rt.logger.Info("tracker exited cleanly")
	return nil
}

func newSnapshotCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Capture and store one snapshot of every strategy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := rt.app().Once(cmd.Context())
			snaps := make([]portfolio.Snapshot, len(result.Reports))
			for i, report := range result.Reports {
				snaps[i] = report.Snapshot
			}
			if len(snaps) > 0 {
				if writeErr := writeSnapshots(cmd.OutOrStdout(), snaps); writeErr != nil {
					return writeErr
				}
			}
			return err
		},
	}
}

func newHistoryCmd(rt *runtime) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <strategy>",
		Short: "Print the stored snapshots of a strategy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			history, err := rt.app().History(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(history) == 0 {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "no snapshots stored for %s\n", args[0])
				return err
			}
			return writeSnapshots(cmd.OutOrStdout(), store.Tail(history, limit))
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of most recent rows, 0 for all")
	return cmd
}

func writeSnapshots(out io.Writer, snaps []portfolio.Snapshot) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "TIME\tSTRATEGY\tLP\tLP FEES\tHL\tHL FEES\tTOTAL\tAPR\t")
	for _, snap := range snaps {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			snap.Time.UTC().Format("2006-01-02 15:04:05"),
			snap.Strategy,
			dashboard.USD(snap.LPValue),
			dashboard.USD(snap.LPFees),
			dashboard.USD(snap.HLValue),
			dashboard.USD(snap.HLFees),
			dashboard.USD(snap.TotalValue),
			dashboard.Percent(snap.APR),
		)
	}
	return w.Flush()
}
