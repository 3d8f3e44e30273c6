package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/talaqi/talaqi/internal/matching"
	"github.com/talaqi/talaqi/internal/store"
)

var (
	evaluateID   string
	evaluateType string
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Re-embed every report and knowledge entry once",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		summary, err := a.maintainer.BulkRefresh(ctx)
		fmt.Fprintf(cmd.OutOrStdout(), "lost: %d  found: %d  knowledge: %d  failed: %d\n",
			summary.Lost, summary.Found, summary.Knowledge, summary.Failed)
		return err
	},
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score one report, or re-evaluate all open candidates",
	Long: `With --id, scores that report against every plausible counterpart.
Without it, runs the same pass as the scheduled re-evaluation, including the
stale candidate sweep.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		var summary matching.Summary
		if evaluateID != "" {
			report, err := a.store.GetReport(ctx, store.ItemType(evaluateType), evaluateID, store.ExcludeDeleted)
			if err != nil {
				return err
			}
			summary, err = a.matcher.EvaluateReport(ctx, report)
			if err != nil {
				return err
			}
		} else {
			summary, err = a.matcher.Reevaluate(ctx)
			if err != nil {
				return err
			}
		}

		fmt.Fprintf(cmd.OutOrStdout(), "evaluated: %d  promoted: %d  cleaned: %d  failed: %d\n",
			summary.Evaluated, summary.Promoted, summary.Cleaned, summary.Failed)
		return nil
	},
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Show scheduled job history",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		for _, name := range []string{jobReevaluate, jobRefresh} {
			state, err := a.history.Get(ctx, name)
			if err != nil {
				return err
			}
			if state == nil {
				fmt.Fprintf(out, "%s: never scheduled\n", name)
				continue
			}

			lastRun := "never"
			if state.LastRun != nil {
				lastRun = state.LastRun.Local().Format(time.RFC3339)
			}

			fmt.Fprintf(out, "%s (%s)\n  runs: %d\n  last run: %s\n  next run: %s\n",
				name, state.Schedule, state.Runs, lastRun, state.NextRun.Local().Format(time.RFC3339))
			if state.LastError != "" {
				fmt.Fprintf(out, "  last error: %s\n", state.LastError)
			}
		}

		return nil
	},
}

func init() {
	evaluateCmd.Flags().StringVar(&evaluateID, "id", "", "Report id to evaluate")
	evaluateCmd.Flags().StringVar(&evaluateType, "type", string(store.ItemFound), "Report type: Lost or Found")
}
