package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/talaqi/talaqi/internal/logger"
	"github.com/talaqi/talaqi/internal/schedule"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduled re-evaluation and embedding refresh",
	Long: `Runs two background jobs until interrupted:
  reevaluate-matches  - re-score open candidates, promote, sweep stale ones
  refresh-embeddings  - re-embed every report and knowledge entry

Schedules come from TALAQI_REEVALUATE_SCHEDULE and TALAQI_REFRESH_SCHEDULE
(cron expressions or descriptors like "@every 24h").`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	reevaluate, err := schedule.NewRunner(jobReevaluate, a.cfg.Schedule.Reevaluate,
		func(ctx context.Context) error {
			_, err := a.matcher.Reevaluate(ctx)
			return err
		},
		schedule.WithClock(a.clock), schedule.WithHistory(a.history))
	if err != nil {
		return err
	}

	refresh, err := schedule.NewRunner(jobRefresh, a.cfg.Schedule.Refresh,
		func(ctx context.Context) error {
			_, err := a.maintainer.BulkRefresh(ctx)
			return err
		},
		schedule.WithClock(a.clock), schedule.WithHistory(a.history))
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range []*schedule.Runner{reevaluate, refresh} {
		g.Go(func() error {
			return r.Run(gctx)
		})
	}

	logger.Info("talaqi started", "db", a.cfg.DBPath)

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		logger.Info("shutting down")
		return nil
	}

	return err
}
