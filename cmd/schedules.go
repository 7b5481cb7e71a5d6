package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mossishahi/flightnet/internal/app"
	"github.com/mossishahi/flightnet/internal/config"
	"github.com/mossishahi/flightnet/internal/harvest"
)

// newSchedulesCmd creates the 'schedules' subcommand: the stale-driven
// schedule harvest. For the mapfeed source this is the concurrent
// pair-window engine; fares ride along in the same responses. For the
// catalog source schedules are walked month by month per route.
func newSchedulesCmd() *cobra.Command {
	flags := &harvestFlags{}
	cmd := &cobra.Command{
		Use:   "schedules",
		Short: "Harvests departure schedules for stale routes",
		Long: `Selects routes whose schedules are older than the refresh threshold and
re-fetches their departures (and any fares the responses carry). Interrupting
a run keeps everything fetched so far and prints a partial summary.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := a.Cfg
			flags.apply(cmd, &cfg)
			source, err := resolveSource(cfg)
			if err != nil {
				return err
			}
			return runSchedules(cmd, a, cfg, source)
		},
	}
	flags.register(cmd)
	return cmd
}

func runSchedules(cmd *cobra.Command, a *app.App, cfg config.Config, source string) error {
	switch source {
	case sourceMapfeed:
		return runMapfeedSchedules(cmd, a, cfg)
	case sourceCatalog:
		return runCatalogSchedules(cmd, a, cfg)
	default:
		return fmt.Errorf("unknown source %q", source)
	}
}

// runMapfeedSchedules drives the concurrent engine: probe discovery
// once, fan route pairs out over workers, funnel batches through the
// single writer.
func runMapfeedSchedules(cmd *cobra.Command, a *app.App, cfg config.Config) error {
	ctx := cmd.Context()
	disc, cleanup, err := newDiscoverer(cfg, a.Logger)
	if err != nil {
		return err
	}
	defer cleanup()

	runner := harvest.NewRunner(harvest.Config{
		RefreshDays:    cfg.Harvest.RefreshDays,
		Workers:        cfg.Harvest.Workers,
		Windows:        cfg.Harvest.Windows,
		WindowDays:     cfg.Harvest.WindowDays,
		Limit:          cfg.Harvest.Limit,
		QueueDepth:     cfg.Harvest.QueueDepth,
		FlushRows:      cfg.Harvest.FlushRows,
		ReportInterval: cfg.Harvest.ReportInterval(),
		ArchivePrefix:  cfg.Archive.Prefix,
		Topic:          cfg.PubSub.Topic,
		Session:        sessionConfig(cfg, sourceMapfeed),
		Mapfeed:        mapfeedConfig(cfg),
	}, harvest.Deps{
		Store:      a.Store,
		Gate:       a.Gate,
		Discoverer: disc,
		Blobs:      a.Blobs,
		Hasher:     a.Hasher,
		IDs:        a.IDs,
		Clock:      a.Clock,
		Publisher:  a.Publisher,
		Logger:     a.Logger,
	})

	stopOps := startOpsServer(ctx, a, runner.Counters())
	defer stopOps()

	summary, err := runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("run schedule harvest: %w", err)
	}
	return printRunSummary(cmd.OutOrStdout(), summary)
}

// runCatalogSchedules walks the calendar months per route on a single
// session; the source handles month stepping and persistence itself.
func runCatalogSchedules(cmd *cobra.Command, a *app.App, cfg config.Config) error {
	ctx := cmd.Context()
	stopOps := startOpsServer(ctx, a, nil)
	defer stopOps()

	src := newCatalogSource(a, cfg)
	n, err := src.HarvestSchedules(ctx, cfg.Harvest.Limit)
	if err != nil {
		return fmt.Errorf("harvest schedules: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schedules harvested: %d\n", n)
	return nil
}
