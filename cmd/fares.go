package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mossishahi/flightnet/internal/app"
	"github.com/mossishahi/flightnet/internal/config"
)

// newFaresCmd creates the 'fares' subcommand. Only the catalog source
// has a dedicated cheapest-fare endpoint; for mapfeed the fares arrive
// inside the timetable responses, so the command runs the schedule
// harvest there.
func newFaresCmd() *cobra.Command {
	flags := &harvestFlags{}
	cmd := &cobra.Command{
		Use:   "fares",
		Short: "Harvests fare quotes",
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
			return runFares(cmd, a, cfg, source)
		},
	}
	cmd.Flags().StringVar(&flags.source, "source", "", "upstream source to harvest (mapfeed or catalog)")
	cmd.Flags().IntVar(&flags.limit, "limit", 0, "cap on departure airports to quote, 0 for all")
	return cmd
}

func runFares(cmd *cobra.Command, a *app.App, cfg config.Config, source string) error {
	switch source {
	case sourceMapfeed:
		// Mapfeed fare quotes are embedded in timetable payloads.
		return runMapfeedSchedules(cmd, a, cfg)
	case sourceCatalog:
		return runCatalogFares(cmd, a, cfg)
	default:
		return fmt.Errorf("unknown source %q", source)
	}
}

func runCatalogFares(cmd *cobra.Command, a *app.App, cfg config.Config) error {
	ctx := cmd.Context()
	origins, err := a.Store.DistinctOrigins(ctx, cfg.Sources.Catalog.Airline)
	if err != nil {
		return fmt.Errorf("list origins: %w", err)
	}
	if len(origins) == 0 {
		return fmt.Errorf("no routes stored for %s, run 'flightnet network --source catalog' first", cfg.Sources.Catalog.Airline)
	}

	src := newCatalogSource(a, cfg)
	n, err := src.HarvestFares(ctx, origins, cfg.Harvest.Limit)
	if err != nil {
		return fmt.Errorf("harvest fares: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "fare quotes harvested: %d\n", n)
	return nil
}
