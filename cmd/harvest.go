package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mossishahi/flightnet/internal/app"
	"github.com/mossishahi/flightnet/internal/config"
)

// newHarvestCmd creates the 'harvest' subcommand: the full pipeline.
// Topology first so freshly added routes are eligible in the same run,
// then schedules and fares.
func newHarvestCmd() *cobra.Command {
	flags := &harvestFlags{}
	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Runs the full pipeline: network, schedules and fares",
		Long: `Refreshes the route network and then harvests schedules and fares for it.
Equivalent to 'network' followed by 'schedules' (and 'fares' for the catalog
source), sharing one session budget.`,
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
			return runHarvest(cmd, a, cfg, source)
		},
	}
	flags.register(cmd)
	return cmd
}

func runHarvest(cmd *cobra.Command, a *app.App, cfg config.Config, source string) error {
	switch source {
	case sourceMapfeed:
		return runMapfeedHarvest(cmd, a, cfg)
	case sourceCatalog:
		return runCatalogHarvest(cmd, a, cfg)
	default:
		return fmt.Errorf("unknown source %q", source)
	}
}

// runMapfeedHarvest refreshes topology and then runs the concurrent
// schedule engine, which carries fares in the same responses.
func runMapfeedHarvest(cmd *cobra.Command, a *app.App, cfg config.Config) error {
	if err := runMapfeedNetwork(cmd, a, cfg); err != nil {
		return err
	}
	if err := cmd.Context().Err(); err != nil {
		return nil
	}
	return runMapfeedSchedules(cmd, a, cfg)
}

func runCatalogHarvest(cmd *cobra.Command, a *app.App, cfg config.Config) error {
	if err := runCatalogNetwork(cmd, a, cfg); err != nil {
		return err
	}
	if err := cmd.Context().Err(); err != nil {
		return nil
	}
	if err := runCatalogSchedules(cmd, a, cfg); err != nil {
		return err
	}
	if err := cmd.Context().Err(); err != nil {
		return nil
	}
	return runCatalogFares(cmd, a, cfg)
}
