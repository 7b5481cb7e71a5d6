package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mossishahi/flightnet/internal/app"
	"github.com/mossishahi/flightnet/internal/config"
	"github.com/mossishahi/flightnet/internal/source/mapfeed"
	"github.com/mossishahi/flightnet/internal/upstream"
)

// newNetworkCmd creates the 'network' subcommand: topology only, no
// schedules. Cheap enough to run daily ahead of the schedule harvest.
func newNetworkCmd() *cobra.Command {
	flags := &harvestFlags{}
	cmd := &cobra.Command{
		Use:   "network",
		Short: "Harvests countries, airports and routes",
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
			return runNetwork(cmd, a, cfg, source)
		},
	}
	cmd.Flags().StringVar(&flags.source, "source", "", "upstream source to harvest (mapfeed or catalog)")
	return cmd
}

func runNetwork(cmd *cobra.Command, a *app.App, cfg config.Config, source string) error {
	switch source {
	case sourceMapfeed:
		return runMapfeedNetwork(cmd, a, cfg)
	case sourceCatalog:
		return runCatalogNetwork(cmd, a, cfg)
	default:
		return fmt.Errorf("unknown source %q", source)
	}
}

func runMapfeedNetwork(cmd *cobra.Command, a *app.App, cfg config.Config) error {
	ctx := cmd.Context()
	disc, cleanup, err := newDiscoverer(cfg, a.Logger)
	if err != nil {
		return err
	}
	defer cleanup()

	session := upstream.NewSession(sessionConfig(cfg, sourceMapfeed), a.Gate, disc, a.Logger)
	res, err := mapfeed.NewNetwork(session, a.Store, mapfeedConfig(cfg), a.Clock, a.Logger).Harvest(ctx)
	if err != nil {
		return fmt.Errorf("harvest network: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "countries: %d\nairports: %d\nroutes: %d\nfake airports skipped: %d\n",
		res.Countries, res.Airports, res.Routes, res.Fakes)
	return nil
}

// runCatalogNetwork harvests stations first; when the station payload
// carried no inline connections (the fallback endpoint never does) it
// follows up with the per-airport route walk.
func runCatalogNetwork(cmd *cobra.Command, a *app.App, cfg config.Config) error {
	ctx := cmd.Context()
	src := newCatalogSource(a, cfg)
	res, err := src.HarvestStations(ctx)
	if err != nil {
		return fmt.Errorf("harvest stations: %w", err)
	}
	routes := res.InlineRoutes
	if routes == 0 {
		if routes, err = src.HarvestRoutes(ctx, res.Airports, false); err != nil {
			return fmt.Errorf("harvest routes: %w", err)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "countries: %d\nairports: %d\nroutes: %d\n",
		res.Countries, len(res.Airports), routes)
	return nil
}
