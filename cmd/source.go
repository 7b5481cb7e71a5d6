package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mossishahi/flightnet/internal/api"
	"github.com/mossishahi/flightnet/internal/app"
	"github.com/mossishahi/flightnet/internal/config"
	collyfetcher "github.com/mossishahi/flightnet/internal/fetcher/colly"
	headlessfetcher "github.com/mossishahi/flightnet/internal/fetcher/headless"
	"github.com/mossishahi/flightnet/internal/flight"
	"github.com/mossishahi/flightnet/internal/headless/detector"
	"github.com/mossishahi/flightnet/internal/progress"
	"github.com/mossishahi/flightnet/internal/source/catalog"
	"github.com/mossishahi/flightnet/internal/source/mapfeed"
	"github.com/mossishahi/flightnet/internal/upstream"
)

const (
	sourceMapfeed = "mapfeed"
	sourceCatalog = "catalog"

	// Homepage responses smaller than this are treated as script shells
	// and retried through the headless renderer during discovery.
	shellMinBytes = 4096
)

// harvestFlags are the per-run knobs shared by the harvest-family
// commands. Explicitly set flags override config values, so zero stays
// meaningful (--refresh-days=0 forces a full rescan).
type harvestFlags struct {
	source      string
	refreshDays int
	workers     int
	windows     int
	limit       int
}

func (f *harvestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.source, "source", "", "harvest source: mapfeed or catalog")
	cmd.Flags().IntVar(&f.refreshDays, "refresh-days", 0, "re-harvest routes whose schedules are older than this many days (0 rescans everything)")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "concurrent harvest workers")
	cmd.Flags().IntVar(&f.windows, "windows", 0, "departure windows fetched per route pair")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "cap on route pairs or origins per run (0 is unlimited)")
}

func (f *harvestFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("source") {
		cfg.Harvest.Source = f.source
	}
	if cmd.Flags().Changed("refresh-days") {
		cfg.Harvest.RefreshDays = f.refreshDays
	}
	if cmd.Flags().Changed("workers") {
		cfg.Harvest.Workers = f.workers
	}
	if cmd.Flags().Changed("windows") {
		cfg.Harvest.Windows = f.windows
	}
	if cmd.Flags().Changed("limit") {
		cfg.Harvest.Limit = f.limit
	}
}

// resolveSource picks the harvest source and verifies its config is
// complete enough to run.
func resolveSource(cfg config.Config) (string, error) {
	source := cfg.Harvest.Source
	if source == "" {
		source = sourceMapfeed
	}
	if err := cfg.ValidateSource(source); err != nil {
		return "", err
	}
	return source, nil
}

// sessionConfig maps the HTTP config onto an upstream session template
// for the given source.
func sessionConfig(cfg config.Config, source string) upstream.Config {
	sc := upstream.Config{
		Source:        source,
		UserAgent:     cfg.HTTP.UserAgent,
		Timeout:       cfg.HTTP.Timeout(),
		GetAttempts:   cfg.HTTP.GetAttempts,
		PostAttempts:  cfg.HTTP.PostAttempts,
		LinearBackoff: cfg.HTTP.RetryBackoff(),
	}
	switch source {
	case sourceMapfeed:
		sc.TokenCookie = cfg.Sources.Mapfeed.TokenCookie
		sc.TokenHeader = cfg.Sources.Mapfeed.TokenHeader
	case sourceCatalog:
		sc.BaseURL = cfg.Sources.Catalog.BaseURL
	}
	return sc
}

func mapfeedConfig(cfg config.Config) mapfeed.Config {
	m := cfg.Sources.Mapfeed
	return mapfeed.Config{
		Airline:       m.Airline,
		MapPath:       m.MapPath,
		TimetablePath: m.TimetablePath,
	}
}

func catalogConfig(cfg config.Config) catalog.Config {
	c := cfg.Sources.Catalog
	return catalog.Config{
		Airline:              c.Airline,
		StationsPath:         c.StationsPath,
		StationsFallbackPath: c.StationsFallbackPath,
		RoutesPath:           c.RoutesPath,
		SchedulesPath:        c.SchedulesPath,
		FaresPath:            c.FaresPath,
		FaresFallbackPath:    c.FaresFallbackPath,
		Months:               c.Months,
		FareHorizonDays:      c.FareHorizonDays,
		FarePriceCap:         c.FarePriceCap,
		FarePageLimit:        c.FarePageLimit,
	}
}

// newDiscoverer wires homepage probing for the mapfeed source: a plain
// colly fetch first, then a headless render when the page comes back as
// a script shell. The returned cleanup releases the browser allocator.
func newDiscoverer(cfg config.Config, logger *zap.Logger) (*upstream.Discoverer, func(), error) {
	mf := cfg.Sources.Mapfeed
	probe := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.HTTP.UserAgent,
		Timeout:   cfg.HTTP.Timeout(),
	})

	cleanup := func() {}
	var renderer upstream.Renderer
	var shellDet upstream.ShellDetector
	headless, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
		MaxParallel:       1,
		UserAgent:         cfg.HTTP.UserAgent,
		NavigationTimeout: cfg.HTTP.Timeout(),
	})
	if err != nil {
		logger.Warn("headless renderer unavailable, discovery uses the plain fetch only", zap.Error(err))
	} else {
		renderer = headless
		shellDet = detector.NewHeuristic(shellMinBytes, nil, nil)
		cleanup = headless.Close
	}

	disc, err := upstream.NewDiscoverer(mf.HomepageURL, mf.APIURLPattern, probe, renderer, shellDet, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("init discovery: %w", err)
	}
	return disc, cleanup, nil
}

// newCatalogSource builds the single-session catalog harvester.
func newCatalogSource(a *app.App, cfg config.Config) *catalog.Source {
	session := upstream.NewSession(sessionConfig(cfg, sourceCatalog), a.Gate, nil, a.Logger)
	return catalog.NewSource(session, a.Store, catalogConfig(cfg), a.Clock, a.Logger)
}

// startOpsServer exposes /healthz, /metrics, /statusz and /v1/counts for
// the duration of a long-running command when server.port is set. The
// returned stop function drains the server.
func startOpsServer(ctx context.Context, a *app.App, counters *progress.Counters) func() {
	if a.Cfg.Server.Port <= 0 {
		return func() {}
	}
	srv := api.NewServer(a.Store, counters, a.Logger)
	opsCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(opsCtx, a.Cfg.Server.Port); err != nil {
			a.Logger.Warn("ops server failed", zap.Error(err))
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func printRunSummary(w io.Writer, summary flight.RunSummary) error {
	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run summary: %w", err)
	}
	fmt.Fprintln(w, string(out))
	return nil
}
