package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mossishahi/flightnet/internal/app"
)

// newSummaryCmd creates the 'summary' subcommand: a read-only snapshot
// of what the store holds.
func newSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Prints row counts and per-airline route statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return runSummary(cmd, a)
		},
	}
}

func runSummary(cmd *cobra.Command, a *app.App) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	counts, err := a.Store.TableCounts(ctx)
	if err != nil {
		return fmt.Errorf("count tables: %w", err)
	}
	fmt.Fprintln(out, "table counts:")
	for _, table := range []string{"countries", "airports", "routes", "schedules", "fares"} {
		fmt.Fprintf(out, "  %-10s %d\n", table, counts[table])
	}

	stats, err := a.Store.RouteStats(ctx)
	if err != nil {
		return fmt.Errorf("route stats: %w", err)
	}
	if len(stats) == 0 {
		fmt.Fprintln(out, "no routes stored yet")
		return nil
	}

	fmt.Fprintln(out, "airlines:")
	for _, st := range stats {
		fresh, err := a.Store.RouteFreshness(ctx, st.Airline)
		if err != nil {
			return fmt.Errorf("route freshness for %s: %w", st.Airline, err)
		}
		var newest time.Time
		fetched := 0
		for _, row := range fresh {
			if row.LastScraped == nil {
				continue
			}
			fetched++
			if row.LastScraped.After(newest) {
				newest = *row.LastScraped
			}
		}
		scraped := "never"
		if !newest.IsZero() {
			scraped = newest.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(out, "  %s : %d routes (%d origins, %d destinations), %d with schedules, route seen %s, newest fetch %s\n",
			st.Airline, st.Routes, st.Origins, st.Destinations, fetched,
			st.LastSeen.UTC().Format(time.RFC3339), scraped)
	}
	return nil
}
