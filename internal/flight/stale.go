package flight

import "time"

// RouteFreshness pairs a route with the newest schedule fetch observed
// for it. LastScraped is nil when the route has never been fetched.
type RouteFreshness struct {
	Route       Route
	LastScraped *time.Time
}

// SelectStale returns the routes that need a schedule re-fetch: those
// never fetched, or whose last fetch is older than now minus threshold.
// A zero threshold selects every route unconditionally (full rescan).
func SelectStale(rows []RouteFreshness, now time.Time, threshold time.Duration) []Route {
	stale := make([]Route, 0, len(rows))
	for _, row := range rows {
		if threshold <= 0 || row.LastScraped == nil || now.Sub(*row.LastScraped) > threshold {
			stale = append(stale, row.Route)
		}
	}
	return stale
}
