package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mossishahi/flightnet/internal/flight"
)

// FlightStore provides an in-memory flight.Store for development and
// integration tests. It mirrors the Postgres store's upsert and append
// semantics without a database.
type FlightStore struct {
	mu        sync.RWMutex
	countries map[string]flight.Country
	airports  map[string]flight.Airport
	routes    map[routeKey]flight.Route
	schedules map[scheduleKey]flight.ScheduleEntry
	fares     []flight.FareQuote
}

type routeKey struct {
	origin      string
	destination string
	airline     string
}

type scheduleKey struct {
	origin       string
	destination  string
	airline      string
	year         int
	month        int
	day          int
	flightNumber string
}

// NewFlightStore constructs an empty FlightStore.
func NewFlightStore() *FlightStore {
	return &FlightStore{
		countries: make(map[string]flight.Country),
		airports:  make(map[string]flight.Airport),
		routes:    make(map[routeKey]flight.Route),
		schedules: make(map[scheduleKey]flight.ScheduleEntry),
	}
}

// EnsureSchema is a no-op for the in-memory store.
func (s *FlightStore) EnsureSchema(context.Context) error { return nil }

// Close is a no-op for the in-memory store.
func (s *FlightStore) Close() {}

// UpsertCountry stores or replaces a country row.
func (s *FlightStore) UpsertCountry(_ context.Context, c flight.Country) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.countries[c.Code] = c
	return nil
}

// UpsertAirport stores or replaces a station row.
func (s *FlightStore) UpsertAirport(_ context.Context, a flight.Airport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.airports[a.IATA] = a
	return nil
}

// UpsertRoute stores or refreshes a route. LastSeen never moves backwards.
func (s *FlightStore) UpsertRoute(_ context.Context, r flight.Route) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := routeKey{r.Origin, r.Destination, r.Airline}
	if prev, ok := s.routes[key]; ok && prev.LastSeen.After(r.LastSeen) {
		r.LastSeen = prev.LastSeen
	}
	s.routes[key] = r
	return nil
}

// RouteFreshness returns the airline's routes with the newest schedule
// scraped_at observed for each.
func (s *FlightStore) RouteFreshness(_ context.Context, airline string) ([]flight.RouteFreshness, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []flight.RouteFreshness
	for key, r := range s.routes {
		if key.airline != airline {
			continue
		}
		rf := flight.RouteFreshness{Route: r}
		for skey, entry := range s.schedules {
			if skey.origin != key.origin || skey.destination != key.destination || skey.airline != airline {
				continue
			}
			if rf.LastScraped == nil || entry.ScrapedAt.After(*rf.LastScraped) {
				scraped := entry.ScrapedAt
				rf.LastScraped = &scraped
			}
		}
		out = append(out, rf)
	}
	sortFreshness(out)
	return out, nil
}

// RoutesByAirline lists the airline's routes.
func (s *FlightStore) RoutesByAirline(_ context.Context, airline string) ([]flight.Route, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []flight.Route
	for key, r := range s.routes {
		if key.airline == airline {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Origin != out[j].Origin {
			return out[i].Origin < out[j].Origin
		}
		return out[i].Destination < out[j].Destination
	})
	return out, nil
}

// DistinctOrigins lists the departure airports the airline serves.
func (s *FlightStore) DistinctOrigins(_ context.Context, airline string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for key := range s.routes {
		if key.airline == airline {
			seen[key.origin] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for origin := range seen {
		out = append(out, origin)
	}
	sort.Strings(out)
	return out, nil
}

// SaveBatch upserts schedules and appends fares atomically under the
// store lock.
func (s *FlightStore) SaveBatch(_ context.Context, schedules []flight.ScheduleEntry, fares []flight.FareQuote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range schedules {
		key := scheduleKey{
			origin:       entry.Origin,
			destination:  entry.Destination,
			airline:      entry.Airline,
			year:         entry.Year,
			month:        entry.Month,
			day:          entry.Day,
			flightNumber: entry.FlightNumber,
		}
		s.schedules[key] = entry
	}
	s.fares = append(s.fares, fares...)
	return nil
}

// TableCounts returns row counts per table.
func (s *FlightStore) TableCounts(context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]int64{
		"countries": int64(len(s.countries)),
		"airports":  int64(len(s.airports)),
		"routes":    int64(len(s.routes)),
		"schedules": int64(len(s.schedules)),
		"fares":     int64(len(s.fares)),
	}, nil
}

// RouteStats aggregates the network per airline.
func (s *FlightStore) RouteStats(context.Context) ([]flight.RouteStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type agg struct {
		routes       int64
		origins      map[string]struct{}
		destinations map[string]struct{}
		lastSeen     time.Time
	}
	byAirline := make(map[string]*agg)
	for key, r := range s.routes {
		a, ok := byAirline[key.airline]
		if !ok {
			a = &agg{origins: make(map[string]struct{}), destinations: make(map[string]struct{})}
			byAirline[key.airline] = a
		}
		a.routes++
		a.origins[key.origin] = struct{}{}
		a.destinations[key.destination] = struct{}{}
		if r.LastSeen.After(a.lastSeen) {
			a.lastSeen = r.LastSeen
		}
	}

	out := make([]flight.RouteStat, 0, len(byAirline))
	for airline, a := range byAirline {
		out = append(out, flight.RouteStat{
			Airline:      airline,
			Routes:       a.routes,
			Origins:      int64(len(a.origins)),
			Destinations: int64(len(a.destinations)),
			LastSeen:     a.lastSeen,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Airline < out[j].Airline })
	return out, nil
}

// Countries returns the stored country rows ordered by code, for tests.
func (s *FlightStore) Countries() []flight.Country {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]flight.Country, 0, len(s.countries))
	for _, c := range s.countries {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Schedules returns the stored schedule rows ordered by route and day,
// for tests.
func (s *FlightStore) Schedules() []flight.ScheduleEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]flight.ScheduleEntry, 0, len(s.schedules))
	for _, entry := range s.schedules {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Origin != b.Origin {
			return a.Origin < b.Origin
		}
		if a.Destination != b.Destination {
			return a.Destination < b.Destination
		}
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		if a.Month != b.Month {
			return a.Month < b.Month
		}
		if a.Day != b.Day {
			return a.Day < b.Day
		}
		return a.FlightNumber < b.FlightNumber
	})
	return out
}

// Fares returns a copy of the stored fare rows, for tests.
func (s *FlightStore) Fares() []flight.FareQuote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]flight.FareQuote, len(s.fares))
	copy(out, s.fares)
	return out
}

func sortFreshness(out []flight.RouteFreshness) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].Route.Origin != out[j].Route.Origin {
			return out[i].Route.Origin < out[j].Route.Origin
		}
		return out[i].Route.Destination < out[j].Route.Destination
	})
}
