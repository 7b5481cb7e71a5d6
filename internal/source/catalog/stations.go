package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mossishahi/flightnet/internal/flight"
	"github.com/mossishahi/flightnet/internal/upstream"
)

// inlineRoutePrefix marks destination refs embedded in the primary
// station payload, e.g. "airport:BCN". Other ref kinds (city, country
// groupings) are ignored.
const inlineRoutePrefix = "airport:"

type stationPrimary struct {
	IATACode     string        `json:"iataCode"`
	Name         string        `json:"name"`
	CityCode     string        `json:"cityCode"`
	CountryCode  string        `json:"countryCode"`
	CurrencyCode string        `json:"currencyCode"`
	Coordinates  stationCoords `json:"coordinates"`
	TimeZone     string        `json:"timeZone"`
	Routes       []string      `json:"routes"`
}

type stationFallback struct {
	Code        string         `json:"code"`
	Name        string         `json:"name"`
	City        stationCity    `json:"city"`
	Country     stationCountry `json:"country"`
	Coordinates stationCoords  `json:"coordinates"`
	TimeZone    string         `json:"timeZone"`
}

type stationCoords struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type stationCity struct {
	Name string `json:"name"`
}

type stationCountry struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
}

// station is the normalized record both payload shapes reduce to.
type station struct {
	iata        string
	name        string
	city        string
	countryCode string
	countryName string
	currency    string
	lat         float64
	lon         float64
	timezone    string
	routes      []string
}

func (s stationPrimary) normalize() station {
	var dests []string
	for _, ref := range s.Routes {
		if code, ok := strings.CutPrefix(ref, inlineRoutePrefix); ok && code != "" {
			dests = append(dests, code)
		}
	}
	return station{
		iata:        strings.TrimSpace(s.IATACode),
		name:        s.Name,
		city:        s.CityCode,
		countryCode: strings.ToUpper(s.CountryCode),
		currency:    s.CurrencyCode,
		lat:         s.Coordinates.Latitude,
		lon:         s.Coordinates.Longitude,
		timezone:    s.TimeZone,
		routes:      dests,
	}
}

func (s stationFallback) normalize() station {
	return station{
		iata:        strings.TrimSpace(s.Code),
		name:        s.Name,
		city:        s.City.Name,
		countryCode: strings.ToUpper(s.Country.Code),
		countryName: s.Country.Name,
		currency:    s.Country.Currency,
		lat:         s.Coordinates.Latitude,
		lon:         s.Coordinates.Longitude,
		timezone:    s.TimeZone,
	}
}

// StationsResult summarizes one station-catalog harvest.
type StationsResult struct {
	Airports     []string
	Countries    int
	InlineRoutes int
	UsedFallback bool
}

// HarvestStations fetches the station catalog and persists countries,
// airports and any inline routes. The fallback endpoint is tried when
// the primary fails or returns nothing; it carries no inline routes, so
// callers should follow up with HarvestRoutes when InlineRoutes is zero.
func (s *Source) HarvestStations(ctx context.Context) (StationsResult, error) {
	s.logger.Info("fetching station catalog", zap.String("airline", s.cfg.Airline))

	stations, usedFallback, err := s.fetchStations(ctx)
	if err != nil {
		return StationsResult{}, err
	}

	result := StationsResult{UsedFallback: usedFallback}
	known := make(map[string]struct{}, len(stations))
	countriesSeen := make(map[string]struct{})
	now := s.clock.Now()

	for _, st := range stations {
		if st.iata == "" {
			continue
		}

		if st.countryCode != "" {
			if _, seen := countriesSeen[st.countryCode]; !seen {
				country := flight.Country{Code: st.countryCode, Name: st.countryName, Currency: st.currency}
				if err := s.store.UpsertCountry(ctx, country); err != nil {
					return result, fmt.Errorf("upsert country %s: %w", st.countryCode, err)
				}
				countriesSeen[st.countryCode] = struct{}{}
				result.Countries++
			}
		}

		airport := flight.Airport{
			IATA:        st.iata,
			Name:        st.name,
			City:        st.city,
			CountryCode: st.countryCode,
			Latitude:    st.lat,
			Longitude:   st.lon,
			Timezone:    st.timezone,
		}
		if err := s.store.UpsertAirport(ctx, airport); err != nil {
			return result, fmt.Errorf("upsert airport %s: %w", st.iata, err)
		}
		known[st.iata] = struct{}{}
		result.Airports = append(result.Airports, st.iata)
	}

	// Second pass so inline refs pointing at stations later in the list
	// land after their airports exist.
	for _, st := range stations {
		if _, ok := known[st.iata]; !ok {
			continue
		}
		for _, dest := range st.routes {
			if _, ok := known[dest]; !ok {
				continue
			}
			route := flight.Route{Origin: st.iata, Destination: dest, Airline: s.cfg.Airline, LastSeen: now}
			if err := s.store.UpsertRoute(ctx, route); err != nil {
				return result, fmt.Errorf("upsert route %s-%s: %w", st.iata, dest, err)
			}
			result.InlineRoutes++
		}
	}

	s.logger.Info("stored station catalog",
		zap.String("airline", s.cfg.Airline),
		zap.Int("airports", len(result.Airports)),
		zap.Int("inline_routes", result.InlineRoutes),
		zap.Bool("fallback", usedFallback),
	)
	return result, nil
}

func (s *Source) fetchStations(ctx context.Context) ([]station, bool, error) {
	var primary []stationPrimary
	err := s.session.GetJSON(ctx, s.cfg.StationsPath, nil, &primary)
	if err == nil && len(primary) > 0 {
		stations := make([]station, 0, len(primary))
		for _, st := range primary {
			stations = append(stations, st.normalize())
		}
		return stations, false, nil
	}
	if err != nil && ctx.Err() != nil {
		return nil, false, fmt.Errorf("fetch stations: %w", err)
	}
	s.logger.Warn("primary station endpoint unavailable, trying fallback", zap.Error(err))

	var fallback []stationFallback
	if err := s.session.GetJSON(ctx, s.cfg.StationsFallbackPath, nil, &fallback); err != nil {
		return nil, false, fmt.Errorf("fetch stations from fallback: %w", err)
	}
	if len(fallback) == 0 {
		return nil, false, errors.New("station catalog is empty")
	}
	stations := make([]station, 0, len(fallback))
	for _, st := range fallback {
		stations = append(stations, st.normalize())
	}
	return stations, true, nil
}

type routeEntry struct {
	ArrivalAirport    stationRef  `json:"arrivalAirport"`
	ConnectingAirport *stationRef `json:"connectingAirport"`
	NewRoute          bool        `json:"newRoute"`
	SeasonalRoute     bool        `json:"seasonalRoute"`
}

// HarvestRoutes fetches routes station by station. It is the fallback
// for catalogs without inline refs and is skipped when routes already
// exist, unless force is set. Stations whose route query yields nothing
// are skipped; other upstream failures are counted and the harvest
// moves on.
func (s *Source) HarvestRoutes(ctx context.Context, airports []string, force bool) (int, error) {
	existing, err := s.store.RoutesByAirline(ctx, s.cfg.Airline)
	if err != nil {
		return 0, fmt.Errorf("count existing routes: %w", err)
	}
	if len(existing) > 0 && !force {
		s.logger.Info("routes already populated, skipping per-station fetch", zap.Int("routes", len(existing)))
		return 0, nil
	}

	s.logger.Info("fetching routes per station", zap.Int("stations", len(airports)))
	known := make(map[string]struct{}, len(airports))
	for _, iata := range airports {
		known[iata] = struct{}{}
	}

	total := 0
	failures := 0
	now := s.clock.Now()

	for i, origin := range airports {
		var entries []routeEntry
		path := s.cfg.RoutesPath + "/" + origin
		if err := s.session.GetJSON(ctx, path, nil, &entries); err != nil {
			if ctx.Err() != nil {
				return total, fmt.Errorf("fetch routes for %s: %w", origin, err)
			}
			if !errors.Is(err, upstream.ErrNoData) {
				s.logger.Warn("route fetch failed", zap.String("origin", origin), zap.Error(err))
				failures++
			}
			continue
		}

		for _, entry := range entries {
			dest := strings.TrimSpace(entry.ArrivalAirport.iata())
			if dest == "" {
				continue
			}
			if _, ok := known[dest]; !ok {
				continue
			}
			route := flight.Route{
				Origin:      origin,
				Destination: dest,
				Airline:     s.cfg.Airline,
				Connecting:  entry.ConnectingAirport != nil,
				New:         entry.NewRoute,
				Seasonal:    entry.SeasonalRoute,
				LastSeen:    now,
			}
			if err := s.store.UpsertRoute(ctx, route); err != nil {
				return total, fmt.Errorf("upsert route %s-%s: %w", origin, dest, err)
			}
			total++
		}

		if (i+1)%20 == 0 {
			s.logger.Info("route fetch progress",
				zap.Int("stations_done", i+1),
				zap.Int("stations_total", len(airports)),
				zap.Int("routes", total),
			)
		}
	}

	s.logger.Info("stored routes",
		zap.String("airline", s.cfg.Airline),
		zap.Int("routes", total),
		zap.Int("failed_stations", failures),
	)
	return total, nil
}
