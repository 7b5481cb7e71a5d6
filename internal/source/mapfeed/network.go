package mapfeed

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/mossishahi/flightnet/internal/flight"
	"github.com/mossishahi/flightnet/internal/upstream"
)

// mapLanguageCode selects the locale of the map payload. Station data is
// language-independent; en-gb keeps display names ASCII-friendly.
const mapLanguageCode = "en-gb"

// Network harvests the airline's topology from the map endpoint:
// countries, airports and routes in a single upstream call.
type Network struct {
	cfg     Config
	session *upstream.Session
	store   flight.Store
	clock   flight.Clock
	logger  *zap.Logger
}

// NewNetwork creates a topology harvester for the map-driven source.
func NewNetwork(session *upstream.Session, store flight.Store, cfg Config, clk flight.Clock, logger *zap.Logger) *Network {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Network{
		cfg:     cfg.withDefaults(),
		session: session,
		store:   store,
		clock:   clk,
		logger:  logger.Named("mapfeed"),
	}
}

// NetworkResult summarizes one topology harvest.
type NetworkResult struct {
	Countries int
	Airports  int
	Routes    int
	Fakes     int
}

type mapResponse struct {
	Cities []mapCity `json:"cities"`
}

type mapCity struct {
	IATA          string          `json:"iata"`
	ShortName     string          `json:"shortName"`
	CountryCode   string          `json:"countryCode"`
	CountryName   string          `json:"countryName"`
	CurrencyCode  string          `json:"currencyCode"`
	Latitude      float64         `json:"latitude"`
	Longitude     float64         `json:"longitude"`
	IsFakeStation bool            `json:"isFakeStation"`
	Connections   []mapConnection `json:"connections"`
}

type mapConnection struct {
	IATA        string `json:"iata"`
	IsNew       bool   `json:"isNew"`
	IsConnected bool   `json:"isConnected"`
}

// Harvest fetches the map payload and persists countries, airports and
// routes. Fake stations (marketing-only metro codes) are dropped on both
// ends of every connection. Airports are written before routes so the
// route foreign keys always resolve.
func (n *Network) Harvest(ctx context.Context) (NetworkResult, error) {
	n.logger.Info("fetching map data", zap.String("airline", n.cfg.Airline))

	query := url.Values{"languageCode": []string{mapLanguageCode}}
	var resp mapResponse
	if err := n.session.GetJSON(ctx, n.cfg.MapPath, query, &resp); err != nil {
		return NetworkResult{}, fmt.Errorf("fetch map data: %w", err)
	}
	if len(resp.Cities) == 0 {
		return NetworkResult{}, fmt.Errorf("map data contains no cities")
	}

	fakes := make(map[string]struct{})
	for _, city := range resp.Cities {
		if city.IsFakeStation {
			fakes[city.IATA] = struct{}{}
		}
	}
	if len(fakes) > 0 {
		n.logger.Info("filtering fake stations",
			zap.Int("count", len(fakes)),
			zap.Strings("iatas", sortedKeys(fakes)),
		)
	}

	result := NetworkResult{Fakes: len(fakes)}
	known := make(map[string]struct{}, len(resp.Cities))
	countriesSeen := make(map[string]struct{})
	now := n.clock.Now()

	for _, city := range resp.Cities {
		iata := strings.TrimSpace(city.IATA)
		if iata == "" {
			continue
		}
		if _, fake := fakes[city.IATA]; fake {
			continue
		}

		cc := strings.ToUpper(city.CountryCode)
		if cc != "" {
			if _, seen := countriesSeen[cc]; !seen {
				country := flight.Country{Code: cc, Name: city.CountryName, Currency: city.CurrencyCode}
				if err := n.store.UpsertCountry(ctx, country); err != nil {
					return result, fmt.Errorf("upsert country %s: %w", cc, err)
				}
				countriesSeen[cc] = struct{}{}
				result.Countries++
			}
		}

		airport := flight.Airport{
			IATA:        iata,
			Name:        city.ShortName,
			City:        city.ShortName,
			CountryCode: cc,
			Latitude:    city.Latitude,
			Longitude:   city.Longitude,
		}
		if err := n.store.UpsertAirport(ctx, airport); err != nil {
			return result, fmt.Errorf("upsert airport %s: %w", iata, err)
		}
		known[iata] = struct{}{}
		result.Airports++
	}

	for _, city := range resp.Cities {
		origin := strings.TrimSpace(city.IATA)
		if _, ok := known[origin]; !ok {
			continue
		}

		for _, conn := range city.Connections {
			dest := strings.TrimSpace(conn.IATA)
			// Connections can reference stations absent from the city
			// list; skipping them keeps the route foreign keys valid.
			if _, ok := known[dest]; !ok {
				continue
			}
			route := flight.Route{
				Origin:      origin,
				Destination: dest,
				Airline:     n.cfg.Airline,
				Connecting:  conn.IsConnected,
				New:         conn.IsNew,
				LastSeen:    now,
			}
			if err := n.store.UpsertRoute(ctx, route); err != nil {
				return result, fmt.Errorf("upsert route %s-%s: %w", origin, dest, err)
			}
			result.Routes++
		}
	}

	n.logger.Info("stored network topology",
		zap.String("airline", n.cfg.Airline),
		zap.Int("countries", result.Countries),
		zap.Int("airports", result.Airports),
		zap.Int("routes", result.Routes),
	)
	return result, nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
