package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mossishahi/flightnet/internal/flight"
	"github.com/mossishahi/flightnet/internal/upstream"
)

type faresResponse struct {
	Fares []fareEntry `json:"fares"`
}

type fareEntry struct {
	Outbound fareOutbound `json:"outbound"`
}

type fareOutbound struct {
	DepartureDate  string     `json:"departureDate"`
	ArrivalDate    string     `json:"arrivalDate"`
	FlightNumber   string     `json:"flightNumber"`
	ArrivalAirport stationRef `json:"arrivalAirport"`
	Price          *farePrice `json:"price"`
}

type farePrice struct {
	Value        *float64 `json:"value"`
	CurrencyCode string   `json:"currencyCode"`
}

// HarvestFares runs the one-way fare search from each departure airport
// over the configured horizon and appends the results. The fallback
// endpoint is tried per airport when the primary fails or returns no
// fares; an airport failing both is counted and skipped. Returns the
// number of fare rows stored.
func (s *Source) HarvestFares(ctx context.Context, airports []string, limit int) (int, error) {
	if limit > 0 && len(airports) > limit {
		airports = airports[:limit]
	}

	now := s.clock.Now()
	dateFrom := now.Format("2006-01-02")
	dateTo := now.AddDate(0, 0, s.cfg.FareHorizonDays).Format("2006-01-02")

	s.logger.Info("fetching fares",
		zap.String("airline", s.cfg.Airline),
		zap.Int("airports", len(airports)),
		zap.String("from", dateFrom),
		zap.String("to", dateTo),
	)

	total := 0
	failures := 0

	for i, origin := range airports {
		query := url.Values{
			"departureAirportIataCode":  []string{origin},
			"language":                  []string{"en"},
			"market":                    []string{"en-gb"},
			"offset":                    []string{"0"},
			"limit":                     []string{strconv.Itoa(s.cfg.FarePageLimit)},
			"outboundDepartureDateFrom": []string{dateFrom},
			"outboundDepartureDateTo":   []string{dateTo},
			"priceValueTo":              []string{strconv.Itoa(s.cfg.FarePriceCap)},
		}

		resp, err := s.fetchFares(ctx, query)
		if err != nil {
			if ctx.Err() != nil {
				return total, fmt.Errorf("fetch fares for %s: %w", origin, err)
			}
			if !errors.Is(err, upstream.ErrNoData) {
				s.logger.Warn("fare search failed", zap.String("origin", origin), zap.Error(err))
				failures++
			}
			continue
		}

		rows := s.parseFares(origin, resp.Fares, now)
		if len(rows) > 0 {
			if err := s.store.SaveBatch(ctx, nil, rows); err != nil {
				return total, fmt.Errorf("save fares for %s: %w", origin, err)
			}
			total += len(rows)
		}

		if (i+1)%20 == 0 {
			s.logger.Info("fare fetch progress",
				zap.Int("airports_done", i+1),
				zap.Int("airports_total", len(airports)),
				zap.Int("fares", total),
			)
		}
	}

	s.logger.Info("stored fares",
		zap.String("airline", s.cfg.Airline),
		zap.Int("fares", total),
		zap.Int("failed_airports", failures),
	)
	return total, nil
}

// fetchFares tries the primary search endpoint and falls back to the
// legacy one when the primary fails or returns no fares.
func (s *Source) fetchFares(ctx context.Context, query url.Values) (faresResponse, error) {
	var resp faresResponse
	err := s.session.GetJSON(ctx, s.cfg.FaresPath, query, &resp)
	if err == nil && len(resp.Fares) > 0 {
		return resp, nil
	}
	if err != nil && ctx.Err() != nil {
		return faresResponse{}, err
	}

	resp = faresResponse{}
	if err := s.session.GetJSON(ctx, s.cfg.FaresFallbackPath, query, &resp); err != nil {
		return faresResponse{}, err
	}
	return resp, nil
}

// parseFares keeps entries with a destination and a price; the fare
// date is the calendar day of the outbound departure.
func (s *Source) parseFares(origin string, entries []fareEntry, scrapedAt time.Time) []flight.FareQuote {
	var rows []flight.FareQuote
	for _, entry := range entries {
		out := entry.Outbound
		dest := strings.TrimSpace(out.ArrivalAirport.iata())
		if dest == "" || out.Price == nil || out.Price.Value == nil {
			continue
		}
		currency := out.Price.CurrencyCode
		if currency == "" {
			currency = "EUR"
		}
		rows = append(rows, flight.FareQuote{
			Origin:        origin,
			Destination:   dest,
			Airline:       s.cfg.Airline,
			DepartureDate: strings.SplitN(out.DepartureDate, "T", 2)[0],
			Price:         *out.Price.Value,
			Currency:      currency,
			FlightNumber:  out.FlightNumber,
			ScrapedAt:     scrapedAt,
		})
	}
	return rows
}
