package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mossishahi/flightnet/internal/flight"
	"github.com/mossishahi/flightnet/internal/upstream"
)

type scheduleMonth struct {
	Days []scheduleDay `json:"days"`
}

type scheduleDay struct {
	Day     int              `json:"day"`
	Flights []scheduleFlight `json:"flights"`
}

type scheduleFlight struct {
	Number        string `json:"number"`
	DepartureTime string `json:"departureTime"`
	ArrivalTime   string `json:"arrivalTime"`
	CarrierCode   string `json:"carrierCode"`
}

// HarvestSchedules fetches the month-granular timetable for every known
// route of the catalog airline, covering the next cfg.Months calendar
// months. Each route's rows are committed in one batch; a limit > 0
// caps the number of routes. Returns the number of rows stored.
func (s *Source) HarvestSchedules(ctx context.Context, limit int) (int, error) {
	routes, err := s.store.RoutesByAirline(ctx, s.cfg.Airline)
	if err != nil {
		return 0, fmt.Errorf("list routes: %w", err)
	}
	if limit > 0 && len(routes) > limit {
		routes = routes[:limit]
	}

	now := s.clock.Now()
	months := forthcomingMonths(now, s.cfg.Months)
	s.logger.Info("fetching schedules",
		zap.String("airline", s.cfg.Airline),
		zap.Int("routes", len(routes)),
		zap.Int("months", len(months)),
	)

	total := 0
	failures := 0

	for i, route := range routes {
		var rows []flight.ScheduleEntry

		for _, ym := range months {
			path := fmt.Sprintf("%s/%s/%s/years/%d/months/%d",
				s.cfg.SchedulesPath, route.Origin, route.Destination, ym.year, int(ym.month))

			var month scheduleMonth
			if err := s.session.GetJSON(ctx, path, nil, &month); err != nil {
				if ctx.Err() != nil {
					return total, fmt.Errorf("fetch schedule %s-%s: %w", route.Origin, route.Destination, err)
				}
				if !errors.Is(err, upstream.ErrNoData) {
					failures++
				}
				continue
			}

			for _, day := range month.Days {
				for _, fl := range day.Flights {
					carrier := fl.CarrierCode
					if carrier == "" {
						carrier = s.cfg.Airline
					}
					rows = append(rows, flight.ScheduleEntry{
						Origin:        route.Origin,
						Destination:   route.Destination,
						Airline:       s.cfg.Airline,
						Year:          ym.year,
						Month:         int(ym.month),
						Day:           day.Day,
						FlightNumber:  fl.Number,
						DepartureTime: fl.DepartureTime,
						ArrivalTime:   fl.ArrivalTime,
						Carrier:       carrier,
						ScrapedAt:     now,
					})
				}
			}
		}

		if len(rows) > 0 {
			if err := s.store.SaveBatch(ctx, rows, nil); err != nil {
				return total, fmt.Errorf("save schedules %s-%s: %w", route.Origin, route.Destination, err)
			}
			total += len(rows)
		}

		if (i+1)%50 == 0 {
			s.logger.Info("schedule fetch progress",
				zap.Int("routes_done", i+1),
				zap.Int("routes_total", len(routes)),
				zap.Int("rows", total),
			)
		}
	}

	s.logger.Info("stored schedules",
		zap.String("airline", s.cfg.Airline),
		zap.Int("rows", total),
		zap.Int("failed_fetches", failures),
	)
	return total, nil
}

type yearMonth struct {
	year  int
	month time.Month
}

// forthcomingMonths returns count consecutive calendar months starting
// from the month containing now.
func forthcomingMonths(now time.Time, count int) []yearMonth {
	months := make([]yearMonth, 0, count)
	for i := 0; i < count; i++ {
		m := time.Date(now.Year(), now.Month()+time.Month(i), 1, 0, 0, 0, 0, time.UTC)
		months = append(months, yearMonth{year: m.Year(), month: m.Month()})
	}
	return months
}
