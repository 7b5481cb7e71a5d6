package mapfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mossishahi/flightnet/internal/flight"
	"github.com/mossishahi/flightnet/internal/upstream"
)

const (
	timetablePriceType = "regular"
	defaultCurrency    = "EUR"
	departureLayout    = "2006-01-02"
)

// Timetable fetches and parses bidirectional timetable windows. Each
// worker owns one Timetable (sessions are not concurrency-safe); the
// archiver and the run stamp are shared across all of them.
type Timetable struct {
	cfg       Config
	session   *upstream.Session
	archive   *Archiver
	scrapedAt time.Time
	logger    *zap.Logger
}

// NewTimetable creates a timetable fetcher bound to one session. All
// rows of a run carry the same scrapedAt stamp so freshness queries see
// the run as a single observation.
func NewTimetable(session *upstream.Session, cfg Config, archive *Archiver, scrapedAt time.Time, logger *zap.Logger) *Timetable {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Timetable{
		cfg:       cfg.withDefaults(),
		session:   session,
		archive:   archive,
		scrapedAt: scrapedAt,
		logger:    logger.Named("timetable"),
	}
}

type timetablePayload struct {
	FlightList  []timetableLeg `json:"flightList"`
	PriceType   string         `json:"priceType"`
	AdultCount  int            `json:"adultCount"`
	ChildCount  int            `json:"childCount"`
	InfantCount int            `json:"infantCount"`
}

type timetableLeg struct {
	DepartureStation string `json:"departureStation"`
	ArrivalStation   string `json:"arrivalStation"`
	From             string `json:"from"`
	To               string `json:"to"`
}

type timetableResponse struct {
	OutboundFlights []timetableFlight `json:"outboundFlights"`
	ReturnFlights   []timetableFlight `json:"returnFlights"`
}

type timetableFlight struct {
	DepartureDates []string        `json:"departureDates"`
	Price          *timetablePrice `json:"price"`
}

type timetablePrice struct {
	Amount       *float64 `json:"amount"`
	CurrencyCode string   `json:"currencyCode"`
}

// buildPayload requests both directions of the pair in one call, halving
// the number of upstream requests needed to cover a route set.
func buildPayload(pair flight.RoutePair, w flight.Window) timetablePayload {
	return timetablePayload{
		FlightList: []timetableLeg{
			{DepartureStation: pair.Origin, ArrivalStation: pair.Destination, From: w.FromDate(), To: w.ToDate()},
			{DepartureStation: pair.Destination, ArrivalStation: pair.Origin, From: w.FromDate(), To: w.ToDate()},
		},
		PriceType:   timetablePriceType,
		AdultCount:  1,
		ChildCount:  0,
		InfantCount: 0,
	}
}

// FetchWindow POSTs one (pair, window) timetable request and parses both
// directions into a batch. ErrNoData and ErrExhausted pass through for
// the caller to classify; an archiver failure never fails the fetch.
func (t *Timetable) FetchWindow(ctx context.Context, pair flight.RoutePair, w flight.Window) (flight.Batch, error) {
	raw, err := t.session.Post(ctx, t.cfg.TimetablePath, buildPayload(pair, w))
	if err != nil {
		return flight.Batch{}, fmt.Errorf("timetable %s-%s %s: %w", pair.Origin, pair.Destination, w.FromDate(), err)
	}

	if t.archive != nil {
		t.archive.Store(ctx, pair, w, raw)
	}

	var resp timetableResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return flight.Batch{}, fmt.Errorf("decode timetable %s-%s: %w", pair.Origin, pair.Destination, err)
	}

	var batch flight.Batch
	sched, fares := t.parseFlights(resp.OutboundFlights, pair.Origin, pair.Destination)
	batch.Schedules = append(batch.Schedules, sched...)
	batch.Fares = append(batch.Fares, fares...)

	sched, fares = t.parseFlights(resp.ReturnFlights, pair.Destination, pair.Origin)
	batch.Schedules = append(batch.Schedules, sched...)
	batch.Fares = append(batch.Fares, fares...)

	return batch, nil
}

// parseFlights flattens one direction's entries into schedule and fare
// rows. Malformed departure timestamps skip that departure only; rows
// already parsed are kept. A fare row is emitted per departure only when
// the entry carries a price amount.
func (t *Timetable) parseFlights(entries []timetableFlight, origin, dest string) ([]flight.ScheduleEntry, []flight.FareQuote) {
	var schedules []flight.ScheduleEntry
	var fares []flight.FareQuote

	for _, entry := range entries {
		var amount *float64
		currency := defaultCurrency
		if entry.Price != nil {
			amount = entry.Price.Amount
			if entry.Price.CurrencyCode != "" {
				currency = entry.Price.CurrencyCode
			}
		}

		for _, dep := range entry.DepartureDates {
			parts := strings.Split(dep, "T")
			if len(parts) != 2 {
				continue
			}
			datePart, timePart := parts[0], parts[1]

			day, err := time.Parse(departureLayout, datePart)
			if err != nil {
				t.logger.Debug("skipping malformed departure date", zap.String("value", dep))
				continue
			}

			number := flightNumber(t.cfg.Airline, timePart)
			schedules = append(schedules, flight.ScheduleEntry{
				Origin:        origin,
				Destination:   dest,
				Airline:       t.cfg.Airline,
				Year:          day.Year(),
				Month:         int(day.Month()),
				Day:           day.Day(),
				FlightNumber:  number,
				DepartureTime: timePart,
				Carrier:       t.cfg.Airline,
				ScrapedAt:     t.scrapedAt,
			})

			if amount != nil {
				fares = append(fares, flight.FareQuote{
					Origin:        origin,
					Destination:   dest,
					Airline:       t.cfg.Airline,
					DepartureDate: datePart,
					Price:         *amount,
					Currency:      currency,
					FlightNumber:  number,
					ScrapedAt:     t.scrapedAt,
				})
			}
		}
	}
	return schedules, fares
}

// flightNumber derives a synthetic flight number from the departure
// time. The upstream timetable omits real flight numbers, and the
// HHMM-of-departure is stable enough to key a (route, day) upsert.
func flightNumber(airline, timePart string) string {
	digits := strings.ReplaceAll(timePart, ":", "")
	if len(digits) > 4 {
		digits = digits[:4]
	}
	return airline + "-" + digits
}
