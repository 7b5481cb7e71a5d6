// Package catalog implements the catalog-driven airline source: a
// station catalog GET with inline destination refs (plus a per-station
// route query as fallback), month-granular schedule GETs and a one-way
// fare search. Unlike the map-driven source it runs single-threaded
// against a static base URL, with sequential per-station commits.
package catalog

import (
	"go.uber.org/zap"

	"github.com/mossishahi/flightnet/internal/flight"
	"github.com/mossishahi/flightnet/internal/upstream"
)

// Config holds the endpoints and tuning of the catalog source. Paths
// are resolved against the session base URL; any of them may instead be
// a full absolute URL when an endpoint lives on a different host.
type Config struct {
	Airline              string
	StationsPath         string
	StationsFallbackPath string
	RoutesPath           string
	SchedulesPath        string
	FaresPath            string
	FaresFallbackPath    string
	Months               int
	FareHorizonDays      int
	FarePriceCap         int
	FarePageLimit        int
}

// Defaults for the catalog source.
const (
	DefaultAirline              = "XC"
	DefaultStationsPath         = "/views/locate/3/airports/active"
	DefaultStationsFallbackPath = "/views/locate/5/airports/active"
	DefaultRoutesPath           = "/views/locate/searchWidget/routes/airport"
	DefaultSchedulesPath        = "/timtbl/3/schedules"
	DefaultFaresPath            = "/farfnd/v4/oneWayFares"
	DefaultFaresFallbackPath    = "/farfnd/3/oneWayFares"
	DefaultMonths               = 3
	DefaultFareHorizonDays      = 180
	DefaultFarePriceCap         = 1000
	DefaultFarePageLimit        = 200
)

func (c Config) withDefaults() Config {
	if c.Airline == "" {
		c.Airline = DefaultAirline
	}
	if c.StationsPath == "" {
		c.StationsPath = DefaultStationsPath
	}
	if c.StationsFallbackPath == "" {
		c.StationsFallbackPath = DefaultStationsFallbackPath
	}
	if c.RoutesPath == "" {
		c.RoutesPath = DefaultRoutesPath
	}
	if c.SchedulesPath == "" {
		c.SchedulesPath = DefaultSchedulesPath
	}
	if c.FaresPath == "" {
		c.FaresPath = DefaultFaresPath
	}
	if c.FaresFallbackPath == "" {
		c.FaresFallbackPath = DefaultFaresFallbackPath
	}
	if c.Months <= 0 {
		c.Months = DefaultMonths
	}
	if c.FareHorizonDays <= 0 {
		c.FareHorizonDays = DefaultFareHorizonDays
	}
	if c.FarePriceCap <= 0 {
		c.FarePriceCap = DefaultFarePriceCap
	}
	if c.FarePageLimit <= 0 {
		c.FarePageLimit = DefaultFarePageLimit
	}
	return c
}

// Source harvests the catalog airline. All calls share one session and
// therefore the global throttle; none of them require discovery.
type Source struct {
	cfg     Config
	session *upstream.Session
	store   flight.Store
	clock   flight.Clock
	logger  *zap.Logger
}

// NewSource creates a catalog harvester.
func NewSource(session *upstream.Session, store flight.Store, cfg Config, clk flight.Clock, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{
		cfg:     cfg.withDefaults(),
		session: session,
		store:   store,
		clock:   clk,
		logger:  logger.Named("catalog"),
	}
}

// stationRef is the nested airport reference used by route and fare
// responses. Older endpoint versions use iataCode, newer ones code.
type stationRef struct {
	IATACode string `json:"iataCode"`
	Code     string `json:"code"`
}

func (r stationRef) iata() string {
	if r.IATACode != "" {
		return r.IATACode
	}
	return r.Code
}
