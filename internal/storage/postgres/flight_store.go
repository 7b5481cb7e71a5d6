// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mossishahi/flightnet/internal/flight"
)

// Config controls the Postgres connection pool behind the flight store.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// FlightStore implements flight.Store on Postgres.
type FlightStore struct {
	pool pgxPool
}

// NewFlightStore creates a Postgres-backed store using the provided config.
func NewFlightStore(ctx context.Context, cfg Config) (*FlightStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &FlightStore{pool: pool}, nil
}

// NewFlightStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewFlightStoreWithPool(pool pgxPool) (*FlightStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &FlightStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *FlightStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS countries (
		code TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		currency TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS airports (
		iata_code TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		city TEXT NOT NULL DEFAULT '',
		country_code TEXT REFERENCES countries (code),
		latitude DOUBLE PRECISION NOT NULL DEFAULT 0,
		longitude DOUBLE PRECISION NOT NULL DEFAULT 0,
		timezone TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS routes (
		id BIGSERIAL PRIMARY KEY,
		origin TEXT NOT NULL REFERENCES airports (iata_code),
		destination TEXT NOT NULL REFERENCES airports (iata_code),
		airline TEXT NOT NULL,
		is_connecting BOOLEAN NOT NULL DEFAULT FALSE,
		new_route BOOLEAN NOT NULL DEFAULT FALSE,
		seasonal_route BOOLEAN NOT NULL DEFAULT FALSE,
		last_seen TIMESTAMPTZ NOT NULL,
		UNIQUE (origin, destination, airline)
	)`,
	`CREATE TABLE IF NOT EXISTS schedules (
		id BIGSERIAL PRIMARY KEY,
		origin TEXT NOT NULL,
		destination TEXT NOT NULL,
		airline TEXT NOT NULL,
		year INT NOT NULL,
		month INT NOT NULL,
		day INT NOT NULL,
		flight_number TEXT NOT NULL,
		departure_time TEXT NOT NULL DEFAULT '',
		arrival_time TEXT NOT NULL DEFAULT '',
		carrier TEXT NOT NULL DEFAULT '',
		scraped_at TIMESTAMPTZ NOT NULL,
		UNIQUE (origin, destination, airline, year, month, day, flight_number)
	)`,
	`CREATE TABLE IF NOT EXISTS fares (
		id BIGSERIAL PRIMARY KEY,
		origin TEXT NOT NULL,
		destination TEXT NOT NULL,
		airline TEXT NOT NULL,
		departure_date DATE NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		currency TEXT NOT NULL DEFAULT '',
		flight_number TEXT NOT NULL DEFAULT '',
		scraped_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_routes_origin ON routes (origin)`,
	`CREATE INDEX IF NOT EXISTS idx_routes_destination ON routes (destination)`,
	`CREATE INDEX IF NOT EXISTS idx_schedules_route ON schedules (origin, destination)`,
	`CREATE INDEX IF NOT EXISTS idx_fares_route ON fares (origin, destination)`,
	`CREATE INDEX IF NOT EXISTS idx_fares_departure ON fares (departure_date)`,
}

// EnsureSchema creates missing tables and indexes. Idempotent.
func (s *FlightStore) EnsureSchema(ctx context.Context) error {
	for _, ddl := range schemaDDL {
		if _, err := s.pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// UpsertCountry inserts or refreshes a country reference row.
func (s *FlightStore) UpsertCountry(ctx context.Context, c flight.Country) error {
	if c.Code == "" {
		return fmt.Errorf("country code is required")
	}
	query := `
INSERT INTO countries (code, name, currency)
VALUES ($1, $2, $3)
ON CONFLICT (code) DO UPDATE
SET name = EXCLUDED.name, currency = EXCLUDED.currency`
	if _, err := s.pool.Exec(ctx, query, c.Code, c.Name, c.Currency); err != nil {
		return fmt.Errorf("upsert country %s: %w", c.Code, err)
	}
	return nil
}

// UpsertAirport inserts or refreshes a station row.
func (s *FlightStore) UpsertAirport(ctx context.Context, a flight.Airport) error {
	if a.IATA == "" {
		return fmt.Errorf("airport iata code is required")
	}
	query := `
INSERT INTO airports (iata_code, name, city, country_code, latitude, longitude, timezone)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (iata_code) DO UPDATE
SET name = EXCLUDED.name,
    city = EXCLUDED.city,
    country_code = EXCLUDED.country_code,
    latitude = EXCLUDED.latitude,
    longitude = EXCLUDED.longitude,
    timezone = EXCLUDED.timezone`
	args := []any{a.IATA, a.Name, a.City, nullIfEmpty(a.CountryCode), a.Latitude, a.Longitude, a.Timezone}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert airport %s: %w", a.IATA, err)
	}
	return nil
}

// UpsertRoute inserts the route or refreshes its flags. last_seen never
// moves backwards.
func (s *FlightStore) UpsertRoute(ctx context.Context, r flight.Route) error {
	if r.Origin == "" || r.Destination == "" {
		return fmt.Errorf("route endpoints are required")
	}
	query := `
INSERT INTO routes (origin, destination, airline, is_connecting, new_route, seasonal_route, last_seen)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (origin, destination, airline) DO UPDATE
SET is_connecting = EXCLUDED.is_connecting,
    new_route = EXCLUDED.new_route,
    seasonal_route = EXCLUDED.seasonal_route,
    last_seen = GREATEST(routes.last_seen, EXCLUDED.last_seen)`
	args := []any{r.Origin, r.Destination, r.Airline, r.Connecting, r.New, r.Seasonal, r.LastSeen}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert route %s-%s: %w", r.Origin, r.Destination, err)
	}
	return nil
}

// RouteFreshness returns every route of the airline together with the
// newest schedule scraped_at observed for it.
func (s *FlightStore) RouteFreshness(ctx context.Context, airline string) ([]flight.RouteFreshness, error) {
	query := `
SELECT r.origin, r.destination, r.airline, r.is_connecting, r.new_route, r.seasonal_route, r.last_seen,
       MAX(sc.scraped_at) AS last_scraped
FROM routes r
LEFT JOIN schedules sc
  ON sc.origin = r.origin AND sc.destination = r.destination AND sc.airline = r.airline
WHERE r.airline = $1
GROUP BY r.origin, r.destination, r.airline, r.is_connecting, r.new_route, r.seasonal_route, r.last_seen
ORDER BY r.origin, r.destination`
	rows, err := s.pool.Query(ctx, query, airline)
	if err != nil {
		return nil, fmt.Errorf("query route freshness: %w", err)
	}
	defer rows.Close()

	var out []flight.RouteFreshness
	for rows.Next() {
		var rf flight.RouteFreshness
		var lastScraped *time.Time
		err := rows.Scan(
			&rf.Route.Origin,
			&rf.Route.Destination,
			&rf.Route.Airline,
			&rf.Route.Connecting,
			&rf.Route.New,
			&rf.Route.Seasonal,
			&rf.Route.LastSeen,
			&lastScraped,
		)
		if err != nil {
			return nil, fmt.Errorf("scan route freshness: %w", err)
		}
		rf.LastScraped = lastScraped
		out = append(out, rf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate route freshness: %w", err)
	}
	return out, nil
}

// RoutesByAirline lists the airline's directed routes.
func (s *FlightStore) RoutesByAirline(ctx context.Context, airline string) ([]flight.Route, error) {
	query := `
SELECT origin, destination, airline, is_connecting, new_route, seasonal_route, last_seen
FROM routes
WHERE airline = $1
ORDER BY origin, destination`
	rows, err := s.pool.Query(ctx, query, airline)
	if err != nil {
		return nil, fmt.Errorf("query routes: %w", err)
	}
	defer rows.Close()

	var out []flight.Route
	for rows.Next() {
		var r flight.Route
		err := rows.Scan(&r.Origin, &r.Destination, &r.Airline, &r.Connecting, &r.New, &r.Seasonal, &r.LastSeen)
		if err != nil {
			return nil, fmt.Errorf("scan route: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate routes: %w", err)
	}
	return out, nil
}

// DistinctOrigins lists the departure airports the airline serves.
func (s *FlightStore) DistinctOrigins(ctx context.Context, airline string) ([]string, error) {
	query := `SELECT DISTINCT origin FROM routes WHERE airline = $1 ORDER BY origin`
	rows, err := s.pool.Query(ctx, query, airline)
	if err != nil {
		return nil, fmt.Errorf("query origins: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var origin string
		if err := rows.Scan(&origin); err != nil {
			return nil, fmt.Errorf("scan origin: %w", err)
		}
		out = append(out, origin)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate origins: %w", err)
	}
	return out, nil
}

const upsertScheduleSQL = `
INSERT INTO schedules (origin, destination, airline, year, month, day, flight_number, departure_time, arrival_time, carrier, scraped_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (origin, destination, airline, year, month, day, flight_number) DO UPDATE
SET departure_time = EXCLUDED.departure_time,
    arrival_time = EXCLUDED.arrival_time,
    carrier = EXCLUDED.carrier,
    scraped_at = EXCLUDED.scraped_at`

const insertFareSQL = `
INSERT INTO fares (origin, destination, airline, departure_date, price, currency, flight_number, scraped_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// SaveBatch persists schedule upserts and fare appends in a single
// transaction. Schedules replace the prior row for their day, fares are
// append-only.
func (s *FlightStore) SaveBatch(ctx context.Context, schedules []flight.ScheduleEntry, fares []flight.FareQuote) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("flight store is not configured")
	}
	if len(schedules) == 0 && len(fares) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, entry := range schedules {
		args := []any{
			entry.Origin,
			entry.Destination,
			entry.Airline,
			entry.Year,
			entry.Month,
			entry.Day,
			entry.FlightNumber,
			entry.DepartureTime,
			entry.ArrivalTime,
			entry.Carrier,
			entry.ScrapedAt,
		}
		if _, err := tx.Exec(ctx, upsertScheduleSQL, args...); err != nil {
			return fmt.Errorf("upsert schedule %s-%s %04d-%02d-%02d: %w",
				entry.Origin, entry.Destination, entry.Year, entry.Month, entry.Day, err)
		}
	}
	for _, q := range fares {
		args := []any{
			q.Origin,
			q.Destination,
			q.Airline,
			q.DepartureDate,
			q.Price,
			q.Currency,
			q.FlightNumber,
			q.ScrapedAt,
		}
		if _, err := tx.Exec(ctx, insertFareSQL, args...); err != nil {
			return fmt.Errorf("insert fare %s-%s: %w", q.Origin, q.Destination, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

var countTables = []string{"countries", "airports", "routes", "schedules", "fares"}

// TableCounts returns row counts per table for the status surface.
func (s *FlightStore) TableCounts(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64, len(countTables))
	for _, table := range countTables {
		var n int64
		if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}

// RouteStats aggregates the network per airline.
func (s *FlightStore) RouteStats(ctx context.Context) ([]flight.RouteStat, error) {
	query := `
SELECT airline, COUNT(*), COUNT(DISTINCT origin), COUNT(DISTINCT destination), MAX(last_seen)
FROM routes
GROUP BY airline
ORDER BY airline`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query route stats: %w", err)
	}
	defer rows.Close()

	var out []flight.RouteStat
	for rows.Next() {
		var stat flight.RouteStat
		err := rows.Scan(&stat.Airline, &stat.Routes, &stat.Origins, &stat.Destinations, &stat.LastSeen)
		if err != nil {
			return nil, fmt.Errorf("scan route stat: %w", err)
		}
		out = append(out, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate route stats: %w", err)
	}
	return out, nil
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
