package flight

import (
	"context"
	"time"
)

// Store is the persistence boundary for the harvester. Exactly one writer
// goroutine calls SaveBatch during a schedule run; the topology harvest
// runs single-threaded, so implementations only need to serialize, not
// coordinate, concurrent mutation.
type Store interface {
	// EnsureSchema creates missing tables and indexes. Idempotent.
	EnsureSchema(ctx context.Context) error

	UpsertCountry(ctx context.Context, c Country) error
	UpsertAirport(ctx context.Context, a Airport) error
	// UpsertRoute inserts the route or refreshes its flags and LastSeen.
	// LastSeen never moves backwards.
	UpsertRoute(ctx context.Context, r Route) error

	// RouteFreshness returns every route of the airline together with the
	// newest schedule scraped_at observed for it, if any.
	RouteFreshness(ctx context.Context, airline string) ([]RouteFreshness, error)
	RoutesByAirline(ctx context.Context, airline string) ([]Route, error)
	// DistinctOrigins lists the departure airports the airline serves.
	DistinctOrigins(ctx context.Context, airline string) ([]string, error)

	// SaveBatch persists schedule upserts and fare appends in a single
	// transaction.
	SaveBatch(ctx context.Context, schedules []ScheduleEntry, fares []FareQuote) error

	TableCounts(ctx context.Context) (map[string]int64, error)
	RouteStats(ctx context.Context) ([]RouteStat, error)

	Close()
}

// RouteStat is one row of the per-airline summary.
type RouteStat struct {
	Airline      string
	Routes       int64
	Origins      int64
	Destinations int64
	LastSeen     time.Time
}

// BlobStore archives raw upstream payloads and returns a provider URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher emits run-summary events to an external topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Clock abstracts wall-clock access so planners and stamps are testable.
type Clock interface {
	Now() time.Time
}

// Hasher fingerprints payload bytes for archive object names.
type Hasher interface {
	Hash(data []byte) string
}

// IDGenerator mints run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}
