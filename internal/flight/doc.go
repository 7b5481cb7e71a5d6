// Package flight defines the domain model shared across the harvester:
// network entities (countries, airports, routes), harvested rows
// (schedules, fares), the crawl-planning helpers that turn known routes
// into work (stale selection, pair deduplication, date windows), and the
// interfaces the engine depends on (store, blob archive, publisher,
// clock). Implementations live under internal/storage, internal/publisher
// and internal/clock.
package flight
