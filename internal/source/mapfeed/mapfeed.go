// Package mapfeed implements the map-driven airline source. A single GET
// to the map endpoint yields the whole network (cities with connection
// lists); schedules and fares come from a bidirectional timetable POST
// behind a version-qualified base URL discovered at runtime.
package mapfeed

// Config holds the endpoints of the map-driven source. Both paths are
// resolved against the session's discovered base URL.
type Config struct {
	Airline       string
	MapPath       string
	TimetablePath string
}

// Defaults for the map-driven source.
const (
	DefaultAirline       = "XM"
	DefaultMapPath       = "/asset/map"
	DefaultTimetablePath = "/search/timetable"
)

func (c Config) withDefaults() Config {
	if c.Airline == "" {
		c.Airline = DefaultAirline
	}
	if c.MapPath == "" {
		c.MapPath = DefaultMapPath
	}
	if c.TimetablePath == "" {
		c.TimetablePath = DefaultTimetablePath
	}
	return c
}
