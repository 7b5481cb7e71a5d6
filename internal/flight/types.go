package flight

import "time"

// Country is a country reference row keyed by ISO-ish country code.
type Country struct {
	Code     string
	Name     string
	Currency string
}

// Airport is a station in the network, keyed by IATA code.
type Airport struct {
	IATA        string
	Name        string
	City        string
	CountryCode string
	Latitude    float64
	Longitude   float64
	Timezone    string
}

// Route is a directed edge of the network. (Origin, Destination, Airline)
// is unique; LastSeen records the most recent topology harvest that
// observed the route and never moves backwards.
type Route struct {
	Origin      string
	Destination string
	Airline     string
	Connecting  bool
	New         bool
	Seasonal    bool
	LastSeen    time.Time
}

// ScheduleEntry is one departure on one calendar day. The row is keyed by
// (Origin, Destination, Airline, Year, Month, Day, FlightNumber) and
// upserted: a re-fetch replaces the prior row, no history is kept.
type ScheduleEntry struct {
	Origin        string
	Destination   string
	Airline       string
	Year          int
	Month         int
	Day           int
	FlightNumber  string
	DepartureTime string
	ArrivalTime   string
	Carrier       string
	ScrapedAt     time.Time
}

// FareQuote is one observed price. Fares are append-only: every harvest
// adds rows, forming a price time series, so there is no unique key.
type FareQuote struct {
	Origin        string
	Destination   string
	Airline       string
	DepartureDate string
	Price         float64
	Currency      string
	FlightNumber  string
	ScrapedAt     time.Time
}

// Batch carries the rows parsed from one fetch to the writer.
type Batch struct {
	Schedules []ScheduleEntry
	Fares     []FareQuote
}

// Empty reports whether the batch carries no rows at all.
func (b Batch) Empty() bool {
	return len(b.Schedules) == 0 && len(b.Fares) == 0
}

// RunSummary is the event published at the end of a harvest run.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	Source     string    `json:"source"`
	Airline    string    `json:"airline"`
	PairsDone  int64     `json:"pairs_done"`
	PairsTotal int64     `json:"pairs_total"`
	Schedules  int64     `json:"schedules"`
	Fares      int64     `json:"fares"`
	Errors     int64     `json:"errors"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Partial    bool      `json:"partial"`
}
