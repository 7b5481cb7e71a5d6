package harvest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	collyfetcher "github.com/mossishahi/flightnet/internal/fetcher/colly"
	"github.com/mossishahi/flightnet/internal/flight"
	sha256hash "github.com/mossishahi/flightnet/internal/hash/sha256"
	"github.com/mossishahi/flightnet/internal/metrics"
	pubmem "github.com/mossishahi/flightnet/internal/publisher/memory"
	storagemem "github.com/mossishahi/flightnet/internal/storage/memory"
	"github.com/mossishahi/flightnet/internal/upstream"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type fixedID struct{ id string }

func (g fixedID) NewID() (string, error) { return g.id, nil }

var runStart = time.Date(2026, 3, 20, 8, 0, 0, 0, time.UTC)

// One priced outbound and one unpriced return per task: two schedule
// rows and one fare row each.
const timetableBody = `{
  "outboundFlights": [
    {"departureDates": ["2026-04-01T06:25:00"], "price": {"amount": 19.99, "currencyCode": "EUR"}}
  ],
  "returnFlights": [
    {"departureDates": ["2026-04-01T09:10:00"]}
  ]
}`

func newTimetableServer(t *testing.T, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/search/timetable", r.URL.Path)
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, timetableBody)
	}))
	t.Cleanup(server.Close)
	return server
}

func seedRoutes(t *testing.T, store *storagemem.FlightStore, legs ...[2]string) {
	t.Helper()
	for _, leg := range legs {
		require.NoError(t, store.UpsertRoute(context.Background(), flight.Route{
			Origin:      leg[0],
			Destination: leg[1],
			Airline:     "XM",
			LastSeen:    runStart,
		}))
	}
}

func runnerConfig(baseURL string) Config {
	return Config{
		Workers:        2,
		Windows:        2,
		WindowDays:     1,
		QueueDepth:     4,
		ReportInterval: time.Minute,
		Session: upstream.Config{
			Source:       "mapfeed",
			BaseURL:      baseURL,
			GetAttempts:  1,
			PostAttempts: 1,
		},
	}
}

func TestRunnerHarvestsStalePairs(t *testing.T) {
	metrics.Init()
	var hits atomic.Int64
	server := newTimetableServer(t, &hits)

	store := storagemem.NewFlightStore()
	seedRoutes(t, store, [2]string{"VIE", "BCN"}, [2]string{"BCN", "VIE"}, [2]string{"VIE", "OTP"})
	blobs := storagemem.NewBlobStore()
	publisher := pubmem.New()

	cfg := runnerConfig(server.URL)
	cfg.ArchivePrefix = "raw"
	cfg.Topic = "flightnet-runs"
	runner := NewRunner(cfg, Deps{
		Store:     store,
		Blobs:     blobs,
		Hasher:    sha256hash.New(),
		IDs:       fixedID{"run-7"},
		Clock:     fixedClock{runStart},
		Publisher: publisher,
		Logger:    zap.NewNop(),
	})

	summary, err := runner.Run(context.Background())
	require.NoError(t, err)

	// Three directed routes fold into two pairs, each fetched over two
	// windows.
	assert.Equal(t, int64(2), summary.PairsTotal)
	assert.Equal(t, int64(2), summary.PairsDone)
	assert.Equal(t, int64(8), summary.Schedules)
	assert.Equal(t, int64(4), summary.Fares)
	assert.Zero(t, summary.Errors)
	assert.False(t, summary.Partial)
	assert.Equal(t, "run-7", summary.RunID)
	assert.Equal(t, "mapfeed", summary.Source)
	assert.Equal(t, "XM", summary.Airline)
	assert.Equal(t, int64(4), hits.Load())

	// Identical dates across windows upsert onto the same four rows;
	// fares append once per task.
	assert.Len(t, store.Schedules(), 4)
	assert.Len(t, store.Fares(), 4)

	// One raw archive object per task.
	assert.Len(t, blobs.Paths(), 4)

	messages := publisher.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "flightnet-runs", messages[0].Topic)
	var published flight.RunSummary
	require.NoError(t, json.Unmarshal(messages[0].Payload, &published))
	assert.Equal(t, "run-7", published.RunID)
	assert.Equal(t, int64(8), published.Schedules)
	assert.True(t, published.StartedAt.Equal(runStart))
}

func TestRunnerProbesDiscoveryOnce(t *testing.T) {
	metrics.Init()
	var hits, probes atomic.Int64
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		probes.Add(1)
		fmt.Fprintf(w, `<html><script>var config = {"apiUrl":"%s"};</script></html>`, server.URL)
	})
	mux.HandleFunc("/search/timetable", func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, timetableBody)
	})

	disc, err := upstream.NewDiscoverer(
		server.URL+"/",
		`"apiUrl":"([^"]+)"`,
		collyfetcher.New(collyfetcher.Config{Timeout: 5 * time.Second}),
		nil, nil, zap.NewNop(),
	)
	require.NoError(t, err)

	store := storagemem.NewFlightStore()
	seedRoutes(t, store, [2]string{"VIE", "BCN"}, [2]string{"VIE", "OTP"})

	cfg := runnerConfig("")
	runner := NewRunner(cfg, Deps{
		Store:      store,
		Discoverer: disc,
		IDs:        fixedID{"run-8"},
		Clock:      fixedClock{runStart},
		Logger:     zap.NewNop(),
	})

	summary, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), probes.Load())
	assert.Equal(t, int64(4), hits.Load())
	assert.Equal(t, int64(2), summary.PairsDone)
	assert.False(t, summary.Partial)
}

func TestRunnerFailsWhenProbeImpossible(t *testing.T) {
	metrics.Init()
	runner := NewRunner(runnerConfig(""), Deps{
		Store: storagemem.NewFlightStore(),
		IDs:   fixedID{"run-9"},
		Clock: fixedClock{runStart},
	})

	_, err := runner.Run(context.Background())
	require.ErrorIs(t, err, upstream.ErrDiscovery)
}

func TestRunnerHonorsPairLimit(t *testing.T) {
	metrics.Init()
	var hits atomic.Int64
	server := newTimetableServer(t, &hits)

	store := storagemem.NewFlightStore()
	seedRoutes(t, store, [2]string{"BCN", "VIE"}, [2]string{"OTP", "VIE"}, [2]string{"LTN", "VIE"})

	cfg := runnerConfig(server.URL)
	cfg.Limit = 1
	runner := NewRunner(cfg, Deps{
		Store: store,
		IDs:   fixedID{"run-10"},
		Clock: fixedClock{runStart},
	})

	summary, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), summary.PairsTotal)
	assert.Equal(t, int64(1), summary.PairsDone)
	assert.Equal(t, int64(2), hits.Load())
}

func TestRunnerSkipsFreshRoutes(t *testing.T) {
	metrics.Init()
	var hits atomic.Int64
	server := newTimetableServer(t, &hits)

	store := storagemem.NewFlightStore()
	seedRoutes(t, store, [2]string{"VIE", "BCN"}, [2]string{"BCN", "VIE"})
	require.NoError(t, store.SaveBatch(context.Background(), []flight.ScheduleEntry{
		{Origin: "VIE", Destination: "BCN", Airline: "XM", Year: 2026, Month: 4, Day: 1, FlightNumber: "XM-0625", ScrapedAt: runStart},
		{Origin: "BCN", Destination: "VIE", Airline: "XM", Year: 2026, Month: 4, Day: 1, FlightNumber: "XM-0910", ScrapedAt: runStart},
	}, nil))

	cfg := runnerConfig(server.URL)
	cfg.RefreshDays = 7
	runner := NewRunner(cfg, Deps{
		Store: store,
		IDs:   fixedID{"run-11"},
		Clock: fixedClock{runStart},
	})

	summary, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Zero(t, summary.PairsTotal)
	assert.Zero(t, hits.Load())
	assert.False(t, summary.Partial)
}

func TestRunnerMarksInterruptedRunPartial(t *testing.T) {
	metrics.Init()
	var hits atomic.Int64
	server := newTimetableServer(t, &hits)

	store := storagemem.NewFlightStore()
	seedRoutes(t, store, [2]string{"VIE", "BCN"}, [2]string{"VIE", "OTP"})
	publisher := pubmem.New()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := runnerConfig(server.URL)
	cfg.Topic = "flightnet-runs"
	runner := NewRunner(cfg, Deps{
		Store:     store,
		IDs:       fixedID{"run-12"},
		Clock:     fixedClock{runStart},
		Publisher: publisher,
	})

	summary, err := runner.Run(ctx)
	require.NoError(t, err)

	assert.True(t, summary.Partial)
	assert.Zero(t, summary.PairsDone)
	assert.Equal(t, int64(2), summary.PairsTotal)
	assert.Zero(t, hits.Load())

	// The partial summary is still published on the detached context.
	messages := publisher.Messages()
	require.Len(t, messages, 1)
	var published flight.RunSummary
	require.NoError(t, json.Unmarshal(messages[0].Payload, &published))
	assert.True(t, published.Partial)
}
