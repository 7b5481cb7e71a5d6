package mapfeed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mossishahi/flightnet/internal/metrics"
	memstore "github.com/mossishahi/flightnet/internal/storage/memory"
	"github.com/mossishahi/flightnet/internal/upstream"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

const mapBody = `{
  "cities": [
    {
      "iata": "VIE", "shortName": "Vienna",
      "countryCode": "at", "countryName": "Austria", "currencyCode": "EUR",
      "latitude": 48.11, "longitude": 16.57,
      "connections": [
        {"iata": "BCN", "isNew": true, "isConnected": false},
        {"iata": "MFK", "isNew": false, "isConnected": false},
        {"iata": "ZZZ", "isNew": false, "isConnected": true}
      ]
    },
    {
      "iata": "BCN", "shortName": "Barcelona",
      "countryCode": "es", "countryName": "Spain", "currencyCode": "EUR",
      "latitude": 41.3, "longitude": 2.08,
      "connections": [{"iata": "VIE", "isNew": false, "isConnected": false}]
    },
    {
      "iata": "MFK", "shortName": "Metro Fake", "countryCode": "xx",
      "isFakeStation": true,
      "connections": [{"iata": "VIE", "isNew": false, "isConnected": false}]
    }
  ]
}`

func newMapSession(t *testing.T, baseURL string) *upstream.Session {
	t.Helper()
	metrics.Init()
	return upstream.NewSession(upstream.Config{
		Source:       "mapfeed",
		BaseURL:      baseURL,
		GetAttempts:  1,
		PostAttempts: 1,
	}, nil, nil, zap.NewNop())
}

func TestNetworkHarvestPersistsTopology(t *testing.T) {
	var gotPath, gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotLang = r.URL.Query().Get("languageCode")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(mapBody))
	}))
	defer srv.Close()

	store := memstore.NewFlightStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	network := NewNetwork(newMapSession(t, srv.URL), store, Config{}, fixedClock{now: now}, zap.NewNop())

	result, err := network.Harvest(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "/asset/map", gotPath)
	assert.Equal(t, "en-gb", gotLang)
	assert.Equal(t, NetworkResult{Countries: 2, Airports: 2, Routes: 2, Fakes: 1}, result)

	routes, err := store.RoutesByAirline(context.Background(), DefaultAirline)
	require.NoError(t, err)
	require.Len(t, routes, 2)

	// The fake station is dropped on both ends, and the connection to an
	// unknown station never becomes a route.
	assert.Equal(t, "BCN", routes[0].Origin)
	assert.Equal(t, "VIE", routes[0].Destination)
	assert.Equal(t, "VIE", routes[1].Origin)
	assert.Equal(t, "BCN", routes[1].Destination)
	assert.True(t, routes[1].New)
	assert.False(t, routes[1].Connecting)
	assert.Equal(t, now, routes[1].LastSeen)

	counts, err := store.TableCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts["countries"])
	assert.Equal(t, int64(2), counts["airports"])
}

func TestNetworkHarvestUppercasesCountryCodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(mapBody))
	}))
	defer srv.Close()

	store := memstore.NewFlightStore()
	network := NewNetwork(newMapSession(t, srv.URL), store, Config{}, fixedClock{now: time.Now()}, zap.NewNop())

	_, err := network.Harvest(context.Background())
	require.NoError(t, err)

	countries := store.Countries()
	require.Len(t, countries, 2)
	assert.Equal(t, "AT", countries[0].Code)
	assert.Equal(t, "Austria", countries[0].Name)
	assert.Equal(t, "ES", countries[1].Code)
}

func TestNetworkHarvestRejectsEmptyMap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"cities": []}`))
	}))
	defer srv.Close()

	network := NewNetwork(newMapSession(t, srv.URL), memstore.NewFlightStore(), Config{}, fixedClock{now: time.Now()}, zap.NewNop())

	_, err := network.Harvest(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no cities")
}

func TestNetworkHarvestPropagatesNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	network := NewNetwork(newMapSession(t, srv.URL), memstore.NewFlightStore(), Config{}, fixedClock{now: time.Now()}, zap.NewNop())

	_, err := network.Harvest(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, upstream.ErrNoData))
}
