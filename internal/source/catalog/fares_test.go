package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memstore "github.com/mossishahi/flightnet/internal/storage/memory"
)

const fareResults = `{
  "fares": [
    {
      "outbound": {
        "departureDate": "2026-03-14T06:25:00", "arrivalDate": "2026-03-14T08:05:00",
        "flightNumber": "XC 1926",
        "arrivalAirport": {"iataCode": "STN"},
        "price": {"value": 19.99, "currencyCode": "GBP"}
      }
    },
    {
      "outbound": {
        "departureDate": "2026-03-20T10:00:00",
        "flightNumber": "XC 55",
        "arrivalAirport": {"code": "BCN"},
        "price": {"value": 24.5}
      }
    },
    {
      "outbound": {
        "departureDate": "2026-03-21T11:00:00",
        "arrivalAirport": {"iataCode": "OPO"}
      }
    },
    {
      "outbound": {
        "departureDate": "2026-03-22T12:00:00",
        "price": {"value": 9.99, "currencyCode": "EUR"}
      }
    }
  ]
}`

func TestHarvestFaresAppendsPricedResults(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, DefaultFaresPath, r.URL.Path)
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(fareResults))
	}))
	defer srv.Close()

	store := memstore.NewFlightStore()
	total, err := newTestSource(t, srv.URL, store).HarvestFares(context.Background(), []string{"DUB"}, 0)
	require.NoError(t, err)

	assert.Equal(t, "DUB", gotQuery.Get("departureAirportIataCode"))
	assert.Equal(t, "200", gotQuery.Get("limit"))
	assert.Equal(t, "1000", gotQuery.Get("priceValueTo"))
	assert.Equal(t, "2026-03-10", gotQuery.Get("outboundDepartureDateFrom"))
	assert.Equal(t, "2026-09-06", gotQuery.Get("outboundDepartureDateTo"))

	// The unpriced and destination-less entries are dropped.
	assert.Equal(t, 2, total)
	fares := store.Fares()
	require.Len(t, fares, 2)
	assert.Equal(t, "DUB", fares[0].Origin)
	assert.Equal(t, "STN", fares[0].Destination)
	assert.Equal(t, "2026-03-14", fares[0].DepartureDate)
	assert.Equal(t, 19.99, fares[0].Price)
	assert.Equal(t, "GBP", fares[0].Currency)
	assert.Equal(t, "XC 1926", fares[0].FlightNumber)
	assert.Equal(t, testNow, fares[0].ScrapedAt)

	assert.Equal(t, "BCN", fares[1].Destination)
	assert.Equal(t, "EUR", fares[1].Currency)
}

func TestHarvestFaresFallsBackWhenPrimaryEmpty(t *testing.T) {
	var fallbackHit bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case DefaultFaresPath:
			_, _ = w.Write([]byte(`{"fares": []}`))
		case DefaultFaresFallbackPath:
			fallbackHit = true
			_, _ = w.Write([]byte(fareResults))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	store := memstore.NewFlightStore()
	total, err := newTestSource(t, srv.URL, store).HarvestFares(context.Background(), []string{"DUB"}, 0)
	require.NoError(t, err)
	assert.True(t, fallbackHit)
	assert.Equal(t, 2, total)
}

func TestHarvestFaresFallsBackWhenPrimaryFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == DefaultFaresPath {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(fareResults))
	}))
	defer srv.Close()

	total, err := newTestSource(t, srv.URL, memstore.NewFlightStore()).HarvestFares(context.Background(), []string{"DUB"}, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestHarvestFaresSkipsAirportWhenBothFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	total, err := newTestSource(t, srv.URL, memstore.NewFlightStore()).HarvestFares(context.Background(), []string{"DUB", "STN"}, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestHarvestFaresHonorsAirportLimit(t *testing.T) {
	var origins []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origins = append(origins, r.URL.Query().Get("departureAirportIataCode"))
		_, _ = w.Write([]byte(`{"fares": []}`))
	}))
	defer srv.Close()

	_, err := newTestSource(t, srv.URL, memstore.NewFlightStore()).HarvestFares(context.Background(), []string{"DUB", "STN", "BCN"}, 1)
	require.NoError(t, err)
	// Primary empty plus empty fallback for the single allowed airport.
	assert.Equal(t, []string{"DUB", "DUB"}, origins)
}
