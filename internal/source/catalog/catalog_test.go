package catalog

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mossishahi/flightnet/internal/metrics"
	memstore "github.com/mossishahi/flightnet/internal/storage/memory"
	"github.com/mossishahi/flightnet/internal/upstream"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

// newTestSource wires a catalog source against a local test server with
// single-attempt budgets so failure paths run without backoff.
func newTestSource(t *testing.T, baseURL string, store *memstore.FlightStore) *Source {
	t.Helper()
	metrics.Init()
	session := upstream.NewSession(upstream.Config{
		Source:       "catalog",
		BaseURL:      baseURL,
		GetAttempts:  1,
		PostAttempts: 1,
	}, nil, nil, zap.NewNop())
	return NewSource(session, store, Config{}, fixedClock{now: testNow}, zap.NewNop())
}
