// Package throttle enforces a global minimum interval between outbound calls.
package throttle

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/mossishahi/flightnet/internal/metrics"
)

// Gate spaces upstream calls a minimum wall-clock interval apart, across
// every session and worker sharing it. Per-call retry backoff is layered
// on top by the client; the gate only bounds the aggregate request rate.
type Gate struct {
	limiter *rate.Limiter
}

// New creates a Gate with the given minimum interval between any two
// calls. A non-positive interval disables gating.
func New(minInterval time.Duration) *Gate {
	if minInterval <= 0 {
		return &Gate{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Gate{limiter: rate.NewLimiter(rate.Every(minInterval), 1)}
}

// Wait blocks until the next call slot opens, respecting the context.
func (g *Gate) Wait(ctx context.Context) error {
	start := time.Now()
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("throttle wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveThrottleDelay(waited)
	}
	return nil
}
