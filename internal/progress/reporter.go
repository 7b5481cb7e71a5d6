package progress

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mossishahi/flightnet/internal/flight"
	"github.com/mossishahi/flightnet/internal/metrics"
)

// DefaultInterval is the reporting cadence when none is configured.
const DefaultInterval = 30 * time.Second

// Reporter periodically logs run progress with the observed pair rate
// and a completion estimate, and mirrors the snapshot into the
// prometheus gauges. Purely observational.
type Reporter struct {
	counters *Counters
	queueLen func() int
	interval time.Duration
	clock    flight.Clock
	logger   *zap.Logger
}

// NewReporter creates a reporter. queueLen may be nil when there is no
// queue to observe.
func NewReporter(counters *Counters, queueLen func() int, interval time.Duration, clk flight.Clock, logger *zap.Logger) *Reporter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{
		counters: counters,
		queueLen: queueLen,
		interval: interval,
		clock:    clk,
		logger:   logger.Named("progress"),
	}
}

// Run ticks until the context ends. Meant to run in its own goroutine.
func (r *Reporter) Run(ctx context.Context) {
	start := r.clock.Now()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.report(r.clock.Now().Sub(start))
		}
	}
}

// report publishes one progress observation. The rate is undefined
// until the first pair completes, so early ticks only update gauges.
func (r *Reporter) report(elapsed time.Duration) {
	snap := r.counters.Snapshot()
	metrics.SetPairProgress(snap.PairsDone, snap.PairsTotal)
	if r.queueLen != nil {
		metrics.SetQueueDepth(r.queueLen())
	}
	if snap.PairsDone == 0 || elapsed <= 0 {
		return
	}

	perMinute := float64(snap.PairsDone) / elapsed.Minutes()
	remaining := float64(snap.PairsTotal - snap.PairsDone)
	eta := time.Duration(remaining / perMinute * float64(time.Minute)).Round(time.Second)

	r.logger.Info("harvest progress",
		zap.Int64("pairs_done", snap.PairsDone),
		zap.Int64("pairs_total", snap.PairsTotal),
		zap.Int64("schedules", snap.Schedules),
		zap.Int64("fares", snap.Fares),
		zap.Int64("errors", snap.Errors),
		zap.Float64("pairs_per_min", perMinute),
		zap.Duration("eta", eta),
	)
}
