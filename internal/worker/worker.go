// Package worker runs the fetch side of the concurrent schedule
// harvest: each worker walks its assigned pairs across all windows and
// hands parsed batches to the write pipeline. Workers never touch the
// store.
package worker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/mossishahi/flightnet/internal/flight"
	"github.com/mossishahi/flightnet/internal/metrics"
	"github.com/mossishahi/flightnet/internal/progress"
	"github.com/mossishahi/flightnet/internal/upstream"
)

// Fetcher turns one (pair, window) task into a batch of parsed rows.
type Fetcher interface {
	FetchWindow(ctx context.Context, pair flight.RoutePair, window flight.Window) (flight.Batch, error)
}

// Queue is the worker's handle to the write pipeline.
type Queue interface {
	Enqueue(ctx context.Context, batch flight.Batch) error
}

// Worker processes its partition of the pair set. Each worker owns its
// fetcher (and through it, its upstream session); only the counters and
// the queue are shared.
type Worker struct {
	id       int
	fetcher  Fetcher
	queue    Queue
	counters *progress.Counters
	logger   *zap.Logger
}

// New creates a worker.
func New(id int, fetcher Fetcher, queue Queue, counters *progress.Counters, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		id:       id,
		fetcher:  fetcher,
		queue:    queue,
		counters: counters,
		logger:   logger.Named("worker").With(zap.Int("worker", id)),
	}
}

// Run iterates the worker's tasks: every window of a pair, then the
// next pair. No data for a task is a silent skip; any other fetch
// failure counts one error and moves on. A failed endpoint discovery is
// fatal for this worker only: the remaining tasks are counted as errors
// and the worker exits, leaving its siblings running. Cancellation is
// honored between tasks.
func (w *Worker) Run(ctx context.Context, pairs []flight.RoutePair, windows []flight.Window) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	for pi, pair := range pairs {
		for wi, window := range windows {
			if ctx.Err() != nil {
				w.logger.Debug("stopping between tasks", zap.Int("pairs_done", pi))
				return
			}

			batch, err := w.fetcher.FetchWindow(ctx, pair, window)
			switch {
			case errors.Is(err, upstream.ErrDiscovery):
				abandoned := int64((len(pairs)-pi)*len(windows) - wi)
				w.counters.AddErrors(abandoned)
				metrics.ObserveTask("discovery_failed")
				w.logger.Error("endpoint discovery failed, abandoning remaining tasks",
					zap.Int64("tasks_abandoned", abandoned),
					zap.Error(err),
				)
				return
			case errors.Is(err, upstream.ErrNoData):
				metrics.ObserveTask("no_data")
				continue
			case err != nil:
				if ctx.Err() != nil {
					return
				}
				w.counters.IncErrors()
				metrics.ObserveTask("error")
				w.logger.Debug("task failed",
					zap.String("origin", pair.Origin),
					zap.String("destination", pair.Destination),
					zap.String("from", window.FromDate()),
					zap.Error(err),
				)
				continue
			}

			metrics.ObserveTask("ok")
			if batch.Empty() {
				continue
			}
			if err := w.queue.Enqueue(ctx, batch); err != nil {
				w.logger.Warn("enqueue failed, stopping", zap.Error(err))
				return
			}
		}
		w.counters.IncPairsDone()
	}
}
