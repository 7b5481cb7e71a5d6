// Package writer drains the batch queue into the store.
package writer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mossishahi/flightnet/internal/flight"
	"github.com/mossishahi/flightnet/internal/metrics"
	"github.com/mossishahi/flightnet/internal/progress"
	"github.com/mossishahi/flightnet/internal/queue/memory"
)

// DefaultFlushRows is the schedule-row count that triggers a commit.
const DefaultFlushRows = 500

// Store is the writer's slice of flight.Store.
type Store interface {
	SaveBatch(ctx context.Context, schedules []flight.ScheduleEntry, fares []flight.FareQuote) error
}

// Queue is the consuming side of the batch queue.
type Queue interface {
	Dequeue(ctx context.Context) (flight.Batch, error)
}

// Writer is the single database goroutine of a schedule harvest. Workers
// only parse and enqueue; every row lands here, so SaveBatch transactions
// never interleave.
type Writer struct {
	store     Store
	queue     Queue
	counters  *progress.Counters
	flushRows int
	logger    *zap.Logger

	pending flight.Batch
}

// New creates a Writer. flushRows <= 0 selects DefaultFlushRows.
func New(store Store, queue Queue, counters *progress.Counters, flushRows int, logger *zap.Logger) *Writer {
	if flushRows <= 0 {
		flushRows = DefaultFlushRows
	}
	return &Writer{
		store:     store,
		queue:     queue,
		counters:  counters,
		flushRows: flushRows,
		logger:    logger.Named("writer"),
	}
}

// Run consumes the queue until it closes, committing whenever the pending
// schedule rows reach the flush threshold. A closed queue gets a final
// flush, so a clean shutdown never loses rows. Run this on a context that
// outlives the interrupt signal: batches fetched before the stop should
// still be written.
func (w *Writer) Run(ctx context.Context) error {
	for {
		batch, err := w.queue.Dequeue(ctx)
		switch {
		case errors.Is(err, memory.ErrClosed):
			w.flush(ctx)
			w.logger.Info("queue drained, writer done")
			return nil
		case err != nil:
			w.logger.Warn("writer stopping, dropping pending rows",
				zap.Int("schedules", len(w.pending.Schedules)),
				zap.Int("fares", len(w.pending.Fares)),
				zap.Error(err))
			return fmt.Errorf("dequeue batch: %w", err)
		}
		w.pending.Schedules = append(w.pending.Schedules, batch.Schedules...)
		w.pending.Fares = append(w.pending.Fares, batch.Fares...)
		if len(w.pending.Schedules) >= w.flushRows {
			w.flush(ctx)
		}
	}
}

// flush commits the pending rows in one transaction. A failed commit
// counts one error and drops the pending rows; the remaining queue is
// still processed.
func (w *Writer) flush(ctx context.Context) {
	if w.pending.Empty() {
		return
	}
	schedules, fares := len(w.pending.Schedules), len(w.pending.Fares)
	err := w.store.SaveBatch(ctx, w.pending.Schedules, w.pending.Fares)
	w.pending = flight.Batch{}
	if err != nil {
		w.counters.IncErrors()
		w.logger.Error("batch commit failed, rows dropped",
			zap.Int("schedules", schedules),
			zap.Int("fares", fares),
			zap.Error(err))
		return
	}
	w.counters.AddSchedules(schedules)
	w.counters.AddFares(fares)
	metrics.AddRowsWritten("schedules", schedules)
	metrics.AddRowsWritten("fares", fares)
	metrics.IncWriterCommits()
	w.logger.Debug("batch committed",
		zap.Int("schedules", schedules),
		zap.Int("fares", fares))
}
