// Package harvest orchestrates the concurrent schedule run: plan the
// stale pairs, fan them out over workers, funnel every parsed batch
// through the single writer, and publish the run summary.
package harvest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mossishahi/flightnet/internal/flight"
	"github.com/mossishahi/flightnet/internal/policy/throttle"
	"github.com/mossishahi/flightnet/internal/progress"
	queuemem "github.com/mossishahi/flightnet/internal/queue/memory"
	"github.com/mossishahi/flightnet/internal/source/mapfeed"
	"github.com/mossishahi/flightnet/internal/upstream"
	"github.com/mossishahi/flightnet/internal/worker"
	"github.com/mossishahi/flightnet/internal/writer"
)

// Defaults for the run shape. Window span tracks the upstream's maximum
// timetable range per request.
const (
	DefaultRefreshDays = 7
	DefaultWorkers     = 4
	DefaultWindows     = 4
	DefaultWindowDays  = 42
	DefaultQueueDepth  = 200
)

// Config shapes one schedule run.
type Config struct {
	// RefreshDays selects routes whose schedules are older than this.
	// Zero forces a full rescan.
	RefreshDays int
	Workers     int
	Windows     int
	WindowDays  int
	// Limit caps the pair count, 0 means no cap.
	Limit      int
	QueueDepth int
	FlushRows  int
	// ReportInterval is the progress log cadence.
	ReportInterval time.Duration
	// ArchivePrefix roots raw-response archive paths. Archiving is off
	// unless Deps.Blobs is set.
	ArchivePrefix string
	// Topic receives the run summary. Empty disables publishing.
	Topic string

	// Session is the per-worker HTTP template; the probed base URL is
	// filled in before workers start.
	Session upstream.Config
	Mapfeed mapfeed.Config
}

func (c Config) withDefaults() Config {
	if c.RefreshDays < 0 {
		c.RefreshDays = DefaultRefreshDays
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.Windows <= 0 {
		c.Windows = DefaultWindows
	}
	if c.WindowDays <= 0 {
		c.WindowDays = DefaultWindowDays
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = DefaultQueueDepth
	}
	if c.Session.Source == "" {
		c.Session.Source = "mapfeed"
	}
	if c.Mapfeed.Airline == "" {
		c.Mapfeed.Airline = mapfeed.DefaultAirline
	}
	return c
}

// Deps are the injected collaborators of a Runner. Blobs and Publisher
// are optional; Discoverer may be nil when Session.BaseURL is set.
type Deps struct {
	Store      flight.Store
	Gate       *throttle.Gate
	Discoverer *upstream.Discoverer
	Blobs      flight.BlobStore
	Hasher     flight.Hasher
	IDs        flight.IDGenerator
	Clock      flight.Clock
	Publisher  flight.Publisher
	Logger     *zap.Logger
}

// Runner drives one schedule harvest end to end.
type Runner struct {
	cfg      Config
	deps     Deps
	counters *progress.Counters
	logger   *zap.Logger
}

// NewRunner builds a Runner, filling config defaults.
func NewRunner(cfg Config, deps Deps) *Runner {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Runner{
		cfg:      cfg.withDefaults(),
		deps:     deps,
		counters: progress.NewCounters(0),
		logger:   deps.Logger.Named("harvest"),
	}
}

// Counters exposes the run counters, e.g. for the ops server's /statusz.
func (r *Runner) Counters() *progress.Counters {
	return r.counters
}

// Run executes the pipeline. Canceling ctx stops workers between tasks;
// the writer keeps draining the queue on a detached context so every
// batch fetched before the stop is still persisted, and the summary is
// marked partial.
func (r *Runner) Run(ctx context.Context) (flight.RunSummary, error) {
	runID, err := r.deps.IDs.NewID()
	if err != nil {
		return flight.RunSummary{}, fmt.Errorf("mint run id: %w", err)
	}
	started := r.deps.Clock.Now()
	logger := r.logger.With(zap.String("run_id", runID))

	base, err := r.resolveBase(ctx)
	if err != nil {
		return flight.RunSummary{}, err
	}

	pairs, err := r.planPairs(ctx, started, logger)
	if err != nil {
		return flight.RunSummary{}, err
	}
	windows := flight.PlanWindows(started, r.cfg.Windows, time.Duration(r.cfg.WindowDays)*24*time.Hour)

	counters := r.counters
	counters.SetPairsTotal(int64(len(pairs)))
	queue := queuemem.NewQueue(r.cfg.QueueDepth)

	wr := writer.New(r.deps.Store, queue, counters, r.cfg.FlushRows, logger)
	writerDone := make(chan error, 1)
	go func() { writerDone <- wr.Run(context.WithoutCancel(ctx)) }()

	reporterCtx, stopReporter := context.WithCancel(ctx)
	defer stopReporter()
	reporter := progress.NewReporter(counters, queue.Len, r.cfg.ReportInterval, r.deps.Clock, logger)
	reporterDone := make(chan struct{})
	go func() {
		defer close(reporterDone)
		reporter.Run(reporterCtx)
	}()

	var archive *mapfeed.Archiver
	if r.deps.Blobs != nil {
		archive = mapfeed.NewArchiver(r.deps.Blobs, r.deps.Hasher, r.cfg.ArchivePrefix, r.cfg.Mapfeed.Airline, runID, logger)
	}

	sessionCfg := r.cfg.Session
	sessionCfg.BaseURL = base

	var wg sync.WaitGroup
	for i, part := range partition(pairs, r.cfg.Workers) {
		if len(part) == 0 {
			continue
		}
		session := upstream.NewSession(sessionCfg, r.deps.Gate, r.deps.Discoverer, logger)
		fetcher := mapfeed.NewTimetable(session, r.cfg.Mapfeed, archive, started, logger)
		wk := worker.New(i, fetcher, queue, counters, logger)
		wg.Add(1)
		go func(wk *worker.Worker, part []flight.RoutePair) {
			defer wg.Done()
			wk.Run(ctx, part, windows)
		}(wk, part)
	}
	wg.Wait()

	queue.Close()
	if err := <-writerDone; err != nil {
		logger.Warn("writer exited before drain", zap.Error(err))
	}
	stopReporter()
	<-reporterDone

	snap := counters.Snapshot()
	summary := flight.RunSummary{
		RunID:      runID,
		Source:     r.cfg.Session.Source,
		Airline:    r.cfg.Mapfeed.Airline,
		PairsDone:  snap.PairsDone,
		PairsTotal: snap.PairsTotal,
		Schedules:  snap.Schedules,
		Fares:      snap.Fares,
		Errors:     snap.Errors,
		StartedAt:  started,
		FinishedAt: r.deps.Clock.Now(),
		Partial:    ctx.Err() != nil || snap.PairsDone < snap.PairsTotal,
	}
	r.publish(ctx, summary, logger)

	logger.Info("schedule harvest finished",
		zap.Int64("pairs_done", summary.PairsDone),
		zap.Int64("pairs_total", summary.PairsTotal),
		zap.Int64("schedules", summary.Schedules),
		zap.Int64("fares", summary.Fares),
		zap.Int64("errors", summary.Errors),
		zap.Bool("partial", summary.Partial),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
	)
	return summary, nil
}

// resolveBase probes discovery once so every worker session starts from
// the same base URL. A probe failure aborts the run: no worker could
// reach the upstream anyway.
func (r *Runner) resolveBase(ctx context.Context) (string, error) {
	if r.cfg.Session.BaseURL != "" {
		return r.cfg.Session.BaseURL, nil
	}
	if r.deps.Discoverer == nil {
		return "", fmt.Errorf("%w: no base url configured and no discoverer", upstream.ErrDiscovery)
	}
	base, err := r.deps.Discoverer.Discover(ctx)
	if err != nil {
		return "", fmt.Errorf("probe api base: %w", err)
	}
	return base, nil
}

// planPairs turns route freshness into the deduplicated pair list for
// this run.
func (r *Runner) planPairs(ctx context.Context, now time.Time, logger *zap.Logger) ([]flight.RoutePair, error) {
	rows, err := r.deps.Store.RouteFreshness(ctx, r.cfg.Mapfeed.Airline)
	if err != nil {
		return nil, fmt.Errorf("load route freshness: %w", err)
	}
	stale := flight.SelectStale(rows, now, time.Duration(r.cfg.RefreshDays)*24*time.Hour)
	pairs := flight.PairRoutes(stale)
	if r.cfg.Limit > 0 && len(pairs) > r.cfg.Limit {
		pairs = pairs[:r.cfg.Limit]
	}
	logger.Info("harvest plan ready",
		zap.Int("routes", len(rows)),
		zap.Int("stale", len(stale)),
		zap.Int("pairs", len(pairs)),
		zap.Int("windows", r.cfg.Windows),
		zap.Int("workers", r.cfg.Workers),
	)
	return pairs, nil
}

// partition deals pairs round-robin over n workers so slow pairs spread
// instead of clustering on one worker.
func partition(pairs []flight.RoutePair, n int) [][]flight.RoutePair {
	parts := make([][]flight.RoutePair, n)
	for i, p := range pairs {
		parts[i%n] = append(parts[i%n], p)
	}
	return parts
}

// publish emits the run summary on a detached context: an interrupt that
// ended the run early should not also swallow the event reporting it.
func (r *Runner) publish(ctx context.Context, summary flight.RunSummary, logger *zap.Logger) {
	if r.deps.Publisher == nil || r.cfg.Topic == "" {
		return
	}
	payload, err := json.Marshal(summary)
	if err != nil {
		logger.Warn("encode run summary", zap.Error(err))
		return
	}
	if err := r.deps.Publisher.Publish(context.WithoutCancel(ctx), r.cfg.Topic, payload); err != nil {
		logger.Warn("publish run summary", zap.Error(err))
	}
}
