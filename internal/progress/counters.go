// Package progress tracks harvest throughput. Workers and the writer
// update a shared set of atomic counters; the reporter, the ops server
// and the final run summary read point-in-time snapshots.
package progress

import "sync/atomic"

// Counters is the shared tally of one harvest run. Safe for concurrent
// use by any number of goroutines.
type Counters struct {
	pairsTotal atomic.Int64
	pairsDone  atomic.Int64
	schedules  atomic.Int64
	fares      atomic.Int64
	errors     atomic.Int64
}

// NewCounters creates counters for a run covering pairsTotal pairs.
func NewCounters(pairsTotal int64) *Counters {
	c := &Counters{}
	c.pairsTotal.Store(pairsTotal)
	return c
}

// SetPairsTotal fixes the pair count once the run plan is known. Used
// when the counters outlive planning, e.g. counters shared with the ops
// server before the stale set is selected.
func (c *Counters) SetPairsTotal(n int64) { c.pairsTotal.Store(n) }

// IncPairsDone records one pair fully processed across all its windows.
func (c *Counters) IncPairsDone() { c.pairsDone.Add(1) }

// AddSchedules records schedule rows written by the writer.
func (c *Counters) AddSchedules(n int) { c.schedules.Add(int64(n)) }

// AddFares records fare rows written by the writer.
func (c *Counters) AddFares(n int) { c.fares.Add(int64(n)) }

// IncErrors records one failed task.
func (c *Counters) IncErrors() { c.errors.Add(1) }

// AddErrors records n failed tasks at once, e.g. the tasks a worker
// abandons when its endpoint discovery fails.
func (c *Counters) AddErrors(n int64) { c.errors.Add(n) }

// Snapshot returns a point-in-time copy of all counters.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		PairsDone:  c.pairsDone.Load(),
		PairsTotal: c.pairsTotal.Load(),
		Schedules:  c.schedules.Load(),
		Fares:      c.fares.Load(),
		Errors:     c.errors.Load(),
	}
}

// Snapshot is a consistent-enough view of the counters for reporting.
// Serves as the /statusz response body.
type Snapshot struct {
	PairsDone  int64 `json:"pairs_done"`
	PairsTotal int64 `json:"pairs_total"`
	Schedules  int64 `json:"schedules"`
	Fares      int64 `json:"fares"`
	Errors     int64 `json:"errors"`
}
