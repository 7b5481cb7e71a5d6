package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInit(t *testing.T) {
	// Reset a few collectors so re-registration is actually observable.
	upstreamRequestsTotal = nil
	rowsWrittenTotal = nil
	queueDepth = nil

	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if upstreamRequestsTotal == nil || rowsWrittenTotal == nil || queueDepth == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}

	ObserveUpstreamRequest("mapfeed", "POST", "ok")
	if val := testutil.ToFloat64(upstreamRequestsTotal.WithLabelValues("mapfeed", "POST", "ok")); val != 1 {
		t.Errorf("expected upstream request counter to be 1, got %f", val)
	}
}

func TestRowAndCommitHelpers(t *testing.T) {
	Init()

	AddRowsWritten("schedules", 3)
	AddRowsWritten("schedules", 0) // no-op
	if val := testutil.ToFloat64(rowsWrittenTotal.WithLabelValues("schedules")); val != 3 {
		t.Errorf("expected 3 schedule rows recorded, got %f", val)
	}

	before := testutil.ToFloat64(writerCommitsTotal)
	IncWriterCommits()
	if val := testutil.ToFloat64(writerCommitsTotal); val != before+1 {
		t.Errorf("expected commit counter to advance by 1, got %f -> %f", before, val)
	}
}

func TestGaugeHelpers(t *testing.T) {
	Init()

	SetPairProgress(7, 42)
	if val := testutil.ToFloat64(pairsDone); val != 7 {
		t.Errorf("pairsDone = %f, want 7", val)
	}
	if val := testutil.ToFloat64(pairsTotal); val != 42 {
		t.Errorf("pairsTotal = %f, want 42", val)
	}

	SetQueueDepth(5)
	if val := testutil.ToFloat64(queueDepth); val != 5 {
		t.Errorf("queueDepth = %f, want 5", val)
	}

	IncActiveWorkers()
	IncActiveWorkers()
	DecActiveWorkers()
	if val := testutil.ToFloat64(activeWorkers); val != 1 {
		t.Errorf("activeWorkers = %f, want 1", val)
	}

	ObserveThrottleDelay(50 * time.Millisecond)
	ObserveRetryDelay("rate_limited", time.Second)
	if val := testutil.CollectAndCount(retryDelaySeconds); val <= 0 {
		t.Errorf("expected retry delay histogram to be observed, got %d", val)
	}
}
