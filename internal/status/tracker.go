// Package status aggregates progress events into the snapshot served by the
// status endpoint.
package status

import (
	"context"
	"sync"
	"time"

	"github.com/scamtrace/chainabuse-sync/internal/progress"
)

// RunOutcome labels how the most recent run ended.
type RunOutcome string

// Possible outcomes for the latest run.
const (
	OutcomeNone    RunOutcome = ""
	OutcomeRunning RunOutcome = "running"
	OutcomeSuccess RunOutcome = "success"
	OutcomeError   RunOutcome = "error"
)

// Snapshot is the aggregate view served by GET /status.
type Snapshot struct {
	LastRunID      string     `json:"last_run_id,omitempty"`
	LastRunStarted *time.Time `json:"last_run_started,omitempty"`
	LastRunEnded   *time.Time `json:"last_run_ended,omitempty"`
	LastRunOutcome RunOutcome `json:"last_run_outcome,omitempty"`
	LastRunError   string     `json:"last_run_error,omitempty"`
	Reports        int64      `json:"reports_stored_last_run"`
	Skipped        int64      `json:"reports_skipped_last_run"`
	Addresses      int64      `json:"addresses_stored_last_run"`
	Pages          int64      `json:"pages_fetched_last_run"`
	ErrorCount     int64      `json:"error_count"`
}

// Tracker consumes progress events and keeps the latest run aggregate. The
// error count is cumulative since process start; everything else resets when
// a new run begins.
type Tracker struct {
	mu       sync.RWMutex
	snap     Snapshot
	inFlight [16]byte
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Consume implements progress.Sink.
func (t *Tracker) Consume(_ context.Context, batch []progress.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, evt := range batch {
		t.apply(evt)
	}
	return nil
}

func (t *Tracker) apply(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		errCount := t.snap.ErrorCount
		started := evt.TS
		t.snap = Snapshot{
			LastRunID:      evt.RunUUID().String(),
			LastRunStarted: &started,
			LastRunOutcome: OutcomeRunning,
			ErrorCount:     errCount,
		}
		t.inFlight = evt.RunID
	case progress.StagePageDone:
		if evt.RunID != t.inFlight {
			return
		}
		t.snap.Pages++
		t.snap.Reports += evt.Reports
		t.snap.Skipped += evt.Skipped
		t.snap.Addresses += evt.Addresses
	case progress.StageChainError:
		t.snap.ErrorCount++
	case progress.StageRunDone:
		if evt.RunID != t.inFlight {
			return
		}
		ended := evt.TS
		t.snap.LastRunEnded = &ended
		t.snap.LastRunOutcome = OutcomeSuccess
	case progress.StageRunError:
		if evt.RunID != t.inFlight {
			return
		}
		ended := evt.TS
		t.snap.LastRunEnded = &ended
		t.snap.LastRunOutcome = OutcomeError
		t.snap.LastRunError = evt.Note
		t.snap.ErrorCount++
	case progress.StageReportStored:
		// Counted via PAGE_DONE deltas.
	}
}

// Close implements progress.Sink; it performs no action.
func (t *Tracker) Close(context.Context) error { return nil }

// Snapshot returns a copy of the current aggregate.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap
}
