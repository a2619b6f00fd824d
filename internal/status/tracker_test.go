package status

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scamtrace/chainabuse-sync/internal/progress"
)

func TestTrackerFollowsRunLifecycle(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	runID := progress.UUIDToBytes(uuid.New())
	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ended := started.Add(90 * time.Second)

	require.NoError(t, tr.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: started, Stage: progress.StageRunStart},
	}))
	snap := tr.Snapshot()
	assert.Equal(t, OutcomeRunning, snap.LastRunOutcome)
	require.NotNil(t, snap.LastRunStarted)
	assert.Equal(t, started, *snap.LastRunStarted)
	assert.Nil(t, snap.LastRunEnded)

	require.NoError(t, tr.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: started, Stage: progress.StagePageDone, Chain: "ETH", Page: 1, Reports: 3, Skipped: 1, Addresses: 4},
		{RunID: runID, TS: started, Stage: progress.StagePageDone, Chain: "BTC", Page: 1, Reports: 2},
		{RunID: runID, TS: ended, Stage: progress.StageRunDone},
	}))

	snap = tr.Snapshot()
	assert.Equal(t, OutcomeSuccess, snap.LastRunOutcome)
	assert.Equal(t, int64(5), snap.Reports)
	assert.Equal(t, int64(1), snap.Skipped)
	assert.Equal(t, int64(4), snap.Addresses)
	assert.Equal(t, int64(2), snap.Pages)
	require.NotNil(t, snap.LastRunEnded)
	assert.Equal(t, ended, *snap.LastRunEnded)
	assert.Zero(t, snap.ErrorCount)
}

func TestTrackerCountsErrorsAcrossRuns(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	first := progress.UUIDToBytes(uuid.New())
	second := progress.UUIDToBytes(uuid.New())
	now := time.Now().UTC()

	require.NoError(t, tr.Consume(context.Background(), []progress.Event{
		{RunID: first, TS: now, Stage: progress.StageRunStart},
		{RunID: first, TS: now, Stage: progress.StageChainError, Chain: "SOL", Note: "timeout"},
		{RunID: first, TS: now, Stage: progress.StageRunError, Note: "run failed"},
	}))

	snap := tr.Snapshot()
	assert.Equal(t, OutcomeError, snap.LastRunOutcome)
	assert.Equal(t, "run failed", snap.LastRunError)
	assert.Equal(t, int64(2), snap.ErrorCount)

	// A new run resets per-run totals but keeps the error count.
	require.NoError(t, tr.Consume(context.Background(), []progress.Event{
		{RunID: second, TS: now, Stage: progress.StageRunStart},
	}))
	snap = tr.Snapshot()
	assert.Equal(t, OutcomeRunning, snap.LastRunOutcome)
	assert.Empty(t, snap.LastRunError)
	assert.Zero(t, snap.Reports)
	assert.Equal(t, int64(2), snap.ErrorCount)
}

func TestTrackerIgnoresStaleRunEvents(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	stale := progress.UUIDToBytes(uuid.New())
	current := progress.UUIDToBytes(uuid.New())
	now := time.Now().UTC()

	require.NoError(t, tr.Consume(context.Background(), []progress.Event{
		{RunID: current, TS: now, Stage: progress.StageRunStart},
		{RunID: stale, TS: now, Stage: progress.StagePageDone, Chain: "ETH", Page: 9, Reports: 100},
		{RunID: stale, TS: now, Stage: progress.StageRunDone},
	}))

	snap := tr.Snapshot()
	assert.Equal(t, OutcomeRunning, snap.LastRunOutcome)
	assert.Zero(t, snap.Reports)
}
