package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/scamtrace/chainabuse-sync/internal/progress"
)

func TestPrometheusSinkRunLifecycle(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	now := time.Now().UTC()

	batch := []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunStart},
		{RunID: runID, TS: now, Stage: progress.StagePageDone, Chain: "ETH", Page: 1, Reports: 4, Skipped: 2, Addresses: 6},
		{RunID: runID, TS: now, Stage: progress.StagePageDone, Chain: "ETH", Page: 2, Reports: 1},
		{RunID: runID, TS: now, Stage: progress.StageRunDone, Dur: 3 * time.Second},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("success")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("error")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsRunning))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.pagesFetched.WithLabelValues("ETH")))
	require.Equal(t, 5.0, testutil.ToFloat64(sink.reportsStored.WithLabelValues("ETH")))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.reportsSkipped.WithLabelValues("ETH")))
	require.Equal(t, 6.0, testutil.ToFloat64(sink.addressRows.WithLabelValues("ETH")))
}

func TestPrometheusSinkRunError(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	now := time.Now().UTC()

	batch := []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunStart},
		{RunID: runID, TS: now, Stage: progress.StageChainError, Chain: "SOL", Note: "boom"},
		{RunID: runID, TS: now, Stage: progress.StageRunError, Dur: time.Second, Note: "boom"},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("error")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.chainErrors.WithLabelValues("SOL")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsRunning))
}

func TestPrometheusSinkDoubleRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err, "second registration against the same registry must fail")
}
