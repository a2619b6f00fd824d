package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreUpsertIsIdempotent(t *testing.T) {
	t.Parallel()

	m := NewMemoryStore()
	ctx := context.Background()

	rep := sampleReport()
	addrs := []ReportAddress{{ID: "addr-1", Address: "0xabc", Chain: "ETH"}}

	created, err := m.UpsertReport(ctx, rep, addrs, nil)
	require.NoError(t, err)
	assert.True(t, created)

	rep.CommentsCount = 5
	created, err = m.UpsertReport(ctx, rep, addrs, nil)
	require.NoError(t, err)
	assert.False(t, created)

	counts, err := m.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Reports, "same report twice leaves one row")
	assert.Equal(t, int64(1), counts.Addresses)

	got, ok := m.Report(rep.ID)
	require.True(t, ok)
	assert.Equal(t, 5, got.CommentsCount, "second upsert updates fields")
}

func TestMemoryStoreRejectsForeignAddress(t *testing.T) {
	t.Parallel()

	m := NewMemoryStore()
	rep := sampleReport()
	_, err := m.UpsertReport(context.Background(), rep, []ReportAddress{
		{ID: "addr-1", ReportID: "someone-else", Address: "0xabc"},
	}, nil)
	require.ErrorContains(t, err, "references report")
}

func TestMemoryStoreUnifiedFirstWriteWins(t *testing.T) {
	t.Parallel()

	m := NewMemoryStore()
	ctx := context.Background()
	rep := sampleReport()

	_, err := m.UpsertReport(ctx, rep, nil, []UnifiedAddress{
		{Address: "0xabc", Type: "scam", Source: "chainabuse marked by alice"},
	})
	require.NoError(t, err)

	rep2 := sampleReport()
	rep2.ID = "rep-2"
	_, err = m.UpsertReport(ctx, rep2, nil, []UnifiedAddress{
		{Address: "0xabc", Type: "scam", Source: "chainabuse marked by bob"},
	})
	require.NoError(t, err)

	ua, ok := m.UnifiedAddressByKey("0xabc")
	require.True(t, ok)
	assert.Equal(t, "chainabuse marked by alice", ua.Source)
}

func TestMemoryStoreClear(t *testing.T) {
	t.Parallel()

	m := NewMemoryStore()
	ctx := context.Background()
	_, err := m.UpsertReport(ctx, sampleReport(), []ReportAddress{{ID: "a"}}, nil)
	require.NoError(t, err)

	require.NoError(t, m.ClearReports(ctx))
	counts, err := m.Counts(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts.Reports)
	assert.Zero(t, counts.Addresses)
}
