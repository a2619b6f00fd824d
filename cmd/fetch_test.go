package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scamtrace/chainabuse-sync/internal/api"
	"github.com/scamtrace/chainabuse-sync/internal/chainabuse"
	"github.com/scamtrace/chainabuse-sync/internal/clock/system"
	"github.com/scamtrace/chainabuse-sync/internal/config"
	"github.com/scamtrace/chainabuse-sync/internal/fetcher"
	"github.com/scamtrace/chainabuse-sync/internal/progress"
	"github.com/scamtrace/chainabuse-sync/internal/scheduler"
	"github.com/scamtrace/chainabuse-sync/internal/store"
)

type fakeApp struct {
	fetcher *fetcher.Fetcher
	store   store.Store
	closed  bool
}

func (a *fakeApp) Close()                          { a.closed = true }
func (a *fakeApp) Config() config.Config           { return config.Config{} }
func (a *fakeApp) Logger() *zap.Logger             { return zap.NewNop() }
func (a *fakeApp) Store() store.Store              { return a.store }
func (a *fakeApp) Fetcher() *fetcher.Fetcher       { return a.fetcher }
func (a *fakeApp) Scheduler() *scheduler.Scheduler { return nil }
func (a *fakeApp) Server() *api.Server             { return nil }

type cannedClient struct{}

func (cannedClient) ReportsPage(_ context.Context, _, _ string) (*chainabuse.ReportsPage, error) {
	return &chainabuse.ReportsPage{
		Edges: []chainabuse.ReportEdge{{Node: chainabuse.Report{
			ID:         "r-1",
			CreatedAt:  "2026-08-01T12:00:00Z",
			ReportedBy: &chainabuse.Reporter{ID: "rep", Username: "watcher", Trusted: true},
		}}},
		Count: 1,
	}, nil
}

type dropEmitter struct{}

func (dropEmitter) Emit(progress.Event) {}

func TestFetchCommandRunsOnce(t *testing.T) {
	st := store.NewMemoryStore()
	f, err := fetcher.New(cannedClient{}, st, nil, nil, dropEmitter{}, system.New(), fetcher.Config{
		Chains: []string{"ETH"},
	}, zap.NewNop())
	require.NoError(t, err)

	fake := &fakeApp{fetcher: f, store: st}
	orig := newApp
	newApp = func(context.Context) (App, error) { return fake, nil }
	defer func() { newApp = orig }()

	root := newRootCmd()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs([]string{"fetch"})
	require.NoError(t, root.Execute())

	assert.Contains(t, out.String(), "\"run_id\"")
	assert.Contains(t, out.String(), "\"reports_stored\": 1")
	assert.True(t, fake.closed)

	_, ok := st.Report("r-1")
	assert.True(t, ok)
}
