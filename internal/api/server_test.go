package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scamtrace/chainabuse-sync/internal/fetcher"
	"github.com/scamtrace/chainabuse-sync/internal/progress"
	"github.com/scamtrace/chainabuse-sync/internal/status"
	"github.com/scamtrace/chainabuse-sync/internal/store"
)

type stubRunner struct {
	result   *fetcher.RunResult
	runErr   error
	startID  uuid.UUID
	startErr error
	running  bool
}

func (r *stubRunner) Run(context.Context) (*fetcher.RunResult, error) {
	return r.result, r.runErr
}

func (r *stubRunner) Start(context.Context) (uuid.UUID, error) {
	return r.startID, r.startErr
}

func (r *stubRunner) Running() bool { return r.running }

type failingPingStore struct {
	store.Store
}

func (failingPingStore) Ping(context.Context) error {
	return errors.New("connection refused")
}

func newTestServer(t *testing.T, runner Runner, st store.Store, cfg Config) *Server {
	t.Helper()
	if st == nil {
		st = store.NewMemoryStore()
	}
	return NewServer(runner, st, status.NewTracker(), cfg, nil)
}

func doRequest(s *Server, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, vals := range header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &stubRunner{}, nil, Config{})
	rec := doRequest(s, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &stubRunner{}, nil, Config{})
	rec := doRequest(s, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	s = newTestServer(t, &stubRunner{}, failingPingStore{Store: store.NewMemoryStore()}, Config{})
	rec = doRequest(s, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestFetchReportsSuccess(t *testing.T) {
	t.Parallel()

	runner := &stubRunner{result: &fetcher.RunResult{
		RunID:    uuid.New(),
		Stored:   12,
		Created:  3,
		Pages:    2,
		ChainsOK: []string{"ETH"},
	}}
	s := newTestServer(t, runner, nil, Config{})

	rec := doRequest(s, http.MethodPost, "/fetch_reports", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Result fetcher.RunResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(12), body.Result.Stored)
	assert.Equal(t, []string{"ETH"}, body.Result.ChainsOK)
}

func TestFetchReportsConflict(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &stubRunner{runErr: fetcher.ErrAlreadyRunning}, nil, Config{})
	rec := doRequest(s, http.MethodPost, "/fetch_reports", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestFetchReportsUpstreamFailure(t *testing.T) {
	t.Parallel()

	runner := &stubRunner{
		result: &fetcher.RunResult{ChainsFailed: []fetcher.ChainFailure{{Chain: "ETH", Error: "down"}}},
		runErr: errors.New("all 1 chains failed"),
	}
	s := newTestServer(t, runner, nil, Config{})
	rec := doRequest(s, http.MethodPost, "/fetch_reports", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "all 1 chains failed")
}

func TestFetchReportsBackground(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	s := newTestServer(t, &stubRunner{startID: id}, nil, Config{})
	rec := doRequest(s, http.MethodPost, "/fetch_reports_background", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, id.String(), body["run_id"])
	assert.Equal(t, "started", body["status"])

	s = newTestServer(t, &stubRunner{startErr: fetcher.ErrAlreadyRunning}, nil, Config{})
	rec = doRequest(s, http.MethodPost, "/fetch_reports_background", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetStatus(t *testing.T) {
	t.Parallel()

	st := store.NewMemoryStore()
	_, err := st.UpsertReport(context.Background(), store.Report{ID: "r-1"}, []store.ReportAddress{
		{ID: "a-1", ReportID: "r-1", Address: "0xabc", Chain: "ETH"},
	}, nil)
	require.NoError(t, err)

	tracker := status.NewTracker()
	runID := progress.UUIDToBytes(uuid.New())
	now := time.Now().UTC()
	require.NoError(t, tracker.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunStart},
		{RunID: runID, TS: now, Stage: progress.StagePageDone, Chain: "ETH", Page: 1, Reports: 1, Addresses: 1},
		{RunID: runID, TS: now, Stage: progress.StageRunDone},
	}))

	s := NewServer(&stubRunner{running: false}, st, tracker, Config{}, nil)
	rec := doRequest(s, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Running)
	assert.Equal(t, int64(1), body.Counts.Reports)
	assert.Equal(t, int64(1), body.Counts.Addresses)
	assert.Equal(t, status.OutcomeSuccess, body.LastRun.LastRunOutcome)
	assert.Equal(t, int64(1), body.LastRun.Reports)
}

func TestAPIKeyGuardsFetchRoutes(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &stubRunner{result: &fetcher.RunResult{}}, nil, Config{APIKey: "sekret"})

	rec := doRequest(s, http.MethodPost, "/fetch_reports", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	header := http.Header{}
	header.Set("X-API-Key", "sekret")
	rec = doRequest(s, http.MethodPost, "/fetch_reports", header)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health probes stay open.
	rec = doRequest(s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
