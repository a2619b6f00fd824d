package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/scamtrace/chainabuse-sync/internal/progress"
)

// PrometheusSink exports fetch progress metrics via Prometheus. It owns all
// collectors for runs started/completed/running and per-chain page counters.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runRuntime    *prometheus.HistogramVec

	pagesFetched   *prometheus.CounterVec
	reportsStored  *prometheus.CounterVec
	reportsSkipped *prometheus.CounterVec
	addressRows    *prometheus.CounterVec
	chainErrors    *prometheus.CounterVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "abusesync_runs_started_total",
			Help: "Total fetch runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "abusesync_runs_completed_total",
			Help: "Total fetch runs completed partitioned by result.",
		}, []string{"result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "abusesync_runs_running",
			Help: "Current number of running fetch runs.",
		}),
		runRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "abusesync_run_runtime_seconds",
			Help:    "Wall time per completed fetch run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"result"}),
		pagesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "abusesync_pages_fetched_total",
			Help: "API pages fetched partitioned by chain.",
		}, []string{"chain"}),
		reportsStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "abusesync_reports_stored_total",
			Help: "Reports upserted partitioned by chain.",
		}, []string{"chain"}),
		reportsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "abusesync_reports_skipped_total",
			Help: "Reports dropped by filtering partitioned by chain.",
		}, []string{"chain"}),
		addressRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "abusesync_address_rows_total",
			Help: "Address rows written partitioned by chain.",
		}, []string{"chain"}),
		chainErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "abusesync_chain_errors_total",
			Help: "Per-chain fetch failures.",
		}, []string{"chain"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runRuntime,
		s.pagesFetched,
		s.reportsStored,
		s.reportsSkipped,
		s.addressRows,
		s.chainErrors,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart, progress.StageRunDone, progress.StageRunError:
		s.handleRunEvent(evt)
	case progress.StagePageDone:
		s.handlePageEvent(evt)
	case progress.StageChainError:
		s.chainErrors.WithLabelValues(chainLabel(evt)).Inc()
	}
}

func (s *PrometheusSink) handleRunEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		if s.tracker.start(evt.RunID) {
			s.runsRunning.Inc()
		}
	case progress.StageRunDone:
		s.runsCompleted.WithLabelValues("success").Inc()
		s.observeRuntime(evt, "success")
	case progress.StageRunError:
		s.runsCompleted.WithLabelValues("error").Inc()
		s.observeRuntime(evt, "error")
	}
	if evt.Stage != progress.StageRunStart && s.tracker.complete(evt.RunID) {
		s.runsRunning.Dec()
	}
}

func (s *PrometheusSink) observeRuntime(evt progress.Event, label string) {
	if evt.Dur > 0 {
		s.runRuntime.WithLabelValues(label).Observe(evt.Dur.Seconds())
	}
}

func (s *PrometheusSink) handlePageEvent(evt progress.Event) {
	chain := chainLabel(evt)
	s.pagesFetched.WithLabelValues(chain).Inc()
	if evt.Reports > 0 {
		s.reportsStored.WithLabelValues(chain).Add(float64(evt.Reports))
	}
	if evt.Skipped > 0 {
		s.reportsSkipped.WithLabelValues(chain).Add(float64(evt.Skipped))
	}
	if evt.Addresses > 0 {
		s.addressRows.WithLabelValues(chain).Add(float64(evt.Addresses))
	}
}

func chainLabel(evt progress.Event) string {
	if evt.Chain == "" {
		return "unknown"
	}
	return evt.Chain
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[[16]byte]struct{})}
}

func (t *runTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
