// Package fetcher implements the sync pipeline: page through the chainabuse
// reports connection per chain, normalize the nodes, and write them to the
// report store in a single transaction per report.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scamtrace/chainabuse-sync/internal/archive"
	"github.com/scamtrace/chainabuse-sync/internal/chainabuse"
	"github.com/scamtrace/chainabuse-sync/internal/notify"
	"github.com/scamtrace/chainabuse-sync/internal/progress"
	"github.com/scamtrace/chainabuse-sync/internal/store"
)

// ErrAlreadyRunning is returned by Run when a fetch run is already in flight.
var ErrAlreadyRunning = errors.New("a fetch run is already in progress")

// unifiedAddressType tags every row written to unified_addresses.
const unifiedAddressType = "scam"

// Client fetches one page of the reports connection.
type Client interface {
	ReportsPage(ctx context.Context, chain, after string) (*chainabuse.ReportsPage, error)
}

// Clock abstracts time.Now so tests can control run timestamps.
type Clock interface {
	Now() time.Time
}

// Config controls pipeline behavior for every run.
type Config struct {
	// Chains is the ordered list of networks to poll.
	Chains []string
	// TrustedOnly drops reports not filed by a trusted reporter.
	TrustedOnly bool
	// ClearExisting wipes the report tables before the first page is stored.
	ClearExisting bool
	// MaxPagesPerChain bounds pagination per chain; zero means unbounded.
	MaxPagesPerChain int
}

// ChainFailure records a chain the run could not finish.
type ChainFailure struct {
	Chain string `json:"chain"`
	Error string `json:"error"`
}

// RunResult summarizes one fetch run for the API and the logs.
type RunResult struct {
	RunID         uuid.UUID      `json:"run_id"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    time.Time      `json:"finished_at"`
	Duration      time.Duration  `json:"duration_ns"`
	Pages         int64          `json:"pages"`
	Stored        int64          `json:"reports_stored"`
	Created       int64          `json:"reports_created"`
	Skipped       int64          `json:"reports_skipped"`
	Addresses     int64          `json:"address_rows"`
	ChainsOK      []string       `json:"chains_ok"`
	ChainsFailed  []ChainFailure `json:"chains_failed,omitempty"`
	ClearedBefore bool           `json:"cleared_before,omitempty"`
}

// Failed reports whether every chain in the run errored.
func (r *RunResult) Failed() bool {
	return len(r.ChainsOK) == 0 && len(r.ChainsFailed) > 0
}

// Fetcher executes fetch runs against the configured chains.
type Fetcher struct {
	client   Client
	store    store.Store
	archiver archive.Provider
	notifier notify.Provider
	emitter  progress.Emitter
	clock    Clock
	cfg      Config
	logger   *zap.Logger

	running atomic.Bool
}

// New constructs a Fetcher. All collaborators are required except the
// archiver and notifier, which fall back to no-ops.
func New(
	client Client,
	st store.Store,
	archiver archive.Provider,
	notifier notify.Provider,
	emitter progress.Emitter,
	clock Clock,
	cfg Config,
	logger *zap.Logger,
) (*Fetcher, error) {
	if client == nil {
		return nil, errors.New("client is required")
	}
	if st == nil {
		return nil, errors.New("store is required")
	}
	if emitter == nil {
		return nil, errors.New("progress emitter is required")
	}
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	if len(cfg.Chains) == 0 {
		return nil, errors.New("at least one chain is required")
	}
	if archiver == nil {
		archiver = &archive.NoOpProvider{}
	}
	if notifier == nil {
		notifier = &notify.NoOpProvider{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		client:   client,
		store:    st,
		archiver: archiver,
		notifier: notifier,
		emitter:  emitter,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// Running reports whether a fetch run is currently in flight.
func (f *Fetcher) Running() bool {
	return f.running.Load()
}

// Run executes one complete fetch run across all configured chains. Only one
// run may be in flight at a time; concurrent callers get ErrAlreadyRunning.
// A chain that fails is recorded and the run moves on to the next one; Run
// returns an error only when every chain failed or the initial clear failed.
func (f *Fetcher) Run(ctx context.Context) (*RunResult, error) {
	if !f.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer f.running.Store(false)
	return f.execute(ctx, uuid.New())
}

// Start launches a run in the background and returns its id immediately.
// Callers must pass a context that outlives the triggering request.
func (f *Fetcher) Start(ctx context.Context) (uuid.UUID, error) {
	if !f.running.CompareAndSwap(false, true) {
		return uuid.Nil, ErrAlreadyRunning
	}
	runID := uuid.New()
	go func() {
		defer f.running.Store(false)
		// Errors are already logged and emitted inside execute.
		_, _ = f.execute(ctx, runID)
	}()
	return runID, nil
}

func (f *Fetcher) execute(ctx context.Context, runID uuid.UUID) (*RunResult, error) {
	start := f.clock.Now()
	result := &RunResult{RunID: runID, StartedAt: start}
	logger := f.logger.With(zap.String("run_id", runID.String()))

	logger.Info("fetch run starting",
		zap.Strings("chains", f.cfg.Chains),
		zap.Bool("trusted_only", f.cfg.TrustedOnly),
		zap.Bool("clear_existing", f.cfg.ClearExisting),
	)
	f.emit(progress.Event{
		RunID: progress.UUIDToBytes(runID),
		TS:    start,
		Stage: progress.StageRunStart,
	})

	if f.cfg.ClearExisting {
		if err := f.store.ClearReports(ctx); err != nil {
			f.finishRun(result, logger, fmt.Errorf("clear existing data: %w", err))
			return result, fmt.Errorf("clear existing data: %w", err)
		}
		result.ClearedBefore = true
		logger.Info("existing report data cleared")
	}

	for _, chain := range f.cfg.Chains {
		if err := ctx.Err(); err != nil {
			f.finishRun(result, logger, fmt.Errorf("run canceled: %w", err))
			return result, err
		}
		if err := f.syncChain(ctx, runID, chain, result, logger); err != nil {
			result.ChainsFailed = append(result.ChainsFailed, ChainFailure{
				Chain: chain,
				Error: err.Error(),
			})
			logger.Error("chain sync failed", zap.String("chain", chain), zap.Error(err))
			f.emit(progress.Event{
				RunID: progress.UUIDToBytes(runID),
				TS:    f.clock.Now(),
				Stage: progress.StageChainError,
				Chain: chain,
				Note:  err.Error(),
			})
			continue
		}
		result.ChainsOK = append(result.ChainsOK, chain)
	}

	if result.Failed() {
		err := fmt.Errorf("all %d chains failed", len(result.ChainsFailed))
		f.finishRun(result, logger, err)
		return result, err
	}
	f.finishRun(result, logger, nil)
	return result, nil
}

// finishRun stamps the result and emits the terminal run event.
func (f *Fetcher) finishRun(result *RunResult, logger *zap.Logger, runErr error) {
	result.FinishedAt = f.clock.Now()
	result.Duration = result.FinishedAt.Sub(result.StartedAt)

	evt := progress.Event{
		RunID: progress.UUIDToBytes(result.RunID),
		TS:    result.FinishedAt,
		Stage: progress.StageRunDone,
		Dur:   result.Duration,
	}
	if runErr != nil {
		evt.Stage = progress.StageRunError
		evt.Note = runErr.Error()
		logger.Error("fetch run failed", zap.Error(runErr), zap.Duration("duration", result.Duration))
	} else {
		logger.Info("fetch run finished",
			zap.Int64("pages", result.Pages),
			zap.Int64("stored", result.Stored),
			zap.Int64("created", result.Created),
			zap.Int64("skipped", result.Skipped),
			zap.Int64("addresses", result.Addresses),
			zap.Strings("chains_ok", result.ChainsOK),
			zap.Int("chains_failed", len(result.ChainsFailed)),
			zap.Duration("duration", result.Duration),
		)
	}
	f.emit(evt)
}

// syncChain pages through one chain until the connection is exhausted.
func (f *Fetcher) syncChain(ctx context.Context, runID uuid.UUID, chain string, result *RunResult, logger *zap.Logger) error {
	after := ""
	for page := 1; ; page++ {
		if f.cfg.MaxPagesPerChain > 0 && page > f.cfg.MaxPagesPerChain {
			logger.Warn("page cap reached, leaving remainder for the next run",
				zap.String("chain", chain),
				zap.Int("max_pages", f.cfg.MaxPagesPerChain),
			)
			return nil
		}

		pageStart := f.clock.Now()
		reportsPage, err := f.client.ReportsPage(ctx, chain, after)
		if err != nil {
			return fmt.Errorf("fetch page %d: %w", page, err)
		}

		f.archivePage(ctx, runID, chain, page, reportsPage.Raw, logger)

		stored, created, skipped, addresses, err := f.storePage(ctx, chain, reportsPage)
		if err != nil {
			return fmt.Errorf("store page %d: %w", page, err)
		}

		result.Pages++
		result.Stored += stored
		result.Created += created
		result.Skipped += skipped
		result.Addresses += addresses

		f.emit(progress.Event{
			RunID:     progress.UUIDToBytes(runID),
			TS:        f.clock.Now(),
			Stage:     progress.StagePageDone,
			Chain:     chain,
			Page:      page,
			Reports:   stored,
			Skipped:   skipped,
			Addresses: addresses,
			Dur:       f.clock.Now().Sub(pageStart),
		})

		if !reportsPage.PageInfo.HasNextPage {
			return nil
		}
		after = reportsPage.PageInfo.EndCursor
		if after == "" {
			return fmt.Errorf("page %d reports a next page but no end cursor", page)
		}
	}
}

// storePage normalizes and upserts every node on the page.
func (f *Fetcher) storePage(ctx context.Context, chain string, page *chainabuse.ReportsPage) (stored, created, skipped, addresses int64, err error) {
	for _, edge := range page.Edges {
		node := edge.Node
		if node.ID == "" {
			skipped++
			continue
		}
		if f.cfg.TrustedOnly && !node.Trusted() {
			skipped++
			continue
		}

		rep, addrRows, unifiedRows := normalizeReport(chain, node)
		wasCreated, upsertErr := f.store.UpsertReport(ctx, rep, addrRows, unifiedRows)
		if upsertErr != nil {
			return stored, created, skipped, addresses, fmt.Errorf("upsert report %s: %w", node.ID, upsertErr)
		}
		stored++
		addresses += int64(len(addrRows))
		if wasCreated {
			created++
			f.notifyStored(ctx, node.ID)
		}
	}
	return stored, created, skipped, addresses, nil
}

// archivePage is best effort; a failed save is logged and the run continues.
func (f *Fetcher) archivePage(ctx context.Context, runID uuid.UUID, chain string, page int, raw []byte, logger *zap.Logger) {
	if len(raw) == 0 {
		return
	}
	objectName := fmt.Sprintf("%s/%s/page-%d.json", runID.String(), chain, page)
	if err := f.archiver.Save(ctx, objectName, raw); err != nil {
		logger.Warn("archive save failed",
			zap.String("object", objectName),
			zap.Error(err),
		)
	}
}

// notifyStored is best effort as well; downstream consumers tolerate gaps.
func (f *Fetcher) notifyStored(ctx context.Context, reportID string) {
	if err := f.notifier.Publish(ctx, reportID); err != nil {
		f.logger.Warn("publish stored-report notification failed",
			zap.String("report_id", reportID),
			zap.Error(err),
		)
	}
}

func (f *Fetcher) emit(evt progress.Event) {
	f.emitter.Emit(evt)
}

// normalizeReport maps an API node onto the three row shapes the store
// persists. Unified rows carry the reporter-derived source string consumed
// by downstream screening tools.
func normalizeReport(chain string, node chainabuse.Report) (store.Report, []store.ReportAddress, []store.UnifiedAddress) {
	rep := store.Report{
		ID:                     node.ID,
		IsPrivate:              node.IsPrivate,
		CreatedAt:              node.CreatedAt,
		ScamCategory:           node.ScamCategory,
		CategoryDescription:    node.CategoryDescription,
		BiDirectionalVoteCount: node.BiDirectionalVoteCount,
		ViewerDidVote:          node.ViewerDidVote,
		Description:            node.Description,
		CommentsCount:          node.CommentsCount,
		Source:                 node.Source,
		Checked:                node.Checked,
		Chain:                  chain,
	}

	// Anonymous or deleted reporters still mark the unified row.
	reporterName := "unknown"
	if node.ReportedBy != nil {
		rep.ReportedByID = node.ReportedBy.ID
		rep.ReportedByUsername = node.ReportedBy.Username
		rep.ReportedByTrusted = node.ReportedBy.Trusted
		if node.ReportedBy.Username != "" {
			reporterName = node.ReportedBy.Username
		}
	}
	unifiedSource := fmt.Sprintf("chainabuse marked by %s", reporterName)

	var addrRows []store.ReportAddress
	var unifiedRows []store.UnifiedAddress
	for _, addr := range node.Addresses {
		if addr.Address == "" {
			continue
		}
		addrChain := addr.Chain
		if addrChain == "" {
			addrChain = chain
		}
		addrRows = append(addrRows, store.ReportAddress{
			ID:       addr.ID,
			ReportID: node.ID,
			Address:  addr.Address,
			Chain:    addrChain,
		})
		unifiedRows = append(unifiedRows, store.UnifiedAddress{
			Address:     addr.Address,
			Type:        unifiedAddressType,
			AddressName: node.ScamCategory,
			Source:      unifiedSource,
		})
	}
	return rep, addrRows, unifiedRows
}
