// Package app initializes and holds long-lived application services, acting
// as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/scamtrace/chainabuse-sync/internal/api"
	"github.com/scamtrace/chainabuse-sync/internal/archive"
	"github.com/scamtrace/chainabuse-sync/internal/chainabuse"
	"github.com/scamtrace/chainabuse-sync/internal/clock/system"
	"github.com/scamtrace/chainabuse-sync/internal/config"
	"github.com/scamtrace/chainabuse-sync/internal/fetcher"
	"github.com/scamtrace/chainabuse-sync/internal/logging"
	"github.com/scamtrace/chainabuse-sync/internal/notify"
	"github.com/scamtrace/chainabuse-sync/internal/progress"
	"github.com/scamtrace/chainabuse-sync/internal/progress/sinks"
	"github.com/scamtrace/chainabuse-sync/internal/scheduler"
	"github.com/scamtrace/chainabuse-sync/internal/status"
	"github.com/scamtrace/chainabuse-sync/internal/store"
)

// App holds all the shared, long-lived services for the application. It is
// initialized once at startup and passed to the commands that need it.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	store     store.Store
	archiver  archive.Provider
	notifier  notify.Provider
	hub       *progress.Hub
	tracker   *status.Tracker
	fetcher   *fetcher.Fetcher
	scheduler *scheduler.Scheduler
	server    *api.Server
}

// Config returns the validated service configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Store exposes the report store.
func (a *App) Store() store.Store { return a.store }

// Fetcher exposes the fetch pipeline.
func (a *App) Fetcher() *fetcher.Fetcher { return a.fetcher }

// Scheduler exposes the periodic run trigger.
func (a *App) Scheduler() *scheduler.Scheduler { return a.scheduler }

// Server exposes the HTTP surface.
func (a *App) Server() *api.Server { return a.server }

// New creates and initializes an App from the configuration. It is the
// central point for service initialization and fails fast when any critical
// service cannot be built.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	logger.Info("initializing application services")

	st, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	archiver, err := buildArchiver(ctx, cfg, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	notifier, err := buildNotifier(ctx, cfg, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	client, err := chainabuse.NewClient(chainabuse.Config{
		URL:        cfg.API.URL,
		Token:      cfg.API.Token,
		PageSize:   cfg.API.PageSize,
		Timeout:    cfg.APITimeout(),
		MaxRetries: cfg.API.MaxRetries,
		RPS:        cfg.API.RPS,
	}, logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("initialize chainabuse client: %w", err)
	}

	tracker := status.NewTracker()
	promSink, err := sinks.NewPrometheusSink(nil)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("initialize progress metrics: %w", err)
	}
	// A short batch wait keeps GET /status close behind a finished run; the
	// status tracker only sees events after the hub flushes.
	hub := progress.NewHub(progress.Config{
		Logger:       logger,
		MaxBatchWait: 50 * time.Millisecond,
	}, tracker, promSink, sinks.NewLogSink(logger))

	f, err := fetcher.New(client, st, archiver, notifier, hub, system.New(), fetcher.Config{
		Chains:        cfg.API.Chains,
		TrustedOnly:   cfg.Fetch.TrustedOnly,
		ClearExisting: cfg.Fetch.ClearExisting,
	}, logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("initialize fetcher: %w", err)
	}

	sched, err := scheduler.New(f, cfg.FetchInterval(), logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("initialize scheduler: %w", err)
	}

	server := api.NewServer(f, st, tracker, api.Config{
		APIKey: cfg.Server.APIKey,
	}, logger)

	logger.Info("application services initialized")
	return &App{
		cfg:       cfg,
		logger:    logger,
		store:     st,
		archiver:  archiver,
		notifier:  notifier,
		hub:       hub,
		tracker:   tracker,
		fetcher:   f,
		scheduler: sched,
		server:    server,
	}, nil
}

func buildStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Store, error) {
	switch cfg.DB.Provider {
	case "postgres":
		logger.Info("connecting to postgres")
		st, err := store.NewPostgresStore(ctx, store.PostgresConfig{
			DSN:      cfg.DB.DSN,
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
			Migrate:  cfg.DB.Migrate,
		})
		if err != nil {
			return nil, fmt.Errorf("initialize postgres store: %w", err)
		}
		return st, nil
	case "memory":
		logger.Info("using in-memory report store, data will not survive restarts")
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown db provider: %s", cfg.DB.Provider)
	}
}

func buildArchiver(ctx context.Context, cfg config.Config, logger *zap.Logger) (archive.Provider, error) {
	switch cfg.Archive.Provider {
	case "gcs":
		logger.Info("using GCS archive provider", zap.String("bucket", cfg.Archive.GCSBucket))
		p, err := archive.NewGCSProvider(ctx, cfg.Archive.GCSBucket, logger)
		if err != nil {
			return nil, fmt.Errorf("initialize gcs archive: %w", err)
		}
		return p, nil
	case "local":
		logger.Info("using local archive provider", zap.String("base_dir", cfg.Archive.BaseDir))
		p, err := archive.NewLocalProvider(cfg.Archive.BaseDir)
		if err != nil {
			return nil, fmt.Errorf("initialize local archive: %w", err)
		}
		return p, nil
	case "memory":
		return archive.NewMemoryProvider(), nil
	case "noop":
		logger.Info("raw API responses will not be archived")
		return &archive.NoOpProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown archive provider: %s", cfg.Archive.Provider)
	}
}

func buildNotifier(ctx context.Context, cfg config.Config, logger *zap.Logger) (notify.Provider, error) {
	switch cfg.Notify.Provider {
	case "pubsub":
		logger.Info("connecting to pub/sub", zap.String("topic", cfg.Notify.TopicID))
		p, err := notify.NewPubSubProvider(ctx, cfg.Notify.ProjectID, cfg.Notify.TopicID, logger)
		if err != nil {
			return nil, fmt.Errorf("initialize pubsub notifier: %w", err)
		}
		return p, nil
	case "memory":
		return notify.NewMemoryProvider(), nil
	case "noop":
		return &notify.NoOpProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown notify provider: %s", cfg.Notify.Provider)
	}
}

// Close gracefully shuts down all services in the container. The hub is
// drained first so in-flight progress events still reach their sinks.
func (a *App) Close() {
	a.logger.Info("shutting down application services")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.hub.Close(ctx); err != nil {
		a.logger.Warn("error draining progress hub", zap.Error(err))
	}
	if err := a.notifier.Close(); err != nil {
		a.logger.Warn("error closing notifier", zap.Error(err))
	}
	a.store.Close()

	// Best effort; logging itself might be failing.
	_ = a.logger.Sync()
}
