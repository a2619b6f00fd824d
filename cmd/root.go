// Package cmd defines and implements the CLI commands for the abusesync
// executable.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scamtrace/chainabuse-sync/internal/api"
	"github.com/scamtrace/chainabuse-sync/internal/app"
	"github.com/scamtrace/chainabuse-sync/internal/config"
	"github.com/scamtrace/chainabuse-sync/internal/fetcher"
	"github.com/scamtrace/chainabuse-sync/internal/scheduler"
	"github.com/scamtrace/chainabuse-sync/internal/store"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application surface that commands use. Keeping it an
// interface lets tests inject a lightweight fake via newApp.
type App interface {
	Close()
	Config() config.Config
	Logger() *zap.Logger
	Store() store.Store
	Fetcher() *fetcher.Fetcher
	Scheduler() *scheduler.Scheduler
	Server() *api.Server
}

// newApp is the application factory; tests replace it with a fake.
var newApp = func(ctx context.Context) (App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg)
}

// newRootCmd creates and configures the root command. The app container is
// built in PersistentPreRunE, after flags are parsed, and torn down in
// PersistentPostRun.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "abusesync",
		Short: "Synchronizes chainabuse.com scam reports into Postgres.",
		Long: `abusesync polls the chainabuse.com reports API across the configured
blockchain networks, normalizes each report, and upserts it together with its
accused addresses into the report database. It can run as a long-lived HTTP
service with a periodic schedule, or execute a single one-shot sync.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (all settings also bind to ABUSESYNC_* env vars)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newFetchCmd())

	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
