package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newFetchCmd creates the 'fetch' subcommand: a one-shot sync run that
// prints the run summary and exits.
func newFetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Runs a single sync against all configured chains and exits",
		RunE:  runFetchCommand,
	}
}

func runFetchCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.Logger()

	result, err := appInstance.Fetcher().Run(cmd.Context())
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("fetch run: %w", err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run summary: %w", err)
	}
	cmd.Println(string(out))

	logger.Info("fetch command finished", zap.String("run_id", result.RunID.String()))
	return nil
}
