package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conocermx/renec-harvester/internal/harvester"
)

// newHarvestCmd creates the 'harvest' subcommand, which runs the two-phase
// listing and detail extraction across every registered entity driver.
func newHarvestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "harvest",
		Short: "Extracts registry entities from the portal",
		Long: `Starts every entity driver at its listing entry point, pages through
the listings, follows each row to its detail page, and upserts the merged
records and relationships into the configured sink.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMode(cmd, harvester.ModeHarvest)
		},
	}
}

func runMode(cmd *cobra.Command, mode harvester.Mode) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := a.scheduler.Run(ctx, mode)
	a.runs.Record(summary)

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run %s: %w", mode, err)
	}
	if errors.Is(err, context.Canceled) {
		a.logger.Warn("Run interrupted, partial summary follows", zap.String("run_id", summary.RunID))
	}

	return printSummary(summary)
}

func printSummary(summary harvester.RunSummary) error {
	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
