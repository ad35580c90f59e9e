package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/video-curator/internal/db"
	"github.com/jonathan/video-curator/internal/observability"
)

var (
	runConfigPath  string
	runTriggeredBy string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one curation run",
	Long: `Checks the run-start guards (enabled flag, library size, quota, single-flight),
then discovers and screens candidates from the rotation slate until the
per-run search budget is spent.`,
	RunE: runCuration,
}

func init() {
	runCmd.Flags().StringVar(&runConfigPath, "config", "", "Path to config.json file")
	runCmd.Flags().StringVar(&runTriggeredBy, "triggered-by", "cli", "Operator identifier recorded on the run")
	rootCmd.AddCommand(runCmd)
}

func runCuration(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := loadAppConfig(runConfigPath)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	// Sweep orphans before starting; a stuck run would otherwise hold the
	// single-flight slot forever.
	if resumed, failed, err := a.orchestrator.RecoverStuckRuns(ctx); err != nil {
		return fmt.Errorf("failed to recover stuck runs: %w", err)
	} else if resumed+failed > 0 {
		fmt.Printf("Recovered %d stuck run(s): %d resumed, %d failed\n", resumed+failed, resumed, failed)
	}

	run, rejection, err := a.orchestrator.Run(ctx, db.RunKindManual, runTriggeredBy)
	if err != nil {
		return err
	}
	if rejection != nil {
		fmt.Printf("Run not started: %s\n", rejection.Reason)
		return nil
	}

	printer := observability.NewPrinter(os.Stdout)
	printer.PrintRunSummary(run)

	ledger, err := a.tracker.Usage(ctx)
	if err != nil {
		return err
	}
	printer.PrintQuotaStatus(ledger)
	return nil
}
