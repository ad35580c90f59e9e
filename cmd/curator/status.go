package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/video-curator/internal/observability"
)

var statusConfigPath string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show curation system status",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusConfigPath, "config", "", "Path to config.json file")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := loadAppConfig(statusConfigPath)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.orchestrator.Status(ctx)
	if err != nil {
		return err
	}

	state := "disabled"
	if st.Enabled {
		state = "enabled"
	}
	fmt.Printf("Curation:         %s\n", state)
	fmt.Printf("Library:          %d / %d videos\n", st.LibrarySize, st.TargetSize)
	fmt.Printf("Selectable:       %d sources\n", st.PendingTargets)
	fmt.Printf("Pending analysis: %d videos\n", st.PendingAnalysis)
	if st.ActiveRun != nil {
		fmt.Printf("Active run:       %s (started %s)\n",
			st.ActiveRun.ID, st.ActiveRun.StartedAt.Format("15:04:05"))
	}
	fmt.Println()

	printer := observability.NewPrinter(os.Stdout)
	printer.PrintQuotaStatus(st.Quota)
	if st.LastRun != nil {
		printer.PrintRunSummary(st.LastRun)
	}
	return nil
}
