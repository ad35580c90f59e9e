package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	analyzeConfigPath string
	analyzeLimit      int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Process the pending analysis queue",
	Long:  `Classifies admitted videos with the LLM and stores the validated results. Entries that keep failing are retried until they run out of attempts.`,
	RunE:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeConfigPath, "config", "", "Path to config.json file")
	analyzeCmd.Flags().IntVar(&analyzeLimit, "limit", 20, "Maximum queue entries to process")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := loadAppConfig(analyzeConfigPath)
	if err != nil {
		return err
	}
	if cfg.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	processed, failed, err := a.worker.ProcessPending(ctx, analyzeLimit)
	if err != nil {
		return err
	}

	fmt.Printf("Analysis complete: %d processed, %d failed\n", processed, failed)
	return nil
}
