package main

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/jonathan/video-curator/internal/server"
)

var (
	serveConfigPath string
	serveAddr       string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the control API server",
	Long:  `Start an HTTP server exposing run triggers, status, quota, source pool, and analysis queue endpoints.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "Path to config.json file")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default :8080)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := loadAppConfig(serveConfigPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("addr") {
		cfg.ServerAddr = serveAddr
	}
	if cfg.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if resumed, failed, err := a.orchestrator.RecoverStuckRuns(ctx); err != nil {
		log.Printf("Stuck-run recovery failed: %v", err)
	} else if resumed+failed > 0 {
		log.Printf("Recovered %d stuck run(s): %d resumed, %d failed", resumed+failed, resumed, failed)
	}

	srv := server.New(server.Config{Addr: cfg.ServerAddr},
		a.db, a.orchestrator, a.toggle, a.worker, a.tracker)
	return srv.Start()
}
