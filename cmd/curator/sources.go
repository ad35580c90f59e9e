package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/video-curator/internal/observability"
)

var (
	sourcesConfigPath string
	addChannelID      string
	addChannelTitle   string
	addVerified       bool
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage the rotation source pool",
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all curation sources",
	RunE:  runSourcesList,
}

var sourcesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add or update a curation source",
	RunE:  runSourcesAdd,
}

func init() {
	sourcesCmd.PersistentFlags().StringVar(&sourcesConfigPath, "config", "", "Path to config.json file")

	sourcesAddCmd.Flags().StringVar(&addChannelID, "channel-id", "", "Platform channel id (required)")
	sourcesAddCmd.Flags().StringVar(&addChannelTitle, "title", "", "Channel title (required)")
	sourcesAddCmd.Flags().BoolVar(&addVerified, "verified", false, "Mark the source as verified (relaxed quality bar)")
	_ = sourcesAddCmd.MarkFlagRequired("channel-id")
	_ = sourcesAddCmd.MarkFlagRequired("title")

	sourcesCmd.AddCommand(sourcesListCmd)
	sourcesCmd.AddCommand(sourcesAddCmd)
	rootCmd.AddCommand(sourcesCmd)
}

func runSourcesList(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := loadAppConfig(sourcesConfigPath)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	sources, err := a.db.ListSources(ctx)
	if err != nil {
		return err
	}

	observability.NewPrinter(os.Stdout).PrintSources(sources)
	return nil
}

func runSourcesAdd(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := loadAppConfig(sourcesConfigPath)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	source, err := a.db.UpsertSource(ctx, addChannelID, addChannelTitle, addVerified)
	if err != nil {
		return err
	}

	fmt.Printf("Saved source %s (%s)\n", source.ChannelTitle, source.ChannelID)
	return nil
}
