package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	enableConfigPath  string
	disableConfigPath string
)

var enableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Enable curation runs",
	RunE: func(_ *cobra.Command, _ []string) error {
		return setEnabled(enableConfigPath, true)
	},
}

var disableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Disable curation runs",
	Long:  `Disable the curation system. In-flight runs finish; new runs are rejected at the guard.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		return setEnabled(disableConfigPath, false)
	},
}

func init() {
	enableCmd.Flags().StringVar(&enableConfigPath, "config", "", "Path to config.json file")
	disableCmd.Flags().StringVar(&disableConfigPath, "config", "", "Path to config.json file")
	rootCmd.AddCommand(enableCmd)
	rootCmd.AddCommand(disableCmd)
}

func setEnabled(configPath string, enabled bool) error {
	ctx := context.Background()

	cfg, err := loadAppConfig(configPath)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.toggle.Set(ctx, enabled); err != nil {
		return err
	}
	if enabled {
		fmt.Println("Curation enabled")
	} else {
		fmt.Println("Curation disabled")
	}
	return nil
}
