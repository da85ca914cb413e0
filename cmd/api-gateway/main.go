package main

import (
	"fmt"
	"os"

	"github.com/lgulliver/docdesk/pkg/config"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "api-gateway",
	Short: "Session-scoped document processing API",
	Long: `docdesk accepts document uploads into short-lived sessions, runs one
conversion tool per session in the background and serves the result for a
single download.

Configuration comes from an optional TOML file and environment variables;
environment variables win.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("DOCDESK_CONFIG"), "Path to a TOML config file")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg.Logging.SetupLogging()
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
