package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kirillkom/legal-lens/internal/config"
	"github.com/kirillkom/legal-lens/internal/observability/logging"
)

const serviceName = "lensctl"

var (
	cfgFile string
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:   "lensctl",
	Short: "Legal Lens command line tools",
	Long: `lensctl inspects legal documents offline and serves the document
tools over the Model Context Protocol.

Examples:
  lensctl inspect "contracts/**/*.pdf"   # hash, chunk and flag local files
  lensctl mcp serve                      # stdio MCP server for AI assistants`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		_ = godotenv.Load()
		if cfgFile != "" {
			if err := os.Setenv("CONFIG_FILE", cfgFile); err != nil {
				return fmt.Errorf("set CONFIG_FILE: %w", err)
			}
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		// stdout belongs to command output and the MCP transport
		slog.SetDefault(logging.NewJSONLoggerTo(cmd.ErrOrStderr(), serviceName, cfg.LogLevel))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config overlay (same keys as the environment)")
}
