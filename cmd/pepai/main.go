// Command pepai runs the drill service and its operator tools.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/okian/pepai/internal/config"
	"github.com/okian/pepai/pkg/logger"
)

const configEnvVar = "PEPAI_CONFIG"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		jsonLogs   bool
	)
	root := &cobra.Command{
		Use:           "pepai",
		Short:         "PepAI soccer drill service",
		Long:          "pepai serves the drill generation API and ships the share, billing and MCP tooling that operates on the same store.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if configPath != "" {
				if err := os.Setenv(configEnvVar, configPath); err != nil {
					return err
				}
			}
			// stdout belongs to the command's own output everywhere but serve.
			var w io.Writer = cmd.ErrOrStderr()
			if cmd.Name() == "serve" {
				w = cmd.OutOrStdout()
			}
			if err := logger.InitWithWriter(w, jsonLogs); err != nil {
				return fmt.Errorf("failed to initialize logging: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = logger.Sync()
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (default $"+configEnvVar+")")
	root.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "log as JSON")

	root.AddCommand(newServeCmd(), newShareCmd(), newBillingCmd(), newMCPCmd(), newLoadTestCmd())
	return root
}

// loadConfig loads configuration and applies its log level.
func loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return cfg, nil
}
