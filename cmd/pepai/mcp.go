package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/okian/pepai/internal/adapters/mcp"
	app "github.com/okian/pepai/internal/app"
	"github.com/okian/pepai/pkg/logger"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the pitch editor and drill tools over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			log := logger.Get()
			svc := app.New(cfg, app.WithLogger(log))
			if err := svc.Start(ctx); err != nil {
				return err
			}
			defer func() { _ = svc.Stop(context.WithoutCancel(ctx)) }()

			gen, err := svc.Generator()
			if err != nil {
				return err
			}
			st, err := svc.Store()
			if err != nil {
				return err
			}
			srv := mcp.NewServer(
				mcp.WithGenerator(gen),
				mcp.WithShares(st),
				mcp.WithMaxPromptLength(cfg.MaxPromptLength),
				mcp.WithLogger(log.Named("mcp")),
			)
			return srv.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}
