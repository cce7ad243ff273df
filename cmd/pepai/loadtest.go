package main

import (
	"context"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/pepai/internal/loadtest"
)

const defaultLoadTimeout = 10 * time.Minute

func newLoadTestCmd() *cobra.Command {
	cfg := &loadtest.Config{}
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Drive the history save pipeline of a running server",
		Long: `loadtest sends generated history saves to a running server, resending some
with the same idempotency key, then waits for the workers and checks that
history grew by exactly the accepted drills.`,
		Example: `  pepai loadtest --url http://localhost:8080 --saves 5000 --repeat 0.1
  pepai loadtest --token "$ID_TOKEN" --output runs/saves.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, defaultLoadTimeout)
			defer cancel()

			_, err := loadtest.Run(ctx, cfg)
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", "http://localhost:8080", "base URL of the service")
	f.StringVar(&cfg.Token, "token", "", "bearer token (default relies on the server's mock user)")
	f.IntVar(&cfg.Saves, "saves", 1000, "number of save requests")
	f.Float64Var(&cfg.Repeat, "repeat", 0.1, "share of requests that resend an earlier key")
	f.IntVar(&cfg.Workers, "workers", runtime.NumCPU()*2, "concurrent senders")
	f.DurationVar(&cfg.Timeout, "timeout", 30*time.Second, "HTTP request timeout")
	f.DurationVar(&cfg.Settle, "settle", time.Minute, "how long to wait for saves to persist")
	f.Uint64Var(&cfg.Seed, "seed", 0, "generator seed (0 picks one)")
	f.StringVar(&cfg.Output, "output", "", "write the generated requests to this file")
	return cmd
}
