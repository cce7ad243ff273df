package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	app "github.com/okian/pepai/internal/app"
	"github.com/okian/pepai/internal/billing"
	"github.com/okian/pepai/pkg/logger"
)

var errNoUID = errors.New("--uid is required")

func newBillingCmd() *cobra.Command {
	var (
		uid    string
		format string
	)
	cmd := &cobra.Command{
		Use:   "billing",
		Short: "Inspect and exercise billing against the configured store",
	}
	cmd.PersistentFlags().StringVar(&uid, "uid", "", "user id")
	cmd.PersistentFlags().StringVarP(&format, "format", "f", formatJSON, "output format: json or yaml")

	cmd.AddCommand(&cobra.Command{
		Use:   "account",
		Short: "Print a user's balances and plan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBilling(cmd.Context(), uid, func(ctx context.Context, svc *billing.Service) error {
				acct, err := svc.Account(ctx, uid, "")
				if err != nil {
					return err
				}
				return printValue(cmd.OutOrStdout(), format, acct)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "simulate-renewal",
		Short: "Record a renewal payment and apply it",
		Long:  "Writes a succeeded payment for the user, as the payment provider does when a subscription renews, and prints the profile before and after.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBilling(cmd.Context(), uid, func(ctx context.Context, svc *billing.Service) error {
				r, err := svc.SimulateRenewal(ctx, uid)
				if err != nil {
					return err
				}
				return printValue(cmd.OutOrStdout(), format, r)
			})
		},
	})
	return cmd
}

func withBilling(ctx context.Context, uid string, fn func(context.Context, *billing.Service) error) error {
	if uid == "" {
		return errNoUID
	}
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	log := logger.Get()
	st, err := app.OpenStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(ctx, app.NewBilling(cfg, st, log))
}
