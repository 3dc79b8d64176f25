package main

import (
	"encoding/json"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-reply-bot/internal/observability"
	"github.com/tbourn/go-reply-bot/internal/services"
)

func newOnceCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single cycle and print its outcome",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
			if err != nil {
				return err
			}
			defer flush(shutdownOTel)

			a := openState(cfg)
			runner := services.Runner{Cycles: a.pipeline()}
			out, runErr := runner.RunOnce(ctx)
			a.scheduler.LogStats(cfg.Policy.MaxActionsPerDay)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			encErr := enc.Encode(out)
			return errors.Join(runErr, encErr, a.Close())
		},
	}
}
