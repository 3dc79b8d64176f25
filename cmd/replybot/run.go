package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	httpapi "github.com/tbourn/go-reply-bot/internal/http"
	"github.com/tbourn/go-reply-bot/internal/http/handlers"
	"github.com/tbourn/go-reply-bot/internal/observability"
	"github.com/tbourn/go-reply-bot/internal/services"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run a cycle now and then every CYCLE_INTERVAL_HOURS until interrupted",
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
			p := a.pipeline()
			a.scheduler.LogStats(cfg.Policy.MaxActionsPerDay)

			var (
				srv *http.Server
				h   *handlers.Handlers
			)
			if cfg.StatusEnabled {
				h = handlers.New(ctx, handlers.Deps{
					Cycles:    p,
					Quota:     a.scheduler,
					Ledger:    a.ledger,
					Attempts:  attemptReader(a),
					MaxPerDay: cfg.Policy.MaxActionsPerDay,
				})
				srv = httpapi.NewServer(httpapi.NewEngine(h, cfg), cfg)
				go func() {
					log.Info().Str("addr", srv.Addr).Msg("status server listening")
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						log.Error().Err(err).Msg("status server failed")
						stop()
					}
				}()
			}

			runner := &services.Runner{Cycles: p, Interval: cfg.Policy.CycleInterval}
			runErr := runner.Run(ctx)

			if srv != nil {
				sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				if err := srv.Shutdown(sctx); err != nil {
					log.Warn().Err(err).Msg("status server shutdown")
				}
				cancel()
				h.Wait()
			}
			log.Info().Msg("replybot stopped")
			return errors.Join(runErr, a.Close())
		},
	}
}

// attemptReader keeps the handler dependency nil when the journal is off.
func attemptReader(a *app) handlers.AttemptReader {
	if a.db == nil {
		return nil
	}
	return a.journal
}

func flush(shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("telemetry shutdown")
	}
}
