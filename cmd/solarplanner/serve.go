package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/solarafrica/solarplanner/internal/api"
	"github.com/solarafrica/solarplanner/internal/cron"
)

func serveCmd() *cobra.Command {
	var withWorker bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			cfg := configFrom(cmd)
			logger := zerolog.Ctx(ctx)

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if withWorker {
				w := a.worker()
				go func() {
					if err := w.Run(ctx); err != nil && ctx.Err() == nil {
						logger.Error().Err(err).Msg("recalculation worker stopped")
					}
				}()
			}

			srv := api.NewServer(*logger, api.Config{
				Addr:            cfg.Addr(),
				ShutdownTimeout: 10 * time.Second,
				Dependencies: api.Dependencies{
					Store:      a.store,
					Calculator: a.calculator,
					Auth:       a.auth,
					Plans:      a.plans,

					Jobs:           a.store,
					Alerter:        a.alerter,
					RecalcSchedule: cfg.RecalcSchedule,
				},
			})
			return srv.Start(ctx)
		},
	}

	cmd.Flags().BoolVar(&withWorker, "with-worker", false, "Also run the recalculation worker in this process")
	return cmd
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the scheduled plan recalculation worker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			cfg := configFrom(cmd)

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			w := a.worker()
			err = w.Run(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
}

func recalculateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recalculate",
		Short: "Recalculate every stored plan once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, configFrom(cmd))
			if err != nil {
				return err
			}
			defer a.Close()

			sum, err := cron.RunBatch(ctx, a.store, a.plans, a.alerter)
			fmt.Fprintf(cmd.OutOrStdout(), "plans: %d, changed: %d, failed: %d\n", sum.Total, sum.Changed, sum.Failed)
			return err
		},
	}
}
