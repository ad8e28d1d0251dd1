package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/illmade-knight/go-quake/pkg/observability"
	"github.com/illmade-knight/go-quake/pkg/pipeline"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newScheduleCmd(a *app) *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the pipeline on the workflow schedule until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			p, err := buildPipeline(ctx, a.cfg, observability.NewMetrics(), a.logger)
			if err != nil {
				return err
			}
			defer p.Close()

			scheduler, err := pipeline.NewScheduler(p.orchestrator, p.workflow, p.location, clockwork.NewRealClock(), a.logger)
			if err != nil {
				return err
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return scheduler.Run(gctx) })
			if metricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("GET /metrics", promhttp.Handler())
				srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
				g.Go(func() error {
					a.logger.Info().Str("addr", metricsAddr).Msg("Metrics server starting")
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				g.Go(func() error {
					<-gctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return srv.Shutdown(shutdownCtx)
				})
			}
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics on this address while scheduling")
	return cmd
}
