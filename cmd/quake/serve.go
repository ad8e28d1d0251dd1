package main

import (
	"context"

	"github.com/illmade-knight/go-quake/pkg/observability"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(a *app) *cobra.Command {
	var warm bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve magnitude predictions over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			s, err := buildServing(ctx, a.cfg, observability.NewMetrics(), a.logger)
			if err != nil {
				return err
			}
			defer s.Close()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(s.server.Start)
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Serving.ShutdownTimeout)
				defer cancel()
				a.logger.Info().Msg("Shutting down prediction server")
				return s.server.Shutdown(shutdownCtx)
			})
			if warm {
				// A failed warm-up leaves the model Unloaded; the first request retries.
				g.Go(func() error {
					if _, err := s.models.Get(gctx); err != nil {
						a.logger.Warn().Err(err).Msg("Model warm-up failed")
					}
					return nil
				})
			}
			return g.Wait()
		},
	}
	cmd.Flags().BoolVar(&warm, "warm", false, "load the model at startup instead of on the first request")
	return cmd
}
