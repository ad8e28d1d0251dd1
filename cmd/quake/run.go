package main

import (
	"fmt"

	"github.com/illmade-knight/go-quake/pkg/observability"
	"github.com/illmade-knight/go-quake/pkg/types"
	"github.com/spf13/cobra"
)

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Execute one pipeline run now: extract, archive, load, transform",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			p, err := buildPipeline(ctx, a.cfg, observability.NewMetrics(), a.logger)
			if err != nil {
				return err
			}
			defer p.Close()

			report := p.orchestrator.Run(ctx)
			if report.State == types.StateFailed {
				return fmt.Errorf("pipeline run %s failed: %w", report.RunID, report.Err)
			}
			return nil
		},
	}
}
