package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/illmade-knight/go-quake/pkg/config"
	"github.com/illmade-knight/go-quake/pkg/observability"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// app carries what every subcommand needs once configuration is loaded.
type app struct {
	cfgFile string
	cfg     *config.Config
	logger  zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "quake",
		Short: "Seismic feed ingestion pipeline and magnitude prediction service",
		Long: `quake harvests the USGS earthquake feed, archives each raw snapshot to
Cloud Storage, appends the events to BigQuery and triggers the dbt transform.
It also serves magnitude predictions from a trained model.`,
		Version:       "0.1.0",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
	}
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default: ./quake.yaml or /etc/quake/quake.yaml)")

	root.AddCommand(newRunCmd(a), newScheduleCmd(a), newServeCmd(a), newProvisionCmd(a))
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	logger, err := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
