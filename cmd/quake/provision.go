package main

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/pubsub"
	"github.com/illmade-knight/go-quake/pkg/bqstore"
	"github.com/illmade-knight/go-quake/pkg/config"
	"github.com/illmade-knight/go-quake/pkg/icestore"
	"github.com/illmade-knight/go-quake/pkg/provision"
	"github.com/spf13/cobra"
)

func newProvisionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "provision",
		Short: "Create the buckets, dataset and transform topic the pipeline expects",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			plan, err := provisionPlan(a.cfg)
			if err != nil {
				return err
			}
			return runProvision(ctx, a, plan)
		},
	}
}

// provisionPlan derives the resource list from cfg.
func provisionPlan(cfg *config.Config) (provision.Plan, error) {
	dst, err := bqstore.ParseTableID(cfg.Warehouse.Table)
	if err != nil {
		return provision.Plan{}, err
	}
	plan := provision.Plan{
		ProjectID: cfg.ProjectID,
		Location:  cfg.GCPLocation,
		Buckets:   []string{cfg.Archive.Bucket},
		Datasets:  []provision.Dataset{{ProjectID: dst.ProjectID, DatasetID: dst.DatasetID}},
	}
	if cfg.Serving.ModelBucket != "" && cfg.Serving.ModelBucket != cfg.Archive.Bucket {
		plan.Buckets = append(plan.Buckets, cfg.Serving.ModelBucket)
	}
	if cfg.Transform.Mode == "pubsub" {
		plan.Topics = []string{cfg.Transform.TopicID}
	}
	return plan, nil
}

func runProvision(ctx context.Context, a *app, plan provision.Plan) error {
	opts := clientOptions(a.cfg.CredentialsFile)

	storageClient, err := icestore.NewProductionStorageClient(ctx, a.cfg.CredentialsFile, a.logger)
	if err != nil {
		return err
	}
	defer storageClient.Close()

	bqClient, err := bigquery.NewClient(ctx, plan.ProjectID, opts...)
	if err != nil {
		return fmt.Errorf("bigquery.NewClient: %w", err)
	}
	defer bqClient.Close()

	var psClient *pubsub.Client
	if len(plan.Topics) > 0 {
		psClient, err = pubsub.NewClient(ctx, plan.ProjectID, opts...)
		if err != nil {
			return fmt.Errorf("pubsub.NewClient: %w", err)
		}
		defer psClient.Close()
	}

	m := provision.NewManager(provision.NewBucketClient(storageClient), provision.NewDatasetClient(bqClient), psClient, a.logger)
	return m.Setup(ctx, plan)
}
