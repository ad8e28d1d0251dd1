package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/illmade-knight/go-quake/pkg/bqstore"
	"github.com/illmade-knight/go-quake/pkg/config"
	"github.com/illmade-knight/go-quake/pkg/feed"
	"github.com/illmade-knight/go-quake/pkg/icestore"
	"github.com/illmade-knight/go-quake/pkg/observability"
	"github.com/illmade-knight/go-quake/pkg/pipeline"
	"github.com/illmade-knight/go-quake/pkg/serving"
	"github.com/illmade-knight/go-quake/pkg/transform"
	"github.com/illmade-knight/go-quake/pkg/workflow"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// pipelineDeps owns the clients behind an orchestrator.
type pipelineDeps struct {
	orchestrator *pipeline.Orchestrator
	workflow     *workflow.Definition
	location     *time.Location
	closers      []func() error
}

func (p *pipelineDeps) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		errs = append(errs, p.closers[i]())
	}
	return errors.Join(errs...)
}

func clientOptions(credentialsFile string) []option.ClientOption {
	if credentialsFile == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(credentialsFile)}
}

func loadWorkflow(cfg *config.Config) (*workflow.Definition, error) {
	if cfg.Pipeline.WorkflowFile == "" {
		return workflow.Default(), nil
	}
	return workflow.Load(cfg.Pipeline.WorkflowFile)
}

// buildPipeline creates every client the orchestrator needs from cfg.
func buildPipeline(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, logger zerolog.Logger) (*pipelineDeps, error) {
	p := &pipelineDeps{}
	if err := p.build(ctx, cfg, metrics, logger); err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

func (p *pipelineDeps) build(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, logger zerolog.Logger) error {
	var err error

	p.workflow, err = loadWorkflow(cfg)
	if err != nil {
		return err
	}
	p.location, err = cfg.Location()
	if err != nil {
		return err
	}
	policy, err := pipeline.ParseFailurePolicy(cfg.Pipeline.FailurePolicy)
	if err != nil {
		return err
	}
	clock := clockwork.NewRealClock()

	extractor, err := feed.NewClient(feed.Config{URL: cfg.Feed.URL, Timeout: cfg.Feed.Timeout, UserAgent: cfg.Feed.UserAgent}, nil, clock, logger)
	if err != nil {
		return err
	}

	storageClient, err := icestore.NewProductionStorageClient(ctx, cfg.CredentialsFile, logger)
	if err != nil {
		return err
	}
	p.closers = append(p.closers, storageClient.Close)
	archiver, err := icestore.NewArchiveWriter(icestore.NewGCSClientAdapter(storageClient), icestore.ArchiveWriterConfig{
		BucketName:   cfg.Archive.Bucket,
		ObjectPrefix: cfg.Archive.Prefix,
		ObjectName:   cfg.Archive.ObjectName,
		Location:     p.location,
	}, clock, logger)
	if err != nil {
		return err
	}

	dst, err := bqstore.ParseTableID(cfg.Warehouse.Table)
	if err != nil {
		return err
	}
	dst.CredentialsFile = cfg.CredentialsFile
	bqClient, err := bqstore.NewProductionBigQueryClient(ctx, &dst, logger)
	if err != nil {
		return err
	}
	p.closers = append(p.closers, bqClient.Close)
	runner, err := bqstore.NewBigQueryLoadJobRunner(bqClient, logger)
	if err != nil {
		return err
	}
	loader, err := bqstore.NewWarehouseLoader(runner, dst, clock, logger)
	if err != nil {
		return err
	}

	transformer, err := buildTransformer(ctx, cfg, p, clock, logger)
	if err != nil {
		return err
	}

	p.orchestrator, err = pipeline.NewOrchestrator(extractor, archiver, loader, transformer, policy, clock, metrics, logger.With().Str("workflow", p.workflow.Name).Logger())
	return err
}

// buildTransformer picks the transform step for cfg.Transform.Mode. A command
// or dir on the workflow's transform step overrides the config values.
func buildTransformer(ctx context.Context, cfg *config.Config, p *pipelineDeps, clock clockwork.Clock, logger zerolog.Logger) (pipeline.Transformer, error) {
	switch cfg.Transform.Mode {
	case "none":
		return transform.NoopTransformer{}, nil
	case "pubsub":
		client, err := pubsub.NewClient(ctx, cfg.ProjectID, clientOptions(cfg.CredentialsFile)...)
		if err != nil {
			return nil, fmt.Errorf("pubsub.NewClient: %w", err)
		}
		p.closers = append(p.closers, client.Close)
		t, err := transform.NewPubSubTransformer(ctx, client, transform.PubSubTransformerConfig{TopicID: cfg.Transform.TopicID}, clock, logger)
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, func() error { t.Stop(); return nil })
		return t, nil
	}

	tc := transform.CommandTransformerConfig{Command: cfg.Transform.Command, Dir: cfg.Transform.Dir, Timeout: cfg.Transform.Timeout}
	if step, ok := p.workflow.Step(workflow.StepTransform); ok {
		if strings.TrimSpace(step.Command) != "" {
			tc.Command = step.Command
		}
		if step.Dir != "" {
			tc.Dir = step.Dir
		}
	}
	return transform.NewCommandTransformer(tc, logger)
}

// servingDeps owns the clients behind the prediction server.
type servingDeps struct {
	server  *serving.Server
	models  *serving.ModelCache
	closers []func() error
}

func (s *servingDeps) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

func buildServing(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, logger zerolog.Logger) (*servingDeps, error) {
	s := &servingDeps{}
	if err := s.build(ctx, cfg, metrics, logger); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *servingDeps) build(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, logger zerolog.Logger) error {
	storageClient, err := icestore.NewProductionStorageClient(ctx, cfg.CredentialsFile, logger)
	if err != nil {
		return err
	}
	s.closers = append(s.closers, storageClient.Close)

	source, err := serving.NewArtifactSource(icestore.NewGCSClientAdapter(storageClient), cfg.Serving.ModelBucket, cfg.Serving.ArtifactDir, logger)
	if err != nil {
		return err
	}
	s.models, err = serving.NewModelCache(source, cfg.Serving.ScalerObject, cfg.Serving.ModelObject, metrics, logger)
	if err != nil {
		return err
	}

	var predictor serving.Predictor = s.models
	if cfg.Redis.Addr != "" {
		cache, err := serving.NewRedisPredictionCache(ctx, &serving.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			CacheTTL: cfg.Redis.TTL,
		}, s.models, cfg.Serving.ScalerObject+"|"+cfg.Serving.ModelObject, metrics, logger)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, cache.Close)
		predictor = cache
	}

	s.server = serving.NewServer(serving.ServerConfig{
		Addr:         cfg.Serving.Addr,
		ReadTimeout:  cfg.Serving.ReadTimeout,
		WriteTimeout: cfg.Serving.WriteTimeout,
	}, serving.NewPredictHandler(predictor, metrics, logger), s.models, logger)
	return nil
}
