package provision

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
)

// Plan lists the resources the pipeline and the prediction service expect.
type Plan struct {
	ProjectID string
	// Location applies to created buckets and datasets; empty relies on service defaults.
	Location string
	Buckets  []string
	Datasets []Dataset
	Topics   []string
}

// Dataset is a dataset id within a project.
type Dataset struct {
	ProjectID string
	DatasetID string
}

// Manager creates missing resources. Existing resources are left untouched.
type Manager struct {
	buckets  BucketClient
	datasets DatasetClient
	topics   *pubsub.Client
	logger   zerolog.Logger
}

// NewManager accepts nil clients for resource kinds the plan does not use.
func NewManager(buckets BucketClient, datasets DatasetClient, topics *pubsub.Client, logger zerolog.Logger) *Manager {
	return &Manager{
		buckets:  buckets,
		datasets: datasets,
		topics:   topics,
		logger:   logger.With().Str("component", "ProvisionManager").Logger(),
	}
}

// Setup ensures every resource in plan exists.
func (m *Manager) Setup(ctx context.Context, plan Plan) error {
	m.logger.Info().Str("project_id", plan.ProjectID).Msg("Starting resource setup")
	for _, name := range plan.Buckets {
		if _, err := m.EnsureBucket(ctx, plan.ProjectID, name, plan.Location); err != nil {
			return err
		}
	}
	for _, ds := range plan.Datasets {
		if _, err := m.EnsureDataset(ctx, ds, plan.Location); err != nil {
			return err
		}
	}
	for _, topicID := range plan.Topics {
		if _, err := m.EnsureTopic(ctx, topicID); err != nil {
			return err
		}
	}
	m.logger.Info().Msg("Resource setup complete")
	return nil
}

// EnsureBucket creates the bucket if it does not exist and reports whether it did.
func (m *Manager) EnsureBucket(ctx context.Context, projectID, name, location string) (bool, error) {
	if m.buckets == nil {
		return false, errors.New("no storage client configured")
	}
	handle := m.buckets.Bucket(name)
	_, err := handle.Attrs(ctx)
	if err == nil {
		m.logger.Info().Str("bucket_name", name).Msg("Bucket already exists")
		return false, nil
	}
	if !errors.Is(err, storage.ErrBucketNotExist) && !isNotFound(err) {
		return false, fmt.Errorf("failed to get attributes for bucket '%s': %w", name, err)
	}
	attrs := &storage.BucketAttrs{Name: name}
	if location != "" {
		attrs.Location = strings.ToUpper(location)
	}
	if err := handle.Create(ctx, projectID, attrs); err != nil {
		return false, fmt.Errorf("failed to create bucket '%s': %w", name, err)
	}
	m.logger.Info().Str("bucket_name", name).Str("location", attrs.Location).Msg("Bucket created")
	return true, nil
}

// EnsureDataset creates the dataset if it does not exist and reports whether it did.
// Tables are created by the load jobs themselves.
func (m *Manager) EnsureDataset(ctx context.Context, ds Dataset, location string) (bool, error) {
	if m.datasets == nil {
		return false, errors.New("no bigquery client configured")
	}
	handle := m.datasets.DatasetInProject(ds.ProjectID, ds.DatasetID)
	_, err := handle.Metadata(ctx)
	if err == nil {
		m.logger.Info().Str("dataset_id", ds.DatasetID).Msg("Dataset already exists")
		return false, nil
	}
	if !isNotFound(err) {
		return false, fmt.Errorf("failed to get metadata for dataset '%s': %w", ds.DatasetID, err)
	}
	meta := &bigquery.DatasetMetadata{Name: ds.DatasetID, Location: location}
	if err := handle.Create(ctx, meta); err != nil {
		return false, fmt.Errorf("failed to create dataset '%s': %w", ds.DatasetID, err)
	}
	m.logger.Info().Str("dataset_id", ds.DatasetID).Msg("Dataset created")
	return true, nil
}

// EnsureTopic creates the topic if it does not exist and reports whether it did.
func (m *Manager) EnsureTopic(ctx context.Context, topicID string) (bool, error) {
	if m.topics == nil {
		return false, errors.New("no pubsub client configured")
	}
	exists, err := m.topics.Topic(topicID).Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check topic '%s': %w", topicID, err)
	}
	if exists {
		m.logger.Info().Str("topic_id", topicID).Msg("Topic already exists")
		return false, nil
	}
	if _, err := m.topics.CreateTopic(ctx, topicID); err != nil {
		return false, fmt.Errorf("failed to create topic '%s': %w", topicID, err)
	}
	m.logger.Info().Str("topic_id", topicID).Msg("Topic created")
	return true, nil
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
