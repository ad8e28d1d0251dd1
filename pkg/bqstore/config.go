package bqstore

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// BigQueryDatasetConfig identifies the destination table of the warehouse load.
type BigQueryDatasetConfig struct {
	ProjectID       string
	DatasetID       string
	TableID         string
	CredentialsFile string // Optional: service-account file; ADC is used when empty.
}

// FullyQualified returns "project.dataset.table".
func (c BigQueryDatasetConfig) FullyQualified() string {
	return fmt.Sprintf("%s.%s.%s", c.ProjectID, c.DatasetID, c.TableID)
}

// Validate checks that every part of the table reference is set.
func (c BigQueryDatasetConfig) Validate() error {
	if c.ProjectID == "" {
		return fmt.Errorf("BigQuery project id is required")
	}
	if c.DatasetID == "" {
		return fmt.Errorf("BigQuery dataset id is required")
	}
	if c.TableID == "" {
		return fmt.Errorf("BigQuery table id is required")
	}
	return nil
}

// ParseTableID parses a fully qualified "project.dataset.table" destination.
func ParseTableID(fq string) (BigQueryDatasetConfig, error) {
	parts := strings.Split(fq, ".")
	if len(parts) != 3 {
		return BigQueryDatasetConfig{}, fmt.Errorf("table id %q must have the form project.dataset.table", fq)
	}
	cfg := BigQueryDatasetConfig{ProjectID: parts[0], DatasetID: parts[1], TableID: parts[2]}
	if err := cfg.Validate(); err != nil {
		return BigQueryDatasetConfig{}, fmt.Errorf("table id %q: %w", fq, err)
	}
	return cfg, nil
}

// NewProductionBigQueryClient creates a BigQuery client suitable for production.
func NewProductionBigQueryClient(ctx context.Context, cfg *BigQueryDatasetConfig, logger zerolog.Logger) (*bigquery.Client, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		logger.Info().Str("credentials_file", cfg.CredentialsFile).Msg("Using specified credentials file for BigQuery client")
	} else {
		logger.Info().Msg("Using Application Default Credentials (ADC) for BigQuery client")
	}

	client, err := bigquery.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		logger.Error().Err(err).Str("project_id", cfg.ProjectID).Msg("Failed to create BigQuery client")
		return nil, fmt.Errorf("bigquery.NewClient: %w", err)
	}
	logger.Info().Str("project_id", cfg.ProjectID).Msg("BigQuery client created successfully.")
	return client, nil
}
