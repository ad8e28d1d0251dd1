package bqstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog"
)

// LoadJobRunner submits one newline-delimited JSON load job and waits for it.
// It abstracts the BigQuery client so the loader can be tested without one.
type LoadJobRunner interface {
	RunAppendLoad(ctx context.Context, dst BigQueryDatasetConfig, ndjson io.Reader) (jobID string, err error)
}

// BigQueryLoadJobRunner implements LoadJobRunner with a *bigquery.Client.
type BigQueryLoadJobRunner struct {
	client *bigquery.Client
	logger zerolog.Logger
}

// NewBigQueryLoadJobRunner wraps client. The client's lifecycle is managed by the caller.
func NewBigQueryLoadJobRunner(client *bigquery.Client, logger zerolog.Logger) (*BigQueryLoadJobRunner, error) {
	if client == nil {
		return nil, errors.New("bigquery client cannot be nil")
	}
	return &BigQueryLoadJobRunner{
		client: client,
		logger: logger.With().Str("component", "BigQueryLoadJobRunner").Logger(),
	}, nil
}

// RunAppendLoad loads ndjson into dst with schema autodetection, appending to
// any existing rows and creating the table when it does not exist.
func (r *BigQueryLoadJobRunner) RunAppendLoad(ctx context.Context, dst BigQueryDatasetConfig, ndjson io.Reader) (string, error) {
	src := bigquery.NewReaderSource(ndjson)
	src.SourceFormat = bigquery.JSON
	src.AutoDetect = true

	loader := r.client.DatasetInProject(dst.ProjectID, dst.DatasetID).Table(dst.TableID).LoaderFrom(src)
	loader.WriteDisposition = bigquery.WriteAppend
	loader.CreateDisposition = bigquery.CreateIfNeeded

	job, err := loader.Run(ctx)
	if err != nil {
		return "", fmt.Errorf("bigquery load job submission failed: %w", err)
	}
	r.logger.Debug().Str("job_id", job.ID()).Str("table", dst.FullyQualified()).Msg("Load job submitted, waiting for completion")

	status, err := job.Wait(ctx)
	if err != nil {
		return job.ID(), fmt.Errorf("bigquery load job %s wait failed: %w", job.ID(), err)
	}
	if err := status.Err(); err != nil {
		for _, e := range status.Errors {
			r.logger.Error().Str("job_id", job.ID()).Str("reason", e.Reason).Str("location", e.Location).Msg(e.Message)
		}
		return job.ID(), fmt.Errorf("bigquery load job %s failed: %w", job.ID(), err)
	}
	return job.ID(), nil
}
