package provision

import (
	"context"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/storage"
)

// --- Client abstraction interfaces ---

// BucketHandle is the slice of *storage.BucketHandle needed to ensure a bucket.
type BucketHandle interface {
	Attrs(ctx context.Context) (*storage.BucketAttrs, error)
	Create(ctx context.Context, projectID string, attrs *storage.BucketAttrs) error
}

type BucketClient interface {
	Bucket(name string) BucketHandle
}

// DatasetHandle is the slice of *bigquery.Dataset needed to ensure a dataset.
type DatasetHandle interface {
	Metadata(ctx context.Context) (*bigquery.DatasetMetadata, error)
	Create(ctx context.Context, meta *bigquery.DatasetMetadata) error
}

type DatasetClient interface {
	DatasetInProject(projectID, datasetID string) DatasetHandle
}

// --- Adapters for real clients ---

type storageAdapter struct {
	client *storage.Client
}

// NewBucketClient wraps a *storage.Client.
func NewBucketClient(client *storage.Client) BucketClient {
	return &storageAdapter{client: client}
}

func (a *storageAdapter) Bucket(name string) BucketHandle {
	return a.client.Bucket(name)
}

type bigqueryAdapter struct {
	client *bigquery.Client
}

// NewDatasetClient wraps a *bigquery.Client.
func NewDatasetClient(client *bigquery.Client) DatasetClient {
	return &bigqueryAdapter{client: client}
}

func (a *bigqueryAdapter) DatasetInProject(projectID, datasetID string) DatasetHandle {
	return a.client.DatasetInProject(projectID, datasetID)
}
