package icestore

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// ====================================================================================
// This file defines a set of interfaces to abstract the Google Cloud Storage client.
// The archive writer and the model artifact source are written against these
// interfaces so they can be tested without a real GCS client.
// ====================================================================================

// --- GCS Client Abstraction Interfaces ---

// GCSClient abstracts the top-level GCS client.
type GCSClient interface {
	Bucket(name string) GCSBucketHandle
}

// GCSBucketHandle abstracts a GCS bucket.
type GCSBucketHandle interface {
	Object(name string) GCSObjectHandle
}

// GCSObjectHandle abstracts a GCS object.
type GCSObjectHandle interface {
	NewWriter(ctx context.Context) GCSWriter
	NewReader(ctx context.Context) (io.ReadCloser, error)
}

// GCSWriter abstracts a GCS object writer. The content type must be set
// before the first Write.
type GCSWriter interface {
	io.WriteCloser
	SetContentType(contentType string)
}

// NewProductionStorageClient creates a storage client using the given
// service-account credentials file, or Application Default Credentials when
// the path is empty.
func NewProductionStorageClient(ctx context.Context, credentialsFile string, logger zerolog.Logger) (*storage.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
		logger.Info().Str("credentials_file", credentialsFile).Msg("Using specified credentials file for GCS client")
	} else {
		logger.Info().Msg("Using Application Default Credentials (ADC) for GCS client")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}
	return client, nil
}

// --- Adapters to wrap the concrete Google Cloud Storage client ---

// gcsClientAdapter wraps a *storage.Client to satisfy the GCSClient interface.
type gcsClientAdapter struct {
	client *storage.Client
}

// NewGCSClientAdapter creates an adapter that makes the concrete *storage.Client
// conform to the GCSClient interface.
func NewGCSClientAdapter(client *storage.Client) GCSClient {
	if client == nil {
		return nil
	}
	return &gcsClientAdapter{client: client}
}

func (a *gcsClientAdapter) Bucket(name string) GCSBucketHandle {
	return &gcsBucketHandleAdapter{handle: a.client.Bucket(name)}
}

// gcsBucketHandleAdapter wraps a *storage.BucketHandle.
type gcsBucketHandleAdapter struct {
	handle *storage.BucketHandle
}

func (a *gcsBucketHandleAdapter) Object(name string) GCSObjectHandle {
	return &gcsObjectHandleAdapter{handle: a.handle.Object(name)}
}

// gcsObjectHandleAdapter wraps a *storage.ObjectHandle.
type gcsObjectHandleAdapter struct {
	handle *storage.ObjectHandle
}

func (a *gcsObjectHandleAdapter) NewWriter(ctx context.Context) GCSWriter {
	return &gcsWriterAdapter{Writer: a.handle.NewWriter(ctx)}
}

func (a *gcsObjectHandleAdapter) NewReader(ctx context.Context) (io.ReadCloser, error) {
	// *storage.Reader already implements io.ReadCloser.
	return a.handle.NewReader(ctx)
}

// gcsWriterAdapter exposes the ContentType attribute of *storage.Writer as a method.
type gcsWriterAdapter struct {
	*storage.Writer
}

func (w *gcsWriterAdapter) SetContentType(contentType string) {
	w.Writer.ContentType = contentType
}
