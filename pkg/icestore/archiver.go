package icestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/illmade-knight/go-quake/pkg/types"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
)

const (
	// DefaultObjectPrefix is the top-level folder for raw feed archives.
	DefaultObjectPrefix = "raw_data"
	// DefaultObjectName is the file name of the daily archive object.
	DefaultObjectName = "usgs_earthquakes.json"

	archiveContentType = "application/json"
)

// ArchiveWriterConfig holds configuration for the raw snapshot archive.
type ArchiveWriterConfig struct {
	BucketName   string
	ObjectPrefix string
	ObjectName   string
	// Location is the time zone used to derive the date partition. Defaults to UTC.
	Location *time.Location
}

// ArchiveWriter persists raw snapshots verbatim to a date-partitioned GCS path.
// One object exists per calendar day; a second write on the same day replaces it.
type ArchiveWriter struct {
	client GCSClient
	config ArchiveWriterConfig
	clock  clockwork.Clock
	logger zerolog.Logger
}

// NewArchiveWriter creates an archive writer.
func NewArchiveWriter(
	gcsClient GCSClient,
	config ArchiveWriterConfig,
	clock clockwork.Clock,
	logger zerolog.Logger,
) (*ArchiveWriter, error) {
	if gcsClient == nil {
		return nil, errors.New("GCS client cannot be nil")
	}
	if config.BucketName == "" {
		return nil, errors.New("GCS bucket name is required")
	}
	if config.ObjectPrefix == "" {
		config.ObjectPrefix = DefaultObjectPrefix
	}
	if config.ObjectName == "" {
		config.ObjectName = DefaultObjectName
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ArchiveWriter{
		client: gcsClient,
		config: config,
		clock:  clock,
		logger: logger.With().Str("component", "ArchiveWriter").Str("bucket", config.BucketName).Logger(),
	}, nil
}

// PartitionPath returns the object name for the calendar day of t.
func PartitionPath(prefix, name string, t time.Time) string {
	return path.Join(prefix, fmt.Sprintf("%d/%02d/%02d", t.Year(), t.Month(), t.Day()), name)
}

// ObjectPath returns the object name a write at instant t would use.
func (w *ArchiveWriter) ObjectPath(t time.Time) string {
	return PartitionPath(w.config.ObjectPrefix, w.config.ObjectName, t.In(w.config.Location))
}

// Archive writes snap to today's partition. A nil snapshot is skipped, not failed.
// Storage errors are logged and reported in the result; Archive never panics
// on them and never returns a Go error.
func (w *ArchiveWriter) Archive(ctx context.Context, snap *types.Snapshot) types.ArchiveResult {
	if snap == nil {
		w.logger.Warn().Msg("No snapshot to archive, skipping upload.")
		return types.ArchiveResult{Skipped: true}
	}

	// The partition is taken from the wall clock of this step, not the fetch.
	objectName := w.ObjectPath(w.clock.Now())
	uri := fmt.Sprintf("gs://%s/%s", w.config.BucketName, objectName)
	w.logger.Info().Str("object_name", objectName).Int("bytes", len(snap.Raw)).Msg("Starting archive upload")

	n, err := w.upload(ctx, objectName, snap.Raw)
	if err != nil {
		evt := w.logger.Error().Err(err).Str("object_name", objectName)
		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			evt = evt.Int("http_code", gerr.Code)
		}
		evt.Msg("Archive upload failed")
		return types.ArchiveResult{Path: uri, BytesWritten: n, Failure: types.NewFailure(types.ArchiveFailure, err)}
	}

	w.logger.Info().Str("object_name", objectName).Int64("bytes_written", n).Msg("Successfully archived snapshot to GCS")
	return types.ArchiveResult{Path: uri, BytesWritten: n}
}

func (w *ArchiveWriter) upload(ctx context.Context, objectName string, data []byte) (int64, error) {
	gcsWriter := w.client.Bucket(w.config.BucketName).Object(objectName).NewWriter(ctx)
	gcsWriter.SetContentType(archiveContentType)

	n, copyErr := io.Copy(gcsWriter, bytes.NewReader(data))
	// Close is where the object is committed, so it must run even after a failed write.
	closeErr := gcsWriter.Close()

	if copyErr != nil {
		return n, fmt.Errorf("failed to write GCS object %s: %w", objectName, copyErr)
	}
	if closeErr != nil {
		return n, fmt.Errorf("failed to close GCS object writer for %s: %w", objectName, closeErr)
	}
	return n, nil
}
