package serving

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/illmade-knight/go-quake/pkg/icestore"
	"github.com/rs/zerolog"
)

// ArtifactSource downloads named objects from a bucket into a local directory.
// An object already present locally is never downloaded again.
type ArtifactSource struct {
	client icestore.GCSClient
	bucket string
	dir    string
	logger zerolog.Logger
}

// NewArtifactSource stores downloads under dir, or os.TempDir() when empty.
func NewArtifactSource(client icestore.GCSClient, bucket, dir string, logger zerolog.Logger) (*ArtifactSource, error) {
	if client == nil {
		return nil, errors.New("GCS client cannot be nil")
	}
	if bucket == "" {
		return nil, errors.New("model bucket is required")
	}
	if dir == "" {
		dir = os.TempDir()
	}
	return &ArtifactSource{
		client: client,
		bucket: bucket,
		dir:    dir,
		logger: logger.With().Str("component", "ArtifactSource").Str("bucket", bucket).Logger(),
	}, nil
}

// Fetch returns the local path of object, downloading it first if needed.
func (a *ArtifactSource) Fetch(ctx context.Context, object string) (string, error) {
	local := filepath.Join(a.dir, filepath.Base(object))
	if _, err := os.Stat(local); err == nil {
		a.logger.Debug().Str("object", object).Str("path", local).Msg("Artifact already present locally")
		return local, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("stat %s: %w", local, err)
	}

	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}
	reader, err := a.client.Bucket(a.bucket).Object(object).NewReader(ctx)
	if err != nil {
		return "", fmt.Errorf("open gs://%s/%s: %w", a.bucket, object, err)
	}
	defer reader.Close()

	// Download to a temp file and rename so a partial download is never loaded.
	tmp, err := os.CreateTemp(a.dir, filepath.Base(object)+".*.part")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	n, copyErr := io.Copy(tmp, reader)
	closeErr := tmp.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("download gs://%s/%s: %w", a.bucket, object, err)
	}
	if err := os.Rename(tmp.Name(), local); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("move artifact into place: %w", err)
	}
	a.logger.Info().Str("object", object).Str("path", local).Int64("bytes", n).Msg("Artifact downloaded")
	return local, nil
}
