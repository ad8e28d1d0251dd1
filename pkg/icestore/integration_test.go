//go:build integration

package icestore_test

import (
	"context"
	"io"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"github.com/illmade-knight/go-quake/pkg/helpers/emulators"
	"github.com/illmade-knight/go-quake/pkg/icestore"
	"github.com/illmade-knight/go-quake/pkg/types"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/iterator"
)

const (
	testProjectID  = "icestore-test-project"
	testBucketName = "icestore-test-bucket"
)

func TestArchiveWriter_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	logger := zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.InfoLevel)

	gcsConfig := emulators.GetDefaultGCSConfig(testProjectID, testBucketName)
	gcsClient := emulators.SetupGCSEmulator(t, ctx, gcsConfig)

	clock := clockwork.NewFakeClockAt(time.Date(2025, 10, 23, 6, 0, 0, 0, time.UTC))
	writer, err := icestore.NewArchiveWriter(
		icestore.NewGCSClientAdapter(gcsClient),
		icestore.ArchiveWriterConfig{BucketName: testBucketName},
		clock,
		logger,
	)
	require.NoError(t, err)

	for _, body := range []string{`{"features":[{"id":"first"}]}`, `{"features":[{"id":"second"}]}`} {
		snap, err := types.NewSnapshot([]byte(body), "integration", clock.Now())
		require.NoError(t, err)
		result := writer.Archive(ctx, snap)
		require.True(t, result.OK(), "archive failed: %v", result.Failure)
	}

	// Exactly one object for the day, holding the second write.
	var names []string
	it := gcsClient.Bucket(testBucketName).Objects(ctx, &storage.Query{Prefix: "raw_data/"})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		require.NoError(t, err)
		names = append(names, attrs.Name)
		assert.Equal(t, "application/json", attrs.ContentType)
	}
	assert.Equal(t, []string{"raw_data/2025/10/23/usgs_earthquakes.json"}, names)

	reader, err := gcsClient.Bucket(testBucketName).Object(names[0]).NewReader(ctx)
	require.NoError(t, err)
	defer reader.Close()
	content, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, `{"features":[{"id":"second"}]}`, string(content))
}
