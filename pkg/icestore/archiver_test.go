package icestore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/illmade-knight/go-quake/pkg/types"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

func newTestArchiveWriter(t *testing.T, client GCSClient, clock clockwork.Clock) *ArchiveWriter {
	t.Helper()
	writer, err := NewArchiveWriter(client, ArchiveWriterConfig{BucketName: "raw-bucket"}, clock, zerolog.Nop())
	require.NoError(t, err)
	return writer
}

func mustSnapshot(t *testing.T, raw string) *types.Snapshot {
	t.Helper()
	snap, err := types.NewSnapshot([]byte(raw), "test", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return snap
}

func TestArchiveWriter_Archive_WritesExactBytesToDailyPartition(t *testing.T) {
	// Arrange
	mockClient := newMockGCSClient()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 10, 23, 9, 15, 0, 0, time.UTC))
	writer := newTestArchiveWriter(t, mockClient, clock)
	raw := `{"features": [{"id":"x1","properties":{"mag":2.4}}]}`

	// Act
	result := writer.Archive(context.Background(), mustSnapshot(t, raw))

	// Assert
	require.True(t, result.OK(), "unexpected failure: %v", result.Failure)
	assert.False(t, result.Skipped)
	assert.Equal(t, "gs://raw-bucket/raw_data/2025/10/23/usgs_earthquakes.json", result.Path)
	assert.Equal(t, int64(len(raw)), result.BytesWritten)
	assert.Equal(t, "raw-bucket", mockClient.requestedName)

	obj, ok := mockClient.bucket.objects["raw_data/2025/10/23/usgs_earthquakes.json"]
	require.True(t, ok, "object should exist at the partition path")
	assert.Equal(t, raw, string(obj.data))
	assert.Equal(t, "application/json", obj.contentType)
}

func TestArchiveWriter_Archive_NilSnapshotIsSkipped(t *testing.T) {
	mockClient := newMockGCSClient()
	writer := newTestArchiveWriter(t, mockClient, clockwork.NewFakeClock())

	result := writer.Archive(context.Background(), nil)

	assert.True(t, result.Skipped)
	assert.True(t, result.OK())
	assert.Empty(t, result.Path)
	assert.Zero(t, mockClient.bucket.writers, "no writer should be opened for an absent snapshot")
}

func TestArchiveWriter_Archive_SameDayOverwrites(t *testing.T) {
	mockClient := newMockGCSClient()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 10, 23, 1, 0, 0, 0, time.UTC))
	writer := newTestArchiveWriter(t, mockClient, clock)

	first := writer.Archive(context.Background(), mustSnapshot(t, `{"features":[{"id":"first"}]}`))
	clock.Advance(20 * time.Hour)
	second := writer.Archive(context.Background(), mustSnapshot(t, `{"features":[{"id":"second"}]}`))

	require.True(t, first.OK())
	require.True(t, second.OK())
	assert.Equal(t, first.Path, second.Path)
	require.Len(t, mockClient.bucket.objects, 1)
	assert.Equal(t, `{"features":[{"id":"second"}]}`, string(mockClient.bucket.objects["raw_data/2025/10/23/usgs_earthquakes.json"].data))
}

func TestArchiveWriter_Archive_PathDependsOnlyOnDate(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC))
	writer := newTestArchiveWriter(t, newMockGCSClient(), clock)

	a := writer.Archive(context.Background(), mustSnapshot(t, `{"features":[]}`))
	b := writer.Archive(context.Background(), mustSnapshot(t, `{"anything":"else","time":"1999-01-01"}`))

	assert.Equal(t, "gs://raw-bucket/raw_data/2024/02/29/usgs_earthquakes.json", a.Path)
	assert.Equal(t, a.Path, b.Path)

	clock.Advance(2 * time.Second)
	c := writer.Archive(context.Background(), mustSnapshot(t, `{"features":[]}`))
	assert.Equal(t, "gs://raw-bucket/raw_data/2024/03/01/usgs_earthquakes.json", c.Path)
}

func TestArchiveWriter_ObjectPath_UsesConfiguredLocation(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	writer, err := NewArchiveWriter(newMockGCSClient(), ArchiveWriterConfig{BucketName: "b", Location: loc}, nil, zerolog.Nop())
	require.NoError(t, err)

	// 03:00 UTC is still the previous day five hours west.
	assert.Equal(t, "raw_data/2025/10/22/usgs_earthquakes.json", writer.ObjectPath(time.Date(2025, 10, 23, 3, 0, 0, 0, time.UTC)))
}

func TestArchiveWriter_Archive_UploadErrorsAreReportedNotRaised(t *testing.T) {
	testCases := []struct {
		name     string
		writeErr error
		closeErr error
	}{
		{name: "write fails", writeErr: errors.New("connection reset")},
		{name: "close fails", closeErr: &googleapi.Error{Code: 403, Message: "forbidden"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockClient := newMockGCSClient()
			mockClient.bucket.writeErr = tc.writeErr
			mockClient.bucket.closeErr = tc.closeErr
			writer := newTestArchiveWriter(t, mockClient, clockwork.NewFakeClock())

			result := writer.Archive(context.Background(), mustSnapshot(t, `{"features":[{"id":"x"}]}`))

			require.NotNil(t, result.Failure)
			assert.Equal(t, types.ArchiveFailure, result.Failure.Kind)
			assert.False(t, result.Skipped)
			assert.Empty(t, mockClient.bucket.objects, "nothing should be committed")
		})
	}
}

func TestNewArchiveWriter_Validation(t *testing.T) {
	_, err := NewArchiveWriter(nil, ArchiveWriterConfig{BucketName: "b"}, nil, zerolog.Nop())
	assert.Error(t, err)

	_, err = NewArchiveWriter(newMockGCSClient(), ArchiveWriterConfig{}, nil, zerolog.Nop())
	assert.Error(t, err)
}
