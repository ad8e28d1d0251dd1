package bqstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/illmade-knight/go-quake/pkg/types"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// WarehouseLoader normalizes a snapshot's features into EventRecords and
// appends them to the warehouse table in a single load job.
type WarehouseLoader struct {
	runner LoadJobRunner
	dst    BigQueryDatasetConfig
	clock  clockwork.Clock
	logger zerolog.Logger
}

// NewWarehouseLoader creates a loader that appends to dst.
func NewWarehouseLoader(runner LoadJobRunner, dst BigQueryDatasetConfig, clock clockwork.Clock, logger zerolog.Logger) (*WarehouseLoader, error) {
	if runner == nil {
		return nil, errors.New("load job runner cannot be nil")
	}
	if err := dst.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &WarehouseLoader{
		runner: runner,
		dst:    dst,
		clock:  clock,
		logger: logger.With().Str("component", "WarehouseLoader").Str("table", dst.FullyQualified()).Logger(),
	}, nil
}

// BuildRecords converts every feature of snap into an EventRecord stamped
// with the same loadedAt instant.
func BuildRecords(snap *types.Snapshot, loadedAt time.Time) ([]types.EventRecord, error) {
	features, err := snap.Features()
	if err != nil {
		return nil, err
	}
	records := make([]types.EventRecord, 0, len(features))
	for _, feature := range features {
		records = append(records, types.NewEventRecord(feature, loadedAt))
	}
	return records, nil
}

// EncodeNDJSON writes one JSON object per line.
func EncodeNDJSON(records []types.EventRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("json encoding failed for record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Load appends the snapshot's features to the warehouse table. A nil snapshot
// is skipped. A snapshot without features is a validation failure and no job
// is submitted. Job errors are logged and reported in the result.
func (l *WarehouseLoader) Load(ctx context.Context, snap *types.Snapshot) types.LoadResult {
	result := types.LoadResult{Table: l.dst.FullyQualified()}
	if snap == nil {
		l.logger.Warn().Msg("No snapshot to load, skipping warehouse load.")
		result.Skipped = true
		return result
	}

	loadedAt := l.clock.Now().UTC()
	records, err := BuildRecords(snap, loadedAt)
	if err != nil {
		l.logger.Error().Err(err).Msg("Snapshot has no usable feature collection, aborting load.")
		result.Failure = types.NewFailure(types.LoadValidationFailure, err)
		return result
	}
	result.LoadTimestamp = loadedAt

	payload, err := EncodeNDJSON(records)
	if err != nil {
		l.logger.Error().Err(err).Msg("Failed to encode records, aborting load.")
		result.Failure = types.NewFailure(types.LoadValidationFailure, err)
		return result
	}

	l.logger.Info().Int("record_count", len(records)).Time("load_timestamp", loadedAt).Msg("Starting warehouse append load")
	jobID, err := l.runner.RunAppendLoad(ctx, l.dst, bytes.NewReader(payload))
	result.JobID = jobID
	if err != nil {
		l.logger.Error().Err(err).Str("job_id", jobID).Int("record_count", len(records)).Msg("Warehouse load job failed")
		result.Failure = types.NewFailure(types.LoadJobFailure, err)
		return result
	}

	result.Rows = len(records)
	l.logger.Info().Str("job_id", jobID).Int("record_count", len(records)).Msg("Successfully appended records to BigQuery")
	return result
}
