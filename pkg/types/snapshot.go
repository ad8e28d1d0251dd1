package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// LoadTimestampField is the attribute injected into every EventRecord at load time.
const LoadTimestampField = "_load_timestamp"

var (
	// ErrNoFeatures is returned when a snapshot has no usable feature collection.
	ErrNoFeatures = errors.New("snapshot has no features")
	// ErrFeatureNotObject is returned when an entry of the feature collection is not a JSON object.
	ErrFeatureNotObject = errors.New("feature is not a JSON object")
)

// Snapshot is one document fetched from the seismic feed.
// Raw holds the bytes exactly as the feed returned them; a Snapshot is never
// mutated after the feed client creates it.
type Snapshot struct {
	Raw       json.RawMessage
	Source    string
	FetchedAt time.Time
}

// NewSnapshot validates that raw is a single JSON document and wraps it.
func NewSnapshot(raw []byte, source string, fetchedAt time.Time) (*Snapshot, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, errors.New("empty feed document")
	}
	if !json.Valid(raw) {
		return nil, errors.New("feed document is not valid JSON")
	}
	cp := make([]byte, len(raw))
	copy(cp, raw)
	return &Snapshot{Raw: cp, Source: source, FetchedAt: fetchedAt}, nil
}

// Features decodes the top-level "features" array. Numbers are kept as
// json.Number so they are re-serialized without loss.
func (s *Snapshot) Features() ([]map[string]any, error) {
	if s == nil {
		return nil, ErrNoFeatures
	}
	var doc struct {
		Features json.RawMessage `json:"features"`
	}
	if err := json.Unmarshal(s.Raw, &doc); err != nil {
		// a top-level array or scalar has no feature collection
		return nil, fmt.Errorf("%w: %v", ErrNoFeatures, err)
	}
	trimmed := bytes.TrimSpace(doc.Features)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, ErrNoFeatures
	}

	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("%w: features is not an array", ErrNoFeatures)
	}
	if len(items) == 0 {
		return nil, ErrNoFeatures
	}

	features := make([]map[string]any, 0, len(items))
	for i, item := range items {
		dec := json.NewDecoder(bytes.NewReader(item))
		dec.UseNumber()
		var feature map[string]any
		if err := dec.Decode(&feature); err != nil || feature == nil {
			return nil, fmt.Errorf("%w: index %d", ErrFeatureNotObject, i)
		}
		features = append(features, feature)
	}
	return features, nil
}

// EventRecord is one normalized seismic event destined for the warehouse.
type EventRecord map[string]any

// NewEventRecord shallow-copies a feature and stamps it with loadedAt.
func NewEventRecord(feature map[string]any, loadedAt time.Time) EventRecord {
	rec := make(EventRecord, len(feature)+1)
	for k, v := range feature {
		rec[k] = v
	}
	rec[LoadTimestampField] = loadedAt.UTC().Format(time.RFC3339Nano)
	return rec
}
