package serving

import (
	"encoding/json"
	"fmt"
	"io"
)

// FeatureOrder is the column order the scaler and model were fitted with.
var FeatureOrder = []string{"latitude", "longitude", "depth_km"}

// StandardScaler applies (x - mean) / scale per feature.
type StandardScaler struct {
	FeatureNames []string  `json:"feature_names"`
	Mean         []float64 `json:"mean"`
	Scale        []float64 `json:"scale"`
}

// LoadScaler decodes and validates a JSON scaler artifact.
func LoadScaler(r io.Reader) (*StandardScaler, error) {
	var s StandardScaler
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode scaler: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the scaler matches FeatureOrder.
func (s *StandardScaler) Validate() error {
	n := len(FeatureOrder)
	if len(s.Mean) != n || len(s.Scale) != n {
		return fmt.Errorf("scaler must have %d means and scales, got %d and %d", n, len(s.Mean), len(s.Scale))
	}
	if len(s.FeatureNames) == 0 {
		return nil
	}
	if len(s.FeatureNames) != n {
		return fmt.Errorf("scaler has %d feature names, want %d", len(s.FeatureNames), n)
	}
	for i, name := range FeatureOrder {
		if s.FeatureNames[i] != name {
			return fmt.Errorf("scaler feature %d is %q, want %q", i, s.FeatureNames[i], name)
		}
	}
	return nil
}

// Transform scales row in place order. A zero scale leaves the centered
// value unscaled, matching a constant training column.
func (s *StandardScaler) Transform(row []float64) ([]float64, error) {
	if len(row) != len(s.Mean) {
		return nil, fmt.Errorf("row has %d features, scaler expects %d", len(row), len(s.Mean))
	}
	out := make([]float64, len(row))
	for i, v := range row {
		scale := s.Scale[i]
		if scale == 0 {
			scale = 1
		}
		out[i] = (v - s.Mean[i]) / scale
	}
	return out, nil
}
