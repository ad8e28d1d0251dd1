package serving

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/illmade-knight/go-quake/pkg/types"
)

// Features is one prediction input.
type Features struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	DepthKm   float64 `json:"depth_km"`
}

// Row returns the features in FeatureOrder.
func (f Features) Row() []float64 {
	return []float64{f.Latitude, f.Longitude, f.DepthKm}
}

// Predictor produces a magnitude for a set of features.
type Predictor interface {
	Predict(ctx context.Context, f Features) (float64, error)
}

// ParseFeatures validates a decoded JSON object. Numbers and numeric strings
// are accepted; anything else is a RequestValidationFailure naming the field.
func ParseFeatures(body map[string]any) (Features, error) {
	values := make([]float64, len(FeatureOrder))
	for i, name := range FeatureOrder {
		raw, ok := body[name]
		if !ok {
			return Features{}, types.NewFailure(types.RequestValidationFailure, fmt.Errorf("missing field %q (latitude, longitude, depth_km are required)", name))
		}
		v, err := toFloat(raw)
		if err != nil {
			return Features{}, types.NewFailure(types.RequestValidationFailure, fmt.Errorf("invalid field %q: %w", name, err))
		}
		values[i] = v
	}
	return Features{Latitude: values[0], Longitude: values[1], DepthKm: values[2]}, nil
}

func toFloat(raw any) (float64, error) {
	var v float64
	switch x := raw.(type) {
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, err
		}
		v = f
	case float64:
		v = x
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", x)
		}
		v = f
	default:
		return 0, fmt.Errorf("expected a number, got %T", raw)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("value must be finite")
	}
	return v, nil
}
