package serving

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testScalerJSON = `{"feature_names":["latitude","longitude","depth_km"],"mean":[10,20,30],"scale":[2,4,0]}`

// A single stump on depth_km plus a second tree that splits on f0.
const testGBTreeJSON = `{
  "type": "gbtree",
  "base_score": 0.5,
  "trees": [
    {"nodeid":0,"split":"depth_km","split_condition":1.0,"yes":1,"no":2,"missing":2,
     "children":[{"nodeid":1,"leaf":1.0},{"nodeid":2,"leaf":2.0}]},
    {"nodeid":0,"split":"f0","split_condition":0.0,"yes":1,"no":2,"missing":1,
     "children":[{"nodeid":1,"leaf":-0.25},{"nodeid":2,"leaf":0.25}]}
  ]
}`

func TestStandardScaler_Transform(t *testing.T) {
	s, err := LoadScaler(strings.NewReader(testScalerJSON))
	require.NoError(t, err)

	out, err := s.Transform([]float64{12, 16, 35})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, -1, 5}, out, "zero scale leaves the centered value")

	_, err = s.Transform([]float64{1, 2})
	assert.Error(t, err)
}

func TestLoadScaler_Invalid(t *testing.T) {
	for _, raw := range []string{
		`{"mean":[1,2],"scale":[1,1]}`,
		`{"feature_names":["lon","lat","depth"],"mean":[1,2,3],"scale":[1,1,1]}`,
		`not json`,
	} {
		_, err := LoadScaler(strings.NewReader(raw))
		assert.Error(t, err, raw)
	}
}

func TestGBTree_Predict(t *testing.T) {
	r, err := LoadRegressor(strings.NewReader(testGBTreeJSON))
	require.NoError(t, err)

	testCases := []struct {
		name string
		row  []float64
		want float64
	}{
		{name: "shallow, negative lat", row: []float64{-1, 0, 0.5}, want: 0.5 + 1.0 - 0.25},
		{name: "deep, positive lat", row: []float64{1, 0, 3}, want: 0.5 + 2.0 + 0.25},
		{name: "split value goes right", row: []float64{0, 0, 1.0}, want: 0.5 + 2.0 + 0.25},
		{name: "missing values", row: []float64{math.NaN(), 0, math.NaN()}, want: 0.5 + 2.0 - 0.25},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.Predict(tc.row)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestLinear_Predict(t *testing.T) {
	r, err := LoadRegressor(strings.NewReader(`{"type":"linear","coefficients":[1,2,3],"intercept":0.5}`))
	require.NoError(t, err)

	got, err := r.Predict([]float64{1, 1, 1})
	require.NoError(t, err)
	assert.InDelta(t, 6.5, got, 1e-9)
}

func TestLoadRegressor_Invalid(t *testing.T) {
	for _, raw := range []string{
		`{"type":"gbtree","trees":[]}`,
		`{"type":"gbtree","trees":[{"nodeid":0,"split":"magnitude","yes":1,"no":2,"missing":1,"children":[{"nodeid":1,"leaf":1},{"nodeid":2,"leaf":2}]}]}`,
		`{"type":"gbtree","trees":[{"nodeid":0,"split":"f1","yes":1,"no":5,"missing":1,"children":[{"nodeid":1,"leaf":1}]}]}`,
		`{"type":"linear","coefficients":[1]}`,
		`{"type":"forest"}`,
	} {
		_, err := LoadRegressor(strings.NewReader(raw))
		assert.Error(t, err, raw)
	}
}

func TestParseFeatures(t *testing.T) {
	f, err := ParseFeatures(map[string]any{"latitude": 34.5, "longitude": "-118.2", "depth_km": float64(10)})
	require.NoError(t, err)
	assert.Equal(t, Features{Latitude: 34.5, Longitude: -118.2, DepthKm: 10}, f)

	testCases := []struct {
		name  string
		body  map[string]any
		field string
	}{
		{name: "missing depth", body: map[string]any{"latitude": 1.0, "longitude": 2.0}, field: "depth_km"},
		{name: "non numeric string", body: map[string]any{"latitude": "north", "longitude": 2.0, "depth_km": 3.0}, field: "latitude"},
		{name: "null", body: map[string]any{"latitude": 1.0, "longitude": nil, "depth_km": 3.0}, field: "longitude"},
		{name: "bool", body: map[string]any{"latitude": 1.0, "longitude": 2.0, "depth_km": true}, field: "depth_km"},
		{name: "nan string", body: map[string]any{"latitude": "NaN", "longitude": 2.0, "depth_km": 3.0}, field: "latitude"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseFeatures(tc.body)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.field)
		})
	}
}
