package serving

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/illmade-knight/go-quake/pkg/observability"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ModelState is the lifecycle of the in-memory model.
type ModelState int

const (
	StateUnloaded ModelState = iota
	StateLoading
	StateReady
)

func (s ModelState) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	}
	return "unloaded"
}

// ArtifactFetcher resolves an artifact name to a readable local file.
type ArtifactFetcher interface {
	Fetch(ctx context.Context, object string) (string, error)
}

// Model is a loaded scaler and regressor pair.
type Model struct {
	Scaler    *StandardScaler
	Regressor Regressor
}

// Predict scales the row in FeatureOrder and runs the regressor.
func (m *Model) Predict(f Features) (float64, error) {
	scaled, err := m.Scaler.Transform(f.Row())
	if err != nil {
		return 0, err
	}
	return m.Regressor.Predict(scaled)
}

// ModelCache loads the model at most once per process. Concurrent callers
// during a load share its result; a failed load leaves the cache Unloaded so
// the next caller retries.
type ModelCache struct {
	fetcher      ArtifactFetcher
	scalerObject string
	modelObject  string
	metrics      *observability.Metrics
	logger       zerolog.Logger

	group singleflight.Group
	mu    sync.Mutex
	state ModelState
	model *Model
}

func NewModelCache(fetcher ArtifactFetcher, scalerObject, modelObject string, metrics *observability.Metrics, logger zerolog.Logger) (*ModelCache, error) {
	if fetcher == nil {
		return nil, errors.New("artifact fetcher cannot be nil")
	}
	if scalerObject == "" || modelObject == "" {
		return nil, errors.New("scaler and model object names are required")
	}
	return &ModelCache{
		fetcher:      fetcher,
		scalerObject: scalerObject,
		modelObject:  modelObject,
		metrics:      metrics,
		logger:       logger.With().Str("component", "ModelCache").Logger(),
	}, nil
}

// State reports the current lifecycle state.
func (c *ModelCache) State() ModelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Ready reports whether the model is loaded.
func (c *ModelCache) Ready() bool {
	return c.State() == StateReady
}

// Get returns the loaded model, loading it on first use.
func (c *ModelCache) Get(ctx context.Context) (*Model, error) {
	c.mu.Lock()
	if c.state == StateReady {
		m := c.model
		c.mu.Unlock()
		return m, nil
	}
	c.mu.Unlock()

	// The load outlives any single caller's cancellation since others may share it.
	ch := c.group.DoChan("model", func() (any, error) {
		return c.load(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Model), nil
	}
}

// Predict implements Predictor.
func (c *ModelCache) Predict(ctx context.Context, f Features) (float64, error) {
	m, err := c.Get(ctx)
	if err != nil {
		return 0, err
	}
	return m.Predict(f)
}

func (c *ModelCache) load(ctx context.Context) (*Model, error) {
	c.mu.Lock()
	if c.state == StateReady {
		m := c.model
		c.mu.Unlock()
		return m, nil
	}
	c.state = StateLoading
	c.mu.Unlock()

	c.logger.Info().Str("scaler", c.scalerObject).Str("model", c.modelObject).Msg("Loading model artifacts")
	m, err := c.loadArtifacts(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = StateUnloaded
		c.logger.Error().Err(err).Msg("Model load failed")
		c.observe("error", 0)
		return nil, err
	}
	c.model = m
	c.state = StateReady
	c.logger.Info().Msg("Model artifacts loaded")
	c.observe("success", 1)
	return m, nil
}

func (c *ModelCache) observe(outcome string, ready float64) {
	if c.metrics == nil {
		return
	}
	c.metrics.ModelLoads.WithLabelValues(outcome).Inc()
	c.metrics.ModelReady.Set(ready)
}

func (c *ModelCache) loadArtifacts(ctx context.Context) (*Model, error) {
	scalerPath, err := c.fetcher.Fetch(ctx, c.scalerObject)
	if err != nil {
		return nil, fmt.Errorf("fetch scaler: %w", err)
	}
	modelPath, err := c.fetcher.Fetch(ctx, c.modelObject)
	if err != nil {
		return nil, fmt.Errorf("fetch model: %w", err)
	}

	sf, err := os.Open(scalerPath)
	if err != nil {
		return nil, fmt.Errorf("open scaler: %w", err)
	}
	defer sf.Close()
	scaler, err := LoadScaler(sf)
	if err != nil {
		return nil, err
	}

	mf, err := os.Open(modelPath)
	if err != nil {
		return nil, fmt.Errorf("open model: %w", err)
	}
	defer mf.Close()
	regressor, err := LoadRegressor(mf)
	if err != nil {
		return nil, err
	}
	return &Model{Scaler: scaler, Regressor: regressor}, nil
}
