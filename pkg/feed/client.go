package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/illmade-knight/go-quake/pkg/types"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// DefaultURL is the USGS summary feed of all M1.0+ events of the past 30 days.
const DefaultURL = "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/1.0_month.geojson"

// maxBodyBytes bounds a single feed document.
const maxBodyBytes = 256 << 20

// Config holds configuration for the feed client.
type Config struct {
	URL       string
	Timeout   time.Duration
	UserAgent string
}

// Client fetches raw snapshots from the seismic feed. It performs exactly one
// GET per Fetch call and never retries; retry policy belongs to the scheduler.
type Client struct {
	url        string
	userAgent  string
	httpClient *http.Client
	clock      clockwork.Clock
	logger     zerolog.Logger
}

// NewClient creates a feed client. A nil httpClient gets a default client
// using cfg.Timeout.
func NewClient(cfg Config, httpClient *http.Client, clock clockwork.Clock, logger zerolog.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("feed URL is required")
	}
	if cfg.Timeout <= 0 {
		logger.Warn().Dur("provided_timeout", cfg.Timeout).Msg("Feed timeout must be positive, defaulting to 30s.")
		cfg.Timeout = 30 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Client{
		url:        cfg.URL,
		userAgent:  cfg.UserAgent,
		httpClient: httpClient,
		clock:      clock,
		logger:     logger.With().Str("component", "FeedClient").Logger(),
	}, nil
}

// Fetch retrieves one snapshot. Every error it returns is a *types.Failure of
// kind FetchFailure.
func (c *Client) Fetch(ctx context.Context) (*types.Snapshot, error) {
	c.logger.Info().Str("url", c.url).Msg("Starting feed extraction")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, c.fail(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/geo+json, application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.fail(fmt.Errorf("feed request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, c.fail(fmt.Errorf("feed returned status %d: %s", resp.StatusCode, body))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, c.fail(fmt.Errorf("read feed body: %w", err))
	}

	snap, err := types.NewSnapshot(raw, c.url, c.clock.Now().UTC())
	if err != nil {
		return nil, c.fail(err)
	}

	c.logger.Info().Int("bytes", len(raw)).Msg("Feed extraction succeeded")
	return snap, nil
}

func (c *Client) fail(err error) error {
	c.logger.Error().Err(err).Str("url", c.url).Msg("Feed extraction failed")
	return types.NewFailure(types.FetchFailure, err)
}
