package serving

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/illmade-knight/go-quake/pkg/observability"
	"github.com/rs/zerolog"
)

// RedisConfig holds configuration for the Redis client.
type RedisConfig struct {
	Addr     string        // e.g., "localhost:6379"
	Password string        // Leave empty if no password
	DB       int           // e.g., 0
	CacheTTL time.Duration // Time-to-live for cache entries
}

// RedisPredictionCache implements Predictor using a Redis cache that falls
// back to another Predictor on a cache miss. Cache errors never fail a request.
type RedisPredictionCache struct {
	redisClient *redis.Client
	fallback    Predictor
	keyPrefix   string
	ttl         time.Duration
	metrics     *observability.Metrics
	logger      zerolog.Logger
}

// NewRedisPredictionCache connects to Redis and pings it. keyPrefix should
// identify the model artifacts so a new model never reads old predictions.
func NewRedisPredictionCache(ctx context.Context, cfg *RedisConfig, fallback Predictor, keyPrefix string, metrics *observability.Metrics, logger zerolog.Logger) (*RedisPredictionCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info().Str("redis_address", cfg.Addr).Msg("Successfully connected to Redis for prediction cache")
	return NewRedisPredictionCacheWithClient(rdb, fallback, keyPrefix, cfg.CacheTTL, metrics, logger)
}

// NewRedisPredictionCacheWithClient wraps an existing client, which the cache then owns.
func NewRedisPredictionCacheWithClient(client *redis.Client, fallback Predictor, keyPrefix string, ttl time.Duration, metrics *observability.Metrics, logger zerolog.Logger) (*RedisPredictionCache, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if fallback == nil {
		return nil, errors.New("fallback predictor cannot be nil")
	}
	return &RedisPredictionCache{
		redisClient: client,
		fallback:    fallback,
		keyPrefix:   keyPrefix,
		ttl:         ttl,
		metrics:     metrics,
		logger:      logger.With().Str("component", "RedisPredictionCache").Logger(),
	}, nil
}

// Key is the cache key for f.
func (c *RedisPredictionCache) Key(f Features) string {
	return fmt.Sprintf("%s:%s:%s:%s", c.keyPrefix,
		strconv.FormatFloat(f.Latitude, 'g', -1, 64),
		strconv.FormatFloat(f.Longitude, 'g', -1, 64),
		strconv.FormatFloat(f.DepthKm, 'g', -1, 64))
}

// Predict checks Redis first. On a miss it calls the fallback and stores the
// result for next time. Failed predictions are not cached.
func (c *RedisPredictionCache) Predict(ctx context.Context, f Features) (float64, error) {
	key := c.Key(f)
	cached, err := c.redisClient.Get(ctx, key).Float64()
	if err == nil {
		c.logger.Debug().Str("key", key).Msg("Cache hit: found prediction in Redis")
		c.observe("hit")
		return cached, nil
	}
	if errors.Is(err, redis.Nil) {
		c.logger.Debug().Str("key", key).Msg("Cache miss: prediction not found in Redis")
		c.observe("miss")
	} else {
		c.logger.Error().Err(err).Str("key", key).Msg("Error fetching from Redis cache")
		c.observe("error")
	}

	value, err := c.fallback.Predict(ctx, f)
	if err != nil {
		return 0, err
	}

	if setErr := c.redisClient.Set(ctx, key, strconv.FormatFloat(value, 'g', -1, 64), c.ttl).Err(); setErr != nil {
		c.logger.Error().Err(setErr).Str("key", key).Msg("Failed to set prediction in Redis cache")
	}
	return value, nil
}

func (c *RedisPredictionCache) observe(result string) {
	if c.metrics != nil {
		c.metrics.PredictionCache.WithLabelValues(result).Inc()
	}
}

// Close gracefully closes the Redis client connection.
func (c *RedisPredictionCache) Close() error {
	c.logger.Info().Msg("Closing Redis client connection...")
	return c.redisClient.Close()
}
