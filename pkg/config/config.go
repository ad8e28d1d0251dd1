package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the settings for every quake command.
type Config struct {
	ProjectID       string          `mapstructure:"project_id"`
	CredentialsFile string          `mapstructure:"credentials_file"`
	GCPLocation     string          `mapstructure:"gcp_location"`
	Feed            FeedConfig      `mapstructure:"feed"`
	Archive         ArchiveConfig   `mapstructure:"archive"`
	Warehouse       WarehouseConfig `mapstructure:"warehouse"`
	Pipeline        PipelineConfig  `mapstructure:"pipeline"`
	Transform       TransformConfig `mapstructure:"transform"`
	Serving         ServingConfig   `mapstructure:"serving"`
	Redis           RedisConfig     `mapstructure:"redis"`
	Logging         LoggingConfig   `mapstructure:"logging"`
}

type FeedConfig struct {
	URL       string        `mapstructure:"url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

type ArchiveConfig struct {
	Bucket     string `mapstructure:"bucket"`
	Prefix     string `mapstructure:"prefix"`
	ObjectName string `mapstructure:"object_name"`
}

type WarehouseConfig struct {
	// Table is the fully qualified destination, project.dataset.table.
	Table string `mapstructure:"table"`
}

type PipelineConfig struct {
	FailurePolicy string `mapstructure:"failure_policy"`
	// WorkflowFile is optional; the built-in definition is used when empty.
	WorkflowFile string `mapstructure:"workflow_file"`
	// Timezone is the calendar for archive partitions and the schedule.
	Timezone string `mapstructure:"timezone"`
}

type TransformConfig struct {
	// Mode is one of command, pubsub or none.
	Mode    string        `mapstructure:"mode"`
	Command string        `mapstructure:"command"`
	Dir     string        `mapstructure:"dir"`
	Timeout time.Duration `mapstructure:"timeout"`
	TopicID string        `mapstructure:"topic_id"`
}

type ServingConfig struct {
	Addr            string        `mapstructure:"addr"`
	ModelBucket     string        `mapstructure:"model_bucket"`
	ScalerObject    string        `mapstructure:"scaler_object"`
	ModelObject     string        `mapstructure:"model_object"`
	ArtifactDir     string        `mapstructure:"artifact_dir"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// RedisConfig configures the optional prediction cache. An empty Addr disables it.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from defaults, an optional YAML file and
// QUAKE_-prefixed environment variables, in increasing precedence.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("project_id", "portfolio-earthquake-analysis")
	v.SetDefault("credentials_file", "")
	v.SetDefault("gcp_location", "US")
	v.SetDefault("feed.url", "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/1.0_month.geojson")
	v.SetDefault("feed.timeout", "30s")
	v.SetDefault("feed.user_agent", "go-quake/1.0")
	v.SetDefault("archive.bucket", "bkt-earthquakes-raw-ia")
	v.SetDefault("archive.prefix", "raw_data")
	v.SetDefault("archive.object_name", "usgs_earthquakes.json")
	v.SetDefault("warehouse.table", "portfolio-earthquake-analysis.earthquakes_dw.raw_usgs_earthquakes")
	v.SetDefault("pipeline.failure_policy", "continue")
	v.SetDefault("pipeline.workflow_file", "")
	v.SetDefault("pipeline.timezone", "UTC")
	v.SetDefault("transform.mode", "command")
	v.SetDefault("transform.command", "dbt clean && dbt run --profiles-dir .")
	v.SetDefault("transform.dir", "earthquake_dbt_project")
	v.SetDefault("transform.timeout", "30m")
	v.SetDefault("transform.topic_id", "")
	v.SetDefault("serving.addr", ":8080")
	v.SetDefault("serving.model_bucket", "bkt-earthquake-models-ia")
	v.SetDefault("serving.scaler_object", "earthquake_scaler.json")
	v.SetDefault("serving.model_object", "earthquake_xgboost_model.json")
	v.SetDefault("serving.artifact_dir", "")
	v.SetDefault("serving.read_timeout", "15s")
	v.SetDefault("serving.write_timeout", "15s")
	v.SetDefault("serving.shutdown_timeout", "10s")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "1h")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("quake")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/quake")
	}

	// Environment variables override (QUAKE_FEED_URL, QUAKE_ARCHIVE_BUCKET, etc.)
	v.SetEnvPrefix("QUAKE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values the commands cannot default for themselves.
func (c *Config) Validate() error {
	if c.Feed.URL == "" {
		return errors.New("feed.url is required")
	}
	if c.Archive.Bucket == "" {
		return errors.New("archive.bucket is required")
	}
	if strings.Count(c.Warehouse.Table, ".") != 2 {
		return fmt.Errorf("warehouse.table %q must have the form project.dataset.table", c.Warehouse.Table)
	}
	switch c.Pipeline.FailurePolicy {
	case "", "continue", "halt":
	default:
		return fmt.Errorf("pipeline.failure_policy %q must be continue or halt", c.Pipeline.FailurePolicy)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	switch c.Transform.Mode {
	case "none", "command":
	case "pubsub":
		if c.Transform.TopicID == "" {
			return errors.New("transform.topic_id is required when transform.mode is pubsub")
		}
	default:
		return fmt.Errorf("transform.mode %q must be command, pubsub or none", c.Transform.Mode)
	}
	return nil
}

// Location resolves the pipeline timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Pipeline.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Pipeline.Timezone)
	if err != nil {
		return nil, fmt.Errorf("pipeline.timezone %q: %w", c.Pipeline.Timezone, err)
	}
	return loc, nil
}
