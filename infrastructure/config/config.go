// Package config loads runtime configuration from a YAML file with
// environment-variable overrides. Domain tuning parameters live in
// domain/config; this package covers the operational surface around them.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	domaincfg "mnemo-backend/domain/config"
)

// Duration decodes YAML durations given either as strings ("30s", "1h")
// or as integer nanoseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("invalid duration %q: %w", s, perr)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration value: %w", err)
	}
	*d = Duration(n)
	return nil
}

// Std converts to the standard library representation
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds all application configuration
type Config struct {
	Environment string `yaml:"environment" validate:"required,oneof=development staging production"`
	LogLevel    string `yaml:"log_level" validate:"required,oneof=debug info warn error"`

	Storage   StorageConfig   `yaml:"storage"`
	Cache     CacheConfig     `yaml:"cache"`
	Messaging MessagingConfig `yaml:"messaging"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// StorageConfig selects and parameterizes the candidate store backend
type StorageConfig struct {
	Backend string `yaml:"backend" validate:"required,oneof=memory sqlite dynamodb"`

	SQLitePath string `yaml:"sqlite_path" validate:"required_if=Backend sqlite"`

	AWSRegion     string `yaml:"aws_region" validate:"required_if=Backend dynamodb"`
	DynamoDBTable string `yaml:"dynamodb_table" validate:"required_if=Backend dynamodb"`
	UserIndexName string `yaml:"user_index_name"`
}

// CacheConfig parameterizes the in-process journal and dedupe cache
type CacheConfig struct {
	MaxCostBytes int64 `yaml:"max_cost_bytes" validate:"gt=0"`
	NumCounters  int64 `yaml:"num_counters" validate:"gt=0"`
	BufferItems  int64 `yaml:"buffer_items" validate:"gt=0"`
}

// MessagingConfig selects the event sink
type MessagingConfig struct {
	Sink         string `yaml:"sink" validate:"required,oneof=log eventbridge"`
	EventBusName string `yaml:"event_bus_name" validate:"required_if=Sink eventbridge"`
	EventSource  string `yaml:"event_source"`
	AWSRegion    string `yaml:"aws_region"`
}

// EmbeddingConfig selects the embedding provider
type EmbeddingConfig struct {
	Provider  string        `yaml:"provider" validate:"required,oneof=local http"`
	Endpoint  string        `yaml:"endpoint" validate:"required_if=Provider http"`
	Model     string        `yaml:"model"`
	Dimension int           `yaml:"dimension" validate:"gt=0"`
	Timeout   Duration `yaml:"timeout" validate:"gt=0"`

	// Circuit breaker settings for the HTTP provider
	BreakerMaxRequests uint32        `yaml:"breaker_max_requests"`
	BreakerInterval    Duration `yaml:"breaker_interval"`
	BreakerTimeout     Duration `yaml:"breaker_timeout"`
}

// SchedulerConfig parameterizes the consolidation cycle loops
type SchedulerConfig struct {
	CycleInterval   Duration `yaml:"cycle_interval" validate:"gt=0"`
	InitialCooldown Duration `yaml:"initial_cooldown" validate:"gt=0"`
	MaxCooldown     Duration `yaml:"max_cooldown" validate:"gtefield=InitialCooldown"`
}

// Default returns a development-ready configuration
func Default() *Config {
	return &Config{
		Environment: "development",
		LogLevel:    "info",
		Storage: StorageConfig{
			Backend:       "memory",
			SQLitePath:    "mnemo.db",
			AWSRegion:     "us-west-2",
			DynamoDBTable: "mnemo-candidates",
			UserIndexName: "UserIndex",
		},
		Cache: CacheConfig{
			MaxCostBytes: 64 << 20,
			NumCounters:  1e6,
			BufferItems:  64,
		},
		Messaging: MessagingConfig{
			Sink:         "log",
			EventBusName: "mnemo-events",
			EventSource:  "mnemo.backend",
			AWSRegion:    "us-west-2",
		},
		Embedding: EmbeddingConfig{
			Provider:           "local",
			Endpoint:           "http://localhost:11434",
			Model:              "nomic-embed-text",
			Dimension:          256,
			Timeout:            Duration(30 * time.Second),
			BreakerMaxRequests: 3,
			BreakerInterval:    Duration(time.Minute),
			BreakerTimeout:     Duration(30 * time.Second),
		},
		Scheduler: SchedulerConfig{
			CycleInterval:   Duration(time.Hour),
			InitialCooldown: Duration(30 * time.Second),
			MaxCooldown:     Duration(10 * time.Minute),
		},
	}
}

// Load reads the optional YAML file at path, applies environment overrides
// and validates the result. An empty path loads defaults plus overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration with struct tags
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// DomainConfig returns the domain tuning profile for this environment
func (c *Config) DomainConfig() *domaincfg.DomainConfig {
	return domaincfg.LoadDomainConfig(c.Environment)
}

// IsDevelopment reports whether we run in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether we run in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) applyEnvOverrides() {
	setString(&c.Environment, "MNEMO_ENVIRONMENT")
	setString(&c.LogLevel, "MNEMO_LOG_LEVEL")

	setString(&c.Storage.Backend, "MNEMO_STORAGE_BACKEND")
	setString(&c.Storage.SQLitePath, "MNEMO_SQLITE_PATH")
	setString(&c.Storage.AWSRegion, "AWS_REGION")
	setString(&c.Storage.DynamoDBTable, "MNEMO_DYNAMODB_TABLE")
	setString(&c.Storage.UserIndexName, "MNEMO_USER_INDEX_NAME")

	setInt64(&c.Cache.MaxCostBytes, "MNEMO_CACHE_MAX_COST_BYTES")

	setString(&c.Messaging.Sink, "MNEMO_EVENT_SINK")
	setString(&c.Messaging.EventBusName, "MNEMO_EVENT_BUS_NAME")
	setString(&c.Messaging.AWSRegion, "AWS_REGION")

	setString(&c.Embedding.Provider, "MNEMO_EMBEDDING_PROVIDER")
	setString(&c.Embedding.Endpoint, "MNEMO_EMBEDDING_ENDPOINT")
	setString(&c.Embedding.Model, "MNEMO_EMBEDDING_MODEL")
	setDuration(&c.Embedding.Timeout, "MNEMO_EMBEDDING_TIMEOUT")

	setDuration(&c.Scheduler.CycleInterval, "MNEMO_CYCLE_INTERVAL")
	setDuration(&c.Scheduler.InitialCooldown, "MNEMO_INITIAL_COOLDOWN")
	setDuration(&c.Scheduler.MaxCooldown, "MNEMO_MAX_COOLDOWN")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}
