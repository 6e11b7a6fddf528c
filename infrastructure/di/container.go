// Package di wires the application together from configuration. Providers
// are plain functions; the container owns lifecycle and hands out the
// assembled engines.
package di

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"mnemo-backend/application/consolidation"
	"mnemo-backend/application/ports"
	"mnemo-backend/application/process"
	"mnemo-backend/application/reflection"
	"mnemo-backend/application/scheduler"
	domaincfg "mnemo-backend/domain/config"
	ristrettocache "mnemo-backend/infrastructure/cache/ristretto"
	"mnemo-backend/infrastructure/config"
	"mnemo-backend/infrastructure/embedding"
	"mnemo-backend/infrastructure/generator"
	ebsink "mnemo-backend/infrastructure/messaging/eventbridge"
	localsink "mnemo-backend/infrastructure/messaging/local"
	dynamostore "mnemo-backend/infrastructure/persistence/dynamodb"
	memorystore "mnemo-backend/infrastructure/persistence/memory"
	sqlitestore "mnemo-backend/infrastructure/persistence/sqlite"
	"mnemo-backend/pkg/errors"
	"mnemo-backend/pkg/observability"
)

// Container holds the assembled application
type Container struct {
	Config       *config.Config
	DomainConfig *domaincfg.DomainConfig
	Logger       *zap.Logger
	Metrics      *observability.Collector

	Store       ports.CandidateStore
	Cache       ports.Cache
	Sink        ports.EventSink
	Embedder    ports.EmbeddingProvider
	Synthesizer ports.Synthesizer
	Generators  []ports.PerspectiveGenerator

	Ingest        *process.ProcessPipeline
	Reflection    *reflection.Engine
	Consolidation *consolidation.Engine
	Scheduler     *scheduler.Scheduler

	closers []func()
}

// NewContainer builds everything the CLI needs from one configuration
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, errors.NewValidationError("configuration is required")
	}

	c := &Container{
		Config:       cfg,
		DomainConfig: cfg.DomainConfig(),
	}

	logger, err := ProvideLogger(cfg)
	if err != nil {
		return nil, err
	}
	c.Logger = logger
	c.closers = append(c.closers, func() { _ = logger.Sync() })

	c.Metrics = observability.NewCollector("mnemo")

	cache, err := ProvideCache(cfg, logger, c.Metrics)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Cache = cache
	c.closers = append(c.closers, cache.Close)

	store, err := ProvideStore(ctx, cfg, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Store = store
	if closer, ok := store.(interface{ Close() error }); ok {
		c.closers = append(c.closers, func() { _ = closer.Close() })
	}

	sink, err := ProvideSink(ctx, cfg, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Sink = sink

	embedder, err := ProvideEmbedder(cfg, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Embedder = embedder
	c.Synthesizer = ProvideSynthesizer(cfg, logger)
	c.Generators = ProvideGenerators()

	c.Ingest = process.NewProcessPipeline(process.Deps{
		Config:   c.DomainConfig,
		Store:    c.Store,
		Embedder: c.Embedder,
		Cache:    c.Cache,
		Logger:   logger,
		Metrics:  c.Metrics,
	})

	c.Reflection, err = reflection.NewEngine(
		c.Generators, c.Cache, c.Sink, c.DomainConfig, logger, c.Metrics)
	if err != nil {
		c.Close()
		return nil, err
	}

	c.Consolidation, err = consolidation.NewEngine(
		c.Store, c.Synthesizer, c.Sink, c.DomainConfig, logger, c.Metrics)
	if err != nil {
		c.Close()
		return nil, err
	}

	c.Scheduler = scheduler.New(c.Consolidation, logger, c.Metrics,
		scheduler.WithCooldown(
			cfg.Scheduler.InitialCooldown.Std(),
			cfg.Scheduler.MaxCooldown.Std()))

	return c, nil
}

// Close releases everything the container opened, in reverse order
func (c *Container) Close() {
	if c.Scheduler != nil {
		c.Scheduler.StopAll()
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// ProvideLogger builds the environment-appropriate logger
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, errors.NewValidationError("invalid log level: " + cfg.LogLevel)
	}

	var zcfg zap.Config
	if cfg.IsProduction() {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

// ProvideCache builds the in-process cache
func ProvideCache(cfg *config.Config, logger *zap.Logger, metrics *observability.Collector) (*ristrettocache.Cache, error) {
	return ristrettocache.New(ristrettocache.Options{
		MaxCostBytes: cfg.Cache.MaxCostBytes,
		NumCounters:  cfg.Cache.NumCounters,
		BufferItems:  cfg.Cache.BufferItems,
	}, logger, metrics)
}

// ProvideStore selects the configured persistence backend
func ProvideStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ports.CandidateStore, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return memorystore.NewCandidateStore(), nil
	case "sqlite":
		return sqlitestore.Open(cfg.Storage.SQLitePath, logger)
	case "dynamodb":
		awsCfg, err := ProvideAWSConfig(ctx, cfg.Storage.AWSRegion)
		if err != nil {
			return nil, err
		}
		client := awsdynamodb.NewFromConfig(awsCfg)
		return dynamostore.NewCandidateStore(client, cfg.Storage.DynamoDBTable, logger)
	default:
		return nil, errors.NewValidationError("unknown storage backend: " + cfg.Storage.Backend)
	}
}

// ProvideSink selects the configured event sink
func ProvideSink(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ports.EventSink, error) {
	switch cfg.Messaging.Sink {
	case "log":
		return localsink.NewSink(logger), nil
	case "eventbridge":
		awsCfg, err := ProvideAWSConfig(ctx, cfg.Messaging.AWSRegion)
		if err != nil {
			return nil, err
		}
		client := awseventbridge.NewFromConfig(awsCfg)
		return ebsink.NewSink(client, cfg.Messaging.EventBusName, cfg.Messaging.EventSource, logger)
	default:
		return nil, errors.NewValidationError("unknown event sink: " + cfg.Messaging.Sink)
	}
}

// ProvideEmbedder selects the embedding provider; the HTTP provider gets a
// circuit breaker in front of it
func ProvideEmbedder(cfg *config.Config, logger *zap.Logger) (ports.EmbeddingProvider, error) {
	switch cfg.Embedding.Provider {
	case "local":
		return embedding.NewLocalProvider(cfg.Embedding.Dimension)
	case "http":
		client := embedding.NewHTTPClient(embedding.HTTPOptions{
			Endpoint: cfg.Embedding.Endpoint,
			Model:    cfg.Embedding.Model,
			Timeout:  cfg.Embedding.Timeout.Std(),
		}, logger)
		return embedding.NewBreakerProvider(client, embedding.BreakerOptions{
			MaxRequests: cfg.Embedding.BreakerMaxRequests,
			Interval:    cfg.Embedding.BreakerInterval.Std(),
			Timeout:     cfg.Embedding.BreakerTimeout.Std(),
		}, logger), nil
	default:
		return nil, errors.NewValidationError("unknown embedding provider: " + cfg.Embedding.Provider)
	}
}

// ProvideSynthesizer returns the generation client for the HTTP provider
// and nil otherwise; consolidation treats a nil synthesizer as absent
func ProvideSynthesizer(cfg *config.Config, logger *zap.Logger) ports.Synthesizer {
	if cfg.Embedding.Provider != "http" {
		return nil
	}
	return embedding.NewHTTPSynthesizer(embedding.HTTPOptions{
		Endpoint: cfg.Embedding.Endpoint,
		Timeout:  cfg.Embedding.Timeout.Std(),
	}, logger)
}

// ProvideGenerators returns the built-in perspective generators
func ProvideGenerators() []ports.PerspectiveGenerator {
	return []ports.PerspectiveGenerator{
		generator.NewAnalytical(),
		generator.NewPattern(),
		generator.NewTemporal(),
	}
}

// ProvideAWSConfig loads the AWS SDK configuration
func ProvideAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
}
