package embedding

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"mnemo-backend/application/ports"
	"mnemo-backend/pkg/errors"
)

// BreakerProvider wraps an embedding provider with a circuit breaker so a
// struggling embedding service fails fast instead of stalling every
// pipeline run on its timeout.
type BreakerProvider struct {
	inner   ports.EmbeddingProvider
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

var _ ports.EmbeddingProvider = (*BreakerProvider)(nil)

// BreakerOptions tunes the circuit breaker
type BreakerOptions struct {
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
}

// NewBreakerProvider wraps inner with a circuit breaker
func NewBreakerProvider(inner ports.EmbeddingProvider, opts BreakerOptions, logger *zap.Logger) *BreakerProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxRequests == 0 {
		opts.MaxRequests = 3
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	log := logger.With(zap.String("component", "embedding-breaker"))
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "embedder",
		MaxRequests: opts.MaxRequests,
		Interval:    opts.Interval,
		Timeout:     opts.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("embedder circuit state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			// caller mistakes must not trip the breaker
			return err == nil || errors.IsValidation(err)
		},
	})

	return &BreakerProvider{inner: inner, breaker: breaker, logger: log}
}

// Embed delegates through the breaker
func (p *BreakerProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := p.breaker.Execute(func() (interface{}, error) {
		return p.inner.Embed(ctx, text)
	})
	if err != nil {
		return nil, p.translate(err)
	}
	return result.([]float32), nil
}

// EmbedBatch delegates through the breaker as one unit
func (p *BreakerProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result, err := p.breaker.Execute(func() (interface{}, error) {
		return p.inner.EmbedBatch(ctx, texts)
	})
	if err != nil {
		return nil, p.translate(err)
	}
	return result.([][]float32), nil
}

func (p *BreakerProvider) translate(err error) error {
	switch err {
	case gobreaker.ErrOpenState, gobreaker.ErrTooManyRequests:
		return errors.NewCollaboratorUnavailableError("embedder", err)
	default:
		return err
	}
}
