// Package process runs a captured candidate through embedding, importance
// scoring, privacy assessment and drift detection, then writes it to the
// store. The storage stage is the only one that writes; everything before
// it can fail without leaving partial state behind.
package process

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"mnemo-backend/application/capture"
	"mnemo-backend/application/ports"
	"mnemo-backend/domain/config"
	"mnemo-backend/domain/core/entities"
	"mnemo-backend/domain/core/valueobjects"
	"mnemo-backend/pkg/errors"
	"mnemo-backend/pkg/observability"
	"mnemo-backend/pkg/pipeline"
	"mnemo-backend/pkg/vectors"
)

// embeddingFallbackDim sizes the zero vector substituted when the embedding
// provider is unavailable. A zero vector has no norm, so similarity math
// treats it as "no embedding present".
const embeddingFallbackDim = 256

// embeddingDriftFloor is the cosine similarity below which a re-processed
// candidate's new embedding is considered to have drifted from the stored one
const embeddingDriftFloor = 0.5

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\d[\d\s\-()]{7,}\d`)
)

var sensitiveKeywords = []string{"password", "passphrase", "secret", "api key", "ssn", "credit card"}

// ProcessPipeline is the full ingest chain: the capture pipeline composed
// with the processing stages. Run returns a typed result whose Data is the
// stored *entities.Candidate on success.
type ProcessPipeline struct {
	inner       *pipeline.Pipeline
	concurrency int64
}

// Deps bundles the collaborators the pipeline needs
type Deps struct {
	Config   *config.DomainConfig
	Store    ports.CandidateStore
	Embedder ports.EmbeddingProvider
	Cache    ports.Cache
	Logger   *zap.Logger
	Metrics  *observability.Collector
}

// NewProcessPipeline builds the capture -> process composite
func NewProcessPipeline(deps Deps) *ProcessPipeline {
	inner := pipeline.New("ingest", deps.Logger, pipeline.WithMetrics(deps.Metrics)).
		AddStage(capture.NewPipeline(deps.Config, deps.Cache, deps.Logger, deps.Metrics)).
		AddStage(NewPipeline(deps))
	return &ProcessPipeline{inner: inner, concurrency: int64(deps.Config.BatchConcurrency)}
}

// Run ingests one raw input end to end
func (p *ProcessPipeline) Run(ctx context.Context, raw capture.RawInput) pipeline.Result {
	return p.inner.Run(ctx, raw)
}

// RunBatch ingests many raw inputs with bounded concurrency
func (p *ProcessPipeline) RunBatch(ctx context.Context, raws []capture.RawInput) []pipeline.Result {
	inputs := make([]interface{}, len(raws))
	for i, r := range raws {
		inputs[i] = r
	}
	return p.inner.RunBatch(ctx, inputs, p.concurrency)
}

// NewPipeline builds the processing stages for an already-captured candidate
func NewPipeline(deps Deps) *pipeline.Pipeline {
	return pipeline.New("process", deps.Logger, pipeline.WithMetrics(deps.Metrics)).
		AddStage(embedStage(deps.Config, deps.Embedder)).
		AddStage(scoreStage()).
		AddStage(privacyStage()).
		AddStage(driftStage(deps.Store)).
		AddStage(storeStage(deps.Config, deps.Store, deps.Cache))
}

// embedStage attaches an embedding. An unavailable provider degrades to a
// zero vector rather than losing the capture.
func embedStage(cfg *config.DomainConfig, embedder ports.EmbeddingProvider) pipeline.Stage {
	return pipeline.NewStage("embed", func(ctx context.Context, input interface{}, _ *pipeline.Context) (interface{}, error) {
		candidate := input.(*entities.Candidate)
		if embedder == nil {
			return nil, errors.NewCollaboratorUnavailableError("embedder", nil)
		}
		vec, err := embedder.Embed(ctx, candidate.Content())
		if err != nil {
			return nil, errors.NewCollaboratorUnavailableError("embedder", err)
		}
		candidate.SetEmbedding(vec)
		return candidate, nil
	}).WithTimeout(cfg.CollaboratorTimeout).WithOnError(func(_ context.Context, err error, input interface{}, ec *pipeline.Context) (interface{}, bool) {
		if !errors.IsCollaboratorUnavailable(err) && !errors.IsTimeout(err) {
			return nil, false
		}
		candidate := input.(*entities.Candidate)
		candidate.SetEmbedding(make([]float32, embeddingFallbackDim))
		ec.Set("embedding_fallback", true)
		return candidate, true
	})
}

// scoreStage derives importance from the candidate's own fields. The derived
// value never lowers an importance already raised by capture input or access
// boosts, so re-running the stage is a no-op.
func scoreStage() pipeline.Stage {
	return pipeline.NewStage("score", func(_ context.Context, input interface{}, _ *pipeline.Context) (interface{}, error) {
		candidate := input.(*entities.Candidate)
		derived := deriveImportance(candidate)
		if derived > candidate.Importance().Value() {
			candidate.SetImportance(valueobjects.NewUnitScore(derived))
		}
		return candidate, nil
	})
}

func deriveImportance(c *entities.Candidate) float64 {
	score := 0.3

	words := len(strings.Fields(c.Content()))
	lengthTerm := float64(words) / 200.0
	if lengthTerm > 1 {
		lengthTerm = 1
	}
	score += 0.2 * lengthTerm

	domains := len(c.Domains())
	if domains > 3 {
		domains = 3
	}
	score += 0.05 * float64(domains)

	tags := len(c.Tags())
	if tags > 5 {
		tags = 5
	}
	score += 0.03 * float64(tags)

	return score
}

// privacyStage tags content that looks sensitive so downstream consumers can
// treat it accordingly. Heuristic only.
func privacyStage() pipeline.Stage {
	return pipeline.NewStage("privacy", func(_ context.Context, input interface{}, ec *pipeline.Context) (interface{}, error) {
		candidate := input.(*entities.Candidate)

		var flags []string
		content := candidate.Content()
		lower := strings.ToLower(content)
		if emailPattern.MatchString(content) {
			flags = append(flags, "email")
		}
		if phonePattern.MatchString(content) {
			flags = append(flags, "phone")
		}
		for _, kw := range sensitiveKeywords {
			if strings.Contains(lower, kw) {
				flags = append(flags, "keyword:"+kw)
			}
		}
		if len(flags) > 0 {
			if err := candidate.AddTag("sensitive"); err != nil {
				return nil, err
			}
			ec.Set("privacy_flags", flags)
		}
		return candidate, nil
	}).Optional()
}

// driftStage compares the fresh embedding against a previously stored copy
// of the same candidate, flagging re-processed records whose meaning moved
func driftStage(store ports.CandidateStore) pipeline.Stage {
	return pipeline.NewStage("drift", func(ctx context.Context, input interface{}, ec *pipeline.Context) (interface{}, error) {
		candidate := input.(*entities.Candidate)
		if store == nil || !candidate.HasEmbedding() {
			return candidate, nil
		}

		prior, err := store.GetByID(ctx, candidate.UserID(), candidate.ID())
		if err != nil {
			if errors.IsNotFound(err) {
				return candidate, nil
			}
			return nil, err
		}
		if prior == nil || !prior.HasEmbedding() {
			return candidate, nil
		}

		sim := vectors.Cosine(candidate.Embedding(), prior.Embedding())
		if sim < embeddingDriftFloor {
			ec.Set("embedding_drift", 1-sim)
		}
		return candidate, nil
	}).Optional()
}

// storeStage is the single writing stage. It persists the candidate, then
// records the dedupe key so repeats inside the window are rejected, and
// commits the entity's domain events.
func storeStage(cfg *config.DomainConfig, store ports.CandidateStore, cache ports.Cache) pipeline.Stage {
	return pipeline.NewStage("store", func(ctx context.Context, input interface{}, _ *pipeline.Context) (interface{}, error) {
		candidate := input.(*entities.Candidate)
		if store == nil {
			return nil, errors.NewCollaboratorUnavailableError("candidate store", nil)
		}
		if err := store.Save(ctx, candidate); err != nil {
			return nil, err
		}
		if cache != nil {
			// Best effort; a missed dedupe entry only risks a later duplicate.
			key := capture.DedupeKey(candidate.UserID(), candidate.Content())
			_ = cache.Set(ctx, key, []byte{1}, cfg.DedupeTTL)
		}
		candidate.MarkEventsAsCommitted()
		return candidate, nil
	}).WithTimeout(cfg.CollaboratorTimeout)
}
