// Package capture turns raw user input into a validated, deduplicated and
// enriched candidate ready for the processing pipeline.
package capture

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/tsawler/prose/v3"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"mnemo-backend/application/ports"
	"mnemo-backend/domain/config"
	"mnemo-backend/domain/core/entities"
	"mnemo-backend/domain/core/valueobjects"
	"mnemo-backend/pkg/errors"
	"mnemo-backend/pkg/observability"
	"mnemo-backend/pkg/pipeline"
)

// RawInput is what the outside world hands the engine
type RawInput struct {
	UserID     string
	Content    string
	OccurredAt time.Time
	Domains    []string
	Tags       []string
	Importance float64
}

// entityLabels are the prose entity kinds worth keeping as tags
var entityLabels = map[string]struct{}{
	"PERSON": {}, "ORG": {}, "GPE": {}, "LOC": {},
	"PRODUCT": {}, "EVENT": {}, "NORP": {}, "FAC": {},
}

// NewPipeline builds the capture pipeline: validate, dedupe, enrich.
// Validation and dedupe are required; a duplicate is rejected with a
// conflict error. Enrichment is best effort.
func NewPipeline(cfg *config.DomainConfig, cache ports.Cache, logger *zap.Logger, metrics *observability.Collector) *pipeline.Pipeline {
	return pipeline.New("capture", logger, pipeline.WithMetrics(metrics)).
		AddStage(validateStage(cfg)).
		AddStage(dedupeStage(cache)).
		AddStage(enrichStage())
}

func validateStage(cfg *config.DomainConfig) pipeline.Stage {
	return pipeline.NewStage("validate", func(_ context.Context, input interface{}, _ *pipeline.Context) (interface{}, error) {
		raw := input.(RawInput)

		occurredAt := raw.OccurredAt
		if occurredAt.IsZero() {
			occurredAt = time.Now()
		}

		candidate, err := entities.NewCandidateWithConfig(raw.UserID, raw.Content, occurredAt, cfg)
		if err != nil {
			return nil, err
		}
		for _, d := range raw.Domains {
			if err := candidate.AddDomain(d); err != nil {
				return nil, err
			}
		}
		for _, t := range raw.Tags {
			if err := candidate.AddTagWithConfig(t, cfg); err != nil {
				return nil, err
			}
		}
		if raw.Importance > 0 {
			candidate.SetImportance(valueobjects.NewUnitScore(raw.Importance))
		}
		return candidate, nil
	}).WithValidate(func(input interface{}) error {
		raw, ok := input.(RawInput)
		if !ok {
			return errors.NewValidationError("capture input must be a RawInput")
		}
		if strings.TrimSpace(raw.UserID) == "" {
			return errors.NewValidationError("user id is required")
		}
		if strings.TrimSpace(raw.Content) == "" {
			return errors.NewValidationError("content is required")
		}
		if len(raw.Content) > cfg.MaxContentLength {
			return errors.NewValidationError(fmt.Sprintf("content exceeds %d characters", cfg.MaxContentLength))
		}
		return nil
	})
}

// dedupeStage rejects content the user already captured recently. The hash
// key is scoped per user so identical text from different users passes. A
// nil or failing cache degrades to accepting the input.
func dedupeStage(cache ports.Cache) pipeline.Stage {
	return pipeline.NewStage("dedupe", func(ctx context.Context, input interface{}, ec *pipeline.Context) (interface{}, error) {
		candidate := input.(*entities.Candidate)
		if cache == nil {
			return candidate, nil
		}

		key := DedupeKey(candidate.UserID(), candidate.Content())
		if _, seen := cache.Get(ctx, key); seen {
			return nil, errors.NewConflictError("duplicate content captured within the dedupe window")
		}
		ec.Set("dedupe_key", key)
		return candidate, nil
	})
}

func enrichStage() pipeline.Stage {
	return pipeline.NewStage("enrich", func(_ context.Context, input interface{}, _ *pipeline.Context) (interface{}, error) {
		candidate := input.(*entities.Candidate)

		doc, err := prose.NewDocument(candidate.Content())
		if err != nil {
			return nil, err
		}
		for _, ent := range doc.Entities() {
			if _, ok := entityLabels[strings.ToUpper(ent.Label)]; !ok {
				continue
			}
			tag := strings.TrimSpace(ent.Text)
			if tag == "" || len(tag) > 64 {
				continue
			}
			if err := candidate.AddTag(tag); err != nil {
				break
			}
		}
		return candidate, nil
	}).Optional()
}

// DedupeKey derives the cache key for one user's content hash
func DedupeKey(userID, content string) string {
	sum := blake3.Sum256([]byte(userID + "\x00" + content))
	return "capture:dedupe:" + hex.EncodeToString(sum[:])
}
