package ports

import (
	"context"
	"time"

	"mnemo-backend/domain/core/entities"
)

// Capability names one kind of reflective analysis a generator can perform.
// The set is closed: dispatch over capabilities is total, and an unknown
// value is a programming error surfaced at registration time.
type Capability string

const (
	CapabilityAnalytical Capability = "analytical"
	CapabilityPattern    Capability = "pattern"
	CapabilityTemporal   Capability = "temporal"
	CapabilityEmotional  Capability = "emotional"
	CapabilityConnection Capability = "connection"
)

// ValidCapability reports whether c is a member of the closed set
func ValidCapability(c Capability) bool {
	switch c {
	case CapabilityAnalytical, CapabilityPattern, CapabilityTemporal,
		CapabilityEmotional, CapabilityConnection:
		return true
	}
	return false
}

// PerspectiveGenerator produces one reflection fragment for a candidate.
// Implementations may be heuristic or model-backed; the engine treats them
// identically and tolerates individual failures.
type PerspectiveGenerator interface {
	// ID uniquely identifies the generator within a registry
	ID() string

	// Capabilities declares which analyses this generator performs
	Capabilities() []Capability

	// Reflect analyzes the candidate and returns zero or more fragments.
	// Hints carries optional per-cycle context such as recent activity.
	Reflect(ctx context.Context, candidate *entities.Candidate, hints map[string]interface{}) ([]*entities.Fragment, error)
}

// EmbeddingProvider turns text into dense vectors
type EmbeddingProvider interface {
	// Embed returns the embedding for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one embedding per input text, in input order
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Synthesizer optionally rewrites a deterministic consolidation summary
// into richer prose. Engines must produce a complete record without it.
type Synthesizer interface {
	Synthesize(ctx context.Context, prompt string) (string, error)
}

// Cache is an ephemeral byte store with per-entry TTL
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// EventSink receives domain event notifications
type EventSink interface {
	// Publish sends one event payload under a topic
	Publish(ctx context.Context, topic string, payload map[string]interface{}) error
}
