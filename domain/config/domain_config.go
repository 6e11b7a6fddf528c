package config

import "time"

// DomainConfig holds all configurable business rules and constraints for the
// reflection and consolidation engines. The clustering threshold and minimum
// group size are deliberately configuration, not derived values.
type DomainConfig struct {
	// Candidate selection
	MinCandidateAge       time.Duration // candidates younger than this are skipped
	MaxConsolidationCount int           // candidates at or above this are skipped
	MaxCandidatesPerCycle int

	// Clustering
	SimilarityThreshold float64 // mean similarity to group required for membership
	MinGroupSize        int
	MaxGroupSize        int
	TemporalWindow      time.Duration // proximity bonus decays to zero past this

	// Similarity weights; domain + tag + temporal + importance sum to 1.0,
	// the embedding cosine contribution is additive and the total is capped
	DomainWeight     float64
	TagWeight        float64
	TemporalWeight   float64
	ImportanceWeight float64
	EmbeddingWeight  float64

	// Pattern extraction
	RecurringTagRatio     float64 // tag present in at least this share of members
	DomainConvergenceMin  int     // distinct shared domains to flag convergence
	FrequentAccessCount   int     // access count above which a member counts as revisited
	FrequentAccessRatio   float64 // share of revisited members to flag the group

	// Reflection eligibility
	MinFragmentsForConsolidation int
	EligibilityCoherence         float64
	EligibilityMaxDrift          float64

	// Decay timer (days)
	DefaultDecayDays        int
	HighImportanceDecayDays int
	LowImportanceDecayDays  int
	HighImportanceCutoff    float64
	LowImportanceCutoff     float64
	HighDriftCutoff         float64

	// Fan-out and batching
	GeneratorFanOut    int
	BatchConcurrency   int
	CollaboratorTimeout time.Duration

	// Capture constraints
	MaxContentLength int
	MaxTagsPerRecord int
	DedupeTTL        time.Duration
}

// DefaultDomainConfig returns the default domain configuration
func DefaultDomainConfig() *DomainConfig {
	return &DomainConfig{
		// Candidate selection
		MinCandidateAge:       24 * time.Hour,
		MaxConsolidationCount: 3,
		MaxCandidatesPerCycle: 200,

		// Clustering
		SimilarityThreshold: 0.6,
		MinGroupSize:        2,
		MaxGroupSize:        20,
		TemporalWindow:      7 * 24 * time.Hour,

		// Similarity weights
		DomainWeight:     0.3,
		TagWeight:        0.2,
		TemporalWeight:   0.3,
		ImportanceWeight: 0.2,
		EmbeddingWeight:  0.2,

		// Pattern extraction
		RecurringTagRatio:    0.5,
		DomainConvergenceMin: 3,
		FrequentAccessCount:  5,
		FrequentAccessRatio:  0.5,

		// Reflection eligibility
		MinFragmentsForConsolidation: 3,
		EligibilityCoherence:         0.6,
		EligibilityMaxDrift:          0.5,

		// Decay timer
		DefaultDecayDays:        7,
		HighImportanceDecayDays: 14,
		LowImportanceDecayDays:  3,
		HighImportanceCutoff:    0.7,
		LowImportanceCutoff:     0.3,
		HighDriftCutoff:         0.5,

		// Fan-out and batching
		GeneratorFanOut:     4,
		BatchConcurrency:    8,
		CollaboratorTimeout: 30 * time.Second,

		// Capture constraints
		MaxContentLength: 50000,
		MaxTagsPerRecord: 20,
		DedupeTTL:        24 * time.Hour,
	}
}

// ProductionDomainConfig returns production-specific configuration
func ProductionDomainConfig() *DomainConfig {
	config := DefaultDomainConfig()

	// Tighter batches against shared collaborators
	config.MaxCandidatesPerCycle = 100
	config.BatchConcurrency = 4
	config.GeneratorFanOut = 2
	config.CollaboratorTimeout = 15 * time.Second

	return config
}

// DevelopmentDomainConfig returns development-specific configuration
func DevelopmentDomainConfig() *DomainConfig {
	config := DefaultDomainConfig()

	// Faster cycles for local iteration
	config.MinCandidateAge = time.Minute
	config.MaxCandidatesPerCycle = 1000
	config.DedupeTTL = time.Minute

	return config
}

// LoadDomainConfig loads domain configuration based on environment
func LoadDomainConfig(environment string) *DomainConfig {
	switch environment {
	case "production":
		return ProductionDomainConfig()
	case "development":
		return DevelopmentDomainConfig()
	default:
		return DefaultDomainConfig()
	}
}

// Validate checks if the configuration is internally consistent
func (c *DomainConfig) Validate() error {
	if c.MinGroupSize < 2 {
		return errMinGroupSize
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return errSimilarityThreshold
	}
	return nil
}
