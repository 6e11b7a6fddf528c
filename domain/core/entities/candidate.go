package entities

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"mnemo-backend/domain/config"
	"mnemo-backend/domain/core/valueobjects"
	"mnemo-backend/domain/events"
	pkgerrors "mnemo-backend/pkg/errors"
)

// Candidate is the main entity representing a memory record eligible for
// reflection and consolidation. It is a rich domain model with encapsulated
// business logic; this engine mutates it but never deletes it.
type Candidate struct {
	// Private fields ensure encapsulation
	id                 valueobjects.CandidateID
	userID             string
	content            string
	summary            string
	importance         valueobjects.UnitScore
	valence            valueobjects.Modulation
	occurredAt         time.Time
	createdAt          time.Time
	updatedAt          time.Time
	consolidationCount int
	groupID            valueobjects.GroupID
	lastAccessedAt     time.Time
	accessCount        int
	domains            map[string]struct{}
	tags               map[string]struct{}
	embedding          []float32
	archived           bool

	// Domain events that occurred during this aggregate's lifetime
	events []events.DomainEvent
}

// NewCandidate creates a new candidate with business rule validation
func NewCandidate(userID, content string, occurredAt time.Time) (*Candidate, error) {
	return NewCandidateWithConfig(userID, content, occurredAt, config.DefaultDomainConfig())
}

// NewCandidateWithConfig creates a new candidate with validation and configuration
func NewCandidateWithConfig(userID, content string, occurredAt time.Time, cfg *config.DomainConfig) (*Candidate, error) {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}

	if userID == "" {
		return nil, pkgerrors.NewValidationError("userID cannot be empty")
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, pkgerrors.NewValidationError("content cannot be empty")
	}
	if len(content) > cfg.MaxContentLength {
		return nil, pkgerrors.NewValidationError(
			fmt.Sprintf("content exceeds maximum length of %d characters", cfg.MaxContentLength))
	}

	now := time.Now()
	if occurredAt.IsZero() {
		occurredAt = now
	}

	return &Candidate{
		id:             valueobjects.NewCandidateID(),
		userID:         userID,
		content:        content,
		importance:     valueobjects.NewUnitScore(0.5),
		occurredAt:     occurredAt,
		createdAt:      now,
		updatedAt:      now,
		lastAccessedAt: now,
		domains:        make(map[string]struct{}),
		tags:           make(map[string]struct{}),
		events:         []events.DomainEvent{},
	}, nil
}

// ReconstructCandidate reconstructs a candidate from repository data with
// preserved timestamps and counters. It raises no domain events.
func ReconstructCandidate(
	id valueobjects.CandidateID,
	userID, content, summary string,
	importance valueobjects.UnitScore,
	valence valueobjects.Modulation,
	occurredAt, createdAt, updatedAt, lastAccessedAt time.Time,
	consolidationCount, accessCount int,
	domains, tags []string,
	embedding []float32,
	archived bool,
) (*Candidate, error) {
	if userID == "" {
		return nil, pkgerrors.NewValidationError("userID cannot be empty")
	}
	if content == "" {
		return nil, pkgerrors.NewValidationError("content cannot be empty")
	}

	c := &Candidate{
		id:                 id,
		userID:             userID,
		content:            content,
		summary:            summary,
		importance:         importance,
		valence:            valence,
		occurredAt:         occurredAt,
		createdAt:          createdAt,
		updatedAt:          updatedAt,
		lastAccessedAt:     lastAccessedAt,
		consolidationCount: consolidationCount,
		accessCount:        accessCount,
		domains:            make(map[string]struct{}, len(domains)),
		tags:               make(map[string]struct{}, len(tags)),
		embedding:          embedding,
		archived:           archived,
		events:             []events.DomainEvent{},
	}
	for _, d := range domains {
		c.domains[d] = struct{}{}
	}
	for _, t := range tags {
		c.tags[t] = struct{}{}
	}
	return c, nil
}

// ID returns the candidate's unique identifier
func (c *Candidate) ID() valueobjects.CandidateID { return c.id }

// UserID returns the owner's ID
func (c *Candidate) UserID() string { return c.userID }

// Content returns the record text
func (c *Candidate) Content() string { return c.content }

// Summary returns the optional summary
func (c *Candidate) Summary() string { return c.summary }

// Importance returns the bounded importance score
func (c *Candidate) Importance() valueobjects.UnitScore { return c.importance }

// Valence returns the candidate's emotional valence estimate
func (c *Candidate) Valence() valueobjects.Modulation { return c.valence }

// OccurredAt returns the occurrence timestamp
func (c *Candidate) OccurredAt() time.Time { return c.occurredAt }

// CreatedAt returns when the candidate was captured
func (c *Candidate) CreatedAt() time.Time { return c.createdAt }

// UpdatedAt returns when the candidate was last modified
func (c *Candidate) UpdatedAt() time.Time { return c.updatedAt }

// LastAccessedAt returns the last access timestamp
func (c *Candidate) LastAccessedAt() time.Time { return c.lastAccessedAt }

// AccessCount returns how often the candidate was accessed
func (c *Candidate) AccessCount() int { return c.accessCount }

// ConsolidationCount returns how often the candidate was consolidated
func (c *Candidate) ConsolidationCount() int { return c.consolidationCount }

// GroupID returns the consolidation group the candidate last joined
func (c *Candidate) GroupID() valueobjects.GroupID { return c.groupID }

// IsArchived reports whether the candidate was archived
func (c *Candidate) IsArchived() bool { return c.archived }

// Embedding returns a copy of the embedding vector
func (c *Candidate) Embedding() []float32 {
	if c.embedding == nil {
		return nil
	}
	out := make([]float32, len(c.embedding))
	copy(out, c.embedding)
	return out
}

// HasEmbedding reports whether an embedding vector is present
func (c *Candidate) HasEmbedding() bool { return len(c.embedding) > 0 }

// Domains returns the domain tags as a sorted slice
func (c *Candidate) Domains() []string { return sortedSet(c.domains) }

// Tags returns the free tags as a sorted slice
func (c *Candidate) Tags() []string { return sortedSet(c.tags) }

// HasDomain checks domain membership
func (c *Candidate) HasDomain(domain string) bool {
	_, ok := c.domains[domain]
	return ok
}

// HasTag checks tag membership
func (c *Candidate) HasTag(tag string) bool {
	_, ok := c.tags[tag]
	return ok
}

// AgeAt returns the record age at the given instant
func (c *Candidate) AgeAt(now time.Time) time.Duration {
	return now.Sub(c.occurredAt)
}

// SetSummary sets or replaces the candidate's summary
func (c *Candidate) SetSummary(summary string) {
	c.summary = strings.TrimSpace(summary)
	c.updatedAt = time.Now()
}

// SetEmbedding attaches a copy of the embedding vector
func (c *Candidate) SetEmbedding(embedding []float32) {
	c.embedding = make([]float32, len(embedding))
	copy(c.embedding, embedding)
	c.updatedAt = time.Now()
}

// SetValence records an emotional valence estimate
func (c *Candidate) SetValence(v valueobjects.Modulation) {
	c.valence = v
	c.updatedAt = time.Now()
}

// SetImportance replaces the importance score
func (c *Candidate) SetImportance(s valueobjects.UnitScore) {
	c.importance = s
	c.updatedAt = time.Now()
}

// BoostImportance shifts importance by delta, staying within [0, 1]
func (c *Candidate) BoostImportance(delta float64) {
	c.importance = c.importance.Add(delta)
	c.updatedAt = time.Now()
}

// Touch records an access for recency/frequency bookkeeping
func (c *Candidate) Touch() {
	c.lastAccessedAt = time.Now()
	c.accessCount++
}

// AddDomain adds a domain tag
func (c *Candidate) AddDomain(domain string) error {
	domain = strings.TrimSpace(strings.ToLower(domain))
	if domain == "" {
		return pkgerrors.NewValidationError("domain cannot be empty")
	}
	c.domains[domain] = struct{}{}
	c.updatedAt = time.Now()
	return nil
}

// AddTag adds a free tag with the default configuration
func (c *Candidate) AddTag(tag string) error {
	return c.AddTagWithConfig(tag, config.DefaultDomainConfig())
}

// AddTagWithConfig adds a free tag honoring the per-record tag limit
func (c *Candidate) AddTagWithConfig(tag string, cfg *config.DomainConfig) error {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}

	tag = strings.TrimSpace(strings.ToLower(tag))
	if tag == "" {
		return pkgerrors.NewValidationError("tag cannot be empty")
	}
	if _, exists := c.tags[tag]; exists {
		return nil
	}
	if len(c.tags) >= cfg.MaxTagsPerRecord {
		return fmt.Errorf("maximum tags reached: %d", cfg.MaxTagsPerRecord)
	}

	c.tags[tag] = struct{}{}
	c.updatedAt = time.Now()
	return nil
}

// MarkConsolidated increments the consolidation count and links the candidate
// to the shared group identifier of the consolidated record it fed into.
func (c *Candidate) MarkConsolidated(groupID valueobjects.GroupID) error {
	if c.archived {
		return pkgerrors.NewValidationError("cannot consolidate archived candidate")
	}
	if groupID.IsZero() {
		return pkgerrors.NewValidationError("group ID cannot be empty")
	}

	c.consolidationCount++
	c.groupID = groupID
	c.updatedAt = time.Now()

	c.addEvent(events.NewCandidateConsolidated(c.id.String(), c.userID, groupID.String(), c.consolidationCount, c.updatedAt))
	return nil
}

// Archive moves the candidate out of future consolidation selection
func (c *Candidate) Archive() {
	if c.archived {
		return
	}
	c.archived = true
	c.updatedAt = time.Now()
}

// EligibleForConsolidation applies the selection policy: old enough, under
// the consolidation ceiling, and not archived.
func (c *Candidate) EligibleForConsolidation(now time.Time, cfg *config.DomainConfig) bool {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	if c.archived {
		return false
	}
	if c.consolidationCount >= cfg.MaxConsolidationCount {
		return false
	}
	return c.AgeAt(now) >= cfg.MinCandidateAge
}

// GetUncommittedEvents returns all uncommitted domain events
func (c *Candidate) GetUncommittedEvents() []events.DomainEvent {
	return c.events
}

// MarkEventsAsCommitted clears the uncommitted events
func (c *Candidate) MarkEventsAsCommitted() {
	c.events = []events.DomainEvent{}
}

func (c *Candidate) addEvent(event events.DomainEvent) {
	c.events = append(c.events, event)
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
