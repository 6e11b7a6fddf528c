package entities

import (
	"time"

	"mnemo-backend/domain/core/valueobjects"
	pkgerrors "mnemo-backend/pkg/errors"
)

// ConsolidatedRecord is the only persistent artifact the consolidation engine
// produces: a synthesized record linked to the candidates it was derived
// from. Its time span always equals the min/max occurrence of its parents.
type ConsolidatedRecord struct {
	id         valueobjects.CandidateID
	groupID    valueobjects.GroupID
	userID     string
	title      string
	content    string
	parentIDs  []valueobjects.CandidateID
	domains    []string
	tags       []string
	patterns   []string
	insights   []string
	importance valueobjects.UnitScore
	coherence  valueobjects.UnitScore
	spanStart  time.Time
	spanEnd    time.Time
	createdAt  time.Time
}

// ConsolidatedRecordParams collects the synthesis output
type ConsolidatedRecordParams struct {
	GroupID    valueobjects.GroupID
	UserID     string
	Title      string
	Content    string
	ParentIDs  []valueobjects.CandidateID
	Domains    []string
	Tags       []string
	Patterns   []string
	Insights   []string
	Importance float64
	Coherence  valueobjects.UnitScore
	SpanStart  time.Time
	SpanEnd    time.Time
}

// NewConsolidatedRecord creates the derived record from a synthesized group
func NewConsolidatedRecord(p ConsolidatedRecordParams) (*ConsolidatedRecord, error) {
	if p.UserID == "" {
		return nil, pkgerrors.NewValidationError("userID cannot be empty")
	}
	if p.GroupID.IsZero() {
		return nil, pkgerrors.NewValidationError("group ID cannot be empty")
	}
	if len(p.ParentIDs) == 0 {
		return nil, pkgerrors.NewValidationError("consolidated record requires parents")
	}
	if p.Content == "" {
		return nil, pkgerrors.NewValidationError("content cannot be empty")
	}
	if p.SpanEnd.Before(p.SpanStart) {
		return nil, pkgerrors.NewValidationError("span end precedes span start")
	}

	parents := make([]valueobjects.CandidateID, len(p.ParentIDs))
	copy(parents, p.ParentIDs)

	return &ConsolidatedRecord{
		id:         valueobjects.NewCandidateID(),
		groupID:    p.GroupID,
		userID:     p.UserID,
		title:      p.Title,
		content:    p.Content,
		parentIDs:  parents,
		domains:    copyStrings(p.Domains),
		tags:       copyStrings(p.Tags),
		patterns:   copyStrings(p.Patterns),
		insights:   copyStrings(p.Insights),
		importance: valueobjects.NewUnitScore(p.Importance),
		coherence:  p.Coherence,
		spanStart:  p.SpanStart,
		spanEnd:    p.SpanEnd,
		createdAt:  time.Now(),
	}, nil
}

// ReconstructConsolidatedRecord rebuilds a record from persistence
func ReconstructConsolidatedRecord(
	id valueobjects.CandidateID,
	p ConsolidatedRecordParams,
	createdAt time.Time,
) (*ConsolidatedRecord, error) {
	record, err := NewConsolidatedRecord(p)
	if err != nil {
		return nil, err
	}
	record.id = id
	record.createdAt = createdAt
	return record, nil
}

// ID returns the record's identifier
func (r *ConsolidatedRecord) ID() valueobjects.CandidateID { return r.id }

// GroupID returns the shared group identifier linking the parents
func (r *ConsolidatedRecord) GroupID() valueobjects.GroupID { return r.groupID }

// UserID returns the owning user
func (r *ConsolidatedRecord) UserID() string { return r.userID }

// Title returns the synthesized title
func (r *ConsolidatedRecord) Title() string { return r.title }

// Content returns the synthesized content
func (r *ConsolidatedRecord) Content() string { return r.content }

// ParentIDs returns the parent candidate identifiers
func (r *ConsolidatedRecord) ParentIDs() []valueobjects.CandidateID {
	out := make([]valueobjects.CandidateID, len(r.parentIDs))
	copy(out, r.parentIDs)
	return out
}

// Domains returns the merged domains
func (r *ConsolidatedRecord) Domains() []string { return copyStrings(r.domains) }

// Tags returns the merged tags
func (r *ConsolidatedRecord) Tags() []string { return copyStrings(r.tags) }

// Patterns returns the extracted patterns
func (r *ConsolidatedRecord) Patterns() []string { return copyStrings(r.patterns) }

// Insights returns the extracted insights
func (r *ConsolidatedRecord) Insights() []string { return copyStrings(r.insights) }

// Importance returns the derived importance
func (r *ConsolidatedRecord) Importance() valueobjects.UnitScore { return r.importance }

// Coherence returns the source group's coherence
func (r *ConsolidatedRecord) Coherence() valueobjects.UnitScore { return r.coherence }

// SpanStart returns the earliest parent occurrence
func (r *ConsolidatedRecord) SpanStart() time.Time { return r.spanStart }

// SpanEnd returns the latest parent occurrence
func (r *ConsolidatedRecord) SpanEnd() time.Time { return r.spanEnd }

// CreatedAt returns the record's creation time
func (r *ConsolidatedRecord) CreatedAt() time.Time { return r.createdAt }
