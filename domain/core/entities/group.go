package entities

import (
	"time"

	"mnemo-backend/domain/core/valueobjects"
	pkgerrors "mnemo-backend/pkg/errors"
)

// Group is an ephemeral cluster of related candidates formed during one
// consolidation cycle. It is never persisted; it exists only as the input
// to pattern extraction and synthesis.
type Group struct {
	id        valueobjects.GroupID
	members   []*Candidate
	domains   []string
	tags      []string
	spanStart time.Time
	spanEnd   time.Time
	coherence valueobjects.UnitScore
}

// NewGroup forms a group from its members. The member list must meet the
// caller's minimum size; the time span is derived from member occurrences and
// the common domains/tags are the intersections across members.
func NewGroup(members []*Candidate, coherence valueobjects.UnitScore, minSize int) (*Group, error) {
	if len(members) < minSize {
		return nil, pkgerrors.NewValidationError("group below minimum membership")
	}

	spanStart := members[0].OccurredAt()
	spanEnd := spanStart
	for _, m := range members[1:] {
		if m.OccurredAt().Before(spanStart) {
			spanStart = m.OccurredAt()
		}
		if m.OccurredAt().After(spanEnd) {
			spanEnd = m.OccurredAt()
		}
	}

	return &Group{
		id:        valueobjects.NewGroupID(),
		members:   members,
		domains:   commonStrings(members, (*Candidate).Domains),
		tags:      commonStrings(members, (*Candidate).Tags),
		spanStart: spanStart,
		spanEnd:   spanEnd,
		coherence: coherence,
	}, nil
}

// ID returns the group's synthesized identity
func (g *Group) ID() valueobjects.GroupID { return g.id }

// Members returns the clustered candidates
func (g *Group) Members() []*Candidate { return g.members }

// Size returns the member count
func (g *Group) Size() int { return len(g.members) }

// CommonDomains returns domains shared by every member
func (g *Group) CommonDomains() []string { return copyStrings(g.domains) }

// CommonTags returns tags shared by every member
func (g *Group) CommonTags() []string { return copyStrings(g.tags) }

// SpanStart returns the earliest member occurrence
func (g *Group) SpanStart() time.Time { return g.spanStart }

// SpanEnd returns the latest member occurrence
func (g *Group) SpanEnd() time.Time { return g.spanEnd }

// Span returns the group's time extent
func (g *Group) Span() time.Duration { return g.spanEnd.Sub(g.spanStart) }

// Coherence returns the group's coherence score
func (g *Group) Coherence() valueobjects.UnitScore { return g.coherence }

// MemberIDs returns the member identifiers in member order
func (g *Group) MemberIDs() []valueobjects.CandidateID {
	ids := make([]valueobjects.CandidateID, len(g.members))
	for i, m := range g.members {
		ids[i] = m.ID()
	}
	return ids
}

// commonStrings intersects a string-set accessor across all members
func commonStrings(members []*Candidate, get func(*Candidate) []string) []string {
	if len(members) == 0 {
		return nil
	}
	counts := make(map[string]int)
	for _, m := range members {
		for _, s := range get(m) {
			counts[s]++
		}
	}
	var common []string
	for _, s := range get(members[0]) {
		if counts[s] == len(members) {
			common = append(common, s)
		}
	}
	return common
}
