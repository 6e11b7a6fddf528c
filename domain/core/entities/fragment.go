package entities

import (
	"strings"
	"time"

	"mnemo-backend/domain/core/valueobjects"
	pkgerrors "mnemo-backend/pkg/errors"
)

// ReflectionKind classifies the perspective a fragment takes on a candidate.
// The set is closed; generator selection dispatches exhaustively over it.
type ReflectionKind string

const (
	KindAnalysis   ReflectionKind = "analysis"
	KindSynthesis  ReflectionKind = "synthesis"
	KindPattern    ReflectionKind = "pattern"
	KindInsight    ReflectionKind = "insight"
	KindWarning    ReflectionKind = "warning"
	KindQuestion   ReflectionKind = "question"
	KindConnection ReflectionKind = "connection"
)

// ValidReflectionKind reports whether k is one of the closed kinds
func ValidReflectionKind(k ReflectionKind) bool {
	switch k {
	case KindAnalysis, KindSynthesis, KindPattern, KindInsight, KindWarning, KindQuestion, KindConnection:
		return true
	}
	return false
}

// SubSignal is one generator's contribution to the journal-level signal
// modulation: the generator's identity, a symbolic tag, and a [-1,1] value.
type SubSignal struct {
	GeneratorID string
	Tag         string
	Modulation  valueobjects.Modulation
}

// Fragment is one perspective's reflection on a candidate. Confidence,
// relevance and coherence are set exactly once at construction; a fragment
// is immutable after creation.
type Fragment struct {
	generatorID     string
	candidateID     valueobjects.CandidateID
	content         string
	kind            ReflectionKind
	confidence      valueobjects.UnitScore
	relevance       valueobjects.UnitScore
	coherence       valueobjects.UnitScore
	patterns        []string
	connections     []string
	questions       []string
	recommendations []string
	subSignal       SubSignal
	valence         valueobjects.Modulation
	hasValence      bool
	createdAt       time.Time
}

// FragmentParams collects the inputs to NewFragment. All scores are raw
// floats; the constructor clamps them into their declared ranges.
type FragmentParams struct {
	GeneratorID     string
	CandidateID     valueobjects.CandidateID
	Content         string
	Kind            ReflectionKind
	Confidence      float64
	Relevance       float64
	Coherence       float64
	Patterns        []string
	Connections     []string
	Questions       []string
	Recommendations []string
	SignalTag       string
	Modulation      float64
	Valence         *float64
}

// NewFragment creates an immutable fragment with validated, bounded scores
func NewFragment(p FragmentParams) (*Fragment, error) {
	if p.GeneratorID == "" {
		return nil, pkgerrors.NewValidationError("generator ID cannot be empty")
	}
	if p.CandidateID.IsZero() {
		return nil, pkgerrors.NewValidationError("candidate ID cannot be empty")
	}
	if strings.TrimSpace(p.Content) == "" {
		return nil, pkgerrors.NewValidationError("fragment content cannot be empty")
	}
	if !ValidReflectionKind(p.Kind) {
		return nil, pkgerrors.NewValidationError("unknown reflection kind: " + string(p.Kind))
	}

	f := &Fragment{
		generatorID:     p.GeneratorID,
		candidateID:     p.CandidateID,
		content:         strings.TrimSpace(p.Content),
		kind:            p.Kind,
		confidence:      valueobjects.NewUnitScore(p.Confidence),
		relevance:       valueobjects.NewUnitScore(p.Relevance),
		coherence:       valueobjects.NewUnitScore(p.Coherence),
		patterns:        copyStrings(p.Patterns),
		connections:     copyStrings(p.Connections),
		questions:       copyStrings(p.Questions),
		recommendations: copyStrings(p.Recommendations),
		subSignal: SubSignal{
			GeneratorID: p.GeneratorID,
			Tag:         p.SignalTag,
			Modulation:  valueobjects.NewModulation(p.Modulation),
		},
		createdAt: time.Now(),
	}
	if p.Valence != nil {
		f.valence = valueobjects.NewModulation(*p.Valence)
		f.hasValence = true
	}
	return f, nil
}

// UnavailableFragment builds the explicit marker emitted when a generator
// fails: zero confidence, zero modulation, no valence. The reflection batch
// continues; the marker keeps the generator's failure observable.
func UnavailableFragment(generatorID string, candidateID valueobjects.CandidateID) *Fragment {
	return &Fragment{
		generatorID: generatorID,
		candidateID: candidateID,
		content:     "perspective unavailable",
		kind:        KindAnalysis,
		subSignal: SubSignal{
			GeneratorID: generatorID,
			Tag:         "unavailable",
		},
		createdAt: time.Now(),
	}
}

// GeneratorID returns the identity of the producing generator
func (f *Fragment) GeneratorID() string { return f.generatorID }

// CandidateID returns the reflected candidate's identifier
func (f *Fragment) CandidateID() valueobjects.CandidateID { return f.candidateID }

// Content returns the fragment text
func (f *Fragment) Content() string { return f.content }

// Kind returns the reflection kind
func (f *Fragment) Kind() ReflectionKind { return f.kind }

// Confidence returns the generator's confidence in the fragment
func (f *Fragment) Confidence() valueobjects.UnitScore { return f.confidence }

// Relevance returns the fragment's relevance to the candidate
func (f *Fragment) Relevance() valueobjects.UnitScore { return f.relevance }

// Coherence returns the fragment's internal coherence
func (f *Fragment) Coherence() valueobjects.UnitScore { return f.coherence }

// Patterns returns detected patterns
func (f *Fragment) Patterns() []string { return copyStrings(f.patterns) }

// Connections returns related-record references
func (f *Fragment) Connections() []string { return copyStrings(f.connections) }

// Questions returns open questions raised by this perspective
func (f *Fragment) Questions() []string { return copyStrings(f.questions) }

// Recommendations returns follow-up recommendations
func (f *Fragment) Recommendations() []string { return copyStrings(f.recommendations) }

// SubSignal returns the fragment's modulation contribution
func (f *Fragment) SubSignal() SubSignal { return f.subSignal }

// Valence returns the valence estimate and whether one was provided
func (f *Fragment) Valence() (valueobjects.Modulation, bool) {
	return f.valence, f.hasValence
}

// IsUnavailable reports whether this fragment is a generator-failure marker
func (f *Fragment) IsUnavailable() bool {
	return f.subSignal.Tag == "unavailable"
}

// CreatedAt returns the creation timestamp
func (f *Fragment) CreatedAt() time.Time { return f.createdAt }

func copyStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
