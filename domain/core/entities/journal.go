package entities

import (
	"time"

	"mnemo-backend/domain/core/valueobjects"
)

// DriftDimension identifies which axis a drift measurement was taken on
type DriftDimension string

const (
	DriftSemantic   DriftDimension = "semantic"
	DriftCoherence  DriftDimension = "coherence"
	DriftTemporal   DriftDimension = "temporal"
	DriftImportance DriftDimension = "importance"
	DriftEmotional  DriftDimension = "emotional"
)

// DriftIndicator is a typed measurement of how far a candidate's context has
// diverged from when it was captured.
type DriftIndicator struct {
	Dimension            DriftDimension
	Magnitude            valueobjects.UnitScore
	Indicators           []string
	RequiresReevaluation bool
}

// NewDriftIndicator creates a drift indicator with a clamped magnitude
func NewDriftIndicator(dim DriftDimension, magnitude float64, indicators []string, reevaluate bool) DriftIndicator {
	return DriftIndicator{
		Dimension:            dim,
		Magnitude:            valueobjects.NewUnitScore(magnitude),
		Indicators:           copyStrings(indicators),
		RequiresReevaluation: reevaluate,
	}
}

// Journal is the aggregate reflection output for one candidate: its
// fragments, drift indicators, and the derived scores. A journal is built
// once per reflection trigger and superseded, never mutated, by the next.
type Journal struct {
	candidateID      valueobjects.CandidateID
	userID           string
	fragments        []*Fragment
	indicators       []DriftIndicator
	overallDrift     valueobjects.UnitScore
	coherence        valueobjects.UnitScore
	signalModulation valueobjects.Modulation
	eligible         bool
	decayDays        int
	createdAt        time.Time
}

// NewJournal assembles a journal from reflection output. Overall drift is the
// mean indicator magnitude; coherence is the mean coherence of live
// fragments. Unavailable markers carry no scores and are skipped, so the
// recorded coherence is the same quantity the eligibility rule tests.
func NewJournal(
	candidateID valueobjects.CandidateID,
	userID string,
	fragments []*Fragment,
	indicators []DriftIndicator,
	signalModulation valueobjects.Modulation,
	eligible bool,
	decayDays int,
) *Journal {
	driftScores := make([]valueobjects.UnitScore, len(indicators))
	for i, ind := range indicators {
		driftScores[i] = ind.Magnitude
	}
	coherenceScores := make([]valueobjects.UnitScore, 0, len(fragments))
	for _, f := range fragments {
		if f.IsUnavailable() {
			continue
		}
		coherenceScores = append(coherenceScores, f.Coherence())
	}

	return &Journal{
		candidateID:      candidateID,
		userID:           userID,
		fragments:        fragments,
		indicators:       indicators,
		overallDrift:     valueobjects.MeanUnitScore(driftScores),
		coherence:        valueobjects.MeanUnitScore(coherenceScores),
		signalModulation: signalModulation,
		eligible:         eligible,
		decayDays:        decayDays,
		createdAt:        time.Now(),
	}
}

// EmptyJournal returns the valid, fragment-free journal produced when a
// reflection cycle fails. Callers always receive a journal, never an error
// that would block the originating memory-creation flow.
func EmptyJournal(candidateID valueobjects.CandidateID, userID string, decayDays int) *Journal {
	return &Journal{
		candidateID: candidateID,
		userID:      userID,
		decayDays:   decayDays,
		createdAt:   time.Now(),
	}
}

// CandidateID returns the reflected candidate's identifier
func (j *Journal) CandidateID() valueobjects.CandidateID { return j.candidateID }

// UserID returns the owning user
func (j *Journal) UserID() string { return j.userID }

// Fragments returns the journal's fragments
func (j *Journal) Fragments() []*Fragment { return j.fragments }

// Indicators returns the drift indicators
func (j *Journal) Indicators() []DriftIndicator { return j.indicators }

// OverallDrift returns the mean drift magnitude
func (j *Journal) OverallDrift() valueobjects.UnitScore { return j.overallDrift }

// Coherence returns the mean fragment coherence
func (j *Journal) Coherence() valueobjects.UnitScore { return j.coherence }

// SignalModulation returns the journal-level modulation value
func (j *Journal) SignalModulation() valueobjects.Modulation { return j.signalModulation }

// ConsolidationEligible reports whether this candidate may be consolidated
func (j *Journal) ConsolidationEligible() bool { return j.eligible }

// DecayDays returns the decay timer in days
func (j *Journal) DecayDays() int { return j.decayDays }

// CreatedAt returns the journal's creation time
func (j *Journal) CreatedAt() time.Time { return j.createdAt }

// IsEmpty reports whether the journal carries no fragments
func (j *Journal) IsEmpty() bool { return len(j.fragments) == 0 }
