package reflection

import (
	"fmt"
	"time"

	"mnemo-backend/domain/core/entities"
)

// Flag and reevaluation thresholds per drift dimension. An indicator is
// only emitted once its magnitude crosses the flag threshold.
const (
	semanticFlag    = 0.3
	semanticReeval  = 0.7
	coherenceFlag   = 0.3
	coherenceReeval = 0.6

	temporalFlagAgeDays   = 30
	temporalReevalAgeDays = 90
	temporalSaturationDays = 365

	importanceFlagDays       = 14
	importanceReevalDays     = 30
	importanceSaturationDays = 60

	emotionalFlag   = 0.3
	emotionalReeval = 0.6
)

// computeDrift measures the five drift dimensions for a candidate given its
// reflection fragments. Unavailable-marker fragments carry no information
// and are excluded from every aggregate.
func computeDrift(candidate *entities.Candidate, fragments []*entities.Fragment, now time.Time) []entities.DriftIndicator {
	live := liveFragments(fragments)
	var indicators []entities.DriftIndicator

	if len(live) > 0 {
		semantic := 1 - meanConfidence(live)
		if semantic > semanticFlag {
			indicators = append(indicators, entities.NewDriftIndicator(
				entities.DriftSemantic,
				semantic,
				[]string{fmt.Sprintf("mean fragment confidence %.2f", 1-semantic)},
				semantic > semanticReeval,
			))
		}

		coherenceDrift := 1 - meanCoherence(live)
		if coherenceDrift > coherenceFlag {
			indicators = append(indicators, entities.NewDriftIndicator(
				entities.DriftCoherence,
				coherenceDrift,
				[]string{fmt.Sprintf("mean fragment coherence %.2f", 1-coherenceDrift)},
				coherenceDrift > coherenceReeval,
			))
		}
	}

	ageDays := now.Sub(candidate.OccurredAt()).Hours() / 24
	if ageDays > temporalFlagAgeDays {
		magnitude := ageDays / temporalSaturationDays
		if magnitude > 1 {
			magnitude = 1
		}
		indicators = append(indicators, entities.NewDriftIndicator(
			entities.DriftTemporal,
			magnitude,
			[]string{fmt.Sprintf("record is %.0f days old", ageDays)},
			ageDays > temporalReevalAgeDays,
		))
	}

	sinceAccessDays := now.Sub(candidate.LastAccessedAt()).Hours() / 24
	if sinceAccessDays > importanceFlagDays {
		magnitude := sinceAccessDays / importanceSaturationDays
		if magnitude > 1 {
			magnitude = 1
		}
		indicators = append(indicators, entities.NewDriftIndicator(
			entities.DriftImportance,
			magnitude,
			[]string{fmt.Sprintf("not accessed for %.0f days", sinceAccessDays)},
			sinceAccessDays > importanceReevalDays,
		))
	}

	if valences, ok := fragmentValences(live); ok {
		emotional := abs(candidate.Valence().Value() - valences)
		if emotional > emotionalFlag {
			indicators = append(indicators, entities.NewDriftIndicator(
				entities.DriftEmotional,
				emotional,
				[]string{fmt.Sprintf("valence shifted by %.2f", emotional)},
				emotional > emotionalReeval,
			))
		}
	}

	return indicators
}

func liveFragments(fragments []*entities.Fragment) []*entities.Fragment {
	out := make([]*entities.Fragment, 0, len(fragments))
	for _, f := range fragments {
		if !f.IsUnavailable() {
			out = append(out, f)
		}
	}
	return out
}

func meanConfidence(fragments []*entities.Fragment) float64 {
	if len(fragments) == 0 {
		return 0
	}
	var sum float64
	for _, f := range fragments {
		sum += f.Confidence().Value()
	}
	return sum / float64(len(fragments))
}

func meanCoherence(fragments []*entities.Fragment) float64 {
	if len(fragments) == 0 {
		return 0
	}
	var sum float64
	for _, f := range fragments {
		sum += f.Coherence().Value()
	}
	return sum / float64(len(fragments))
}

// fragmentValences returns the mean valence across fragments that carry one
func fragmentValences(fragments []*entities.Fragment) (float64, bool) {
	var sum float64
	var n int
	for _, f := range fragments {
		if v, ok := f.Valence(); ok {
			sum += v.Value()
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
