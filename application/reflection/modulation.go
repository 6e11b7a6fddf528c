package reflection

import (
	"mnemo-backend/domain/core/entities"
	"mnemo-backend/domain/core/valueobjects"
)

// computeModulation derives the journal-level signal modulation: the mean
// fragment sub-signal, damped by drift when positive and amplified when
// negative, then scaled by mean confidence. The result is clamped to [-1,1]
// by the Modulation constructor.
func computeModulation(fragments []*entities.Fragment, indicators []entities.DriftIndicator) valueobjects.Modulation {
	live := liveFragments(fragments)
	if len(live) == 0 {
		return valueobjects.NewModulation(0)
	}

	var raw float64
	for _, f := range live {
		raw += f.SubSignal().Modulation.Value()
	}
	raw /= float64(len(live))

	avgDrift := meanIndicatorMagnitude(indicators)
	if raw > 0 {
		raw *= 1 - avgDrift*0.5
	} else {
		raw *= 1 + avgDrift*0.5
	}

	return valueobjects.NewModulation(raw * meanConfidence(live))
}

func meanIndicatorMagnitude(indicators []entities.DriftIndicator) float64 {
	if len(indicators) == 0 {
		return 0
	}
	var sum float64
	for _, ind := range indicators {
		sum += ind.Magnitude.Value()
	}
	return sum / float64(len(indicators))
}
