package valueobjects

import (
	"fmt"
	"math"
)

// UnitScore is a bounded score in [0, 1]. It is used for importance, drift
// magnitudes, confidence, relevance and coherence so that no transformation
// can push a value outside its declared range.
type UnitScore struct {
	value float64
}

// NewUnitScore creates a UnitScore, clamping the input into [0, 1].
// NaN collapses to 0.
func NewUnitScore(v float64) UnitScore {
	if math.IsNaN(v) {
		return UnitScore{value: 0}
	}
	return UnitScore{value: math.Min(1, math.Max(0, v))}
}

// Value returns the underlying float
func (s UnitScore) Value() float64 {
	return s.value
}

// Add returns a new score shifted by delta, clamped back into [0, 1]
func (s UnitScore) Add(delta float64) UnitScore {
	return NewUnitScore(s.value + delta)
}

// Scale returns a new score multiplied by factor, clamped back into [0, 1]
func (s UnitScore) Scale(factor float64) UnitScore {
	return NewUnitScore(s.value * factor)
}

// Equals checks if two scores are equal
func (s UnitScore) Equals(other UnitScore) bool {
	return s.value == other.value
}

// String returns a fixed-precision representation
func (s UnitScore) String() string {
	return fmt.Sprintf("%.3f", s.value)
}

// MarshalJSON implements json.Marshaler
func (s UnitScore) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%g", s.value)), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (s *UnitScore) UnmarshalJSON(data []byte) error {
	var v float64
	if _, err := fmt.Sscanf(string(data), "%g", &v); err != nil {
		return err
	}
	*s = NewUnitScore(v)
	return nil
}

// MeanUnitScore averages a set of scores. An empty input yields 0.
func MeanUnitScore(scores []UnitScore) UnitScore {
	if len(scores) == 0 {
		return UnitScore{}
	}
	sum := 0.0
	for _, s := range scores {
		sum += s.value
	}
	return NewUnitScore(sum / float64(len(scores)))
}

// Modulation is a bounded signal-modulation value in [-1, 1]. It summarizes
// how a reflection cycle should shift a longer-lived per-user state indicator.
type Modulation struct {
	value float64
}

// NewModulation creates a Modulation, clamping the input into [-1, 1].
// NaN collapses to 0.
func NewModulation(v float64) Modulation {
	if math.IsNaN(v) {
		return Modulation{value: 0}
	}
	return Modulation{value: math.Min(1, math.Max(-1, v))}
}

// Value returns the underlying float
func (m Modulation) Value() float64 {
	return m.value
}

// Scale returns a new modulation multiplied by factor, clamped back into [-1, 1]
func (m Modulation) Scale(factor float64) Modulation {
	return NewModulation(m.value * factor)
}

// IsPositive reports whether the modulation is strictly positive
func (m Modulation) IsPositive() bool {
	return m.value > 0
}

// String returns a fixed-precision representation
func (m Modulation) String() string {
	return fmt.Sprintf("%+.3f", m.value)
}

// MarshalJSON implements json.Marshaler
func (m Modulation) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%g", m.value)), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (m *Modulation) UnmarshalJSON(data []byte) error {
	var v float64
	if _, err := fmt.Sscanf(string(data), "%g", &v); err != nil {
		return err
	}
	*m = NewModulation(v)
	return nil
}
