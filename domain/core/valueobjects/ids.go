package valueobjects

import (
	"errors"

	"github.com/google/uuid"
)

// CandidateID is a value object representing a unique candidate identifier
// Value objects are immutable and have no identity beyond their value
type CandidateID struct {
	value string
}

// NewCandidateID creates a new random CandidateID
func NewCandidateID() CandidateID {
	return CandidateID{value: uuid.New().String()}
}

// NewCandidateIDFromString creates a CandidateID from an existing string
func NewCandidateIDFromString(id string) (CandidateID, error) {
	if id == "" {
		return CandidateID{}, errors.New("candidate ID cannot be empty")
	}
	if !isValidUUID(id) {
		return CandidateID{}, errors.New("candidate ID must be a valid UUID")
	}
	return CandidateID{value: id}, nil
}

// String returns the string representation of the CandidateID
func (id CandidateID) String() string {
	return id.value
}

// Equals checks if two CandidateIDs are equal
func (id CandidateID) Equals(other CandidateID) bool {
	return id.value == other.value
}

// IsZero checks if the CandidateID is the zero value
func (id CandidateID) IsZero() bool {
	return id.value == ""
}

// MarshalJSON implements json.Marshaler
func (id CandidateID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.value + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (id *CandidateID) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := NewCandidateIDFromString(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// GroupID identifies an ephemeral consolidation group. Parents of a
// consolidated record share the same GroupID.
type GroupID struct {
	value string
}

// NewGroupID creates a new random GroupID
func NewGroupID() GroupID {
	return GroupID{value: uuid.New().String()}
}

// NewGroupIDFromString creates a GroupID from an existing string
func NewGroupIDFromString(id string) (GroupID, error) {
	if id == "" {
		return GroupID{}, errors.New("group ID cannot be empty")
	}
	if !isValidUUID(id) {
		return GroupID{}, errors.New("group ID must be a valid UUID")
	}
	return GroupID{value: id}, nil
}

// String returns the string representation of the GroupID
func (id GroupID) String() string {
	return id.value
}

// Equals checks if two GroupIDs are equal
func (id GroupID) Equals(other GroupID) bool {
	return id.value == other.value
}

// IsZero checks if the GroupID is the zero value
func (id GroupID) IsZero() bool {
	return id.value == ""
}

// MarshalJSON implements json.Marshaler
func (id GroupID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.value + `"`), nil
}

// isValidUUID checks if a string is a valid UUID
func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
