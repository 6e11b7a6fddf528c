package events

import (
	"time"
)

// SourceEngine identifies this service as the event source
const SourceEngine = "mnemo.engine"

// Event topics published by the engine
const (
	TopicMemoryConsolidated  = "memory.consolidated"
	TopicReflectionCompleted = "reflection.completed"
	TopicReflectionFailed    = "reflection.failed"
)

// DomainEvent is the base interface for all domain events
// Events represent something that has happened in the past
type DomainEvent interface {
	GetAggregateID() string
	GetEventType() string
	GetTimestamp() time.Time
	GetVersion() int
	// Payload returns the documented wire payload for the event sink
	Payload() map[string]interface{}
}

// BaseEvent provides common event fields
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	Version     int       `json:"version"`
}

func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetVersion() int         { return e.Version }

// MemoryConsolidated is raised when a consolidation cycle produces a record
type MemoryConsolidated struct {
	BaseEvent
	RecordID    string   `json:"record_id"`
	GroupID     string   `json:"group_id"`
	UserID      string   `json:"user_id"`
	ParentIDs   []string `json:"parent_ids"`
	ParentCount int      `json:"parent_count"`
	Coherence   float64  `json:"coherence"`
	Importance  float64  `json:"importance"`
}

// NewMemoryConsolidated creates a MemoryConsolidated event
func NewMemoryConsolidated(recordID, groupID, userID string, parentIDs []string, coherence, importance float64, timestamp time.Time) MemoryConsolidated {
	return MemoryConsolidated{
		BaseEvent: BaseEvent{
			AggregateID: recordID,
			EventType:   TopicMemoryConsolidated,
			Timestamp:   timestamp,
			Version:     1,
		},
		RecordID:    recordID,
		GroupID:     groupID,
		UserID:      userID,
		ParentIDs:   parentIDs,
		ParentCount: len(parentIDs),
		Coherence:   coherence,
		Importance:  importance,
	}
}

// Payload returns the documented event sink payload
func (e MemoryConsolidated) Payload() map[string]interface{} {
	return map[string]interface{}{
		"record_id":    e.RecordID,
		"group_id":     e.GroupID,
		"user_id":      e.UserID,
		"parent_ids":   e.ParentIDs,
		"parent_count": e.ParentCount,
		"coherence":    e.Coherence,
		"importance":   e.Importance,
	}
}

// ReflectionCompleted is raised when a reflection cycle produces a journal
type ReflectionCompleted struct {
	BaseEvent
	CandidateID      string  `json:"candidate_id"`
	UserID           string  `json:"user_id"`
	FragmentCount    int     `json:"fragment_count"`
	IndicatorCount   int     `json:"indicator_count"`
	OverallDrift     float64 `json:"overall_drift"`
	Coherence        float64 `json:"coherence"`
	SignalModulation float64 `json:"signal_modulation"`
	Eligible         bool    `json:"consolidation_eligible"`
}

// NewReflectionCompleted creates a ReflectionCompleted event
func NewReflectionCompleted(candidateID, userID string, fragmentCount, indicatorCount int, drift, coherence, modulation float64, eligible bool, timestamp time.Time) ReflectionCompleted {
	return ReflectionCompleted{
		BaseEvent: BaseEvent{
			AggregateID: candidateID,
			EventType:   TopicReflectionCompleted,
			Timestamp:   timestamp,
			Version:     1,
		},
		CandidateID:      candidateID,
		UserID:           userID,
		FragmentCount:    fragmentCount,
		IndicatorCount:   indicatorCount,
		OverallDrift:     drift,
		Coherence:        coherence,
		SignalModulation: modulation,
		Eligible:         eligible,
	}
}

// Payload returns the documented event sink payload
func (e ReflectionCompleted) Payload() map[string]interface{} {
	return map[string]interface{}{
		"candidate_id":           e.CandidateID,
		"user_id":                e.UserID,
		"fragment_count":         e.FragmentCount,
		"indicator_count":        e.IndicatorCount,
		"overall_drift":          e.OverallDrift,
		"coherence":              e.Coherence,
		"signal_modulation":      e.SignalModulation,
		"consolidation_eligible": e.Eligible,
	}
}

// ReflectionFailed is raised when a reflection cycle fails; the caller still
// receives a valid empty journal.
type ReflectionFailed struct {
	BaseEvent
	CandidateID string `json:"candidate_id"`
	UserID      string `json:"user_id"`
	Reason      string `json:"reason"`
}

// NewReflectionFailed creates a ReflectionFailed event
func NewReflectionFailed(candidateID, userID, reason string, timestamp time.Time) ReflectionFailed {
	return ReflectionFailed{
		BaseEvent: BaseEvent{
			AggregateID: candidateID,
			EventType:   TopicReflectionFailed,
			Timestamp:   timestamp,
			Version:     1,
		},
		CandidateID: candidateID,
		UserID:      userID,
		Reason:      reason,
	}
}

// Payload returns the documented event sink payload
func (e ReflectionFailed) Payload() map[string]interface{} {
	return map[string]interface{}{
		"candidate_id": e.CandidateID,
		"user_id":      e.UserID,
		"reason":       e.Reason,
	}
}

// CandidateConsolidated is raised on a parent candidate when it is linked
// into a consolidated record's group.
type CandidateConsolidated struct {
	BaseEvent
	CandidateID        string `json:"candidate_id"`
	UserID             string `json:"user_id"`
	GroupID            string `json:"group_id"`
	ConsolidationCount int    `json:"consolidation_count"`
}

// NewCandidateConsolidated creates a CandidateConsolidated event
func NewCandidateConsolidated(candidateID, userID, groupID string, count int, timestamp time.Time) CandidateConsolidated {
	return CandidateConsolidated{
		BaseEvent: BaseEvent{
			AggregateID: candidateID,
			EventType:   "candidate.consolidated",
			Timestamp:   timestamp,
			Version:     1,
		},
		CandidateID:        candidateID,
		UserID:             userID,
		GroupID:            groupID,
		ConsolidationCount: count,
	}
}

// Payload returns the documented event sink payload
func (e CandidateConsolidated) Payload() map[string]interface{} {
	return map[string]interface{}{
		"candidate_id":        e.CandidateID,
		"user_id":             e.UserID,
		"group_id":            e.GroupID,
		"consolidation_count": e.ConsolidationCount,
	}
}
