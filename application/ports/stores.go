// Package ports defines the collaborator interfaces the engines depend on.
// These are ports in hexagonal architecture; the application layer never
// sees a concrete adapter.
package ports

import (
	"context"
	"time"

	"mnemo-backend/domain/core/entities"
	"mnemo-backend/domain/core/valueobjects"
)

// SelectionCriteria narrows which candidates a consolidation cycle considers
type SelectionCriteria struct {
	UserID               string
	MinAge               time.Duration
	MaxConsolidationCount int
	Limit                int
	AsOf                 time.Time
}

// CandidateStore persists candidates and consolidated records
type CandidateStore interface {
	// Save persists a candidate (create or update)
	Save(ctx context.Context, candidate *entities.Candidate) error

	// GetByID retrieves a candidate by its ID
	GetByID(ctx context.Context, userID string, id valueobjects.CandidateID) (*entities.Candidate, error)

	// GetByUserID retrieves all candidates for a user
	GetByUserID(ctx context.Context, userID string) ([]*entities.Candidate, error)

	// SelectConsolidationCandidates returns non-archived candidates old
	// enough and under the consolidation-count ceiling, at most Limit
	SelectConsolidationCandidates(ctx context.Context, criteria SelectionCriteria) ([]*entities.Candidate, error)

	// MarkConsolidated assigns the group to every listed candidate and
	// bumps their consolidation counts in one atomic write
	MarkConsolidated(ctx context.Context, userID string, ids []valueobjects.CandidateID, groupID valueobjects.GroupID) error

	// SaveRecord persists a consolidated record
	SaveRecord(ctx context.Context, record *entities.ConsolidatedRecord) error

	// GetRecordsByUserID retrieves all consolidated records for a user
	GetRecordsByUserID(ctx context.Context, userID string) ([]*entities.ConsolidatedRecord, error)

	// Delete removes a candidate
	Delete(ctx context.Context, userID string, id valueobjects.CandidateID) error
}
