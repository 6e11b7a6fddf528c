// Package memory provides an in-process CandidateStore used by tests and
// the standalone CLI when no database is configured.
package memory

import (
	"context"
	"sort"
	"sync"

	"mnemo-backend/application/ports"
	"mnemo-backend/domain/core/entities"
	"mnemo-backend/domain/core/valueobjects"
	"mnemo-backend/pkg/errors"
)

var _ ports.CandidateStore = (*CandidateStore)(nil)

// CandidateStore keeps candidates and records in maps keyed by user
type CandidateStore struct {
	mu         sync.RWMutex
	candidates map[string]map[string]*entities.Candidate
	records    map[string][]*entities.ConsolidatedRecord
}

// NewCandidateStore creates an empty store
func NewCandidateStore() *CandidateStore {
	return &CandidateStore{
		candidates: make(map[string]map[string]*entities.Candidate),
		records:    make(map[string][]*entities.ConsolidatedRecord),
	}
}

// Save persists a candidate
func (s *CandidateStore) Save(_ context.Context, candidate *entities.Candidate) error {
	if candidate == nil {
		return errors.NewValidationError("candidate is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	byUser, ok := s.candidates[candidate.UserID()]
	if !ok {
		byUser = make(map[string]*entities.Candidate)
		s.candidates[candidate.UserID()] = byUser
	}
	byUser[candidate.ID().String()] = candidate
	return nil
}

// GetByID retrieves one candidate
func (s *CandidateStore) GetByID(_ context.Context, userID string, id valueobjects.CandidateID) (*entities.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.candidates[userID][id.String()]; ok {
		return c, nil
	}
	return nil, errors.NewNotFoundError("candidate")
}

// GetByUserID retrieves all candidates for a user, ordered by occurrence
func (s *CandidateStore) GetByUserID(_ context.Context, userID string) ([]*entities.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*entities.Candidate, 0, len(s.candidates[userID]))
	for _, c := range s.candidates[userID] {
		out = append(out, c)
	}
	sortByOccurrence(out)
	return out, nil
}

// SelectConsolidationCandidates applies the age, count and archive filters
func (s *CandidateStore) SelectConsolidationCandidates(_ context.Context, criteria ports.SelectionCriteria) ([]*entities.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*entities.Candidate
	for _, c := range s.candidates[criteria.UserID] {
		if c.IsArchived() {
			continue
		}
		if criteria.MaxConsolidationCount > 0 && c.ConsolidationCount() >= criteria.MaxConsolidationCount {
			continue
		}
		if c.AgeAt(criteria.AsOf) < criteria.MinAge {
			continue
		}
		out = append(out, c)
	}
	sortByOccurrence(out)
	if criteria.Limit > 0 && len(out) > criteria.Limit {
		out = out[:criteria.Limit]
	}
	return out, nil
}

// MarkConsolidated assigns the group to every candidate or none of them
func (s *CandidateStore) MarkConsolidated(_ context.Context, userID string, ids []valueobjects.CandidateID, groupID valueobjects.GroupID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byUser := s.candidates[userID]
	found := make([]*entities.Candidate, 0, len(ids))
	for _, id := range ids {
		c, ok := byUser[id.String()]
		if !ok {
			return errors.NewNotFoundError("candidate " + id.String())
		}
		found = append(found, c)
	}
	for _, c := range found {
		if err := c.MarkConsolidated(groupID); err != nil {
			return err
		}
	}
	return nil
}

// SaveRecord persists a consolidated record
func (s *CandidateStore) SaveRecord(_ context.Context, record *entities.ConsolidatedRecord) error {
	if record == nil {
		return errors.NewValidationError("record is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.UserID()] = append(s.records[record.UserID()], record)
	return nil
}

// GetRecordsByUserID retrieves all consolidated records for a user
func (s *CandidateStore) GetRecordsByUserID(_ context.Context, userID string) ([]*entities.ConsolidatedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*entities.ConsolidatedRecord, len(s.records[userID]))
	copy(out, s.records[userID])
	return out, nil
}

// Delete removes a candidate
func (s *CandidateStore) Delete(_ context.Context, userID string, id valueobjects.CandidateID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.candidates[userID][id.String()]; !ok {
		return errors.NewNotFoundError("candidate")
	}
	delete(s.candidates[userID], id.String())
	return nil
}

func sortByOccurrence(cs []*entities.Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].OccurredAt().Equal(cs[j].OccurredAt()) {
			return cs[i].ID().String() < cs[j].ID().String()
		}
		return cs[i].OccurredAt().Before(cs[j].OccurredAt())
	})
}
