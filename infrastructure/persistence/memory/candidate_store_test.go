package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mnemo-backend/application/ports"
	"mnemo-backend/domain/core/entities"
	"mnemo-backend/domain/core/valueobjects"
	"mnemo-backend/pkg/errors"
)

func mustCandidate(t *testing.T, userID, content string, age time.Duration) *entities.Candidate {
	t.Helper()
	c, err := entities.NewCandidate(userID, content, time.Now().Add(-age))
	require.NoError(t, err)
	return c
}

func TestSaveAndGet(t *testing.T) {
	store := NewCandidateStore()
	ctx := context.Background()
	c := mustCandidate(t, "user-1", "hello", time.Hour)

	require.NoError(t, store.Save(ctx, c))

	got, err := store.GetByID(ctx, "user-1", c.ID())
	require.NoError(t, err)
	assert.Equal(t, c.ID(), got.ID())

	_, err = store.GetByID(ctx, "user-1", valueobjects.NewCandidateID())
	assert.True(t, errors.IsNotFound(err))

	_, err = store.GetByID(ctx, "other-user", c.ID())
	assert.True(t, errors.IsNotFound(err))
}

func TestSelectConsolidationCandidates(t *testing.T) {
	store := NewCandidateStore()
	ctx := context.Background()

	old := mustCandidate(t, "user-1", "old enough", 48*time.Hour)
	young := mustCandidate(t, "user-1", "too fresh", time.Hour)
	archived := mustCandidate(t, "user-1", "archived", 48*time.Hour)
	archived.Archive()
	require.NoError(t, store.Save(ctx, old))
	require.NoError(t, store.Save(ctx, young))
	require.NoError(t, store.Save(ctx, archived))

	got, err := store.SelectConsolidationCandidates(ctx, ports.SelectionCriteria{
		UserID:                "user-1",
		MinAge:                24 * time.Hour,
		MaxConsolidationCount: 3,
		AsOf:                  time.Now(),
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, old.ID(), got[0].ID())
}

func TestSelectOrdersByOccurrence(t *testing.T) {
	store := NewCandidateStore()
	ctx := context.Background()

	later := mustCandidate(t, "user-1", "second", 30*time.Hour)
	earlier := mustCandidate(t, "user-1", "first", 50*time.Hour)
	require.NoError(t, store.Save(ctx, later))
	require.NoError(t, store.Save(ctx, earlier))

	got, err := store.SelectConsolidationCandidates(ctx, ports.SelectionCriteria{
		UserID: "user-1",
		MinAge: 24 * time.Hour,
		AsOf:   time.Now(),
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, earlier.ID(), got[0].ID())
}

func TestMarkConsolidatedIsAllOrNothing(t *testing.T) {
	store := NewCandidateStore()
	ctx := context.Background()

	a := mustCandidate(t, "user-1", "one", 48*time.Hour)
	require.NoError(t, store.Save(ctx, a))

	groupID := valueobjects.NewGroupID()
	missing := valueobjects.NewCandidateID()
	err := store.MarkConsolidated(ctx, "user-1", []valueobjects.CandidateID{a.ID(), missing}, groupID)
	require.Error(t, err)
	assert.Zero(t, a.ConsolidationCount())

	require.NoError(t, store.MarkConsolidated(ctx, "user-1", []valueobjects.CandidateID{a.ID()}, groupID))
	assert.Equal(t, 1, a.ConsolidationCount())
	assert.Equal(t, groupID, a.GroupID())
}

func TestRecordsRoundTrip(t *testing.T) {
	store := NewCandidateStore()
	ctx := context.Background()

	parent := mustCandidate(t, "user-1", "parent", 48*time.Hour)
	now := time.Now()
	record, err := entities.NewConsolidatedRecord(entities.ConsolidatedRecordParams{
		UserID:    "user-1",
		GroupID:   valueobjects.NewGroupID(),
		Title:     "a theme",
		Content:   "synthesized summary",
		ParentIDs: []valueobjects.CandidateID{parent.ID()},
		SpanStart: now.Add(-48 * time.Hour),
		SpanEnd:   now,
	})
	require.NoError(t, err)

	require.NoError(t, store.SaveRecord(ctx, record))
	got, err := store.GetRecordsByUserID(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a theme", got[0].Title())
}
