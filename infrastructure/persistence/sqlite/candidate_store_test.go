package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mnemo-backend/application/ports"
	"mnemo-backend/domain/core/entities"
	"mnemo-backend/domain/core/valueobjects"
	apperrors "mnemo-backend/pkg/errors"
)

func openTestStore(t *testing.T) *CandidateStore {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "mnemo.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedCandidate(t *testing.T, store *CandidateStore, userID string, age time.Duration) *entities.Candidate {
	t.Helper()
	c, err := entities.NewCandidate(userID, "Worked through the consolidation design notes.", time.Now().Add(-age))
	require.NoError(t, err)
	require.NoError(t, c.AddDomain("work"))
	require.NoError(t, c.AddTag("design"))
	c.SetEmbedding([]float32{0.5, 0.25})
	require.NoError(t, store.Save(context.Background(), c))
	return c
}

func TestSaveAndGetByID(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	candidate := seedCandidate(t, store, "user-1", 48*time.Hour)

	got, err := store.GetByID(ctx, "user-1", candidate.ID())
	require.NoError(t, err)
	assert.Equal(t, candidate.ID(), got.ID())
	assert.Equal(t, candidate.Content(), got.Content())
	assert.Equal(t, []string{"work"}, got.Domains())
	assert.Equal(t, []string{"design"}, got.Tags())
	assert.Equal(t, []float32{0.5, 0.25}, got.Embedding())
	assert.WithinDuration(t, candidate.OccurredAt(), got.OccurredAt(), time.Microsecond)
}

func TestGetByIDScopedToUser(t *testing.T) {
	store := openTestStore(t)
	candidate := seedCandidate(t, store, "user-1", time.Hour)

	_, err := store.GetByID(context.Background(), "user-2", candidate.ID())
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestSaveIsUpsert(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	candidate := seedCandidate(t, store, "user-1", time.Hour)
	candidate.SetSummary("short summary")
	require.NoError(t, store.Save(ctx, candidate))

	got, err := store.GetByID(ctx, "user-1", candidate.ID())
	require.NoError(t, err)
	assert.Equal(t, "short summary", got.Summary())

	all, err := store.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSelectConsolidationCandidates(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	old1 := seedCandidate(t, store, "user-1", 72*time.Hour)
	old2 := seedCandidate(t, store, "user-1", 48*time.Hour)
	seedCandidate(t, store, "user-1", time.Hour)     // too fresh
	seedCandidate(t, store, "user-2", 72*time.Hour)  // other user

	got, err := store.SelectConsolidationCandidates(ctx, ports.SelectionCriteria{
		UserID:                "user-1",
		MinAge:                24 * time.Hour,
		MaxConsolidationCount: 3,
		Limit:                 10,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)

	// oldest first
	assert.Equal(t, old1.ID(), got[0].ID())
	assert.Equal(t, old2.ID(), got[1].ID())
}

func TestSelectHonorsLimitAndCount(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		seedCandidate(t, store, "user-1", time.Duration(48+i)*time.Hour)
	}

	got, err := store.SelectConsolidationCandidates(ctx, ports.SelectionCriteria{
		UserID:                "user-1",
		MinAge:                24 * time.Hour,
		MaxConsolidationCount: 3,
		Limit:                 2,
	})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	// consolidation ceiling of zero excludes everything
	got, err = store.SelectConsolidationCandidates(ctx, ports.SelectionCriteria{
		UserID:                "user-1",
		MinAge:                24 * time.Hour,
		MaxConsolidationCount: 0,
		Limit:                 10,
	})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMarkConsolidatedAllOrNothing(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	c1 := seedCandidate(t, store, "user-1", 48*time.Hour)
	c2 := seedCandidate(t, store, "user-1", 48*time.Hour)
	missing := valueobjects.NewCandidateID()
	groupID := valueobjects.NewGroupID()

	err := store.MarkConsolidated(ctx, "user-1",
		[]valueobjects.CandidateID{c1.ID(), missing}, groupID)
	require.Error(t, err)

	// the failed transaction left c1 untouched
	got, err := store.GetByID(ctx, "user-1", c1.ID())
	require.NoError(t, err)
	assert.Equal(t, 0, got.ConsolidationCount())

	require.NoError(t, store.MarkConsolidated(ctx, "user-1",
		[]valueobjects.CandidateID{c1.ID(), c2.ID()}, groupID))

	got, err = store.GetByID(ctx, "user-1", c1.ID())
	require.NoError(t, err)
	assert.Equal(t, 1, got.ConsolidationCount())
}

func TestRecordRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	parent := valueobjects.NewCandidateID()
	record, err := entities.NewConsolidatedRecord(entities.ConsolidatedRecordParams{
		GroupID:    valueobjects.NewGroupID(),
		UserID:     "user-1",
		Title:      "Recurring theme: design",
		Content:    "Consolidated 3 related memories spanning 2 days.",
		ParentIDs:  []valueobjects.CandidateID{parent},
		Domains:    []string{"work"},
		Tags:       []string{"design"},
		Patterns:   []string{"recurring theme: design"},
		Insights:   []string{"design sessions cluster on Mondays"},
		Importance: 0.65,
		Coherence:  valueobjects.NewUnitScore(0.72),
		SpanStart:  time.Now().Add(-72 * time.Hour),
		SpanEnd:    time.Now().Add(-24 * time.Hour),
	})
	require.NoError(t, err)
	require.NoError(t, store.SaveRecord(ctx, record))

	records, err := store.GetRecordsByUserID(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, records, 1)

	got := records[0]
	assert.Equal(t, record.ID(), got.ID())
	assert.Equal(t, []valueobjects.CandidateID{parent}, got.ParentIDs())
	assert.Equal(t, record.Title(), got.Title())
	assert.Equal(t, []string{"design sessions cluster on Mondays"}, got.Insights())
	assert.InDelta(t, 0.72, got.Coherence().Value(), 1e-9)
	assert.WithinDuration(t, record.SpanEnd(), got.SpanEnd(), time.Microsecond)
}

func TestDeleteCandidate(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	candidate := seedCandidate(t, store, "user-1", time.Hour)
	require.NoError(t, store.Delete(ctx, "user-1", candidate.ID()))

	_, err := store.GetByID(ctx, "user-1", candidate.ID())
	assert.True(t, apperrors.IsNotFound(err))
}

func TestOpenValidation(t *testing.T) {
	_, err := Open("", zap.NewNop())
	assert.Error(t, err)
}
