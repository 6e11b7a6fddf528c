package consolidation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mnemo-backend/domain/config"
	"mnemo-backend/domain/core/entities"
	"mnemo-backend/domain/core/valueobjects"
)

func buildCandidate(t *testing.T, occurredAt time.Time, importance float64, domains, tags []string) *entities.Candidate {
	t.Helper()
	c, err := entities.NewCandidate("user-1", "content for clustering", occurredAt)
	require.NoError(t, err)
	for _, d := range domains {
		require.NoError(t, c.AddDomain(d))
	}
	for _, tag := range tags {
		require.NoError(t, c.AddTag(tag))
	}
	c.SetImportance(valueobjects.NewUnitScore(importance))
	return c
}

func TestMaxSimilarityFromSetAndTemporalTerms(t *testing.T) {
	cfg := config.DefaultDomainConfig()
	now := time.Now()

	// Identical domains and tags, same day, importance as far apart as
	// possible so only the three set/temporal terms contribute.
	a := buildCandidate(t, now, 0.0, []string{"work", "health"}, []string{"routine"})
	b := buildCandidate(t, now, 1.0, []string{"work", "health"}, []string{"routine"})

	assert.InDelta(t, 0.8, Similarity(a, b, cfg), 1e-9)
}

func TestSimilarityIsCapped(t *testing.T) {
	cfg := config.DefaultDomainConfig()
	now := time.Now()

	a := buildCandidate(t, now, 0.5, []string{"work"}, []string{"routine"})
	b := buildCandidate(t, now, 0.5, []string{"work"}, []string{"routine"})
	a.SetEmbedding([]float32{1, 2, 3})
	b.SetEmbedding([]float32{1, 2, 3})

	sim := Similarity(a, b, cfg)
	assert.InDelta(t, 1.0, sim, 1e-9)
}

func TestSimilarityDecaysWithTime(t *testing.T) {
	cfg := config.DefaultDomainConfig()
	now := time.Now()

	a := buildCandidate(t, now, 0.5, []string{"work"}, nil)
	near := buildCandidate(t, now.Add(-24*time.Hour), 0.5, []string{"work"}, nil)
	far := buildCandidate(t, now.Add(-10*24*time.Hour), 0.5, []string{"work"}, nil)

	assert.Greater(t, Similarity(a, near, cfg), Similarity(a, far, cfg))
	// Beyond the window the temporal term is exactly zero: 0.3 + 0 + 0.2.
	assert.InDelta(t, 0.5, Similarity(a, far, cfg), 1e-9)
}

func TestFiveCandidateScenarioFormsOneGroup(t *testing.T) {
	cfg := config.DefaultDomainConfig()
	now := time.Now()

	importances := []float64{0.5, 0.6, 0.7, 0.8, 0.9}
	candidates := make([]*entities.Candidate, len(importances))
	for i, imp := range importances {
		occurred := now.Add(-time.Duration(i*10) * time.Hour)
		candidates[i] = buildCandidate(t, occurred, imp, []string{"test"}, nil)
	}

	groups, err := Cluster(candidates, cfg)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, 5, groups[0].Size())
	assert.Greater(t, groups[0].Coherence().Value(), 0.6)
}

func TestClusteringIsDeterministic(t *testing.T) {
	cfg := config.DefaultDomainConfig()
	now := time.Now()

	var candidates []*entities.Candidate
	domains := [][]string{{"work"}, {"work"}, {"health"}, {"health"}, {"travel"}, {"work", "health"}}
	for i, d := range domains {
		occurred := now.Add(-time.Duration(i*20) * time.Hour)
		candidates = append(candidates, buildCandidate(t, occurred, 0.5, d, nil))
	}

	first, err := Cluster(candidates, cfg)
	require.NoError(t, err)
	second, err := Cluster(candidates, cfg)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		firstIDs := first[i].MemberIDs()
		secondIDs := second[i].MemberIDs()
		require.Equal(t, len(firstIDs), len(secondIDs))
		for j := range firstIDs {
			assert.True(t, firstIDs[j].Equals(secondIDs[j]))
		}
	}
}

func TestGroupsBelowMinimumAreDiscarded(t *testing.T) {
	cfg := config.DefaultDomainConfig()
	now := time.Now()

	a := buildCandidate(t, now, 0.5, []string{"work"}, nil)
	loner := buildCandidate(t, now.Add(-60*24*time.Hour), 0.5, []string{"astronomy"}, nil)
	b := buildCandidate(t, now, 0.5, []string{"work"}, nil)

	groups, err := Cluster([]*entities.Candidate{a, loner, b}, cfg)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, 2, groups[0].Size())
}

func TestMaxGroupSizeIsEnforced(t *testing.T) {
	cfg := config.DefaultDomainConfig()
	cfg.MaxGroupSize = 3
	now := time.Now()

	var candidates []*entities.Candidate
	for i := 0; i < 6; i++ {
		candidates = append(candidates, buildCandidate(t, now, 0.5, []string{"same"}, []string{"same"}))
	}

	groups, err := Cluster(candidates, cfg)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	for _, g := range groups {
		assert.LessOrEqual(t, g.Size(), 3)
	}
}
