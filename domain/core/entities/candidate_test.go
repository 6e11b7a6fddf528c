package entities

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mnemo-backend/domain/config"
	"mnemo-backend/domain/core/valueobjects"
)

func TestNewCandidateValidation(t *testing.T) {
	_, err := NewCandidate("", "content", time.Now())
	assert.Error(t, err)

	_, err = NewCandidate("user-1", "   ", time.Now())
	assert.Error(t, err)

	c, err := NewCandidate("user-1", "  trimmed  ", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "trimmed", c.Content())
	assert.InDelta(t, 0.5, c.Importance().Value(), 1e-9)
	assert.False(t, c.ID().IsZero())
}

func TestTagAndDomainNormalization(t *testing.T) {
	c, err := NewCandidate("user-1", "content", time.Now())
	require.NoError(t, err)

	require.NoError(t, c.AddTag("  Deep-Work "))
	require.NoError(t, c.AddDomain("WORK"))

	assert.True(t, c.HasTag("deep-work"))
	assert.True(t, c.HasDomain("work"))

	// adding the same tag twice keeps the set a set
	require.NoError(t, c.AddTag("deep-work"))
	assert.Len(t, c.Tags(), 1)
}

func TestTagLimit(t *testing.T) {
	cfg := config.DefaultDomainConfig()
	cfg.MaxTagsPerRecord = 2
	c, err := NewCandidateWithConfig("user-1", "content", time.Now(), cfg)
	require.NoError(t, err)

	require.NoError(t, c.AddTagWithConfig("one", cfg))
	require.NoError(t, c.AddTagWithConfig("two", cfg))
	assert.Error(t, c.AddTagWithConfig("three", cfg))
}

func TestTouchTracksAccess(t *testing.T) {
	c, err := NewCandidate("user-1", "content", time.Now())
	require.NoError(t, err)

	before := c.LastAccessedAt()
	c.Touch()
	c.Touch()

	assert.Equal(t, 2, c.AccessCount())
	assert.False(t, c.LastAccessedAt().Before(before))
}

func TestMarkConsolidatedLifecycle(t *testing.T) {
	c, err := NewCandidate("user-1", "content", time.Now())
	require.NoError(t, err)
	groupID := valueobjects.NewGroupID()

	require.NoError(t, c.MarkConsolidated(groupID))
	assert.Equal(t, 1, c.ConsolidationCount())
	assert.Equal(t, groupID, c.GroupID())
	assert.NotEmpty(t, c.GetUncommittedEvents())

	c.MarkEventsAsCommitted()
	assert.Empty(t, c.GetUncommittedEvents())

	assert.Error(t, c.MarkConsolidated(valueobjects.GroupID{}))

	c.Archive()
	assert.Error(t, c.MarkConsolidated(valueobjects.NewGroupID()))
}

func TestEligibleForConsolidation(t *testing.T) {
	cfg := config.DefaultDomainConfig()
	now := time.Now()

	fresh, err := NewCandidate("user-1", "too new", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.False(t, fresh.EligibleForConsolidation(now, cfg))

	aged, err := NewCandidate("user-1", "old enough", now.Add(-48*time.Hour))
	require.NoError(t, err)
	assert.True(t, aged.EligibleForConsolidation(now, cfg))

	for i := 0; i < cfg.MaxConsolidationCount; i++ {
		require.NoError(t, aged.MarkConsolidated(valueobjects.NewGroupID()))
	}
	assert.False(t, aged.EligibleForConsolidation(now, cfg))

	archived, err := NewCandidate("user-1", "archived", now.Add(-48*time.Hour))
	require.NoError(t, err)
	archived.Archive()
	assert.False(t, archived.EligibleForConsolidation(now, cfg))
}

func TestEmbeddingIsCopied(t *testing.T) {
	c, err := NewCandidate("user-1", "content", time.Now())
	require.NoError(t, err)

	vec := []float32{1, 2, 3}
	c.SetEmbedding(vec)
	vec[0] = 99

	assert.InDelta(t, 1, c.Embedding()[0], 1e-6)

	got := c.Embedding()
	got[1] = 99
	assert.InDelta(t, 2, c.Embedding()[1], 1e-6)
}

func TestFragmentImmutabilityAndMarkers(t *testing.T) {
	candidateID := valueobjects.NewCandidateID()
	f, err := NewFragment(FragmentParams{
		GeneratorID: "gen-1",
		CandidateID: candidateID,
		Content:     "an observation",
		Kind:        KindInsight,
		Confidence:  1.7,
		Relevance:   -0.2,
		Coherence:   0.8,
		Patterns:    []string{"p1"},
		SignalTag:   "steady",
		Modulation:  2.5,
	})
	require.NoError(t, err)

	// construction clamps every score
	assert.InDelta(t, 1.0, f.Confidence().Value(), 1e-9)
	assert.InDelta(t, 0.0, f.Relevance().Value(), 1e-9)
	assert.InDelta(t, 1.0, f.SubSignal().Modulation.Value(), 1e-9)
	assert.False(t, f.IsUnavailable())

	ps := f.Patterns()
	ps[0] = "mutated"
	assert.Equal(t, []string{"p1"}, f.Patterns())

	_, hasValence := f.Valence()
	assert.False(t, hasValence)

	marker := UnavailableFragment("gen-2", candidateID)
	assert.True(t, marker.IsUnavailable())
	assert.Zero(t, marker.Confidence().Value())

	_, err = NewFragment(FragmentParams{GeneratorID: "g", CandidateID: candidateID, Content: "x", Kind: ReflectionKind("mood")})
	assert.Error(t, err)
}

func TestJournalAggregates(t *testing.T) {
	candidateID := valueobjects.NewCandidateID()
	mkFragment := func(coherence float64) *Fragment {
		f, err := NewFragment(FragmentParams{
			GeneratorID: "g",
			CandidateID: candidateID,
			Content:     "c",
			Kind:        KindAnalysis,
			Coherence:   coherence,
		})
		require.NoError(t, err)
		return f
	}

	indicators := []DriftIndicator{
		NewDriftIndicator(DriftSemantic, 0.4, nil, false),
		NewDriftIndicator(DriftTemporal, 0.6, nil, false),
	}
	j := NewJournal(candidateID, "user-1",
		[]*Fragment{mkFragment(0.8), mkFragment(0.6)},
		indicators,
		valueobjects.NewModulation(0.2),
		true, 7)

	assert.InDelta(t, 0.5, j.OverallDrift().Value(), 1e-9)
	assert.InDelta(t, 0.7, j.Coherence().Value(), 1e-9)
	assert.False(t, j.IsEmpty())

	empty := EmptyJournal(candidateID, "user-1", 7)
	assert.True(t, empty.IsEmpty())
	assert.False(t, empty.ConsolidationEligible())
	assert.Zero(t, empty.OverallDrift().Value())
}

func TestConsolidatedRecordValidation(t *testing.T) {
	now := time.Now()
	parent := valueobjects.NewCandidateID()
	valid := ConsolidatedRecordParams{
		GroupID:   valueobjects.NewGroupID(),
		UserID:    "user-1",
		Title:     "title",
		Content:   "content",
		ParentIDs: []valueobjects.CandidateID{parent},
		SpanStart: now.Add(-time.Hour),
		SpanEnd:   now,
	}

	_, err := NewConsolidatedRecord(valid)
	require.NoError(t, err)

	noParents := valid
	noParents.ParentIDs = nil
	_, err = NewConsolidatedRecord(noParents)
	assert.Error(t, err)

	invertedSpan := valid
	invertedSpan.SpanStart, invertedSpan.SpanEnd = invertedSpan.SpanEnd, invertedSpan.SpanStart
	_, err = NewConsolidatedRecord(invertedSpan)
	assert.Error(t, err)
}

func TestGroupDerivesSpanAndCommonSets(t *testing.T) {
	now := time.Now()
	mk := func(occurred time.Time, domains, tags []string) *Candidate {
		c, err := NewCandidate("user-1", "content", occurred)
		require.NoError(t, err)
		for _, d := range domains {
			require.NoError(t, c.AddDomain(d))
		}
		for _, tag := range tags {
			require.NoError(t, c.AddTag(tag))
		}
		return c
	}

	a := mk(now.Add(-48*time.Hour), []string{"work", "health"}, []string{"routine"})
	b := mk(now, []string{"work"}, []string{"routine", "extra"})

	g, err := NewGroup([]*Candidate{a, b}, valueobjects.NewUnitScore(0.7), 2)
	require.NoError(t, err)

	assert.Equal(t, a.OccurredAt(), g.SpanStart())
	assert.Equal(t, b.OccurredAt(), g.SpanEnd())
	assert.Equal(t, []string{"work"}, g.CommonDomains())
	assert.Equal(t, []string{"routine"}, g.CommonTags())
	assert.Equal(t, 48*time.Hour, g.Span())

	_, err = NewGroup([]*Candidate{a}, valueobjects.NewUnitScore(0.7), 2)
	assert.Error(t, err)
}
