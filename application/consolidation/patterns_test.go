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

func buildGroup(t *testing.T, members []*entities.Candidate) *entities.Group {
	t.Helper()
	g, err := entities.NewGroup(members, valueobjects.NewUnitScore(0.7), 2)
	require.NoError(t, err)
	return g
}

func TestRecurringTags(t *testing.T) {
	now := time.Now()
	members := []*entities.Candidate{
		buildCandidate(t, now, 0.5, []string{"work"}, []string{"deadlines", "planning"}),
		buildCandidate(t, now.Add(-time.Hour), 0.5, []string{"work"}, []string{"deadlines"}),
		buildCandidate(t, now.Add(-2*time.Hour), 0.5, []string{"work"}, []string{"deadlines", "meetings"}),
		buildCandidate(t, now.Add(-3*time.Hour), 0.5, []string{"work"}, []string{"planning"}),
	}
	patterns := ExtractPatterns(buildGroup(t, members), config.DefaultDomainConfig())

	// "deadlines" appears in 3/4, "planning" in 2/4; both meet the 50%
	// bar, "meetings" does not.
	assert.Equal(t, []string{"deadlines", "planning"}, patterns.RecurringTags)
}

func TestTemporalClassification(t *testing.T) {
	tests := []struct {
		name string
		span time.Duration
		want string
	}{
		{"burst", 6 * time.Hour, "burst"},
		{"weekly", 3 * 24 * time.Hour, "weekly cycle"},
		{"extended", 20 * 24 * time.Hour, "extended exploration over 20 days"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, temporalClass(tt.span))
		})
	}
}

func TestImportanceTrend(t *testing.T) {
	now := time.Now()
	rising := []*entities.Candidate{
		buildCandidate(t, now, 0.9, []string{"work"}, nil),
		buildCandidate(t, now.Add(-48*time.Hour), 0.3, []string{"work"}, nil),
	}
	patterns := ExtractPatterns(buildGroup(t, rising), config.DefaultDomainConfig())
	assert.Equal(t, "increasing", patterns.ImportanceTrend)

	falling := []*entities.Candidate{
		buildCandidate(t, now, 0.2, []string{"work"}, nil),
		buildCandidate(t, now.Add(-48*time.Hour), 0.8, []string{"work"}, nil),
	}
	patterns = ExtractPatterns(buildGroup(t, falling), config.DefaultDomainConfig())
	assert.Equal(t, "decreasing", patterns.ImportanceTrend)
}

func TestDomainConvergence(t *testing.T) {
	now := time.Now()
	shared := []string{"work", "health", "family"}
	members := []*entities.Candidate{
		buildCandidate(t, now, 0.5, shared, nil),
		buildCandidate(t, now.Add(-time.Hour), 0.5, shared, nil),
	}
	patterns := ExtractPatterns(buildGroup(t, members), config.DefaultDomainConfig())
	assert.True(t, patterns.DomainConvergence)

	members = []*entities.Candidate{
		buildCandidate(t, now, 0.5, []string{"work"}, nil),
		buildCandidate(t, now.Add(-time.Hour), 0.5, []string{"work"}, nil),
	}
	patterns = ExtractPatterns(buildGroup(t, members), config.DefaultDomainConfig())
	assert.False(t, patterns.DomainConvergence)
}

func TestFrequentlyRevisited(t *testing.T) {
	now := time.Now()
	a := buildCandidate(t, now, 0.5, []string{"work"}, nil)
	b := buildCandidate(t, now.Add(-time.Hour), 0.5, []string{"work"}, nil)
	for i := 0; i < 8; i++ {
		a.Touch()
		b.Touch()
	}
	patterns := ExtractPatterns(buildGroup(t, []*entities.Candidate{a, b}), config.DefaultDomainConfig())
	assert.True(t, patterns.FrequentlyRevisited)
}

func TestSynthesisIsDeterministic(t *testing.T) {
	cfg := config.DefaultDomainConfig()
	now := time.Now()
	members := []*entities.Candidate{
		buildCandidate(t, now, 0.5, []string{"work"}, []string{"deadlines"}),
		buildCandidate(t, now.Add(-time.Hour), 0.5, []string{"work"}, []string{"deadlines"}),
	}
	group := buildGroup(t, members)
	patterns := ExtractPatterns(group, cfg)

	first := Synthesize(group, &patterns, cfg)
	second := Synthesize(group, &patterns, cfg)

	assert.Equal(t, first, second)
	assert.Contains(t, first.Content, "Consolidated 2 related memories")
	assert.Contains(t, first.Content, "work")
	assert.Contains(t, first.Title, "deadlines")
}

func TestSynthesisWithoutPatternsFallsBackToRawData(t *testing.T) {
	cfg := config.DefaultDomainConfig()
	now := time.Now()
	members := []*entities.Candidate{
		buildCandidate(t, now, 0.5, []string{"work"}, nil),
		buildCandidate(t, now.Add(-time.Hour), 0.5, []string{"work"}, nil),
	}
	group := buildGroup(t, members)

	s := Synthesize(group, nil, cfg)

	assert.NotEmpty(t, s.Title)
	assert.Contains(t, s.Content, "Consolidated 2 related memories")
	assert.Empty(t, s.Insights)
}
