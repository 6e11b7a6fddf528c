package generator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mnemo-backend/application/ports"
	"mnemo-backend/domain/core/entities"
	"mnemo-backend/domain/core/valueobjects"
)

func testCandidate(t *testing.T, content string) *entities.Candidate {
	t.Helper()
	c, err := entities.NewCandidate("user-1", content, time.Now().Add(-48*time.Hour))
	require.NoError(t, err)
	require.NoError(t, c.AddDomain("work"))
	require.NoError(t, c.AddTag("planning"))
	return c
}

func TestAnalyticalReflect(t *testing.T) {
	g := NewAnalytical()
	assert.Equal(t, []ports.Capability{ports.CapabilityAnalytical}, g.Capabilities())

	c := testCandidate(t, "Reviewed the migration plan. Two services still block the cutover. Should we split the rollout?")
	fragments, err := g.Reflect(context.Background(), c, nil)
	require.NoError(t, err)
	require.Len(t, fragments, 1)

	f := fragments[0]
	assert.Equal(t, entities.KindAnalysis, f.Kind())
	assert.Equal(t, g.ID(), f.GeneratorID())
	assert.NotEmpty(t, f.Questions())
	assert.Greater(t, f.Confidence().Value(), 0.0)
	assert.False(t, f.IsUnavailable())
}

func TestPatternReflectFindsRepetition(t *testing.T) {
	g := NewPattern()

	c := testCandidate(t, "Deadline slipped again. The deadline moved because the review stalled. Another deadline discussion tomorrow.")
	fragments, err := g.Reflect(context.Background(), c, nil)
	require.NoError(t, err)
	require.Len(t, fragments, 1)

	f := fragments[0]
	assert.Equal(t, entities.KindPattern, f.Kind())
	assert.Contains(t, f.Patterns(), "recurring term: deadline")
	assert.Contains(t, f.Connections(), "tagged: planning")
}

func TestPatternReflectNoRepetition(t *testing.T) {
	g := NewPattern()
	c := testCandidate(t, "Quick chat about lunch options near the office.")

	fragments, err := g.Reflect(context.Background(), c, nil)
	require.NoError(t, err)
	require.Len(t, fragments, 1)
	assert.Empty(t, fragments[0].Patterns())
}

func TestTemporalReflectValence(t *testing.T) {
	g := NewTemporal()

	c := testCandidate(t, "Great progress today, the rollout succeeded and everyone was happy.")
	fragments, err := g.Reflect(context.Background(), c, nil)
	require.NoError(t, err)
	require.Len(t, fragments, 1)

	valence, ok := fragments[0].Valence()
	require.True(t, ok)
	assert.Greater(t, valence.Value(), 0.0)

	c2 := testCandidate(t, "The deploy failed and everyone was stressed and frustrated.")
	fragments, err = g.Reflect(context.Background(), c2, nil)
	require.NoError(t, err)
	valence, ok = fragments[0].Valence()
	require.True(t, ok)
	assert.Less(t, valence.Value(), 0.0)
}

func TestTemporalRecommendsRevisit(t *testing.T) {
	g := NewTemporal()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return fixed }

	c, err := entities.ReconstructCandidate(
		valueobjects.NewCandidateID(),
		"user-1", "An important architecture decision about the storage layer.", "",
		valueobjects.NewUnitScore(0.9), valueobjects.NewModulation(0),
		fixed.Add(-80*24*time.Hour),
		fixed.Add(-80*24*time.Hour),
		fixed.Add(-50*24*time.Hour),
		fixed.Add(-45*24*time.Hour),
		0, 2, []string{"work"}, nil, nil, false)
	require.NoError(t, err)

	fragments, err := g.Reflect(context.Background(), c, nil)
	require.NoError(t, err)
	require.Len(t, fragments, 1)
	assert.NotEmpty(t, fragments[0].Recommendations())
}

func TestGeneratorsDeclareValidCapabilities(t *testing.T) {
	gens := []ports.PerspectiveGenerator{NewAnalytical(), NewPattern(), NewTemporal()}
	for _, g := range gens {
		require.NotEmpty(t, g.Capabilities(), g.ID())
		for _, cap := range g.Capabilities() {
			assert.True(t, ports.ValidCapability(cap), "%s: %s", g.ID(), cap)
		}
	}
}

func TestReflectHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := testCandidate(t, "some content")
	for _, g := range []ports.PerspectiveGenerator{NewAnalytical(), NewPattern(), NewTemporal()} {
		_, err := g.Reflect(ctx, c, nil)
		assert.Error(t, err, g.ID())
	}
}
