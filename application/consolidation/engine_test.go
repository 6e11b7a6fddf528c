package consolidation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mnemo-backend/application/ports"
	"mnemo-backend/domain/config"
	"mnemo-backend/domain/core/entities"
	"mnemo-backend/domain/core/valueobjects"
	"mnemo-backend/domain/events"
	"mnemo-backend/infrastructure/persistence/memory"
	apperrors "mnemo-backend/pkg/errors"
	"mnemo-backend/pkg/pipeline"
)

type recordingSink struct {
	mu     sync.Mutex
	topics []string
}

func (s *recordingSink) Publish(_ context.Context, topic string, _ map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics = append(s.topics, topic)
	return nil
}

func (s *recordingSink) count(topic string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for _, t := range s.topics {
		if t == topic {
			n++
		}
	}
	return n
}

type echoSynthesizer struct{}

func (echoSynthesizer) Synthesize(_ context.Context, prompt string) (string, error) {
	return "enhanced: " + prompt, nil
}

func seedCluster(t *testing.T, store *memory.CandidateStore, n int, domain string) []*entities.Candidate {
	t.Helper()
	now := time.Now()
	out := make([]*entities.Candidate, n)
	for i := 0; i < n; i++ {
		c := buildCandidate(t,
			now.Add(-time.Duration(25+i*10)*time.Hour),
			0.5+float64(i)*0.05,
			[]string{domain},
			[]string{domain + "-routine"})
		require.NoError(t, store.Save(context.Background(), c))
		out[i] = c
	}
	return out
}

func TestRunCycleProducesRecord(t *testing.T) {
	store := memory.NewCandidateStore()
	sink := &recordingSink{}
	seeded := seedCluster(t, store, 4, "work")

	engine, err := NewEngine(store, nil, sink, config.DefaultDomainConfig(), zap.NewNop(), nil)
	require.NoError(t, err)

	result := engine.RunCycle(context.Background(), "user-1")

	require.Equal(t, pipeline.StatusCompleted, result.Status)
	assert.Equal(t, 4, result.CandidatesConsidered)
	require.Len(t, result.Records, 1)

	record := result.Records[0]
	assert.Equal(t, "user-1", record.UserID())
	assert.Len(t, record.ParentIDs(), 4)
	assert.Contains(t, record.Tags(), "work-routine")
	assert.NotEmpty(t, record.Patterns())

	// The record's span matches the members' occurrence extremes.
	assert.Equal(t, seeded[3].OccurredAt(), record.SpanStart())
	assert.Equal(t, seeded[0].OccurredAt(), record.SpanEnd())

	// Every parent now carries the shared group ID.
	for _, c := range seeded {
		assert.Equal(t, 1, c.ConsolidationCount())
		assert.Equal(t, record.GroupID(), c.GroupID())
	}

	assert.Equal(t, 1, sink.count(events.TopicMemoryConsolidated))

	stored, err := store.GetRecordsByUserID(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestRunCycleWithNoCandidatesCompletesEmpty(t *testing.T) {
	engine, err := NewEngine(memory.NewCandidateStore(), nil, nil, config.DefaultDomainConfig(), zap.NewNop(), nil)
	require.NoError(t, err)

	result := engine.RunCycle(context.Background(), "user-1")

	assert.Equal(t, pipeline.StatusCompleted, result.Status)
	assert.Empty(t, result.Records)
}

func TestPatternStageFailureDegradesToPartial(t *testing.T) {
	store := memory.NewCandidateStore()
	seedCluster(t, store, 4, "work")

	engine, err := NewEngine(store, nil, nil, config.DefaultDomainConfig(), zap.NewNop(), nil)
	require.NoError(t, err)
	engine.extract = func(*entities.Group, *config.DomainConfig) GroupPatterns {
		panic("pattern extraction broke")
	}

	result := engine.RunCycle(context.Background(), "user-1")

	assert.Equal(t, pipeline.StatusPartial, result.Status)
	require.Len(t, result.Records, 1)

	// Synthesis fell back to raw candidate data: no extracted patterns,
	// but a complete record all the same.
	record := result.Records[0]
	assert.Empty(t, record.Patterns())
	assert.NotEmpty(t, record.Content())
	assert.NotEmpty(t, record.Title())
}

func TestSynthesizerEnhancesContent(t *testing.T) {
	store := memory.NewCandidateStore()
	seedCluster(t, store, 3, "health")

	engine, err := NewEngine(store, echoSynthesizer{}, nil, config.DefaultDomainConfig(), zap.NewNop(), nil)
	require.NoError(t, err)

	result := engine.RunCycle(context.Background(), "user-1")

	require.Equal(t, pipeline.StatusCompleted, result.Status)
	require.Len(t, result.Records, 1)
	assert.Contains(t, result.Records[0].Content(), "enhanced: ")
}

type failingRecordStore struct {
	ports.CandidateStore
}

func (s *failingRecordStore) SaveRecord(context.Context, *entities.ConsolidatedRecord) error {
	return apperrors.NewDatabaseError("save record", nil)
}

func TestRecordStoreFailureLeavesParentsUnmarked(t *testing.T) {
	inner := memory.NewCandidateStore()
	seeded := seedCluster(t, inner, 3, "work")
	store := &failingRecordStore{CandidateStore: inner}

	engine, err := NewEngine(store, nil, nil, config.DefaultDomainConfig(), zap.NewNop(), nil)
	require.NoError(t, err)

	result := engine.RunCycle(context.Background(), "user-1")

	require.Equal(t, pipeline.StatusFailed, result.Status)
	assert.Empty(t, result.Records)

	// The record never persisted, so the parents keep their consolidation
	// budget and stay unmarked.
	for _, c := range seeded {
		fresh, err := inner.GetByID(context.Background(), "user-1", c.ID())
		require.NoError(t, err)
		assert.Equal(t, 0, fresh.ConsolidationCount())
		assert.True(t, fresh.GroupID().IsZero())
	}
	records, err := inner.GetRecordsByUserID(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestConsolidatedParentsAreSkippedNextCycle(t *testing.T) {
	store := memory.NewCandidateStore()
	cfg := config.DefaultDomainConfig()
	cfg.MaxConsolidationCount = 1
	seedCluster(t, store, 3, "work")

	engine, err := NewEngine(store, nil, nil, cfg, zap.NewNop(), nil)
	require.NoError(t, err)

	first := engine.RunCycle(context.Background(), "user-1")
	require.Len(t, first.Records, 1)

	second := engine.RunCycle(context.Background(), "user-1")
	assert.Equal(t, pipeline.StatusCompleted, second.Status)
	assert.Empty(t, second.Records)
	assert.Zero(t, second.CandidatesConsidered)
}

func TestCancelledCycleWritesNothing(t *testing.T) {
	store := memory.NewCandidateStore()
	seeded := seedCluster(t, store, 3, "work")

	engine, err := NewEngine(store, nil, nil, config.DefaultDomainConfig(), zap.NewNop(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := engine.RunCycle(ctx, "user-1")

	assert.Equal(t, pipeline.StatusCancelled, result.Status)
	assert.Empty(t, result.Records)
	for _, c := range seeded {
		assert.Zero(t, c.ConsolidationCount())
		assert.True(t, c.GroupID().IsZero())
	}
}

func TestDerivedImportanceIsBoostedMean(t *testing.T) {
	now := time.Now()
	members := []*entities.Candidate{
		buildCandidate(t, now, 0.4, []string{"work"}, nil),
		buildCandidate(t, now.Add(-time.Hour), 0.6, []string{"work"}, nil),
	}
	group, err := entities.NewGroup(members, valueobjects.NewUnitScore(0.7), 2)
	require.NoError(t, err)

	assert.InDelta(t, 0.6, derivedImportance(group), 1e-9)
}
