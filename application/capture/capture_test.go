package capture

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mnemo-backend/domain/config"
	"mnemo-backend/domain/core/entities"
	"mnemo-backend/pkg/pipeline"
)

type fakeCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string][]byte)}
}

func (c *fakeCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok
}

func (c *fakeCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *fakeCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func TestCaptureBuildsCandidate(t *testing.T) {
	p := NewPipeline(config.DefaultDomainConfig(), newFakeCache(), zap.NewNop(), nil)

	res := p.Run(context.Background(), RawInput{
		UserID:     "user-1",
		Content:    "Met Sarah at the Tokyo office to plan the rollout",
		OccurredAt: time.Now().Add(-time.Hour),
		Domains:    []string{"Work"},
		Tags:       []string{"planning"},
		Importance: 0.7,
	})

	require.Equal(t, pipeline.StatusCompleted, res.Status)
	candidate, ok := res.Data.(*entities.Candidate)
	require.True(t, ok)
	assert.Equal(t, "user-1", candidate.UserID())
	assert.True(t, candidate.HasDomain("work"))
	assert.True(t, candidate.HasTag("planning"))
	assert.InDelta(t, 0.7, candidate.Importance().Value(), 1e-9)
}

func TestCaptureRejectsMissingFields(t *testing.T) {
	p := NewPipeline(config.DefaultDomainConfig(), newFakeCache(), zap.NewNop(), nil)

	tests := []struct {
		name  string
		input RawInput
	}{
		{"empty user", RawInput{Content: "something"}},
		{"empty content", RawInput{UserID: "user-1", Content: "   "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := p.Run(context.Background(), tt.input)
			assert.Equal(t, pipeline.StatusFailed, res.Status)
		})
	}
}

func TestCaptureRejectsOversizedContent(t *testing.T) {
	cfg := config.DefaultDomainConfig()
	p := NewPipeline(cfg, newFakeCache(), zap.NewNop(), nil)

	big := make([]byte, cfg.MaxContentLength+1)
	for i := range big {
		big[i] = 'a'
	}
	res := p.Run(context.Background(), RawInput{UserID: "user-1", Content: string(big)})

	assert.Equal(t, pipeline.StatusFailed, res.Status)
}

func TestCaptureDetectsDuplicates(t *testing.T) {
	cache := newFakeCache()
	p := NewPipeline(config.DefaultDomainConfig(), cache, zap.NewNop(), nil)

	// Simulate an earlier capture that completed its storage stage.
	key := DedupeKey("user-1", "same thought twice")
	require.NoError(t, cache.Set(context.Background(), key, []byte{1}, time.Hour))

	res := p.Run(context.Background(), RawInput{UserID: "user-1", Content: "same thought twice"})

	assert.Equal(t, pipeline.StatusFailed, res.Status)
	require.Len(t, res.FailedStages(), 1)
	assert.Equal(t, "dedupe", res.FailedStages()[0].Name)
	assert.Contains(t, res.FailedStages()[0].Err.Error(), "duplicate")
}

func TestCaptureScopesDedupePerUser(t *testing.T) {
	cache := newFakeCache()
	p := NewPipeline(config.DefaultDomainConfig(), cache, zap.NewNop(), nil)

	key := DedupeKey("user-1", "shared text")
	require.NoError(t, cache.Set(context.Background(), key, []byte{1}, time.Hour))

	res := p.Run(context.Background(), RawInput{UserID: "user-2", Content: "shared text"})

	assert.Equal(t, pipeline.StatusCompleted, res.Status)
}

func TestCaptureWithoutCacheStillWorks(t *testing.T) {
	p := NewPipeline(config.DefaultDomainConfig(), nil, zap.NewNop(), nil)

	res := p.Run(context.Background(), RawInput{UserID: "user-1", Content: "no cache configured"})

	assert.Equal(t, pipeline.StatusCompleted, res.Status)
}
