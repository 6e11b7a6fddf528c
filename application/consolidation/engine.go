// Package consolidation implements the periodic cycle that clusters related
// candidates, extracts their patterns, synthesizes a summary and produces
// consolidated records.
package consolidation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mnemo-backend/application/ports"
	"mnemo-backend/domain/config"
	"mnemo-backend/domain/core/entities"
	"mnemo-backend/domain/events"
	"mnemo-backend/pkg/errors"
	"mnemo-backend/pkg/observability"
	"mnemo-backend/pkg/pipeline"
)

// consolidationBoost nudges a consolidated record's importance above the
// mean of its parents, reflecting that a synthesized theme carries more
// weight than any single memory
const consolidationBoost = 0.1

// CycleResult reports one consolidation cycle
type CycleResult struct {
	Status               pipeline.Status
	Records              []*entities.ConsolidatedRecord
	CandidatesConsidered int
	GroupsFormed         int
	Err                  error
}

// cycleState carries the intermediate products between cycle stages
type cycleState struct {
	userID     string
	candidates []*entities.Candidate
	groups     []*entities.Group
	patterns   map[int]*GroupPatterns
	records    []*entities.ConsolidatedRecord
}

// Engine runs consolidation cycles
type Engine struct {
	store   ports.CandidateStore
	synth   ports.Synthesizer
	sink    ports.EventSink
	cfg     *config.DomainConfig
	logger  *zap.Logger
	metrics *observability.Collector
	pipe    *pipeline.Pipeline

	// extract is swapped out by tests exercising pattern-stage failure
	extract func(*entities.Group, *config.DomainConfig) GroupPatterns
}

// NewEngine builds the consolidation cycle pipeline. The synthesizer and
// event sink are optional.
func NewEngine(
	store ports.CandidateStore,
	synth ports.Synthesizer,
	sink ports.EventSink,
	cfg *config.DomainConfig,
	logger *zap.Logger,
	metrics *observability.Collector,
) (*Engine, error) {
	if store == nil {
		return nil, errors.NewValidationError("candidate store is required")
	}
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		store:   store,
		synth:   synth,
		sink:    sink,
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "consolidation")),
		metrics: metrics,
		extract: ExtractPatterns,
	}
	e.pipe = pipeline.New("consolidation", logger, pipeline.WithMetrics(metrics)).
		AddStage(e.selectStage()).
		AddStage(e.clusterStage()).
		AddStage(e.patternStage()).
		AddStage(e.persistStage())
	return e, nil
}

// RunCycle consolidates one user's eligible candidates. The typed result
// carries PARTIAL when only the optional pattern stage failed; records are
// still produced from raw candidate data.
func (e *Engine) RunCycle(ctx context.Context, userID string) CycleResult {
	res := e.pipe.Run(ctx, &cycleState{userID: userID})

	out := CycleResult{Status: res.Status, Err: res.Err}
	if st, ok := res.Data.(*cycleState); ok {
		out.Records = st.records
		out.CandidatesConsidered = len(st.candidates)
		out.GroupsFormed = len(st.groups)
	}
	e.metrics.ObserveCycle(!res.Failed(), out.GroupsFormed, len(out.Records))
	if res.Failed() {
		e.logger.Warn("consolidation cycle failed",
			zap.String("user_id", userID),
			zap.Error(res.Err))
	} else {
		e.logger.Info("consolidation cycle finished",
			zap.String("user_id", userID),
			zap.String("status", string(res.Status)),
			zap.Int("candidates", out.CandidatesConsidered),
			zap.Int("groups", out.GroupsFormed),
			zap.Int("records", len(out.Records)))
	}
	return out
}

func (e *Engine) selectStage() pipeline.Stage {
	return pipeline.NewStage("select", func(ctx context.Context, input interface{}, _ *pipeline.Context) (interface{}, error) {
		st := input.(*cycleState)
		candidates, err := e.store.SelectConsolidationCandidates(ctx, ports.SelectionCriteria{
			UserID:                st.userID,
			MinAge:                e.cfg.MinCandidateAge,
			MaxConsolidationCount: e.cfg.MaxConsolidationCount,
			Limit:                 e.cfg.MaxCandidatesPerCycle,
			AsOf:                  time.Now(),
		})
		if err != nil {
			return nil, errors.NewCollaboratorUnavailableError("candidate store", err)
		}
		st.candidates = candidates
		return st, nil
	}).WithTimeout(e.cfg.CollaboratorTimeout)
}

func (e *Engine) clusterStage() pipeline.Stage {
	return pipeline.NewStage("cluster", func(_ context.Context, input interface{}, _ *pipeline.Context) (interface{}, error) {
		st := input.(*cycleState)
		groups, err := Cluster(st.candidates, e.cfg)
		if err != nil {
			return nil, err
		}
		st.groups = groups
		return st, nil
	})
}

// patternStage is optional: a failure here degrades the cycle to PARTIAL
// and synthesis proceeds from raw candidate data
func (e *Engine) patternStage() pipeline.Stage {
	return pipeline.NewStage("patterns", func(_ context.Context, input interface{}, _ *pipeline.Context) (interface{}, error) {
		st := input.(*cycleState)
		st.patterns = make(map[int]*GroupPatterns, len(st.groups))
		for i, group := range st.groups {
			p := e.extract(group, e.cfg)
			st.patterns[i] = &p
		}
		return st, nil
	}).Optional()
}

// persistStage synthesizes and writes one record per group. Marking the
// parents consolidated is a single store call per group; a cancelled
// context stops before the next group's write, never mid-write.
func (e *Engine) persistStage() pipeline.Stage {
	return pipeline.NewStage("persist", func(ctx context.Context, input interface{}, _ *pipeline.Context) (interface{}, error) {
		st := input.(*cycleState)
		for i, group := range st.groups {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			record, err := e.consolidateGroup(ctx, st, group, st.patterns[i])
			if err != nil {
				return nil, err
			}
			st.records = append(st.records, record)
		}
		return st, nil
	})
}

func (e *Engine) consolidateGroup(ctx context.Context, st *cycleState, group *entities.Group, patterns *GroupPatterns) (*entities.ConsolidatedRecord, error) {
	synthesis := Enhance(ctx, Synthesize(group, patterns, e.cfg), e.synth)

	var patternStrings []string
	if patterns != nil {
		patternStrings = patterns.Patterns()
	}

	record, err := entities.NewConsolidatedRecord(entities.ConsolidatedRecordParams{
		GroupID:    group.ID(),
		UserID:     st.userID,
		Title:      synthesis.Title,
		Content:    synthesis.Content,
		ParentIDs:  group.MemberIDs(),
		Domains:    mergedDomains(group),
		Tags:       mergedTags(group),
		Patterns:   patternStrings,
		Insights:   synthesis.Insights,
		Importance: derivedImportance(group),
		Coherence:  group.Coherence(),
		SpanStart:  group.SpanStart(),
		SpanEnd:    group.SpanEnd(),
	})
	if err != nil {
		return nil, err
	}

	// The record is written before the parents are marked: parents only
	// consume consolidation budget once their record exists.
	if err := e.store.SaveRecord(ctx, record); err != nil {
		return nil, errors.Wrap(err, "saving consolidated record")
	}
	if err := e.store.MarkConsolidated(ctx, st.userID, group.MemberIDs(), group.ID()); err != nil {
		return nil, errors.Wrap(err, "marking parents consolidated")
	}

	e.publishConsolidated(ctx, record)
	return record, nil
}

// publishConsolidated emits memory.consolidated, best effort
func (e *Engine) publishConsolidated(ctx context.Context, record *entities.ConsolidatedRecord) {
	if e.sink == nil {
		return
	}
	parents := make([]string, len(record.ParentIDs()))
	for i, id := range record.ParentIDs() {
		parents[i] = id.String()
	}
	event := events.NewMemoryConsolidated(
		record.ID().String(),
		record.GroupID().String(),
		record.UserID(),
		parents,
		record.Coherence().Value(),
		record.Importance().Value(),
		record.CreatedAt(),
	)
	if err := e.sink.Publish(ctx, events.TopicMemoryConsolidated, event.Payload()); err != nil {
		e.logger.Debug("failed to publish memory.consolidated", zap.Error(err))
	}
}

// derivedImportance is the member mean plus a small consolidation boost
func derivedImportance(group *entities.Group) float64 {
	var sum float64
	for _, m := range group.Members() {
		sum += m.Importance().Value()
	}
	return sum/float64(group.Size()) + consolidationBoost
}

func mergedDomains(group *entities.Group) []string {
	return mergeStringSets(group.Members(), (*entities.Candidate).Domains)
}

func mergedTags(group *entities.Group) []string {
	return mergeStringSets(group.Members(), (*entities.Candidate).Tags)
}

func mergeStringSets(members []*entities.Candidate, get func(*entities.Candidate) []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range members {
		for _, s := range get(m) {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
