// Package reflection generates perspective fragments for a candidate,
// measures drift, derives the signal modulation and assembles the journal.
// A reflection never fails the caller: the worst outcome is a valid empty
// journal plus a reflection.failed event.
package reflection

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"mnemo-backend/application/ports"
	"mnemo-backend/domain/config"
	"mnemo-backend/domain/core/entities"
	"mnemo-backend/domain/events"
	"mnemo-backend/pkg/errors"
	"mnemo-backend/pkg/observability"
	"mnemo-backend/pkg/pipeline"
)

// state carries the intermediate reflection products between stages
type state struct {
	candidate  *entities.Candidate
	fragments  []*entities.Fragment
	indicators []entities.DriftIndicator
	journal    *entities.Journal
}

// Engine runs reflection cycles over candidates
type Engine struct {
	generators []ports.PerspectiveGenerator
	cache      ports.Cache
	sink       ports.EventSink
	cfg        *config.DomainConfig
	logger     *zap.Logger
	metrics    *observability.Collector
	pipe       *pipeline.Pipeline
}

// NewEngine validates the generator set and builds the reflection pipeline.
// A generator declaring a capability outside the closed set is rejected
// here, at construction, rather than surfacing mid-cycle.
func NewEngine(
	generators []ports.PerspectiveGenerator,
	cache ports.Cache,
	sink ports.EventSink,
	cfg *config.DomainConfig,
	logger *zap.Logger,
	metrics *observability.Collector,
) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	seen := make(map[string]struct{}, len(generators))
	for _, g := range generators {
		if _, dup := seen[g.ID()]; dup {
			return nil, errors.NewValidationError("duplicate generator id: " + g.ID())
		}
		seen[g.ID()] = struct{}{}
		for _, c := range g.Capabilities() {
			if !ports.ValidCapability(c) {
				return nil, errors.NewValidationError(fmt.Sprintf("generator %s declares unknown capability %q", g.ID(), c))
			}
		}
	}

	e := &Engine{
		generators: generators,
		cache:      cache,
		sink:       sink,
		cfg:        cfg,
		logger:     logger.With(zap.String("component", "reflection")),
		metrics:    metrics,
	}
	e.pipe = pipeline.New("reflection", logger, pipeline.WithMetrics(metrics)).
		AddStage(e.generateStage()).
		AddStage(e.driftStage()).
		AddStage(e.assembleStage()).
		AddStage(e.publishStage())
	return e, nil
}

// Reflect runs one reflection cycle. It always returns a journal; a failed
// cycle yields an empty one and emits reflection.failed.
func (e *Engine) Reflect(ctx context.Context, candidate *entities.Candidate) *entities.Journal {
	res := e.pipe.Run(ctx, &state{candidate: candidate})
	if res.Failed() {
		e.metrics.ObserveReflection(false)
		e.logger.Warn("reflection failed",
			zap.String("candidate_id", candidate.ID().String()),
			zap.Error(res.Err))
		e.emitFailed(ctx, candidate, res.Err)
		return entities.EmptyJournal(candidate.ID(), candidate.UserID(), e.cfg.DefaultDecayDays)
	}
	e.metrics.ObserveReflection(true)
	return res.Data.(*state).journal
}

// generateStage fans out across the perspective generators with bounded
// concurrency. One generator's failure never aborts the batch; its slot is
// filled with an explicit unavailable marker, in generator order.
func (e *Engine) generateStage() pipeline.Stage {
	return pipeline.NewStage("generate", func(ctx context.Context, input interface{}, _ *pipeline.Context) (interface{}, error) {
		st := input.(*state)
		if len(e.generators) == 0 {
			return nil, errors.NewCollaboratorUnavailableError("perspective generators", nil)
		}

		fanOut := int64(e.cfg.GeneratorFanOut)
		if fanOut < 1 {
			fanOut = 1
		}
		sem := semaphore.NewWeighted(fanOut)
		results := make([][]*entities.Fragment, len(e.generators))

		var wg sync.WaitGroup
		for i, gen := range e.generators {
			if err := sem.Acquire(ctx, 1); err != nil {
				results[i] = []*entities.Fragment{entities.UnavailableFragment(gen.ID(), st.candidate.ID())}
				continue
			}
			wg.Add(1)
			go func(i int, gen ports.PerspectiveGenerator) {
				defer wg.Done()
				defer sem.Release(1)
				results[i] = e.invoke(ctx, gen, st.candidate)
			}(i, gen)
		}
		wg.Wait()

		for _, frs := range results {
			st.fragments = append(st.fragments, frs...)
		}
		return st, nil
	})
}

// invoke calls one generator under the collaborator deadline, converting
// every failure mode, error, panic or empty output, into a marker fragment
func (e *Engine) invoke(ctx context.Context, gen ports.PerspectiveGenerator, candidate *entities.Candidate) (out []*entities.Fragment) {
	start := time.Now()
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		e.metrics.ObserveCollaborator("generator:"+gen.ID(), err, time.Since(start))
		if err != nil {
			e.logger.Debug("generator unavailable",
				zap.String("generator", gen.ID()),
				zap.Error(err))
			out = []*entities.Fragment{entities.UnavailableFragment(gen.ID(), candidate.ID())}
		}
	}()

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CollaboratorTimeout)
	defer cancel()

	fragments, err := gen.Reflect(callCtx, candidate, nil)
	if err != nil {
		return nil
	}
	if len(fragments) == 0 {
		err = fmt.Errorf("generator %s produced no fragments", gen.ID())
		return nil
	}
	return fragments
}

func (e *Engine) driftStage() pipeline.Stage {
	return pipeline.NewStage("drift", func(_ context.Context, input interface{}, _ *pipeline.Context) (interface{}, error) {
		st := input.(*state)
		st.indicators = computeDrift(st.candidate, st.fragments, time.Now())
		return st, nil
	})
}

func (e *Engine) assembleStage() pipeline.Stage {
	return pipeline.NewStage("assemble", func(ctx context.Context, input interface{}, _ *pipeline.Context) (interface{}, error) {
		st := input.(*state)
		modulation := computeModulation(st.fragments, st.indicators)

		overallDrift := meanIndicatorMagnitude(st.indicators)
		live := liveFragments(st.fragments)
		coherence := meanCoherence(live)

		eligible := len(live) >= e.cfg.MinFragmentsForConsolidation &&
			coherence > e.cfg.EligibilityCoherence &&
			overallDrift < e.cfg.EligibilityMaxDrift &&
			st.candidate.ConsolidationCount() < e.cfg.MaxConsolidationCount

		st.journal = entities.NewJournal(
			st.candidate.ID(),
			st.candidate.UserID(),
			st.fragments,
			st.indicators,
			modulation,
			eligible,
			e.decayDays(st.candidate, overallDrift),
		)
		e.cacheJournal(ctx, st.journal)
		return st, nil
	})
}

// decayDays picks the journal's decay timer from importance, then halves it
// when drift is high
func (e *Engine) decayDays(candidate *entities.Candidate, overallDrift float64) int {
	days := e.cfg.DefaultDecayDays
	importance := candidate.Importance().Value()
	if importance > e.cfg.HighImportanceCutoff {
		days = e.cfg.HighImportanceDecayDays
	} else if importance < e.cfg.LowImportanceCutoff {
		days = e.cfg.LowImportanceDecayDays
	}
	if overallDrift > e.cfg.HighDriftCutoff {
		days /= 2
		if days < 1 {
			days = 1
		}
	}
	return days
}

// cachedJournal is the ephemeral cache representation of a journal
type cachedJournal struct {
	CandidateID      string  `json:"candidate_id"`
	UserID           string  `json:"user_id"`
	FragmentCount    int     `json:"fragment_count"`
	IndicatorCount   int     `json:"indicator_count"`
	OverallDrift     float64 `json:"overall_drift"`
	Coherence        float64 `json:"coherence"`
	SignalModulation float64 `json:"signal_modulation"`
	Eligible         bool    `json:"eligible"`
	DecayDays        int     `json:"decay_days"`
	CreatedAt        string  `json:"created_at"`
}

func (e *Engine) cacheJournal(ctx context.Context, j *entities.Journal) {
	if e.cache == nil {
		return
	}
	payload, err := json.Marshal(cachedJournal{
		CandidateID:      j.CandidateID().String(),
		UserID:           j.UserID(),
		FragmentCount:    len(j.Fragments()),
		IndicatorCount:   len(j.Indicators()),
		OverallDrift:     j.OverallDrift().Value(),
		Coherence:        j.Coherence().Value(),
		SignalModulation: j.SignalModulation().Value(),
		Eligible:         j.ConsolidationEligible(),
		DecayDays:        j.DecayDays(),
		CreatedAt:        j.CreatedAt().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	ttl := time.Duration(j.DecayDays()) * 24 * time.Hour
	_ = e.cache.Set(ctx, JournalCacheKey(j.UserID(), j.CandidateID().String()), payload, ttl)
}

// JournalCacheKey names the cache slot for a candidate's latest journal
func JournalCacheKey(userID, candidateID string) string {
	return "journal:" + userID + ":" + candidateID
}

// publishStage emits reflection.completed. Event delivery is best effort
// and never fails the cycle.
func (e *Engine) publishStage() pipeline.Stage {
	return pipeline.NewStage("publish", func(ctx context.Context, input interface{}, _ *pipeline.Context) (interface{}, error) {
		st := input.(*state)
		if e.sink == nil {
			return st, nil
		}
		j := st.journal
		event := events.NewReflectionCompleted(
			j.CandidateID().String(),
			j.UserID(),
			len(j.Fragments()),
			len(j.Indicators()),
			j.OverallDrift().Value(),
			j.Coherence().Value(),
			j.SignalModulation().Value(),
			j.ConsolidationEligible(),
			j.CreatedAt(),
		)
		if err := e.sink.Publish(ctx, events.TopicReflectionCompleted, event.Payload()); err != nil {
			return nil, err
		}
		return st, nil
	}).Optional()
}

func (e *Engine) emitFailed(ctx context.Context, candidate *entities.Candidate, cause error) {
	if e.sink == nil {
		return
	}
	reason := "reflection pipeline failed"
	if cause != nil {
		reason = cause.Error()
	}
	event := events.NewReflectionFailed(candidate.ID().String(), candidate.UserID(), reason, time.Now())
	if err := e.sink.Publish(ctx, events.TopicReflectionFailed, event.Payload()); err != nil {
		e.logger.Debug("failed to publish reflection.failed", zap.Error(err))
	}
}
