// Package scheduler drives per-user consolidation cycles on a periodic
// cadence. Each user gets one supervised goroutine; a failed cycle backs
// off and retries on a later tick, and nothing that happens inside a cycle
// can crash the loop.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"mnemo-backend/application/consolidation"
	"mnemo-backend/pkg/errors"
	"mnemo-backend/pkg/observability"
	"mnemo-backend/pkg/pipeline"
)

// CycleRunner runs one consolidation cycle for a user. *consolidation.Engine
// satisfies it.
type CycleRunner interface {
	RunCycle(ctx context.Context, userID string) consolidation.CycleResult
}

// Scheduler manages the per-user cycle loops
type Scheduler struct {
	runner  CycleRunner
	logger  *zap.Logger
	metrics *observability.Collector

	initialCooldown time.Duration
	maxCooldown     time.Duration

	mu    sync.Mutex
	loops map[string]context.CancelFunc
	wg    sync.WaitGroup
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithCooldown overrides the failure-cooldown bounds
func WithCooldown(initial, max time.Duration) Option {
	return func(s *Scheduler) {
		s.initialCooldown = initial
		s.maxCooldown = max
	}
}

// New creates a scheduler around a cycle runner
func New(runner CycleRunner, logger *zap.Logger, metrics *observability.Collector, opts ...Option) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		runner:          runner,
		logger:          logger.With(zap.String("component", "scheduler")),
		metrics:         metrics,
		initialCooldown: 30 * time.Second,
		maxCooldown:     10 * time.Minute,
		loops:           make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the cycle loop for a user. Starting an already-scheduled
// user is a conflict.
func (s *Scheduler) Start(userID string, interval time.Duration) error {
	if userID == "" {
		return errors.NewValidationError("user id is required")
	}
	if interval <= 0 {
		return errors.NewValidationError("interval must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, running := s.loops[userID]; running {
		return errors.NewConflictError("user already scheduled: " + userID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.loops[userID] = cancel
	s.wg.Add(1)
	go s.run(ctx, userID, interval)

	s.logger.Info("cycle loop started",
		zap.String("user_id", userID),
		zap.Duration("interval", interval))
	return nil
}

// Stop cancels a user's loop and waits for the in-flight cycle to unwind
func (s *Scheduler) Stop(userID string) error {
	s.mu.Lock()
	cancel, ok := s.loops[userID]
	if ok {
		delete(s.loops, userID)
	}
	s.mu.Unlock()

	if !ok {
		return errors.NewNotFoundError("scheduled user " + userID)
	}
	cancel()
	s.logger.Info("cycle loop stopped", zap.String("user_id", userID))
	return nil
}

// StopAll cancels every loop and blocks until they have all exited
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	for userID, cancel := range s.loops {
		cancel()
		delete(s.loops, userID)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Running returns the number of scheduled users
func (s *Scheduler) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.loops)
}

func (s *Scheduler) run(ctx context.Context, userID string, interval time.Duration) {
	defer s.wg.Done()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.initialCooldown
	bo.MaxInterval = s.maxCooldown
	bo.Reset()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		result := s.runCycle(ctx, userID)
		if ctx.Err() != nil {
			return
		}

		if result.Status == pipeline.StatusFailed {
			cooldown := bo.NextBackOff()
			if errors.IsCollaboratorUnavailable(result.Err) {
				s.logger.Warn("collaborator unavailable, retrying after cooldown",
					zap.String("user_id", userID),
					zap.Duration("cooldown", cooldown))
			} else {
				s.logger.Warn("cycle failed, retrying after cooldown",
					zap.String("user_id", userID),
					zap.Duration("cooldown", cooldown),
					zap.Error(result.Err))
			}
			if !sleep(ctx, cooldown) {
				return
			}
			continue
		}
		bo.Reset()
	}
}

// runCycle shields the loop from anything the engine might do
func (s *Scheduler) runCycle(ctx context.Context, userID string) (result consolidation.CycleResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("cycle panicked",
				zap.String("user_id", userID),
				zap.Any("panic", r))
			result = consolidation.CycleResult{
				Status: pipeline.StatusFailed,
				Err:    fmt.Errorf("panic: %v", r),
			}
		}
	}()

	return s.runner.RunCycle(ctx, userID)
}

// sleep waits d or until cancellation; false means cancelled
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
