package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mnemo-backend/pkg/errors"
	"mnemo-backend/pkg/observability"
)

// Mode selects how a pipeline schedules its stages
type Mode int

const (
	// Sequential feeds each stage's output into the next stage's input
	Sequential Mode = iota
	// Parallel runs every stage against the same input and merges outputs
	// into the shared context keyed by stage name
	Parallel
)

// Result is the typed outcome of one pipeline run. Status is COMPLETED only
// when every required stage completed; optional failures yield PARTIAL.
type Result struct {
	Pipeline string
	Status   Status
	Data     interface{}
	Stages   []StageResult
	Err      error
	Duration time.Duration
}

// Failed reports whether the run ended in FAILED or CANCELLED
func (r Result) Failed() bool {
	return r.Status == StatusFailed || r.Status == StatusCancelled
}

// FailedStages returns the results of stages that did not complete
func (r Result) FailedStages() []StageResult {
	var out []StageResult
	for _, sr := range r.Stages {
		if sr.Status == StatusFailed || sr.Status == StatusCancelled {
			out = append(out, sr)
		}
	}
	return out
}

// Pipeline executes an ordered set of stages. A Pipeline is itself a Stage,
// so pipelines nest; the nested run's context is a child of its own, not of
// the parent's.
type Pipeline struct {
	name            string
	mode            Mode
	continueOnError bool
	required        bool
	stages          []Stage
	logger          *zap.Logger
	metrics         *observability.Collector
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithMode sets the scheduling mode
func WithMode(mode Mode) Option {
	return func(p *Pipeline) { p.mode = mode }
}

// WithContinueOnError keeps a sequential run going past a required-stage
// failure. The overall status still reflects the failure.
func WithContinueOnError() Option {
	return func(p *Pipeline) { p.continueOnError = true }
}

// WithMetrics attaches a metrics collector
func WithMetrics(m *observability.Collector) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// AsOptional marks the pipeline optional when composed as a stage
func AsOptional() Option {
	return func(p *Pipeline) { p.required = false }
}

// New creates a pipeline. A nil logger is replaced with a no-op logger.
func New(name string, logger *zap.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{
		name:     name,
		mode:     Sequential,
		required: true,
		logger:   logger.With(zap.String("pipeline", name)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AddStage appends a stage and returns the pipeline for chaining
func (p *Pipeline) AddStage(s Stage) *Pipeline {
	p.stages = append(p.stages, s)
	return p
}

// Name returns the pipeline name
func (p *Pipeline) Name() string { return p.name }

// Required reports whether the pipeline, used as a stage, is required
func (p *Pipeline) Required() bool { return p.required }

// Validate delegates to the first stage so composed pipelines keep the
// outermost input contract
func (p *Pipeline) Validate(input interface{}) error {
	if len(p.stages) == 0 {
		return nil
	}
	return p.stages[0].Validate(input)
}

// Process lets a pipeline satisfy the Stage interface. It can only report
// success or failure; execute recognizes nested pipelines directly so a
// partial inner run keeps its status inside an enclosing pipeline.
func (p *Pipeline) Process(ctx context.Context, input interface{}, _ *Context) (interface{}, error) {
	res := p.Run(ctx, input)
	if res.Failed() {
		return nil, res.Err
	}
	return res.Data, nil
}

// Run executes the pipeline against input. It never panics; stage panics
// are recovered and surface as stage-execution errors.
func (p *Pipeline) Run(ctx context.Context, input interface{}) Result {
	start := time.Now()
	ec := NewContext()

	p.logger.Debug("pipeline started", zap.Int("stages", len(p.stages)))

	var res Result
	if p.mode == Parallel {
		res = p.runParallel(ctx, input, ec)
	} else {
		res = p.runSequential(ctx, input, ec)
	}
	res.Pipeline = p.name
	res.Duration = time.Since(start)

	p.metrics.ObservePipeline(p.name, string(res.Status), res.Duration)
	if res.Failed() {
		p.logger.Warn("pipeline finished",
			zap.String("status", string(res.Status)),
			zap.Duration("duration", res.Duration),
			zap.Error(res.Err))
	} else {
		p.logger.Debug("pipeline finished",
			zap.String("status", string(res.Status)),
			zap.Duration("duration", res.Duration))
	}
	return res
}

func (p *Pipeline) runSequential(ctx context.Context, input interface{}, ec *Context) Result {
	res := Result{Status: StatusCompleted, Data: input}
	data := input

	for _, stage := range p.stages {
		if err := ctx.Err(); err != nil {
			res.Stages = append(res.Stages, StageResult{
				Name:   stage.Name(),
				Status: StatusCancelled,
				Err:    err,
			})
			res.Status = StatusCancelled
			res.Err = errors.NewCancelledError(fmt.Sprintf("pipeline %s before stage %s", p.name, stage.Name()))
			return res
		}

		sr := p.execute(ctx, stage, data, ec)
		res.Stages = append(res.Stages, sr)

		switch sr.Status {
		case StatusCompleted:
			data = sr.Data
			res.Data = data
		case StatusPartial:
			// a nested pipeline finished with an optional inner stage failed;
			// its data is complete for every required stage and flows on
			data = sr.Data
			res.Data = data
			if res.Status == StatusCompleted {
				res.Status = StatusPartial
			}
		case StatusFailed:
			if stage.Required() {
				res.Status = StatusFailed
				res.Err = errors.NewRequiredStageFailure(stage.Name(), sr.Err)
				if !p.continueOnError {
					return res
				}
			} else if res.Status == StatusCompleted {
				res.Status = StatusPartial
			}
			// failed stage output is discarded; the last good value flows on
		case StatusCancelled:
			res.Status = StatusCancelled
			res.Err = sr.Err
			return res
		}
	}
	return res
}

func (p *Pipeline) runParallel(ctx context.Context, input interface{}, ec *Context) Result {
	res := Result{Status: StatusCompleted}
	results := make([]StageResult, len(p.stages))

	done := make(chan int, len(p.stages))
	for i, stage := range p.stages {
		go func(i int, stage Stage) {
			results[i] = p.execute(ctx, stage, input, ec)
			done <- i
		}(i, stage)
	}
	for range p.stages {
		<-done
	}

	merged := make(map[string]interface{}, len(p.stages))
	for i, stage := range p.stages {
		sr := results[i]
		res.Stages = append(res.Stages, sr)
		switch sr.Status {
		case StatusCompleted:
			merged[stage.Name()] = sr.Data
			ec.Set(stage.Name(), sr.Data)
		case StatusPartial:
			merged[stage.Name()] = sr.Data
			ec.Set(stage.Name(), sr.Data)
			if res.Status == StatusCompleted {
				res.Status = StatusPartial
			}
		case StatusFailed:
			if stage.Required() {
				res.Status = StatusFailed
				if res.Err == nil {
					res.Err = errors.NewRequiredStageFailure(stage.Name(), sr.Err)
				}
			} else if res.Status == StatusCompleted {
				res.Status = StatusPartial
			}
		case StatusCancelled:
			if res.Status != StatusFailed {
				res.Status = StatusCancelled
				res.Err = sr.Err
			}
		}
	}
	res.Data = merged
	return res
}

// execute runs one stage: validate, then process under the stage deadline,
// then consult OnError on failure. Panics are contained here.
func (p *Pipeline) execute(ctx context.Context, stage Stage, input interface{}, ec *Context) (sr StageResult) {
	start := time.Now()
	sr = StageResult{Name: stage.Name(), Status: StatusRunning}

	defer func() {
		if r := recover(); r != nil {
			sr.Status = StatusFailed
			sr.Err = errors.NewStageExecutionError(stage.Name(), fmt.Errorf("panic: %v", r))
		}
		sr.Duration = time.Since(start)
		p.metrics.ObserveStage(p.name, stage.Name(), string(sr.Status), sr.Duration)
	}()

	if err := stage.Validate(input); err != nil {
		p.logger.Debug("stage validation failed",
			zap.String("stage", stage.Name()),
			zap.Error(err))
		sr.Status = StatusFailed
		sr.Err = errors.NewValidationError(fmt.Sprintf("stage %s rejected input", stage.Name())).WithCause(err)
		return sr
	}

	stageCtx := ctx
	if ta, ok := stage.(TimeoutAware); ok {
		if d := ta.Timeout(); d > 0 {
			var cancel context.CancelFunc
			stageCtx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
	}

	if nested, ok := stage.(*Pipeline); ok {
		inner := nested.Run(stageCtx, input)
		switch inner.Status {
		case StatusPartial:
			sr.Status = StatusPartial
			sr.Data = inner.Data
		case StatusCancelled:
			sr.Status = StatusCancelled
			sr.Err = inner.Err
		case StatusFailed:
			sr.Status = StatusFailed
			sr.Err = inner.Err
		default:
			sr.Status = StatusCompleted
			sr.Data = inner.Data
		}
		return sr
	}

	out, err := stage.Process(stageCtx, input, ec)
	if err == nil {
		sr.Status = StatusCompleted
		sr.Data = out
		return sr
	}

	if ctx.Err() != nil && stageCtx.Err() == ctx.Err() {
		sr.Status = StatusCancelled
		sr.Err = errors.NewCancelledError(fmt.Sprintf("stage %s", stage.Name()))
		return sr
	}

	if eh, ok := stage.(ErrorHandler); ok {
		if recovered, handled := eh.OnError(ctx, err, input, ec); handled {
			p.logger.Debug("stage recovered from error",
				zap.String("stage", stage.Name()),
				zap.Error(err))
			sr.Status = StatusCompleted
			sr.Data = recovered
			return sr
		}
	}

	p.logger.Debug("stage failed",
		zap.String("stage", stage.Name()),
		zap.Bool("required", stage.Required()),
		zap.Error(err))
	sr.Status = StatusFailed
	sr.Err = errors.NewStageExecutionError(stage.Name(), err)
	return sr
}
