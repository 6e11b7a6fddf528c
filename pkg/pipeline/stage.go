// Package pipeline provides the generic staged-execution primitive the
// capture, process, reflection and consolidation engines are built from.
// Stages compose into sequential or parallel pipelines, pipelines compose
// into pipelines, and every run returns a typed Result; nothing ever panics
// across the package boundary.
package pipeline

import (
	"context"
	"sync"
	"time"
)

// Status represents the execution state of a stage or pipeline
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
	StatusPartial   Status = "PARTIAL"
)

// Stage is a single typed unit of work. Validate runs before Process; a
// validation failure never reaches Process. Required stages escalate their
// failures to the pipeline; optional stages degrade the run to partial.
type Stage interface {
	Name() string
	Required() bool
	Validate(input interface{}) error
	Process(ctx context.Context, input interface{}, ec *Context) (interface{}, error)
}

// ErrorHandler is consulted when a stage's Process fails. Returning a
// replacement value and true recovers the stage; returning false declines,
// leaving the failure to the pipeline's required/optional policy.
type ErrorHandler interface {
	OnError(ctx context.Context, err error, input interface{}, ec *Context) (interface{}, bool)
}

// TimeoutAware stages carry a per-execution deadline. A zero duration means
// no stage-level deadline; an exceeded deadline is handled exactly like a
// raised error.
type TimeoutAware interface {
	Timeout() time.Duration
}

// StageResult captures one stage execution
type StageResult struct {
	Name     string
	Status   Status
	Data     interface{}
	Err      error
	Duration time.Duration
}

// Context is the shared mutable execution context for one pipeline run. It
// is owned exclusively by that run; parallel sibling stages may write to it
// concurrently, so the merge must stay commutative over completion order.
type Context struct {
	mu     sync.RWMutex
	values map[string]interface{}
}

// NewContext creates an empty execution context
func NewContext() *Context {
	return &Context{values: make(map[string]interface{})}
}

// Set stores a value under key
func (c *Context) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

// Get retrieves a value by key
func (c *Context) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// Snapshot returns a copy of the stored values
func (c *Context) Snapshot() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]interface{}, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// FuncStage is the function-backed Stage implementation used throughout the
// engines. Build one with NewStage and the fluent With* methods.
type FuncStage struct {
	name     string
	required bool
	timeout  time.Duration
	validate func(input interface{}) error
	process  func(ctx context.Context, input interface{}, ec *Context) (interface{}, error)
	onError  func(ctx context.Context, err error, input interface{}, ec *Context) (interface{}, bool)
}

// NewStage creates a required stage from a process function
func NewStage(name string, process func(ctx context.Context, input interface{}, ec *Context) (interface{}, error)) *FuncStage {
	return &FuncStage{
		name:     name,
		required: true,
		process:  process,
	}
}

// Optional marks the stage as optional: its failure degrades the pipeline
// to partial instead of failing it.
func (s *FuncStage) Optional() *FuncStage {
	s.required = false
	return s
}

// WithValidate attaches an input validator
func (s *FuncStage) WithValidate(validate func(input interface{}) error) *FuncStage {
	s.validate = validate
	return s
}

// WithTimeout attaches a per-execution deadline
func (s *FuncStage) WithTimeout(d time.Duration) *FuncStage {
	s.timeout = d
	return s
}

// WithOnError attaches an error-recovery handler
func (s *FuncStage) WithOnError(onError func(ctx context.Context, err error, input interface{}, ec *Context) (interface{}, bool)) *FuncStage {
	s.onError = onError
	return s
}

// Name returns the stage name
func (s *FuncStage) Name() string { return s.name }

// Required reports whether a failure escalates to the pipeline
func (s *FuncStage) Required() bool { return s.required }

// Timeout returns the per-execution deadline, zero for none
func (s *FuncStage) Timeout() time.Duration { return s.timeout }

// Validate runs the attached validator, if any
func (s *FuncStage) Validate(input interface{}) error {
	if s.validate == nil {
		return nil
	}
	return s.validate(input)
}

// Process runs the stage body
func (s *FuncStage) Process(ctx context.Context, input interface{}, ec *Context) (interface{}, error) {
	return s.process(ctx, input, ec)
}

// OnError consults the attached recovery handler, if any
func (s *FuncStage) OnError(ctx context.Context, err error, input interface{}, ec *Context) (interface{}, bool) {
	if s.onError == nil {
		return nil, false
	}
	return s.onError(ctx, err, input, ec)
}
