package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds all Prometheus metrics for the engine. It is explicitly
// constructed with its own registry and passed by reference; there is no
// package-level singleton.
type Collector struct {
	registry *prometheus.Registry

	// Pipeline metrics
	StageExecutions *prometheus.CounterVec
	StageDuration   *prometheus.HistogramVec
	PipelineRuns    *prometheus.CounterVec
	PipelineDuration *prometheus.HistogramVec

	// Business metrics
	ReflectionsCompleted prometheus.Counter
	ReflectionsFailed    prometheus.Counter
	CyclesCompleted      prometheus.Counter
	CyclesFailed         prometheus.Counter
	RecordsConsolidated  prometheus.Counter
	GroupsFormed         prometheus.Counter

	// Collaborator metrics
	CollaboratorCalls    *prometheus.CounterVec
	CollaboratorDuration *prometheus.HistogramVec

	// Cache metrics
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
}

// NewCollector creates a new metrics collector with the given namespace
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	stageExecutions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_executions_total",
			Help:      "Total number of pipeline stage executions",
		},
		[]string{"pipeline", "stage", "status"},
	)

	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage execution duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"pipeline", "stage"},
	)

	pipelineRuns := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Total number of pipeline runs",
		},
		[]string{"pipeline", "status"},
	)

	pipelineDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Pipeline run duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"pipeline"},
	)

	reflectionsCompleted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reflections_completed_total",
			Help:      "Total number of completed reflection cycles",
		},
	)

	reflectionsFailed := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reflections_failed_total",
			Help:      "Total number of failed reflection cycles",
		},
	)

	cyclesCompleted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consolidation_cycles_completed_total",
			Help:      "Total number of completed consolidation cycles",
		},
	)

	cyclesFailed := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consolidation_cycles_failed_total",
			Help:      "Total number of failed consolidation cycles",
		},
	)

	recordsConsolidated := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_consolidated_total",
			Help:      "Total number of consolidated records created",
		},
	)

	groupsFormed := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "groups_formed_total",
			Help:      "Total number of candidate groups formed by clustering",
		},
	)

	collaboratorCalls := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collaborator_calls_total",
			Help:      "Total number of external collaborator calls",
		},
		[]string{"collaborator", "status"},
	)

	collaboratorDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "collaborator_call_duration_seconds",
			Help:      "External collaborator call duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"collaborator"},
	)

	cacheHits := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
	)

	cacheMisses := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
	)

	registry.MustRegister(
		stageExecutions, stageDuration, pipelineRuns, pipelineDuration,
		reflectionsCompleted, reflectionsFailed,
		cyclesCompleted, cyclesFailed, recordsConsolidated, groupsFormed,
		collaboratorCalls, collaboratorDuration,
		cacheHits, cacheMisses,
	)

	return &Collector{
		registry:             registry,
		StageExecutions:      stageExecutions,
		StageDuration:        stageDuration,
		PipelineRuns:         pipelineRuns,
		PipelineDuration:     pipelineDuration,
		ReflectionsCompleted: reflectionsCompleted,
		ReflectionsFailed:    reflectionsFailed,
		CyclesCompleted:      cyclesCompleted,
		CyclesFailed:         cyclesFailed,
		RecordsConsolidated:  recordsConsolidated,
		GroupsFormed:         groupsFormed,
		CollaboratorCalls:    collaboratorCalls,
		CollaboratorDuration: collaboratorDuration,
		CacheHits:            cacheHits,
		CacheMisses:          cacheMisses,
	}
}

// Registry exposes the collector's registry for a metrics endpoint or pushes
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveStage records one stage execution
func (c *Collector) ObserveStage(pipeline, stage, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.StageExecutions.WithLabelValues(pipeline, stage, status).Inc()
	c.StageDuration.WithLabelValues(pipeline, stage).Observe(duration.Seconds())
}

// ObservePipeline records one pipeline run
func (c *Collector) ObservePipeline(pipeline, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.PipelineRuns.WithLabelValues(pipeline, status).Inc()
	c.PipelineDuration.WithLabelValues(pipeline).Observe(duration.Seconds())
}

// ObserveReflection records the outcome of one reflection cycle
func (c *Collector) ObserveReflection(success bool) {
	if c == nil {
		return
	}
	if success {
		c.ReflectionsCompleted.Inc()
	} else {
		c.ReflectionsFailed.Inc()
	}
}

// ObserveCycle records the outcome of one consolidation cycle along with
// the number of groups formed and records created
func (c *Collector) ObserveCycle(success bool, groups, records int) {
	if c == nil {
		return
	}
	if success {
		c.CyclesCompleted.Inc()
	} else {
		c.CyclesFailed.Inc()
	}
	c.GroupsFormed.Add(float64(groups))
	c.RecordsConsolidated.Add(float64(records))
}

// ObserveCache records a cache lookup outcome
func (c *Collector) ObserveCache(hit bool) {
	if c == nil {
		return
	}
	if hit {
		c.CacheHits.Inc()
	} else {
		c.CacheMisses.Inc()
	}
}

// ObserveCollaborator records one external collaborator call
func (c *Collector) ObserveCollaborator(name string, err error, duration time.Duration) {
	if c == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	c.CollaboratorCalls.WithLabelValues(name, status).Inc()
	c.CollaboratorDuration.WithLabelValues(name).Observe(duration.Seconds())
}
