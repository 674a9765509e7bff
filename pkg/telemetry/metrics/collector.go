package metrics

import (
	"sync"
	"time"

	"grokflow/guardrails/pkg/config"
	"grokflow/guardrails/pkg/constraint"
	"grokflow/guardrails/pkg/match"
	"grokflow/guardrails/pkg/supervisor"

	"github.com/prometheus/client_golang/prometheus"
)

// OtherLabel replaces constraint ids once the cardinality limit is reached.
const OtherLabel = "other"

// DefaultMaxCardinality bounds the distinct constraint id label values.
const DefaultMaxCardinality = 1000

// Collector owns the guardrails Prometheus metrics. It is passed to the match
// engine as its Observer and to the health sweep as its HealthObserver.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	evaluationMetrics *EvaluationMetrics
	cacheMetrics      *CacheMetrics
	healthMetrics     *HealthMetrics

	cardinalityLimiter *CardinalityLimiter
}

var (
	_ match.Observer            = (*Collector)(nil)
	_ supervisor.HealthObserver = (*Collector)(nil)
)

// NewCollector creates a new metrics collector with the specified configuration
// and Prometheus registry. If registry is nil, a fresh registry is created so
// that several collectors can coexist in one process.
//
// Example:
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	engine := match.NewEngine(st, match.WithObserver(collector))
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = config.DefaultMetricsSubsystem
	}
	if len(cfg.EvaluationBuckets) == 0 {
		cfg.EvaluationBuckets = append([]float64(nil), config.DefaultEvaluationBuckets...)
	}

	c := &Collector{
		config:             cfg,
		registry:           registry,
		cardinalityLimiter: NewCardinalityLimiter(DefaultMaxCardinality),
	}

	c.evaluationMetrics = NewEvaluationMetrics(cfg, registry)
	c.cacheMetrics = NewCacheMetrics(cfg, registry)
	c.healthMetrics = NewHealthMetrics(cfg, registry)

	return c
}

// ObserveEvaluation records a completed Check.
func (c *Collector) ObserveEvaluation(duration time.Duration, candidates, triggers int, blocked bool) {
	if !c.config.Enabled {
		return
	}

	outcome := OutcomeAllowed
	switch {
	case blocked:
		outcome = OutcomeBlocked
	case triggers > 0:
		outcome = OutcomeTriggered
	}
	c.evaluationMetrics.RecordEvaluation(outcome, duration, candidates)
}

// ObserveTrigger records a fired constraint.
func (c *Collector) ObserveTrigger(id string, action constraint.Action) {
	if !c.config.Enabled {
		return
	}

	if !c.cardinalityLimiter.Allow(id) {
		id = OtherLabel
	}
	c.evaluationMetrics.RecordTrigger(id, string(action))
}

// ObserveRegexCache records a regex cache lookup.
func (c *Collector) ObserveRegexCache(hit bool) {
	if !c.config.Enabled {
		return
	}

	if hit {
		c.cacheMetrics.RecordHit(CacheRegex)
	} else {
		c.cacheMetrics.RecordMiss(CacheRegex)
	}
}

// ObserveDashboard publishes a health dashboard.
func (c *Collector) ObserveDashboard(d *supervisor.Dashboard) {
	if !c.config.Enabled || d == nil {
		return
	}

	c.healthMetrics.Update(d)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label values.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow checks if a label value is allowed. Returns true if the value was
// already seen or the limit has not been reached yet.
func (cl *CardinalityLimiter) Allow(label string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[label]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	// Double-check after acquiring write lock
	if _, exists := cl.current[label]; exists {
		return true
	}

	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[label] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
