package match

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"grokflow/guardrails/pkg/constraint"
	"grokflow/guardrails/pkg/store"
)

// CandidateSource narrows the constraint set for a query. The returned
// constraints must include every enabled constraint that could fire and are
// treated as read-only.
type CandidateSource interface {
	Candidates(query string) []*constraint.Constraint
}

// TriggerCounter persists trigger counts for fired constraints.
type TriggerCounter interface {
	RecordTriggers(ctx context.Context, ids []string) error
}

// Recorder receives one event per fired constraint.
type Recorder interface {
	RecordTrigger(ctx context.Context, id, query string, label constraint.Feedback) error
}

// Observer receives evaluation measurements.
type Observer interface {
	ObserveEvaluation(duration time.Duration, candidates, triggers int, blocked bool)
	ObserveTrigger(id string, action constraint.Action)
	ObserveRegexCache(hit bool)
}

// Trigger describes one fired constraint.
type Trigger struct {
	ConstraintID    string            `json:"constraint_id"`
	Description     string            `json:"description"`
	Action          constraint.Action `json:"action"`
	Message         string            `json:"message"`
	MatchedKeywords []string          `json:"matched_keywords,omitempty"`
	MatchedPatterns []string          `json:"matched_patterns,omitempty"`
}

// Result is the outcome of evaluating a query.
type Result struct {
	Triggers             []Trigger     `json:"triggers"`
	Blocked              bool          `json:"blocked"`
	RequiresConfirmation bool          `json:"requires_confirmation"`
	Candidates           int           `json:"candidates"`
	Duration             time.Duration `json:"duration_ns"`
}

// Fired reports whether any constraint fired.
func (r *Result) Fired() bool { return len(r.Triggers) > 0 }

// IDs returns the ids of the fired constraints in evaluation order.
func (r *Result) IDs() []string {
	ids := make([]string, 0, len(r.Triggers))
	for _, t := range r.Triggers {
		ids = append(ids, t.ConstraintID)
	}
	return ids
}

// HighestAction returns the most severe action among the triggers, or "".
func (r *Result) HighestAction() constraint.Action {
	var highest constraint.Action
	for _, t := range r.Triggers {
		if t.Action.Severity() > highest.Severity() {
			highest = t.Action
		}
	}
	return highest
}

// Engine evaluates queries against constraints.
type Engine struct {
	source   CandidateSource
	counter  TriggerCounter
	recorder Recorder
	observer Observer
	cache    *RegexCache
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithTriggerCounter sets where trigger counts are persisted. When the
// candidate source also implements TriggerCounter it is used by default.
func WithTriggerCounter(c TriggerCounter) Option {
	return func(e *Engine) { e.counter = c }
}

// WithRecorder sets the trigger event recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithRegexCache replaces the engine's private regex cache.
func WithRegexCache(c *RegexCache) Option {
	return func(e *Engine) {
		if c != nil {
			e.cache = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates an engine reading candidates from source.
func NewEngine(source CandidateSource, opts ...Option) (*Engine, error) {
	if source == nil {
		return nil, fmt.Errorf("candidate source cannot be nil")
	}

	e := &Engine{
		source: source,
		cache:  NewRegexCache(),
		logger: slog.Default(),
	}
	if counter, ok := source.(TriggerCounter); ok {
		e.counter = counter
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "match")

	return e, nil
}

// Cache returns the engine's regex cache.
func (e *Engine) Cache() *RegexCache { return e.cache }

// Evaluate matches query against the enabled constraints, then records a
// trigger for every fired constraint. It never fails: a constraint that
// cannot be evaluated is logged and skipped, and recording failures are
// logged without affecting the result.
func (e *Engine) Evaluate(ctx context.Context, query string, evalCtx map[string]string) *Result {
	result := e.Match(query, evalCtx)
	if !result.Fired() {
		return result
	}

	ids := result.IDs()
	if e.counter != nil {
		if err := e.counter.RecordTriggers(ctx, ids); err != nil {
			e.logger.Warn("failed to record trigger counts", "ids", ids, "error", err)
		}
	}
	if e.recorder != nil {
		for _, id := range ids {
			if err := e.recorder.RecordTrigger(ctx, id, query, constraint.FeedbackUnlabeled); err != nil {
				e.logger.Warn("failed to record trigger event", "id", id, "error", err)
			}
		}
	}
	return result
}

// Match evaluates query without recording anything.
func (e *Engine) Match(query string, evalCtx map[string]string) *Result {
	start := time.Now()

	candidates := e.source.Candidates(query)
	folded := store.Fold(query)

	result := &Result{
		Triggers:   []Trigger{},
		Candidates: len(candidates),
	}

	for _, c := range candidates {
		trigger, fired := e.evaluate(c, query, folded, evalCtx)
		if !fired {
			continue
		}
		result.Triggers = append(result.Triggers, trigger)

		switch trigger.Action {
		case constraint.ActionBlock:
			result.Blocked = true
		case constraint.ActionRequireAction:
			result.RequiresConfirmation = true
		}
		if e.observer != nil {
			e.observer.ObserveTrigger(trigger.ConstraintID, trigger.Action)
		}
	}

	result.Duration = time.Since(start)
	if e.observer != nil {
		e.observer.ObserveEvaluation(result.Duration, result.Candidates, len(result.Triggers), result.Blocked)
	}

	e.logger.Debug("query evaluated",
		"candidates", result.Candidates,
		"triggers", len(result.Triggers),
		"blocked", result.Blocked,
		"duration_us", result.Duration.Microseconds(),
	)
	return result
}

// evaluate decides whether c fires for query. A panic while evaluating c is
// logged and treated as "did not fire".
func (e *Engine) evaluate(c *constraint.Constraint, query, folded string, evalCtx map[string]string) (trigger Trigger, fired bool) {
	defer func() {
		if r := recover(); r != nil {
			id := ""
			if c != nil {
				id = c.ID
			}
			e.logger.Error("constraint evaluation failed, skipping",
				"id", id,
				"panic", r,
			)
			fired = false
		}
	}()

	if !c.Enabled {
		return Trigger{}, false
	}

	if c.IsLegacy() {
		keywords := e.matchKeywords(c.TriggerKeywords, folded)
		if len(keywords) == 0 {
			return Trigger{}, false
		}
		return newTrigger(c, keywords, nil), true
	}

	if !c.ContextFilters.Allows(evalCtx) {
		return Trigger{}, false
	}

	keywords := e.matchKeywords(c.TriggerKeywords, folded)
	patterns := e.matchPatterns(c.TriggerPatterns, query, folded)

	total := len(c.TriggerKeywords) + len(c.TriggerPatterns)
	hits := len(keywords) + len(patterns)

	switch c.TriggerLogic {
	case constraint.LogicOR:
		fired = hits > 0
	case constraint.LogicAND:
		fired = total > 0 && hits == total
	case constraint.LogicNOT:
		fired = total > 0 && hits == 0
	default:
		e.logger.Warn("unknown trigger logic, skipping", "id", c.ID, "logic", c.TriggerLogic)
		return Trigger{}, false
	}
	if !fired {
		return Trigger{}, false
	}
	return newTrigger(c, keywords, patterns), true
}

func (e *Engine) matchKeywords(keywords []string, folded string) []string {
	var matched []string
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(folded, store.Fold(kw)) {
			matched = append(matched, kw)
		}
	}
	return matched
}

func (e *Engine) matchPatterns(patterns []string, query, folded string) []string {
	var matched []string
	for _, pattern := range patterns {
		compiled, hit := e.cache.get(pattern)
		if e.observer != nil {
			e.observer.ObserveRegexCache(hit)
		}
		if !hit && compiled.err != nil {
			e.logger.Warn("invalid trigger pattern, matching it literally",
				"pattern", pattern,
				"error", compiled.err,
			)
		}
		if compiled.match(query, folded) {
			matched = append(matched, pattern)
		}
	}
	return matched
}

func newTrigger(c *constraint.Constraint, keywords, patterns []string) Trigger {
	return Trigger{
		ConstraintID:    c.ID,
		Description:     c.Description,
		Action:          c.EnforcementAction,
		Message:         c.Message(),
		MatchedKeywords: keywords,
		MatchedPatterns: patterns,
	}
}
