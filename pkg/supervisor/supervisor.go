package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"grokflow/guardrails/pkg/constraint"
	"grokflow/guardrails/pkg/storage"
)

// ConstraintSource gives the supervisor read access to constraint
// definitions. *store.Store implements it.
type ConstraintSource interface {
	Get(id string) (*constraint.Constraint, error)
	List(enabledOnly bool) []*constraint.Constraint
}

// Config contains supervisor settings.
type Config struct {
	// HistorySize caps the trigger history kept per constraint.
	// Default: 50
	HistorySize int

	// Smoothing is k in effectiveness = precision * n/(n+k).
	// Default: 10
	Smoothing float64

	// DriftWindow is the number of most recent labeled events considered
	// for drift.
	// Default: 10
	DriftWindow int

	// DriftChunk is the size of the sub-windows whose precision variance
	// contributes to drift.
	// Default: 2
	DriftChunk int

	// DriftMinSamples is the number of labeled events below which drift is 0.
	// Default: 4
	DriftMinSamples int

	// Policy classifies metrics into health buckets.
	Policy HealthPolicy

	// Mining configures new-constraint discovery.
	Mining MiningConfig
}

// DefaultConfig returns the default supervisor configuration.
func DefaultConfig() *Config {
	return &Config{
		HistorySize:     50,
		Smoothing:       10,
		DriftWindow:     10,
		DriftChunk:      2,
		DriftMinSamples: 4,
		Policy:          DefaultHealthPolicy(),
		Mining:          DefaultMiningConfig(),
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.HistorySize < 1 {
		return fmt.Errorf("history size must be positive, got %d", c.HistorySize)
	}
	if c.Smoothing < 0 {
		return fmt.Errorf("smoothing must be non-negative, got %v", c.Smoothing)
	}
	if c.DriftWindow < 2 {
		return fmt.Errorf("drift window must be at least 2, got %d", c.DriftWindow)
	}
	if c.DriftChunk < 1 {
		return fmt.Errorf("drift chunk must be positive, got %d", c.DriftChunk)
	}
	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("health policy: %w", err)
	}
	return c.Mining.Validate()
}

// Supervisor is the single writer of analytics records. It records trigger
// events and feedback, derives quality metrics and persists the analytics
// collection after every change. Each change re-reads the persisted records
// under the backend's exclusive lock, so supervisors in other processes
// sharing the backend do not lose each other's events.
type Supervisor struct {
	backend     storage.Backend
	constraints ConstraintSource
	config      *Config
	logger      *slog.Logger
	now         func() time.Time

	mu      sync.RWMutex
	records map[string]*constraint.AnalyticsRecord
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a supervisor and loads persisted analytics. Unreadable
// analytics are logged and replaced by an empty collection.
func New(ctx context.Context, backend storage.Backend, constraints ConstraintSource, config *Config, opts ...Option) (*Supervisor, error) {
	if backend == nil {
		return nil, fmt.Errorf("storage backend cannot be nil")
	}
	if constraints == nil {
		return nil, fmt.Errorf("constraint source cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid supervisor config: %w", err)
	}

	s := &Supervisor{
		backend:     backend,
		constraints: constraints,
		config:      config,
		logger:      slog.Default(),
		now:         time.Now,
		records:     make(map[string]*constraint.AnalyticsRecord),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "supervisor")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.load(ctx)

	return s, nil
}

// Config returns the supervisor configuration.
func (s *Supervisor) Config() *Config { return s.config }

// Reload re-reads the analytics collection.
func (s *Supervisor) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load(ctx)
	return nil
}

// load must be called with the write lock held.
func (s *Supervisor) load(ctx context.Context) {
	records, err := s.backend.LoadAnalytics(ctx)
	if err != nil {
		s.logger.Warn("failed to load analytics, starting with an empty collection",
			"backend", s.backend.Name(),
			"corrupt", constraint.IsCorrupt(err),
			"error", err,
		)
		records = nil
	}

	s.records = s.byID(records)
	s.logger.Debug("analytics loaded", "records", len(s.records))
}

// byID keys records by constraint id, trimming over-long histories.
func (s *Supervisor) byID(records []*constraint.AnalyticsRecord) map[string]*constraint.AnalyticsRecord {
	out := make(map[string]*constraint.AnalyticsRecord, len(records))
	for _, r := range records {
		if len(r.History) > s.config.HistorySize {
			r.History = r.History[len(r.History)-s.config.HistorySize:]
		}
		out[r.ConstraintID] = r
	}
	return out
}

// errUnchanged aborts an update that has nothing to save.
var errUnchanged = errors.New("analytics unchanged")

// update applies fn to the freshly loaded records inside the backend's
// update and installs the saved collection. fn owns the map and its records
// and returns errUnchanged to skip the save. Must be called with the write
// lock held.
func (s *Supervisor) update(ctx context.Context, fn func(records map[string]*constraint.AnalyticsRecord) error) error {
	saved, err := s.backend.UpdateAnalytics(ctx, func(current []*constraint.AnalyticsRecord) ([]*constraint.AnalyticsRecord, error) {
		records := s.byID(current)
		if err := fn(records); err != nil {
			return nil, err
		}
		return sorted(records), nil
	})
	if err != nil {
		return err
	}
	s.records = s.byID(saved)
	return nil
}

// RecordTrigger appends an event for constraint id and updates its metrics.
// The analytics record is created on the first trigger.
func (s *Supervisor) RecordTrigger(ctx context.Context, id, query string, label constraint.Feedback) error {
	if !label.IsValid() {
		return constraint.NewValidationError("label", "unknown feedback label %q", label)
	}
	if _, err := s.constraints.Get(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.update(ctx, func(records map[string]*constraint.AnalyticsRecord) error {
		r := recordIn(records, id)
		r.History = append(r.History, constraint.TriggerEvent{
			ConstraintID: id,
			Query:        query,
			Timestamp:    s.now().UTC(),
			Label:        label,
		})
		r.TotalTriggers++
		countLabel(r, label, 1)
		s.refresh(r)
		return nil
	})
}

// Feedback labels the most recent unlabeled trigger of constraint id. When
// that trigger has already left the history window, the labeled event is
// appended and the trigger is moved out of the unlabeled count. Feedback
// with no pending trigger at all counts as a new labeled trigger.
func (s *Supervisor) Feedback(ctx context.Context, id string, label constraint.Feedback) error {
	if !label.IsLabeled() {
		return constraint.NewValidationError("label", "feedback must be true_positive or false_positive, got %q", label)
	}
	if _, err := s.constraints.Get(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var pending, counted bool
	err := s.update(ctx, func(records map[string]*constraint.AnalyticsRecord) error {
		r := recordIn(records, id)
		pos := -1
		for i := len(r.History) - 1; i >= 0; i-- {
			if r.History[i].Label == constraint.FeedbackUnlabeled {
				pos = i
				break
			}
		}

		pending = pos >= 0
		counted = pending || r.Unlabeled > 0
		switch {
		case pending:
			r.History[pos].Label = label
		default:
			r.History = append(r.History, constraint.TriggerEvent{
				ConstraintID: id,
				Timestamp:    s.now().UTC(),
				Label:        label,
			})
		}
		if counted {
			countLabel(r, constraint.FeedbackUnlabeled, -1)
		} else {
			r.TotalTriggers++
		}
		countLabel(r, label, 1)
		s.refresh(r)
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("feedback recorded", "id", id, "label", label, "labeled_pending", pending, "already_counted", counted)
	return nil
}

// recordIn returns the record for id in records, creating it if needed.
func recordIn(records map[string]*constraint.AnalyticsRecord, id string) *constraint.AnalyticsRecord {
	r, ok := records[id]
	if !ok {
		r = &constraint.AnalyticsRecord{
			ConstraintID: id,
			History:      []constraint.TriggerEvent{},
		}
		records[id] = r
	}
	return r
}

func countLabel(r *constraint.AnalyticsRecord, label constraint.Feedback, delta int) {
	switch label {
	case constraint.FeedbackTruePositive:
		r.TruePositives += delta
	case constraint.FeedbackFalsePositive:
		r.FalsePositives += delta
	default:
		r.Unlabeled = max(0, r.Unlabeled+delta)
	}
}

// refresh trims history and recomputes the metrics of r.
func (s *Supervisor) refresh(r *constraint.AnalyticsRecord) {
	if over := len(r.History) - s.config.HistorySize; over > 0 {
		r.History = append([]constraint.TriggerEvent(nil), r.History[over:]...)
	}
	applyMetrics(r, computeMetrics(r, s.config))
	r.LastUpdated = s.now().UTC()
}

// sorted returns records ordered by constraint id.
func sorted(records map[string]*constraint.AnalyticsRecord) []*constraint.AnalyticsRecord {
	out := make([]*constraint.AnalyticsRecord, 0, len(records))
	for _, r := range records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConstraintID < out[j].ConstraintID })
	return out
}

// Record returns a copy of the analytics record for id.
func (s *Supervisor) Record(id string) (*constraint.AnalyticsRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}

// Records returns copies of all analytics records sorted by constraint id.
func (s *Supervisor) Records() []*constraint.AnalyticsRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*constraint.AnalyticsRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConstraintID < out[j].ConstraintID })
	return out
}

// Metrics returns the derived metrics of constraint id. A constraint that
// was never triggered yields zero metrics without precision.
func (s *Supervisor) Metrics(id string) Metrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	if !ok {
		return Metrics{ConstraintID: id}
	}
	return computeMetrics(r, s.config)
}

// Forget drops the analytics record of a removed constraint. It is a no-op
// when no record exists.
func (s *Supervisor) Forget(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.update(ctx, func(records map[string]*constraint.AnalyticsRecord) error {
		if _, ok := records[id]; !ok {
			return errUnchanged
		}
		delete(records, id)
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return nil
	}
	if err != nil {
		return err
	}
	s.logger.Info("analytics record removed", "id", id)
	return nil
}

// Prune drops records whose constraint no longer exists and returns how many
// were removed.
func (s *Supervisor) Prune(ctx context.Context) (int, error) {
	existing := make(map[string]struct{})
	for _, c := range s.constraints.List(false) {
		existing[c.ID] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	err := s.update(ctx, func(records map[string]*constraint.AnalyticsRecord) error {
		for id := range records {
			if _, ok := existing[id]; !ok {
				delete(records, id)
				removed++
			}
		}
		if removed == 0 {
			return errUnchanged
		}
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	s.logger.Info("pruned orphaned analytics records", "count", removed)
	return removed, nil
}
