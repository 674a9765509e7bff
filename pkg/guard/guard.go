package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"grokflow/guardrails/pkg/config"
	"grokflow/guardrails/pkg/constraint"
	"grokflow/guardrails/pkg/match"
	"grokflow/guardrails/pkg/storage"
	"grokflow/guardrails/pkg/store"
	"grokflow/guardrails/pkg/supervisor"
	"grokflow/guardrails/pkg/telemetry/metrics"
	"grokflow/guardrails/pkg/template"
)

// ErrNotWatchable is returned by NewWatcher for backends without files.
var ErrNotWatchable = errors.New("storage backend cannot be watched")

// Service wires the constraint store, match engine, supervisor, template
// manager and metrics collector over one storage backend. It is the API used
// by the CLI and by embedding applications.
type Service struct {
	config     *config.Config
	backend    storage.Backend
	store      *store.Store
	supervisor *supervisor.Supervisor
	engine     *match.Engine
	templates  *template.Manager
	metrics    *metrics.Collector
	logger     *slog.Logger
}

type options struct {
	logger  *slog.Logger
	backend storage.Backend
	now     func() time.Time
	idGen   func() string
}

// Option configures Open.
type Option func(*options)

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithBackend uses backend instead of building one from the storage
// configuration. The service takes ownership and closes it.
func WithBackend(backend storage.Backend) Option {
	return func(o *options) { o.backend = backend }
}

// WithClock replaces time.Now in the store and supervisor.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator replaces the random constraint id generator.
func WithIDGenerator(gen func() string) Option {
	return func(o *options) { o.idGen = gen }
}

// Open builds a Service from cfg. A nil cfg uses config.Default().
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	backend := o.backend
	if backend == nil {
		var err error
		backend, err = storage.New(StorageConfig(cfg.Storage), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open storage: %w", err)
		}
	}

	s, err := build(ctx, cfg, backend, o, logger)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return s, nil
}

func build(ctx context.Context, cfg *config.Config, backend storage.Backend, o *options, logger *slog.Logger) (*Service, error) {
	storeOpts := []store.Option{store.WithLogger(logger)}
	supOpts := []supervisor.Option{supervisor.WithLogger(logger)}
	if o.now != nil {
		storeOpts = append(storeOpts, store.WithClock(o.now))
		supOpts = append(supOpts, supervisor.WithClock(o.now))
	}
	if o.idGen != nil {
		storeOpts = append(storeOpts, store.WithIDGenerator(o.idGen))
	}

	st, err := store.New(ctx, backend, storeOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load constraints: %w", err)
	}

	sup, err := supervisor.New(ctx, backend, st, SupervisorConfig(cfg.Supervisor), supOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load analytics: %w", err)
	}

	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)

	engine, err := match.NewEngine(st,
		match.WithRecorder(sup),
		match.WithObserver(collector),
		match.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	templates, err := template.NewManager(st, TemplatesConfig(cfg.Templates), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create template manager: %w", err)
	}

	logger.Debug("guardrails service opened",
		"backend", backend.Name(),
		"constraints", len(st.IDs()),
	)

	return &Service{
		config:     cfg,
		backend:    backend,
		store:      st,
		supervisor: sup,
		engine:     engine,
		templates:  templates,
		metrics:    collector,
		logger:     logger.With("component", "guard"),
	}, nil
}

// Close releases the storage backend.
func (s *Service) Close() error {
	return s.backend.Close()
}

// Config returns the configuration the service was opened with.
func (s *Service) Config() *config.Config { return s.config }

// Store returns the constraint store.
func (s *Service) Store() *store.Store { return s.store }

// Supervisor returns the analytics supervisor.
func (s *Service) Supervisor() *supervisor.Supervisor { return s.supervisor }

// Engine returns the match engine.
func (s *Service) Engine() *match.Engine { return s.engine }

// Templates returns the template manager.
func (s *Service) Templates() *template.Manager { return s.templates }

// Metrics returns the Prometheus collector.
func (s *Service) Metrics() *metrics.Collector { return s.metrics }

// Add validates and stores c, returning its new id.
func (s *Service) Add(ctx context.Context, c *constraint.Constraint) (string, error) {
	return s.store.Add(ctx, c)
}

// Remove deletes the constraint identified by idPrefix together with its
// analytics record. The removed constraint is returned even when dropping
// the analytics fails; the next health sweep prunes the orphan.
func (s *Service) Remove(ctx context.Context, idPrefix string) (*constraint.Constraint, error) {
	removed, err := s.store.Delete(ctx, idPrefix)
	if err != nil {
		return nil, err
	}
	if err := s.supervisor.Forget(ctx, removed.ID); err != nil {
		s.logger.Warn("failed to drop analytics of removed constraint", "id", removed.ID, "error", err)
		return removed, fmt.Errorf("constraint %s removed but its analytics were kept: %w", removed.ID, err)
	}
	return removed, nil
}

// Enable turns the identified constraint on.
func (s *Service) Enable(ctx context.Context, idPrefix string) error {
	return s.store.Enable(ctx, idPrefix)
}

// Disable turns the identified constraint off.
func (s *Service) Disable(ctx context.Context, idPrefix string) error {
	return s.store.Disable(ctx, idPrefix)
}

// Get resolves idPrefix to a constraint.
func (s *Service) Get(idPrefix string) (*constraint.Constraint, error) {
	return s.store.Resolve(idPrefix)
}

// List returns the constraints in insertion order.
func (s *Service) List(enabledOnly bool) []*constraint.Constraint {
	return s.store.List(enabledOnly)
}

// Stats summarizes the constraint set.
func (s *Service) Stats() store.Stats {
	return s.store.Stats()
}

// Check evaluates query and records a trigger event for each fired
// constraint.
func (s *Service) Check(ctx context.Context, query string, evalCtx map[string]string) *match.Result {
	return s.engine.Evaluate(ctx, query, evalCtx)
}

// Feedback labels the latest trigger of the identified constraint.
func (s *Service) Feedback(ctx context.Context, idPrefix string, label constraint.Feedback) error {
	c, err := s.store.Resolve(idPrefix)
	if err != nil {
		return err
	}
	return s.supervisor.Feedback(ctx, c.ID, label)
}

// Health returns the health report of the identified constraint.
func (s *Service) Health(idPrefix string) (*supervisor.HealthReport, error) {
	c, err := s.store.Resolve(idPrefix)
	if err != nil {
		return nil, err
	}
	return s.supervisor.Health(c.ID)
}

// Suggest returns ranked improvements for the identified constraint.
func (s *Service) Suggest(idPrefix string) ([]supervisor.Suggestion, error) {
	c, err := s.store.Resolve(idPrefix)
	if err != nil {
		return nil, err
	}
	return s.supervisor.SuggestImprovements(c.ID)
}

// Mine proposes new constraints from a query history.
func (s *Service) Mine(history []string) []supervisor.Candidate {
	return s.supervisor.SuggestNewConstraints(history)
}

// Dashboard partitions all constraints by health and publishes the result
// to the metrics collector.
func (s *Service) Dashboard() *supervisor.Dashboard {
	d := s.supervisor.Dashboard()
	s.metrics.ObserveDashboard(d)
	return d
}

// Export bundles the identified constraints, or all when ids is empty.
func (s *Service) Export(ids ...string) (*template.Bundle, error) {
	return s.templates.Export(ids...)
}

// Import adds every entry of b, or none when any entry is invalid.
func (s *Service) Import(ctx context.Context, b *template.Bundle) ([]string, error) {
	return s.templates.Import(ctx, b)
}

// Ping checks that the backend can be read.
func (s *Service) Ping(ctx context.Context) error {
	_, err := s.backend.LoadConstraints(ctx)
	return err
}

// Reload reloads constraints and analytics from the backend.
func (s *Service) Reload(ctx context.Context) error {
	if err := s.store.Reload(ctx); err != nil {
		return err
	}
	return s.supervisor.Reload(ctx)
}

// NewScheduler creates the periodic health sweep for the configured
// schedule, publishing to the metrics collector.
func (s *Service) NewScheduler() *supervisor.Scheduler {
	return supervisor.NewScheduler(s.supervisor, s.config.Supervisor.SweepSchedule, s.metrics, s.logger)
}

// NewWatcher creates a watcher over the file backend's directory. Call
// Watch with the service's Reload.
func (s *Service) NewWatcher() (*store.Watcher, error) {
	fb, ok := s.backend.(*storage.FileBackend)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotWatchable, s.backend.Name())
	}
	return store.NewWatcher(WatcherConfig(s.config.Watch, fb.Dir()), s.logger)
}
