package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// HealthObserver receives the dashboard computed by each sweep.
type HealthObserver interface {
	ObserveDashboard(d *Dashboard)
}

// SweepResult is the outcome of one health sweep.
type SweepResult struct {
	Pruned    int
	Dashboard *Dashboard
}

// Sweep prunes orphaned analytics and computes the dashboard.
func (s *Supervisor) Sweep(ctx context.Context) (*SweepResult, error) {
	pruned, err := s.Prune(ctx)
	if err != nil {
		return nil, fmt.Errorf("prune analytics: %w", err)
	}
	return &SweepResult{Pruned: pruned, Dashboard: s.Dashboard()}, nil
}

// Scheduler runs periodic health sweeps on a cron schedule.
type Scheduler struct {
	supervisor *Supervisor
	schedule   string
	observer   HealthObserver
	cron       *cron.Cron
	mu         sync.Mutex
	logger     *slog.Logger
	running    bool

	// resultMu is separate from mu because Stop waits for running jobs
	// while holding mu.
	resultMu  sync.Mutex
	lastSweep *SweepResult
	lastErr   error
}

// NewScheduler creates a health sweep scheduler. An empty schedule disables
// it.
func NewScheduler(supervisor *Supervisor, schedule string, observer HealthObserver, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		supervisor: supervisor,
		schedule:   schedule,
		observer:   observer,
		cron:       cron.New(),
		logger:     logger.With("component", "supervisor.scheduler"),
	}
}

// Start begins the scheduled sweeps. It also runs one sweep immediately so
// health gauges are populated before the first tick.
//
// Common cron expressions:
//   - "*/15 * * * *" - Every 15 minutes
//   - "0 * * * *"    - Hourly
//   - "@every 5m"    - Every 5 minutes
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info("health sweep schedule not configured, skipping scheduler")
		return nil
	}
	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}

	if _, err := s.cron.AddFunc(s.schedule, func() {
		s.RunOnce(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule health sweep: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("health sweep scheduler started", "schedule", s.schedule)

	go s.RunOnce(ctx)
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// RunOnce performs a sweep and reports it to the observer.
func (s *Scheduler) RunOnce(ctx context.Context) *SweepResult {
	s.logger.Debug("starting health sweep")

	result, err := s.supervisor.Sweep(ctx)
	if err != nil {
		s.logger.Error("health sweep failed", "error", err)
		s.resultMu.Lock()
		s.lastErr = err
		s.resultMu.Unlock()
		return nil
	}

	for _, rep := range result.Dashboard.Unhealthy {
		s.logger.Warn("constraint is unhealthy",
			"id", rep.ConstraintID,
			"precision", rep.Metrics.Precision,
			"drift", rep.Metrics.Drift,
		)
	}
	if s.observer != nil {
		s.observer.ObserveDashboard(result.Dashboard)
	}

	s.resultMu.Lock()
	s.lastSweep = result
	s.lastErr = nil
	s.resultMu.Unlock()

	s.logger.Info("health sweep completed",
		"status", result.Dashboard.Status,
		"pruned", result.Pruned,
		"unhealthy", len(result.Dashboard.Unhealthy),
	)
	return result
}

// Stop stops the scheduler and waits for a running sweep to complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil && s.running {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.running = false
		s.logger.Info("health sweep scheduler stopped")
	}
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// LastSweep returns the most recent sweep result, or nil.
func (s *Scheduler) LastSweep() *SweepResult {
	s.resultMu.Lock()
	defer s.resultMu.Unlock()
	return s.lastSweep
}

// LastError returns the error of the most recent sweep, or nil when it
// succeeded.
func (s *Scheduler) LastError() error {
	s.resultMu.Lock()
	defer s.resultMu.Unlock()
	return s.lastErr
}

// NextRun returns the next scheduled sweep time.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
