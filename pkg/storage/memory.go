package storage

import (
	"context"
	"sync"

	"grokflow/guardrails/pkg/constraint"
)

// MemoryBackend implements Backend in memory. It is intended for tests and
// for embedding the engine without persistence.
type MemoryBackend struct {
	mu          sync.RWMutex
	constraints []*constraint.Constraint
	analytics   []*constraint.AnalyticsRecord
	saves       int

	// FailSaves makes every Save call fail, for exercising error paths.
	FailSaves error
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

// LoadConstraints implements Backend.
func (m *MemoryBackend) LoadConstraints(ctx context.Context) ([]*constraint.Constraint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneConstraints(m.constraints), nil
}

// SaveConstraints implements Backend.
func (m *MemoryBackend) SaveConstraints(ctx context.Context, constraints []*constraint.Constraint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSaves != nil {
		return constraint.NewStorageError(BackendMemory, "save_constraints", m.FailSaves)
	}
	m.constraints = cloneConstraints(constraints)
	m.saves++
	return nil
}

// LoadAnalytics implements Backend.
func (m *MemoryBackend) LoadAnalytics(ctx context.Context) ([]*constraint.AnalyticsRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneRecords(m.analytics), nil
}

// SaveAnalytics implements Backend.
func (m *MemoryBackend) SaveAnalytics(ctx context.Context, records []*constraint.AnalyticsRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSaves != nil {
		return constraint.NewStorageError(BackendMemory, "save_analytics", m.FailSaves)
	}
	m.analytics = cloneRecords(records)
	m.saves++
	return nil
}

// UpdateConstraints implements Backend.
func (m *MemoryBackend) UpdateConstraints(ctx context.Context, fn ConstraintsMutation) ([]*constraint.Constraint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := fn(cloneConstraints(m.constraints))
	if err != nil {
		return nil, err
	}
	if m.FailSaves != nil {
		return nil, constraint.NewStorageError(BackendMemory, "update_constraints", m.FailSaves)
	}
	m.constraints = cloneConstraints(next)
	m.saves++
	return cloneConstraints(next), nil
}

// UpdateAnalytics implements Backend.
func (m *MemoryBackend) UpdateAnalytics(ctx context.Context, fn AnalyticsMutation) ([]*constraint.AnalyticsRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := fn(cloneRecords(m.analytics))
	if err != nil {
		return nil, err
	}
	if m.FailSaves != nil {
		return nil, constraint.NewStorageError(BackendMemory, "update_analytics", m.FailSaves)
	}
	m.analytics = cloneRecords(next)
	m.saves++
	return cloneRecords(next), nil
}

// Saves returns the number of successful Save calls.
func (m *MemoryBackend) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

// Name implements Backend.
func (m *MemoryBackend) Name() string { return BackendMemory }

// Close implements Backend.
func (m *MemoryBackend) Close() error { return nil }
