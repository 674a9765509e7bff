package storage

import (
	"context"
	"fmt"
	"log/slog"

	"grokflow/guardrails/pkg/constraint"
)

// Backend persists the constraint and analytics collections. The two
// collections are loaded and saved independently so corruption of one never
// affects the other.
//
// Load methods return an empty slice and a nil error when nothing has been
// saved yet. Unreadable data is reported as a *constraint.StorageError that
// wraps constraint.ErrCorrupt.
//
// Update methods run a read-modify-write cycle under an exclusive lock that
// also excludes other processes sharing the same storage. The mutation always
// sees the collection as currently persisted, never a cached copy.
type Backend interface {
	// LoadConstraints returns the persisted constraints in insertion order.
	LoadConstraints(ctx context.Context) ([]*constraint.Constraint, error)

	// SaveConstraints replaces the persisted constraint collection.
	SaveConstraints(ctx context.Context, constraints []*constraint.Constraint) error

	// LoadAnalytics returns the persisted analytics records.
	LoadAnalytics(ctx context.Context) ([]*constraint.AnalyticsRecord, error)

	// SaveAnalytics replaces the persisted analytics collection.
	SaveAnalytics(ctx context.Context, records []*constraint.AnalyticsRecord) error

	// UpdateConstraints reloads the constraints, applies fn and saves the
	// result, returning the saved collection. An error from fn aborts the
	// update and is returned as is.
	UpdateConstraints(ctx context.Context, fn ConstraintsMutation) ([]*constraint.Constraint, error)

	// UpdateAnalytics is UpdateConstraints for the analytics collection.
	UpdateAnalytics(ctx context.Context, fn AnalyticsMutation) ([]*constraint.AnalyticsRecord, error)

	// Name identifies the backend in logs and errors.
	Name() string

	// Close releases backend resources.
	Close() error
}

// ConstraintsMutation derives the next constraint collection from the
// persisted one. It may modify current freely.
type ConstraintsMutation func(current []*constraint.Constraint) ([]*constraint.Constraint, error)

// AnalyticsMutation derives the next analytics collection from the persisted
// one. It may modify current freely.
type AnalyticsMutation func(current []*constraint.AnalyticsRecord) ([]*constraint.AnalyticsRecord, error)

// Backend types.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config selects and configures a backend.
type Config struct {
	// Backend is one of "file", "sqlite" or "memory".
	Backend string

	// Dir is the directory holding the JSON files of the file backend.
	Dir string

	// SQLite configures the sqlite backend.
	SQLite *SQLiteConfig
}

// New creates the backend described by cfg.
func New(cfg *Config, logger *slog.Logger) (Backend, error) {
	if cfg == nil {
		return nil, fmt.Errorf("storage config cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Backend {
	case BackendFile, "":
		return NewFileBackend(cfg.Dir, logger)
	case BackendSQLite:
		return NewSQLiteBackend(cfg.SQLite, logger)
	case BackendMemory:
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// loadForUpdate treats a corrupt collection as empty so an update can replace
// it, matching what a fresh load does. Other load errors are returned.
func loadForUpdate[T any](loaded []T, err error) ([]T, error) {
	if err != nil {
		if constraint.IsCorrupt(err) {
			return []T{}, nil
		}
		return nil, err
	}
	return loaded, nil
}

func cloneConstraints(in []*constraint.Constraint) []*constraint.Constraint {
	out := make([]*constraint.Constraint, 0, len(in))
	for _, c := range in {
		out = append(out, c.Clone())
	}
	return out
}

func cloneRecords(in []*constraint.AnalyticsRecord) []*constraint.AnalyticsRecord {
	out := make([]*constraint.AnalyticsRecord, 0, len(in))
	for _, r := range in {
		out = append(out, r.Clone())
	}
	return out
}
