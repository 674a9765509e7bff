package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3" // cgo driver, registered as "sqlite3"
	_ "modernc.org/sqlite"          // pure Go driver, registered as "sqlite"

	"grokflow/guardrails/pkg/constraint"
)

// SQLite driver names.
const (
	// DriverModernc is the pure Go driver from modernc.org/sqlite.
	DriverModernc = "sqlite"
	// DriverMattn is the cgo driver from github.com/mattn/go-sqlite3.
	DriverMattn = "sqlite3"
)

// SQLiteConfig contains configuration for the SQLite storage backend.
type SQLiteConfig struct {
	// Path is the database file path. ":memory:" creates an in-memory database.
	Path string

	// Driver is "sqlite" (modernc, default) or "sqlite3" (mattn, requires cgo).
	Driver string

	// WALMode enables Write-Ahead Logging mode.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:        "~/.grokflow/constraints.db",
		Driver:      DriverModernc,
		WALMode:     true,
		BusyTimeout: 5 * time.Second,
	}
}

// SQLiteBackend implements Backend using SQLite. Each Save replaces its
// collection inside a single transaction.
type SQLiteBackend struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteBackend opens the database and initializes the schema.
func NewSQLiteBackend(config *SQLiteConfig, logger *slog.Logger) (*SQLiteBackend, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.Path == "" {
		return nil, constraint.NewStorageError(BackendSQLite, "open", fmt.Errorf("db path cannot be empty"))
	}
	if config.Driver == "" {
		config.Driver = DriverModernc
	}
	if config.BusyTimeout == 0 {
		config.BusyTimeout = 5 * time.Second
	}

	path := config.Path
	if path != ":memory:" {
		expanded, err := ExpandHome(path)
		if err != nil {
			return nil, constraint.NewStorageError(BackendSQLite, "open", err)
		}
		path = expanded
	}

	db, err := sql.Open(config.Driver, path)
	if err != nil {
		return nil, constraint.NewStorageError(BackendSQLite, "open", err)
	}

	// SQLite only supports a single writer; one connection also keeps
	// ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteBackend{
		db:     db,
		config: config,
		logger: logger.With("component", "storage.sqlite"),
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Info("SQLite storage initialized",
		"path", path,
		"driver", config.Driver,
		"wal_mode", config.WALMode,
	)

	return s, nil
}

// initialize sets pragmas, creates the schema and verifies its version.
func (s *SQLiteBackend) initialize() error {
	if s.config.WALMode && s.config.Path != ":memory:" {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return constraint.NewStorageError(BackendSQLite, "enable_wal", err)
		}
	}

	busyTimeoutMs := s.config.BusyTimeout.Milliseconds()
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", busyTimeoutMs)); err != nil {
		return constraint.NewStorageError(BackendSQLite, "set_busy_timeout", err)
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return constraint.NewStorageError(BackendSQLite, "create_schema", err)
	}

	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return constraint.NewStorageError(BackendSQLite, "insert_schema_version", err)
	}

	var version int
	err := s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return constraint.NewStorageError(BackendSQLite, "get_schema_version", err)
	}
	if version != SchemaVersion {
		return constraint.NewStorageError(BackendSQLite, "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	s.logger.Debug("schema version verified", "version", version)
	return nil
}

// querier is the subset of *sql.DB, *sql.Tx and *sql.Conn used to read and
// write the collections.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// LoadConstraints implements Backend.
func (s *SQLiteBackend) LoadConstraints(ctx context.Context) ([]*constraint.Constraint, error) {
	return loadConstraints(ctx, s.db)
}

// SaveConstraints implements Backend.
func (s *SQLiteBackend) SaveConstraints(ctx context.Context, constraints []*constraint.Constraint) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return constraint.NewStorageError(BackendSQLite, "save_constraints", err)
	}
	defer tx.Rollback()

	if err := writeConstraints(ctx, tx, constraints); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return constraint.NewStorageError(BackendSQLite, "save_constraints", err)
	}
	return nil
}

// UpdateConstraints implements Backend.
func (s *SQLiteBackend) UpdateConstraints(ctx context.Context, fn ConstraintsMutation) ([]*constraint.Constraint, error) {
	var next []*constraint.Constraint
	err := s.immediate(ctx, "update_constraints", func(conn *sql.Conn) error {
		current, err := loadForUpdate(loadConstraints(ctx, conn))
		if err != nil {
			return err
		}
		if next, err = fn(current); err != nil {
			return err
		}
		return writeConstraints(ctx, conn, next)
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

// LoadAnalytics implements Backend.
func (s *SQLiteBackend) LoadAnalytics(ctx context.Context) ([]*constraint.AnalyticsRecord, error) {
	return loadAnalytics(ctx, s.db)
}

// SaveAnalytics implements Backend.
func (s *SQLiteBackend) SaveAnalytics(ctx context.Context, records []*constraint.AnalyticsRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return constraint.NewStorageError(BackendSQLite, "save_analytics", err)
	}
	defer tx.Rollback()

	if err := writeAnalytics(ctx, tx, records); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return constraint.NewStorageError(BackendSQLite, "save_analytics", err)
	}
	return nil
}

// UpdateAnalytics implements Backend.
func (s *SQLiteBackend) UpdateAnalytics(ctx context.Context, fn AnalyticsMutation) ([]*constraint.AnalyticsRecord, error) {
	var next []*constraint.AnalyticsRecord
	err := s.immediate(ctx, "update_analytics", func(conn *sql.Conn) error {
		current, err := loadForUpdate(loadAnalytics(ctx, conn))
		if err != nil {
			return err
		}
		if next, err = fn(current); err != nil {
			return err
		}
		return writeAnalytics(ctx, conn, next)
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

// immediate runs fn inside a BEGIN IMMEDIATE transaction, which takes the
// database write lock before the first read. Other writers, including other
// processes, wait up to the busy timeout.
func (s *SQLiteBackend) immediate(ctx context.Context, op string, fn func(conn *sql.Conn) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return constraint.NewStorageError(BackendSQLite, op, err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE;"); err != nil {
		return constraint.NewStorageError(BackendSQLite, op, err)
	}

	if err := fn(conn); err != nil {
		if _, rbErr := conn.ExecContext(context.WithoutCancel(ctx), "ROLLBACK;"); rbErr != nil {
			s.logger.Warn("rollback failed", "op", op, "error", rbErr)
		}
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT;"); err != nil {
		if _, rbErr := conn.ExecContext(context.WithoutCancel(ctx), "ROLLBACK;"); rbErr != nil {
			s.logger.Warn("rollback failed", "op", op, "error", rbErr)
		}
		return constraint.NewStorageError(BackendSQLite, op, err)
	}
	return nil
}

func loadConstraints(ctx context.Context, q querier) ([]*constraint.Constraint, error) {
	rows, err := q.QueryContext(ctx, selectConstraints)
	if err != nil {
		return nil, constraint.NewStorageError(BackendSQLite, "load_constraints", err)
	}
	defer rows.Close()

	out := []*constraint.Constraint{}
	for rows.Next() {
		var (
			c                           constraint.Constraint
			keywords, patterns, filters string
			logic, action               string
			enabled                     int
			createdAt                   string
			lastTriggered               sql.NullString
		)
		if err := rows.Scan(
			&c.ID, &c.Description, &keywords, &patterns, &logic,
			&filters, &action, &c.EnforcementMessage, &enabled,
			&c.Version, &c.TriggerCount, &createdAt, &lastTriggered,
		); err != nil {
			return nil, constraint.NewStorageError(BackendSQLite, "load_constraints", err)
		}

		if err := decodeColumns(
			column{"trigger_keywords", keywords, &c.TriggerKeywords},
			column{"trigger_patterns", patterns, &c.TriggerPatterns},
			column{"context_filters", filters, &c.ContextFilters},
		); err != nil {
			return nil, constraint.NewStorageError(BackendSQLite, "load_constraints",
				fmt.Errorf("%w: constraint %s: %v", constraint.ErrCorrupt, c.ID, err))
		}

		c.TriggerLogic = constraint.Logic(logic)
		c.EnforcementAction = constraint.Action(action)
		c.Enabled = enabled != 0
		if c.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, constraint.NewStorageError(BackendSQLite, "load_constraints",
				fmt.Errorf("%w: constraint %s: created_at: %v", constraint.ErrCorrupt, c.ID, err))
		}
		if lastTriggered.Valid {
			if t, err := time.Parse(time.RFC3339Nano, lastTriggered.String); err == nil {
				c.LastTriggeredAt = &t
			}
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, constraint.NewStorageError(BackendSQLite, "load_constraints", err)
	}
	return out, nil
}

// writeConstraints replaces the constraint rows. The caller owns the
// transaction.
func writeConstraints(ctx context.Context, q querier, constraints []*constraint.Constraint) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM constraints;"); err != nil {
		return constraint.NewStorageError(BackendSQLite, "save_constraints", err)
	}

	stmt, err := q.PrepareContext(ctx, insertConstraint)
	if err != nil {
		return constraint.NewStorageError(BackendSQLite, "save_constraints", err)
	}
	defer stmt.Close()

	for i, c := range constraints {
		keywords, _ := json.Marshal(nonNil(c.TriggerKeywords))
		patterns, _ := json.Marshal(nonNil(c.TriggerPatterns))
		filters, _ := json.Marshal(c.ContextFilters)

		var lastTriggered any
		if c.LastTriggeredAt != nil {
			lastTriggered = c.LastTriggeredAt.UTC().Format(time.RFC3339Nano)
		}

		if _, err := stmt.ExecContext(ctx,
			c.ID, i, c.Description, string(keywords), string(patterns), string(c.TriggerLogic),
			string(filters), string(c.EnforcementAction), c.EnforcementMessage, boolToInt(c.Enabled),
			c.Version, c.TriggerCount, c.CreatedAt.UTC().Format(time.RFC3339Nano), lastTriggered,
		); err != nil {
			return constraint.NewStorageError(BackendSQLite, "save_constraints", err)
		}
	}
	return nil
}

func loadAnalytics(ctx context.Context, q querier) ([]*constraint.AnalyticsRecord, error) {
	rows, err := q.QueryContext(ctx, selectAnalytics)
	if err != nil {
		return nil, constraint.NewStorageError(BackendSQLite, "load_analytics", err)
	}
	defer rows.Close()

	out := []*constraint.AnalyticsRecord{}
	for rows.Next() {
		var (
			r           constraint.AnalyticsRecord
			precision   sql.NullFloat64
			history     string
			lastUpdated string
		)
		if err := rows.Scan(
			&r.ConstraintID, &r.TruePositives, &r.FalsePositives, &r.Unlabeled,
			&r.TotalTriggers, &precision, &r.EffectivenessScore, &r.DriftScore,
			&history, &lastUpdated,
		); err != nil {
			return nil, constraint.NewStorageError(BackendSQLite, "load_analytics", err)
		}
		if err := json.Unmarshal([]byte(history), &r.History); err != nil {
			return nil, constraint.NewStorageError(BackendSQLite, "load_analytics",
				fmt.Errorf("%w: analytics %s: trigger_history: %v", constraint.ErrCorrupt, r.ConstraintID, err))
		}
		if precision.Valid {
			p := precision.Float64
			r.Precision = &p
		}
		if t, err := time.Parse(time.RFC3339Nano, lastUpdated); err == nil {
			r.LastUpdated = t
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, constraint.NewStorageError(BackendSQLite, "load_analytics", err)
	}
	return out, nil
}

// writeAnalytics replaces the analytics rows. The caller owns the
// transaction.
func writeAnalytics(ctx context.Context, q querier, records []*constraint.AnalyticsRecord) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM constraint_analytics;"); err != nil {
		return constraint.NewStorageError(BackendSQLite, "save_analytics", err)
	}

	stmt, err := q.PrepareContext(ctx, insertAnalytics)
	if err != nil {
		return constraint.NewStorageError(BackendSQLite, "save_analytics", err)
	}
	defer stmt.Close()

	for _, r := range records {
		history, err := json.Marshal(nonNil(r.History))
		if err != nil {
			return constraint.NewStorageError(BackendSQLite, "save_analytics", err)
		}
		var precision any
		if r.Precision != nil {
			precision = *r.Precision
		}
		if _, err := stmt.ExecContext(ctx,
			r.ConstraintID, r.TruePositives, r.FalsePositives, r.Unlabeled,
			r.TotalTriggers, precision, r.EffectivenessScore, r.DriftScore,
			string(history), r.LastUpdated.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return constraint.NewStorageError(BackendSQLite, "save_analytics", err)
		}
	}
	return nil
}

// Name implements Backend.
func (s *SQLiteBackend) Name() string { return BackendSQLite }

// Close closes the database.
func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}

type column struct {
	name string
	raw  string
	dst  any
}

func decodeColumns(cols ...column) error {
	for _, col := range cols {
		if col.raw == "" || col.raw == "null" {
			continue
		}
		if err := json.Unmarshal([]byte(col.raw), col.dst); err != nil {
			return fmt.Errorf("%s: %w", col.name, err)
		}
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
