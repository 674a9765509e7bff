package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"grokflow/guardrails/pkg/constraint"
)

// File names used by the file backend.
const (
	ConstraintsFile = "constraints.json"
	AnalyticsFile   = "constraint_analytics.json"

	// LockFile serializes writers across processes sharing the directory.
	LockFile = ".lock"

	// AnalyticsVersion is the schema version written into the analytics file.
	AnalyticsVersion = "1.0.0"
)

// analyticsDocument is the on-disk layout of the analytics file.
type analyticsDocument struct {
	AnalyticsVersion string                        `json:"analytics_version"`
	Updated          time.Time                     `json:"updated"`
	Records          []*constraint.AnalyticsRecord `json:"constraints"`
}

// FileBackend stores each collection as a JSON document in a directory.
// Writes go to a temporary file that is renamed over the target, so readers
// never observe a partially written document. Writers hold an advisory lock
// on LockFile, so processes sharing the directory do not lose each other's
// updates.
type FileBackend struct {
	dir         string
	mu          sync.Mutex
	lockTimeout time.Duration
	logger      *slog.Logger
}

// NewFileBackend creates a file backend rooted at dir, creating the directory
// if needed. A leading "~" is expanded to the user's home directory.
func NewFileBackend(dir string, logger *slog.Logger) (*FileBackend, error) {
	if dir == "" {
		return nil, constraint.NewStorageError(BackendFile, "open", fmt.Errorf("directory cannot be empty"))
	}
	if logger == nil {
		logger = slog.Default()
	}

	expanded, err := ExpandHome(dir)
	if err != nil {
		return nil, constraint.NewStorageError(BackendFile, "open", err)
	}
	if err := os.MkdirAll(expanded, 0o700); err != nil {
		return nil, constraint.NewStorageError(BackendFile, "open", err)
	}

	return &FileBackend{
		dir:         expanded,
		lockTimeout: DefaultLockTimeout,
		logger:      logger.With("component", "storage.file"),
	}, nil
}

// Dir returns the directory holding the collection files.
func (f *FileBackend) Dir() string { return f.dir }

// ConstraintsPath returns the path of the constraints document.
func (f *FileBackend) ConstraintsPath() string { return filepath.Join(f.dir, ConstraintsFile) }

// AnalyticsPath returns the path of the analytics document.
func (f *FileBackend) AnalyticsPath() string { return filepath.Join(f.dir, AnalyticsFile) }

// LoadConstraints implements Backend.
func (f *FileBackend) LoadConstraints(ctx context.Context) ([]*constraint.Constraint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loadConstraints()
}

// SaveConstraints implements Backend.
func (f *FileBackend) SaveConstraints(ctx context.Context, constraints []*constraint.Constraint) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	unlock, err := f.lock(ctx)
	if err != nil {
		return constraint.NewStorageError(BackendFile, "save_constraints", err)
	}
	defer unlock()
	return f.saveConstraints(constraints)
}

// UpdateConstraints implements Backend.
func (f *FileBackend) UpdateConstraints(ctx context.Context, fn ConstraintsMutation) ([]*constraint.Constraint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	unlock, err := f.lock(ctx)
	if err != nil {
		return nil, constraint.NewStorageError(BackendFile, "update_constraints", err)
	}
	defer unlock()

	current, err := loadForUpdate(f.loadConstraints())
	if err != nil {
		return nil, err
	}
	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	if err := f.saveConstraints(next); err != nil {
		return nil, err
	}
	return next, nil
}

// LoadAnalytics implements Backend.
func (f *FileBackend) LoadAnalytics(ctx context.Context) ([]*constraint.AnalyticsRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loadAnalytics()
}

// SaveAnalytics implements Backend.
func (f *FileBackend) SaveAnalytics(ctx context.Context, records []*constraint.AnalyticsRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	unlock, err := f.lock(ctx)
	if err != nil {
		return constraint.NewStorageError(BackendFile, "save_analytics", err)
	}
	defer unlock()
	return f.saveAnalytics(records)
}

// UpdateAnalytics implements Backend.
func (f *FileBackend) UpdateAnalytics(ctx context.Context, fn AnalyticsMutation) ([]*constraint.AnalyticsRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	unlock, err := f.lock(ctx)
	if err != nil {
		return nil, constraint.NewStorageError(BackendFile, "update_analytics", err)
	}
	defer unlock()

	current, err := loadForUpdate(f.loadAnalytics())
	if err != nil {
		return nil, err
	}
	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	if err := f.saveAnalytics(next); err != nil {
		return nil, err
	}
	return next, nil
}

// loadConstraints must be called with f.mu held.
func (f *FileBackend) loadConstraints() ([]*constraint.Constraint, error) {
	var out []*constraint.Constraint
	found, err := f.readJSON(f.ConstraintsPath(), &out)
	if err != nil {
		return nil, constraint.NewStorageError(BackendFile, "load_constraints", err)
	}
	if !found {
		return []*constraint.Constraint{}, nil
	}

	// Drop null entries left by hand edits.
	kept := out[:0]
	for _, c := range out {
		if c != nil {
			kept = append(kept, c)
		}
	}
	return kept, nil
}

// saveConstraints must be called with f.mu and the lock file held.
func (f *FileBackend) saveConstraints(constraints []*constraint.Constraint) error {
	if constraints == nil {
		constraints = []*constraint.Constraint{}
	}
	if err := f.writeJSON(f.ConstraintsPath(), constraints); err != nil {
		return constraint.NewStorageError(BackendFile, "save_constraints", err)
	}
	return nil
}

// loadAnalytics must be called with f.mu held.
func (f *FileBackend) loadAnalytics() ([]*constraint.AnalyticsRecord, error) {
	var doc analyticsDocument
	found, err := f.readJSON(f.AnalyticsPath(), &doc)
	if err != nil {
		return nil, constraint.NewStorageError(BackendFile, "load_analytics", err)
	}
	if !found {
		return []*constraint.AnalyticsRecord{}, nil
	}

	if doc.AnalyticsVersion != AnalyticsVersion {
		f.logger.Warn("analytics schema version differs, loading as-is",
			"found", doc.AnalyticsVersion,
			"expected", AnalyticsVersion,
		)
	}

	records := make([]*constraint.AnalyticsRecord, 0, len(doc.Records))
	for _, r := range doc.Records {
		if r != nil && r.ConstraintID != "" {
			records = append(records, r)
		}
	}
	return records, nil
}

// saveAnalytics must be called with f.mu and the lock file held.
func (f *FileBackend) saveAnalytics(records []*constraint.AnalyticsRecord) error {
	if records == nil {
		records = []*constraint.AnalyticsRecord{}
	}
	doc := analyticsDocument{
		AnalyticsVersion: AnalyticsVersion,
		Updated:          time.Now().UTC(),
		Records:          records,
	}
	if err := f.writeJSON(f.AnalyticsPath(), doc); err != nil {
		return constraint.NewStorageError(BackendFile, "save_analytics", err)
	}
	return nil
}

// Name implements Backend.
func (f *FileBackend) Name() string { return BackendFile }

// Close implements Backend.
func (f *FileBackend) Close() error { return nil }

// readJSON decodes path into v. A missing file reports found=false. A file
// that cannot be decoded is moved aside to "<path>.corrupt" so the next save
// does not destroy it, and ErrCorrupt is returned.
func (f *FileBackend) readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return false, nil
	}

	if err := json.Unmarshal(data, v); err != nil {
		aside := path + ".corrupt"
		if renameErr := os.Rename(path, aside); renameErr != nil {
			f.logger.Warn("failed to move corrupt file aside", "path", path, "error", renameErr)
		} else {
			f.logger.Warn("moved corrupt file aside", "path", path, "moved_to", aside)
		}
		return false, fmt.Errorf("%w: %s: %v", constraint.ErrCorrupt, filepath.Base(path), err)
	}
	return true, nil
}

// writeJSON atomically replaces path with the JSON encoding of v.
func (f *FileBackend) writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// ExpandHome replaces a leading "~" in path with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
