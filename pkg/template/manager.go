package template

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"grokflow/guardrails/pkg/constraint"
	"grokflow/guardrails/pkg/storage"
)

// ErrNotFound is returned when a named template does not exist.
var ErrNotFound = errors.New("template not found")

// ConstraintStore is the part of the constraint store the manager needs.
// *store.Store implements it.
type ConstraintStore interface {
	Resolve(idPrefix string) (*constraint.Constraint, error)
	List(enabledOnly bool) []*constraint.Constraint
	AddAll(ctx context.Context, cs []*constraint.Constraint) ([]string, error)
}

// Config configures the template manager.
type Config struct {
	// Dir holds user and installed templates.
	// Default: ~/.grokflow/templates
	Dir string

	// InstallBuiltins writes the bundled templates into Dir when missing.
	// Default: true
	InstallBuiltins bool

	// MaxFileSize limits template files that are read.
	// Default: 1 MiB
	MaxFileSize int64
}

// DefaultConfig returns the default template configuration.
func DefaultConfig() *Config {
	return &Config{
		Dir:             "~/.grokflow/templates",
		InstallBuiltins: true,
		MaxFileSize:     DefaultMaxFileSize,
	}
}

// Manager exports constraints into bundles, imports bundles back into the
// store and manages the templates directory.
type Manager struct {
	store  ConstraintStore
	config *Config
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

// NewManager creates a template manager. When configured, the bundled
// templates are installed into the templates directory; failure to do so is
// logged and does not prevent the manager from working.
func NewManager(store ConstraintStore, config *Config, logger *slog.Logger) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("constraint store cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	dir := ""
	if config.Dir != "" {
		expanded, err := storage.ExpandHome(config.Dir)
		if err != nil {
			return nil, err
		}
		dir = expanded
	}

	m := &Manager{
		store:  store,
		config: config,
		dir:    dir,
		logger: logger.With("component", "template"),
		now:    time.Now,
	}

	if dir != "" && config.InstallBuiltins {
		if _, err := m.InstallBuiltins(); err != nil {
			m.logger.Warn("failed to install built-in templates", "dir", dir, "error", err)
		}
	}
	return m, nil
}

// Dir returns the templates directory, or "" when none is configured.
func (m *Manager) Dir() string { return m.dir }

// InstallBuiltins writes every bundled template that is missing from the
// templates directory and returns the names written.
func (m *Manager) InstallBuiltins() ([]string, error) {
	if m.dir == "" {
		return nil, fmt.Errorf("templates directory not configured")
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create templates directory: %w", err)
	}

	var installed []string
	for _, b := range Builtins() {
		path := filepath.Join(m.dir, b.Name+".json")
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := WriteFile(path, b); err != nil {
			return installed, err
		}
		installed = append(installed, b.Name)
	}
	if len(installed) > 0 {
		m.logger.Info("installed built-in templates", "dir", m.dir, "templates", installed)
	}
	return installed, nil
}

// List returns every template in the templates directory plus any built-in
// not present there, sorted by name. Unreadable files are skipped.
func (m *Manager) List() ([]Summary, error) {
	seen := make(map[string]struct{})
	var out []Summary

	if m.dir != "" {
		entries, err := os.ReadDir(m.dir)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read templates directory: %w", err)
		}
		for _, de := range entries {
			if de.IsDir() || strings.HasPrefix(de.Name(), ".") {
				continue
			}
			if _, err := FormatFor(de.Name()); err != nil {
				continue
			}
			path := filepath.Join(m.dir, de.Name())
			b, err := ReadFile(path, m.config.MaxFileSize)
			if err != nil {
				m.logger.Warn("skipping invalid template", "path", path, "error", err)
				continue
			}
			if _, dup := seen[b.Name]; dup {
				continue
			}
			seen[b.Name] = struct{}{}

			s := b.Summary()
			s.Path = path
			_, s.Builtin = Builtin(b.Name)
			out = append(out, s)
		}
	}

	for _, b := range Builtins() {
		if _, ok := seen[b.Name]; ok {
			continue
		}
		s := b.Summary()
		s.Builtin = true
		out = append(out, s)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Get returns the template called name. The templates directory takes
// precedence over the bundled templates.
func (m *Manager) Get(name string) (*Bundle, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return nil, constraint.NewValidationError("template", "invalid template name %q", name)
	}

	if m.dir != "" {
		for _, ext := range []string{".json", ".yaml", ".yml"} {
			path := filepath.Join(m.dir, name+ext)
			if _, err := os.Stat(path); err != nil {
				continue
			}
			return ReadFile(path, m.config.MaxFileSize)
		}
	}

	if b, ok := Builtin(name); ok {
		return b, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Export builds a bundle from the constraints identified by ids, or from all
// constraints when ids is empty. Each id may be a unique prefix.
func (m *Manager) Export(ids ...string) (*Bundle, error) {
	var selected []*constraint.Constraint
	if len(ids) == 0 {
		selected = m.store.List(false)
	} else {
		for _, id := range ids {
			c, err := m.store.Resolve(id)
			if err != nil {
				return nil, err
			}
			selected = append(selected, c)
		}
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("no constraints to export")
	}

	b := &Bundle{
		Version:     BundleVersion,
		Description: fmt.Sprintf("Custom constraint template (%d constraints)", len(selected)),
		Author:      "User",
		Created:     m.now().UTC().Format(time.RFC3339),
		Constraints: make([]Entry, 0, len(selected)),
	}
	for _, c := range selected {
		b.Constraints = append(b.Constraints, EntryFrom(c))
	}
	return b, nil
}

// ExportFile exports the identified constraints to path.
func (m *Manager) ExportFile(path string, ids ...string) (*Bundle, error) {
	b, err := m.Export(ids...)
	if err != nil {
		return nil, err
	}
	if err := WriteFile(path, b); err != nil {
		return nil, err
	}
	m.logger.Info("exported constraints", "path", path, "count", len(b.Constraints))
	return b, nil
}

// Import validates every entry of b and then adds them all with fresh ids.
// Nothing is added when any entry is invalid.
func (m *Manager) Import(ctx context.Context, b *Bundle) ([]string, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	cs := make([]*constraint.Constraint, 0, len(b.Constraints))
	for _, e := range b.Constraints {
		cs = append(cs, e.Constraint())
	}
	ids, err := m.store.AddAll(ctx, cs)
	if err != nil {
		return nil, fmt.Errorf("failed to import template %q: %w", b.Name, err)
	}

	m.logger.Info("imported template", "template", b.Name, "count", len(ids))
	return ids, nil
}

// ImportFile reads the bundle at path and imports it.
func (m *Manager) ImportFile(ctx context.Context, path string) (*Bundle, []string, error) {
	b, err := ReadFile(path, m.config.MaxFileSize)
	if err != nil {
		return nil, nil, err
	}
	ids, err := m.Import(ctx, b)
	return b, ids, err
}

// ImportTemplate imports the template called name.
func (m *Manager) ImportTemplate(ctx context.Context, name string) ([]string, error) {
	b, err := m.Get(name)
	if err != nil {
		return nil, err
	}
	return m.Import(ctx, b)
}
