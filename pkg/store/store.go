package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"grokflow/guardrails/pkg/constraint"
	"grokflow/guardrails/pkg/storage"
)

// MinPrefixLength is the shortest id prefix accepted by Resolve.
const MinPrefixLength = 4

// idLength is the number of hex characters in a generated id.
const idLength = 8

// maxIDAttempts bounds id generation retries on collision.
const maxIDAttempts = 16

// errUnchanged aborts an update that has nothing to save.
var errUnchanged = errors.New("constraint set unchanged")

// Store is the single writer of constraint definitions. Every mutating call
// re-reads the persisted collection under the backend's exclusive lock,
// applies its change, saves and rebuilds the index before returning, so
// stores in other processes sharing the backend do not lose each other's
// writes.
//
// Constraint pointers held by the store are never modified in place: a
// mutation replaces the pointer with an updated copy. Pointers returned by
// Candidates can therefore be read without holding the lock.
type Store struct {
	backend storage.Backend
	logger  *slog.Logger
	newID   func() string
	now     func() time.Time

	mu          sync.RWMutex
	constraints []*constraint.Constraint
	invalid     []string
	index       *Index
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithIDGenerator replaces the random id generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a store over backend and loads the persisted constraints.
// Unreadable persisted state is logged and replaced by an empty set.
func New(ctx context.Context, backend storage.Backend, opts ...Option) (*Store, error) {
	if backend == nil {
		return nil, fmt.Errorf("storage backend cannot be nil")
	}

	s := &Store{
		backend: backend,
		logger:  slog.Default(),
		newID:   randomID,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "store")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.load(ctx)

	return s, nil
}

// Reload re-reads the backend, replacing the in-memory set.
func (s *Store) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load(ctx)
	return nil
}

// load must be called with the write lock held.
func (s *Store) load(ctx context.Context) {
	loaded, err := s.backend.LoadConstraints(ctx)
	if err != nil {
		s.logger.Warn("failed to load constraints, starting with an empty set",
			"backend", s.backend.Name(),
			"corrupt", constraint.IsCorrupt(err),
			"error", err,
		)
		loaded = nil
	}

	kept := s.prepare(loaded)
	for _, c := range kept {
		if err := constraint.Validate(c); err != nil {
			s.logger.Warn("loaded constraint is invalid, excluding it from matching",
				"id", c.ID,
				"error", err,
			)
		}
	}

	s.commit(kept)
	s.logger.Debug("constraints loaded", "count", len(kept), "indexed_terms", s.index.Size())
}

// prepare drops persisted entries without a usable id and normalizes the
// rest.
func (s *Store) prepare(loaded []*constraint.Constraint) []*constraint.Constraint {
	kept := make([]*constraint.Constraint, 0, len(loaded))
	seen := make(map[string]struct{}, len(loaded))
	for _, c := range loaded {
		if c.ID == "" {
			s.logger.Warn("skipping persisted constraint without id", "description", c.Description)
			continue
		}
		if _, dup := seen[c.ID]; dup {
			s.logger.Warn("skipping duplicate persisted constraint", "id", c.ID)
			continue
		}
		seen[c.ID] = struct{}{}

		if c.Version == 0 {
			c.Version = constraint.VersionLegacy
		}
		c.Normalize()
		kept = append(kept, c)
	}
	return kept
}

// commit installs cs as the current set and rebuilds the index. Must be
// called with the write lock held.
func (s *Store) commit(cs []*constraint.Constraint) {
	s.constraints = cs
	s.reindex()
}

// reindex builds the index over the valid constraints only. Invalid records,
// typically hand edits, stay listable and removable but never match. Must be
// called with the write lock held.
func (s *Store) reindex() {
	valid := make([]*constraint.Constraint, 0, len(s.constraints))
	s.invalid = nil
	for _, c := range s.constraints {
		if constraint.Validate(c) != nil {
			s.invalid = append(s.invalid, c.ID)
			continue
		}
		valid = append(valid, c)
	}
	s.index = BuildIndex(valid)
}

// RebuildIndex recomputes the keyword index from the current set.
func (s *Store) RebuildIndex() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reindex()
}

// Invalid returns the ids of constraints excluded from matching because they
// fail validation.
func (s *Store) Invalid() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.invalid)
}

// update applies fn to the freshly loaded collection inside the backend's
// update and commits the saved result. fn owns the slice and its elements.
// It returns errUnchanged to skip the save. Must be called with the write
// lock held.
func (s *Store) update(ctx context.Context, fn func(cs []*constraint.Constraint) ([]*constraint.Constraint, error)) error {
	saved, err := s.backend.UpdateConstraints(ctx, func(current []*constraint.Constraint) ([]*constraint.Constraint, error) {
		return fn(s.prepare(current))
	})
	if errors.Is(err, errUnchanged) {
		return nil
	}
	if err != nil {
		return err
	}
	s.commit(saved)
	return nil
}

// Add validates c, assigns it a fresh id and persists it. The caller's value
// is not modified.
func (s *Store) Add(ctx context.Context, c *constraint.Constraint) (string, error) {
	ids, err := s.AddAll(ctx, []*constraint.Constraint{c})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// AddAll adds every constraint in cs with a single save. Either all are added
// or, when any fails validation, none is.
func (s *Store) AddAll(ctx context.Context, cs []*constraint.Constraint) ([]string, error) {
	added := make([]*constraint.Constraint, 0, len(cs))
	for i, c := range cs {
		if c == nil {
			return nil, constraint.NewValidationError("", "constraint %d is nil", i)
		}
		cp := c.Clone()
		cp.Normalize()
		if err := constraint.Validate(cp); err != nil {
			if len(cs) > 1 {
				return nil, fmt.Errorf("constraint %d (%q): %w", i, cp.Description, err)
			}
			return nil, err
		}
		added = append(added, cp)
	}
	if len(added) == 0 {
		return []string{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	err := s.update(ctx, func(cs []*constraint.Constraint) ([]*constraint.Constraint, error) {
		taken := make(map[string]struct{}, len(cs)+len(added))
		for _, c := range cs {
			taken[c.ID] = struct{}{}
		}

		ids = make([]string, 0, len(added))
		for _, c := range added {
			id, err := s.uniqueID(taken)
			if err != nil {
				return nil, err
			}
			taken[id] = struct{}{}

			c.ID = id
			c.Enabled = true
			c.TriggerCount = 0
			c.CreatedAt = s.now().UTC()
			c.LastTriggeredAt = nil
			cs = append(cs, c.Clone())
			ids = append(ids, id)
		}
		return cs, nil
	})
	if err != nil {
		return nil, err
	}

	for _, c := range added {
		s.logger.Info("constraint added",
			"id", c.ID,
			"action", c.EnforcementAction,
			"logic", c.TriggerLogic,
		)
	}
	return ids, nil
}

// uniqueID returns a generated id absent from taken.
func (s *Store) uniqueID(taken map[string]struct{}) (string, error) {
	for range maxIDAttempts {
		id := strings.ToLower(s.newID())
		if id == "" {
			continue
		}
		if _, dup := taken[id]; !dup {
			return id, nil
		}
		s.logger.Debug("generated id collides, retrying", "id", id)
	}
	return "", fmt.Errorf("failed to generate a unique constraint id after %d attempts", maxIDAttempts)
}

// Remove deletes the constraint identified by idPrefix and reports whether a
// constraint was removed.
func (s *Store) Remove(ctx context.Context, idPrefix string) (bool, error) {
	removed, err := s.Delete(ctx, idPrefix)
	return removed != nil, err
}

// Delete removes the constraint identified by idPrefix and returns it.
func (s *Store) Delete(ctx context.Context, idPrefix string) (*constraint.Constraint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed *constraint.Constraint
	err := s.update(ctx, func(cs []*constraint.Constraint) ([]*constraint.Constraint, error) {
		pos, err := resolve(cs, idPrefix)
		if err != nil {
			return nil, err
		}
		removed = cs[pos].Clone()
		return slices.Delete(cs, pos, pos+1), nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("constraint removed", "id", removed.ID)
	return removed, nil
}

// Enable turns the identified constraint on.
func (s *Store) Enable(ctx context.Context, id string) error {
	return s.setEnabled(ctx, id, true)
}

// Disable turns the identified constraint off without deleting it.
func (s *Store) Disable(ctx context.Context, id string) error {
	return s.setEnabled(ctx, id, false)
}

func (s *Store) setEnabled(ctx context.Context, id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var updated string
	err := s.update(ctx, func(cs []*constraint.Constraint) ([]*constraint.Constraint, error) {
		pos, err := resolve(cs, id)
		if err != nil {
			return nil, err
		}
		if cs[pos].Enabled == enabled {
			return nil, errUnchanged
		}
		cs[pos].Enabled = enabled
		updated = cs[pos].ID
		return cs, nil
	})
	if err != nil || updated == "" {
		return err
	}

	s.logger.Info("constraint updated", "id", updated, "enabled", enabled)
	return nil
}

// RecordTriggers increments the trigger count of each id and persists once.
// Unknown ids are ignored.
func (s *Store) RecordTriggers(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	return s.update(ctx, func(cs []*constraint.Constraint) ([]*constraint.Constraint, error) {
		changed := false
		for _, id := range ids {
			pos := position(cs, id)
			if pos < 0 {
				continue
			}
			cs[pos].TriggerCount++
			t := now
			cs[pos].LastTriggeredAt = &t
			changed = true
		}
		if !changed {
			return nil, errUnchanged
		}
		return cs, nil
	})
}

// Get returns a copy of the constraint with exactly this id.
func (s *Store) Get(id string) (*constraint.Constraint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos := position(s.constraints, id)
	if pos < 0 {
		return nil, &constraint.NotFoundError{ID: id}
	}
	return s.constraints[pos].Clone(), nil
}

// Resolve returns a copy of the constraint identified by an id or an id
// prefix of at least MinPrefixLength characters.
func (s *Store) Resolve(idPrefix string) (*constraint.Constraint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, err := resolve(s.constraints, idPrefix)
	if err != nil {
		return nil, err
	}
	return s.constraints[pos].Clone(), nil
}

// resolve finds the constraint in cs identified by an id or id prefix.
func resolve(cs []*constraint.Constraint, idPrefix string) (int, error) {
	prefix := strings.ToLower(strings.TrimSpace(idPrefix))
	if len(prefix) < MinPrefixLength {
		return -1, constraint.NewValidationError("id",
			"id prefix %q is too short (need at least %d characters)", idPrefix, MinPrefixLength)
	}

	if pos := position(cs, prefix); pos >= 0 {
		return pos, nil
	}

	var matches []int
	for pos, c := range cs {
		if strings.HasPrefix(c.ID, prefix) {
			matches = append(matches, pos)
		}
	}

	switch len(matches) {
	case 0:
		return -1, &constraint.NotFoundError{ID: idPrefix}
	case 1:
		return matches[0], nil
	}

	ids := make([]string, 0, len(matches))
	for _, pos := range matches {
		ids = append(ids, cs[pos].ID)
	}
	return -1, &constraint.AmbiguousIDError{Prefix: idPrefix, Matches: ids}
}

// position returns the index of the constraint in cs with this exact id, or
// -1.
func position(cs []*constraint.Constraint, id string) int {
	for pos, c := range cs {
		if c.ID == id {
			return pos
		}
	}
	return -1
}

// List returns copies of the constraints in insertion order.
func (s *Store) List(enabledOnly bool) []*constraint.Constraint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*constraint.Constraint, 0, len(s.constraints))
	for _, c := range s.constraints {
		if enabledOnly && !c.Enabled {
			continue
		}
		out = append(out, c.Clone())
	}
	return out
}

// IDs returns the ids of all constraints in insertion order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.constraints))
	for _, c := range s.constraints {
		ids = append(ids, c.ID)
	}
	return ids
}

// Candidates returns the enabled constraints that may fire for query, in
// insertion order. The returned constraints are shared and must be treated
// as read-only.
func (s *Store) Candidates(query string) []*constraint.Constraint {
	s.mu.RLock()
	idx := s.index
	s.mu.RUnlock()
	return idx.Candidates(query)
}

// Index returns the current keyword index.
func (s *Store) Index() *Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index
}

// Stats summarizes the constraint set.
type Stats struct {
	Total         int                       `json:"total"`
	Enabled       int                       `json:"enabled"`
	Disabled      int                       `json:"disabled"`
	TotalTriggers int64                     `json:"total_triggers"`
	ByAction      map[constraint.Action]int `json:"by_action"`
	IndexedTerms  int                       `json:"indexed_terms"`
	LinearScan    int                       `json:"linear_scan"`
	Invalid       int                       `json:"invalid"`
	MostTriggered *constraint.Constraint    `json:"most_triggered,omitempty"`
}

// Stats returns counts over the current constraint set.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Total:        len(s.constraints),
		ByAction:     make(map[constraint.Action]int),
		IndexedTerms: s.index.Size(),
		LinearScan:   len(s.index.linear),
		Invalid:      len(s.invalid),
	}
	for _, c := range s.constraints {
		if c.Enabled {
			st.Enabled++
		}
		st.TotalTriggers += c.TriggerCount
		st.ByAction[c.EnforcementAction]++
		if c.TriggerCount > 0 && (st.MostTriggered == nil || c.TriggerCount > st.MostTriggered.TriggerCount) {
			st.MostTriggered = c
		}
	}
	st.Disabled = st.Total - st.Enabled
	if st.MostTriggered != nil {
		st.MostTriggered = st.MostTriggered.Clone()
	}
	return st
}

// Backend returns the storage backend.
func (s *Store) Backend() storage.Backend { return s.backend }

func randomID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:idLength]
}
