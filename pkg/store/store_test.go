package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"grokflow/guardrails/pkg/constraint"
	"grokflow/guardrails/pkg/storage"
)

// sequenceIDs returns a generator yielding ids in order.
func sequenceIDs(ids ...string) func() string {
	i := 0
	return func() string {
		id := ids[i%len(ids)]
		i++
		return id
	}
}

func newTestStore(t *testing.T, opts ...Option) (*Store, *storage.MemoryBackend) {
	t.Helper()
	backend := storage.NewMemoryBackend()
	s, err := New(context.Background(), backend, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s, backend
}

func mustAdd(t *testing.T, s *Store, c *constraint.Constraint) string {
	t.Helper()
	id, err := s.Add(context.Background(), c)
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	return id
}

func TestStore_Add(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s, backend := newTestStore(t, WithIDGenerator(sequenceIDs("abcd1234")), WithClock(func() time.Time { return fixed }))

	in := &constraint.Constraint{
		Description:     "No mock data",
		TriggerKeywords: []string{" Mock ", "mock", "FAKE"},
	}
	id := mustAdd(t, s, in)

	if id != "abcd1234" {
		t.Errorf("id = %q, want abcd1234", id)
	}
	if in.ID != "" {
		t.Error("Add() modified the caller's constraint")
	}

	got, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !slices.Equal(got.TriggerKeywords, []string{"mock", "fake"}) {
		t.Errorf("keywords = %v, want [mock fake]", got.TriggerKeywords)
	}
	if !got.Enabled || got.TriggerLogic != constraint.LogicOR || got.EnforcementAction != constraint.ActionWarn {
		t.Errorf("defaults not applied: %+v", got)
	}
	if !got.CreatedAt.Equal(fixed) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, fixed)
	}
	if got.EnforcementMessage != "No mock data" {
		t.Errorf("EnforcementMessage = %q, want description", got.EnforcementMessage)
	}
	if backend.Saves() != 1 {
		t.Errorf("Saves() = %d, want 1", backend.Saves())
	}
}

func TestStore_AddValidation(t *testing.T) {
	s, backend := newTestStore(t)

	_, err := s.Add(context.Background(), &constraint.Constraint{Description: "empty triggers"})
	var ve *constraint.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Add() error = %v, want *ValidationError", err)
	}
	if len(s.List(false)) != 0 || backend.Saves() != 0 {
		t.Error("invalid constraint was stored")
	}
}

func TestStore_AddRetriesOnCollision(t *testing.T) {
	s, _ := newTestStore(t, WithIDGenerator(sequenceIDs("aaaa0000", "aaaa0000", "bbbb0000")))

	first := mustAdd(t, s, &constraint.Constraint{Description: "one", TriggerKeywords: []string{"one"}})
	second := mustAdd(t, s, &constraint.Constraint{Description: "two", TriggerKeywords: []string{"two"}})

	if first != "aaaa0000" || second != "bbbb0000" {
		t.Errorf("ids = %q, %q; want aaaa0000, bbbb0000", first, second)
	}
}

func TestStore_AddGeneratesHexIDs(t *testing.T) {
	s, _ := newTestStore(t)
	id := mustAdd(t, s, &constraint.Constraint{Description: "x", TriggerKeywords: []string{"x"}})

	if len(id) != 8 {
		t.Fatalf("len(id) = %d, want 8", len(id))
	}
	for _, r := range id {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
			t.Fatalf("id %q is not lowercase hex", id)
		}
	}
}

// Scenario E: an ambiguous prefix removes nothing.
func TestStore_RemoveAmbiguousPrefix(t *testing.T) {
	s, backend := newTestStore(t, WithIDGenerator(sequenceIDs("abcd1111", "abcd2222")))
	mustAdd(t, s, &constraint.Constraint{Description: "one", TriggerKeywords: []string{"one"}})
	mustAdd(t, s, &constraint.Constraint{Description: "two", TriggerKeywords: []string{"two"}})
	saves := backend.Saves()

	removed, err := s.Remove(context.Background(), "abcd")
	if removed {
		t.Error("Remove() reported success")
	}
	var amb *constraint.AmbiguousIDError
	if !errors.As(err, &amb) {
		t.Fatalf("Remove() error = %v, want *AmbiguousIDError", err)
	}
	if !slices.Equal(amb.Matches, []string{"abcd1111", "abcd2222"}) {
		t.Errorf("Matches = %v", amb.Matches)
	}
	if !errors.Is(err, constraint.ErrAmbiguousID) {
		t.Error("errors.Is(err, ErrAmbiguousID) = false")
	}
	if len(s.List(false)) != 2 || backend.Saves() != saves {
		t.Error("ambiguous remove changed the store")
	}
}

func TestStore_Remove(t *testing.T) {
	s, _ := newTestStore(t, WithIDGenerator(sequenceIDs("abcd1111", "ef012222")))
	mustAdd(t, s, &constraint.Constraint{Description: "one", TriggerKeywords: []string{"one"}})
	mustAdd(t, s, &constraint.Constraint{Description: "two", TriggerKeywords: []string{"two"}})

	tests := []struct {
		name    string
		prefix  string
		wantErr error
	}{
		{name: "too short", prefix: "abc", wantErr: constraint.ErrInvalid},
		{name: "unknown", prefix: "9999", wantErr: constraint.ErrNotFound},
		{name: "unique prefix", prefix: "ABCD"},
		{name: "already removed", prefix: "abcd1111", wantErr: constraint.ErrNotFound},
		{name: "full id", prefix: "ef012222"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			removed, err := s.Remove(context.Background(), tt.prefix)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Remove(%q) error = %v, want %v", tt.prefix, err, tt.wantErr)
				}
				return
			}
			if err != nil || !removed {
				t.Errorf("Remove(%q) = %v, %v; want true, nil", tt.prefix, removed, err)
			}
		})
	}

	if n := len(s.List(false)); n != 0 {
		t.Errorf("List() = %d constraints, want 0", n)
	}
}

func TestStore_EnableDisable(t *testing.T) {
	s, _ := newTestStore(t, WithIDGenerator(sequenceIDs("abcd1111")))
	id := mustAdd(t, s, &constraint.Constraint{Description: "one", TriggerKeywords: []string{"mock"}})
	ctx := context.Background()

	if err := s.Disable(ctx, id); err != nil {
		t.Fatalf("Disable() error = %v", err)
	}
	if len(s.List(true)) != 0 || len(s.List(false)) != 1 {
		t.Error("disabled constraint still listed as enabled")
	}
	if got := s.Candidates("mock data"); len(got) != 0 {
		t.Errorf("Candidates() after Disable = %d, want 0", len(got))
	}

	if err := s.Enable(ctx, "abcd"); err != nil {
		t.Fatalf("Enable() by prefix error = %v", err)
	}
	if got := s.Candidates("mock data"); len(got) != 1 {
		t.Errorf("Candidates() after Enable = %d, want 1", len(got))
	}

	if err := s.Enable(ctx, "ffff0000"); !errors.Is(err, constraint.ErrNotFound) {
		t.Errorf("Enable(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestStore_ListOrderAndCopies(t *testing.T) {
	s, _ := newTestStore(t, WithIDGenerator(sequenceIDs("cccc0000", "aaaa0000", "bbbb0000")))
	for _, d := range []string{"c", "a", "b"} {
		mustAdd(t, s, &constraint.Constraint{Description: d, TriggerKeywords: []string{d + "kw"}})
	}

	list := s.List(false)
	var got []string
	for _, c := range list {
		got = append(got, c.ID)
	}
	if !slices.Equal(got, []string{"cccc0000", "aaaa0000", "bbbb0000"}) {
		t.Errorf("List() order = %v, want insertion order", got)
	}

	list[0].Description = "mutated"
	if c, _ := s.Get("cccc0000"); c.Description == "mutated" {
		t.Error("List() returned shared pointers")
	}
}

func TestStore_RecordTriggers(t *testing.T) {
	s, backend := newTestStore(t, WithIDGenerator(sequenceIDs("aaaa0000", "bbbb0000")))
	a := mustAdd(t, s, &constraint.Constraint{Description: "a", TriggerKeywords: []string{"a"}})
	b := mustAdd(t, s, &constraint.Constraint{Description: "b", TriggerKeywords: []string{"b"}})
	saves := backend.Saves()

	before := s.Candidates("a")
	if err := s.RecordTriggers(context.Background(), []string{a, b, a, "unknown"}); err != nil {
		t.Fatalf("RecordTriggers() error = %v", err)
	}
	if backend.Saves() != saves+1 {
		t.Errorf("RecordTriggers() saved %d times, want 1", backend.Saves()-saves)
	}

	ca, _ := s.Get(a)
	cb, _ := s.Get(b)
	if ca.TriggerCount != 2 || cb.TriggerCount != 1 {
		t.Errorf("trigger counts = %d, %d; want 2, 1", ca.TriggerCount, cb.TriggerCount)
	}
	if ca.LastTriggeredAt == nil {
		t.Error("LastTriggeredAt not set")
	}
	if before[0].TriggerCount != 0 {
		t.Error("RecordTriggers() mutated a previously returned candidate")
	}

	stats := s.Stats()
	if stats.TotalTriggers != 3 || stats.MostTriggered == nil || stats.MostTriggered.ID != a {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestStore_SaveFailureKeepsState(t *testing.T) {
	s, backend := newTestStore(t, WithIDGenerator(sequenceIDs("aaaa0000", "bbbb0000")))
	mustAdd(t, s, &constraint.Constraint{Description: "a", TriggerKeywords: []string{"alpha"}})

	backend.FailSaves = errors.New("disk full")
	_, err := s.Add(context.Background(), &constraint.Constraint{Description: "b", TriggerKeywords: []string{"beta"}})
	var se *constraint.StorageError
	if !errors.As(err, &se) {
		t.Fatalf("Add() error = %v, want *StorageError", err)
	}
	if len(s.List(false)) != 1 {
		t.Error("failed save changed the in-memory set")
	}
	if len(s.Candidates("beta")) != 0 {
		t.Error("failed save changed the index")
	}
}

func TestStore_LoadCorruptStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, storage.ConstraintsFile), []byte("[{oops"), 0o600); err != nil {
		t.Fatal(err)
	}
	backend, err := storage.NewFileBackend(dir, nil)
	if err != nil {
		t.Fatal(err)
	}

	s, err := New(context.Background(), backend)
	if err != nil {
		t.Fatalf("New() error = %v, want startup to succeed", err)
	}
	if n := len(s.List(false)); n != 0 {
		t.Errorf("List() = %d constraints, want 0", n)
	}

	// The store stays usable.
	mustAdd(t, s, &constraint.Constraint{Description: "a", TriggerKeywords: []string{"a"}})
}

func TestStore_PersistAndReload(t *testing.T) {
	dir := t.TempDir()
	backend, err := storage.NewFileBackend(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	s1, _ := New(ctx, backend, WithIDGenerator(sequenceIDs("aaaa0000")))
	mustAdd(t, s1, &constraint.Constraint{Description: "a", TriggerKeywords: []string{"alpha"}})

	s2, _ := New(ctx, backend)
	if len(s2.List(false)) != 1 {
		t.Fatal("second store did not load persisted constraint")
	}
	if err := s2.Disable(ctx, "aaaa0000"); err != nil {
		t.Fatal(err)
	}

	if err := s1.Reload(ctx); err != nil {
		t.Fatal(err)
	}
	if len(s1.Candidates("alpha")) != 0 {
		t.Error("Reload() did not pick up the disabled state")
	}
}

func TestStore_LoadLegacy(t *testing.T) {
	dir := t.TempDir()
	legacy := `[{"id":"0123abcd","description":"Legacy","trigger_keywords":["Mock"],"enforcement_action":"warn","enabled":true}]`
	if err := os.WriteFile(filepath.Join(dir, storage.ConstraintsFile), []byte(legacy), 0o600); err != nil {
		t.Fatal(err)
	}
	backend, _ := storage.NewFileBackend(dir, nil)

	s, _ := New(context.Background(), backend)
	c, err := s.Get("0123abcd")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if c.Version != constraint.VersionLegacy || c.TriggerLogic != constraint.LogicOR {
		t.Errorf("legacy constraint loaded as version %d logic %s", c.Version, c.TriggerLogic)
	}
	if len(s.Candidates("no mock please")) != 1 {
		t.Error("legacy constraint not indexed")
	}
}

// The index must reflect every mutation once the call returns.
func TestStore_IndexCurrentAfterMutation(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for i := range 20 {
		id := mustAdd(t, s, &constraint.Constraint{
			Description:     fmt.Sprintf("c%d", i),
			TriggerKeywords: []string{fmt.Sprintf("word%d", i)},
		})
		if got := s.Candidates(fmt.Sprintf("use word%d here", i)); !containsID(got, id) {
			t.Fatalf("constraint %s not a candidate right after Add", id)
		}
		if i%2 == 0 {
			if _, err := s.Remove(ctx, id); err != nil {
				t.Fatal(err)
			}
			if got := s.Candidates(fmt.Sprintf("word%d", i)); containsID(got, id) {
				t.Fatalf("removed constraint %s still a candidate", id)
			}
		}
	}
}

func containsID(cs []*constraint.Constraint, id string) bool {
	for _, c := range cs {
		if c.ID == id {
			return true
		}
	}
	return false
}

func TestStore_AddAll(t *testing.T) {
	s, backend := newTestStore(t, WithIDGenerator(sequenceIDs("aaaa0001", "aaaa0001", "bbbb0002")))
	before := backend.Saves()

	ids, err := s.AddAll(context.Background(), []*constraint.Constraint{
		{Description: "one", TriggerKeywords: []string{"mock"}},
		{Description: "two", TriggerPatterns: []string{"fake.*"}},
	})
	if err != nil {
		t.Fatalf("AddAll() error = %v", err)
	}
	if len(ids) != 2 || ids[0] != "aaaa0001" || ids[1] != "bbbb0002" {
		t.Errorf("ids = %v, want [aaaa0001 bbbb0002]", ids)
	}
	if got := backend.Saves() - before; got != 1 {
		t.Errorf("saves = %d, want a single save", got)
	}

	_, err = s.AddAll(context.Background(), []*constraint.Constraint{
		{Description: "three", TriggerKeywords: []string{"ok"}},
		{Description: "broken", TriggerLogic: "XOR", TriggerKeywords: []string{"x"}},
	})
	if !errors.Is(err, constraint.ErrInvalid) {
		t.Fatalf("AddAll() error = %v, want ErrInvalid", err)
	}
	if got := len(s.List(false)); got != 2 {
		t.Errorf("List() = %d constraints, want 2 after rejected batch", got)
	}
}

func TestStore_LoadInvalidExcludedFromMatching(t *testing.T) {
	dir := t.TempDir()
	persisted := `[
  {"id":"deadbeef","trigger_keywords":[],"trigger_patterns":[],"trigger_logic":"NOT","enforcement_action":"block","enabled":true,"version":2},
  {"id":"cafe0001","description":"Odd action","trigger_keywords":["hello"],"enforcement_action":"explode","enabled":true,"version":2},
  {"id":"0123abcd","description":"Valid","trigger_keywords":["world"],"enforcement_action":"warn","enabled":true,"version":2}
]`
	if err := os.WriteFile(filepath.Join(dir, storage.ConstraintsFile), []byte(persisted), 0o600); err != nil {
		t.Fatal(err)
	}
	backend, err := storage.NewFileBackend(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	s, err := New(ctx, backend)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var ids []string
	for _, c := range s.Candidates("hello world") {
		ids = append(ids, c.ID)
	}
	if !slices.Equal(ids, []string{"0123abcd"}) {
		t.Errorf("Candidates() = %v, want only the valid constraint", ids)
	}
	if got := s.Invalid(); !slices.Equal(got, []string{"deadbeef", "cafe0001"}) {
		t.Errorf("Invalid() = %v, want [deadbeef cafe0001]", got)
	}
	if st := s.Stats(); st.Total != 3 || st.Invalid != 2 || st.LinearScan != 0 {
		t.Errorf("Stats() = %+v, want 3 total, 2 invalid, nothing scanned linearly", st)
	}

	// Invalid records stay listable and removable.
	if n := len(s.List(false)); n != 3 {
		t.Errorf("List() = %d constraints, want 3", n)
	}
	if removed, err := s.Remove(ctx, "deadbeef"); err != nil || !removed {
		t.Fatalf("Remove(invalid) = %v, %v; want true, nil", removed, err)
	}
	if got := s.Invalid(); !slices.Equal(got, []string{"cafe0001"}) {
		t.Errorf("Invalid() after Remove = %v, want [cafe0001]", got)
	}
}

func TestStore_SharedDirectory(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	open := func(ids ...string) *Store {
		t.Helper()
		backend, err := storage.NewFileBackend(dir, nil)
		if err != nil {
			t.Fatal(err)
		}
		s, err := New(ctx, backend, WithIDGenerator(sequenceIDs(ids...)))
		if err != nil {
			t.Fatal(err)
		}
		return s
	}

	// Both stores load the empty directory before either writes.
	s1 := open("aaaa0000")
	s2 := open("bbbb0000")
	mustAdd(t, s1, &constraint.Constraint{Description: "a", TriggerKeywords: []string{"alpha"}})
	mustAdd(t, s2, &constraint.Constraint{Description: "b", TriggerKeywords: []string{"beta"}})

	if got := open("cccc0000").IDs(); !slices.Equal(got, []string{"aaaa0000", "bbbb0000"}) {
		t.Fatalf("fresh store IDs() = %v, want both additions", got)
	}
	if got := s2.IDs(); !slices.Equal(got, []string{"aaaa0000", "bbbb0000"}) {
		t.Errorf("writer IDs() = %v, want the other store's addition picked up", got)
	}

	// A stale store must not resurrect a constraint removed elsewhere.
	if _, err := s2.Remove(ctx, "aaaa0000"); err != nil {
		t.Fatal(err)
	}
	if err := s1.Disable(ctx, "bbbb0000"); err != nil {
		t.Fatalf("Disable() error = %v", err)
	}
	got := open("dddd0000").List(false)
	if len(got) != 1 || got[0].ID != "bbbb0000" || got[0].Enabled {
		t.Errorf("fresh store List() = %+v, want only bbbb0000, disabled", got)
	}
}

func TestStore_SharedDirectoryConcurrent(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	const writers = 6
	stores := make([]*Store, writers)
	for i := range stores {
		backend, err := storage.NewFileBackend(dir, nil)
		if err != nil {
			t.Fatal(err)
		}
		stores[i], err = New(ctx, backend, WithIDGenerator(sequenceIDs(fmt.Sprintf("%08x", i+1))))
		if err != nil {
			t.Fatal(err)
		}
	}

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i, s := range stores {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Add(ctx, &constraint.Constraint{
				Description:     fmt.Sprintf("c%d", i),
				TriggerKeywords: []string{fmt.Sprintf("word%d", i)},
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}

	backend, _ := storage.NewFileBackend(dir, nil)
	fresh, _ := New(ctx, backend)
	if n := len(fresh.List(false)); n != writers {
		t.Errorf("fresh store has %d constraints, want %d", n, writers)
	}
}
