package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"grokflow/guardrails/pkg/constraint"
)

func kinds(suggestions []Suggestion) map[SuggestionKind]int {
	out := make(map[SuggestionKind]int)
	for _, s := range suggestions {
		out[s.Kind]++
	}
	return out
}

func TestSupervisor_SuggestImprovements(t *testing.T) {
	broad := &constraint.Constraint{
		Description:       "No mock data",
		TriggerKeywords:   []string{"fak"},
		TriggerPatterns:   []string{"mock.*data"},
		EnforcementAction: constraint.ActionBlock,
	}
	precise := &constraint.Constraint{
		Description:     "Use pytest",
		TriggerKeywords: []string{"unittest"},
	}
	unrated := &constraint.Constraint{
		Description:     "Quiet",
		TriggerKeywords: []string{"quiet"},
	}
	f, ids := newFixture(t, broad, precise, unrated)

	record(t, f.supervisor, ids[0], tp, fp, fp, fp)
	record(t, f.supervisor, ids[1], tp, tp, tp, tp, tp)

	t.Run("broad blocking constraint", func(t *testing.T) {
		got, err := f.supervisor.SuggestImprovements(ids[0])
		if err != nil {
			t.Fatal(err)
		}
		k := kinds(got)
		if k[SuggestNarrowPattern] != 2 {
			t.Errorf("narrow_pattern suggestions = %d, want 2 (pattern and short keyword)", k[SuggestNarrowPattern])
		}
		for _, want := range []SuggestionKind{SuggestAddContextFilter, SuggestLowerSeverity, SuggestDisableConstraint} {
			if k[want] != 1 {
				t.Errorf("missing %s suggestion in %+v", want, got)
			}
		}
		if k[SuggestIncreaseEnforcement] != 0 {
			t.Error("unexpected increase_enforcement suggestion")
		}
		for i, s := range got {
			if s.Confidence < 0 || s.Confidence > 1 {
				t.Errorf("confidence %v out of [0,1]", s.Confidence)
			}
			if i > 0 && got[i-1].Confidence < s.Confidence {
				t.Error("suggestions not ordered by decreasing confidence")
			}
		}
	})

	t.Run("precise warn constraint", func(t *testing.T) {
		got, err := f.supervisor.SuggestImprovements(ids[1])
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[0].Kind != SuggestIncreaseEnforcement {
			t.Fatalf("suggestions = %+v, want one increase_enforcement", got)
		}
		if got[0].Confidence != 1 {
			t.Errorf("confidence = %v, want 1 at perfect precision", got[0].Confidence)
		}
	})

	t.Run("no feedback", func(t *testing.T) {
		got, err := f.supervisor.SuggestImprovements(ids[2])
		if err != nil {
			t.Fatal(err)
		}
		if got == nil || len(got) != 0 {
			t.Errorf("suggestions = %+v, want empty", got)
		}
	})

	t.Run("unknown constraint", func(t *testing.T) {
		if _, err := f.supervisor.SuggestImprovements("ffffffff"); err == nil {
			t.Error("expected error for unknown constraint")
		}
	})
}

func TestNarrowPattern(t *testing.T) {
	tests := []struct {
		pattern   string
		want      string
		wantBroad bool
	}{
		{"mock.*data", `mock\bdata`, true},
		{"fake.+", `fake\b`, true},
		{`\bmock\b`, `\bmock\b`, false},
	}
	for _, tt := range tests {
		got, broad := narrowPattern(tt.pattern)
		if got != tt.want || broad != tt.wantBroad {
			t.Errorf("narrowPattern(%q) = %q, %v; want %q, %v", tt.pattern, got, broad, tt.want, tt.wantBroad)
		}
	}
}

func TestSupervisor_SuggestNewConstraints(t *testing.T) {
	f, _ := newFixture(t, warnConstraint("mock"))

	history := []string{
		"generate mock data for the dashboard",
		"Generate fake users, please",
		"generate fake orders.",
		"fake it till you make it",
		"add mock endpoints",
		"mock the api",
		"generate tests",
		"generate it",
	}
	got := f.supervisor.SuggestNewConstraints(history)

	if len(got) != 2 {
		t.Fatalf("candidates = %+v, want generate and fake", got)
	}
	if got[0].Keyword != "generate" || got[0].Frequency != 5 {
		t.Errorf("first candidate = %+v, want generate x5", got[0])
	}
	if got[1].Keyword != "fake" || got[1].Frequency != 3 {
		t.Errorf("second candidate = %+v, want fake x3", got[1])
	}
	if got[0].Confidence != 0.5 || got[1].Confidence != 0.3 {
		t.Errorf("confidences = %v, %v; want 0.5, 0.3", got[0].Confidence, got[1].Confidence)
	}
	if got[1].Description != "Consider blocking 'fake' pattern" {
		t.Errorf("description = %q", got[1].Description)
	}

	c := got[1].Constraint()
	if c.EnforcementAction != constraint.ActionWarn || c.TriggerKeywords[0] != "fake" {
		t.Errorf("Constraint() = %+v", c)
	}
}

func TestMine_ConfidenceCapped(t *testing.T) {
	history := make([]string, 40)
	for i := range history {
		history[i] = "deploy"
	}
	got := mine(history, nil, DefaultMiningConfig())
	if len(got) != 1 || got[0].Confidence != 0.95 {
		t.Errorf("mine() = %+v, want confidence capped at 0.95", got)
	}

	if got := mine(nil, nil, DefaultMiningConfig()); got == nil || len(got) != 0 {
		t.Errorf("mine(nil) = %v, want empty slice", got)
	}
}

func TestSupervisor_Dashboard(t *testing.T) {
	f, ids := newFixture(t,
		warnConstraint("alpha"),
		warnConstraint("beta"),
		warnConstraint("gamma"),
		warnConstraint("delta"),
	)
	record(t, f.supervisor, ids[0], tp, tp, tp, tp)
	record(t, f.supervisor, ids[1], tp, tp, tp, fp, fp)
	record(t, f.supervisor, ids[2], fp, fp, fp, tp)

	d := f.supervisor.Dashboard()
	if d.TotalConstraints != 4 || d.Rated != 3 {
		t.Errorf("total/rated = %d/%d, want 4/3", d.TotalConstraints, d.Rated)
	}
	if len(d.Healthy) != 1 || len(d.NeedsReview) != 1 || len(d.Unhealthy) != 1 || len(d.NoData) != 1 {
		t.Errorf("buckets = %d/%d/%d/%d", len(d.Healthy), len(d.NeedsReview), len(d.Unhealthy), len(d.NoData))
	}
	if want := (1 + 0.6 + 0.25) / 3; d.AveragePrecision < want-1e-9 || d.AveragePrecision > want+1e-9 {
		t.Errorf("AveragePrecision = %v, want %v", d.AveragePrecision, want)
	}
	if d.Status != OverallAcceptable {
		t.Errorf("Status = %s, want acceptable", d.Status)
	}
}

func TestSupervisor_DashboardEmpty(t *testing.T) {
	f, _ := newFixture(t)
	d := f.supervisor.Dashboard()
	if d.Status != OverallHealthy || d.TotalConstraints != 0 || d.AveragePrecision != 0 {
		t.Errorf("empty dashboard = %+v", d)
	}
}

type recordingObserver struct {
	dashboards []*Dashboard
}

func (r *recordingObserver) ObserveDashboard(d *Dashboard) {
	r.dashboards = append(r.dashboards, d)
}

func TestScheduler_RunOnce(t *testing.T) {
	f, ids := newFixture(t, warnConstraint("alpha"), warnConstraint("beta"))
	record(t, f.supervisor, ids[0], tp)
	record(t, f.supervisor, ids[1], fp)
	if _, err := f.store.Remove(context.Background(), ids[1]); err != nil {
		t.Fatal(err)
	}

	obs := &recordingObserver{}
	s := NewScheduler(f.supervisor, "@every 1h", obs, nil)

	result := s.RunOnce(context.Background())
	if result == nil {
		t.Fatal("RunOnce() returned nil")
	}
	if result.Pruned != 1 {
		t.Errorf("Pruned = %d, want 1", result.Pruned)
	}
	if len(obs.dashboards) != 1 || obs.dashboards[0].TotalConstraints != 1 {
		t.Errorf("observer got %d dashboards", len(obs.dashboards))
	}
	if s.LastSweep() != result {
		t.Error("LastSweep() does not return the latest result")
	}
	if s.LastError() != nil {
		t.Errorf("LastError() = %v", s.LastError())
	}
}

func TestScheduler_RunOnceFailure(t *testing.T) {
	f, ids := newFixture(t, warnConstraint("alpha"))
	record(t, f.supervisor, ids[0], tp)
	if _, err := f.store.Remove(context.Background(), ids[0]); err != nil {
		t.Fatal(err)
	}
	f.backend.FailSaves = errors.New("disk full")

	obs := &recordingObserver{}
	s := NewScheduler(f.supervisor, "@every 1h", obs, nil)

	if result := s.RunOnce(context.Background()); result != nil {
		t.Fatalf("expected nil result, got %+v", result)
	}
	if !errors.Is(s.LastError(), f.backend.FailSaves) {
		t.Errorf("LastError() = %v", s.LastError())
	}
	if len(obs.dashboards) != 0 {
		t.Error("observer called for a failed sweep")
	}
}

func TestScheduler_StartStop(t *testing.T) {
	f, _ := newFixture(t)

	t.Run("empty schedule disables", func(t *testing.T) {
		s := NewScheduler(f.supervisor, "", nil, nil)
		if err := s.Start(context.Background()); err != nil {
			t.Fatal(err)
		}
		if s.IsRunning() {
			t.Error("scheduler running without a schedule")
		}
	})

	t.Run("invalid schedule", func(t *testing.T) {
		s := NewScheduler(f.supervisor, "not a cron", nil, nil)
		if err := s.Start(context.Background()); err == nil {
			t.Error("Start() accepted an invalid schedule")
		}
	})

	t.Run("start and stop", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s := NewScheduler(f.supervisor, "*/15 * * * *", nil, nil)
		if err := s.Start(ctx); err != nil {
			t.Fatal(err)
		}
		if !s.IsRunning() {
			t.Fatal("scheduler not running after Start()")
		}
		if err := s.Start(ctx); err == nil {
			t.Error("second Start() should fail")
		}
		next := s.NextRun()
		if next == nil || !next.After(time.Now()) {
			t.Errorf("NextRun() = %v, want a future time", next)
		}
		s.Stop()
		if s.IsRunning() {
			t.Error("scheduler still running after Stop()")
		}
	})
}
