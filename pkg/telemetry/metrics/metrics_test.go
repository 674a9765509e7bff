package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"grokflow/guardrails/pkg/config"
	"grokflow/guardrails/pkg/constraint"
	"grokflow/guardrails/pkg/supervisor"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// Helper function to create test config
func testConfig() *config.MetricsConfig {
	return &config.MetricsConfig{
		Enabled:           true,
		Namespace:         "test",
		Subsystem:         "guardrails",
		EvaluationBuckets: []float64{0.0001, 0.001, 0.01},
	}
}

func TestCollector_NewCollector(t *testing.T) {
	cfg := &config.MetricsConfig{Enabled: true}
	registry := prometheus.NewRegistry()

	collector := NewCollector(cfg, registry)

	if collector.Registry() != registry {
		t.Error("Collector registry not set correctly")
	}
	if cfg.Namespace != config.DefaultMetricsNamespace || cfg.Subsystem != config.DefaultMetricsSubsystem {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if len(cfg.EvaluationBuckets) == 0 {
		t.Error("evaluation buckets not defaulted")
	}

	// A second collector on its own registry must not panic on registration.
	other := NewCollector(testConfig(), nil)
	if other.Registry() == registry {
		t.Error("expected a fresh registry")
	}
}

func TestCollector_ObserveEvaluation(t *testing.T) {
	collector := NewCollector(testConfig(), nil)

	tests := []struct {
		name     string
		triggers int
		blocked  bool
		outcome  string
	}{
		{"no triggers", 0, false, OutcomeAllowed},
		{"warn only", 2, false, OutcomeTriggered},
		{"blocked", 1, true, OutcomeBlocked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			collector.ObserveEvaluation(200*time.Microsecond, 3, tt.triggers, tt.blocked)
			got := testutil.ToFloat64(collector.evaluationMetrics.evaluationsTotal.WithLabelValues(tt.outcome))
			if got != 1 {
				t.Errorf("evaluations_total{outcome=%q} = %v, want 1", tt.outcome, got)
			}
		})
	}

	if n := testutil.CollectAndCount(collector.evaluationMetrics.evaluationDuration); n != 1 {
		t.Errorf("expected one duration histogram, got %d", n)
	}
}

func TestCollector_ObserveTrigger(t *testing.T) {
	collector := NewCollector(testConfig(), nil)
	collector.cardinalityLimiter = NewCardinalityLimiter(2)

	collector.ObserveTrigger("aaaa0001", constraint.ActionBlock)
	collector.ObserveTrigger("aaaa0001", constraint.ActionBlock)
	collector.ObserveTrigger("bbbb0002", constraint.ActionWarn)
	collector.ObserveTrigger("cccc0003", constraint.ActionWarn)

	triggers := collector.evaluationMetrics.triggersTotal
	if got := testutil.ToFloat64(triggers.WithLabelValues("aaaa0001", "block")); got != 2 {
		t.Errorf("aaaa0001 triggers = %v, want 2", got)
	}
	if got := testutil.ToFloat64(triggers.WithLabelValues(OtherLabel, "warn")); got != 1 {
		t.Errorf("expected id over the limit to be recorded as other, got %v", got)
	}
	if collector.cardinalityLimiter.Count() != 2 {
		t.Errorf("cardinality = %d, want 2", collector.cardinalityLimiter.Count())
	}
}

func TestCollector_ObserveRegexCache(t *testing.T) {
	collector := NewCollector(testConfig(), nil)

	collector.ObserveRegexCache(false)
	collector.ObserveRegexCache(true)
	collector.ObserveRegexCache(true)

	if got := testutil.ToFloat64(collector.cacheMetrics.hitsTotal.WithLabelValues(CacheRegex)); got != 2 {
		t.Errorf("hits = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.cacheMetrics.missesTotal.WithLabelValues(CacheRegex)); got != 1 {
		t.Errorf("misses = %v, want 1", got)
	}
}

func TestCollector_ObserveDashboard(t *testing.T) {
	collector := NewCollector(testConfig(), nil)

	report := &supervisor.HealthReport{}
	collector.ObserveDashboard(&supervisor.Dashboard{
		Status:           supervisor.OverallAcceptable,
		AveragePrecision: 0.75,
		Healthy:          []*supervisor.HealthReport{report, report},
		Unhealthy:        []*supervisor.HealthReport{report},
		NoData:           []*supervisor.HealthReport{report},
	})
	collector.ObserveDashboard(nil)

	hm := collector.healthMetrics
	for health, want := range map[string]float64{
		"healthy":      2,
		"acceptable":   0,
		"needs_review": 0,
		"unhealthy":    1,
		"no_data":      1,
	} {
		if got := testutil.ToFloat64(hm.constraints.WithLabelValues(health)); got != want {
			t.Errorf("constraints{health=%q} = %v, want %v", health, got, want)
		}
	}
	if got := testutil.ToFloat64(hm.averagePrecision); got != 0.75 {
		t.Errorf("average precision = %v", got)
	}
	if got := testutil.ToFloat64(hm.status.WithLabelValues(supervisor.OverallAcceptable)); got != 1 {
		t.Errorf("status acceptable = %v, want 1", got)
	}
	if got := testutil.ToFloat64(hm.status.WithLabelValues(supervisor.OverallHealthy)); got != 0 {
		t.Errorf("status healthy = %v, want 0", got)
	}
	if got := testutil.ToFloat64(hm.sweepsTotal); got != 1 {
		t.Errorf("sweeps = %v, want 1", got)
	}
}

func TestCollector_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	collector := NewCollector(cfg, nil)

	collector.ObserveEvaluation(time.Millisecond, 1, 1, true)
	collector.ObserveTrigger("aaaa0001", constraint.ActionBlock)
	collector.ObserveRegexCache(true)
	collector.ObserveDashboard(&supervisor.Dashboard{Status: supervisor.OverallHealthy})

	if n := testutil.CollectAndCount(collector.evaluationMetrics.evaluationsTotal); n != 0 {
		t.Errorf("expected no evaluation series, got %d", n)
	}
	if n := testutil.CollectAndCount(collector.evaluationMetrics.triggersTotal); n != 0 {
		t.Errorf("expected no trigger series, got %d", n)
	}
	if got := testutil.ToFloat64(collector.healthMetrics.sweepsTotal); got != 0 {
		t.Errorf("sweeps = %v, want 0", got)
	}
}

func TestCollector_Handler(t *testing.T) {
	collector := NewCollector(testConfig(), nil)
	collector.ObserveTrigger("aaaa0001", constraint.ActionBlock)

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `test_guardrails_triggers_total{action="block",constraint_id="aaaa0001"} 1`) {
		t.Errorf("trigger metric missing from scrape:\n%s", body)
	}
}

func TestCardinalityLimiter(t *testing.T) {
	cl := NewCardinalityLimiter(2)

	if !cl.Allow("a") || !cl.Allow("b") {
		t.Fatal("expected first two labels to be allowed")
	}
	if cl.Allow("c") {
		t.Error("expected third label to be rejected")
	}
	if !cl.Allow("a") {
		t.Error("expected known label to be allowed")
	}
	if cl.Count() != 2 {
		t.Errorf("Count() = %d, want 2", cl.Count())
	}
}
