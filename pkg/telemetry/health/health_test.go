package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	if c := New(0); c.checkTimeout != 5*time.Second {
		t.Errorf("default timeout = %v", c.checkTimeout)
	}
	if c := New(time.Second); c.checkTimeout != time.Second {
		t.Errorf("timeout = %v", c.checkTimeout)
	}
}

func TestChecker_Readiness(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]CheckFunc
		want   string
	}{
		{"no checks", nil, StatusReady},
		{
			name: "all pass",
			checks: map[string]CheckFunc{
				"storage": func(context.Context) error { return nil },
				"sweep":   func(context.Context) error { return nil },
			},
			want: StatusReady,
		},
		{
			name: "one fails",
			checks: map[string]CheckFunc{
				"storage": func(context.Context) error { return errors.New("database is locked") },
				"sweep":   func(context.Context) error { return nil },
			},
			want: StatusDegraded,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(time.Second)
			for name, check := range tt.checks {
				c.Register(name, check)
			}
			report := c.Readiness(context.Background())
			if report.Status != tt.want {
				t.Errorf("Status = %q, want %q", report.Status, tt.want)
			}
			if len(report.Checks) != len(tt.checks) {
				t.Errorf("got %d results, want %d", len(report.Checks), len(tt.checks))
			}
		})
	}
}

func TestChecker_Timeout(t *testing.T) {
	c := New(20 * time.Millisecond)
	c.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		return nil
	})

	report := c.Readiness(context.Background())
	result := report.Checks["slow"]
	if result.Status != StatusUnhealthy || result.Message != ErrCheckTimeout.Error() {
		t.Errorf("expected timeout, got %+v", result)
	}
}

func TestChecker_Names(t *testing.T) {
	c := New(0)
	c.Register("sweep", nil)
	c.Register("storage", nil)
	c.Register("sweep", nil)

	names := c.Names()
	if len(names) != 2 || names[0] != "storage" || names[1] != "sweep" {
		t.Errorf("Names() = %v", names)
	}
}

func TestHandlers(t *testing.T) {
	c := New(time.Second)
	failing := errors.New("no sweep yet")
	c.Register("sweep", func(context.Context) error { return failing })

	mux := http.NewServeMux()
	c.Mount(mux, "1.2.0", "abc123")

	tests := []struct {
		method string
		path   string
		code   int
	}{
		{http.MethodGet, LivenessPath, http.StatusOK},
		{http.MethodHead, LivenessPath, http.StatusOK},
		{http.MethodGet, ReadinessPath, http.StatusServiceUnavailable},
		{http.MethodGet, VersionPath, http.StatusOK},
		{http.MethodPost, LivenessPath, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.method+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.code {
				t.Errorf("status = %d, want %d", rec.Code, tt.code)
			}
		})
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, ReadinessPath, nil))
	var report Report
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Checks["sweep"].Message != "no sweep yet" {
		t.Errorf("unexpected report: %+v", report)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, VersionPath, nil))
	var info VersionInfo
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.Version != "1.2.0" || info.Commit != "abc123" || info.GoVersion == "" {
		t.Errorf("unexpected version info: %+v", info)
	}
}
