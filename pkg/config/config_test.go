package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if err := Validate(cfg); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Storage.Backend != DefaultStorageBackend {
		t.Errorf("expected backend %q, got %q", DefaultStorageBackend, cfg.Storage.Backend)
	}
	if !cfg.Storage.SQLite.WALMode {
		t.Error("expected WAL mode enabled by default")
	}
	if !cfg.Telemetry.Logging.RedactPII {
		t.Error("expected PII redaction enabled by default")
	}
	if !cfg.Templates.InstallBuiltins {
		t.Error("expected built-in templates installed by default")
	}
	if cfg.Supervisor.HistorySize != 50 || cfg.Supervisor.DriftWindow != 10 {
		t.Errorf("unexpected supervisor defaults: %+v", cfg.Supervisor)
	}
	if cfg.Watch.DebounceInterval != 200*time.Millisecond {
		t.Errorf("expected debounce 200ms, got %v", cfg.Watch.DebounceInterval)
	}
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	cfg := &Config{
		Storage:    StorageConfig{Backend: "sqlite"},
		Supervisor: SupervisorConfig{HistorySize: 20},
	}
	ApplyDefaults(cfg)

	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("backend overwritten: %q", cfg.Storage.Backend)
	}
	if cfg.Supervisor.HistorySize != 20 {
		t.Errorf("history size overwritten: %d", cfg.Supervisor.HistorySize)
	}
	if cfg.Storage.SQLite.Path != DefaultSQLitePath {
		t.Errorf("expected sqlite path default, got %q", cfg.Storage.SQLite.Path)
	}
	if len(cfg.Telemetry.Metrics.EvaluationBuckets) != len(DefaultEvaluationBuckets) {
		t.Error("evaluation buckets not defaulted")
	}
}

func TestLoadConfig_ValidFile(t *testing.T) {
	path := writeConfig(t, `
storage:
  backend: sqlite
  sqlite:
    path: ./test.db
    driver: sqlite3
    wal_mode: false
    busy_timeout: 2s

supervisor:
  sweep_schedule: "@every 5m"
  health:
    healthy_precision: 0.9

watch:
  enabled: true
  debounce_interval: 500ms

telemetry:
  logging:
    level: debug
    format: json
    redact_pii: false
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Storage.Backend != "sqlite" || cfg.Storage.SQLite.Driver != "sqlite3" {
		t.Errorf("unexpected storage config: %+v", cfg.Storage)
	}
	if cfg.Storage.SQLite.WALMode {
		t.Error("expected explicit wal_mode: false to be kept")
	}
	if cfg.Storage.SQLite.BusyTimeout != 2*time.Second {
		t.Errorf("expected busy timeout 2s, got %v", cfg.Storage.SQLite.BusyTimeout)
	}
	if cfg.Supervisor.Health.HealthyPrecision != 0.9 {
		t.Errorf("expected healthy precision 0.9, got %v", cfg.Supervisor.Health.HealthyPrecision)
	}
	if cfg.Supervisor.Health.UnhealthyPrecision != DefaultUnhealthyPrecision {
		t.Errorf("expected default unhealthy precision, got %v", cfg.Supervisor.Health.UnhealthyPrecision)
	}
	if !cfg.Watch.Enabled || cfg.Watch.DebounceInterval != 500*time.Millisecond {
		t.Errorf("unexpected watch config: %+v", cfg.Watch)
	}
	if cfg.Telemetry.Logging.RedactPII {
		t.Error("expected explicit redact_pii: false to be kept")
	}
	if !cfg.Telemetry.Metrics.Enabled {
		t.Error("expected metrics enabled by default")
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"invalid yaml", "storage: [unclosed", "failed to parse"},
		{"invalid backend", "storage:\n  backend: postgres\n", "storage.backend"},
		{"invalid cron", "supervisor:\n  sweep_schedule: hourly\n", "supervisor.sweep_schedule"},
		{"invalid level", "telemetry:\n  logging:\n    level: loud\n", "telemetry.logging.level"},
		{"inverted thresholds", "supervisor:\n  health:\n    unhealthy_precision: 0.9\n", "supervisor.health"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, "storage:\n  backend: file\n")

	t.Setenv("GROKFLOW_STORAGE_BACKEND", "memory")
	t.Setenv("GROKFLOW_SUPERVISOR_HISTORY_SIZE", "25")
	t.Setenv("GROKFLOW_WATCH_ENABLED", "true")
	t.Setenv("GROKFLOW_WATCH_DEBOUNCE_INTERVAL", "1s")
	t.Setenv("GROKFLOW_TELEMETRY_LOGGING_LEVEL", "error")
	t.Setenv("GROKFLOW_SUPERVISOR_SMOOTHING", "not-a-number")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("expected backend override, got %q", cfg.Storage.Backend)
	}
	if cfg.Supervisor.HistorySize != 25 {
		t.Errorf("expected history size 25, got %d", cfg.Supervisor.HistorySize)
	}
	if !cfg.Watch.Enabled || cfg.Watch.DebounceInterval != time.Second {
		t.Errorf("unexpected watch config: %+v", cfg.Watch)
	}
	if cfg.Telemetry.Logging.Level != "error" {
		t.Errorf("expected level override, got %q", cfg.Telemetry.Logging.Level)
	}
	if cfg.Supervisor.Smoothing != DefaultSmoothing {
		t.Errorf("unparsable override should be ignored, got %v", cfg.Supervisor.Smoothing)
	}

	t.Setenv("GROKFLOW_STORAGE_BACKEND", "cassandra")
	if _, err := LoadConfigWithEnvOverrides(path); err == nil {
		t.Error("expected invalid override to fail validation")
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") with no config file: %v", err)
	}
	if cfg.Storage.Backend != DefaultStorageBackend {
		t.Errorf("expected defaults, got backend %q", cfg.Storage.Backend)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected an explicit missing path to fail")
	}

	path := writeConfig(t, "storage:\n  backend: memory\n")
	cfg, err = Load(path)
	if err != nil || cfg.Storage.Backend != "memory" {
		t.Errorf("Load(path) = %+v, %v", cfg, err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := Default()
	cfg.Storage.Backend = "postgres"
	cfg.Supervisor.HistorySize = 0
	cfg.Telemetry.Logging.Format = "xml"

	err := Validate(cfg)
	var validationErr ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if len(validationErr.Errors) != 3 {
		t.Errorf("expected 3 errors, got %d: %v", len(validationErr.Errors), validationErr.Errors)
	}
	if !strings.Contains(validationErr.Error(), "validation failed with 3 errors") {
		t.Errorf("unexpected message: %s", validationErr.Error())
	}
}

func TestValidate_Storage(t *testing.T) {
	tests := []struct {
		name      string
		storage   StorageConfig
		wantError bool
	}{
		{"file", StorageConfig{Backend: "file", Dir: "/tmp/x"}, false},
		{"file without dir", StorageConfig{Backend: "file"}, true},
		{"memory", StorageConfig{Backend: "memory"}, false},
		{"sqlite", StorageConfig{Backend: "sqlite", SQLite: SQLiteConfig{Path: ":memory:", Driver: "sqlite"}}, false},
		{"sqlite bad driver", StorageConfig{Backend: "sqlite", SQLite: SQLiteConfig{Path: "x.db", Driver: "pg"}}, true},
		{"unknown", StorageConfig{Backend: "s3"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := validateStorage(&tt.storage)
			if (len(errs) > 0) != tt.wantError {
				t.Errorf("validateStorage() errors = %v, wantError %v", errs, tt.wantError)
			}
		})
	}
}

func TestValidate_Telemetry(t *testing.T) {
	cfg := Default()
	cfg.Telemetry.Logging.RedactPatterns = []RedactPattern{{Name: "bad", Pattern: "(unclosed"}}
	cfg.Telemetry.Metrics.ListenAddress = "no-port"
	cfg.Telemetry.Metrics.Path = "metrics"

	errs := validateTelemetry(&cfg.Telemetry)
	if len(errs) != 3 {
		t.Errorf("expected 3 errors, got %v", errs)
	}

	cfg.Telemetry.Metrics.Enabled = false
	cfg.Telemetry.Logging.RedactPatterns = nil
	if errs := validateTelemetry(&cfg.Telemetry); len(errs) != 0 {
		t.Errorf("disabled metrics should not be validated, got %v", errs)
	}
}
