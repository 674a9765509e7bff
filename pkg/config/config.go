package config

import "time"

// Config is the root configuration structure for grokflow guardrails.
type Config struct {
	// Storage selects where constraints and analytics are persisted.
	Storage StorageConfig `yaml:"storage"`

	// Supervisor contains the analytics and health classification settings.
	Supervisor SupervisorConfig `yaml:"supervisor"`

	// Templates configures the shareable constraint templates directory.
	Templates TemplatesConfig `yaml:"templates"`

	// Watch configures reloading when another process edits the constraint
	// files.
	Watch WatchConfig `yaml:"watch"`

	// Telemetry contains logging and metrics configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	// Backend is the storage backend.
	// Options: "file", "sqlite", "memory"
	// Default: "file"
	Backend string `yaml:"backend"`

	// Dir is the directory of the file backend. It holds constraints.json
	// and constraint_analytics.json.
	// Default: "~/.grokflow"
	Dir string `yaml:"dir"`

	// SQLite configures the sqlite backend.
	SQLite SQLiteConfig `yaml:"sqlite"`
}

// SQLiteConfig contains sqlite backend settings.
type SQLiteConfig struct {
	// Path is the database file, or ":memory:".
	// Default: "~/.grokflow/constraints.db"
	Path string `yaml:"path"`

	// Driver is the database/sql driver.
	// Options: "sqlite" (pure Go), "sqlite3" (cgo)
	// Default: "sqlite"
	Driver string `yaml:"driver"`

	// WALMode enables write-ahead logging.
	// Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is how long a write waits for a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// SupervisorConfig contains analytics settings.
type SupervisorConfig struct {
	// HistorySize caps the trigger events kept per constraint.
	// Default: 50
	HistorySize int `yaml:"history_size"`

	// Smoothing is k in effectiveness = precision * n/(n+k).
	// Default: 10
	Smoothing float64 `yaml:"smoothing"`

	// DriftWindow is the number of recent labeled events used for drift.
	// Default: 10
	DriftWindow int `yaml:"drift_window"`

	// DriftChunk is the sub-window size for the drift variance term.
	// Default: 2
	DriftChunk int `yaml:"drift_chunk"`

	// DriftMinSamples is the labeled event count below which drift is 0.
	// Default: 4
	DriftMinSamples int `yaml:"drift_min_samples"`

	// SweepSchedule is the cron expression of the periodic health sweep run
	// by "grokflow monitor". Empty disables the sweep.
	// Default: "*/15 * * * *"
	SweepSchedule string `yaml:"sweep_schedule"`

	// Health holds the classification thresholds.
	Health HealthConfig `yaml:"health"`

	// Mining configures new constraint discovery.
	Mining MiningConfig `yaml:"mining"`
}

// HealthConfig contains the health classification thresholds.
type HealthConfig struct {
	HealthyPrecision    float64 `yaml:"healthy_precision"`
	HealthyMaxDrift     float64 `yaml:"healthy_max_drift"`
	HealthyMaxFPRate    float64 `yaml:"healthy_max_fp_rate"`
	AcceptablePrecision float64 `yaml:"acceptable_precision"`
	AcceptableMaxDrift  float64 `yaml:"acceptable_max_drift"`
	UnhealthyPrecision  float64 `yaml:"unhealthy_precision"`
	UnhealthyDrift      float64 `yaml:"unhealthy_drift"`
	MinSamples          int     `yaml:"min_samples"`
	EscalatePrecision   float64 `yaml:"escalate_precision"`
}

// MiningConfig configures new constraint discovery from query history.
type MiningConfig struct {
	// MinFrequency is the number of occurrences a token needs.
	// Default: 3
	MinFrequency int `yaml:"min_frequency"`

	// MinTokenLength drops shorter tokens.
	// Default: 3
	MinTokenLength int `yaml:"min_token_length"`

	// FrequencyScale divides the frequency to obtain a confidence.
	// Default: 10
	FrequencyScale float64 `yaml:"frequency_scale"`

	// MaxConfidence caps candidate confidence.
	// Default: 0.95
	MaxConfidence float64 `yaml:"max_confidence"`
}

// TemplatesConfig configures the templates directory.
type TemplatesConfig struct {
	// Dir holds shareable templates.
	// Default: "~/.grokflow/templates"
	Dir string `yaml:"dir"`

	// InstallBuiltins writes the bundled templates into Dir when missing.
	// Default: true
	InstallBuiltins bool `yaml:"install_builtins"`

	// MaxFileSize limits template files that are read, in bytes.
	// Default: 1048576
	MaxFileSize int64 `yaml:"max_file_size"`
}

// WatchConfig configures constraint file watching.
type WatchConfig struct {
	// Enabled reloads the store when the constraint files change on disk.
	// Only used with the file backend.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// DebounceInterval coalesces bursts of file events.
	// Default: 200ms
	DebounceInterval time.Duration `yaml:"debounce_interval"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "warn"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "text"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactPII redacts API keys, tokens, passwords and emails from log
	// attributes. Queries are logged and may contain credentials.
	// Default: true
	RedactPII bool `yaml:"redact_pii"`

	// RedactPatterns contains custom redaction patterns.
	RedactPatterns []RedactPattern `yaml:"redact_patterns"`
}

// RedactPattern defines a custom redaction pattern.
type RedactPattern struct {
	// Name is a descriptive name for the pattern.
	Name string `yaml:"name"`

	// Pattern is the regular expression to match.
	Pattern string `yaml:"pattern"`

	// Replacement is the string to replace matches with.
	Replacement string `yaml:"replacement"`
}

// MetricsConfig contains metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// ListenAddress is where "grokflow monitor" serves metrics.
	// Default: "127.0.0.1:9464"
	ListenAddress string `yaml:"listen_address"`

	// Path is the HTTP path of the Prometheus endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "grokflow"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	// Default: "guardrails"
	Subsystem string `yaml:"subsystem"`

	// EvaluationBuckets defines histogram buckets for evaluation duration
	// in seconds.
	// Default: [0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01]
	EvaluationBuckets []float64 `yaml:"evaluation_buckets"`
}
