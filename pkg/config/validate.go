package config

import (
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "storage.backend").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All validation errors are collected and
// returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateSupervisor(&cfg.Supervisor)...)
	errs = append(errs, validateTemplates(&cfg.Templates)...)
	errs = append(errs, validateWatch(&cfg.Watch)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateStorage(cfg *StorageConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "file":
		if cfg.Dir == "" {
			errs = append(errs, FieldError{
				Field:   "storage.dir",
				Message: "directory is required for the file backend",
			})
		}
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{
				Field:   "storage.sqlite.path",
				Message: "database path is required for the sqlite backend",
			})
		}
		if cfg.SQLite.Driver != "sqlite" && cfg.SQLite.Driver != "sqlite3" {
			errs = append(errs, FieldError{
				Field:   "storage.sqlite.driver",
				Message: fmt.Sprintf("invalid driver %q: must be 'sqlite' or 'sqlite3'", cfg.SQLite.Driver),
			})
		}
		if cfg.SQLite.BusyTimeout < 0 {
			errs = append(errs, FieldError{
				Field:   "storage.sqlite.busy_timeout",
				Message: "busy timeout must not be negative",
			})
		}
	case "memory":
	default:
		errs = append(errs, FieldError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("invalid backend %q: must be 'file', 'sqlite', or 'memory'", cfg.Backend),
		})
	}

	return errs
}

func validateSupervisor(cfg *SupervisorConfig) []FieldError {
	var errs []FieldError

	if cfg.HistorySize < 1 {
		errs = append(errs, FieldError{
			Field:   "supervisor.history_size",
			Message: "history size must be positive",
		})
	}
	if cfg.Smoothing < 0 {
		errs = append(errs, FieldError{
			Field:   "supervisor.smoothing",
			Message: "smoothing must not be negative",
		})
	}
	if cfg.DriftWindow < 2 {
		errs = append(errs, FieldError{
			Field:   "supervisor.drift_window",
			Message: "drift window must be at least 2",
		})
	}
	if cfg.DriftChunk < 1 || cfg.DriftChunk > cfg.DriftWindow {
		errs = append(errs, FieldError{
			Field:   "supervisor.drift_chunk",
			Message: "drift chunk must be between 1 and the drift window",
		})
	}
	if cfg.SweepSchedule != "" {
		if _, err := cron.ParseStandard(cfg.SweepSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "supervisor.sweep_schedule",
				Message: fmt.Sprintf("invalid cron expression %q: %v", cfg.SweepSchedule, err),
			})
		}
	}

	h := cfg.Health
	for _, p := range []struct {
		field string
		value float64
	}{
		{"healthy_precision", h.HealthyPrecision},
		{"healthy_max_drift", h.HealthyMaxDrift},
		{"healthy_max_fp_rate", h.HealthyMaxFPRate},
		{"acceptable_precision", h.AcceptablePrecision},
		{"acceptable_max_drift", h.AcceptableMaxDrift},
		{"unhealthy_precision", h.UnhealthyPrecision},
		{"unhealthy_drift", h.UnhealthyDrift},
		{"escalate_precision", h.EscalatePrecision},
	} {
		if p.value < 0 || p.value > 1 {
			errs = append(errs, FieldError{
				Field:   "supervisor.health." + p.field,
				Message: "threshold must be between 0.0 and 1.0",
			})
		}
	}
	if h.UnhealthyPrecision > h.AcceptablePrecision || h.AcceptablePrecision > h.HealthyPrecision {
		errs = append(errs, FieldError{
			Field:   "supervisor.health",
			Message: "precision thresholds must satisfy unhealthy <= acceptable <= healthy",
		})
	}

	if cfg.Mining.MinFrequency < 1 {
		errs = append(errs, FieldError{
			Field:   "supervisor.mining.min_frequency",
			Message: "min frequency must be positive",
		})
	}
	if cfg.Mining.MaxConfidence < 0 || cfg.Mining.MaxConfidence > 1 {
		errs = append(errs, FieldError{
			Field:   "supervisor.mining.max_confidence",
			Message: "max confidence must be between 0.0 and 1.0",
		})
	}

	return errs
}

func validateTemplates(cfg *TemplatesConfig) []FieldError {
	var errs []FieldError
	if cfg.MaxFileSize < 0 {
		errs = append(errs, FieldError{
			Field:   "templates.max_file_size",
			Message: "max file size must not be negative",
		})
	}
	return errs
}

func validateWatch(cfg *WatchConfig) []FieldError {
	var errs []FieldError
	if cfg.DebounceInterval < 0 {
		errs = append(errs, FieldError{
			Field:   "watch.debounce_interval",
			Message: "debounce interval must not be negative",
		})
	}
	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	// Validate logging level
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if cfg.Logging.Level == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: "logging level is required",
		})
	} else if !validLevels[cfg.Logging.Level] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid logging level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}

	// Validate logging format
	validFormats := map[string]bool{"json": true, "text": true}
	if cfg.Logging.Format == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: "logging format is required",
		})
	} else if !validFormats[cfg.Logging.Format] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid logging format %q: must be 'json' or 'text'", cfg.Logging.Format),
		})
	}

	for i, p := range cfg.Logging.RedactPatterns {
		if _, err := regexp.Compile(p.Pattern); err != nil {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("telemetry.logging.redact_patterns[%d].pattern", i),
				Message: fmt.Sprintf("invalid regular expression: %v", err),
			})
		}
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Path == "" || !strings.HasPrefix(cfg.Metrics.Path, "/") {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.path",
				Message: "metrics path must start with '/' when metrics are enabled",
			})
		}
		if _, _, err := net.SplitHostPort(cfg.Metrics.ListenAddress); err != nil {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.listen_address",
				Message: fmt.Sprintf("invalid listen address %q: %v", cfg.Metrics.ListenAddress, err),
			})
		}
	}

	return errs
}
