// Package config provides configuration management for grokflow guardrails.
//
// This package handles loading and validating configuration from a YAML file
// with environment variable overrides. Every field has a sensible default, so
// the configuration file is optional.
//
// # Configuration Loading
//
// Configuration can be loaded in three ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("config.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("config.yaml")
//
//  3. As the CLI does, tolerating a missing ~/.grokflow/config.yaml:
//     cfg, err := config.Load("")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention GROKFLOW_SECTION_FIELD.
// For example:
//
//   - GROKFLOW_STORAGE_BACKEND overrides storage.backend
//   - GROKFLOW_STORAGE_SQLITE_PATH overrides storage.sqlite.path
//   - GROKFLOW_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// # Configuration Precedence
//
// Configuration values are applied in the following order (later overrides earlier):
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Validation
//
// Validation errors are collected and reported together with field paths:
//
//	configuration validation failed with 2 errors:
//	  - storage.backend: invalid backend "postgres": must be 'file', 'sqlite', or 'memory'
//	  - supervisor.sweep_schedule: invalid cron expression "hourly": ...
//
// # Example Configuration
//
//	storage:
//	  backend: sqlite
//	  sqlite:
//	    path: ~/.grokflow/constraints.db
//
//	supervisor:
//	  sweep_schedule: "@every 10m"
//	  health:
//	    healthy_precision: 0.85
//
//	telemetry:
//	  logging:
//	    level: info
//	    format: json
package config
