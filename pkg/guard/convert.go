package guard

import (
	"grokflow/guardrails/pkg/config"
	"grokflow/guardrails/pkg/storage"
	"grokflow/guardrails/pkg/store"
	"grokflow/guardrails/pkg/supervisor"
	"grokflow/guardrails/pkg/template"
)

// StorageConfig converts the storage section of the configuration.
func StorageConfig(cfg config.StorageConfig) *storage.Config {
	return &storage.Config{
		Backend: cfg.Backend,
		Dir:     cfg.Dir,
		SQLite: &storage.SQLiteConfig{
			Path:        cfg.SQLite.Path,
			Driver:      cfg.SQLite.Driver,
			WALMode:     cfg.SQLite.WALMode,
			BusyTimeout: cfg.SQLite.BusyTimeout,
		},
	}
}

// SupervisorConfig converts the supervisor section of the configuration.
func SupervisorConfig(cfg config.SupervisorConfig) *supervisor.Config {
	return &supervisor.Config{
		HistorySize:     cfg.HistorySize,
		Smoothing:       cfg.Smoothing,
		DriftWindow:     cfg.DriftWindow,
		DriftChunk:      cfg.DriftChunk,
		DriftMinSamples: cfg.DriftMinSamples,
		Policy: supervisor.HealthPolicy{
			HealthyPrecision:    cfg.Health.HealthyPrecision,
			HealthyMaxDrift:     cfg.Health.HealthyMaxDrift,
			HealthyMaxFPRate:    cfg.Health.HealthyMaxFPRate,
			AcceptablePrecision: cfg.Health.AcceptablePrecision,
			AcceptableMaxDrift:  cfg.Health.AcceptableMaxDrift,
			UnhealthyPrecision:  cfg.Health.UnhealthyPrecision,
			UnhealthyDrift:      cfg.Health.UnhealthyDrift,
			MinSamples:          cfg.Health.MinSamples,
			EscalatePrecision:   cfg.Health.EscalatePrecision,
		},
		Mining: supervisor.MiningConfig{
			MinFrequency:   cfg.Mining.MinFrequency,
			MinTokenLength: cfg.Mining.MinTokenLength,
			FrequencyScale: cfg.Mining.FrequencyScale,
			MaxConfidence:  cfg.Mining.MaxConfidence,
		},
	}
}

// TemplatesConfig converts the templates section of the configuration.
func TemplatesConfig(cfg config.TemplatesConfig) *template.Config {
	return &template.Config{
		Dir:             cfg.Dir,
		InstallBuiltins: cfg.InstallBuiltins,
		MaxFileSize:     cfg.MaxFileSize,
	}
}

// WatcherConfig converts the watch section for the file backend rooted at
// dir.
func WatcherConfig(cfg config.WatchConfig, dir string) *store.WatcherConfig {
	return &store.WatcherConfig{
		Dir:              dir,
		Files:            []string{storage.ConstraintsFile, storage.AnalyticsFile},
		DebounceInterval: cfg.DebounceInterval,
	}
}
