package config

import "time"

// Default values for configuration fields.
const (
	// Storage defaults
	DefaultStorageBackend     = "file"
	DefaultStorageDir         = "~/.grokflow"
	DefaultSQLitePath         = "~/.grokflow/constraints.db"
	DefaultSQLiteDriver       = "sqlite"
	DefaultSQLiteWALMode      = true
	DefaultSQLiteBusyTimeout  = 5 * time.Second
	DefaultConfigPath         = "~/.grokflow/config.yaml"
	DefaultTemplatesDir       = "~/.grokflow/templates"
	DefaultTemplatesInstall   = true
	DefaultTemplatesMaxSize   = int64(1 << 20)
	DefaultWatchEnabled       = false
	DefaultWatchDebounce      = 200 * time.Millisecond
	DefaultSweepSchedule      = "*/15 * * * *"
	DefaultHistorySize        = 50
	DefaultSmoothing          = 10.0
	DefaultDriftWindow        = 10
	DefaultDriftChunk         = 2
	DefaultDriftMinSamples    = 4
	DefaultMiningMinFrequency = 3
	DefaultMiningMinTokenLen  = 3
	DefaultMiningScale        = 10.0
	DefaultMiningMaxConf      = 0.95

	// Health defaults
	DefaultHealthyPrecision    = 0.8
	DefaultHealthyMaxDrift     = 0.3
	DefaultHealthyMaxFPRate    = 0.2
	DefaultAcceptablePrecision = 0.7
	DefaultAcceptableMaxDrift  = 0.5
	DefaultUnhealthyPrecision  = 0.5
	DefaultUnhealthyDrift      = 0.7
	DefaultHealthMinSamples    = 3
	DefaultEscalatePrecision   = 0.95

	// Telemetry defaults
	DefaultLoggingLevel     = "warn"
	DefaultLoggingFormat    = "text"
	DefaultLoggingRedactPII = true
	DefaultMetricsEnabled   = true
	DefaultMetricsAddress   = "127.0.0.1:9464"
	DefaultPrometheusPath   = "/metrics"
	DefaultMetricsNamespace = "grokflow"
	DefaultMetricsSubsystem = "guardrails"
)

// DefaultEvaluationBuckets are the histogram buckets for evaluation
// duration. Matching is sub-millisecond, so the buckets are fine-grained.
var DefaultEvaluationBuckets = []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01}

// Default returns a configuration with every field set to its default.
func Default() *Config {
	cfg := &Config{
		Storage: StorageConfig{
			SQLite: SQLiteConfig{WALMode: DefaultSQLiteWALMode},
		},
		Templates: TemplatesConfig{InstallBuiltins: DefaultTemplatesInstall},
		Watch:     WatchConfig{Enabled: DefaultWatchEnabled},
		Telemetry: TelemetryConfig{
			Logging: LoggingConfig{RedactPII: DefaultLoggingRedactPII},
			Metrics: MetricsConfig{Enabled: DefaultMetricsEnabled},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every unset (zero) field with its default. Boolean
// fields cannot be told apart from an explicit false, so their defaults are
// applied by Default before the file is decoded.
func ApplyDefaults(cfg *Config) {
	// Storage defaults
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = DefaultStorageBackend
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = DefaultStorageDir
	}
	if cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = DefaultSQLitePath
	}
	if cfg.Storage.SQLite.Driver == "" {
		cfg.Storage.SQLite.Driver = DefaultSQLiteDriver
	}
	if cfg.Storage.SQLite.BusyTimeout == 0 {
		cfg.Storage.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}

	// Supervisor defaults
	s := &cfg.Supervisor
	if s.HistorySize == 0 {
		s.HistorySize = DefaultHistorySize
	}
	if s.Smoothing == 0 {
		s.Smoothing = DefaultSmoothing
	}
	if s.DriftWindow == 0 {
		s.DriftWindow = DefaultDriftWindow
	}
	if s.DriftChunk == 0 {
		s.DriftChunk = DefaultDriftChunk
	}
	if s.DriftMinSamples == 0 {
		s.DriftMinSamples = DefaultDriftMinSamples
	}
	if s.SweepSchedule == "" {
		s.SweepSchedule = DefaultSweepSchedule
	}

	h := &s.Health
	if h.HealthyPrecision == 0 {
		h.HealthyPrecision = DefaultHealthyPrecision
	}
	if h.HealthyMaxDrift == 0 {
		h.HealthyMaxDrift = DefaultHealthyMaxDrift
	}
	if h.HealthyMaxFPRate == 0 {
		h.HealthyMaxFPRate = DefaultHealthyMaxFPRate
	}
	if h.AcceptablePrecision == 0 {
		h.AcceptablePrecision = DefaultAcceptablePrecision
	}
	if h.AcceptableMaxDrift == 0 {
		h.AcceptableMaxDrift = DefaultAcceptableMaxDrift
	}
	if h.UnhealthyPrecision == 0 {
		h.UnhealthyPrecision = DefaultUnhealthyPrecision
	}
	if h.UnhealthyDrift == 0 {
		h.UnhealthyDrift = DefaultUnhealthyDrift
	}
	if h.MinSamples == 0 {
		h.MinSamples = DefaultHealthMinSamples
	}
	if h.EscalatePrecision == 0 {
		h.EscalatePrecision = DefaultEscalatePrecision
	}

	m := &s.Mining
	if m.MinFrequency == 0 {
		m.MinFrequency = DefaultMiningMinFrequency
	}
	if m.MinTokenLength == 0 {
		m.MinTokenLength = DefaultMiningMinTokenLen
	}
	if m.FrequencyScale == 0 {
		m.FrequencyScale = DefaultMiningScale
	}
	if m.MaxConfidence == 0 {
		m.MaxConfidence = DefaultMiningMaxConf
	}

	// Templates defaults
	if cfg.Templates.Dir == "" {
		cfg.Templates.Dir = DefaultTemplatesDir
	}
	if cfg.Templates.MaxFileSize == 0 {
		cfg.Templates.MaxFileSize = DefaultTemplatesMaxSize
	}

	// Watch defaults
	if cfg.Watch.DebounceInterval == 0 {
		cfg.Watch.DebounceInterval = DefaultWatchDebounce
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.ListenAddress == "" {
		cfg.Telemetry.Metrics.ListenAddress = DefaultMetricsAddress
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultPrometheusPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Metrics.Subsystem == "" {
		cfg.Telemetry.Metrics.Subsystem = DefaultMetricsSubsystem
	}
	if len(cfg.Telemetry.Metrics.EvaluationBuckets) == 0 {
		cfg.Telemetry.Metrics.EvaluationBuckets = append([]float64(nil), DefaultEvaluationBuckets...)
	}
}
