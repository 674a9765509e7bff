// Package metrics provides Prometheus metrics for grokflow guardrails.
//
// # Overview
//
// The Collector implements match.Observer and supervisor.HealthObserver, so
// it is wired into the match engine and the health sweep without either of
// them importing Prometheus.
//
// # Metrics Categories
//
//   - Evaluation Metrics: Evaluation count by outcome, latency, candidates
//     examined and triggers by constraint and action
//   - Cache Metrics: Compiled regex cache hits and misses
//   - Health Metrics: Constraints per health class, average precision and
//     the overall status published by each sweep
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	engine := match.NewEngine(st, match.WithObserver(collector))
//	scheduler := supervisor.NewScheduler(sup, cfg.Supervisor.SweepSchedule, collector, logger)
//
//	mux := http.NewServeMux()
//	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
//
// # Prometheus Endpoint
//
//	# HELP grokflow_guardrails_triggers_total Total number of constraint triggers
//	# TYPE grokflow_guardrails_triggers_total counter
//	grokflow_guardrails_triggers_total{action="block",constraint_id="a1b2c3d4"} 12
//
// # Cardinality Management
//
// Constraint ids become label values. After DefaultMaxCardinality distinct
// ids, further ids are recorded as "other".
package metrics
