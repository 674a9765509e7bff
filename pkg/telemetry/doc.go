// Package telemetry groups the observability packages of grokflow
// guardrails.
//
// # Components
//
//   - logging: slog construction from configuration with credential
//     redaction, since queries are logged verbatim
//   - metrics: Prometheus collectors fed by the match engine and the
//     health sweep
//   - health: liveness and readiness probes served by "grokflow monitor"
package telemetry
