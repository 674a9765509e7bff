// Package health serves the probe endpoints of "grokflow monitor".
//
// It is unrelated to constraint health, which the supervisor package
// computes; these probes report whether the monitor process itself can
// reach its storage and completed its last sweep.
//
// # Endpoints
//
//   - /healthz: liveness, always 200 while the process runs
//   - /readyz: readiness, 503 when any registered check fails
//   - /version: build information
//
// # Usage
//
//	checker := health.New(2 * time.Second)
//	checker.Register("storage", svc.Ping)
//	checker.Register("sweep", func(ctx context.Context) error {
//	    return scheduler.LastError()
//	})
//	checker.Mount(mux, version, commit)
package health
