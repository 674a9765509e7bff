package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"grokflow/guardrails/pkg/guard"
	"grokflow/guardrails/pkg/telemetry/health"
)

const shutdownTimeout = 5 * time.Second

var monitorFlags struct {
	listenAddress string
	watch         bool
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Serve metrics and run the periodic health sweep",
	Long: `Run in the foreground until interrupted:

  - the health sweep runs on supervisor.sweep_schedule, pruning orphaned
    analytics and publishing the dashboard as Prometheus gauges
  - with the file backend and --watch (or watch.enabled), constraints are
    reloaded when another process edits them
  - an HTTP server exposes the metrics path and /healthz, /readyz, /version

Examples:
  grokflow monitor
  grokflow monitor --listen 0.0.0.0:9464 --watch`,
	Args: cobra.NoArgs,
	RunE: runE("monitor", runMonitor),
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().StringVarP(&monitorFlags.listenAddress, "listen", "l", "", "override metrics listen address")
	monitorCmd.Flags().BoolVar(&monitorFlags.watch, "watch", false, "reload constraints when the files change")
}

func runMonitor(ctx context.Context, s *session, args []string) error {
	cfg := s.svc.Config()
	addr := cfg.Telemetry.Metrics.ListenAddress
	if monitorFlags.listenAddress != "" {
		addr = monitorFlags.listenAddress
	}

	scheduler := s.svc.NewScheduler()
	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer scheduler.Stop()

	if monitorFlags.watch || cfg.Watch.Enabled {
		watcher, err := s.svc.NewWatcher()
		switch {
		case errors.Is(err, guard.ErrNotWatchable):
			s.logger.Warn("constraint watching needs the file backend", "backend", cfg.Storage.Backend)
		case err != nil:
			return err
		default:
			defer watcher.Stop()
			go func() {
				if err := watcher.Watch(ctx, func() error { return s.svc.Reload(ctx) }); err != nil {
					s.logger.Error("store watcher exited", "error", err)
				}
			}()
		}
	}

	checker := health.New(0)
	checker.Register("storage", s.svc.Ping)
	checker.Register("health_sweep", func(context.Context) error {
		return scheduler.LastError()
	})

	mux := http.NewServeMux()
	checker.Mount(mux, Version, GitCommit)
	if cfg.Telemetry.Metrics.Enabled {
		mux.Handle(cfg.Telemetry.Metrics.Path, s.svc.Metrics().Handler())
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	s.logger.Info("monitor started", "address", listener.Addr().String(), "sweep_schedule", cfg.Supervisor.SweepSchedule)
	if !s.out.JSON() {
		fmt.Fprintf(os.Stdout, "✓ Listening on %s\n", listener.Addr())
		if cfg.Telemetry.Metrics.Enabled {
			fmt.Fprintf(os.Stdout, "✓ Metrics endpoint: http://%s%s\n", listener.Addr(), cfg.Telemetry.Metrics.Path)
		}
		fmt.Fprintf(os.Stdout, "✓ Health endpoints: %s, %s\n", health.LivenessPath, health.ReadinessPath)
		fmt.Fprintln(os.Stdout, "\nPress Ctrl+C to stop")
	}

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down monitor")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}
