// Command scheduler runs the distributed cron-style job scheduler: the
// Management API (C7), the in-process SchedulerManager (C4) and JobExecutor
// (C5), and the ConfigChangeReconciler (C6) that keeps storage and the
// ConfigStore in sync.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/distsched/scheduler/internal/config"
	"github.com/distsched/scheduler/internal/configstore"
	"github.com/distsched/scheduler/internal/executor"
	"github.com/distsched/scheduler/internal/httpapi"
	_ "github.com/distsched/scheduler/internal/jobs" // registers built-in job implementations via init()
	"github.com/distsched/scheduler/internal/jobregistry"
	"github.com/distsched/scheduler/internal/observability"
	"github.com/distsched/scheduler/internal/reconciler"
	"github.com/distsched/scheduler/internal/repository/postgres"
	"github.com/distsched/scheduler/internal/scheduler"
)

func main() {
	if err := run(); err != nil {
		slog.Error("scheduler: exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	providers, err := observability.Init(ctx, observability.Config{
		Enabled:     cfg.Observability.Enabled,
		ServiceName: cfg.Observability.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			slog.Error("scheduler: observability shutdown failed", "error", err)
		}
	}()
	if providers.Logger != nil {
		slog.SetDefault(providers.Logger)
	}

	metrics, err := observability.NewSchedulerMetrics(otel.Meter(cfg.Observability.ServiceName))
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	store, err := postgres.NewStoreWithConfig(ctx, postgres.DBConfig{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer store.Close()

	cfgStore, err := configstore.Open(cfg.ConfigStore.Dir, cfg.ConfigStore.Format)
	if err != nil {
		return fmt.Errorf("open configstore: %w", err)
	}
	defer func() {
		if err := cfgStore.Close(); err != nil {
			slog.Error("scheduler: configstore close failed", "error", err)
		}
	}()

	jobExecutor := executor.New(store, cfg.Scheduler.ServerIdentity, metrics)

	schedManager, err := scheduler.New(jobExecutor)
	if err != nil {
		return fmt.Errorf("init scheduler manager: %w", err)
	}

	registry := jobregistry.New(store, cfgStore, schedManager).WithEnvironment(cfg.Scheduler.Environment)

	recon := reconciler.New(store, cfgStore, schedManager, reconciler.Config{
		Interval:         cfg.Scheduler.ReconcileInterval,
		MaxStartupJitter: cfg.Scheduler.MaxStartupJitter,
	}, metrics)
	defer recon.Close()

	apiServer := httpapi.New(httpapi.Config{
		Port:            cfg.HTTP.Port,
		ReadTimeout:     cfg.HTTP.ReadTimeout,
		WriteTimeout:    cfg.HTTP.WriteTimeout,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
		MaxBodyBytes:    cfg.HTTP.MaxBodyBytes,
	}, registry, jobExecutor, store, fmt.Sprintf(":%d", cfg.HTTP.Port))

	schedManager.Start(ctx)

	if err := registry.Bootstrap(ctx); err != nil {
		slog.ErrorContext(ctx, "scheduler: bootstrap encountered errors, continuing with the jobs that scheduled successfully", "error", err)
	}

	reconcileErrCh := make(chan error, 1)
	go func() {
		reconcileErrCh <- recon.Run(ctx)
	}()

	serveErrCh := make(chan error, 1)
	go func() {
		slog.Info("scheduler: HTTP Management API listening", "port", cfg.HTTP.Port)
		serveErrCh <- apiServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("scheduler: shutdown signal received")
	case err := <-serveErrCh:
		if err != nil {
			slog.Error("scheduler: HTTP server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Scheduler.ShutdownGracePeriod)
	defer cancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("scheduler: HTTP server shutdown failed", "error", err)
	}
	if err := schedManager.Stop(shutdownCtx); err != nil {
		slog.Error("scheduler: trigger engines did not stop cleanly", "error", err)
	}

	if err := <-reconcileErrCh; err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("scheduler: reconciler loop exited with error", "error", err)
	}

	swept, err := store.SweepStaleRunningLogs(shutdownCtx, time.Now().UTC(), "execution interrupted")
	if err != nil {
		slog.Error("scheduler: failed to sweep stale running job logs at shutdown", "error", err)
	} else if swept > 0 {
		slog.Info("scheduler: swept stale running job logs at shutdown", "count", swept)
	}

	slog.Info("scheduler: shutdown complete")
	return nil
}
