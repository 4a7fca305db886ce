package observability

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/distsched/scheduler/internal/domain"
)

// SchedulerMetrics is the OpenTelemetry-backed implementation of
// executor.Metrics and reconciler.Metrics: every fire, retry, and sweep the
// scheduler performs is recorded here as an OTel counter.
type SchedulerMetrics struct {
	fires     metric.Int64Counter
	retries   metric.Int64Counter
	sweeps    metric.Int64Counter
	reconciled metric.Int64Counter
}

// NewSchedulerMetrics creates the instruments off the global meter provider.
// Call observability.Init first so the provider is wired (or a no-op) before
// constructing instruments.
func NewSchedulerMetrics(meter metric.Meter) (*SchedulerMetrics, error) {
	fires, err := meter.Int64Counter("scheduler.fires",
		metric.WithDescription("Job fires dispatched by the executor, labeled by job type and outcome"))
	if err != nil {
		return nil, err
	}

	retries, err := meter.Int64Counter("scheduler.retries",
		metric.WithDescription("Retry attempts taken after a failed fire"))
	if err != nil {
		return nil, err
	}

	sweeps, err := meter.Int64Counter("scheduler.reconcile_sweeps",
		metric.WithDescription("Full reconciliation sweeps completed"))
	if err != nil {
		return nil, err
	}

	reconciled, err := meter.Int64Counter("scheduler.reconciled_jobs",
		metric.WithDescription("JobConfigs updated by a reconciliation sweep or push"))
	if err != nil {
		return nil, err
	}

	return &SchedulerMetrics{fires: fires, retries: retries, sweeps: sweeps, reconciled: reconciled}, nil
}

// RecordFire satisfies executor.Metrics.
func (m *SchedulerMetrics) RecordFire(jobType domain.JobType, outcome string) {
	if m == nil {
		return
	}
	m.fires.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("job_type", string(jobType)),
		attribute.String("outcome", outcome),
	))
}

// RecordRetry satisfies executor.Metrics.
func (m *SchedulerMetrics) RecordRetry(jobName string) {
	if m == nil {
		return
	}
	m.retries.Add(context.Background(), 1, metric.WithAttributes(attribute.String("job_name", jobName)))
}

// RecordSweep satisfies reconciler.Metrics.
func (m *SchedulerMetrics) RecordSweep(reconciled, skipped, failed int) {
	if m == nil {
		return
	}
	ctx := context.Background()
	m.sweeps.Add(ctx, 1)
	if reconciled > 0 {
		m.reconciled.Add(ctx, int64(reconciled))
	}
	slog.Debug("observability: recorded reconciliation sweep", "reconciled", reconciled, "skipped", skipped, "failed", failed)
}
